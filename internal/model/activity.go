package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Action tags recorded in the activity log.
const (
	ActionCheckIn            = "visit.check_in"
	ActionCheckOut           = "visit.check_out"
	ActionUpdateVisit        = "visit.update"
	ActionExtendBoarding     = "visit.extend_boarding"
	ActionSoftDelete         = "visit.delete"
	ActionPermanentDelete    = "dog.purge"
	ActionAddFeeding         = "feeding.add"
	ActionDeleteFeeding      = "feeding.delete"
	ActionAddMedication      = "medication.add"
	ActionDeleteMedication   = "medication.delete"
	ActionAddPotty           = "potty.add"
	ActionDeletePotty        = "potty.delete"
	ActionScheduleDose       = "dose.schedule"
	ActionSetDoseStatus      = "dose.status"
	ActionUpdateProfile      = "profile.update"
	ActionUpdateVaccinations = "profile.vaccinations"
	ActionUpdateCatalog      = "profile.medications"
	ActionUpdatePhoto        = "profile.photo"
	ActionMigrate            = "migration.run"
)

// ActivityLogRecord is one append-only audit entry.
type ActivityLogRecord struct {
	ID        uuid.UUID `json:"-"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	DogID     string    `json:"dog_id"`
	DogName   string    `json:"dog_name"`
	Detail    string    `json:"detail"`
}

// Line renders the record as a single log line without a trailing newline.
func (r ActivityLogRecord) Line() string {
	detail := strings.ReplaceAll(r.Detail, "\n", " ")
	return fmt.Sprintf("%s\t%s\t%s(%s)\t%s(%s)\t%s",
		r.Timestamp.UTC().Format(time.RFC3339), r.Action,
		r.ActorName, r.ActorID, r.DogName, r.DogID, detail)
}
