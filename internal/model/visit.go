package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// FeedingType enumerates meal kinds.
type FeedingType string

const (
	FeedingBreakfast FeedingType = "breakfast"
	FeedingLunch     FeedingType = "lunch"
	FeedingDinner    FeedingType = "dinner"
	FeedingSnack     FeedingType = "snack"
)

// Valid reports whether t is a known feeding type.
func (t FeedingType) Valid() bool {
	switch t {
	case FeedingBreakfast, FeedingLunch, FeedingDinner, FeedingSnack:
		return true
	}
	return false
}

// PottyType enumerates potty outcomes.
type PottyType string

const (
	PottyPee      PottyType = "pee"
	PottyPoop     PottyType = "poop"
	PottyBoth     PottyType = "both"
	PottyAccident PottyType = "accident"
)

// Valid reports whether t is a known potty type.
func (t PottyType) Valid() bool {
	switch t {
	case PottyPee, PottyPoop, PottyBoth, PottyAccident:
		return true
	}
	return false
}

// DoseStatus is the state of a scheduled medication instance.
type DoseStatus string

const (
	DosePending DoseStatus = "pending"
	DoseGiven   DoseStatus = "given"
	DoseSkipped DoseStatus = "skipped"
)

// Valid reports whether s is a known dose status.
func (s DoseStatus) Valid() bool {
	switch s {
	case DosePending, DoseGiven, DoseSkipped:
		return true
	}
	return false
}

// FeedingRecord logs a meal during a visit.
type FeedingRecord struct {
	ID         uuid.UUID   `json:"-"`
	VisitID    uuid.UUID   `json:"visit_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Type       FeedingType `json:"type"`
	Notes      string      `json:"notes"`
	RecordedBy string      `json:"recorded_by"`
}

// MedicationRecord logs a medication given during a visit.
type MedicationRecord struct {
	ID           uuid.UUID `json:"-"`
	VisitID      uuid.UUID `json:"visit_id"`
	Timestamp    time.Time `json:"timestamp"`
	MedicationID uuid.UUID `json:"medication_id"`
	Name         string    `json:"name"`
	Notes        string    `json:"notes"`
	RecordedBy   string    `json:"recorded_by"`
}

// PottyRecord logs a potty break during a visit.
type PottyRecord struct {
	ID         uuid.UUID `json:"-"`
	VisitID    uuid.UUID `json:"visit_id"`
	Timestamp  time.Time `json:"timestamp"`
	Type       PottyType `json:"type"`
	Notes      string    `json:"notes"`
	RecordedBy string    `json:"recorded_by"`
}

// ScheduledMedication is one planned dose of a catalog medication.
type ScheduledMedication struct {
	ID           uuid.UUID  `json:"-"`
	VisitID      uuid.UUID  `json:"visit_id"`
	MedicationID uuid.UUID  `json:"medication_id"`
	ScheduledAt  time.Time  `json:"scheduled_at"`
	Status       DoseStatus `json:"status"`
	Notes        string     `json:"notes"`
}

// Visit is one stay of a dog, from arrival through departure.
// Record collections are stored remotely as separate child records keyed by visit_id.
type Visit struct {
	ID                  uuid.UUID  `json:"-"`
	DogID               uuid.UUID  `json:"dog_id"`
	ArrivalAt           time.Time  `json:"arrival_at"`
	DepartureAt         *time.Time `json:"departure_at"`
	IsBoarding          bool       `json:"is_boarding"`
	BoardingEndAt       *time.Time `json:"boarding_end_at"`
	IsDaycareFed        bool       `json:"is_daycare_fed"`
	NeedsWalking        bool       `json:"needs_walking"`
	WalkingNotes        string     `json:"walking_notes"`
	Notes               string     `json:"notes"`
	SpecialInstructions string     `json:"special_instructions"`
	LegacyID            string     `json:"legacy_id,omitempty"`
	IsDeleted           bool       `json:"-"`
	CreatedAt           time.Time  `json:"-"`
	UpdatedAt           time.Time  `json:"-"`

	Feedings             []FeedingRecord       `json:"-"`
	MedicationRecords    []MedicationRecord    `json:"-"`
	PottyRecords         []PottyRecord         `json:"-"`
	ScheduledMedications []ScheduledMedication `json:"-"`
}

// IsActive reports whether the stay is ongoing at now.
func (v Visit) IsActive(now time.Time) bool {
	return !v.ArrivalAt.After(now) && v.DepartureAt == nil && !v.IsDeleted
}

// Clone returns a deep copy, including all record collections.
func (v Visit) Clone() Visit {
	out := v
	if v.DepartureAt != nil {
		t := *v.DepartureAt
		out.DepartureAt = &t
	}
	if v.BoardingEndAt != nil {
		t := *v.BoardingEndAt
		out.BoardingEndAt = &t
	}
	out.Feedings = append([]FeedingRecord(nil), v.Feedings...)
	out.MedicationRecords = append([]MedicationRecord(nil), v.MedicationRecords...)
	out.PottyRecords = append([]PottyRecord(nil), v.PottyRecords...)
	out.ScheduledMedications = append([]ScheduledMedication(nil), v.ScheduledMedications...)
	return out
}

// DogWithVisit pairs a profile with one of its visits. Every derived property
// delegates to the two constituents.
type DogWithVisit struct {
	Dog   PersistentDog
	Visit Visit
}

// ID is the cache key: the visit id.
func (d DogWithVisit) ID() uuid.UUID { return d.Visit.ID }

// DogID returns the profile id.
func (d DogWithVisit) DogID() uuid.UUID { return d.Dog.ID }

// IsCurrentlyPresent delegates to Visit.IsActive.
func (d DogWithVisit) IsCurrentlyPresent(now time.Time) bool { return d.Visit.IsActive(now) }

// DisplayName is the dog's name, or a placeholder for unnamed profiles.
func (d DogWithVisit) DisplayName() string {
	if d.Dog.Name == "" {
		return "(unnamed)"
	}
	return d.Dog.Name
}

// Owner returns the owner name.
func (d DogWithVisit) Owner() string { return d.Dog.OwnerName }

// Clone returns a deep copy.
func (d DogWithVisit) Clone() DogWithVisit {
	return DogWithVisit{Dog: d.Dog.Clone(), Visit: d.Visit.Clone()}
}
