package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// LegacyDog is the pre-migration aggregate that mixed profile and stay fields in
// one record. It is only read by the migration; the rest of the code never sees it.
type LegacyDog struct {
	ID                  uuid.UUID     `json:"-"`
	Name                string        `json:"name"`
	OwnerName           string        `json:"owner_name"`
	OwnerPhone          string        `json:"owner_phone"`
	ProfilePhoto        []byte        `json:"profile_photo,omitempty"`
	Age                 *int          `json:"age"`
	Gender              Gender        `json:"gender"`
	IsNeutered          *bool         `json:"is_neutered"`
	Vaccinations        []Vaccination `json:"vaccinations"`
	Allergies           string        `json:"allergies"`
	FeedingNotes        string        `json:"feeding_notes"`
	Medications         []Medication  `json:"medications"`
	ArrivalAt           time.Time     `json:"arrival_date"`
	DepartureAt         *time.Time    `json:"departure_date"`
	IsBoarding          bool          `json:"is_boarding"`
	BoardingEndAt       *time.Time    `json:"boarding_end_date"`
	IsDaycareFed        bool          `json:"is_daycare_fed"`
	NeedsWalking        bool          `json:"needs_walking"`
	WalkingNotes        string        `json:"walking_notes"`
	Notes               string        `json:"notes"`
	SpecialInstructions string        `json:"special_instructions"`

	Feedings          []LegacyFeeding    `json:"feeding_records"`
	MedicationRecords []LegacyMedication `json:"medication_records"`
	PottyRecords      []LegacyPotty      `json:"potty_records"`

	IsDeleted bool      `json:"-"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// LegacyFeeding is a feeding entry embedded in a legacy aggregate.
type LegacyFeeding struct {
	Timestamp  time.Time   `json:"timestamp"`
	Type       FeedingType `json:"type"`
	Notes      string      `json:"notes"`
	RecordedBy string      `json:"recorded_by"`
}

// LegacyMedication is a medication entry embedded in a legacy aggregate.
type LegacyMedication struct {
	Timestamp  time.Time `json:"timestamp"`
	Name       string    `json:"name"`
	Notes      string    `json:"notes"`
	RecordedBy string    `json:"recorded_by"`
}

// LegacyPotty is a potty entry embedded in a legacy aggregate.
type LegacyPotty struct {
	Timestamp  time.Time `json:"timestamp"`
	Type       PottyType `json:"type"`
	Notes      string    `json:"notes"`
	RecordedBy string    `json:"recorded_by"`
}

// MatchKey returns the migration match key of the aggregate's profile part.
func (l LegacyDog) MatchKey() string { return MatchKey(l.Name, l.OwnerName, l.OwnerPhone) }

// Profile extracts the durable profile fields.
func (l LegacyDog) Profile() PersistentDog {
	return PersistentDog{
		Name:         l.Name,
		OwnerName:    l.OwnerName,
		OwnerPhone:   l.OwnerPhone,
		ProfilePhoto: l.ProfilePhoto,
		Age:          l.Age,
		Gender:       l.Gender,
		IsNeutered:   l.IsNeutered,
		Vaccinations: l.Vaccinations,
		Allergies:    l.Allergies,
		FeedingNotes: l.FeedingNotes,
		Medications:  l.Medications,
		CreatedAt:    l.CreatedAt,
		UpdatedAt:    l.UpdatedAt,
	}
}

// Stay extracts the stay-specific fields. Record collections are not copied.
func (l LegacyDog) Stay() Visit {
	return Visit{
		ArrivalAt:           l.ArrivalAt,
		DepartureAt:         l.DepartureAt,
		IsBoarding:          l.IsBoarding,
		BoardingEndAt:       l.BoardingEndAt,
		IsDaycareFed:        l.IsDaycareFed,
		NeedsWalking:        l.NeedsWalking,
		WalkingNotes:        l.WalkingNotes,
		Notes:               l.Notes,
		SpecialInstructions: l.SpecialInstructions,
		LegacyID:            l.ID.String(),
		IsDeleted:           l.IsDeleted,
	}
}
