package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Gender of a dog.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnknown Gender = "unknown"
)

// MedicationType tells whether a catalog medication is given every day or on a schedule.
type MedicationType string

const (
	MedicationDaily     MedicationType = "daily"
	MedicationScheduled MedicationType = "scheduled"
)

// Vaccination is a named vaccine with its expiry date.
type Vaccination struct {
	Name      string    `json:"name"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the vaccination is no longer valid at now.
func (v Vaccination) Expired(now time.Time) bool { return !v.ExpiresAt.After(now) }

// Medication is an entry of a dog's medication catalog.
type Medication struct {
	ID    uuid.UUID      `json:"id"`
	Name  string         `json:"name"`
	Type  MedicationType `json:"type"`
	Notes string         `json:"notes"`
}

// PersistentDog is the durable, cross-visit profile of a dog.
// Record metadata (id, timestamps) lives on the remote record, not in the field map.
type PersistentDog struct {
	ID           uuid.UUID     `json:"-"`
	Name         string        `json:"name"`
	OwnerName    string        `json:"owner_name"`
	OwnerPhone   string        `json:"owner_phone"`
	ProfilePhoto []byte        `json:"profile_photo,omitempty"`
	Age          *int          `json:"age"`
	Gender       Gender        `json:"gender"`
	IsNeutered   *bool         `json:"is_neutered"`
	Vaccinations []Vaccination `json:"vaccinations"`
	Allergies    string        `json:"allergies"`
	FeedingNotes string        `json:"feeding_notes"`
	Medications  []Medication  `json:"medications"`
	LastVisitAt  *time.Time    `json:"last_visit_at"`
	CreatedAt    time.Time     `json:"-"`
	UpdatedAt    time.Time     `json:"-"`

	// LegacyUpdatedAt is the update time of the newest legacy record merged
	// into this profile. Nil for profiles the migration never touched.
	LegacyUpdatedAt *time.Time `json:"legacy_updated_at,omitempty"`
}

// MatchKey returns the migration match key of the profile.
func (d PersistentDog) MatchKey() string { return MatchKey(d.Name, d.OwnerName, d.OwnerPhone) }

// Clone returns a deep copy.
func (d PersistentDog) Clone() PersistentDog {
	out := d
	if d.ProfilePhoto != nil {
		out.ProfilePhoto = append([]byte(nil), d.ProfilePhoto...)
	}
	if d.Age != nil {
		a := *d.Age
		out.Age = &a
	}
	if d.IsNeutered != nil {
		n := *d.IsNeutered
		out.IsNeutered = &n
	}
	if d.LastVisitAt != nil {
		t := *d.LastVisitAt
		out.LastVisitAt = &t
	}
	if d.LegacyUpdatedAt != nil {
		t := *d.LegacyUpdatedAt
		out.LegacyUpdatedAt = &t
	}
	out.Vaccinations = append([]Vaccination(nil), d.Vaccinations...)
	out.Medications = append([]Medication(nil), d.Medications...)
	return out
}
