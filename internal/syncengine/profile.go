package syncengine

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/kennelsync/internal/errs"
	"github.com/and161185/kennelsync/internal/model"
	"github.com/and161185/kennelsync/internal/remote"
)

// ProfileDetails is the editable identity field group of a profile.
type ProfileDetails struct {
	Name         string       `json:"name"`
	OwnerName    string       `json:"owner_name"`
	OwnerPhone   string       `json:"owner_phone"`
	Age          *int         `json:"age"`
	Gender       model.Gender `json:"gender"`
	IsNeutered   *bool        `json:"is_neutered"`
	Allergies    string       `json:"allergies"`
	FeedingNotes string       `json:"feeding_notes"`
}

func profileOf(d *model.PersistentDog) ProfileDetails {
	c := d.Clone()
	return ProfileDetails{
		Name:         c.Name,
		OwnerName:    c.OwnerName,
		OwnerPhone:   c.OwnerPhone,
		Age:          c.Age,
		Gender:       c.Gender,
		IsNeutered:   c.IsNeutered,
		Allergies:    c.Allergies,
		FeedingNotes: c.FeedingNotes,
	}
}

func setProfile(d *model.PersistentDog, p ProfileDetails) {
	d.Name = p.Name
	d.OwnerName = p.OwnerName
	d.OwnerPhone = p.OwnerPhone
	d.Age = nil
	if p.Age != nil {
		a := *p.Age
		d.Age = &a
	}
	d.Gender = p.Gender
	d.IsNeutered = nil
	if p.IsNeutered != nil {
		n := *p.IsNeutered
		d.IsNeutered = &n
	}
	d.Allergies = p.Allergies
	d.FeedingNotes = p.FeedingNotes
}

func vaccinationsOf(d *model.PersistentDog) []model.Vaccination {
	return append([]model.Vaccination(nil), d.Vaccinations...)
}

func setVaccinations(d *model.PersistentDog, v []model.Vaccination) {
	d.Vaccinations = append([]model.Vaccination(nil), v...)
}

func catalogOf(d *model.PersistentDog) []model.Medication {
	return append([]model.Medication(nil), d.Medications...)
}

func setCatalog(d *model.PersistentDog, m []model.Medication) {
	d.Medications = append([]model.Medication(nil), m...)
}

func photoOf(d *model.PersistentDog) []byte { return append([]byte(nil), d.ProfilePhoto...) }

func setPhoto(d *model.PersistentDog, b []byte) { d.ProfilePhoto = append([]byte(nil), b...) }

func updateProfileGroup[T any](ctx context.Context, e *Engine, action string, dogID uuid.UUID, get func(*model.PersistentDog) T, set func(*model.PersistentDog, T), val T, fields map[string]any, detail string) *Operation {
	return e.submit(ctx, mutation{
		action: action,
		dogID:  dogID,
		target: dogID,
		detail: detail,
		apply:  func() (func(), error) { return updateDog(e, dogID, get, set, val) },
		write: func(ctx context.Context) error {
			return e.patchRemote(ctx, dogRef(dogID), fields, nil)
		},
	})
}

// UpdateProfile replaces the identity fields of a profile on every cached visit of the dog.
func (e *Engine) UpdateProfile(ctx context.Context, dogID uuid.UUID, p ProfileDetails) *Operation {
	if model.NormalizeName(p.Name) == "" {
		return failedOperation(dogID, fmt.Errorf("dog name is required: %w", errs.ErrValidation))
	}
	fields, err := remote.Encode(p)
	if err != nil {
		return failedOperation(dogID, err)
	}
	return updateProfileGroup(ctx, e, model.ActionUpdateProfile, dogID, profileOf, setProfile, p, fields, "profile updated")
}

// UpdateVaccinations replaces the vaccination list.
func (e *Engine) UpdateVaccinations(ctx context.Context, dogID uuid.UUID, v []model.Vaccination) *Operation {
	v = append([]model.Vaccination(nil), v...)
	fields := map[string]any{"vaccinations": v}
	return updateProfileGroup(ctx, e, model.ActionUpdateVaccinations, dogID, vaccinationsOf, setVaccinations, v, fields,
		fmt.Sprintf("%d vaccinations", len(v)))
}

// UpdateMedicationCatalog replaces the medication catalog. Entries without an id get one.
func (e *Engine) UpdateMedicationCatalog(ctx context.Context, dogID uuid.UUID, meds []model.Medication) *Operation {
	meds = append([]model.Medication(nil), meds...)
	for i := range meds {
		if meds[i].ID == uuid.Nil {
			meds[i].ID = newID()
		}
		if meds[i].Type == "" {
			meds[i].Type = model.MedicationDaily
		}
	}
	fields := map[string]any{"medications": meds}
	return updateProfileGroup(ctx, e, model.ActionUpdateCatalog, dogID, catalogOf, setCatalog, meds, fields,
		fmt.Sprintf("%d catalog medications", len(meds)))
}

// UpdatePhoto replaces the profile photo. An empty photo clears it.
func (e *Engine) UpdatePhoto(ctx context.Context, dogID uuid.UUID, photo []byte) *Operation {
	photo = append([]byte(nil), photo...)
	fields := map[string]any{"profile_photo": photo}
	return updateProfileGroup(ctx, e, model.ActionUpdatePhoto, dogID, photoOf, setPhoto, photo, fields,
		fmt.Sprintf("photo %d bytes", len(photo)))
}
