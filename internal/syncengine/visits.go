package syncengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/kennelsync/internal/errs"
	"github.com/and161185/kennelsync/internal/model"
	"github.com/and161185/kennelsync/internal/remote"
)

// VisitDetails is the editable stay field group.
type VisitDetails struct {
	IsBoarding          bool       `json:"is_boarding"`
	BoardingEndAt       *time.Time `json:"boarding_end_at"`
	IsDaycareFed        bool       `json:"is_daycare_fed"`
	NeedsWalking        bool       `json:"needs_walking"`
	WalkingNotes        string     `json:"walking_notes"`
	Notes               string     `json:"notes"`
	SpecialInstructions string     `json:"special_instructions"`
}

func detailsOf(v *model.Visit) VisitDetails {
	return VisitDetails{
		IsBoarding:          v.IsBoarding,
		BoardingEndAt:       cloneTime(v.BoardingEndAt),
		IsDaycareFed:        v.IsDaycareFed,
		NeedsWalking:        v.NeedsWalking,
		WalkingNotes:        v.WalkingNotes,
		Notes:               v.Notes,
		SpecialInstructions: v.SpecialInstructions,
	}
}

func setDetails(v *model.Visit, d VisitDetails) {
	v.IsBoarding = d.IsBoarding
	v.BoardingEndAt = cloneTime(d.BoardingEndAt)
	v.IsDaycareFed = d.IsDaycareFed
	v.NeedsWalking = d.NeedsWalking
	v.WalkingNotes = d.WalkingNotes
	v.Notes = d.Notes
	v.SpecialInstructions = d.SpecialInstructions
}

type boarding struct {
	IsBoarding    bool       `json:"is_boarding"`
	BoardingEndAt *time.Time `json:"boarding_end_at"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func newID() uuid.UUID { return uuid.Must(uuid.NewV4()) }

func visitRef(id uuid.UUID) remote.Ref { return remote.Ref{Type: remote.TypeVisit, ID: id} }
func dogRef(id uuid.UUID) remote.Ref   { return remote.Ref{Type: remote.TypePersistentDog, ID: id} }

// CheckInRequest describes a new stay. A zero Dog.ID registers a new profile
// unless a cached profile has the same match key.
type CheckInRequest struct {
	Dog       model.PersistentDog
	ArrivalAt time.Time // zero means now
	Details   VisitDetails
}

// findProfile looks a cached profile up by id or, when id is nil, by match key. Loop only.
func (e *Engine) findProfile(id uuid.UUID, key string) (model.PersistentDog, bool) {
	for _, t := range e.targets() {
		for _, d := range t.c.Snapshot() {
			if (id != uuid.Nil && d.DogID() == id) || (id == uuid.Nil && d.Dog.MatchKey() == key) {
				return d.Dog, true
			}
		}
	}
	return model.PersistentDog{}, false
}

func (e *Engine) hasActiveVisit(dogID uuid.UUID, now time.Time) bool {
	for _, t := range e.targets() {
		for _, d := range t.c.FindByDog(dogID) {
			if d.IsCurrentlyPresent(now) {
				return true
			}
		}
	}
	return false
}

// CheckIn starts a visit. It fails with ErrAlreadyPresent if the dog already
// has an active visit. Operation.Target is the new visit id.
func (e *Engine) CheckIn(ctx context.Context, req CheckInRequest) *Operation {
	now := e.now()
	arrival := req.ArrivalAt
	if arrival.IsZero() {
		arrival = now
	}
	visitID := newID()
	var (
		entry  model.DogWithVisit
		newDog bool
	)
	m := mutation{
		action:  model.ActionCheckIn,
		visitID: visitID,
		target:  visitID,
		detail:  "checked in at " + arrival.Format(time.RFC3339),
	}
	m.apply = func() (func(), error) {
		dog := req.Dog.Clone()
		if dog.ID == uuid.Nil && model.NormalizeName(dog.Name) == "" {
			return nil, fmt.Errorf("dog name is required: %w", errs.ErrValidation)
		}
		if cached, ok := e.findProfile(dog.ID, dog.MatchKey()); ok {
			dog = cached
		} else if dog.ID == uuid.Nil {
			dog.ID = newID()
			dog.CreatedAt = now
			newDog = true
		}
		if e.hasActiveVisit(dog.ID, now) {
			return nil, fmt.Errorf("%s: %w", dog.Name, errs.ErrAlreadyPresent)
		}
		at := arrival
		dog.LastVisitAt = &at
		visit := model.Visit{ID: visitID, DogID: dog.ID, ArrivalAt: arrival, CreatedAt: now}
		setDetails(&visit, req.Details)
		entry = model.DogWithVisit{Dog: dog, Visit: visit}

		undoLast, _ := updateDog(e, dog.ID, lastVisitOf, setLastVisit, &at)
		undoInsert := e.insertEntry(entry)
		return func() {
			undoInsert()
			if undoLast != nil {
				undoLast()
			}
		}, nil
	}
	m.write = func(ctx context.Context) error {
		if newDog {
			r, err := remote.DogRecord(entry.Dog)
			if err == nil {
				err = e.createRemote(ctx, r)
			}
			if err != nil {
				return err
			}
		}
		r, err := remote.VisitRecord(entry.Visit)
		if err == nil {
			err = e.createRemote(ctx, r)
		}
		if err != nil {
			if newDog {
				if derr := e.store.Delete(ctx, dogRef(entry.Dog.ID)); derr != nil {
					e.log.Warn("remove orphaned profile", zap.Stringer("dog", entry.Dog.ID), zap.Error(derr))
				}
			}
			return err
		}
		if !newDog {
			set := map[string]any{"last_visit_at": entry.Dog.LastVisitAt}
			if err := e.patchRemote(ctx, dogRef(entry.Dog.ID), set, nil); err != nil {
				// the visit exists remotely; the profile timestamp is derived data
				e.log.Debug("update last visit time", zap.Stringer("dog", entry.Dog.ID), zap.Error(err))
			}
		}
		return nil
	}
	return e.submit(ctx, m)
}

func lastVisitOf(d *model.PersistentDog) *time.Time     { return cloneTime(d.LastVisitAt) }
func setLastVisit(d *model.PersistentDog, t *time.Time) { d.LastVisitAt = cloneTime(t) }

func departureOf(v *model.Visit) *time.Time     { return cloneTime(v.DepartureAt) }
func setDeparture(v *model.Visit, t *time.Time) { v.DepartureAt = cloneTime(t) }

func boardingOf(v *model.Visit) boarding { return boarding{v.IsBoarding, cloneTime(v.BoardingEndAt)} }
func setBoarding(v *model.Visit, b boarding) {
	v.IsBoarding, v.BoardingEndAt = b.IsBoarding, cloneTime(b.BoardingEndAt)
}

// CheckOut records the departure of an active visit. A zero at means now.
func (e *Engine) CheckOut(ctx context.Context, visitID uuid.UUID, at time.Time) *Operation {
	if at.IsZero() {
		at = e.now()
	}
	return e.submit(ctx, mutation{
		action:  model.ActionCheckOut,
		visitID: visitID,
		target:  visitID,
		detail:  "checked out at " + at.Format(time.RFC3339),
		apply: func() (func(), error) {
			d, ok := e.cache.Present.Find(visitID)
			if !ok {
				return nil, notCached("visit", visitID)
			}
			if d.Visit.DepartureAt != nil {
				return nil, fmt.Errorf("visit %s already checked out: %w", visitID, errs.ErrValidation)
			}
			if at.Before(d.Visit.ArrivalAt) {
				return nil, fmt.Errorf("departure before arrival: %w", errs.ErrValidation)
			}
			return updateVisit(e, visitID, departureOf, setDeparture, &at)
		},
		write: func(ctx context.Context) error {
			return e.patchRemote(ctx, visitRef(visitID), map[string]any{"departure_at": at}, nil)
		},
	})
}

// UpdateVisitDetails replaces the editable stay fields.
func (e *Engine) UpdateVisitDetails(ctx context.Context, visitID uuid.UUID, d VisitDetails) *Operation {
	return e.submit(ctx, mutation{
		action:  model.ActionUpdateVisit,
		visitID: visitID,
		target:  visitID,
		detail:  "visit details updated",
		apply: func() (func(), error) {
			return updateVisit(e, visitID, detailsOf, setDetails, d)
		},
		write: func(ctx context.Context) error {
			set, err := remote.Encode(d)
			if err != nil {
				return err
			}
			return e.patchRemote(ctx, visitRef(visitID), set, nil)
		},
	})
}

// ExtendBoarding turns the visit into a boarding stay ending at until.
func (e *Engine) ExtendBoarding(ctx context.Context, visitID uuid.UUID, until time.Time) *Operation {
	b := boarding{IsBoarding: true, BoardingEndAt: &until}
	return e.submit(ctx, mutation{
		action:  model.ActionExtendBoarding,
		visitID: visitID,
		target:  visitID,
		detail:  "boarding until " + until.Format("2006-01-02"),
		apply: func() (func(), error) {
			if d, ok := e.subject(visitID, uuid.Nil); ok && until.Before(d.Visit.ArrivalAt) {
				return nil, fmt.Errorf("boarding end before arrival: %w", errs.ErrValidation)
			}
			return updateVisit(e, visitID, boardingOf, setBoarding, b)
		},
		write: func(ctx context.Context) error {
			set, err := remote.Encode(b)
			if err != nil {
				return err
			}
			return e.patchRemote(ctx, visitRef(visitID), set, nil)
		},
	})
}

// SoftDeleteVisit hides a visit: it leaves present and stays in history flagged deleted.
func (e *Engine) SoftDeleteVisit(ctx context.Context, visitID uuid.UUID) *Operation {
	return e.submit(ctx, mutation{
		action:  model.ActionSoftDelete,
		visitID: visitID,
		target:  visitID,
		detail:  "visit deleted",
		apply:   func() (func(), error) { return e.softDeleteEntry(visitID) },
		write: func(ctx context.Context) error {
			return e.patchRemote(ctx, visitRef(visitID), nil, remote.Bool(true))
		},
	})
}

// PermanentDeleteDog removes a profile with every visit and record, locally and remotely.
func (e *Engine) PermanentDeleteDog(ctx context.Context, dogID uuid.UUID) *Operation {
	return e.submit(ctx, mutation{
		action: model.ActionPermanentDelete,
		dogID:  dogID,
		target: dogID,
		detail: "profile and all visits permanently deleted",
		apply:  func() (func(), error) { return e.removeDogEntries(dogID) },
		write:  func(ctx context.Context) error { return e.purgeRemote(ctx, dogID) },
	})
}

// purgeRemote hard-deletes children, then visits, then the profile.
// Already-missing records count as deleted.
func (e *Engine) purgeRemote(ctx context.Context, dogID uuid.UUID) error {
	visits, err := e.store.Query(ctx, remote.TypeVisit, remote.Predicate{
		Where:          map[string]string{"dog_id": dogID.String()},
		IncludeDeleted: true,
	})
	if err != nil {
		return err
	}
	for _, v := range visits {
		for _, ct := range remote.ChildTypes {
			children, err := e.store.Query(ctx, ct, remote.Predicate{
				Where:          map[string]string{"visit_id": v.ID.String()},
				IncludeDeleted: true,
			})
			if err != nil {
				return err
			}
			for _, c := range children {
				if err := ignoreNotFound(e.store.Delete(ctx, c.Ref())); err != nil {
					return err
				}
			}
		}
		if err := ignoreNotFound(e.store.Delete(ctx, v.Ref())); err != nil {
			return err
		}
	}
	return ignoreNotFound(e.store.Delete(ctx, dogRef(dogID)))
}

func ignoreNotFound(err error) error {
	if errors.Is(err, errs.ErrRecordNotFound) {
		return nil
	}
	return err
}
