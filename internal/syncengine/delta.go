package syncengine

import (
	"fmt"
	"reflect"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/kennelsync/internal/cache"
	"github.com/and161185/kennelsync/internal/errs"
	"github.com/and161185/kennelsync/internal/model"
)

// Local deltas and their inverses. Everything here runs on the owner goroutine.

type target struct {
	c       *cache.Collection
	history bool
}

// targets lists the collections a delta applies to: present, plus history when loaded.
func (e *Engine) targets() []target {
	ts := []target{{c: &e.cache.Present}}
	if e.cache.History.Loaded() {
		ts = append(ts, target{c: &e.cache.History.Collection, history: true})
	}
	return ts
}

// live reports whether an undo step may still touch t. A history that was
// invalidated since the apply is left alone.
func (e *Engine) live(t target) bool { return !t.history || e.cache.History.Loaded() }

func notCached(kind string, id uuid.UUID) error {
	return fmt.Errorf("%s %s not in local cache: %w", kind, id, errs.ErrRecordNotFound)
}

// insertEntry adds a new visit entry. Inverse: remove it by id.
func (e *Engine) insertEntry(d model.DogWithVisit) func() {
	ts := e.targets()
	for _, t := range ts {
		t.c.Upsert(d)
	}
	return func() {
		for _, t := range ts {
			if e.live(t) {
				t.c.Remove(d.ID())
			}
		}
	}
}

// softDeleteEntry drops a visit from present and flags it in history.
// Inverse: re-insert at the former index and clear the flag if still set.
func (e *Engine) softDeleteEntry(id uuid.UUID) (func(), error) {
	removed, idx, ok := e.cache.Present.Remove(id)
	flagged := false
	if e.cache.History.Loaded() {
		flagged = e.cache.History.Update(id, func(d *model.DogWithVisit) { d.Visit.IsDeleted = true })
	}
	if !ok && !flagged {
		return nil, notCached("visit", id)
	}
	return func() {
		if ok {
			e.cache.Present.InsertAt(idx, removed)
		}
		if flagged && e.cache.History.Loaded() {
			e.cache.History.Update(id, func(d *model.DogWithVisit) { d.Visit.IsDeleted = false })
		}
	}, nil
}

type removal struct {
	d   model.DogWithVisit
	idx int
}

// removeDogEntries drops every entry of a profile from all collections.
// Inverse: re-insert each at its former index.
func (e *Engine) removeDogEntries(dogID uuid.UUID) (func(), error) {
	type step struct {
		t       target
		removed []removal
	}
	var steps []step
	total := 0
	for _, t := range e.targets() {
		var rs []removal // ascending index order
		for _, d := range t.c.FindByDog(dogID) {
			rs = append(rs, removal{d: d, idx: t.c.Index(d.ID())})
		}
		// remove from the back so recorded indexes stay valid
		for i := len(rs) - 1; i >= 0; i-- {
			t.c.Remove(rs[i].d.ID())
		}
		total += len(rs)
		steps = append(steps, step{t: t, removed: rs})
	}
	if total == 0 {
		return nil, notCached("dog", dogID)
	}
	return func() {
		for _, s := range steps {
			if !e.live(s.t) {
				continue
			}
			for _, r := range s.removed {
				s.t.c.InsertAt(r.idx, r.d)
			}
		}
	}, nil
}

// updateVisit sets one visit field group. Inverse: restore the previous value
// in every entry that still holds the value written here.
func updateVisit[T any](e *Engine, id uuid.UUID, get func(*model.Visit) T, set func(*model.Visit, T), val T) (func(), error) {
	type step struct {
		t            target
		old, written T
	}
	var steps []step
	for _, t := range e.targets() {
		t.c.Update(id, func(d *model.DogWithVisit) {
			old := get(&d.Visit)
			set(&d.Visit, val)
			steps = append(steps, step{t: t, old: old, written: get(&d.Visit)})
		})
	}
	if len(steps) == 0 {
		return nil, notCached("visit", id)
	}
	return func() {
		for _, s := range steps {
			if !e.live(s.t) {
				continue
			}
			s.t.c.Update(id, func(d *model.DogWithVisit) {
				if reflect.DeepEqual(get(&d.Visit), s.written) {
					set(&d.Visit, s.old)
				}
			})
		}
	}, nil
}

// updateDog sets one profile field group on every entry of the dog.
// Inverse: restore per entry, compare-and-restore like updateVisit.
func updateDog[T any](e *Engine, dogID uuid.UUID, get func(*model.PersistentDog) T, set func(*model.PersistentDog, T), val T) (func(), error) {
	type step struct {
		t            target
		visitID      uuid.UUID
		old, written T
	}
	var steps []step
	for _, t := range e.targets() {
		for _, d := range t.c.FindByDog(dogID) {
			vid := d.ID()
			t.c.Update(vid, func(d *model.DogWithVisit) {
				old := get(&d.Dog)
				set(&d.Dog, val)
				steps = append(steps, step{t: t, visitID: vid, old: old, written: get(&d.Dog)})
			})
		}
	}
	if len(steps) == 0 {
		return nil, notCached("dog", dogID)
	}
	return func() {
		for _, s := range steps {
			if !e.live(s.t) {
				continue
			}
			s.t.c.Update(s.visitID, func(d *model.DogWithVisit) {
				if reflect.DeepEqual(get(&d.Dog), s.written) {
					set(&d.Dog, s.old)
				}
			})
		}
	}, nil
}

// childKind describes one per-visit record collection.
type childKind[T any] struct {
	name  string
	slice func(*model.Visit) *[]T
	id    func(T) uuid.UUID
}

var (
	feedings = childKind[model.FeedingRecord]{
		name:  "feeding record",
		slice: func(v *model.Visit) *[]model.FeedingRecord { return &v.Feedings },
		id:    func(r model.FeedingRecord) uuid.UUID { return r.ID },
	}
	medications = childKind[model.MedicationRecord]{
		name:  "medication record",
		slice: func(v *model.Visit) *[]model.MedicationRecord { return &v.MedicationRecords },
		id:    func(r model.MedicationRecord) uuid.UUID { return r.ID },
	}
	potties = childKind[model.PottyRecord]{
		name:  "potty record",
		slice: func(v *model.Visit) *[]model.PottyRecord { return &v.PottyRecords },
		id:    func(r model.PottyRecord) uuid.UUID { return r.ID },
	}
	doses = childKind[model.ScheduledMedication]{
		name:  "scheduled medication",
		slice: func(v *model.Visit) *[]model.ScheduledMedication { return &v.ScheduledMedications },
		id:    func(r model.ScheduledMedication) uuid.UUID { return r.ID },
	}
)

func indexOf[T any](k childKind[T], list []T, id uuid.UUID) int {
	for i := range list {
		if k.id(list[i]) == id {
			return i
		}
	}
	return -1
}

// upsertChild replaces the record with the same id or appends it.
func upsertChild[T any](k childKind[T], v *model.Visit, rec T) {
	s := k.slice(v)
	if i := indexOf(k, *s, k.id(rec)); i >= 0 {
		(*s)[i] = rec
		return
	}
	*s = append(*s, rec)
}

// dropChild removes the record and returns its former index, or -1.
func dropChild[T any](k childKind[T], v *model.Visit, id uuid.UUID) (T, int) {
	var zero T
	s := k.slice(v)
	i := indexOf(k, *s, id)
	if i < 0 {
		return zero, -1
	}
	rec := (*s)[i]
	*s = append((*s)[:i], (*s)[i+1:]...)
	return rec, i
}

// appendChild adds rec to the visit. Inverse: remove that record by id.
func appendChild[T any](e *Engine, k childKind[T], visitID uuid.UUID, rec T) (func(), error) {
	var touched []target
	for _, t := range e.targets() {
		if t.c.Update(visitID, func(d *model.DogWithVisit) { upsertChild(k, &d.Visit, rec) }) {
			touched = append(touched, t)
		}
	}
	if len(touched) == 0 {
		return nil, notCached("visit", visitID)
	}
	id := k.id(rec)
	return func() {
		for _, t := range touched {
			if e.live(t) {
				t.c.Update(visitID, func(d *model.DogWithVisit) { dropChild(k, &d.Visit, id) })
			}
		}
	}, nil
}

// removeChild deletes a record from the visit. Inverse: re-insert it at its former index.
func removeChild[T any](e *Engine, k childKind[T], visitID, id uuid.UUID) (func(), error) {
	type step struct {
		t   target
		rec T
		idx int
	}
	var steps []step
	for _, t := range e.targets() {
		t.c.Update(visitID, func(d *model.DogWithVisit) {
			if rec, idx := dropChild(k, &d.Visit, id); idx >= 0 {
				steps = append(steps, step{t: t, rec: rec, idx: idx})
			}
		})
	}
	if len(steps) == 0 {
		return nil, notCached(k.name, id)
	}
	return func() {
		for _, s := range steps {
			if !e.live(s.t) {
				continue
			}
			s.t.c.Update(visitID, func(d *model.DogWithVisit) {
				list := k.slice(&d.Visit)
				if indexOf(k, *list, id) >= 0 {
					return
				}
				i := min(s.idx, len(*list))
				*list = append(*list, s.rec)
				copy((*list)[i+1:], (*list)[i:])
				(*list)[i] = s.rec
			})
		}
	}, nil
}
