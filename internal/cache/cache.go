// Package cache holds the client's in-memory view of dogs and visits.
//
// Nothing here is safe for concurrent use; the sync engine owns the store
// from a single goroutine and hands out deep-copied snapshots.
package cache

import (
	"sort"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/kennelsync/internal/model"
)

// Collection is an ordered set of DogWithVisit keyed by visit id.
type Collection struct {
	items []model.DogWithVisit
}

// Len returns the number of entries.
func (c *Collection) Len() int { return len(c.items) }

// Index returns the position of id, or -1.
func (c *Collection) Index(id uuid.UUID) int {
	for i := range c.items {
		if c.items[i].ID() == id {
			return i
		}
	}
	return -1
}

// Find returns a deep copy of the entry with visit id.
func (c *Collection) Find(id uuid.UUID) (model.DogWithVisit, bool) {
	if i := c.Index(id); i >= 0 {
		return c.items[i].Clone(), true
	}
	return model.DogWithVisit{}, false
}

// FindByDog returns copies of every entry of the given profile.
func (c *Collection) FindByDog(dogID uuid.UUID) []model.DogWithVisit {
	var out []model.DogWithVisit
	for i := range c.items {
		if c.items[i].DogID() == dogID {
			out = append(out, c.items[i].Clone())
		}
	}
	return out
}

// Upsert replaces the entry with the same visit id in place, or appends.
func (c *Collection) Upsert(d model.DogWithVisit) {
	if i := c.Index(d.ID()); i >= 0 {
		c.items[i] = d.Clone()
		return
	}
	c.items = append(c.items, d.Clone())
}

// InsertAt puts d at position i, clamped to the collection bounds.
// An existing entry with the same id is replaced instead.
func (c *Collection) InsertAt(i int, d model.DogWithVisit) {
	if j := c.Index(d.ID()); j >= 0 {
		c.items[j] = d.Clone()
		return
	}
	if i < 0 {
		i = 0
	}
	if i > len(c.items) {
		i = len(c.items)
	}
	c.items = append(c.items, model.DogWithVisit{})
	copy(c.items[i+1:], c.items[i:])
	c.items[i] = d.Clone()
}

// Remove deletes the entry and returns it with its former position.
func (c *Collection) Remove(id uuid.UUID) (model.DogWithVisit, int, bool) {
	i := c.Index(id)
	if i < 0 {
		return model.DogWithVisit{}, -1, false
	}
	d := c.items[i]
	c.items = append(c.items[:i], c.items[i+1:]...)
	return d, i, true
}

// RemoveDog deletes every entry of the profile.
func (c *Collection) RemoveDog(dogID uuid.UUID) int {
	kept := c.items[:0]
	n := 0
	for _, it := range c.items {
		if it.DogID() == dogID {
			n++
			continue
		}
		kept = append(kept, it)
	}
	clear(c.items[len(kept):])
	c.items = kept
	return n
}

// Update applies fn to the entry in place. Reports whether it existed.
func (c *Collection) Update(id uuid.UUID, fn func(*model.DogWithVisit)) bool {
	i := c.Index(id)
	if i < 0 {
		return false
	}
	fn(&c.items[i])
	return true
}

// UpdateDog applies fn to the profile of every entry of dogID.
func (c *Collection) UpdateDog(dogID uuid.UUID, fn func(*model.PersistentDog)) int {
	n := 0
	for i := range c.items {
		if c.items[i].DogID() == dogID {
			fn(&c.items[i].Dog)
			n++
		}
	}
	return n
}

// Replace swaps the whole content.
func (c *Collection) Replace(items []model.DogWithVisit) {
	c.items = make([]model.DogWithVisit, 0, len(items))
	for _, it := range items {
		c.items = append(c.items, it.Clone())
	}
}

// Clear drops every entry.
func (c *Collection) Clear() { c.items = nil }

// Snapshot returns deep copies ordered by arrival, newest first.
func (c *Collection) Snapshot() []model.DogWithVisit {
	out := make([]model.DogWithVisit, 0, len(c.items))
	for _, it := range c.items {
		out = append(out, it.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := out[i].Visit.ArrivalAt, out[j].Visit.ArrivalAt
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return out[i].ID().String() < out[j].ID().String()
	})
	return out
}

// History is the lazily loaded all-visits collection.
type History struct {
	Collection
	loaded   bool
	loadedAt time.Time
}

// Loaded reports whether the collection has been populated.
func (h *History) Loaded() bool { return h.loaded }

// LoadedAt is the time of the last full or incremental load.
func (h *History) LoadedAt() time.Time { return h.loadedAt }

// MarkLoaded records a successful load at t.
func (h *History) MarkLoaded(t time.Time) {
	h.loaded = true
	h.loadedAt = t
}

// Expired reports whether the loaded data is older than ttl. Unloaded history never expires.
func (h *History) Expired(now time.Time, ttl time.Duration) bool {
	return h.loaded && ttl > 0 && now.Sub(h.loadedAt) > ttl
}

// Invalidate drops the content and the loaded flag.
func (h *History) Invalidate() {
	h.Clear()
	h.loaded = false
	h.loadedAt = time.Time{}
}

// Store groups the present-dogs collection and the history collection.
type Store struct {
	Present Collection
	History History
}

// New returns an empty store.
func New() *Store { return &Store{} }

// Each calls fn for the present collection and, when loaded, the history.
func (s *Store) Each(fn func(*Collection)) {
	fn(&s.Present)
	if s.History.Loaded() {
		fn(&s.History.Collection)
	}
}
