package cache

import (
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/kennelsync/internal/model"
)

var t0 = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func entry(name string, dogID uuid.UUID, arrival time.Time) model.DogWithVisit {
	return model.DogWithVisit{
		Dog:   model.PersistentDog{ID: dogID, Name: name},
		Visit: model.Visit{ID: uuid.Must(uuid.NewV4()), DogID: dogID, ArrivalAt: arrival},
	}
}

func TestCollection_UpsertRemoveInsertAt(t *testing.T) {
	var c Collection
	a := entry("a", uuid.Must(uuid.NewV4()), t0)
	b := entry("b", uuid.Must(uuid.NewV4()), t0)
	d := entry("d", uuid.Must(uuid.NewV4()), t0)
	c.Upsert(a)
	c.Upsert(b)
	c.Upsert(d)

	removed, idx, ok := c.Remove(b.ID())
	require.True(t, ok)
	require.Equal(t, 1, idx)
	require.Equal(t, "b", removed.Dog.Name)
	require.Equal(t, 2, c.Len())

	c.InsertAt(idx, removed)
	require.Equal(t, 1, c.Index(b.ID()))

	b.Dog.Name = "bb"
	c.Upsert(b)
	require.Equal(t, 3, c.Len())
	got, ok := c.Find(b.ID())
	require.True(t, ok)
	require.Equal(t, "bb", got.Dog.Name)

	_, _, ok = c.Remove(uuid.Must(uuid.NewV4()))
	require.False(t, ok)
}

func TestCollection_InsertAtClamps(t *testing.T) {
	var c Collection
	a := entry("a", uuid.Must(uuid.NewV4()), t0)
	c.InsertAt(10, a)
	b := entry("b", uuid.Must(uuid.NewV4()), t0)
	c.InsertAt(-1, b)
	require.Equal(t, 0, c.Index(b.ID()))
	require.Equal(t, 1, c.Index(a.ID()))
}

func TestCollection_DogWideOps(t *testing.T) {
	var c Collection
	dog := uuid.Must(uuid.NewV4())
	c.Upsert(entry("max", dog, t0))
	c.Upsert(entry("max", dog, t0.Add(-48*time.Hour)))
	c.Upsert(entry("other", uuid.Must(uuid.NewV4()), t0))

	n := c.UpdateDog(dog, func(d *model.PersistentDog) { d.Allergies = "corn" })
	require.Equal(t, 2, n)
	for _, it := range c.FindByDog(dog) {
		require.Equal(t, "corn", it.Dog.Allergies)
	}

	require.Equal(t, 2, c.RemoveDog(dog))
	require.Equal(t, 1, c.Len())
}

func TestCollection_SnapshotIsSortedCopy(t *testing.T) {
	var c Collection
	old := entry("old", uuid.Must(uuid.NewV4()), t0.Add(-time.Hour))
	recent := entry("new", uuid.Must(uuid.NewV4()), t0)
	c.Upsert(old)
	c.Upsert(recent)

	snap := c.Snapshot()
	require.Equal(t, "new", snap[0].Dog.Name)
	require.Equal(t, "old", snap[1].Dog.Name)

	snap[0].Dog.Name = "changed"
	got, _ := c.Find(recent.ID())
	require.Equal(t, "new", got.Dog.Name)
}

func TestHistory_Lifecycle(t *testing.T) {
	s := New()
	require.False(t, s.History.Loaded())
	require.False(t, s.History.Expired(t0, time.Minute))

	s.History.Upsert(entry("x", uuid.Must(uuid.NewV4()), t0))
	s.History.MarkLoaded(t0)
	require.True(t, s.History.Loaded())
	require.False(t, s.History.Expired(t0.Add(30*time.Second), time.Minute))
	require.True(t, s.History.Expired(t0.Add(2*time.Minute), time.Minute))

	visits := 0
	s.Each(func(c *Collection) { visits++ })
	require.Equal(t, 2, visits)

	s.History.Invalidate()
	require.False(t, s.History.Loaded())
	require.Equal(t, 0, s.History.Len())

	visits = 0
	s.Each(func(c *Collection) { visits++ })
	require.Equal(t, 1, visits)
}
