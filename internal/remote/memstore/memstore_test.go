package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/kennelsync/internal/errs"
	"github.com/and161185/kennelsync/internal/remote"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestStore_CreateQueryUpdate(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := New(WithClock(clk.now))

	id := uuid.Must(uuid.NewV4())
	rec, err := s.Create(ctx, remote.Record{ID: id, Type: remote.TypeVisit, Fields: map[string]any{"notes": "a"}, ModifiedBy: "u1"})
	require.NoError(t, err)
	require.EqualValues(t, 1, rec.ModificationCount)
	require.Equal(t, clk.t, rec.CreatedAt)

	_, err = s.Create(ctx, remote.Record{ID: id, Type: remote.TypeVisit})
	require.ErrorIs(t, err, errs.ErrAlreadyExists)

	clk.t = clk.t.Add(time.Minute)
	rec.Fields["notes"] = "b"
	up, err := s.Update(ctx, rec)
	require.NoError(t, err)
	require.EqualValues(t, 2, up.ModificationCount)
	require.Equal(t, "b", up.Fields["notes"])
	require.Equal(t, clk.t, up.UpdatedAt)

	got, err := s.Query(ctx, remote.TypeVisit, remote.ByIDs(id))
	require.NoError(t, err)
	require.Len(t, got, 1)

	// returned records are copies
	got[0].Fields["notes"] = "mutated"
	again, _ := s.Query(ctx, remote.TypeVisit, remote.Predicate{})
	require.Equal(t, "b", again[0].Fields["notes"])
}

func TestStore_PatchAndTombstones(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := New(WithClock(clk.now))

	id := uuid.Must(uuid.NewV4())
	_, err := s.Create(ctx, remote.Record{ID: id, Type: remote.TypePottyRecord, Fields: map[string]any{"visit_id": "v", "notes": "x"}})
	require.NoError(t, err)
	since := clk.t

	clk.t = clk.t.Add(time.Second)
	out, err := s.Patch(ctx, remote.Patch{Ref: remote.Ref{Type: remote.TypePottyRecord, ID: id}, Deleted: remote.Bool(true)})
	require.NoError(t, err)
	require.True(t, out.IsDeleted)
	require.Equal(t, "x", out.Fields["notes"])

	live, err := s.Query(ctx, remote.TypePottyRecord, remote.ByField("visit_id", "v"))
	require.NoError(t, err)
	require.Empty(t, live)

	changed, err := s.QueryModifiedSince(ctx, remote.TypePottyRecord, since)
	require.NoError(t, err)
	require.Len(t, changed, 1)
	require.True(t, changed[0].IsDeleted)

	n, err := s.Count(ctx, remote.TypePottyRecord, remote.Predicate{IncludeDeleted: true})
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestStore_DeleteAndNotFound(t *testing.T) {
	ctx := context.Background()
	s := New()
	ref := remote.Ref{Type: remote.TypePersistentDog, ID: uuid.Must(uuid.NewV4())}

	require.ErrorIs(t, s.Delete(ctx, ref), errs.ErrRecordNotFound)
	_, err := s.Patch(ctx, remote.Patch{Ref: ref})
	require.ErrorIs(t, err, errs.ErrRecordNotFound)

	_, err = s.Create(ctx, remote.Record{ID: ref.ID, Type: ref.Type})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, ref))
	require.Equal(t, 0, s.Len(remote.TypePersistentDog))
}

func TestStore_Fault(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	s := New(WithFault(func(op Op, ref remote.Ref) error {
		if op == OpCreate && ref.Type == remote.TypeVisit {
			return boom
		}
		return nil
	}))

	_, err := s.Create(ctx, remote.Record{Type: remote.TypeVisit})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 0, s.Len(remote.TypeVisit))

	_, err = s.Create(ctx, remote.Record{Type: remote.TypePersistentDog})
	require.NoError(t, err)

	s.SetFault(nil)
	_, err = s.Create(ctx, remote.Record{Type: remote.TypeVisit})
	require.NoError(t, err)
}
