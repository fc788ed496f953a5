package dogmigration

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/kennelsync/internal/errs"
	"github.com/and161185/kennelsync/internal/localstate"
	"github.com/and161185/kennelsync/internal/model"
	"github.com/and161185/kennelsync/internal/remote"
	"github.com/and161185/kennelsync/internal/remote/memstore"
)

var base = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

type env struct {
	ctx   context.Context
	now   time.Time
	mem   *memstore.Store
	local *localstate.File
	seen  []Progress
	c     *Coordinator
}

func newEnv(t *testing.T) *env {
	t.Helper()
	en := &env{
		ctx:   context.Background(),
		now:   base.Add(365 * 24 * time.Hour),
		local: localstate.NewFile(afero.NewMemMapFs(), "/kennel/state.json"),
	}
	en.mem = memstore.New(memstore.WithClock(func() time.Time { return en.now }))
	en.c = New(en.mem, en.local, Config{
		Actor:    model.Actor{ID: "admin-1", Name: "Admin"},
		Logger:   zaptest.NewLogger(t),
		Observer: func(p Progress) { en.seen = append(en.seen, p) },
	})
	return en
}

// legacy stores l as if written at the given time and returns it as read back.
func (en *env) legacy(t *testing.T, at time.Time, l model.LegacyDog) model.LegacyDog {
	t.Helper()
	if l.ID == uuid.Nil {
		l.ID = uuid.Must(uuid.NewV4())
	}
	r, err := remote.LegacyRecord(l)
	require.NoError(t, err)
	saved := en.now
	en.now = at
	defer func() { en.now = saved }()
	created, err := en.mem.Create(en.ctx, r)
	require.NoError(t, err)
	out, err := remote.LegacyFromRecord(created)
	require.NoError(t, err)
	return out
}

// snapshot lists every record id per type, sorted.
func (en *env) snapshot(t *testing.T) map[remote.EntityType][]string {
	t.Helper()
	out := make(map[remote.EntityType][]string)
	types := append([]remote.EntityType{remote.TypePersistentDog, remote.TypeVisit}, remote.ChildTypes...)
	for _, typ := range types {
		recs, err := en.mem.Query(en.ctx, typ, remote.Predicate{IncludeDeleted: true})
		require.NoError(t, err)
		for _, r := range recs {
			out[typ] = append(out[typ], r.ID.String())
		}
		sort.Strings(out[typ])
	}
	return out
}

func maxStay(at time.Time) model.LegacyDog {
	dep := at.Add(8 * time.Hour)
	return model.LegacyDog{
		Name:        "Max",
		OwnerName:   "Sam Lee",
		OwnerPhone:  "555-0100",
		Allergies:   "beef",
		ArrivalAt:   at,
		DepartureAt: &dep,
		Feedings: []model.LegacyFeeding{
			{Timestamp: at.Add(time.Hour), Type: model.FeedingBreakfast},
			{Timestamp: at.Add(5 * time.Hour), Type: model.FeedingLunch},
		},
		PottyRecords: []model.LegacyPotty{{Timestamp: at.Add(2 * time.Hour), Type: model.PottyPee}},
	}
}

func TestRun_SplitsLegacyAggregates(t *testing.T) {
	en := newEnv(t)
	first := en.legacy(t, base, maxStay(base))

	second := maxStay(base.Add(48 * time.Hour))
	second.Name = "MAX " // same dog, sloppier spelling
	second.OwnerPhone = "(555) 0100"
	second.Allergies = "beef, chicken"
	second = en.legacy(t, base.Add(48*time.Hour), second)

	bella := en.legacy(t, base.Add(time.Hour), model.LegacyDog{
		Name: "Bella", OwnerName: "Ann", ArrivalAt: base.Add(time.Hour), IsDeleted: true,
	})

	rep, err := en.c.Run(en.ctx)
	require.NoError(t, err)
	require.Equal(t, Report{
		Legacy: 3, ProfilesCreated: 2, ProfilesMerged: 1, VisitsCreated: 3, Records: 6,
	}, rep)

	require.Equal(t, 2, en.mem.Len(remote.TypePersistentDog))
	require.Equal(t, 3, en.mem.Len(remote.TypeVisit))
	require.Equal(t, 4, en.mem.Len(remote.TypeFeedingRecord))
	require.Equal(t, 2, en.mem.Len(remote.TypePottyRecord))

	dogID := uuid.NewV5(Namespace, "dog:"+first.MatchKey())
	rec, ok := en.mem.Get(remote.Ref{Type: remote.TypePersistentDog, ID: dogID})
	require.True(t, ok)
	dog, err := remote.DogFromRecord(rec)
	require.NoError(t, err)
	require.Equal(t, "beef, chicken", dog.Allergies)
	require.Equal(t, "MAX ", dog.Name)
	require.NotNil(t, dog.LastVisitAt)
	require.True(t, dog.LastVisitAt.Equal(second.ArrivalAt))

	for _, l := range []model.LegacyDog{first, second} {
		vr, ok := en.mem.Get(remote.Ref{Type: remote.TypeVisit, ID: uuid.NewV5(Namespace, "visit:"+l.ID.String())})
		require.True(t, ok)
		v, err := remote.VisitFromRecord(vr)
		require.NoError(t, err)
		require.Equal(t, dogID, v.DogID)
		require.Equal(t, l.ID.String(), v.LegacyID)
		require.True(t, v.ArrivalAt.Equal(l.ArrivalAt))
	}
	bv, ok := en.mem.Get(remote.Ref{Type: remote.TypeVisit, ID: uuid.NewV5(Namespace, "visit:"+bella.ID.String())})
	require.True(t, ok)
	require.True(t, bv.IsDeleted)

	st, err := en.local.Load()
	require.NoError(t, err)
	require.Equal(t, localstate.CurrentSchemaVersion, st.SchemaVersion)

	require.Equal(t, Complete, en.c.Progress().Phase)
	require.NotEmpty(t, en.seen)
	require.Equal(t, InProgress, en.seen[0].Phase)
	for i := 1; i < len(en.seen); i++ {
		require.GreaterOrEqual(t, en.seen[i].Fraction, en.seen[i-1].Fraction)
	}
}

func TestRun_MatchesExistingProfile(t *testing.T) {
	en := newEnv(t)
	existing := model.PersistentDog{
		ID: uuid.Must(uuid.NewV4()), Name: "Max", OwnerName: "Sam Lee", OwnerPhone: "5550100", FeedingNotes: "slow eater",
	}
	r, err := remote.DogRecord(existing)
	require.NoError(t, err)
	en.now = base.Add(10 * 24 * time.Hour)
	_, err = en.mem.Create(en.ctx, r)
	require.NoError(t, err)

	// older than the profile: only the visit time is taken over
	l := en.legacy(t, base, maxStay(base))

	rep, err := en.c.Run(en.ctx)
	require.NoError(t, err)
	require.Zero(t, rep.ProfilesCreated)
	require.Equal(t, 1, rep.ProfilesMerged)

	require.Equal(t, 1, en.mem.Len(remote.TypePersistentDog))
	rec, ok := en.mem.Get(remote.Ref{Type: remote.TypePersistentDog, ID: existing.ID})
	require.True(t, ok)
	dog, err := remote.DogFromRecord(rec)
	require.NoError(t, err)
	require.Equal(t, "slow eater", dog.FeedingNotes)
	require.Empty(t, dog.Allergies)
	require.Equal(t, "admin-1", rec.ModifiedBy)

	vr, ok := en.mem.Get(remote.Ref{Type: remote.TypeVisit, ID: uuid.NewV5(Namespace, "visit:"+l.ID.String())})
	require.True(t, ok)
	require.Equal(t, existing.ID.String(), vr.Fields["dog_id"])
}

func TestRun_IsIdempotent(t *testing.T) {
	en := newEnv(t)
	en.legacy(t, base, maxStay(base))
	en.legacy(t, base, model.LegacyDog{Name: "Bella", OwnerName: "Ann", ArrivalAt: base})

	_, err := en.c.Run(en.ctx)
	require.NoError(t, err)
	once := en.snapshot(t)

	// force a second full pass over the same input
	require.NoError(t, en.local.SetSchemaVersion(localstate.LegacySchemaVersion))
	rep, err := en.c.Run(en.ctx)
	require.NoError(t, err)
	require.Zero(t, rep.ProfilesCreated)
	require.Zero(t, rep.VisitsCreated)
	require.Equal(t, 2, rep.VisitsSkipped)
	require.Equal(t, once, en.snapshot(t))
}

func TestRun_ResumesAfterPartialFailure(t *testing.T) {
	en := newEnv(t)
	en.legacy(t, base, maxStay(base))
	b := en.legacy(t, base.Add(time.Minute), model.LegacyDog{
		Name: "Bella", OwnerName: "Ann", ArrivalAt: base,
		Feedings: []model.LegacyFeeding{{Timestamp: base, Type: model.FeedingDinner}},
	})

	bellaVisit := uuid.NewV5(Namespace, "visit:"+b.ID.String())
	en.mem.SetFault(func(op memstore.Op, ref remote.Ref) error {
		if op == memstore.OpCreate && ref.ID == bellaVisit {
			return errs.ErrTransient
		}
		return nil
	})
	_, err := en.c.Run(en.ctx)
	require.ErrorIs(t, err, errs.ErrTransient)
	require.Equal(t, InProgress, en.c.Progress().Phase)
	needed, err := en.c.Needed()
	require.NoError(t, err)
	require.True(t, needed)

	en.mem.SetFault(nil)
	rep, err := en.c.Run(en.ctx)
	require.NoError(t, err)
	require.Equal(t, 1, rep.VisitsSkipped)
	require.Equal(t, 1, rep.VisitsCreated)
	require.Equal(t, Complete, en.c.Progress().Phase)

	require.Equal(t, 2, en.mem.Len(remote.TypePersistentDog))
	require.Equal(t, 2, en.mem.Len(remote.TypeVisit))
	require.Equal(t, 3, en.mem.Len(remote.TypeFeedingRecord))
}

func TestRun_AlreadyMigrated(t *testing.T) {
	en := newEnv(t)
	require.NoError(t, en.local.SetSchemaVersion(localstate.CurrentSchemaVersion))
	en.legacy(t, base, maxStay(base))

	rep, err := en.c.Run(en.ctx)
	require.NoError(t, err)
	require.Zero(t, rep.Legacy)
	require.Zero(t, en.mem.Len(remote.TypeVisit))
	require.Equal(t, Complete, en.c.Progress().Phase)
}

func TestCatalogIDs_Deterministic(t *testing.T) {
	meds := []model.Medication{{Name: "Apoquel"}, {ID: uuid.Must(uuid.NewV4()), Name: "Rimadyl", Type: model.MedicationScheduled}}
	a := catalogIDs("max|sam|555", meds)
	b := catalogIDs("max|sam|555", meds)
	require.Equal(t, a, b)
	require.NotEqual(t, uuid.Nil, a[0].ID)
	require.Equal(t, model.MedicationDaily, a[0].Type)
	require.Equal(t, meds[1], a[1])
	require.Equal(t, uuid.Nil, meds[0].ID)
}

func TestPhaseString(t *testing.T) {
	require.Equal(t, "not started", NotStarted.String())
	require.Equal(t, "complete", Complete.String())
}

func TestRun_ResumedRunMergesLikeCleanRun(t *testing.T) {
	run := func(t *testing.T, crash bool) model.PersistentDog {
		en := newEnv(t)
		first := maxStay(base)
		first = en.legacy(t, base, first)
		second := maxStay(base.Add(24 * time.Hour))
		second.Allergies = "chicken"
		en.legacy(t, base.Add(24*time.Hour), second)

		if crash {
			firstVisit := uuid.NewV5(Namespace, "visit:"+first.ID.String())
			en.mem.SetFault(func(op memstore.Op, ref remote.Ref) error {
				if op == memstore.OpCreate && ref.ID == firstVisit {
					return errs.ErrTransient
				}
				return nil
			})
			_, err := en.c.Run(en.ctx)
			require.ErrorIs(t, err, errs.ErrTransient)
			en.mem.SetFault(nil)
			en.now = en.now.Add(time.Hour)
		}
		_, err := en.c.Run(en.ctx)
		require.NoError(t, err)

		rec, ok := en.mem.Get(remote.Ref{Type: remote.TypePersistentDog, ID: uuid.NewV5(Namespace, "dog:"+first.MatchKey())})
		require.True(t, ok)
		dog, err := remote.DogFromRecord(rec)
		require.NoError(t, err)
		return dog
	}

	clean := run(t, false)
	resumed := run(t, true)
	require.Equal(t, "chicken", clean.Allergies)
	require.Equal(t, clean.Allergies, resumed.Allergies)
	require.NotNil(t, resumed.LegacyUpdatedAt)
	require.True(t, clean.LegacyUpdatedAt.Equal(*resumed.LegacyUpdatedAt))
	require.True(t, clean.LastVisitAt.Equal(*resumed.LastVisitAt))
}

func TestRun_ExistingProfileIsNotCountedAsCreated(t *testing.T) {
	en := newEnv(t)
	l := en.legacy(t, base, maxStay(base))
	dogID := uuid.NewV5(Namespace, "dog:"+l.MatchKey())
	visitID := uuid.NewV5(Namespace, "visit:"+l.ID.String())

	en.mem.SetFault(func(op memstore.Op, ref remote.Ref) error {
		if op == memstore.OpCreate && ref.ID == visitID {
			return errs.ErrTransient
		}
		return nil
	})
	rep, err := en.c.Run(en.ctx)
	require.ErrorIs(t, err, errs.ErrTransient)
	require.Equal(t, 1, rep.ProfilesCreated)
	en.mem.SetFault(nil)

	// renamed in between, so the rerun no longer finds it by match key
	_, err = en.mem.Patch(en.ctx, remote.Patch{
		Ref: remote.Ref{Type: remote.TypePersistentDog, ID: dogID},
		Set: map[string]any{"name": "Maximus"},
	})
	require.NoError(t, err)

	rep, err = en.c.Run(en.ctx)
	require.NoError(t, err)
	require.Zero(t, rep.ProfilesCreated)
	require.Equal(t, 1, rep.VisitsCreated)
	require.Equal(t, 1, en.mem.Len(remote.TypePersistentDog))

	vr, ok := en.mem.Get(remote.Ref{Type: remote.TypeVisit, ID: visitID})
	require.True(t, ok)
	require.Equal(t, dogID.String(), vr.Fields["dog_id"])
}
