package syncengine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/kennelsync/internal/audit"
	"github.com/and161185/kennelsync/internal/localstate"
	"github.com/and161185/kennelsync/internal/model"
	"github.com/and161185/kennelsync/internal/remote"
	"github.com/and161185/kennelsync/internal/remote/memstore"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	clock *clock
	fs    afero.Fs
	mem   *memstore.Store
	local *localstate.File
	audit *audit.Logger
	e     *Engine
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, nil)
}

// newFixtureWith builds an engine over wrap(mem); a nil wrap uses the memstore directly.
func newFixtureWith(t *testing.T, wrap func(*memstore.Store) remote.Store) *fixture {
	t.Helper()
	clk := &clock{t: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
	fs := afero.NewMemMapFs()
	mem := memstore.New(memstore.WithClock(clk.Now))
	local := localstate.NewFile(fs, "/kennel/state.json")
	require.NoError(t, local.SetSchemaVersion(localstate.CurrentSchemaVersion))

	var store remote.Store = mem
	if wrap != nil {
		store = wrap(mem)
	}
	log := zaptest.NewLogger(t)
	al := audit.New(fs, audit.Config{Path: "/kennel/activity.log"}, nil, log)
	e := New(store, local, al, Config{
		Actor:  model.Actor{ID: "staff-1", Name: "Kim"},
		Now:    clk.Now,
		Logger: log,
	})
	t.Cleanup(func() {
		e.Close()
		al.Close()
	})
	require.NoError(t, e.Start(context.Background()))
	return &fixture{t: t, ctx: context.Background(), clock: clk, fs: fs, mem: mem, local: local, audit: al, e: e}
}

// sibling starts another engine over the same remote store and local state,
// as after a restart.
func (f *fixture) sibling(local *localstate.File) *Engine {
	f.t.Helper()
	e := New(f.mem, local, f.audit, Config{
		Actor:  model.Actor{ID: "staff-2", Name: "Lee"},
		Now:    f.clock.Now,
		Logger: zaptest.NewLogger(f.t),
	})
	f.t.Cleanup(e.Close)
	require.NoError(f.t, e.Start(f.ctx))
	return e
}

// seed writes a profile and an active visit straight into the remote store.
func (f *fixture) seed(name string, arrivedAgo time.Duration) (dogID, visitID uuid.UUID) {
	f.t.Helper()
	dog := model.PersistentDog{ID: uuid.Must(uuid.NewV4()), Name: name, OwnerName: "Owner of " + name, OwnerPhone: "555-0100"}
	visit := model.Visit{ID: uuid.Must(uuid.NewV4()), DogID: dog.ID, ArrivalAt: f.clock.Now().Add(-arrivedAgo)}
	dr, err := remote.DogRecord(dog)
	require.NoError(f.t, err)
	vr, err := remote.VisitRecord(visit)
	require.NoError(f.t, err)
	_, err = f.mem.Create(f.ctx, dr)
	require.NoError(f.t, err)
	_, err = f.mem.Create(f.ctx, vr)
	require.NoError(f.t, err)
	return dog.ID, visit.ID
}

func (f *fixture) seedPotty(visitID uuid.UUID, n int) {
	f.t.Helper()
	for i := 0; i < n; i++ {
		r, err := remote.PottyRecordOf(model.PottyRecord{
			ID:        uuid.Must(uuid.NewV4()),
			VisitID:   visitID,
			Timestamp: f.clock.Now().Add(-time.Duration(n-i) * time.Minute),
			Type:      model.PottyPee,
		})
		require.NoError(f.t, err)
		_, err = f.mem.Create(f.ctx, r)
		require.NoError(f.t, err)
	}
}

func (f *fixture) refresh() FetchReport {
	f.t.Helper()
	rep, err := f.e.Refresh(f.ctx)
	require.NoError(f.t, err)
	return rep
}

func (f *fixture) find(visitID uuid.UUID) model.DogWithVisit {
	f.t.Helper()
	d, ok, err := f.e.Find(visitID)
	require.NoError(f.t, err)
	require.True(f.t, ok, "visit %s not in present", visitID)
	return d
}

func (f *fixture) count(t remote.EntityType, where map[string]string) int {
	f.t.Helper()
	n, err := f.mem.Count(f.ctx, t, remote.Predicate{Where: where, IncludeDeleted: true})
	require.NoError(f.t, err)
	return n
}

// failOn makes every op on type t fail with err until the returned func is called.
func (f *fixture) failOn(op memstore.Op, t remote.EntityType, err error) {
	f.mem.SetFault(func(o memstore.Op, ref remote.Ref) error {
		if o == op && ref.Type == t {
			return err
		}
		return nil
	})
}

func inPresent(list []model.DogWithVisit, id uuid.UUID) bool {
	for _, d := range list {
		if d.ID() == id {
			return true
		}
	}
	return false
}
