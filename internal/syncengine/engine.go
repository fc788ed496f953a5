// Package syncengine keeps the local dog/visit cache consistent with the remote
// record store. Mutations apply locally at once and are written remotely in the
// background; a failed write is undone with the exact inverse of its delta.
//
// All cache access happens on one owner goroutine. Public methods hand closures
// to it through a command channel, so the cache needs no locking.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/and161185/kennelsync/internal/audit"
	"github.com/and161185/kennelsync/internal/cache"
	"github.com/and161185/kennelsync/internal/errs"
	"github.com/and161185/kennelsync/internal/localstate"
	"github.com/and161185/kennelsync/internal/model"
	"github.com/and161185/kennelsync/internal/remote"
)

// DefaultHistoryTTL is how long a loaded history stays fresh.
const DefaultHistoryTTL = 5 * time.Minute

// ErrNotStarted is returned by calls made before Start succeeded.
var ErrNotStarted = errors.New("engine not started")

// Config holds engine dependencies that have usable defaults.
type Config struct {
	Actor      model.Actor
	HistoryTTL time.Duration
	Now        func() time.Time
	Registerer prometheus.Registerer
	Logger     *zap.Logger
}

// State is a published snapshot of the engine.
type State struct {
	Present       []model.DogWithVisit
	AllHistory    []model.DogWithVisit
	HistoryLoaded bool
	IsLoading     bool
	LastError     string
	LastSyncTime  time.Time
}

// Engine is the sync engine. Create with New, then Start.
type Engine struct {
	store   remote.Store
	local   *localstate.File
	audit   *audit.Logger
	log     *zap.Logger
	metrics *Metrics
	now     func() time.Time
	actor   model.Actor
	ttl     time.Duration

	cmds     chan func()
	quit     chan struct{}
	loopDone chan struct{}
	changes  chan struct{}

	lifeMu   sync.Mutex
	started  bool
	closing  bool
	inflight sync.WaitGroup

	fetchMu     sync.Mutex
	sessionDead atomic.Bool

	// owned by the loop goroutine
	cache             *cache.Store
	lastError         string
	lastSyncTime      time.Time
	lastHistorySync   time.Time
	fetchedSince      time.Time // incremental cursor for present; only fetches move it
	presentLoaded     bool
	loading           int
	historyRefreshing bool
}

// New builds an engine around store. If store also implements remote.Patcher,
// field-group writes use partial updates.
func New(store remote.Store, local *localstate.File, auditLog *audit.Logger, cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.HistoryTTL <= 0 {
		cfg.HistoryTTL = DefaultHistoryTTL
	}
	e := &Engine{
		store:    store,
		local:    local,
		audit:    auditLog,
		log:      cfg.Logger.Named("sync"),
		metrics:  NewMetrics(cfg.Registerer),
		now:      cfg.Now,
		actor:    cfg.Actor,
		ttl:      cfg.HistoryTTL,
		cmds:     make(chan func()),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
		changes:  make(chan struct{}, 1),
		cache:    cache.New(),
	}
	go e.loop()
	return e
}

func (e *Engine) loop() {
	defer close(e.loopDone)
	for {
		select {
		case fn := <-e.cmds:
			fn()
		case <-e.quit:
			return
		}
	}
}

// exec runs fn on the owner goroutine and waits for it.
func (e *Engine) exec(fn func()) error {
	done := make(chan struct{})
	select {
	case e.cmds <- func() { fn(); close(done) }:
	case <-e.quit:
		return errs.ErrClosed
	}
	<-done
	return nil
}

// Start loads persisted cursors. It refuses to run on a pre-migration schema.
func (e *Engine) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st, err := e.local.Load()
	if err != nil {
		return fmt.Errorf("load local state: %w", err)
	}
	if st.SchemaVersion < localstate.CurrentSchemaVersion {
		return fmt.Errorf("schema version %d < %d: %w", st.SchemaVersion, localstate.CurrentSchemaVersion, errs.ErrMigrationRequired)
	}
	if err := e.exec(func() {
		e.lastSyncTime = st.LastSyncTime
		e.lastHistorySync = st.LastAllHistorySyncTime
	}); err != nil {
		return err
	}
	e.lifeMu.Lock()
	e.started = true
	e.lifeMu.Unlock()
	e.log.Debug("engine started", zap.Time("last_sync", st.LastSyncTime))
	return nil
}

// Close waits for in-flight operations to settle and stops the owner goroutine.
func (e *Engine) Close() {
	e.lifeMu.Lock()
	if e.closing {
		e.lifeMu.Unlock()
		<-e.loopDone
		return
	}
	e.closing = true
	e.lifeMu.Unlock()

	e.inflight.Wait()
	close(e.quit)
	<-e.loopDone
}

// begin registers one background task. The returned error is ErrClosed or ErrNotStarted.
func (e *Engine) begin() error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	switch {
	case e.closing:
		return errs.ErrClosed
	case !e.started:
		return ErrNotStarted
	}
	e.inflight.Add(1)
	return nil
}

// Changes delivers a signal after every state change. Signals coalesce.
func (e *Engine) Changes() <-chan struct{} { return e.changes }

func (e *Engine) notify() {
	e.metrics.CacheSize.WithLabelValues("present").Set(float64(e.cache.Present.Len()))
	e.metrics.CacheSize.WithLabelValues("history").Set(float64(e.cache.History.Len()))
	select {
	case e.changes <- struct{}{}:
	default:
	}
}

// State returns a deep-copied snapshot.
func (e *Engine) State() (State, error) {
	var st State
	err := e.exec(func() {
		st = State{
			Present:       e.cache.Present.Snapshot(),
			AllHistory:    e.cache.History.Snapshot(),
			HistoryLoaded: e.cache.History.Loaded(),
			IsLoading:     e.loading > 0,
			LastError:     e.lastError,
			LastSyncTime:  e.lastSyncTime,
		}
	})
	return st, err
}

// Present returns the present collection.
func (e *Engine) Present() ([]model.DogWithVisit, error) {
	var out []model.DogWithVisit
	err := e.exec(func() { out = e.cache.Present.Snapshot() })
	return out, err
}

// Find returns one present entry by visit id.
func (e *Engine) Find(visitID uuid.UUID) (model.DogWithVisit, bool, error) {
	var (
		d  model.DogWithVisit
		ok bool
	)
	err := e.exec(func() { d, ok = e.cache.Present.Find(visitID) })
	return d, ok, err
}

// LastError returns the sticky error message, empty when clear.
func (e *Engine) LastError() string {
	var s string
	_ = e.exec(func() { s = e.lastError })
	return s
}

// ClearError resets the sticky error so the next failure becomes visible.
func (e *Engine) ClearError() {
	_ = e.exec(func() {
		e.lastError = ""
		e.notify()
	})
}

// ResumeSession lifts the not-authenticated lock after a new login.
func (e *Engine) ResumeSession() { e.sessionDead.Store(false) }

// setError records err as lastError unless one is already shown. Loop only.
func (e *Engine) setError(err error) {
	if errors.Is(err, errs.ErrNotAuthenticated) {
		e.sessionDead.Store(true)
	}
	if e.lastError == "" {
		e.lastError = err.Error()
	}
}

// setLastSync records and persists the last successful sync. Loop only.
func (e *Engine) setLastSync(t time.Time) {
	e.lastSyncTime = t
	if err := e.local.SetLastSyncTime(t); err != nil {
		e.log.Warn("persist last sync time", zap.Error(err))
	}
}

func (e *Engine) setLastHistorySync(t time.Time) {
	e.lastHistorySync = t
	if err := e.local.SetLastAllHistorySyncTime(t); err != nil {
		e.log.Warn("persist history sync time", zap.Error(err))
	}
}

func (e *Engine) checkSession() error {
	if e.sessionDead.Load() {
		return fmt.Errorf("session expired, log in again: %w", errs.ErrNotAuthenticated)
	}
	return nil
}

// GetActivityLog returns the local activity log text.
func (e *Engine) GetActivityLog() (string, error) { return e.audit.Read() }

// ClearActivityLog truncates the local activity log.
func (e *Engine) ClearActivityLog() error { return e.audit.Clear() }

// Actor returns who the engine attributes mutations to.
func (e *Engine) Actor() model.Actor { return e.actor }
