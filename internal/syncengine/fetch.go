package syncengine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/kennelsync/internal/cache"
	"github.com/and161185/kennelsync/internal/model"
	"github.com/and161185/kennelsync/internal/remote"
)

// FetchKind labels a fetch protocol.
type FetchKind string

const (
	FetchFull               FetchKind = "full"
	FetchIncremental        FetchKind = "incremental"
	FetchHistory            FetchKind = "history"
	FetchHistoryIncremental FetchKind = "history_incremental"
)

// maxParallelQueries bounds the per-visit fan-out of incremental fetches.
const maxParallelQueries = 8

// FetchReport describes the outcome of one fetch.
type FetchReport struct {
	Kind     FetchKind
	Started  time.Time
	Count    int // entries in the target collection afterwards
	Changed  int // remote records applied, incremental fetches only
	Previous int // entries before a full fetch

	// Anomaly is set when a full fetch returned less than half of the previous
	// count; PreviousSnapshot then holds what was cached before.
	Anomaly          bool
	PreviousSnapshot []model.DogWithVisit
}

func (e *Engine) setLoading(delta int) {
	_ = e.exec(func() {
		e.loading += delta
		e.notify()
	})
}

func (e *Engine) fail(err error) {
	_ = e.exec(func() {
		e.setError(err)
		e.notify()
	})
}

// Refresh replaces present wholesale with every non-deleted visit.
func (e *Engine) Refresh(ctx context.Context) (FetchReport, error) {
	if err := e.checkSession(); err != nil {
		return FetchReport{Kind: FetchFull}, err
	}
	e.fetchMu.Lock()
	defer e.fetchMu.Unlock()
	return e.refreshLocked(ctx)
}

func (e *Engine) refreshLocked(ctx context.Context) (FetchReport, error) {
	rep := FetchReport{Kind: FetchFull}
	e.setLoading(1)
	defer e.setLoading(-1)
	timer := prometheus.NewTimer(e.metrics.FetchDuration.WithLabelValues(string(FetchFull)))
	defer timer.ObserveDuration()

	rep.Started = e.now()
	items, err := e.fetchEntries(ctx, false)
	if err != nil {
		e.fail(err)
		return rep, err
	}
	err = e.exec(func() {
		rep.Previous = e.cache.Present.Len()
		rep.Count = len(items)
		if len(items)*2 < rep.Previous {
			rep.Anomaly = true
			rep.PreviousSnapshot = e.cache.Present.Snapshot()
		}
		e.cache.Present.Replace(items)
		e.presentLoaded = true
		e.fetchedSince = rep.Started
		e.setLastSync(rep.Started)
		e.notify()
	})
	if rep.Anomaly {
		e.metrics.Anomalies.Inc()
		e.log.Error("full fetch returned far fewer entries than cached",
			zap.Bool("anomaly", true),
			zap.Int("previous", rep.Previous),
			zap.Int("count", rep.Count),
		)
	}
	return rep, err
}

// RefreshIncremental applies records modified since the last fetch to present.
// Until present has been fetched in full it runs a full Refresh instead.
func (e *Engine) RefreshIncremental(ctx context.Context) (FetchReport, error) {
	return e.incremental(ctx, false)
}

// LoadHistory fills the history collection once. Later calls are no-ops until
// InvalidateHistoryCache.
func (e *Engine) LoadHistory(ctx context.Context) (FetchReport, error) {
	rep := FetchReport{Kind: FetchHistory}
	if err := e.checkSession(); err != nil {
		return rep, err
	}
	e.fetchMu.Lock()
	defer e.fetchMu.Unlock()
	return e.loadHistoryLocked(ctx)
}

func (e *Engine) loadHistoryLocked(ctx context.Context) (FetchReport, error) {
	rep := FetchReport{Kind: FetchHistory}
	var loaded bool
	if err := e.exec(func() {
		loaded = e.cache.History.Loaded()
		rep.Count = e.cache.History.Len()
	}); err != nil || loaded {
		return rep, err
	}

	e.setLoading(1)
	defer e.setLoading(-1)
	timer := prometheus.NewTimer(e.metrics.FetchDuration.WithLabelValues(string(FetchHistory)))
	defer timer.ObserveDuration()

	rep.Started = e.now()
	items, err := e.fetchEntries(ctx, true)
	if err != nil {
		e.fail(err)
		return rep, err
	}
	err = e.exec(func() {
		if !e.cache.History.Loaded() {
			e.cache.History.Replace(items)
			e.cache.History.MarkLoaded(rep.Started)
			e.setLastHistorySync(rep.Started)
		}
		rep.Count = e.cache.History.Len()
		e.notify()
	})
	return rep, err
}

// RefreshHistoryIncremental applies changes since the last history sync. Deleted
// visits stay in history with IsDeleted set. Loads the history if it is not loaded.
func (e *Engine) RefreshHistoryIncremental(ctx context.Context) (FetchReport, error) {
	return e.incremental(ctx, true)
}

// AllHistory returns the history snapshot. An unloaded or expired history is
// refreshed in the background; the call never waits for the network.
func (e *Engine) AllHistory() ([]model.DogWithVisit, error) {
	var (
		out     []model.DogWithVisit
		trigger bool
	)
	err := e.exec(func() {
		out = e.cache.History.Snapshot()
		stale := !e.cache.History.Loaded() || e.cache.History.Expired(e.now(), e.ttl)
		if stale && !e.historyRefreshing {
			e.historyRefreshing = true
			trigger = true
		}
	})
	if err != nil || !trigger {
		return out, err
	}
	if err := e.begin(); err != nil {
		_ = e.exec(func() { e.historyRefreshing = false })
		return out, nil
	}
	go func() {
		defer e.inflight.Done()
		if _, err := e.RefreshHistoryIncremental(context.Background()); err != nil {
			e.log.Debug("background history refresh", zap.Error(err))
		}
		_ = e.exec(func() { e.historyRefreshing = false })
	}()
	return out, nil
}

// InvalidateHistoryCache drops the history so the next load is a full one.
func (e *Engine) InvalidateHistoryCache() error {
	return e.exec(func() {
		e.cache.History.Invalidate()
		e.notify()
	})
}

func (e *Engine) incremental(ctx context.Context, history bool) (FetchReport, error) {
	kind := FetchIncremental
	if history {
		kind = FetchHistoryIncremental
	}
	rep := FetchReport{Kind: kind}
	if err := e.checkSession(); err != nil {
		return rep, err
	}
	e.fetchMu.Lock()
	defer e.fetchMu.Unlock()

	var (
		since  time.Time
		loaded bool
	)
	if err := e.exec(func() {
		since, loaded = e.fetchedSince, e.presentLoaded
		if history {
			since, loaded = e.lastHistorySync, e.cache.History.Loaded()
		}
	}); err != nil {
		return rep, err
	}
	switch {
	case !loaded && history:
		return e.loadHistoryLocked(ctx)
	case !loaded:
		return e.refreshLocked(ctx)
	}

	e.setLoading(1)
	defer e.setLoading(-1)
	timer := prometheus.NewTimer(e.metrics.FetchDuration.WithLabelValues(string(kind)))
	defer timer.ObserveDuration()

	rep.Started = e.now()
	changed, err := e.queryChanged(ctx, since)
	if err != nil {
		e.fail(err)
		return rep, err
	}

	// visits this collection has never seen need their profile and records
	var unseen []remote.Record
	if err := e.exec(func() {
		c := e.collection(history)
		for _, r := range changed[remote.TypeVisit] {
			if (r.IsDeleted && !history) || c.Index(r.ID) >= 0 {
				continue
			}
			unseen = append(unseen, r)
		}
	}); err != nil {
		return rep, err
	}
	fresh, err := e.assembleVisits(ctx, unseen)
	if err != nil {
		e.fail(err)
		return rep, err
	}

	err = e.exec(func() {
		if history && !e.cache.History.Loaded() {
			// invalidated mid-fetch; never leave a partial history behind
			return
		}
		c := e.collection(history)
		rep.Changed = e.applyChanges(c, history, changed, fresh)
		rep.Count = c.Len()
		if history {
			e.cache.History.MarkLoaded(rep.Started)
			e.setLastHistorySync(rep.Started)
		} else {
			e.fetchedSince = rep.Started
			e.setLastSync(rep.Started)
		}
		e.notify()
	})
	return rep, err
}

func (e *Engine) collection(history bool) *cache.Collection {
	if history {
		return &e.cache.History.Collection
	}
	return &e.cache.Present
}

// applyChanges upserts changed records into c. Loop only.
func (e *Engine) applyChanges(c *cache.Collection, history bool, changed map[remote.EntityType][]remote.Record, fresh map[uuid.UUID]model.DogWithVisit) int {
	n := 0
	for _, r := range changed[remote.TypeVisit] {
		v, err := remote.VisitFromRecord(r)
		if err != nil {
			e.log.Warn("skip undecodable visit", zap.Stringer("id", r.ID), zap.Error(err))
			continue
		}
		n++
		switch {
		case v.IsDeleted && !history:
			c.Remove(v.ID)
		case c.Index(v.ID) >= 0:
			c.Update(v.ID, func(d *model.DogWithVisit) {
				v.Feedings = d.Visit.Feedings
				v.MedicationRecords = d.Visit.MedicationRecords
				v.PottyRecords = d.Visit.PottyRecords
				v.ScheduledMedications = d.Visit.ScheduledMedications
				d.Visit = v
			})
		default:
			if d, ok := fresh[v.ID]; ok {
				c.Upsert(d)
			} else {
				e.log.Debug("changed visit without profile, skipped", zap.Stringer("visit", v.ID))
			}
		}
	}
	for _, r := range changed[remote.TypePersistentDog] {
		dog, err := remote.DogFromRecord(r)
		if err != nil {
			e.log.Warn("skip undecodable profile", zap.Stringer("id", r.ID), zap.Error(err))
			continue
		}
		n++
		c.UpdateDog(dog.ID, func(d *model.PersistentDog) { *d = dog.Clone() })
	}
	n += applyChildren(e, c, feedings, changed[remote.TypeFeedingRecord], remote.FeedingFromRecord)
	n += applyChildren(e, c, medications, changed[remote.TypeMedicationRecord], remote.MedicationFromRecord)
	n += applyChildren(e, c, potties, changed[remote.TypePottyRecord], remote.PottyFromRecord)
	n += applyChildren(e, c, doses, changed[remote.TypeScheduledMedication], remote.ScheduledFromRecord)
	return n
}

func applyChildren[T any](e *Engine, c *cache.Collection, k childKind[T], recs []remote.Record, decode func(remote.Record) (T, error)) int {
	n := 0
	for _, r := range recs {
		visitID, err := remote.ChildVisitID(r)
		if err != nil {
			e.log.Warn("skip orphan record", zap.Stringer("ref", r.Ref()), zap.Error(err))
			continue
		}
		n++
		if r.IsDeleted {
			c.Update(visitID, func(d *model.DogWithVisit) { dropChild(k, &d.Visit, r.ID) })
			continue
		}
		rec, err := decode(r)
		if err != nil {
			e.log.Warn("skip undecodable record", zap.Stringer("ref", r.Ref()), zap.Error(err))
			continue
		}
		c.Update(visitID, func(d *model.DogWithVisit) { upsertChild(k, &d.Visit, rec) })
	}
	return n
}

var changeTypes = append([]remote.EntityType{remote.TypeVisit, remote.TypePersistentDog}, remote.ChildTypes...)

// queryChanged fetches every record type modified after since, concurrently.
func (e *Engine) queryChanged(ctx context.Context, since time.Time) (map[remote.EntityType][]remote.Record, error) {
	var mu sync.Mutex
	out := make(map[remote.EntityType][]remote.Record, len(changeTypes))
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range changeTypes {
		g.Go(func() error {
			recs, err := e.store.QueryModifiedSince(gctx, t, since)
			if err != nil {
				return err
			}
			mu.Lock()
			out[t] = recs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// fetchEntries reads all visits (deleted ones too when includeDeleted), all
// profiles and all live child records, and joins them.
func (e *Engine) fetchEntries(ctx context.Context, includeDeleted bool) ([]model.DogWithVisit, error) {
	var (
		mu      sync.Mutex
		visits  []remote.Record
		dogs    []remote.Record
		records = make(map[remote.EntityType][]remote.Record, len(remote.ChildTypes))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recs, err := e.store.Query(gctx, remote.TypeVisit, remote.Predicate{IncludeDeleted: includeDeleted})
		visits = recs
		return err
	})
	g.Go(func() error {
		recs, err := e.store.Query(gctx, remote.TypePersistentDog, remote.Predicate{})
		dogs = recs
		return err
	})
	for _, t := range remote.ChildTypes {
		g.Go(func() error {
			recs, err := e.store.Query(gctx, t, remote.Predicate{})
			mu.Lock()
			records[t] = recs
			mu.Unlock()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return e.join(visits, dogs, records), nil
}

// assembleVisits loads profiles and records for visits not yet cached.
func (e *Engine) assembleVisits(ctx context.Context, visitRecs []remote.Record) (map[uuid.UUID]model.DogWithVisit, error) {
	out := make(map[uuid.UUID]model.DogWithVisit, len(visitRecs))
	if len(visitRecs) == 0 {
		return out, nil
	}
	visits := make([]model.Visit, 0, len(visitRecs))
	dogIDs := make([]uuid.UUID, 0, len(visitRecs))
	seen := make(map[uuid.UUID]bool, len(visitRecs))
	for _, r := range visitRecs {
		v, err := remote.VisitFromRecord(r)
		if err != nil {
			e.log.Warn("skip undecodable visit", zap.Stringer("id", r.ID), zap.Error(err))
			continue
		}
		visits = append(visits, v)
		if !seen[v.DogID] {
			seen[v.DogID] = true
			dogIDs = append(dogIDs, v.DogID)
		}
	}
	if len(visits) == 0 {
		return out, nil
	}

	var (
		mu      sync.Mutex
		dogs    []remote.Record
		records = make(map[remote.EntityType][]remote.Record, len(remote.ChildTypes))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelQueries)
	g.Go(func() error {
		recs, err := e.store.Query(gctx, remote.TypePersistentDog, remote.ByIDs(dogIDs...))
		mu.Lock()
		dogs = recs
		mu.Unlock()
		return err
	})
	for _, v := range visits {
		for _, t := range remote.ChildTypes {
			g.Go(func() error {
				recs, err := e.store.Query(gctx, t, remote.ByField("visit_id", v.ID.String()))
				mu.Lock()
				records[t] = append(records[t], recs...)
				mu.Unlock()
				return err
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, d := range e.join(visitRecs, dogs, records) {
		out[d.ID()] = d
	}
	return out, nil
}

// join builds DogWithVisit entries. Visits whose profile is missing are dropped.
func (e *Engine) join(visits, dogs []remote.Record, records map[remote.EntityType][]remote.Record) []model.DogWithVisit {
	profiles := make(map[uuid.UUID]model.PersistentDog, len(dogs))
	for _, r := range dogs {
		d, err := remote.DogFromRecord(r)
		if err != nil {
			e.log.Warn("skip undecodable profile", zap.Stringer("id", r.ID), zap.Error(err))
			continue
		}
		profiles[d.ID] = d
	}

	byVisit := make(map[uuid.UUID]*model.Visit, len(visits))
	ordered := make([]*model.Visit, 0, len(visits))
	for _, r := range visits {
		v, err := remote.VisitFromRecord(r)
		if err != nil {
			e.log.Warn("skip undecodable visit", zap.Stringer("id", r.ID), zap.Error(err))
			continue
		}
		byVisit[v.ID] = &v
		ordered = append(ordered, &v)
	}
	attach(e, byVisit, feedings, records[remote.TypeFeedingRecord], remote.FeedingFromRecord, func(r model.FeedingRecord) time.Time { return r.Timestamp })
	attach(e, byVisit, medications, records[remote.TypeMedicationRecord], remote.MedicationFromRecord, func(r model.MedicationRecord) time.Time { return r.Timestamp })
	attach(e, byVisit, potties, records[remote.TypePottyRecord], remote.PottyFromRecord, func(r model.PottyRecord) time.Time { return r.Timestamp })
	attach(e, byVisit, doses, records[remote.TypeScheduledMedication], remote.ScheduledFromRecord, func(r model.ScheduledMedication) time.Time { return r.ScheduledAt })

	out := make([]model.DogWithVisit, 0, len(ordered))
	for _, v := range ordered {
		dog, ok := profiles[v.DogID]
		if !ok {
			e.log.Warn("visit without profile, skipped", zap.Stringer("visit", v.ID), zap.Stringer("dog", v.DogID))
			continue
		}
		out = append(out, model.DogWithVisit{Dog: dog, Visit: *v})
	}
	return out
}

func attach[T any](e *Engine, visits map[uuid.UUID]*model.Visit, k childKind[T], recs []remote.Record, decode func(remote.Record) (T, error), at func(T) time.Time) {
	for _, r := range recs {
		visitID, err := remote.ChildVisitID(r)
		if err != nil {
			e.log.Warn("skip orphan record", zap.Stringer("ref", r.Ref()), zap.Error(err))
			continue
		}
		v, ok := visits[visitID]
		if !ok {
			continue
		}
		rec, err := decode(r)
		if err != nil {
			e.log.Warn("skip undecodable record", zap.Stringer("ref", r.Ref()), zap.Error(err))
			continue
		}
		upsertChild(k, v, rec)
	}
	for _, v := range visits {
		list := k.slice(v)
		sort.SliceStable(*list, func(i, j int) bool { return at((*list)[i]).Before(at((*list)[j])) })
	}
}
