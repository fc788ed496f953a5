// Package dogmigration rewrites legacy Dog aggregates as PersistentDog profiles
// with one Visit each. A run is idempotent: every record it creates has an id
// derived from its legacy source, so a rerun after a partial failure finds what
// the previous run wrote instead of duplicating it.
package dogmigration

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/kennelsync/internal/audit"
	"github.com/and161185/kennelsync/internal/errs"
	"github.com/and161185/kennelsync/internal/localstate"
	"github.com/and161185/kennelsync/internal/model"
	"github.com/and161185/kennelsync/internal/remote"
)

// Namespace seeds every id the migration derives.
var Namespace = uuid.NewV5(uuid.NamespaceOID, "kennelsync.dogmigration")

// Phase is the coordinator state.
type Phase int

const (
	NotStarted Phase = iota
	InProgress
	Complete
)

func (p Phase) String() string {
	switch p {
	case NotStarted:
		return "not started"
	case InProgress:
		return "in progress"
	case Complete:
		return "complete"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Progress is an observable snapshot. Fraction is in [0, 1].
type Progress struct {
	Phase    Phase
	Fraction float64
	Text     string
}

// Report counts what one run did.
type Report struct {
	Legacy          int
	ProfilesCreated int
	ProfilesMerged  int
	VisitsCreated   int
	VisitsSkipped   int
	Records         int
}

// Config tunes a Coordinator. Zero values are usable.
type Config struct {
	Actor    model.Actor
	Logger   *zap.Logger
	Audit    *audit.Logger
	Observer func(Progress)
}

// Coordinator runs the one-time legacy migration.
type Coordinator struct {
	store   remote.Store
	local   *localstate.File
	actor   model.Actor
	log     *zap.Logger
	audit   *audit.Logger
	observe func(Progress)

	runMu sync.Mutex

	mu       sync.Mutex
	progress Progress
}

// New creates a coordinator writing through store and recording completion in local.
func New(store remote.Store, local *localstate.File, cfg Config) *Coordinator {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		store:   store,
		local:   local,
		actor:   cfg.Actor,
		log:     log.Named("migration"),
		audit:   cfg.Audit,
		observe: cfg.Observer,
	}
}

// Progress returns the latest snapshot.
func (c *Coordinator) Progress() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

func (c *Coordinator) report(p Progress) {
	c.mu.Lock()
	c.progress = p
	c.mu.Unlock()
	if c.observe != nil {
		c.observe(p)
	}
}

// Needed reports whether the local schema predates the split model.
func (c *Coordinator) Needed() (bool, error) {
	st, err := c.local.Load()
	if err != nil {
		return false, err
	}
	return st.SchemaVersion < localstate.CurrentSchemaVersion, nil
}

// Run migrates every legacy aggregate. On error the phase stays InProgress and
// Run may be called again.
func (c *Coordinator) Run(ctx context.Context) (Report, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	var rep Report
	needed, err := c.Needed()
	if err != nil {
		return rep, fmt.Errorf("load local state: %w", err)
	}
	if !needed {
		c.report(Progress{Phase: Complete, Fraction: 1, Text: "already migrated"})
		return rep, nil
	}

	c.report(Progress{Phase: InProgress, Text: "loading legacy records"})
	legacy, err := c.loadLegacy(ctx)
	if err != nil {
		return rep, err
	}
	profiles, err := c.loadProfiles(ctx)
	if err != nil {
		return rep, err
	}
	rep.Legacy = len(legacy)

	for i, l := range legacy {
		if err := c.migrateOne(ctx, l, profiles, &rep); err != nil {
			c.log.Warn("migration stopped", zap.Stringer("legacy", l.ID), zap.Error(err))
			return rep, fmt.Errorf("migrate %s: %w", l.ID, err)
		}
		c.report(Progress{
			Phase:    InProgress,
			Fraction: float64(i+1) / float64(len(legacy)),
			Text:     fmt.Sprintf("migrated %d of %d", i+1, len(legacy)),
		})
	}

	if err := c.local.SetSchemaVersion(localstate.CurrentSchemaVersion); err != nil {
		return rep, fmt.Errorf("persist schema version: %w", err)
	}
	c.report(Progress{Phase: Complete, Fraction: 1, Text: fmt.Sprintf("migrated %d legacy records", rep.Legacy)})
	c.log.Info("migration complete",
		zap.Int("legacy", rep.Legacy),
		zap.Int("profiles_created", rep.ProfilesCreated),
		zap.Int("profiles_merged", rep.ProfilesMerged),
		zap.Int("visits_created", rep.VisitsCreated),
		zap.Int("visits_skipped", rep.VisitsSkipped),
	)
	if c.audit != nil {
		c.audit.Record(audit.Entry(model.ActionMigrate, c.actor, model.DogWithVisit{},
			fmt.Sprintf("%d legacy records, %d profiles created, %d visits created", rep.Legacy, rep.ProfilesCreated, rep.VisitsCreated)))
	}
	return rep, nil
}

// loadLegacy returns every legacy aggregate, oldest first.
func (c *Coordinator) loadLegacy(ctx context.Context) ([]model.LegacyDog, error) {
	recs, err := c.store.Query(ctx, remote.TypeLegacyDog, remote.Predicate{IncludeDeleted: true})
	if err != nil {
		return nil, fmt.Errorf("query legacy dogs: %w", err)
	}
	out := make([]model.LegacyDog, 0, len(recs))
	for _, r := range recs {
		l, err := remote.LegacyFromRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// loadProfiles indexes existing profiles by match key. The oldest profile wins a key.
func (c *Coordinator) loadProfiles(ctx context.Context) (map[string]model.PersistentDog, error) {
	recs, err := c.store.Query(ctx, remote.TypePersistentDog, remote.Predicate{})
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	out := make(map[string]model.PersistentDog, len(recs))
	for _, r := range recs {
		d, err := remote.DogFromRecord(r)
		if err != nil {
			c.log.Warn("skip undecodable profile", zap.Stringer("id", r.ID), zap.Error(err))
			continue
		}
		key := d.MatchKey()
		if prev, ok := out[key]; ok && !d.CreatedAt.Before(prev.CreatedAt) {
			continue
		}
		out[key] = d
	}
	return out, nil
}

func (c *Coordinator) migrateOne(ctx context.Context, l model.LegacyDog, profiles map[string]model.PersistentDog, rep *Report) error {
	key := l.MatchKey()
	dog, ok := profiles[key]
	switch {
	case !ok:
		created, isNew, err := c.createProfile(ctx, key, l)
		if err != nil {
			return err
		}
		dog = created
		if isNew {
			rep.ProfilesCreated++
		}
	default:
		merged, changed, err := c.mergeProfile(ctx, dog, l)
		if err != nil {
			return err
		}
		dog = merged
		if changed {
			rep.ProfilesMerged++
		}
	}
	profiles[key] = dog

	visitID := uuid.NewV5(Namespace, "visit:"+l.ID.String())
	existing, err := c.store.Query(ctx, remote.TypeVisit, remote.Predicate{IDs: []uuid.UUID{visitID}, IncludeDeleted: true})
	if err != nil {
		return fmt.Errorf("look up visit: %w", err)
	}
	if len(existing) > 0 {
		rep.VisitsSkipped++
		return nil
	}

	n, err := c.createChildren(ctx, visitID, l)
	rep.Records += n
	if err != nil {
		return err
	}
	visit := l.Stay()
	visit.ID = visitID
	visit.DogID = dog.ID
	r, err := remote.VisitRecord(visit)
	if err != nil {
		return err
	}
	isNew, err := c.create(ctx, r)
	if err != nil {
		return fmt.Errorf("create visit: %w", err)
	}
	if isNew {
		rep.VisitsCreated++
	} else {
		rep.VisitsSkipped++
	}
	return nil
}

// createProfile writes the profile for key. isNew is false when a previous run
// already created it.
func (c *Coordinator) createProfile(ctx context.Context, key string, l model.LegacyDog) (dog model.PersistentDog, isNew bool, err error) {
	dog = l.Profile()
	dog.ID = uuid.NewV5(Namespace, "dog:"+key)
	dog.Medications = catalogIDs(key, dog.Medications)
	arrival := l.ArrivalAt
	dog.LastVisitAt = &arrival
	merged := l.UpdatedAt
	dog.LegacyUpdatedAt = &merged

	r, err := remote.DogRecord(dog)
	if err != nil {
		return dog, false, err
	}
	isNew, err = c.create(ctx, r)
	if err != nil {
		return dog, false, fmt.Errorf("create profile: %w", err)
	}
	return dog, isNew, nil
}

// mergedUpTo is the legacy update time already reflected in dog. Profiles the
// migration did not create fall back to their own update time.
func mergedUpTo(dog model.PersistentDog) time.Time {
	if dog.LegacyUpdatedAt != nil {
		return *dog.LegacyUpdatedAt
	}
	return dog.UpdatedAt
}

// mergeProfile copies the non-empty profile fields of a legacy record newer than
// anything merged so far into dog and advances LastVisitAt. Only fields that
// change are written.
func (c *Coordinator) mergeProfile(ctx context.Context, dog model.PersistentDog, l model.LegacyDog) (model.PersistentDog, bool, error) {
	merged := dog.Clone()
	if l.UpdatedAt.After(mergedUpTo(dog)) {
		overlay(&merged, l.Profile())
		merged.Medications = catalogIDs(dog.MatchKey(), merged.Medications)
		at := l.UpdatedAt
		merged.LegacyUpdatedAt = &at
	}
	if merged.LastVisitAt == nil || l.ArrivalAt.After(*merged.LastVisitAt) {
		arrival := l.ArrivalAt
		merged.LastVisitAt = &arrival
	}

	before, err := remote.Encode(dog)
	if err != nil {
		return dog, false, err
	}
	after, err := remote.Encode(merged)
	if err != nil {
		return dog, false, err
	}
	set := make(map[string]any)
	for k, v := range after {
		if !reflect.DeepEqual(before[k], v) {
			set[k] = v
		}
	}
	if len(set) == 0 {
		return dog, false, nil
	}
	_, err = remote.ApplyPatch(ctx, c.store, remote.Patch{
		Ref:        remote.Ref{Type: remote.TypePersistentDog, ID: dog.ID},
		Set:        set,
		ModifiedBy: c.actor.ID,
	})
	if err != nil {
		return dog, false, fmt.Errorf("merge profile %s: %w", dog.ID, err)
	}
	return merged, true, nil
}

// overlay sets every non-empty field of src on dst.
func overlay(dst *model.PersistentDog, src model.PersistentDog) {
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.OwnerName != "" {
		dst.OwnerName = src.OwnerName
	}
	if src.OwnerPhone != "" {
		dst.OwnerPhone = src.OwnerPhone
	}
	if len(src.ProfilePhoto) > 0 {
		dst.ProfilePhoto = append([]byte(nil), src.ProfilePhoto...)
	}
	if src.Age != nil {
		a := *src.Age
		dst.Age = &a
	}
	if src.Gender != "" && src.Gender != model.GenderUnknown {
		dst.Gender = src.Gender
	}
	if src.IsNeutered != nil {
		n := *src.IsNeutered
		dst.IsNeutered = &n
	}
	if len(src.Vaccinations) > 0 {
		dst.Vaccinations = append([]model.Vaccination(nil), src.Vaccinations...)
	}
	if src.Allergies != "" {
		dst.Allergies = src.Allergies
	}
	if src.FeedingNotes != "" {
		dst.FeedingNotes = src.FeedingNotes
	}
	if len(src.Medications) > 0 {
		dst.Medications = append([]model.Medication(nil), src.Medications...)
	}
}

// catalogIDs gives catalog entries without an id one derived from the profile key and name.
func catalogIDs(key string, meds []model.Medication) []model.Medication {
	out := make([]model.Medication, len(meds))
	for i, m := range meds {
		if m.ID == uuid.Nil {
			m.ID = uuid.NewV5(Namespace, "med:"+key+":"+m.Name)
		}
		if m.Type == "" {
			m.Type = model.MedicationDaily
		}
		out[i] = m
	}
	return out
}

// createChildren writes the embedded records of l as child records of visitID.
// It returns the number written or found already present.
func (c *Coordinator) createChildren(ctx context.Context, visitID uuid.UUID, l model.LegacyDog) (int, error) {
	childID := func(kind string, i int) uuid.UUID {
		return uuid.NewV5(Namespace, fmt.Sprintf("%s:%s:%d", kind, l.ID, i))
	}
	var recs []remote.Record
	add := func(r remote.Record, err error) error {
		if err != nil {
			return err
		}
		recs = append(recs, r)
		return nil
	}
	for i, f := range l.Feedings {
		err := add(remote.FeedingRecordOf(model.FeedingRecord{
			ID: childID("feeding", i), VisitID: visitID, Timestamp: f.Timestamp,
			Type: f.Type, Notes: f.Notes, RecordedBy: f.RecordedBy,
		}))
		if err != nil {
			return 0, err
		}
	}
	for i, m := range l.MedicationRecords {
		err := add(remote.MedicationRecordOf(model.MedicationRecord{
			ID: childID("medication", i), VisitID: visitID, Timestamp: m.Timestamp,
			Name: m.Name, Notes: m.Notes, RecordedBy: m.RecordedBy,
		}))
		if err != nil {
			return 0, err
		}
	}
	for i, p := range l.PottyRecords {
		err := add(remote.PottyRecordOf(model.PottyRecord{
			ID: childID("potty", i), VisitID: visitID, Timestamp: p.Timestamp,
			Type: p.Type, Notes: p.Notes, RecordedBy: p.RecordedBy,
		}))
		if err != nil {
			return 0, err
		}
	}

	for n, r := range recs {
		if _, err := c.create(ctx, r); err != nil {
			return n, fmt.Errorf("create %s: %w", r.Ref(), err)
		}
	}
	return len(recs), nil
}

// create writes r. A record that already exists is not an error; isNew tells
// the two apart.
func (c *Coordinator) create(ctx context.Context, r remote.Record) (isNew bool, err error) {
	r.ModifiedBy = c.actor.ID
	_, err = c.store.Create(ctx, r)
	switch {
	case errors.Is(err, errs.ErrAlreadyExists):
		c.log.Debug("already migrated", zap.Stringer("ref", r.Ref()))
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}
