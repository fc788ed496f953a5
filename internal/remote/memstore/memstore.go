// Package memstore is an in-process remote.Store. It backs tests and the
// server's memory storage mode.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/kennelsync/internal/errs"
	"github.com/and161185/kennelsync/internal/remote"
)

// Op names a store operation for fault injection.
type Op string

const (
	OpQuery              Op = "query"
	OpQueryModifiedSince Op = "query_modified_since"
	OpCreate             Op = "create"
	OpUpdate             Op = "update"
	OpPatch              Op = "patch"
	OpDelete             Op = "delete"
)

// FaultFunc may return an error to fail an operation before it touches state.
// For queries the ref carries only the type.
type FaultFunc func(op Op, ref remote.Ref) error

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithFault installs a fault hook.
func WithFault(f FaultFunc) Option { return func(s *Store) { s.fault = f } }

type entry struct {
	seq uint64
	rec remote.Record
}

// Store keeps records in memory. Safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	recs  map[remote.Ref]*entry
	seq   uint64
	now   func() time.Time
	fault FaultFunc
}

var (
	_ remote.Store   = (*Store)(nil)
	_ remote.Patcher = (*Store)(nil)
)

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{recs: make(map[remote.Ref]*entry), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetFault replaces the fault hook at runtime.
func (s *Store) SetFault(f FaultFunc) {
	s.mu.Lock()
	s.fault = f
	s.mu.Unlock()
}

func (s *Store) check(ctx context.Context, op Op, ref remote.Ref) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTransient, err)
	}
	s.mu.RLock()
	f := s.fault
	s.mu.RUnlock()
	if f != nil {
		return f(op, ref)
	}
	return nil
}

// Query returns matching records ordered by insertion.
func (s *Store) Query(ctx context.Context, t remote.EntityType, p remote.Predicate) ([]remote.Record, error) {
	if err := s.check(ctx, OpQuery, remote.Ref{Type: t}); err != nil {
		return nil, err
	}
	return s.collect(func(r remote.Record) bool { return r.Type == t && p.Match(r) }), nil
}

// QueryModifiedSince returns records of t updated after since, tombstones included.
func (s *Store) QueryModifiedSince(ctx context.Context, t remote.EntityType, since time.Time) ([]remote.Record, error) {
	if err := s.check(ctx, OpQueryModifiedSince, remote.Ref{Type: t}); err != nil {
		return nil, err
	}
	return s.collect(func(r remote.Record) bool { return r.Type == t && r.UpdatedAt.After(since) }), nil
}

// Count returns the number of records matching p.
func (s *Store) Count(ctx context.Context, t remote.EntityType, p remote.Predicate) (int, error) {
	if err := s.check(ctx, OpQuery, remote.Ref{Type: t}); err != nil {
		return 0, err
	}
	return len(s.collect(func(r remote.Record) bool { return r.Type == t && p.Match(r) })), nil
}

func (s *Store) collect(keep func(remote.Record) bool) []remote.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	es := make([]*entry, 0, len(s.recs))
	for _, e := range s.recs {
		if keep(e.rec) {
			es = append(es, e)
		}
	}
	sort.Slice(es, func(i, j int) bool { return es[i].seq < es[j].seq })
	out := make([]remote.Record, 0, len(es))
	for _, e := range es {
		out = append(out, e.rec.Clone())
	}
	return out
}

// Create inserts r. A nil id gets a fresh random one.
func (s *Store) Create(ctx context.Context, r remote.Record) (remote.Record, error) {
	if r.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return remote.Record{}, err
		}
		r.ID = id
	}
	if err := s.check(ctx, OpCreate, r.Ref()); err != nil {
		return remote.Record{}, err
	}
	fields, err := remote.NormalizeFields(r.Fields)
	if err != nil {
		return remote.Record{}, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[r.Ref()]; ok {
		return remote.Record{}, fmt.Errorf("%s: %w", r.Ref(), errs.ErrAlreadyExists)
	}
	now := s.now()
	s.seq++
	rec := remote.Record{
		ID:                r.ID,
		Type:              r.Type,
		Fields:            fields,
		IsDeleted:         r.IsDeleted,
		ModifiedBy:        r.ModifiedBy,
		ModificationCount: 1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.recs[r.Ref()] = &entry{seq: s.seq, rec: rec}
	return rec.Clone(), nil
}

// Update replaces fields and tombstone of an existing record.
func (s *Store) Update(ctx context.Context, r remote.Record) (remote.Record, error) {
	if err := s.check(ctx, OpUpdate, r.Ref()); err != nil {
		return remote.Record{}, err
	}
	fields, err := remote.NormalizeFields(r.Fields)
	if err != nil {
		return remote.Record{}, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.recs[r.Ref()]
	if !ok {
		return remote.Record{}, fmt.Errorf("%s: %w", r.Ref(), errs.ErrRecordNotFound)
	}
	e.rec.Fields = fields
	e.rec.IsDeleted = r.IsDeleted
	s.touch(e, r.ModifiedBy)
	return e.rec.Clone(), nil
}

// Patch overwrites only the named fields.
func (s *Store) Patch(ctx context.Context, p remote.Patch) (remote.Record, error) {
	if err := s.check(ctx, OpPatch, p.Ref); err != nil {
		return remote.Record{}, err
	}
	set, err := remote.NormalizeFields(p.Set)
	if err != nil {
		return remote.Record{}, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.recs[p.Ref]
	if !ok {
		return remote.Record{}, fmt.Errorf("%s: %w", p.Ref, errs.ErrRecordNotFound)
	}
	if e.rec.Fields == nil {
		e.rec.Fields = make(map[string]any, len(set))
	}
	for k, v := range set {
		e.rec.Fields[k] = v
	}
	if p.Deleted != nil {
		e.rec.IsDeleted = *p.Deleted
	}
	s.touch(e, p.ModifiedBy)
	return e.rec.Clone(), nil
}

// Delete removes the record permanently.
func (s *Store) Delete(ctx context.Context, ref remote.Ref) error {
	if err := s.check(ctx, OpDelete, ref); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[ref]; !ok {
		return fmt.Errorf("%s: %w", ref, errs.ErrRecordNotFound)
	}
	delete(s.recs, ref)
	return nil
}

// Len returns the number of stored records of type t, tombstones included.
func (s *Store) Len(t remote.EntityType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for ref := range s.recs {
		if ref.Type == t {
			n++
		}
	}
	return n
}

// Get returns a copy of one record regardless of tombstone state.
func (s *Store) Get(ref remote.Ref) (remote.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.recs[ref]
	if !ok {
		return remote.Record{}, false
	}
	return e.rec.Clone(), true
}

func (s *Store) touch(e *entry, by string) {
	e.rec.ModificationCount++
	e.rec.UpdatedAt = s.now()
	if by != "" {
		e.rec.ModifiedBy = by
	}
}
