package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/kennelsync/internal/errs"
	"github.com/and161185/kennelsync/internal/remote"
	"github.com/and161185/kennelsync/internal/repository"
)

// DefaultMaxRecordsPerVisit caps child records of one type under a visit.
const DefaultMaxRecordsPerVisit = 500

// RecordService is the role-checked record API behind the gRPC handlers.
type RecordService interface {
	Query(ctx context.Context, p Principal, t remote.EntityType, pred remote.Predicate) ([]remote.Record, error)
	QueryModifiedSince(ctx context.Context, p Principal, t remote.EntityType, since time.Time) ([]remote.Record, error)
	Create(ctx context.Context, p Principal, r remote.Record) (remote.Record, error)
	Update(ctx context.Context, p Principal, r remote.Record) (remote.Record, error)
	Patch(ctx context.Context, p Principal, patch remote.Patch) (remote.Record, error)
	Delete(ctx context.Context, p Principal, ref remote.Ref) error
}

type RecordServiceImpl struct {
	repo     repository.RecordRepository
	maxChild int
	log      *zap.Logger
}

// NewRecordService constructs RecordService. maxChild <= 0 selects the default quota.
func NewRecordService(repo repository.RecordRepository, maxChild int, log *zap.Logger) *RecordServiceImpl {
	if maxChild <= 0 {
		maxChild = DefaultMaxRecordsPerVisit
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RecordServiceImpl{repo: repo, maxChild: maxChild, log: log}
}

func checkType(t remote.EntityType) error {
	if !t.Valid() {
		return fmt.Errorf("%w: unknown record type %q", errs.ErrValidation, t)
	}
	return nil
}

func canWrite(p Principal) error {
	if !p.Role.CanWrite() {
		return fmt.Errorf("%w: role %s is read-only", errs.ErrPermissionDenied, p.Role)
	}
	return nil
}

// Query returns records of t matching pred.
func (s *RecordServiceImpl) Query(ctx context.Context, _ Principal, t remote.EntityType, pred remote.Predicate) ([]remote.Record, error) {
	if err := checkType(t); err != nil {
		return nil, err
	}
	return s.repo.Query(ctx, t, pred)
}

// QueryModifiedSince returns records of t updated after since, tombstones included.
func (s *RecordServiceImpl) QueryModifiedSince(ctx context.Context, _ Principal, t remote.EntityType, since time.Time) ([]remote.Record, error) {
	if err := checkType(t); err != nil {
		return nil, err
	}
	return s.repo.QueryModifiedSince(ctx, t, since)
}

// Create validates, enforces the per-visit quota and stores r stamped with the caller.
func (s *RecordServiceImpl) Create(ctx context.Context, p Principal, r remote.Record) (remote.Record, error) {
	if err := checkType(r.Type); err != nil {
		return remote.Record{}, err
	}
	if err := canWrite(p); err != nil {
		return remote.Record{}, err
	}
	if r.Type.IsChild() {
		if err := s.checkQuota(ctx, r); err != nil {
			return remote.Record{}, err
		}
	}
	r.ModifiedBy = p.ID.String()
	return s.repo.Create(ctx, r)
}

func (s *RecordServiceImpl) checkQuota(ctx context.Context, r remote.Record) error {
	visitID := remote.FieldText(r.Fields["visit_id"])
	if visitID == "" {
		return fmt.Errorf("%w: %s without visit_id", errs.ErrValidation, r.Type)
	}
	n, err := s.repo.Count(ctx, r.Type, remote.ByField("visit_id", visitID))
	if err != nil {
		return err
	}
	if n >= s.maxChild {
		s.log.Warn("per-visit quota reached",
			zap.String("type", string(r.Type)),
			zap.String("visit_id", visitID),
			zap.Int("limit", s.maxChild),
		)
		return fmt.Errorf("%w: %d %s records for visit %s", errs.ErrQuotaExceeded, n, r.Type, visitID)
	}
	return nil
}

// Update replaces a record's fields and tombstone.
func (s *RecordServiceImpl) Update(ctx context.Context, p Principal, r remote.Record) (remote.Record, error) {
	if err := checkType(r.Type); err != nil {
		return remote.Record{}, err
	}
	if err := canWrite(p); err != nil {
		return remote.Record{}, err
	}
	r.ModifiedBy = p.ID.String()
	return s.repo.Update(ctx, r)
}

// Patch merges a partial update into a record.
func (s *RecordServiceImpl) Patch(ctx context.Context, p Principal, patch remote.Patch) (remote.Record, error) {
	if err := checkType(patch.Type); err != nil {
		return remote.Record{}, err
	}
	if err := canWrite(p); err != nil {
		return remote.Record{}, err
	}
	patch.ModifiedBy = p.ID.String()
	return s.repo.Patch(ctx, patch)
}

// Delete removes a record permanently. Admins may purge anything; other
// writers only a record they created that nobody has modified since.
func (s *RecordServiceImpl) Delete(ctx context.Context, p Principal, ref remote.Ref) error {
	if err := checkType(ref.Type); err != nil {
		return err
	}
	if !p.Role.CanPurge() {
		if err := s.checkOwnUntouched(ctx, p, ref); err != nil {
			return err
		}
	}
	if err := s.repo.Delete(ctx, ref); err != nil {
		return err
	}
	s.log.Info("record purged", zap.Stringer("ref", ref), zap.Stringer("by", p.ID))
	return nil
}

func (s *RecordServiceImpl) checkOwnUntouched(ctx context.Context, p Principal, ref remote.Ref) error {
	if err := canWrite(p); err != nil {
		return err
	}
	recs, err := s.repo.Query(ctx, ref.Type, remote.Predicate{IDs: []uuid.UUID{ref.ID}, IncludeDeleted: true})
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return fmt.Errorf("%s: %w", ref, errs.ErrRecordNotFound)
	}
	if r := recs[0]; r.ModifiedBy != p.ID.String() || r.ModificationCount > 1 {
		return fmt.Errorf("%w: only admins may delete permanently", errs.ErrPermissionDenied)
	}
	return nil
}
