package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/kennelsync/internal/errs"
	"github.com/and161185/kennelsync/internal/remote"
)

// RecordRepo implements RecordRepository on the records table. Field maps are
// stored as jsonb; timestamps come from the database clock.
type RecordRepo struct{ db *DB }

// NewRecordRepo constructs a record repository.
func NewRecordRepo(db *DB) *RecordRepo { return &RecordRepo{db: db} }

const recordCols = `id, type, fields, is_deleted, modified_by, modification_count, created_at, updated_at`

// where renders the predicate as SQL conditions. Field keys are sorted so the
// statement text is stable.
func where(t remote.EntityType, p remote.Predicate) (string, []any) {
	conds := []string{"type=$1"}
	args := []any{string(t)}
	if !p.IncludeDeleted {
		conds = append(conds, "is_deleted=false")
	}
	if len(p.IDs) > 0 {
		ids := make([]string, len(p.IDs))
		for i, id := range p.IDs {
			ids[i] = id.String()
		}
		args = append(args, ids)
		conds = append(conds, fmt.Sprintf("id = ANY($%d::uuid[])", len(args)))
	}
	keys := make([]string, 0, len(p.Where))
	for k := range p.Where {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, k, p.Where[k])
		conds = append(conds, fmt.Sprintf("fields->>$%d = $%d", len(args)-1, len(args)))
	}
	return strings.Join(conds, " AND "), args
}

func scanRecord(row pgx.Row) (remote.Record, error) {
	var (
		r   remote.Record
		typ string
		raw []byte
	)
	if err := row.Scan(&r.ID, &typ, &raw, &r.IsDeleted, &r.ModifiedBy, &r.ModificationCount, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return remote.Record{}, err
	}
	r.Type = remote.EntityType(typ)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &r.Fields); err != nil {
			return remote.Record{}, fmt.Errorf("record %s: decode fields: %w", r.Ref(), err)
		}
	}
	return r, nil
}

func (r *RecordRepo) collect(ctx context.Context, q string, args ...any) ([]remote.Record, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []remote.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Query returns records of type t matching p in creation order.
func (r *RecordRepo) Query(ctx context.Context, t remote.EntityType, p remote.Predicate) ([]remote.Record, error) {
	cond, args := where(t, p)
	q := `SELECT ` + recordCols + ` FROM records WHERE ` + cond + ` ORDER BY created_at, id`
	return r.collect(ctx, q, args...)
}

// QueryModifiedSince returns records of t updated strictly after since, tombstones included.
func (r *RecordRepo) QueryModifiedSince(ctx context.Context, t remote.EntityType, since time.Time) ([]remote.Record, error) {
	q := `SELECT ` + recordCols + ` FROM records WHERE type=$1 AND updated_at > $2 ORDER BY updated_at, id`
	return r.collect(ctx, q, string(t), since)
}

// Count returns the number of records matching p.
func (r *RecordRepo) Count(ctx context.Context, t remote.EntityType, p remote.Predicate) (int, error) {
	cond, args := where(t, p)
	var n int
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM records WHERE `+cond, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func encodeFields(fields map[string]any) (string, error) {
	norm, err := remote.NormalizeFields(fields)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	if norm == nil {
		norm = map[string]any{}
	}
	b, err := json.Marshal(norm)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	return string(b), nil
}

// Create inserts rec with modification count 1. A nil id gets a fresh one.
func (r *RecordRepo) Create(ctx context.Context, rec remote.Record) (remote.Record, error) {
	if rec.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return remote.Record{}, err
		}
		rec.ID = id
	}
	fields, err := encodeFields(rec.Fields)
	if err != nil {
		return remote.Record{}, err
	}
	const q = `
INSERT INTO records (id, type, fields, is_deleted, modified_by, modification_count, created_at, updated_at)
VALUES ($1, $2, $3::jsonb, $4, $5, 1, now(), now())
RETURNING ` + recordCols
	out, err := scanRecord(r.db.Pool.QueryRow(ctx, q, rec.ID, string(rec.Type), fields, rec.IsDeleted, rec.ModifiedBy))
	if isUniqueViolation(err) {
		return remote.Record{}, fmt.Errorf("%s: %w", rec.Ref(), errs.ErrAlreadyExists)
	}
	return out, err
}

// Update replaces fields and tombstone of an existing record.
func (r *RecordRepo) Update(ctx context.Context, rec remote.Record) (remote.Record, error) {
	fields, err := encodeFields(rec.Fields)
	if err != nil {
		return remote.Record{}, err
	}
	const q = `
UPDATE records
SET fields = $3::jsonb, is_deleted = $4, modified_by = COALESCE(NULLIF($5, ''), modified_by),
    modification_count = modification_count + 1, updated_at = now()
WHERE type=$1 AND id=$2
RETURNING ` + recordCols
	out, err := scanRecord(r.db.Pool.QueryRow(ctx, q, string(rec.Type), rec.ID, fields, rec.IsDeleted, rec.ModifiedBy))
	if errors.Is(err, pgx.ErrNoRows) {
		return remote.Record{}, fmt.Errorf("%s: %w", rec.Ref(), errs.ErrRecordNotFound)
	}
	return out, err
}

// Patch merges p.Set into the stored fields and optionally flips the tombstone.
func (r *RecordRepo) Patch(ctx context.Context, p remote.Patch) (remote.Record, error) {
	fields, err := encodeFields(p.Set)
	if err != nil {
		return remote.Record{}, err
	}
	const q = `
UPDATE records
SET fields = fields || $3::jsonb, is_deleted = COALESCE($4, is_deleted),
    modified_by = COALESCE(NULLIF($5, ''), modified_by),
    modification_count = modification_count + 1, updated_at = now()
WHERE type=$1 AND id=$2
RETURNING ` + recordCols
	out, err := scanRecord(r.db.Pool.QueryRow(ctx, q, string(p.Type), p.ID, fields, p.Deleted, p.ModifiedBy))
	if errors.Is(err, pgx.ErrNoRows) {
		return remote.Record{}, fmt.Errorf("%s: %w", p.Ref, errs.ErrRecordNotFound)
	}
	return out, err
}

// Delete removes a record permanently.
func (r *RecordRepo) Delete(ctx context.Context, ref remote.Ref) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM records WHERE type=$1 AND id=$2`, string(ref.Type), ref.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", ref, errs.ErrRecordNotFound)
	}
	return nil
}
