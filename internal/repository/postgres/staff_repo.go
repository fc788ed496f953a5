package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/kennelsync/internal/errs"
	"github.com/and161185/kennelsync/internal/model"
)

// StaffRepo implements StaffRepository using PostgreSQL.
type StaffRepo struct{ db *DB }

// NewStaffRepo constructs a staff repository.
func NewStaffRepo(db *DB) *StaffRepo { return &StaffRepo{db: db} }

// Create inserts a new staff row.
func (r *StaffRepo) Create(ctx context.Context, s *model.Staff) error {
	const q = `
INSERT INTO staff (id, username, display_name, role, pwd_hash, salt_auth)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Pool.Exec(ctx, q, s.ID, s.Username, s.DisplayName, string(s.Role), s.PwdHash, s.SaltAuth)
	if isUniqueViolation(err) {
		return fmt.Errorf("staff %q: %w", s.Username, errs.ErrAlreadyExists)
	}
	return err
}

const staffSelect = `
SELECT id, username, display_name, role, pwd_hash, salt_auth, created_at
FROM staff`

func scanStaff(row pgx.Row) (*model.Staff, error) {
	var (
		s    model.Staff
		role string
	)
	if err := row.Scan(&s.ID, &s.Username, &s.DisplayName, &role, &s.PwdHash, &s.SaltAuth, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	s.Role = model.Role(role)
	return &s, nil
}

// GetByID selects a staff account by ID.
func (r *StaffRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Staff, error) {
	return scanStaff(r.db.Pool.QueryRow(ctx, staffSelect+` WHERE id=$1`, id))
}

// GetByUsername selects a staff account by username.
func (r *StaffRepo) GetByUsername(ctx context.Context, username string) (*model.Staff, error) {
	return scanStaff(r.db.Pool.QueryRow(ctx, staffSelect+` WHERE username=$1`, username))
}
