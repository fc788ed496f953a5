package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/kennelsync/internal/model"
)

// StaffRepository provides access to staff accounts.
type StaffRepository interface {
	// Create inserts a new account. A taken username yields errs.ErrAlreadyExists.
	Create(ctx context.Context, s *model.Staff) error
	// GetByID loads an account by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Staff, error)
	// GetByUsername loads an account by username.
	GetByUsername(ctx context.Context, username string) (*model.Staff, error)
}
