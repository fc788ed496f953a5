// Package memory holds in-process repository implementations for development
// servers and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/kennelsync/internal/errs"
	"github.com/and161185/kennelsync/internal/model"
)

// StaffRepo keeps staff accounts in a map.
type StaffRepo struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]model.Staff
	byName map[string]uuid.UUID
}

// NewStaffRepo returns an empty repository.
func NewStaffRepo() *StaffRepo {
	return &StaffRepo{byID: make(map[uuid.UUID]model.Staff), byName: make(map[string]uuid.UUID)}
}

// Create inserts s. CreatedAt is set when zero.
func (r *StaffRepo) Create(_ context.Context, s *model.Staff) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[s.Username]; ok {
		return fmt.Errorf("staff %q: %w", s.Username, errs.ErrAlreadyExists)
	}
	if _, ok := r.byID[s.ID]; ok {
		return fmt.Errorf("staff %s: %w", s.ID, errs.ErrAlreadyExists)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	r.byID[s.ID] = *s
	r.byName[s.Username] = s.ID
	return nil
}

// GetByID returns a copy of the account.
func (r *StaffRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Staff, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &s, nil
}

// GetByUsername returns a copy of the account.
func (r *StaffRepo) GetByUsername(ctx context.Context, username string) (*model.Staff, error) {
	r.mu.RLock()
	id, ok := r.byName[username]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.ErrNotFound
	}
	return r.GetByID(ctx, id)
}
