// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/kennelsync/internal/remote"
)

// RecordRepository stores typed records for the record store service.
// memstore.Store and postgres.RecordRepo implement it.
type RecordRepository interface {
	remote.Store
	remote.Patcher

	// Count returns the number of records of type t matching p.
	Count(ctx context.Context, t remote.EntityType, p remote.Predicate) (int, error)
}
