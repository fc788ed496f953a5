package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/kennelsync/internal/limiter"
	"github.com/and161185/kennelsync/internal/migrate"
	"github.com/and161185/kennelsync/internal/remote/memstore"
	"github.com/and161185/kennelsync/internal/repository"
	"github.com/and161185/kennelsync/internal/repository/memory"
	"github.com/and161185/kennelsync/internal/repository/postgres"
)

// backend bundles the repositories chosen by --db.storage.
type backend struct {
	records repository.RecordRepository
	staff   repository.StaffRepository
	lim     limiter.Limiter
	ping    func(context.Context) error
	close   func()
}

func openPostgres(ctx context.Context, cfg DBConfig, log *zap.Logger) (*backend, error) {
	ver, err := migrate.Up(ctx, cfg.DSN, log)
	if err != nil {
		return nil, err
	}
	log.Info("schema ready", zap.Int64("version", ver))

	db, pool, err := postgres.New(ctx, cfg.DSN, cfg.MaxConns)
	if err != nil {
		return nil, err
	}
	return &backend{
		records: postgres.NewRecordRepo(db),
		staff:   postgres.NewStaffRepo(db),
		lim:     limiter.NewPG(pool, limiter.DefaultPolicy),
		ping:    pool.Ping,
		close:   db.Close,
	}, nil
}

func openMemory() *backend {
	return &backend{
		records: memstore.New(),
		staff:   memory.NewStaffRepo(),
		lim:     limiter.NewMemory(limiter.DefaultPolicy),
		ping:    func(context.Context) error { return nil },
		close:   func() {},
	}
}

func openBackend(ctx context.Context, cfg DBConfig, log *zap.Logger) (*backend, error) {
	switch cfg.Storage {
	case "memory":
		log.Warn("using in-memory storage; records are lost on exit")
		return openMemory(), nil
	case "postgres":
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		return openPostgres(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}
}
