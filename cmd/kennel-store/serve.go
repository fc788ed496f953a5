package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/kennelsync/internal/api"
	"github.com/and161185/kennelsync/internal/errs"
	"github.com/and161185/kennelsync/internal/model"
	grpcserver "github.com/and161185/kennelsync/internal/server/grpc"
	"github.com/and161185/kennelsync/internal/service"
)

type serveCmd struct {
	ServeConfig
}

// app is the assembled server, before it starts listening.
type app struct {
	grpc   *grpc.Server
	health *health.Server
	ops    http.Handler
	be     *backend
}

func buildApp(cfg ServeConfig, be *backend, log *zap.Logger, reg *prometheus.Registry) (*app, error) {
	var opts []grpc.ServerOption
	if !cfg.Plaintext {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return nil, fmt.Errorf("load TLS cert/key: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}

	authSvc := service.NewAuthService(be.staff, []byte(cfg.JWTKey), cfg.AccessTTL, be.lim)
	recordSvc := service.NewRecordService(be.records, cfg.MaxRecordsPerVisit, log.Named("records"))

	metrics := grpc_prometheus.NewServerMetrics()
	metrics.EnableHandlingTimeHistogram()
	reg.MustRegister(metrics)

	opts = append(opts, grpc.ChainUnaryInterceptor(
		grpcserver.RecoverUnary(log),
		metrics.UnaryServerInterceptor(),
		grpcserver.AuthUnary(authSvc, grpcserver.PublicMethods()...),
		grpcserver.LoggingUnary(log.Named("grpc")),
	))
	s := grpc.NewServer(opts...)
	api.RegisterRecordStoreServer(s, grpcserver.New(authSvc, recordSvc, log))

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if cfg.Dev {
		reflection.Register(s)
	}
	metrics.InitializeMetrics(s)

	return &app{grpc: s, health: hs, ops: opsRouter(reg, be.ping), be: be}, nil
}

// bootstrapAdmin creates the admin account of an in-memory store.
func bootstrapAdmin(ctx context.Context, cfg ServeConfig, be *backend, log *zap.Logger) error {
	if cfg.AdminPassword == "" {
		return errors.New("--bootstrap-password is required with in-memory storage")
	}
	auth := service.NewAuthService(be.staff, []byte(cfg.JWTKey), cfg.AccessTTL, be.lim)
	_, err := auth.Register(ctx, cfg.AdminUser, "Administrator", cfg.AdminPassword, model.RoleAdmin)
	if err != nil && !errors.Is(err, errs.ErrAlreadyExists) {
		return err
	}
	log.Info("bootstrap admin ready", zap.String("username", cfg.AdminUser))
	return nil
}

func (cmd *serveCmd) Execute([]string) error {
	log, err := newLogger(Config.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	log.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cmd.Addr),
		zap.String("storage", Config.DB.Storage),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, Config.DB, log)
	if err != nil {
		return err
	}
	defer be.close()
	if Config.DB.Storage == "memory" {
		if err := bootstrapAdmin(ctx, cmd.ServeConfig, be, log); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a, err := buildApp(cmd.ServeConfig, be, log, reg)
	if err != nil {
		return err
	}
	return a.run(ctx, cmd.ServeConfig, log)
}

func (a *app) run(ctx context.Context, cfg ServeConfig, log *zap.Logger) error {
	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr), zap.Bool("tls", !cfg.Plaintext))
		return a.grpc.Serve(lis)
	})

	var ops *http.Server
	if cfg.OpsAddr != "" {
		ops = &http.Server{Addr: cfg.OpsAddr, Handler: a.ops, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			log.Info("ops listening", zap.String("addr", cfg.OpsAddr))
			if err := ops.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		a.health.Shutdown()
		done := make(chan struct{})
		go func() {
			a.grpc.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			a.grpc.Stop()
		}
		if ops != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ops.Shutdown(sctx)
		}
		return nil
	})

	err = g.Wait()
	log.Info("shutdown complete")
	return err
}
