package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/kennelsync/internal/errs"
	"github.com/and161185/kennelsync/internal/model"
)

func testServeConfig() ServeConfig {
	return ServeConfig{
		JWTKey:             "k",
		AccessTTL:          time.Hour,
		MaxRecordsPerVisit: 10,
		Plaintext:          true,
		AdminUser:          "admin",
		AdminPassword:      "admin-password",
	}
}

func TestOpsRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "kennel_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	healthy := true
	srv := httptest.NewServer(opsRouter(reg, func(context.Context) error {
		if healthy {
			return nil
		}
		return errs.ErrTransient
	}))
	defer srv.Close()

	res, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	_ = res.Body.Close()

	healthy = false
	res, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	_ = res.Body.Close()

	res, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	_ = res.Body.Close()
	require.NoError(t, err)
	require.Contains(t, string(body), "kennel_test_total 1")
}

func TestBootstrapAdmin(t *testing.T) {
	ctx := context.Background()
	be := openMemory()
	log := zaptest.NewLogger(t)
	cfg := testServeConfig()

	require.NoError(t, bootstrapAdmin(ctx, cfg, be, log))
	// idempotent
	require.NoError(t, bootstrapAdmin(ctx, cfg, be, log))

	st, err := be.staff.GetByUsername(ctx, "admin")
	require.NoError(t, err)
	require.Equal(t, model.RoleAdmin, st.Role)

	cfg.AdminPassword = ""
	require.Error(t, bootstrapAdmin(ctx, cfg, openMemory(), log))
}

func TestBuildApp_Memory(t *testing.T) {
	be := openMemory()
	reg := prometheus.NewRegistry()
	a, err := buildApp(testServeConfig(), be, zaptest.NewLogger(t), reg)
	require.NoError(t, err)
	info := a.grpc.GetServiceInfo()
	require.Contains(t, info, "kennel.store.v1.RecordStore")
	require.Contains(t, info, "grpc.health.v1.Health")

	_, err = buildApp(ServeConfig{TLSCert: "missing.pem", TLSKey: "missing.pem"}, be, zaptest.NewLogger(t), prometheus.NewRegistry())
	require.Error(t, err)
}

func TestAddStaff_Create(t *testing.T) {
	ctx := context.Background()
	be := openMemory()

	cmd := &addStaffCmd{Username: "kim", Role: "staff"}
	_, err := cmd.create(ctx, be.staff)
	require.Error(t, err)

	cmd.Password = "kennel-open"
	id, err := cmd.create(ctx, be.staff)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = cmd.create(ctx, be.staff)
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}
