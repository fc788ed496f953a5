package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/and161185/kennelsync/internal/model"
)

func TestHomeDir_XDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	require.Equal(t, filepath.Join(dir, "kennelsync"), homeDir())
}

func TestSession_RoundTrip(t *testing.T) {
	clk := now
	a := &app{fs: afero.NewMemMapFs(), home: "/cfg", log: zap.NewNop(), now: func() time.Time { return clk }}

	_, err := a.loadSession()
	require.ErrorIs(t, err, errNoSession)

	want := session{
		Addr: "store:8443", AccessToken: "tok", ExpiresAt: now.Add(time.Hour),
		StaffID: "id-1", Username: "kim", Role: model.RoleAdmin,
	}
	require.NoError(t, a.saveSession(want))
	fi, err := a.fs.Stat(a.sessionPath())
	require.NoError(t, err)
	require.Equal(t, "session.json", fi.Name())

	got, err := a.loadSession()
	require.NoError(t, err)
	require.Equal(t, want.AccessToken, got.AccessToken)
	require.True(t, want.ExpiresAt.Equal(got.ExpiresAt))
	require.Equal(t, model.Actor{ID: "id-1", Name: "kim"}, got.actor())

	clk = now.Add(2 * time.Hour)
	_, err = a.loadSession()
	require.ErrorIs(t, err, errNoSession)
	require.Contains(t, err.Error(), "expired")
}

func TestSession_Corrupt(t *testing.T) {
	a := &app{fs: afero.NewMemMapFs(), home: "/cfg", now: time.Now}
	require.NoError(t, afero.WriteFile(a.fs, a.sessionPath(), []byte("{"), 0o600))
	_, err := a.loadSession()
	require.Error(t, err)
	require.NotErrorIs(t, err, errNoSession)

	require.NoError(t, afero.WriteFile(a.fs, a.sessionPath(), []byte(`{"addr":"x"}`), 0o600))
	_, err = a.loadSession()
	require.ErrorIs(t, err, errNoSession)
}
