package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/and161185/kennelsync/internal/model"
)

var errNoSession = errors.New("not logged in (run kennelctl login)")

// session is what login leaves behind for later commands.
type session struct {
	Addr        string     `json:"addr"`
	AccessToken string     `json:"access_token"`
	ExpiresAt   time.Time  `json:"expires_at"`
	StaffID     string     `json:"staff_id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name"`
	Role        model.Role `json:"role"`
}

func (s session) actor() model.Actor {
	name := s.DisplayName
	if name == "" {
		name = s.Username
	}
	return model.Actor{ID: s.StaffID, Name: name}
}

func homeDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "kennelsync")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "kennelsync")
}

func (a *app) sessionPath() string  { return filepath.Join(a.home, "session.json") }
func (a *app) statePath() string    { return filepath.Join(a.home, "state.json") }
func (a *app) activityPath() string { return filepath.Join(a.home, "activity.log") }

func (a *app) saveSession(s session) error {
	if err := a.fs.MkdirAll(a.home, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", a.home, err)
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(a.fs, a.sessionPath(), b, 0o600)
}

func (a *app) loadSession() (session, error) {
	b, err := afero.ReadFile(a.fs, a.sessionPath())
	if errors.Is(err, os.ErrNotExist) {
		return session{}, errNoSession
	} else if err != nil {
		return session{}, fmt.Errorf("read session: %w", err)
	}
	var s session
	if err := json.Unmarshal(b, &s); err != nil {
		return session{}, fmt.Errorf("decode session: %w", err)
	}
	if s.AccessToken == "" {
		return session{}, errNoSession
	}
	if !s.ExpiresAt.IsZero() && !a.now().Before(s.ExpiresAt) {
		return session{}, fmt.Errorf("session expired %s: %w", s.ExpiresAt.Format(time.RFC3339), errNoSession)
	}
	return s, nil
}
