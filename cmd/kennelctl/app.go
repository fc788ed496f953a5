package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/and161185/kennelsync/internal/audit"
	"github.com/and161185/kennelsync/internal/convert"
	"github.com/and161185/kennelsync/internal/errs"
	"github.com/and161185/kennelsync/internal/localstate"
	"github.com/and161185/kennelsync/internal/remote"
	"github.com/and161185/kennelsync/internal/remote/grpcstore"
	"github.com/and161185/kennelsync/internal/syncengine"
)

// connectFunc opens an authenticated store at addr.
type connectFunc func(ctx context.Context, addr, token string) (remote.Store, io.Closer, error)

// loginFunc exchanges credentials for a token at addr.
type loginFunc func(ctx context.Context, addr, username, password string) (convert.LoginResult, error)

type app struct {
	fs      afero.Fs
	home    string
	addr    string
	out     io.Writer
	log     *zap.Logger
	now     func() time.Time
	connect connectFunc
	login   loginFunc
}

func dialConfig(token string) grpcstore.DialConfig {
	return grpcstore.DialConfig{
		CAFile:     Config.CAFile,
		SkipVerify: Config.SkipVerify,
		Plaintext:  Config.Plaintext,
		Token:      token,
	}
}

func grpcConnector(log *zap.Logger) connectFunc {
	return func(_ context.Context, addr, token string) (remote.Store, io.Closer, error) {
		cc, err := grpcstore.Dial(addr, dialConfig(token))
		if err != nil {
			return nil, nil, err
		}
		return grpcstore.New(cc, log, Config.Timeout, grpcstore.DefaultReadRetries), cc, nil
	}
}

func grpcLogin(log *zap.Logger) loginFunc {
	return func(ctx context.Context, addr, username, password string) (convert.LoginResult, error) {
		cc, err := grpcstore.Dial(addr, dialConfig(""))
		if err != nil {
			return convert.LoginResult{}, err
		}
		defer cc.Close()
		return grpcstore.New(cc, log, Config.Timeout, 0).Login(ctx, username, password)
	}
}

// workspace is an open session: remote store, local state and activity log.
type workspace struct {
	sess   session
	store  remote.Store
	local  *localstate.File
	audit  *audit.Logger
	engine *syncengine.Engine
	closer io.Closer
}

func (a *app) open(ctx context.Context) (*workspace, error) {
	sess, err := a.loadSession()
	if err != nil {
		return nil, err
	}
	addr := sess.Addr
	if addr == "" {
		addr = a.addr
	}
	store, closer, err := a.connect(ctx, addr, sess.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	return &workspace{
		sess:   sess,
		store:  store,
		local:  localstate.NewFile(a.fs, a.statePath()),
		audit:  audit.New(a.fs, audit.Config{Path: a.activityPath()}, store, a.log),
		closer: closer,
	}, nil
}

// openEngine opens a workspace with a started sync engine.
func (a *app) openEngine(ctx context.Context) (*workspace, error) {
	ws, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	ws.engine = syncengine.New(ws.store, ws.local, ws.audit, syncengine.Config{
		Actor:  ws.sess.actor(),
		Now:    a.now,
		Logger: a.log,
	})
	if err := ws.engine.Start(ctx); err != nil {
		ws.close()
		if errors.Is(err, errs.ErrMigrationRequired) {
			return nil, fmt.Errorf("%w (run kennelctl migrate)", err)
		}
		return nil, err
	}
	return ws, nil
}

// close stops the engine first so settling operations can still log.
func (ws *workspace) close() {
	if ws.engine != nil {
		ws.engine.Close()
	}
	ws.audit.Close()
	if ws.closer != nil {
		_ = ws.closer.Close()
	}
}

// explain adds a hint to errors the user can act on.
func explain(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errs.ErrNotAuthenticated):
		return fmt.Errorf("%w (run kennelctl login)", err)
	case errors.Is(err, errs.ErrPermissionDenied):
		return fmt.Errorf("%w (your role does not allow this)", err)
	case errors.Is(err, errs.ErrTransient):
		return fmt.Errorf("%w (the change was rolled back; try again)", err)
	}
	return err
}
