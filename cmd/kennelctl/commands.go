package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/kennelsync/internal/audit"
	"github.com/and161185/kennelsync/internal/dogmigration"
	"github.com/and161185/kennelsync/internal/errs"
	"github.com/and161185/kennelsync/internal/model"
	"github.com/and161185/kennelsync/internal/syncengine"
)

type loginCmd struct {
	Username string `long:"username" short:"u" required:"true" description:"Staff login name"`
	Password string `long:"password" env:"KENNEL_PASSWORD" description:"Staff password"`
}

func (cmd *loginCmd) Execute([]string) error { return execute(cmd.run) }

func (cmd *loginCmd) run(ctx context.Context, a *app) error {
	if cmd.Password == "" {
		return errors.New("a password is required (--password or KENNEL_PASSWORD)")
	}
	res, err := a.login(ctx, a.addr, cmd.Username, cmd.Password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	s := session{
		Addr:        a.addr,
		AccessToken: res.Tokens.AccessToken,
		ExpiresAt:   res.Tokens.ExpiresAt,
		StaffID:     res.Staff.ID.String(),
		Username:    res.Staff.Username,
		DisplayName: res.Staff.DisplayName,
		Role:        res.Staff.Role,
	}
	if err := a.saveSession(s); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "logged in as %s (%s) until %s\n",
		s.actor().Name, s.Role, s.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

type migrateCmd struct{}

func (cmd *migrateCmd) Execute([]string) error { return execute(cmd.run) }

func (cmd *migrateCmd) run(ctx context.Context, a *app) error {
	ws, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer ws.close()

	c := dogmigration.New(ws.store, ws.local, dogmigration.Config{
		Actor:  ws.sess.actor(),
		Logger: a.log,
		Audit:  ws.audit,
		Observer: func(p dogmigration.Progress) {
			fmt.Fprintf(a.out, "%3.0f%%  %s\n", p.Fraction*100, p.Text)
		},
	})
	needed, err := c.Needed()
	if err != nil {
		return err
	}
	if !needed {
		fmt.Fprintln(a.out, "already migrated")
		return nil
	}
	rep, err := c.Run(ctx)
	if err != nil {
		return fmt.Errorf("migration stopped, run it again to resume: %w", explain(err))
	}
	renderMigration(a.out, rep)
	return nil
}

type listCmd struct {
	All     bool `long:"all" description:"Include visits that have ended"`
	History bool `long:"history" description:"Include soft-deleted visits (implies --all)"`
}

func (cmd *listCmd) Execute([]string) error { return execute(cmd.run) }

func (cmd *listCmd) run(ctx context.Context, a *app) error {
	ws, err := a.openEngine(ctx)
	if err != nil {
		return err
	}
	defer ws.close()

	entries, err := cmd.entries(ctx, ws.engine)
	if err != nil {
		return explain(err)
	}
	if !cmd.All && !cmd.History {
		now := a.now()
		var present []model.DogWithVisit
		for _, d := range entries {
			if d.IsCurrentlyPresent(now) {
				present = append(present, d)
			}
		}
		entries = present
	}
	renderVisits(a.out, entries, a.now())
	return nil
}

func (cmd *listCmd) entries(ctx context.Context, e *syncengine.Engine) ([]model.DogWithVisit, error) {
	if cmd.History {
		if _, err := e.LoadHistory(ctx); err != nil {
			return nil, err
		}
		st, err := e.State()
		return st.AllHistory, err
	}
	if _, err := e.Refresh(ctx); err != nil {
		return nil, err
	}
	return e.Present()
}

type syncCmd struct {
	History bool `long:"history" description:"Also reload the history including soft-deleted visits"`
}

func (cmd *syncCmd) Execute([]string) error { return execute(cmd.run) }

func (cmd *syncCmd) run(ctx context.Context, a *app) error {
	ws, err := a.openEngine(ctx)
	if err != nil {
		return err
	}
	defer ws.close()

	rep, err := ws.engine.Refresh(ctx)
	if err != nil {
		return explain(err)
	}
	renderReport(a.out, rep)
	if cmd.History {
		if rep, err = ws.engine.LoadHistory(ctx); err != nil {
			return explain(err)
		}
		renderReport(a.out, rep)
	}
	return nil
}

type watchCmd struct {
	Interval  time.Duration `long:"interval" default:"30s" description:"Time between incremental fetches"`
	FullEvery int           `long:"full-every" default:"20" description:"Do a full fetch every N polls (0 disables)"`
}

func (cmd *watchCmd) Execute([]string) error { return execute(cmd.run) }

func (cmd *watchCmd) run(ctx context.Context, a *app) error {
	if cmd.Interval <= 0 {
		return errors.New("--interval must be positive")
	}
	ws, err := a.openEngine(ctx)
	if err != nil {
		return err
	}
	defer ws.close()
	e := ws.engine

	if _, err := e.Refresh(ctx); err != nil {
		return explain(err)
	}
	select {
	case <-e.Changes():
	default:
	}
	if err := cmd.print(a, e); err != nil {
		return err
	}

	ticker := time.NewTicker(cmd.Interval)
	defer ticker.Stop()
	for polls := 1; ; {
		select {
		case <-ctx.Done():
			return nil
		case <-e.Changes():
			if err := cmd.print(a, e); err != nil {
				return err
			}
		case <-ticker.C:
			var rep syncengine.FetchReport
			if cmd.FullEvery > 0 && polls%cmd.FullEvery == 0 {
				rep, err = e.Refresh(ctx)
			} else {
				rep, err = e.RefreshIncremental(ctx)
			}
			polls++
			switch {
			case errors.Is(err, errs.ErrNotAuthenticated):
				return explain(err)
			case err != nil && ctx.Err() == nil:
				a.log.Warn("sync failed", zap.Error(err))
				fmt.Fprintf(a.out, "sync failed: %v\n", err)
			case rep.Anomaly:
				renderReport(a.out, rep)
			}
		}
	}
}

func (cmd *watchCmd) print(a *app, e *syncengine.Engine) error {
	st, err := e.State()
	if err != nil {
		return err
	}
	now := a.now()
	var present []model.DogWithVisit
	for _, d := range st.Present {
		if d.IsCurrentlyPresent(now) {
			present = append(present, d)
		}
	}
	fmt.Fprintf(a.out, "[%s] %d dog(s) present\n", now.Local().Format("15:04:05"), len(present))
	renderVisits(a.out, present, now)
	if st.LastError != "" {
		fmt.Fprintf(a.out, "last error: %s\n", st.LastError)
		e.ClearError()
	}
	return nil
}

type checkInCmd struct {
	Name          string `long:"name" required:"true" description:"Dog name"`
	Owner         string `long:"owner" required:"true" description:"Owner name"`
	Phone         string `long:"phone" description:"Owner phone"`
	Allergies     string `long:"allergies" description:"Allergies (new profiles only)"`
	FeedingNotes  string `long:"feeding-notes" description:"Feeding notes (new profiles only)"`
	At            string `long:"at" description:"Arrival time (default now)"`
	BoardingUntil string `long:"boarding-until" description:"Board overnight until this time"`
	DaycareFed    bool   `long:"daycare-fed" description:"The kennel feeds the dog during daycare"`
	NeedsWalking  bool   `long:"needs-walking" description:"The dog needs to be walked"`
	WalkingNotes  string `long:"walking-notes" description:"Walking notes"`
	Notes         string `long:"notes" description:"Visit notes"`
	Instructions  string `long:"instructions" description:"Special instructions"`
}

func (cmd *checkInCmd) Execute([]string) error { return execute(cmd.run) }

func (cmd *checkInCmd) request(now time.Time) (syncengine.CheckInRequest, error) {
	at, err := parseWhen(cmd.At, now)
	if err != nil {
		return syncengine.CheckInRequest{}, err
	}
	req := syncengine.CheckInRequest{
		Dog: model.PersistentDog{
			Name:         strings.TrimSpace(cmd.Name),
			OwnerName:    strings.TrimSpace(cmd.Owner),
			OwnerPhone:   strings.TrimSpace(cmd.Phone),
			Allergies:    cmd.Allergies,
			FeedingNotes: cmd.FeedingNotes,
			Gender:       model.GenderUnknown,
		},
		ArrivalAt: at,
		Details: syncengine.VisitDetails{
			IsDaycareFed:        cmd.DaycareFed,
			NeedsWalking:        cmd.NeedsWalking,
			WalkingNotes:        cmd.WalkingNotes,
			Notes:               cmd.Notes,
			SpecialInstructions: cmd.Instructions,
		},
	}
	if cmd.BoardingUntil != "" {
		until, err := parseWhen(cmd.BoardingUntil, now)
		if err != nil {
			return syncengine.CheckInRequest{}, err
		}
		if !until.After(at) {
			return syncengine.CheckInRequest{}, errors.New("--boarding-until must be after the arrival time")
		}
		req.Details.IsBoarding = true
		req.Details.BoardingEndAt = &until
	}
	return req, nil
}

func (cmd *checkInCmd) run(ctx context.Context, a *app) error {
	req, err := cmd.request(a.now())
	if err != nil {
		return err
	}
	ws, err := a.openEngine(ctx)
	if err != nil {
		return err
	}
	defer ws.close()

	// profiles are matched against the cache
	if _, err := ws.engine.Refresh(ctx); err != nil {
		return explain(err)
	}
	op := ws.engine.CheckIn(ctx, req)
	if err := op.Wait(ctx); err != nil {
		return explain(err)
	}
	fmt.Fprintf(a.out, "checked in %s, visit %s\n", req.Dog.Name, op.Target)
	return nil
}

// submitFunc starts a mutation on a resolved visit and names it for the user.
type submitFunc func(ctx context.Context, e *syncengine.Engine, d model.DogWithVisit) (*syncengine.Operation, string)

// mutateVisit refreshes the cache, resolves ref and waits for the submitted mutation.
func (a *app) mutateVisit(ctx context.Context, ref string, submit submitFunc) error {
	ws, err := a.openEngine(ctx)
	if err != nil {
		return err
	}
	defer ws.close()

	if _, err := ws.engine.Refresh(ctx); err != nil {
		return explain(err)
	}
	entries, err := ws.engine.Present()
	if err != nil {
		return err
	}
	d, err := resolveVisit(entries, ref, a.now())
	if err != nil {
		return err
	}
	op, what := submit(ctx, ws.engine, d)
	if err := op.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", what, explain(err))
	}
	fmt.Fprintf(a.out, "%s: done\n", what)
	return nil
}

type visitArgs struct {
	Visit string `positional-arg-name:"VISIT" required:"yes"`
}

type checkOutCmd struct {
	At   string    `long:"at" description:"Departure time (default now)"`
	Args visitArgs `positional-args:"yes"`
}

func (cmd *checkOutCmd) Execute([]string) error { return execute(cmd.run) }

func (cmd *checkOutCmd) run(ctx context.Context, a *app) error {
	at, err := parseWhen(cmd.At, a.now())
	if err != nil {
		return err
	}
	return a.mutateVisit(ctx, cmd.Args.Visit, func(ctx context.Context, e *syncengine.Engine, d model.DogWithVisit) (*syncengine.Operation, string) {
		return e.CheckOut(ctx, d.ID(), at), "check out " + d.DisplayName()
	})
}

type extendCmd struct {
	Until string    `long:"until" required:"true" description:"New boarding end"`
	Args  visitArgs `positional-args:"yes"`
}

func (cmd *extendCmd) Execute([]string) error { return execute(cmd.run) }

func (cmd *extendCmd) run(ctx context.Context, a *app) error {
	until, err := parseWhen(cmd.Until, a.now())
	if err != nil {
		return err
	}
	return a.mutateVisit(ctx, cmd.Args.Visit, func(ctx context.Context, e *syncengine.Engine, d model.DogWithVisit) (*syncengine.Operation, string) {
		return e.ExtendBoarding(ctx, d.ID(), until), "extend " + d.DisplayName()
	})
}

type feedCmd struct {
	Type  string    `long:"type" default:"breakfast" choice:"breakfast" choice:"lunch" choice:"dinner" choice:"snack" description:"Meal"`
	Notes string    `long:"notes" description:"Notes"`
	Args  visitArgs `positional-args:"yes"`
}

func (cmd *feedCmd) Execute([]string) error { return execute(cmd.run) }

func (cmd *feedCmd) run(ctx context.Context, a *app) error {
	return a.mutateVisit(ctx, cmd.Args.Visit, func(ctx context.Context, e *syncengine.Engine, d model.DogWithVisit) (*syncengine.Operation, string) {
		return e.AddFeedingRecord(ctx, d.ID(), model.FeedingType(cmd.Type), cmd.Notes), cmd.Type + " for " + d.DisplayName()
	})
}

type pottyCmd struct {
	Type  string    `long:"type" default:"pee" choice:"pee" choice:"poop" choice:"both" choice:"accident" description:"Kind of break"`
	Notes string    `long:"notes" description:"Notes"`
	Args  visitArgs `positional-args:"yes"`
}

func (cmd *pottyCmd) Execute([]string) error { return execute(cmd.run) }

func (cmd *pottyCmd) run(ctx context.Context, a *app) error {
	return a.mutateVisit(ctx, cmd.Args.Visit, func(ctx context.Context, e *syncengine.Engine, d model.DogWithVisit) (*syncengine.Operation, string) {
		return e.AddPottyRecord(ctx, d.ID(), model.PottyType(cmd.Type), cmd.Notes), cmd.Type + " for " + d.DisplayName()
	})
}

type medicateCmd struct {
	Medication string    `long:"medication" short:"m" required:"true" description:"Medication name"`
	Notes      string    `long:"notes" description:"Dose notes"`
	Args       visitArgs `positional-args:"yes"`
}

func (cmd *medicateCmd) Execute([]string) error { return execute(cmd.run) }

func (cmd *medicateCmd) run(ctx context.Context, a *app) error {
	return a.mutateVisit(ctx, cmd.Args.Visit, func(ctx context.Context, e *syncengine.Engine, d model.DogWithVisit) (*syncengine.Operation, string) {
		medID := findMedication(d.Dog, cmd.Medication)
		return e.AddMedicationRecord(ctx, d.ID(), medID, cmd.Medication, cmd.Notes), cmd.Medication + " for " + d.DisplayName()
	})
}

type deleteVisitCmd struct {
	Args visitArgs `positional-args:"yes"`
}

func (cmd *deleteVisitCmd) Execute([]string) error { return execute(cmd.run) }

func (cmd *deleteVisitCmd) run(ctx context.Context, a *app) error {
	return a.mutateVisit(ctx, cmd.Args.Visit, func(ctx context.Context, e *syncengine.Engine, d model.DogWithVisit) (*syncengine.Operation, string) {
		return e.SoftDeleteVisit(ctx, d.ID()), "delete visit of " + d.DisplayName()
	})
}

type purgeDogCmd struct {
	Yes  bool `long:"yes" description:"Confirm the permanent deletion"`
	Args struct {
		Dog string `positional-arg-name:"DOG" required:"yes"`
	} `positional-args:"yes"`
}

func (cmd *purgeDogCmd) Execute([]string) error { return execute(cmd.run) }

func (cmd *purgeDogCmd) run(ctx context.Context, a *app) error {
	if !cmd.Yes {
		return errors.New("permanent deletion needs --yes")
	}
	ws, err := a.openEngine(ctx)
	if err != nil {
		return err
	}
	defer ws.close()

	if _, err := ws.engine.LoadHistory(ctx); err != nil {
		return explain(err)
	}
	st, err := ws.engine.State()
	if err != nil {
		return err
	}
	dog, err := resolveDog(st.AllHistory, cmd.Args.Dog)
	if err != nil {
		return err
	}
	if err := ws.engine.PermanentDeleteDog(ctx, dog.ID).Wait(ctx); err != nil {
		return fmt.Errorf("purge %s: %w", dog.Name, explain(err))
	}
	fmt.Fprintf(a.out, "purged %s (%s) and all visits\n", dog.Name, dog.OwnerName)
	return nil
}

// activityLog opens the local log without a session.
func (a *app) activityLog() *audit.Logger {
	return audit.New(a.fs, audit.Config{Path: a.activityPath()}, nil, a.log)
}

type logCmd struct {
	Tail int `long:"tail" short:"n" description:"Print only the last N entries"`
}

func (cmd *logCmd) Execute([]string) error { return execute(cmd.run) }

func (cmd *logCmd) run(_ context.Context, a *app) error {
	l := a.activityLog()
	defer l.Close()
	lines, err := l.Lines()
	if err != nil {
		return err
	}
	if cmd.Tail > 0 && len(lines) > cmd.Tail {
		lines = lines[len(lines)-cmd.Tail:]
	}
	for _, line := range lines {
		fmt.Fprintln(a.out, line)
	}
	return nil
}

type logClearCmd struct{}

func (cmd *logClearCmd) Execute([]string) error { return execute(cmd.run) }

func (cmd *logClearCmd) run(_ context.Context, a *app) error {
	l := a.activityLog()
	defer l.Close()
	if err := l.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "activity log cleared")
	return nil
}
