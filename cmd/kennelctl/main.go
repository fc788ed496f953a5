// Command kennelctl is the front-desk client of the kennel record store.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig configures the zap logger. Logs go to stderr.
type LogConfig struct {
	Level string `long:"level" env:"LEVEL" default:"warn" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Logging level"`
}

// Config is the top-level configuration of kennelctl.
var Config = new(struct {
	Addr       string        `long:"addr" env:"KENNEL_ADDR" default:"localhost:8443" description:"Record store address used by login"`
	CAFile     string        `long:"ca-file" env:"KENNEL_CA_FILE" description:"PEM bundle trusted for the server certificate"`
	SkipVerify bool          `long:"insecure-skip-verify" description:"Do not verify the server certificate"`
	Plaintext  bool          `long:"plaintext" env:"KENNEL_PLAINTEXT" description:"Connect without TLS (local development only)"`
	Home       string        `long:"home" env:"KENNEL_HOME" description:"Directory holding the session, sync state and activity log"`
	Timeout    time.Duration `long:"timeout" env:"KENNEL_TIMEOUT" default:"15s" description:"Per-request timeout"`

	Log LogConfig `group:"Logging" namespace:"log" env-namespace:"KENNEL_LOG"`
})

func newLogger(cfg LogConfig) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.DisableStacktrace = true
	return zc.Build()
}

// execute runs fn against the real filesystem and network until SIGINT or SIGTERM.
func execute(fn func(context.Context, *app) error) error {
	log, err := newLogger(Config.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	home := Config.Home
	if home == "" {
		home = homeDir()
	}
	a := &app{
		fs:      afero.NewOsFs(),
		home:    home,
		addr:    Config.Addr,
		out:     os.Stdout,
		log:     log,
		now:     time.Now,
		connect: grpcConnector(log),
		login:   grpcLogin(log),
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, a)
}

func main() {
	parser := flags.NewParser(Config, flags.Default)
	parser.LongDescription = `kennelctl checks dogs in and out, records feedings, potty breaks and
medications, and keeps a local activity log. Changes show locally at once
and are written to the record store in the background.`

	_, _ = parser.AddCommand("login", "Sign in to the record store", `
Sign in and store the access token under --home. The password is read from
--password or the KENNEL_PASSWORD environment variable.
`, &loginCmd{})
	_, _ = parser.AddCommand("migrate", "Migrate legacy dog records", `
Split legacy dog records into persistent profiles and visits. Other commands
refuse to run until the migration has completed once.
`, &migrateCmd{})
	_, _ = parser.AddCommand("list", "List visits", `
List the visits of dogs in the kennel. --history includes soft-deleted visits.
`, &listCmd{})
	_, _ = parser.AddCommand("sync", "Fetch changes from the record store", `
Fetch records changed since the last sync, or everything with --full.
`, &syncCmd{})
	_, _ = parser.AddCommand("watch", "Keep a live list of present dogs", `
Poll the record store for changes and reprint the list when it changes.
`, &watchCmd{})
	_, _ = parser.AddCommand("check-in", "Check a dog in", `
Start a visit. A known dog (same name, owner and phone) reuses its profile.
`, &checkInCmd{})
	_, _ = parser.AddCommand("check-out", "Check a dog out", `
End a visit. VISIT is a visit id, an id prefix or a dog name.
`, &checkOutCmd{})
	_, _ = parser.AddCommand("extend", "Extend a boarding stay", `
Move the boarding end of a visit.
`, &extendCmd{})
	_, _ = parser.AddCommand("feed", "Record a feeding", "", &feedCmd{})
	_, _ = parser.AddCommand("potty", "Record a potty break", "", &pottyCmd{})
	_, _ = parser.AddCommand("medicate", "Record a medication dose", `
Record a dose. A name found in the dog's medication catalog is linked to it.
`, &medicateCmd{})
	_, _ = parser.AddCommand("delete-visit", "Soft-delete a visit", "", &deleteVisitCmd{})
	_, _ = parser.AddCommand("purge-dog", "Permanently delete a dog", `
Delete a dog's profile, every visit and every care record. Cannot be undone.
`, &purgeDogCmd{})
	_, _ = parser.AddCommand("log", "Print the local activity log", "", &logCmd{})
	_, _ = parser.AddCommand("log-clear", "Clear the local activity log", "", &logClearCmd{})

	if _, err := parser.Parse(); err != nil {
		if fe, ok := err.(*flags.Error); ok && fe.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
