// Package audit keeps the append-only activity log: a local text file plus a
// best-effort mirror into the remote store.
package audit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/and161185/kennelsync/internal/model"
	"github.com/and161185/kennelsync/internal/remote"
)

// Config tunes the logger.
type Config struct {
	Path             string        // local log file
	QueueSize        int           // pending mirror writes; extra entries are not mirrored
	MirrorTimeout    time.Duration // per remote write
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Logger records activity. Recording never fails the caller.
type Logger struct {
	fs   afero.Fs
	path string
	log  *zap.Logger
	now  func() time.Time

	fileMu sync.Mutex

	mirror  remote.Store
	breaker *CircuitBreaker
	timeout time.Duration
	queue   chan model.ActivityLogRecord
	wg      sync.WaitGroup

	qmu      sync.RWMutex
	isClosed bool
}

// New creates a logger. A nil mirror keeps entries local only.
func New(fs afero.Fs, cfg Config, mirror remote.Store, log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.MirrorTimeout <= 0 {
		cfg.MirrorTimeout = 10 * time.Second
	}
	l := &Logger{
		fs:      fs,
		path:    cfg.Path,
		log:     log.Named("audit"),
		now:     time.Now,
		mirror:  mirror,
		breaker: NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		timeout: cfg.MirrorTimeout,
	}
	if mirror != nil {
		l.queue = make(chan model.ActivityLogRecord, cfg.QueueSize)
		l.wg.Add(1)
		go l.run()
	}
	return l
}

// Entry builds a record for a mutation on target.
func Entry(action string, actor model.Actor, target model.DogWithVisit, detail string) model.ActivityLogRecord {
	return model.ActivityLogRecord{
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Action:    action,
		DogID:     target.DogID().String(),
		DogName:   target.DisplayName(),
		Detail:    detail,
	}
}

// Record appends rec to the local file and queues it for the mirror.
// Failures are logged and swallowed.
func (l *Logger) Record(rec model.ActivityLogRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now()
	}
	if rec.ID == uuid.Nil {
		if id, err := uuid.NewV7(); err == nil {
			rec.ID = id
		}
	}
	if err := l.appendLine(rec.Line()); err != nil {
		l.log.Warn("append activity log", zap.String("action", rec.Action), zap.Error(err))
	}
	if l.queue == nil {
		return
	}
	l.qmu.RLock()
	defer l.qmu.RUnlock()
	if l.isClosed {
		return
	}
	select {
	case l.queue <- rec:
	default:
		l.log.Warn("activity mirror queue full, entry kept locally only", zap.String("action", rec.Action))
	}
}

func (l *Logger) appendLine(line string) error {
	l.fileMu.Lock()
	defer l.fileMu.Unlock()
	if err := l.fs.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return err
	}
	f, err := l.fs.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	_, werr := f.WriteString(line + "\n")
	cerr := f.Close()
	return errors.Join(werr, cerr)
}

// Read returns the whole local log. A missing file reads as empty.
func (l *Logger) Read() (string, error) {
	l.fileMu.Lock()
	defer l.fileMu.Unlock()
	b, err := afero.ReadFile(l.fs, l.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("read activity log: %w", err)
	}
	return string(b), nil
}

// Lines returns the local log split into entries.
func (l *Logger) Lines() ([]string, error) {
	s, err := l.Read()
	if err != nil || s == "" {
		return nil, err
	}
	return strings.Split(strings.TrimRight(s, "\n"), "\n"), nil
}

// Clear empties the local log. Mirrored entries are untouched.
func (l *Logger) Clear() error {
	l.fileMu.Lock()
	defer l.fileMu.Unlock()
	if err := l.fs.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear activity log: %w", err)
	}
	return nil
}

// Close stops accepting mirror writes and waits for the queue to drain.
func (l *Logger) Close() {
	l.qmu.Lock()
	if !l.isClosed {
		l.isClosed = true
		if l.queue != nil {
			close(l.queue)
		}
	}
	l.qmu.Unlock()
	l.wg.Wait()
}

func (l *Logger) run() {
	defer l.wg.Done()
	for rec := range l.queue {
		l.mirrorOne(rec)
	}
}

func (l *Logger) mirrorOne(rec model.ActivityLogRecord) {
	if !l.breaker.Allow() {
		l.log.Debug("activity mirror circuit open, skipping", zap.String("action", rec.Action))
		return
	}
	r, err := remote.ActivityRecordOf(rec)
	if err != nil {
		l.log.Warn("encode activity entry", zap.Error(err))
		return
	}
	r.ModifiedBy = rec.ActorID
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	if _, err := l.mirror.Create(ctx, r); err != nil {
		l.breaker.RecordFailure()
		l.log.Warn("mirror activity entry", zap.String("action", rec.Action), zap.Error(err))
		return
	}
	l.breaker.RecordSuccess()
}
