package syncengine

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/kennelsync/internal/audit"
	"github.com/and161185/kennelsync/internal/errs"
	"github.com/and161185/kennelsync/internal/model"
	"github.com/and161185/kennelsync/internal/remote"
)

// mutation is one optimistic change. apply runs on the owner goroutine and
// returns the exact inverse of what it did; write runs in the background.
type mutation struct {
	action  string
	visitID uuid.UUID
	dogID   uuid.UUID
	target  uuid.UUID
	detail  string
	apply   func() (undo func(), err error)
	write   func(ctx context.Context) error
}

func outcome(err error) string {
	if err != nil {
		return "rolled_back"
	}
	return "committed"
}

func reason(err error) string {
	switch {
	case errors.Is(err, errs.ErrNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, errs.ErrRecordNotFound):
		return "not_found"
	case errors.Is(err, errs.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, errs.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, errs.ErrTransient):
		return "transient"
	default:
		return "other"
	}
}

// submit runs the optimistic protocol: local apply now, remote write in the
// background, then commit or rollback, then audit, then resolve.
func (e *Engine) submit(ctx context.Context, m mutation) *Operation {
	if err := e.checkSession(); err != nil {
		e.metrics.Mutations.WithLabelValues(m.action, "rejected").Inc()
		return failedOperation(m.target, err)
	}
	if err := e.begin(); err != nil {
		return failedOperation(m.target, err)
	}

	var (
		undo     func()
		applyErr error
		subject  model.DogWithVisit
		found    bool
	)
	if err := e.exec(func() {
		subject, found = e.subject(m.visitID, m.dogID)
		undo, applyErr = m.apply()
		if applyErr != nil {
			return
		}
		if !found {
			subject, _ = e.subject(m.visitID, m.dogID)
		}
		e.notify()
	}); err != nil {
		e.inflight.Done()
		return failedOperation(m.target, err)
	}
	if applyErr != nil {
		e.inflight.Done()
		e.metrics.Mutations.WithLabelValues(m.action, "rejected").Inc()
		return failedOperation(m.target, applyErr)
	}

	op := newOperation(m.target)
	bg := context.WithoutCancel(ctx)
	go func() {
		defer e.inflight.Done()
		err := m.write(bg)

		// quit is closed only after inflight drains, so exec cannot fail here
		_ = e.exec(func() {
			if err != nil {
				undo()
				e.setError(err)
			} else {
				// only fetches move fetchedSince
				e.setLastSync(e.now())
			}
			e.notify()
		})

		e.metrics.Mutations.WithLabelValues(m.action, outcome(err)).Inc()
		detail := m.detail
		if err != nil {
			e.metrics.Rollbacks.WithLabelValues(reason(err)).Inc()
			e.log.Warn("remote write failed, rolled back",
				zap.String("action", m.action),
				zap.Stringer("target", m.target),
				zap.Error(err),
			)
			detail = fmt.Sprintf("%s (rolled back: %v)", detail, err)
		}
		e.audit.Record(audit.Entry(m.action, e.actor, subject, detail))
		op.resolve(err)
	}()
	return op
}

// subject finds the entity a mutation is about, for the activity log. Loop only.
func (e *Engine) subject(visitID, dogID uuid.UUID) (model.DogWithVisit, bool) {
	for _, t := range e.targets() {
		if visitID != uuid.Nil {
			if d, ok := t.c.Find(visitID); ok {
				return d, true
			}
			continue
		}
		if dogID != uuid.Nil {
			if ds := t.c.FindByDog(dogID); len(ds) > 0 {
				return ds[0], true
			}
		}
	}
	return model.DogWithVisit{}, false
}

// patchRemote writes a field subset as the engine's actor.
func (e *Engine) patchRemote(ctx context.Context, ref remote.Ref, set map[string]any, deleted *bool) error {
	_, err := remote.ApplyPatch(ctx, e.store, remote.Patch{Ref: ref, Set: set, Deleted: deleted, ModifiedBy: e.actor.ID})
	return err
}

func (e *Engine) createRemote(ctx context.Context, r remote.Record) error {
	r.ModifiedBy = e.actor.ID
	_, err := e.store.Create(ctx, r)
	return err
}
