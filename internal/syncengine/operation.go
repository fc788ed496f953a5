package syncengine

import (
	"context"

	"github.com/gofrs/uuid/v5"
)

// Operation is the pending result of one optimistic mutation. It resolves after
// the remote write has either committed or been rolled back locally, and the
// activity entry has been recorded.
type Operation struct {
	// Target is the id of the entity the mutation created or touched.
	Target uuid.UUID

	done chan struct{}
	err  error
}

func newOperation(target uuid.UUID) *Operation {
	return &Operation{Target: target, done: make(chan struct{})}
}

func failedOperation(target uuid.UUID, err error) *Operation {
	op := newOperation(target)
	op.resolve(err)
	return op
}

func (o *Operation) resolve(err error) {
	o.err = err
	close(o.done)
}

// Done is closed once the operation has settled.
func (o *Operation) Done() <-chan struct{} { return o.done }

// Err blocks until the operation settles and returns the remote outcome.
func (o *Operation) Err() error {
	<-o.done
	return o.err
}

// Wait is Err bounded by ctx. Giving up does not cancel the operation.
func (o *Operation) Wait(ctx context.Context) error {
	select {
	case <-o.done:
		return o.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
