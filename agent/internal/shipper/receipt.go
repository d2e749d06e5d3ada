package shipper

import (
	"context"
	"sync"
)

// Receipt resolves once the event it was issued for has been attempted.
// Err reports the outcome of that first attempt; a failed event stays queued
// and is retried even though its Receipt has already resolved.
type Receipt struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newReceipt() *Receipt {
	return &Receipt{done: make(chan struct{})}
}

// ResolvedReceipt returns a Receipt that is already resolved with err.
func ResolvedReceipt(err error) *Receipt {
	r := newReceipt()
	r.resolve(err)
	return r
}

func (r *Receipt) resolve(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// Done is closed when the Receipt resolves.
func (r *Receipt) Done() <-chan struct{} { return r.done }

// Err returns the attempt outcome, or nil while unresolved.
func (r *Receipt) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until the Receipt resolves or ctx ends.
func (r *Receipt) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
