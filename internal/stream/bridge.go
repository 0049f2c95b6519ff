// Package stream adapts push-based data sources into pull-based,
// cancellable sequences consumed by snapshot sessions.
package stream

import (
	"context"
	"sync"
)

// Source is a pull-based sequence of values. Next blocks until a value
// is available, the sequence ends, or ctx is done; the second return is
// false once the sequence has terminated. Stop ends the sequence and is
// safe to call more than once.
type Source[T any] interface {
	Next(ctx context.Context) (T, bool)
	Stop()
}

// Teardown releases the underlying subscription of a Bridge.
type Teardown func()

// Bridge turns a callback-driven source into a Source. The setup
// function registers the push callback with the external source and
// returns a teardown handle. Values are delivered in the order the
// callback received them; undelivered values queue up to the buffer
// size, beyond which the producer blocks.
type Bridge[T any] struct {
	values    chan T
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	teardown Teardown
}

// NewBridge constructs a Bridge over the given setup function. Setup
// receives the emit callback for incoming values and a stop function the
// source should invoke when it closes on its own. The returned teardown
// is invoked exactly once when the bridge stops.
func NewBridge[T any](buffer int, setup func(emit func(T), stop func()) (Teardown, error)) (*Bridge[T], error) {
	if buffer < 1 {
		buffer = 1
	}
	b := &Bridge[T]{
		values: make(chan T, buffer),
		done:   make(chan struct{}),
	}
	teardown, err := setup(b.emit, b.Stop)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.teardown = teardown
	b.mu.Unlock()

	// The source may have signalled closure while setup was still
	// running; run the teardown it could not reach yet.
	select {
	case <-b.done:
		b.Stop()
	default:
	}
	return b, nil
}

func (b *Bridge[T]) emit(v T) {
	// Values arriving after Stop are discarded.
	select {
	case <-b.done:
		return
	default:
	}
	select {
	case b.values <- v:
	case <-b.done:
	}
}

// Next returns the next value in arrival order. It returns false once
// the bridge has been stopped and all values queued before the stop have
// been delivered, or when ctx is done.
func (b *Bridge[T]) Next(ctx context.Context) (T, bool) {
	var zero T
	select {
	case v := <-b.values:
		return v, true
	default:
	}
	select {
	case v := <-b.values:
		return v, true
	case <-ctx.Done():
		return zero, false
	case <-b.done:
		// Drain values that were queued before the stop.
		select {
		case v := <-b.values:
			return v, true
		default:
			return zero, false
		}
	}
}

// Stop ends the sequence and tears down the underlying subscription.
// Values already queued remain consumable; later emits are dropped.
// Stop is idempotent.
func (b *Bridge[T]) Stop() {
	b.closeOnce.Do(func() { close(b.done) })

	b.mu.Lock()
	teardown := b.teardown
	b.teardown = nil
	b.mu.Unlock()
	if teardown != nil {
		teardown()
	}
}
