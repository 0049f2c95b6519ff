package stream

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle wraps a Source and silently drops values that arrive within
// the minimum interval of the last forwarded value. Dropped values are
// not buffered or coalesced; the first value always passes.
type Throttle[T any] struct {
	src     Source[T]
	limiter *rate.Limiter
	now     func() time.Time
}

// NewThrottle wraps src with a minimum interval between forwarded
// values. A non-positive interval forwards everything.
func NewThrottle[T any](src Source[T], minInterval time.Duration) *Throttle[T] {
	var limiter *rate.Limiter
	if minInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	return &Throttle[T]{
		src:     src,
		limiter: limiter,
		now:     time.Now,
	}
}

// Next returns the next value that clears the rate limit.
func (t *Throttle[T]) Next(ctx context.Context) (T, bool) {
	for {
		v, ok := t.src.Next(ctx)
		if !ok {
			var zero T
			return zero, false
		}
		if t.limiter == nil || t.limiter.AllowN(t.now(), 1) {
			return v, true
		}
	}
}

// Stop stops the wrapped source.
func (t *Throttle[T]) Stop() {
	t.src.Stop()
}
