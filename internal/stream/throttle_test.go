package stream

import (
	"context"
	"testing"
	"time"
)

// sliceSource replays a fixed set of values with per-value arrival
// times controlled by the test clock.
type sliceSource struct {
	values  []int
	arrival []time.Duration
	pos     int
	stopped bool
	clock   *time.Time
	base    time.Time
}

func (s *sliceSource) Next(ctx context.Context) (int, bool) {
	if s.stopped || s.pos >= len(s.values) {
		return 0, false
	}
	v := s.values[s.pos]
	*s.clock = s.base.Add(s.arrival[s.pos])
	s.pos++
	return v, true
}

func (s *sliceSource) Stop() { s.stopped = true }

func TestThrottleDropsBursts(t *testing.T) {
	base := time.Now()
	clock := base
	src := &sliceSource{
		values:  []int{1, 2, 3, 4},
		arrival: []time.Duration{0, 50 * time.Millisecond, 120 * time.Millisecond, 180 * time.Millisecond},
		clock:   &clock,
		base:    base,
	}
	th := NewThrottle[int](src, 100*time.Millisecond)
	th.now = func() time.Time { return clock }

	ctx := context.Background()
	var forwarded []int
	for {
		v, ok := th.Next(ctx)
		if !ok {
			break
		}
		forwarded = append(forwarded, v)
	}

	// Values at t=0 and t=120ms pass; t=50ms and t=180ms are dropped.
	if len(forwarded) != 2 || forwarded[0] != 1 || forwarded[1] != 3 {
		t.Fatalf("unexpected forwarded values: %v", forwarded)
	}
}

func TestThrottleZeroIntervalForwardsAll(t *testing.T) {
	base := time.Now()
	clock := base
	src := &sliceSource{
		values:  []int{1, 2, 3},
		arrival: []time.Duration{0, 0, 0},
		clock:   &clock,
		base:    base,
	}
	th := NewThrottle[int](src, 0)

	ctx := context.Background()
	count := 0
	for {
		if _, ok := th.Next(ctx); !ok {
			break
		}
		count++
	}
	if count != 3 {
		t.Fatalf("expected all values forwarded, got %d", count)
	}
}

func TestThrottleStopPropagates(t *testing.T) {
	base := time.Now()
	clock := base
	src := &sliceSource{values: []int{1}, arrival: []time.Duration{0}, clock: &clock, base: base}
	th := NewThrottle[int](src, time.Millisecond)
	th.Stop()
	if !src.stopped {
		t.Fatal("stop did not propagate to the wrapped source")
	}
}
