package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"optionflow/config"
	"optionflow/internal/feed"
	"optionflow/internal/metrics"
	"optionflow/internal/schedule"
	"optionflow/internal/stream"
	"optionflow/models"
)

// scriptedSource replays a fixed sequence of events, then reports the
// stream as closed unless hold is set, in which case it blocks until
// the context expires.
type scriptedSource struct {
	events []feed.Event
	hold   bool

	mu      sync.Mutex
	pos     int
	stopped bool
}

func (s *scriptedSource) Next(ctx context.Context) (feed.Event, bool) {
	s.mu.Lock()
	if s.pos < len(s.events) {
		event := s.events[s.pos]
		s.pos++
		s.mu.Unlock()
		return event, true
	}
	hold := s.hold && !s.stopped
	s.mu.Unlock()
	if hold {
		<-ctx.Done()
	}
	return feed.Event{}, false
}

func (s *scriptedSource) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

type fakeSubscriber struct {
	mu      sync.Mutex
	sources map[string]*scriptedSource
	errs    map[string]error
}

func (f *fakeSubscriber) Subscribe(asset string, _ []time.Time) (stream.Source[feed.Event], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[asset]; err != nil {
		return nil, err
	}
	src, ok := f.sources[asset]
	if !ok {
		return nil, fmt.Errorf("no script for asset %s", asset)
	}
	return src, nil
}

type fakeStore struct {
	mu          sync.Mutex
	connected   bool
	disconnects int
	connectErr  error
	batchErr    error
	nextID      int
	indexes     []models.IndexPrice
	batches     []models.OptionBatch
}

func (f *fakeStore) Connect(context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) Disconnect(context.Context) error {
	f.mu.Lock()
	f.disconnects++
	f.connected = false
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) NewID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return fmt.Sprintf("id-%d", f.nextID)
}

func (f *fakeStore) StoreIndexPrice(_ context.Context, item models.IndexPrice) error {
	f.mu.Lock()
	f.indexes = append(f.indexes, item)
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) StoreOptionBatch(_ context.Context, batch models.OptionBatch) error {
	if f.batchErr != nil {
		return f.batchErr
	}
	f.mu.Lock()
	f.batches = append(f.batches, batch)
	f.mu.Unlock()
	return nil
}

func testConfig(assets ...string) *config.Config {
	cfg := &config.Config{}
	cfg.Snapshot.Assets = assets
	cfg.Snapshot.SessionTimeout = 200 * time.Millisecond
	return cfg
}

// fullScript builds one event per expected maturity date plus an index
// tick, which is exactly what a completed session needs.
func fullScript(asset string, dates []time.Time) []feed.Event {
	events := []feed.Event{{Index: &models.IndexPrice{TradingPair: asset + "USDT", Price: 100}}}
	for _, d := range dates {
		events = append(events, feed.Event{Batch: &models.OptionBatch{
			Asset:        asset,
			MaturityDate: schedule.MaturityKey(d),
			Items:        []models.OptionQuote{{TradingPair: asset + "-USDT"}},
		}})
	}
	return events
}

func newOrchestrator(cfg *config.Config, sub Subscriber, st *fakeStore) *Orchestrator {
	o := New(cfg, sub, st, nil)
	o.now = func() time.Time { return time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC) }
	return o
}

func TestRunCompletesSession(t *testing.T) {
	now := time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC)
	dates := schedule.ResolveMaturityDates(now)

	st := &fakeStore{}
	sub := &fakeSubscriber{sources: map[string]*scriptedSource{
		"BTC": {events: fullScript("BTC", dates)},
	}}
	o := newOrchestrator(testConfig("BTC"), sub, st)

	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Completed != 1 || report.TimedOut != 0 || report.Failed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(st.indexes) != 1 || len(st.batches) != len(dates) {
		t.Fatalf("stored %d indexes and %d batches, want 1 and %d", len(st.indexes), len(st.batches), len(dates))
	}
	if st.indexes[0].ID == "" {
		t.Errorf("index price stored without an assigned ID")
	}
	for _, batch := range st.batches {
		for _, item := range batch.Items {
			if item.ID == "" {
				t.Errorf("option quote stored without an assigned ID")
			}
		}
	}
	if st.disconnects != 1 {
		t.Errorf("store disconnected %d times, want 1", st.disconnects)
	}
}

func TestRunDuplicatesIgnoredFirstWins(t *testing.T) {
	now := time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC)
	dates := schedule.ResolveMaturityDates(now)

	events := fullScript("BTC", dates)
	// Repeat the index tick and the first maturity batch before the
	// rest of the script.
	dup := []feed.Event{events[0], events[1], events[0], events[1]}
	dup = append(dup, events[2:]...)

	st := &fakeStore{}
	sub := &fakeSubscriber{sources: map[string]*scriptedSource{
		"BTC": {events: dup},
	}}
	o := newOrchestrator(testConfig("BTC"), sub, st)

	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Completed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(st.indexes) != 1 {
		t.Errorf("stored %d index prices, want 1", len(st.indexes))
	}
	if len(st.batches) != len(dates) {
		t.Errorf("stored %d batches, want %d", len(st.batches), len(dates))
	}
}

func TestRunSessionFailureIsolated(t *testing.T) {
	now := time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC)
	dates := schedule.ResolveMaturityDates(now)

	st := &fakeStore{}
	sub := &fakeSubscriber{
		sources: map[string]*scriptedSource{
			"ETH": {events: fullScript("ETH", dates)},
		},
		errs: map[string]error{"BTC": errors.New("dial failed")},
	}
	o := newOrchestrator(testConfig("BTC", "ETH"), sub, st)

	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Completed != 1 || report.Failed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	var failed, completed SessionResult
	for _, res := range report.Sessions {
		switch res.Asset {
		case "BTC":
			failed = res
		case "ETH":
			completed = res
		}
	}
	if failed.Outcome != metrics.OutcomeFailed || failed.Err == nil {
		t.Errorf("BTC session: %+v", failed)
	}
	if completed.Outcome != metrics.OutcomeCompleted {
		t.Errorf("ETH session: %+v", completed)
	}
}

func TestRunTimeoutReportsMissingDates(t *testing.T) {
	now := time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC)
	dates := schedule.ResolveMaturityDates(now)

	// Only the index tick and the first maturity arrive; the source
	// then blocks until the session deadline.
	partial := fullScript("BTC", dates)[:2]

	st := &fakeStore{}
	sub := &fakeSubscriber{sources: map[string]*scriptedSource{
		"BTC": {events: partial, hold: true},
	}}
	o := newOrchestrator(testConfig("BTC"), sub, st)

	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.TimedOut != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	res := report.Sessions[0]
	if !res.IndexStored || res.StoredDates != 1 {
		t.Errorf("unexpected session result: %+v", res)
	}
	if len(res.MissingDates) != len(dates)-1 {
		t.Errorf("missing %d dates, want %d", len(res.MissingDates), len(dates)-1)
	}
	if st.disconnects != 1 {
		t.Errorf("store disconnected %d times, want 1", st.disconnects)
	}
}

func TestRunStoreConnectErrorAbortsRun(t *testing.T) {
	st := &fakeStore{connectErr: errors.New("no credentials")}
	sub := &fakeSubscriber{}
	o := newOrchestrator(testConfig("BTC"), sub, st)

	if _, err := o.Run(context.Background()); err == nil {
		t.Fatal("Run succeeded despite store connect failure")
	}
}

func TestRunStoreWriteErrorFailsSession(t *testing.T) {
	now := time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC)
	dates := schedule.ResolveMaturityDates(now)

	st := &fakeStore{batchErr: errors.New("throttled")}
	src := &scriptedSource{events: fullScript("BTC", dates)}
	sub := &fakeSubscriber{sources: map[string]*scriptedSource{"BTC": src}}
	o := newOrchestrator(testConfig("BTC"), sub, st)

	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Failed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if !src.stopped {
		t.Error("source was not stopped after the session failed")
	}
}
