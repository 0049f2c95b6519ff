// Package snapshot runs one market snapshot per asset: it subscribes to
// the asset's option topics, consumes events until every expected
// maturity date and the index price have been captured or the session
// deadline expires, and writes each capture through the store.
package snapshot

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"optionflow/config"
	"optionflow/internal/feed"
	"optionflow/internal/metrics"
	"optionflow/internal/schedule"
	"optionflow/internal/store"
	"optionflow/internal/stream"
	"optionflow/logger"
	"optionflow/models"
)

// Subscriber opens an event sequence for one asset. *feed.Client
// satisfies it.
type Subscriber interface {
	Subscribe(asset string, maturityDates []time.Time) (stream.Source[feed.Event], error)
}

// SessionResult is the outcome of one asset's session.
type SessionResult struct {
	Asset        string
	Outcome      string
	StoredDates  int
	IndexStored  bool
	MissingDates []string
	Err          error
}

// Report aggregates one orchestration run.
type Report struct {
	Started   time.Time
	Duration  time.Duration
	Sessions  []SessionResult
	Completed int
	TimedOut  int
	Failed    int
}

// Orchestrator coordinates one snapshot run across all configured
// assets.
type Orchestrator struct {
	cfg        *config.Config
	subscriber Subscriber
	store      store.Store
	recorder   *metrics.Recorder
	log        *logger.Log

	now func() time.Time
}

func New(cfg *config.Config, subscriber Subscriber, st store.Store, recorder *metrics.Recorder) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		subscriber: subscriber,
		store:      st,
		recorder:   recorder,
		log:        logger.GetLogger(),
		now:        time.Now,
	}
}

// Run executes one snapshot: maturity dates are resolved once, the
// store is connected once, and every asset runs its session in its own
// goroutine. A session failure never aborts the other sessions. The
// store is always disconnected before Run returns; disconnect errors
// are logged and swallowed.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	started := o.now()
	log := o.log.WithComponent("snapshot")

	dates := schedule.ResolveMaturityDates(started)
	keys := make([]string, len(dates))
	for i, d := range dates {
		keys[i] = schedule.MaturityKey(d)
	}
	log.WithFields(logger.Fields{
		"assets":         o.cfg.Snapshot.Assets,
		"maturity_dates": keys,
	}).Info("starting snapshot run")

	if err := o.store.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	defer func() {
		if err := o.store.Disconnect(context.Background()); err != nil {
			log.WithError(err).Warn("failed to disconnect store")
		}
	}()

	results := make([]SessionResult, len(o.cfg.Snapshot.Assets))
	var wg sync.WaitGroup
	for i, asset := range o.cfg.Snapshot.Assets {
		wg.Add(1)
		go func(i int, asset string) {
			defer wg.Done()
			results[i] = o.runSession(ctx, asset, dates)
		}(i, asset)
	}
	wg.Wait()

	report := &Report{
		Started:  started,
		Duration: o.now().Sub(started),
		Sessions: results,
	}
	for _, res := range results {
		switch res.Outcome {
		case metrics.OutcomeCompleted:
			report.Completed++
		case metrics.OutcomeTimedOut:
			report.TimedOut++
		default:
			report.Failed++
		}
	}
	log.WithFields(logger.Fields{
		"completed": report.Completed,
		"timed_out": report.TimedOut,
		"failed":    report.Failed,
		"duration":  report.Duration.String(),
	}).Info("snapshot run finished")
	return report, nil
}

// runSession captures one asset's snapshot. Panics inside a session are
// contained here so a bad asset cannot take the run down.
func (o *Orchestrator) runSession(ctx context.Context, asset string, dates []time.Time) (result SessionResult) {
	log := o.log.WithComponent("snapshot").WithField("asset", asset)

	defer func() {
		if r := recover(); r != nil {
			result = SessionResult{
				Asset:   asset,
				Outcome: metrics.OutcomeFailed,
				Err:     fmt.Errorf("session panic: %v", r),
			}
			log.WithError(result.Err).Error("session panicked")
		}
		o.recorder.RecordSession(ctx, asset, result.Outcome)
	}()

	src, err := o.subscriber.Subscribe(asset, dates)
	if err != nil {
		log.WithError(err).Error("failed to subscribe")
		return SessionResult{Asset: asset, Outcome: metrics.OutcomeFailed, Err: err}
	}
	defer src.Stop()

	sessionCtx, cancel := context.WithTimeout(ctx, o.cfg.Snapshot.SessionTimeout)
	defer cancel()

	expected := make(map[string]bool, len(dates))
	for _, d := range dates {
		expected[schedule.MaturityKey(d)] = false
	}
	indexStored := false
	stored := 0

	complete := func() bool {
		if !indexStored {
			return false
		}
		for _, ok := range expected {
			if !ok {
				return false
			}
		}
		return true
	}

	reason := "deadline"
	for !complete() {
		event, ok := src.Next(sessionCtx)
		if !ok {
			if sessionCtx.Err() == nil {
				reason = "stream_closed"
			}
			break
		}
		switch {
		case event.Index != nil:
			if indexStored {
				continue
			}
			item := *event.Index
			item.ID = o.store.NewID()
			if err := o.store.StoreIndexPrice(sessionCtx, item); err != nil {
				log.WithError(err).Error("failed to store index price")
				return SessionResult{Asset: asset, Outcome: metrics.OutcomeFailed, Err: err}
			}
			indexStored = true
		case event.Batch != nil:
			key := event.Batch.MaturityDate
			seen, want := expected[key]
			if !want || seen {
				continue
			}
			batch := o.assignIDs(*event.Batch)
			if err := o.store.StoreOptionBatch(sessionCtx, batch); err != nil {
				log.WithError(err).WithField("maturity_date", key).Error("failed to store option batch")
				return SessionResult{Asset: asset, Outcome: metrics.OutcomeFailed, Err: err}
			}
			expected[key] = true
			stored++
		}
	}

	if complete() {
		log.WithField("stored_dates", stored).Info("session completed")
		return SessionResult{
			Asset:       asset,
			Outcome:     metrics.OutcomeCompleted,
			StoredDates: stored,
			IndexStored: true,
		}
	}

	missing := make([]string, 0, len(expected))
	for key, ok := range expected {
		if !ok {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	log.WithFields(logger.Fields{
		"reason":        reason,
		"stored_dates":  stored,
		"index_stored":  indexStored,
		"missing_dates": missing,
	}).Warn("session ended incomplete")
	return SessionResult{
		Asset:        asset,
		Outcome:      metrics.OutcomeTimedOut,
		StoredDates:  stored,
		IndexStored:  indexStored,
		MissingDates: missing,
	}
}

func (o *Orchestrator) assignIDs(batch models.OptionBatch) models.OptionBatch {
	items := make([]models.OptionQuote, len(batch.Items))
	for i, item := range batch.Items {
		item.ID = o.store.NewID()
		items[i] = item
	}
	batch.Items = items
	return batch
}
