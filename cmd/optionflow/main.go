package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"optionflow/config"
	"optionflow/internal/feed"
	"optionflow/internal/metrics"
	"optionflow/internal/snapshot"
	"optionflow/internal/store"
	"optionflow/internal/store/dynamo"
	"optionflow/internal/store/mongo"
	"optionflow/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	once := flag.Bool("once", false, "Run a single snapshot and exit")
	assets := flag.String("assets", "", "Comma-separated asset override, e.g. BTC,ETH")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	if *assets != "" {
		cfg.Snapshot.Assets = splitAssets(*assets)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Optionflow.Name,
		"version": cfg.Optionflow.Version,
		"backend": cfg.Storage.Backend,
		"assets":  cfg.Snapshot.Assets,
	}).Info("starting optionflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdown(cancel, log)

	st, err := newStore(cfg)
	if err != nil {
		log.WithError(err).Error("failed to create store")
		os.Exit(1)
	}

	recorder := metrics.NewRecorder(ctx, cfg.Metrics)
	orchestrator := snapshot.New(cfg, feed.NewClient(cfg), st, recorder)

	if *once || cfg.Snapshot.Interval <= 0 {
		if _, err := orchestrator.Run(ctx); err != nil {
			log.WithError(err).Error("snapshot run failed")
			os.Exit(1)
		}
		log.Info("optionflow stopped")
		return
	}

	runAligned(ctx, cfg.Snapshot.Interval, log, func() {
		if _, err := orchestrator.Run(ctx); err != nil {
			log.WithError(err).Error("snapshot run failed")
		}
	})

	completed, timedOut, failed := recorder.Counts()
	log.WithFields(logger.Fields{
		"sessions_completed": completed,
		"sessions_timed_out": timedOut,
		"sessions_failed":    failed,
	}).Info("optionflow stopped")
}

// runAligned fires run at instants aligned to the interval, so an
// hourly interval triggers on the hour. The first run waits for the
// next boundary.
func runAligned(ctx context.Context, interval time.Duration, log *logger.Log, run func()) {
	for {
		wait := time.Until(time.Now().Truncate(interval).Add(interval))
		log.WithFields(logger.Fields{"next_run_in": wait.String()}).Info("waiting for next snapshot")

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			run()
		case <-ctx.Done():
			timer.Stop()
			log.Warn("Shutdown requested.")
			return
		}
	}
}

func newStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Storage.Backend {
	case "dynamodb":
		return dynamo.New(cfg.Storage.Dynamo), nil
	case "mongodb":
		return mongo.New(cfg.Storage.Mongo), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}

func splitAssets(list string) []string {
	parts := strings.Split(list, ",")
	assets := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			assets = append(assets, strings.ToUpper(p))
		}
	}
	return assets
}

func handleShutdown(cancel context.CancelFunc, log *logger.Log) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
	log.Info("shutdown signal received")
	cancel()
}
