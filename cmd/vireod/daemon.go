package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/vireo-social/vireo/internal/activity"
	"github.com/vireo-social/vireo/internal/config"
	"github.com/vireo-social/vireo/internal/feedstore"
	feedredis "github.com/vireo-social/vireo/internal/feedstore/redis"
	"github.com/vireo-social/vireo/internal/logging"
	"github.com/vireo-social/vireo/internal/metrics"
	"github.com/vireo-social/vireo/internal/server"
	"github.com/vireo-social/vireo/internal/timeline"
	"github.com/vireo-social/vireo/internal/vacuum"
)

// DaemonOptions contains everything needed to construct a Daemon.
type DaemonOptions struct {
	Config    *config.Config
	Logger    *logging.Logger
	Version   string
	GitCommit string
	BuildTime string
}

// Daemon is the long-running vireod process: the feed store client,
// the timeline service, the vacuum worker, and the admin HTTP server.
type Daemon struct {
	config   *config.Config
	logger   *logging.Logger
	version  string
	registry *prometheus.Registry

	rdb      *redis.Client
	store    feedstore.Store
	timeline *timeline.Service
	db       *activity.DB
	worker   *vacuum.Worker
	admin    *server.AdminServer
}

// NewDaemon wires the daemon components together from configuration.
func NewDaemon(opts DaemonOptions) (*Daemon, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store := feedstore.NewInstrumentedStore(
		feedredis.New(rdb),
		metrics.NewStoreMetricsWithRegistry(registry),
	)

	svc := timeline.NewService(store, timeline.Config{
		MaxHomeSize:    cfg.Timeline.MaxHomeSize,
		MaxListSize:    cfg.Timeline.MaxListSize,
		MaxAntennaSize: cfg.Timeline.MaxAntennaSize,
	})

	d := &Daemon{
		config:   cfg,
		logger:   logger,
		version:  opts.Version,
		registry: registry,
		rdb:      rdb,
		store:    store,
		timeline: svc,
	}

	if cfg.Vacuum.Enabled {
		if cfg.Database.DSN == "" {
			return nil, fmt.Errorf("vacuum enabled but database.dsn is not configured")
		}
		db, err := activity.Open(cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		d.db = db
		d.worker = vacuum.NewWorker(store, db, db, metrics.NewVacuumMetricsWithRegistry(registry), vacuum.Config{
			Interval:            cfg.Vacuum.Interval(),
			InactivityThreshold: cfg.Vacuum.InactivityThreshold(),
			Concurrency:         cfg.Vacuum.Concurrency,
			DeleteAttempts:      cfg.Vacuum.DeleteAttempts,
			RatePerSecond:       cfg.Vacuum.RatePerSecond,
			DryRun:              cfg.Vacuum.DryRun,
		})
	}

	admin := server.NewAdminServer(cfg.Server.ListenAddr, logger)
	admin.SetMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	admin.RegisterReadinessCheck(server.NewFeedStoreChecker(store))
	if d.db != nil {
		admin.RegisterReadinessCheck(server.NewDatabaseChecker(d.db))
	}
	if d.worker != nil {
		admin.SetSweeper(d.worker)
		admin.SetFeedCleaner(d.worker)
	}
	d.admin = admin

	return d, nil
}

// Start brings the daemon up and blocks until the context is
// cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := d.store.Ping(pingCtx)
	cancel()
	if err != nil {
		// The store can come up later; readiness reports the gap.
		d.logger.Warnf("feed store not reachable at startup", map[string]any{"error": err.Error()})
	}

	if err := d.admin.Start(); err != nil {
		return fmt.Errorf("start admin server: %w", err)
	}

	ctx = logging.WithLoggerCtx(ctx, d.logger)
	if d.worker != nil {
		d.worker.Start(ctx)
		d.logger.Infof("vacuum worker started", map[string]any{
			"interval":  d.config.Vacuum.Interval().String(),
			"threshold": d.config.Vacuum.InactivityThreshold().String(),
			"dryRun":    d.config.Vacuum.DryRun,
		})
	}

	d.logger.Infof("vireod started", map[string]any{
		"version":   d.version,
		"adminAddr": d.admin.Addr(),
	})

	<-ctx.Done()
	return nil
}

// Shutdown stops the daemon components in dependency order.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.admin.SetShuttingDown()

	if d.worker != nil {
		d.worker.Stop()
	}

	var firstErr error
	if err := d.admin.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close admin server: %w", err)
	}
	if err := d.store.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close feed store: %w", err)
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close database: %w", err)
		}
	}
	return firstErr
}

// Timeline exposes the timeline service for embedding callers.
func (d *Daemon) Timeline() *timeline.Service {
	return d.timeline
}

// runSingleSweep runs one vacuum pass outside the daemon loop, for the
// one-shot subcommand.
func runSingleSweep(cfg *config.Config, logger *logging.Logger, dryRun bool, thresholdMs int64) (*vacuum.SweepResult, error) {
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database.dsn is not configured")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store := feedredis.New(rdb)
	defer store.Close()

	db, err := activity.Open(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	worker := vacuum.NewWorker(store, db, db, nil, vacuum.Config{
		InactivityThreshold: cfg.Vacuum.InactivityThreshold(),
		Concurrency:         cfg.Vacuum.Concurrency,
		DeleteAttempts:      cfg.Vacuum.DeleteAttempts,
		RatePerSecond:       cfg.Vacuum.RatePerSecond,
	})

	opts := vacuum.SweepOptions{DryRun: dryRun}
	if thresholdMs > 0 {
		opts.Threshold = time.Duration(thresholdMs) * time.Millisecond
	}

	ctx := logging.WithLoggerCtx(context.Background(), logger)
	return worker.Sweep(ctx, opts)
}
