package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/Conductor/internal/adapter/litellm"
	"github.com/Strob0t/Conductor/internal/adapter/metricscache"
	cfnats "github.com/Strob0t/Conductor/internal/adapter/nats"
	"github.com/Strob0t/Conductor/internal/adapter/natskv"
	cfotel "github.com/Strob0t/Conductor/internal/adapter/otel"
	"github.com/Strob0t/Conductor/internal/adapter/postgres"
	"github.com/Strob0t/Conductor/internal/adapter/ristretto"
	"github.com/Strob0t/Conductor/internal/adapter/tiered"
	"github.com/Strob0t/Conductor/internal/config"
	"github.com/Strob0t/Conductor/internal/logger"
	"github.com/Strob0t/Conductor/internal/port/cache"
	"github.com/Strob0t/Conductor/internal/port/messagequeue"
	"github.com/Strob0t/Conductor/internal/port/notifier"
	"github.com/Strob0t/Conductor/internal/resilience"
	"github.com/Strob0t/Conductor/internal/service"
)

const (
	metricsBucket    = "CONDUCTOR_METRICS"
	metricsMinWindow = 24 * time.Hour
)

// app holds the wired infrastructure of one process.
type app struct {
	cfg      *config.Config
	pool     *pgxpool.Pool
	store    *postgres.Store
	queue    *cfnats.Queue
	llm      *litellm.Client
	svcs     *service.Services
	workerID string

	closers []func()
}

// bootstrap sets up logging, telemetry, storage, messaging and services.
// The caller must call close.
func bootstrap(ctx context.Context, cfg *config.Config) (*app, error) {
	l, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(l)

	a := &app{cfg: cfg, closers: []func(){logCloser.Close}}
	if err := a.init(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg := a.cfg
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
		"agents", cfg.Worker.Agents,
	)

	// --- Telemetry ---
	shutdownOTel, err := cfotel.Setup(ctx, cfg.OTel)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	a.onClose(func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	})
	tel, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- PostgreSQL ---
	a.pool, err = postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	a.onClose(a.pool.Close)
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")
	a.store = postgres.NewStore(a.pool)

	// --- NATS ---
	var queue messagequeue.Queue
	if cfg.NATS.URL != "" {
		a.queue, err = cfnats.Connect(ctx, cfg.NATS.URL, cfg.NATS.Stream)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		a.onClose(func() {
			if err := a.queue.Drain(); err != nil {
				_ = a.queue.Close()
			}
		})
		queue = a.queue
	} else {
		slog.Info("nats disabled, workers rely on polling")
	}

	// --- Metrics cache ---
	metricCache, err := a.metricsCache(ctx)
	if err != nil {
		return err
	}
	metrics := metricscache.New(a.store, metricCache, cfg.Proactive.BaselineCacheTTL, metricsMinWindow)

	// --- Reasoning service ---
	a.llm = litellm.NewClient(cfg.LiteLLM)
	a.llm.SetBreaker(resilience.NewBreaker("litellm", cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	a.svcs = service.New(service.Deps{
		Config:    cfg,
		Store:     a.store,
		Topics:    a.store,
		Metrics:   metrics,
		Reasoner:  a.llm,
		Queue:     queue,
		Notifiers: buildNotifiers(&cfg.Notify),
		Telemetry: tel,
	})

	a.workerID = cfg.Worker.ID
	if a.workerID == "" {
		host, _ := os.Hostname()
		a.workerID = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}
	return nil
}

// metricsCache layers ristretto over, when NATS is configured, a KV bucket
// shared between processes.
func (a *app) metricsCache(ctx context.Context) (cache.Cache, error) {
	l1, err := ristretto.New(a.cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return nil, fmt.Errorf("l1 cache: %w", err)
	}
	a.onClose(l1.Close)

	var l2 cache.Cache
	if a.queue != nil {
		kv, err := natskv.Open(ctx, a.queue.JetStream(), metricsBucket, a.cfg.Proactive.BaselineCacheTTL)
		if err != nil {
			return nil, fmt.Errorf("l2 cache: %w", err)
		}
		l2 = kv
	}

	c := tiered.New(l1, l2, a.cfg.Proactive.BaselineCacheTTL)
	a.onClose(func() {
		st := c.Stats()
		slog.Info("metrics cache stats", "l1_hits", st.L1Hits, "l2_hits", st.L2Hits,
			"misses", st.Misses, "hit_ratio", st.HitRatio())
	})
	return c, nil
}

func buildNotifiers(cfg *config.Notify) []notifier.Notifier {
	if len(cfg.Providers) == 0 {
		slog.Info("no notification channel configured, alerts are logged only")
		return nil
	}
	ns, err := notifier.Build(cfg.Providers, cfg.Settings)
	if err != nil {
		slog.Warn("notification channels unavailable", "error", err)
	}
	for _, n := range ns {
		slog.Info("notification channel ready", "provider", n.Name())
	}
	return ns
}

// onClose registers fn to run on close, in reverse order.
func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
