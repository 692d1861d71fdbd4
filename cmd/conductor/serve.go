package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	cfhttp "github.com/Strob0t/Conductor/internal/adapter/http"
	cfotel "github.com/Strob0t/Conductor/internal/adapter/otel"
	"github.com/Strob0t/Conductor/internal/port/messagequeue"
	"github.com/Strob0t/Conductor/internal/service"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API together with workers, sweepers and schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProcess(cmd, true)
		},
	}
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run workers, sweepers and schedules without the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProcess(cmd, false)
		},
	}
}

func runProcess(cmd *cobra.Command, withHTTP bool) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	a, err := bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	g, ctx := errgroup.WithContext(ctx)

	pollers, err := a.pollers(ctx)
	if err != nil {
		return err
	}
	for _, p := range pollers {
		g.Go(func() error { return p.Run(ctx) })
	}

	sch := service.NewScheduler()
	if err := a.svcs.RegisterSchedules(ctx, sch); err != nil {
		return fmt.Errorf("schedules: %w", err)
	}
	if sch.Len() > 0 {
		g.Go(func() error { return sch.Run(ctx) })
	}

	if withHTTP {
		srv := a.httpServer()
		g.Go(func() error {
			slog.Info("starting server", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			slog.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	slog.Info("conductor running", "worker_id", a.workerID, "pollers", len(pollers), "schedules", sch.Len(), "http", withHTTP)
	return g.Wait()
}

// pollers builds one worker loop per configured agent plus the sweepers.
// With NATS, task-created messages wake the agent's loop early.
func (a *app) pollers(ctx context.Context) ([]*service.Poller, error) {
	cfg := a.cfg
	var out []*service.Poller

	for _, agent := range cfg.Worker.Agents {
		w := a.svcs.Worker(agent, a.workerID)
		p := service.NewPoller("worker:"+agent, cfg.Worker.PollInterval, func(ctx context.Context) error {
			_, err := w.PollOnce(ctx)
			return err
		})
		if a.queue != nil {
			wake, err := a.wakeups(ctx, agent)
			if err != nil {
				return nil, err
			}
			p = p.WithWake(wake)
		}
		out = append(out, p)
	}

	out = append(out,
		service.NewPoller("stale-sweep", cfg.Sweeper.StaleInterval, func(ctx context.Context) error {
			_, err := a.svcs.Tasks.SweepStale(ctx)
			return err
		}),
		service.NewPoller("negotiation-timeouts", cfg.Sweeper.NegotiationInterval, func(ctx context.Context) error {
			_, err := a.svcs.Negotiations.CheckTimeouts(ctx)
			return err
		}),
	)

	if cfg.Proactive.Enabled {
		out = append(out, service.NewPoller("proactive-scan", cfg.Proactive.ScanInterval, func(ctx context.Context) error {
			_, err := a.svcs.Proactive.ProactiveScan(ctx)
			return err
		}))
	}
	return out, nil
}

// wakeups subscribes to the agent's task-created subject. Signals coalesce
// while a poll is running.
func (a *app) wakeups(ctx context.Context, agent string) (<-chan struct{}, error) {
	wake := make(chan struct{}, 1)
	cancel, err := a.queue.Subscribe(ctx, messagequeue.TaskCreatedSubject(agent), func(context.Context, string, []byte) error {
		select {
		case wake <- struct{}{}:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s wakeups: %w", agent, err)
	}
	a.onClose(cancel)
	return wake, nil
}

func (a *app) httpServer() *http.Server {
	cfg := a.cfg
	r := chi.NewRouter()

	r.Use(cfhttp.RequestID)
	r.Use(cfhttp.Logger)
	r.Use(cfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(cfhttp.SecurityHeaders)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	checks := cfhttp.HealthChecks{DB: a.store, Breaker: a.llm.BreakerState}
	if a.queue != nil {
		checks.Queue = a.queue
	}
	r.Get("/health", cfhttp.HealthHandler(checks))
	cfhttp.MountRoutes(r, cfhttp.NewHandlers(a.svcs, cfg.Budgets.Global))

	return &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           cfotel.HTTPMiddleware(cfg.OTel.ServiceName)(r),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
