// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/codr1/fieldbook/internal/actions"
	"github.com/codr1/fieldbook/internal/config"
	"github.com/codr1/fieldbook/internal/dashboard"
	"github.com/codr1/fieldbook/internal/db"
	"github.com/codr1/fieldbook/internal/metrics"
	"github.com/codr1/fieldbook/internal/portalclient"
	"github.com/codr1/fieldbook/internal/ratelimit"
	"github.com/codr1/fieldbook/internal/scheduler"
)

const shutdownTimeout = 30 * time.Second

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Features.EnableDebug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if cfg.App.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// app holds the long-lived dependencies wired at startup.
type app struct {
	cfg       *config.Config
	database  *db.DB
	client    *portalclient.Client
	facade    *actions.Facade
	sessions  *dashboard.Sessions
	limiter   *ratelimit.Limiter
	scheduler *scheduler.Service
}

func newApp(cfg *config.Config) (*app, error) {
	database, err := db.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	client, err := portalclient.New(portalclient.Config{
		BaseURL:  cfg.Backend.BaseURL,
		Token:    cfg.Backend.Token,
		Timeout:  cfg.Backend.Timeout,
		Location: cfg.Location(),
		Observer: metrics.ObserveBackendRequest,
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("create backend client: %w", err)
	}

	facade := actions.NewFacade(client, actions.WithRecorder(db.NewActionLog(database), metrics.ActionRecorder{}))

	sessions := dashboard.NewSessions(func(ownerID int64) *dashboard.Orchestrator {
		owner := client.Owner(ownerID)
		return dashboard.NewOrchestrator(ownerID, owner, owner, dashboard.Options{
			Location:        cfg.Location(),
			TopFieldsLimit:  cfg.Dashboard.TopFieldsLimit,
			UpcomingLimit:   cfg.Dashboard.UpcomingLimit,
			RecentLimit:     cfg.Dashboard.RecentLimit,
			LoadTimeout:     cfg.Dashboard.LoadTimeout,
			RevenueObserver: metrics.ObserveRevenue,
		})
	}, nil)

	sched, err := scheduler.New()
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	if err := scheduler.RegisterDashboardJobs(sched, sessions, cfg.Dashboard.RefreshEvery, cfg.Dashboard.SessionIdleTTL); err != nil {
		database.Close()
		return nil, err
	}
	if err := scheduler.RegisterActionLogCleanup(sched, database, scheduler.ActionLogPolicy{
		Retention:     cfg.Database.ActionLogRetention,
		MaxPerBooking: cfg.Database.ActionLogMaxPerBooking,
	}); err != nil {
		database.Close()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		database:  database,
		client:    client,
		facade:    facade,
		sessions:  sessions,
		scheduler: sched,
		limiter: ratelimit.New(&ratelimit.Config{
			RefreshCooldown:    cfg.RateLimit.RefreshCooldown,
			RefreshMaxPerHour:  cfg.RateLimit.RefreshMaxPerHour,
			ActionMaxIPPerHour: cfg.RateLimit.ActionMaxIPPerHour,
		}),
	}, nil
}

func (a *app) close() {
	if err := a.scheduler.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop scheduler")
	}
	a.sessions.CloseAll()
	a.limiter.Close()
	if err := a.database.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close database")
	}
}

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg)

	application, err := newApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.close()

	server := newServer(application)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	application.scheduler.Start()

	g.Go(func() error {
		log.Info().Int("port", cfg.App.Port).Str("backend", cfg.Backend.BaseURL).Msg("Starting server")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Wait for interrupt signal
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		log.Info().Msg("Shutting down server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server terminated with error")
		application.close()
		os.Exit(1)
	}
}
