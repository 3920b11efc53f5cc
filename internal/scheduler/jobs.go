package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"github.com/codr1/fieldbook/internal/dashboard"
	"github.com/codr1/fieldbook/internal/db"
	"github.com/codr1/fieldbook/internal/metrics"
)

const (
	refreshJobTimeout    = 2 * time.Minute
	retentionJobTimeout  = time.Minute
	actionLogCleanupCron = "17 3 * * *"
)

// RegisterDashboardJobs registers the periodic refresh of open dashboards and
// the teardown of dashboards nobody has looked at for idleTTL.
func RegisterDashboardJobs(svc *Service, sessions *dashboard.Sessions, refreshEvery, idleTTL time.Duration) error {
	if sessions == nil {
		return fmt.Errorf("dashboard jobs require sessions")
	}

	refreshLogger := log.With().Str("component", "dashboard_refresh_job").Logger()
	_, err := svc.AddIntervalJob("dashboard_refresh", refreshEvery, func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshJobTimeout)
		defer cancel()
		ctx = refreshLogger.WithContext(ctx)

		refreshed := sessions.RefreshAll(ctx)
		refreshLogger.Debug().Int("sessions", sessions.Len()).Int("refreshed", refreshed).Msg("Refreshed dashboards")
	}, gocron.WithSingletonMode(gocron.LimitModeReschedule))
	if err != nil {
		return fmt.Errorf("add dashboard refresh job: %w", err)
	}

	reaperLogger := log.With().Str("component", "dashboard_reaper_job").Logger()
	_, err = svc.AddIntervalJob("dashboard_reaper", reaperInterval(idleTTL), func() {
		closed := sessions.CloseIdle(idleTTL)
		metrics.DashboardSessions.Set(float64(sessions.Len()))
		if closed > 0 {
			reaperLogger.Info().Int("closed", closed).Dur("idle_ttl", idleTTL).Msg("Closed idle dashboards")
		}
	}, gocron.WithSingletonMode(gocron.LimitModeReschedule))
	if err != nil {
		return fmt.Errorf("add dashboard reaper job: %w", err)
	}

	return nil
}

// ActionLogPolicy bounds the action log by age and by entries per booking.
// Zero values disable the matching bound.
type ActionLogPolicy struct {
	Retention     time.Duration
	MaxPerBooking int
}

// RegisterActionLogCleanup applies policy to the action log once a day.
func RegisterActionLogCleanup(svc *Service, database *db.DB, policy ActionLogPolicy) error {
	if database == nil {
		return fmt.Errorf("action log cleanup requires database")
	}
	jobLogger := log.With().Str("component", "action_log_cleanup_job").Logger()
	_, err := svc.AddJob("action_log_cleanup", actionLogCleanupCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), retentionJobTimeout)
		defer cancel()
		ctx = jobLogger.WithContext(ctx)

		if err := CleanupActionLog(ctx, database, time.Now(), policy); err != nil {
			jobLogger.Error().Err(err).Msg("Failed to clean up action log")
		}
	}, gocron.WithSingletonMode(gocron.LimitModeWait))
	if err != nil {
		return fmt.Errorf("add action log cleanup job: %w", err)
	}
	return nil
}

// CleanupActionLog removes expired entries and trims each booking's history
// in one transaction, so readers never see a half-applied purge.
func CleanupActionLog(ctx context.Context, database *db.DB, now time.Time, policy ActionLogPolicy) error {
	if policy.Retention <= 0 && policy.MaxPerBooking <= 0 {
		return nil
	}
	var expired, trimmed int64
	err := database.RunInTx(ctx, func(tx *db.DB) error {
		var err error
		if policy.Retention > 0 {
			if expired, err = tx.Queries.DeleteActionLogBefore(ctx, now.Add(-policy.Retention)); err != nil {
				return fmt.Errorf("delete expired action log: %w", err)
			}
		}
		if policy.MaxPerBooking > 0 {
			if trimmed, err = tx.Queries.TrimActionLogPerBooking(ctx, int64(policy.MaxPerBooking)); err != nil {
				return fmt.Errorf("trim action log: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Ctx(ctx).Debug().Int64("expired_rows", expired).Int64("trimmed_rows", trimmed).Msg("Cleaned up action log")
	return nil
}

// reaperInterval checks for idle sessions a few times per TTL.
func reaperInterval(idleTTL time.Duration) time.Duration {
	every := idleTTL / 4
	if every < time.Second {
		return time.Second
	}
	return every
}
