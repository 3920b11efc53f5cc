// Package metrics exposes Prometheus instruments for the owner portal.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codr1/fieldbook/internal/actions"
	"github.com/codr1/fieldbook/internal/revenue"
)

var (
	RevenueQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldbook_revenue_queries_total",
		Help: "Revenue queries by final state",
	}, []string{"period_type", "state"})

	RevenueQueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fieldbook_revenue_query_duration_seconds",
		Help:    "Time from issuing a revenue query to its outcome",
		Buckets: prometheus.DefBuckets,
	})

	BookingActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldbook_booking_actions_total",
		Help: "Booking status actions by outcome",
	}, []string{"action", "outcome"})

	BackendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fieldbook_backend_request_duration_seconds",
		Help:    "Latency of calls to the booking backend",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	DashboardSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fieldbook_dashboard_sessions",
		Help: "Open owner dashboard sessions",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRevenue is a revenue.Coordinator observer.
func ObserveRevenue(out revenue.Outcome) {
	RevenueQueries.WithLabelValues(out.Query.Type.String(), out.State.String()).Inc()
	RevenueQueryDuration.Observe(out.Duration.Seconds())
}

// ObserveBackendRequest is a portal client request observer.
func ObserveBackendRequest(method, route string, status int, elapsed time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	BackendRequestDuration.WithLabelValues(method, route, code).Observe(elapsed.Seconds())
}

// ActionRecorder counts booking action attempts.
type ActionRecorder struct{}

func (ActionRecorder) RecordAttempt(_ context.Context, attempt actions.Attempt) error {
	BookingActions.WithLabelValues(string(attempt.Action), attempt.Outcome).Inc()
	return nil
}
