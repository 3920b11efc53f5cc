// cmd/server/server.go
package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/codr1/fieldbook/internal/api"
	"github.com/codr1/fieldbook/internal/api/apiutil"
	"github.com/codr1/fieldbook/internal/api/bookings"
	"github.com/codr1/fieldbook/internal/api/dashboard"
	"github.com/codr1/fieldbook/internal/api/periods"
	"github.com/codr1/fieldbook/internal/metrics"
)

func newServer(a *app) *http.Server {
	router := http.NewServeMux()

	// Setup middleware chain
	handler := api.ChainMiddleware(
		router,
		api.WithLogging,
		api.WithRecovery,
		api.WithRequestID,
		api.WithContentType,
	)

	dashboard.InitHandlers(a.sessions, a.limiter)
	bookings.InitHandlers(a.client, a.facade, a.database)
	periods.InitHandlers(a.cfg.Location())

	registerRoutes(router, a.limiter.ActionMiddleware(a.cfg.App.TrustProxy), a.cfg.Features.EnableMetrics)

	return &http.Server{
		Addr:         ":" + strconv.Itoa(a.cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// registerRoutes mounts every endpoint. throttle wraps booking writes.
func registerRoutes(mux *http.ServeMux, throttle api.Middleware, enableMetrics bool) {
	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		_ = apiutil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if enableMetrics {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	// Owner dashboard
	mux.HandleFunc("GET /api/v1/owner/dashboard", dashboard.HandleGetDashboard)
	mux.HandleFunc("DELETE /api/v1/owner/dashboard", dashboard.HandleCloseDashboard)
	mux.HandleFunc("POST /api/v1/owner/dashboard/refresh", dashboard.HandleRefresh)
	mux.HandleFunc("PUT /api/v1/owner/dashboard/period", dashboard.HandleChangePeriod)

	// Period ranges
	mux.HandleFunc("GET /api/v1/periods/range", periods.HandleRange)

	// Booking actions
	mux.HandleFunc("GET /api/v1/bookings/{id}", bookings.HandleGetBooking)
	mux.HandleFunc("GET /api/v1/bookings/{id}/actions", bookings.HandleActionLog)
	mux.Handle("POST /api/v1/bookings/{id}/{action}", throttle(http.HandlerFunc(bookings.HandleBookingAction)))
}
