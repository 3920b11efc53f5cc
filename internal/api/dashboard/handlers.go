// internal/api/dashboard/handlers.go
package dashboard

import (
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/codr1/fieldbook/internal/api/apiutil"
	"github.com/codr1/fieldbook/internal/dashboard"
	"github.com/codr1/fieldbook/internal/metrics"
	"github.com/codr1/fieldbook/internal/period"
	"github.com/codr1/fieldbook/internal/ratelimit"
	"github.com/codr1/fieldbook/internal/revenue"
)

var (
	sessions     *dashboard.Sessions
	limiter      *ratelimit.Limiter
	sessionsOnce sync.Once
)

// InitHandlers must be called during server startup before handling requests.
// A nil limiter leaves manual refreshes unthrottled.
func InitHandlers(s *dashboard.Sessions, l *ratelimit.Limiter) {
	if s == nil {
		log.Warn().Msg("InitHandlers called with nil sessions; dashboard handlers will be unavailable")
		return
	}
	sessionsOnce.Do(func() {
		sessions = s
		limiter = l
	})
}

type periodRequest struct {
	PeriodType *period.Type `json:"periodType"`
	WeekCount  *int         `json:"weekCount"`
}

type periodResponse struct {
	State     string         `json:"state"`
	Seq       uint64         `json:"seq"`
	Dashboard dashboard.View `json:"dashboard"`
}

// HandleGetDashboard handles GET /api/v1/owner/dashboard. The first request
// for an owner opens the dashboard and waits for its initial load.
func HandleGetDashboard(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	orch, created := sessions.GetOrCreate(ownerID)
	if created {
		metrics.DashboardSessions.Set(float64(sessions.Len()))
	}
	if err := orch.Load(r.Context()); err != nil {
		apiutil.WriteError(w, r, loadError(err))
		return
	}
	writeView(w, r, http.StatusOK, orch.Snapshot())
}

// HandleRefresh handles POST /api/v1/owner/dashboard/refresh.
func HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	orch, found := sessions.Get(ownerID)
	if !found {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusNotFound, Message: "Dashboard not open"})
		return
	}
	if limiter != nil {
		if result := limiter.AllowRefresh(ownerID); !result.Allowed {
			ratelimit.LogRateLimitExceeded(r, "dashboard_refresh", strconv.FormatInt(ownerID, 10), result.Reason)
			ratelimit.WriteLimited(w, r, result)
			return
		}
	}
	if err := orch.Refresh(r.Context()); err != nil {
		apiutil.WriteError(w, r, loadError(err))
		return
	}
	writeView(w, r, http.StatusOK, orch.Snapshot())
}

// HandleChangePeriod handles PUT /api/v1/owner/dashboard/period. Only the
// revenue slice is reloaded.
func HandleChangePeriod(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req periodRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "body", Reason: err.Error()})
		return
	}
	if req.PeriodType == nil {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "periodType", Reason: "is required"})
		return
	}
	q := period.Query{Type: *req.PeriodType}
	if req.WeekCount != nil {
		if *req.WeekCount <= 0 {
			apiutil.WriteError(w, r, apiutil.FieldError{Field: "weekCount", Reason: "must be greater than 0"})
			return
		}
		q.WeekCount = *req.WeekCount
	}

	orch, found := sessions.Get(ownerID)
	if !found {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusNotFound, Message: "Dashboard not open"})
		return
	}

	out, err := orch.ChangePeriod(r.Context(), q)
	if err != nil {
		switch {
		case errors.Is(err, period.ErrUnknownType), errors.Is(err, period.ErrInvalidWeekCount):
			apiutil.WriteError(w, r, apiutil.FieldError{Field: "periodType", Reason: err.Error()})
		default:
			apiutil.WriteError(w, r, loadError(err))
		}
		return
	}

	logger.Debug().
		Int64("owner_id", ownerID).
		Uint64("seq", out.Seq).
		Str("state", out.State.String()).
		Msg("Revenue period changed")

	status := http.StatusOK
	if out.State == revenue.StateSuperseded {
		status = http.StatusAccepted
	}
	resp := periodResponse{State: out.State.String(), Seq: out.Seq, Dashboard: orch.Snapshot()}
	if err := apiutil.WriteJSON(w, status, resp); err != nil {
		logger.Error().Err(err).Int64("owner_id", ownerID).Msg("Failed to write period response")
	}
}

// HandleCloseDashboard handles DELETE /api/v1/owner/dashboard.
func HandleCloseDashboard(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}
	if !sessions.Close(ownerID) {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusNotFound, Message: "Dashboard not open"})
		return
	}
	metrics.DashboardSessions.Set(float64(sessions.Len()))
	w.WriteHeader(http.StatusNoContent)
}

func requireOwner(w http.ResponseWriter, r *http.Request) (int64, bool) {
	if sessions == nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Dashboard sessions not initialized"})
		return 0, false
	}
	ownerID, err := apiutil.OwnerIDFromQuery(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return 0, false
	}
	return ownerID, true
}

func loadError(err error) error {
	switch {
	case errors.Is(err, dashboard.ErrClosed):
		return apiutil.HandlerError{Status: http.StatusConflict, Message: "Dashboard was closed", Err: err}
	default:
		return apiutil.HandlerError{Status: http.StatusGatewayTimeout, Message: "Dashboard load did not finish", Err: err}
	}
}

func writeView(w http.ResponseWriter, r *http.Request, status int, view dashboard.View) {
	if err := apiutil.WriteJSON(w, status, view); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Int64("owner_id", view.OwnerID).Msg("Failed to write dashboard response")
	}
}
