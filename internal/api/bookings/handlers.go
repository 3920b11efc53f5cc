// internal/api/bookings/handlers.go
package bookings

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/fieldbook/internal/actions"
	"github.com/codr1/fieldbook/internal/api/apiutil"
	"github.com/codr1/fieldbook/internal/booking"
	"github.com/codr1/fieldbook/internal/db"
	"github.com/codr1/fieldbook/internal/portalclient"
)

const (
	bookingQueryTimeout = 10 * time.Second
	defaultLogLimit     = 20
)

// Loader fetches the current state of a booking from the backend.
type Loader interface {
	GetBooking(ctx context.Context, bookingID int64) (booking.Booking, error)
}

var (
	loader   Loader
	facade   *actions.Facade
	queries  *db.Queries
	now      = time.Now
	initOnce sync.Once
)

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(l Loader, f *actions.Facade, database *db.DB) {
	if l == nil || f == nil || database == nil {
		log.Warn().Msg("InitHandlers called with missing dependencies; booking handlers will be unavailable")
		return
	}
	initOnce.Do(func() {
		loader = l
		facade = f
		queries = database.Queries
	})
}

type bookingResponse struct {
	Booking          booking.Booking  `json:"booking"`
	AvailableActions []booking.Action `json:"availableActions"`
}

type actionRequest struct {
	Reason string `json:"reason"`
}

type actionResponse struct {
	BookingID int64          `json:"bookingId"`
	Action    booking.Action `json:"action"`
	Status    booking.Status `json:"status"`
}

type actionErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Action  booking.Action `json:"action"`
	Verdict string         `json:"verdict,omitempty"`
}

type actionLogResponse struct {
	BookingID int64                 `json:"bookingId"`
	Entries   []db.BookingActionLog `json:"entries"`
}

// HandleGetBooking handles GET /api/v1/bookings/{id}.
func HandleGetBooking(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if !initialized(w, r) {
		return
	}
	bookingID, err := apiutil.PathID(r, "booking_id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	b, err := loadBooking(r.Context(), bookingID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	available := booking.AvailableActions(b, now())
	if available == nil {
		available = []booking.Action{}
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, bookingResponse{Booking: b, AvailableActions: available}); err != nil {
		logger.Error().Err(err).Int64("booking_id", bookingID).Msg("Failed to write booking response")
	}
}

// HandleBookingAction handles POST /api/v1/bookings/{id}/{action}. The
// booking is re-read from the backend so the guard sees its current status.
func HandleBookingAction(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if !initialized(w, r) {
		return
	}
	bookingID, err := apiutil.PathID(r, "booking_id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	action, ok := actionFromPath(r.PathValue("action"))
	if !ok {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusNotFound, Message: "Unknown booking action"})
		return
	}

	var req actionRequest
	if action == booking.ActionReject {
		if err := apiutil.DecodeJSON(r, &req); err != nil {
			apiutil.WriteError(w, r, apiutil.FieldError{Field: "body", Reason: err.Error()})
			return
		}
	}

	b, err := loadBooking(r.Context(), bookingID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingQueryTimeout)
	defer cancel()

	if err := facade.Perform(ctx, action, b, req.Reason); err != nil {
		writeActionError(w, r, action, err)
		return
	}

	resp := actionResponse{BookingID: bookingID, Action: action, Status: action.Target()}
	if err := apiutil.WriteJSON(w, http.StatusOK, resp); err != nil {
		logger.Error().Err(err).Int64("booking_id", bookingID).Msg("Failed to write booking action response")
	}
}

// HandleActionLog handles GET /api/v1/bookings/{id}/actions.
func HandleActionLog(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if !initialized(w, r) {
		return
	}
	bookingID, err := apiutil.PathID(r, "booking_id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	limit, err := apiutil.LimitFromQuery(r, defaultLogLimit)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingQueryTimeout)
	defer cancel()

	entries, err := queries.ListActionLogByBooking(ctx, db.ListActionLogByBookingParams{
		BookingID: bookingID,
		Limit:     int64(limit),
	})
	if err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Failed to load action log", Err: err})
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, actionLogResponse{BookingID: bookingID, Entries: entries}); err != nil {
		logger.Error().Err(err).Int64("booking_id", bookingID).Msg("Failed to write action log response")
	}
}

func initialized(w http.ResponseWriter, r *http.Request) bool {
	if loader == nil || facade == nil || queries == nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Booking handlers not initialized"})
		return false
	}
	return true
}

func actionFromPath(raw string) (booking.Action, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approve":
		return booking.ActionApprove, true
	case "reject":
		return booking.ActionReject, true
	case "cancel":
		return booking.ActionCancel, true
	case "complete":
		return booking.ActionComplete, true
	case "no-show":
		return booking.ActionNoShow, true
	default:
		return "", false
	}
}

func loadBooking(ctx context.Context, bookingID int64) (booking.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, bookingQueryTimeout)
	defer cancel()

	b, err := loader.GetBooking(ctx, bookingID)
	if err == nil {
		return b, nil
	}
	var statusErr *portalclient.StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
		return booking.Booking{}, apiutil.HandlerError{Status: http.StatusNotFound, Message: "Booking not found", Err: err}
	}
	if errors.Is(err, portalclient.ErrBackendUnavailable) {
		return booking.Booking{}, apiutil.HandlerError{Status: http.StatusServiceUnavailable, Message: "Booking backend unavailable", Err: err}
	}
	return booking.Booking{}, apiutil.HandlerError{Status: http.StatusBadGateway, Message: "Failed to load booking", Err: err}
}

func writeActionError(w http.ResponseWriter, r *http.Request, action booking.Action, err error) {
	var guardErr *actions.GuardViolation
	var requestErr *actions.RequestFailure
	switch {
	case errors.As(err, &guardErr):
		writeActionJSON(w, r, http.StatusConflict, actionErrorResponse{
			Error:   guardErr.Message,
			Code:    actions.OutcomeGuardViolation,
			Action:  action,
			Verdict: guardErr.Verdict.String(),
		})
	case errors.Is(err, actions.ErrActionInFlight):
		writeActionJSON(w, r, http.StatusConflict, actionErrorResponse{
			Error:  err.Error(),
			Code:   actions.OutcomeConflict,
			Action: action,
		})
	case errors.Is(err, portalclient.ErrBackendUnavailable):
		writeActionJSON(w, r, http.StatusServiceUnavailable, actionErrorResponse{
			Error:  "The booking service is temporarily unavailable",
			Code:   "backend_unavailable",
			Action: action,
		})
	case errors.As(err, &requestErr):
		log.Ctx(r.Context()).Warn().Err(requestErr.Err).Int64("booking_id", requestErr.BookingID).Msg("Booking write failed")
		writeActionJSON(w, r, http.StatusBadGateway, actionErrorResponse{
			Error:  "The booking service rejected or did not complete the request",
			Code:   actions.OutcomeFailed,
			Action: action,
		})
	default:
		apiutil.WriteError(w, r, err)
	}
}

func writeActionJSON(w http.ResponseWriter, r *http.Request, status int, body actionErrorResponse) {
	if err := apiutil.WriteJSON(w, status, body); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to write booking action error")
	}
}
