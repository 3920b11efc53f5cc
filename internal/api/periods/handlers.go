// internal/api/periods/handlers.go
package periods

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/fieldbook/internal/api/apiutil"
	"github.com/codr1/fieldbook/internal/period"
)

var (
	location = time.UTC
	now      = time.Now
	initOnce sync.Once
)

// InitHandlers sets the facility calendar ranges are resolved in.
func InitHandlers(loc *time.Location) {
	if loc == nil {
		log.Warn().Msg("InitHandlers called with nil location; period ranges will use UTC")
		return
	}
	initOnce.Do(func() {
		location = loc
	})
}

type rangeResponse struct {
	PeriodType period.Type `json:"periodType"`
	Name       string      `json:"name"`
	WeekCount  int         `json:"weekCount,omitempty"`
	StartDate  string      `json:"startDate"`
	EndDate    string      `json:"endDate"`
	Days       int         `json:"days"`
}

// HandleRange handles GET /api/v1/periods/range. periodType accepts the
// integer code or the lowercase name.
func HandleRange(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	query := r.URL.Query()

	periodType, err := parsePeriodType(query.Get("periodType"))
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	weekCount, err := apiutil.ParseIntField(query.Get("weekCount"), "weekCount", 0)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if query.Has("weekCount") && weekCount <= 0 {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "weekCount", Reason: "must be greater than 0"})
		return
	}

	q := period.Query{Type: periodType, WeekCount: weekCount, ReferenceNow: now().In(location)}.Normalize()
	dr, err := period.Resolve(q)
	if err != nil {
		if errors.Is(err, period.ErrInvalidWeekCount) {
			apiutil.WriteError(w, r, apiutil.FieldError{Field: "weekCount", Reason: err.Error()})
			return
		}
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Failed to resolve period", Err: err})
		return
	}

	resp := rangeResponse{
		PeriodType: q.Type,
		Name:       q.Type.String(),
		WeekCount:  q.WeekCount,
		StartDate:  dr.StartDate(),
		EndDate:    dr.EndDate(),
		Days:       dr.Days(),
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, resp); err != nil {
		logger.Error().Err(err).Msg("Failed to write period range response")
	}
}

func parsePeriodType(raw string) (period.Type, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, apiutil.FieldError{Field: "periodType", Reason: "is required"}
	}
	t, err := period.ParseTypeName(raw)
	if err != nil {
		return 0, apiutil.FieldError{Field: "periodType", Reason: err.Error()}
	}
	return t, nil
}
