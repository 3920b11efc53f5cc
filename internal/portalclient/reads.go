package portalclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/codr1/fieldbook/internal/booking"
	"github.com/codr1/fieldbook/internal/dashboard"
	"github.com/codr1/fieldbook/internal/period"
	"github.com/codr1/fieldbook/internal/revenue"
)

// OwnerClient scopes dashboard reads to one owner.
type OwnerClient struct {
	client  *Client
	ownerID int64
}

func (c *Client) Owner(ownerID int64) *OwnerClient {
	return &OwnerClient{client: c, ownerID: ownerID}
}

func (o *OwnerClient) query(extra url.Values) url.Values {
	q := url.Values{}
	q.Set("ownerId", strconv.FormatInt(o.ownerID, 10))
	for key, values := range extra {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	return q
}

func limitQuery(limit int) url.Values {
	if limit <= 0 {
		return nil
	}
	return url.Values{"limit": []string{strconv.Itoa(limit)}}
}

type revenuePayload struct {
	StartDate     string          `json:"startDate"`
	Period        string          `json:"period"`
	TotalRevenue  decimal.Decimal `json:"totalRevenue"`
	TotalBookings int64           `json:"totalBookings"`
}

// Revenue calls GET /revenue with range boundaries on the local calendar.
func (o *OwnerClient) Revenue(ctx context.Context, periodType period.Type, r period.DateRange) ([]revenue.DataPoint, error) {
	q := o.query(url.Values{
		"periodType": []string{strconv.Itoa(int(periodType))},
		"startDate":  []string{r.StartDate()},
		"endDate":    []string{r.EndDate()},
	})

	var payload []revenuePayload
	if err := o.client.do(ctx, http.MethodGet, "/revenue", "/revenue", q, nil, &payload); err != nil {
		return nil, err
	}

	points := make([]revenue.DataPoint, 0, len(payload))
	for i, p := range payload {
		date, err := parseBackendDate(p.StartDate, o.client.loc)
		if err != nil {
			return nil, fmt.Errorf("%w: revenue bucket %d: %v", ErrMalformedResponse, i, err)
		}
		points = append(points, revenue.DataPoint{
			Date:         date,
			Period:       p.Period,
			Label:        period.Label(periodType, date),
			Revenue:      p.TotalRevenue,
			BookingCount: p.TotalBookings,
		})
	}
	return points, nil
}

func (o *OwnerClient) Stats(ctx context.Context) (dashboard.Stats, error) {
	var stats dashboard.Stats
	err := o.client.do(ctx, http.MethodGet, "/owner/dashboard/stats", "/owner/dashboard/stats", o.query(nil), nil, &stats)
	return stats, err
}

func (o *OwnerClient) TopFields(ctx context.Context, limit int) ([]dashboard.TopField, error) {
	var fields []dashboard.TopField
	err := o.client.do(ctx, http.MethodGet, "/owner/dashboard/top-fields", "/owner/dashboard/top-fields", o.query(limitQuery(limit)), nil, &fields)
	return fields, err
}

func (o *OwnerClient) UpcomingBookings(ctx context.Context, limit int) ([]booking.Booking, error) {
	return o.bookings(ctx, "/owner/dashboard/upcoming-bookings", limit)
}

func (o *OwnerClient) RecentBookings(ctx context.Context, limit int) ([]booking.Booking, error) {
	return o.bookings(ctx, "/owner/dashboard/recent-bookings", limit)
}

func (o *OwnerClient) PeakHours(ctx context.Context) ([]dashboard.PeakHour, error) {
	var hours []dashboard.PeakHour
	if err := o.client.do(ctx, http.MethodGet, "/owner/dashboard/peak-hours", "/owner/dashboard/peak-hours", o.query(nil), nil, &hours); err != nil {
		return nil, err
	}
	for _, h := range hours {
		if h.Hour < 0 || h.Hour > 23 {
			return nil, fmt.Errorf("%w: peak hour %d out of range", ErrMalformedResponse, h.Hour)
		}
	}
	return hours, nil
}

func (o *OwnerClient) Complexes(ctx context.Context) ([]dashboard.Complex, error) {
	var complexes []dashboard.Complex
	err := o.client.do(ctx, http.MethodGet, "/owner/complexes", "/owner/complexes", o.query(nil), nil, &complexes)
	return complexes, err
}

func (o *OwnerClient) bookings(ctx context.Context, path string, limit int) ([]booking.Booking, error) {
	var payload []bookingPayload
	if err := o.client.do(ctx, http.MethodGet, path, path, o.query(limitQuery(limit)), nil, &payload); err != nil {
		return nil, err
	}
	return toBookings(payload, o.client.loc)
}

// parseBackendDate accepts a plain date or a timestamp and returns midnight
// in loc of the calendar day written in raw. The timestamp's own offset is
// never applied, so "2025-03-01T00:00:00Z" stays March 1 in every zone.
func parseBackendDate(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	if len(raw) > len(period.DateLayout) {
		valid := false
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05"} {
			if _, err := time.Parse(layout, raw); err == nil {
				valid = true
				break
			}
		}
		if !valid {
			return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD or an RFC 3339 timestamp: %q", raw)
		}
		raw = raw[:len(period.DateLayout)]
	}
	return period.ParseDate(raw, loc)
}
