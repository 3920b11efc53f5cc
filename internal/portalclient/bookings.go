package portalclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/codr1/fieldbook/internal/booking"
)

// bookingPayload is the backend's booking representation.
type bookingPayload struct {
	ID            int64           `json:"id"`
	Status        *int            `json:"status"`
	BookingDate   string          `json:"bookingDate"`
	StartTime     string          `json:"startTime"`
	EndTime       string          `json:"endTime"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	DepositAmount decimal.Decimal `json:"depositAmount"`
	FieldName     string          `json:"fieldName"`
	CustomerName  string          `json:"customerName"`
}

func (p bookingPayload) toBooking(loc *time.Location) (booking.Booking, error) {
	if p.ID <= 0 {
		return booking.Booking{}, fmt.Errorf("%w: booking id missing", ErrMalformedResponse)
	}
	if p.Status == nil {
		return booking.Booking{}, fmt.Errorf("%w: booking %d has no status", ErrMalformedResponse, p.ID)
	}
	status, err := booking.ParseStatus(*p.Status)
	if err != nil {
		return booking.Booking{}, fmt.Errorf("%w: booking %d: %v", ErrMalformedResponse, p.ID, err)
	}
	date, err := parseBackendDate(p.BookingDate, loc)
	if err != nil {
		return booking.Booking{}, fmt.Errorf("%w: booking %d: %v", ErrMalformedResponse, p.ID, err)
	}
	start, err := booking.ParseTimeOfDay(p.StartTime)
	if err != nil {
		return booking.Booking{}, fmt.Errorf("%w: booking %d start: %v", ErrMalformedResponse, p.ID, err)
	}
	end, err := booking.ParseTimeOfDay(p.EndTime)
	if err != nil {
		return booking.Booking{}, fmt.Errorf("%w: booking %d end: %v", ErrMalformedResponse, p.ID, err)
	}
	return booking.Booking{
		ID:            p.ID,
		Status:        status,
		BookingDate:   date,
		StartTime:     start,
		EndTime:       end,
		TotalAmount:   p.TotalAmount,
		DepositAmount: p.DepositAmount,
		FieldName:     p.FieldName,
		CustomerName:  p.CustomerName,
	}, nil
}

func toBookings(payloads []bookingPayload, loc *time.Location) ([]booking.Booking, error) {
	out := make([]booking.Booking, 0, len(payloads))
	for _, p := range payloads {
		b, err := p.toBooking(loc)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// GetBooking loads the current state of one booking.
func (c *Client) GetBooking(ctx context.Context, bookingID int64) (booking.Booking, error) {
	var payload bookingPayload
	if err := c.do(ctx, http.MethodGet, "/bookings/{id}", bookingPath(bookingID, ""), nil, nil, &payload); err != nil {
		return booking.Booking{}, err
	}
	return payload.toBooking(c.loc)
}

func (c *Client) Approve(ctx context.Context, bookingID int64) error {
	return c.post(ctx, bookingID, "approve", nil)
}

func (c *Client) Reject(ctx context.Context, bookingID int64, reason string) error {
	return c.post(ctx, bookingID, "reject", map[string]string{"reason": reason})
}

func (c *Client) Cancel(ctx context.Context, bookingID int64) error {
	return c.post(ctx, bookingID, "cancel", nil)
}

func (c *Client) Complete(ctx context.Context, bookingID int64) error {
	return c.post(ctx, bookingID, "complete", nil)
}

func (c *Client) MarkNoShow(ctx context.Context, bookingID int64) error {
	return c.post(ctx, bookingID, "no-show", nil)
}

func (c *Client) post(ctx context.Context, bookingID int64, verb string, payload any) error {
	return c.do(ctx, http.MethodPost, "/bookings/{id}/"+verb, bookingPath(bookingID, verb), nil, payload, nil)
}

func bookingPath(bookingID int64, verb string) string {
	path := "/bookings/" + strconv.FormatInt(bookingID, 10)
	if verb != "" {
		path += "/" + verb
	}
	return path
}
