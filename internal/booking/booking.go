package booking

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// TimeOfDay is a wall-clock time with no date or zone attached.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay accepts HH:MM or HH:MM:SS.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"15:04:05", "15:04"} {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			return TimeOfDay{Hour: parsed.Hour(), Minute: parsed.Minute(), Second: parsed.Second()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("time of day must be HH:MM or HH:MM:SS, got %q", raw)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("time of day must be a string: %w", err)
	}
	parsed, err := ParseTimeOfDay(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Combine places tod on the calendar day of date, in date's location.
func Combine(date time.Time, tod TimeOfDay) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, tod.Hour, tod.Minute, tod.Second, 0, date.Location())
}

// ParseBookingDate parses a YYYY-MM-DD date as midnight in loc.
func ParseBookingDate(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	parsed, err := time.ParseInLocation(dateLayout, strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("booking date must be in YYYY-MM-DD format")
	}
	return parsed, nil
}

// Booking is the slice of a booking record the owner portal acts on.
// Amounts and display names are carried through untouched.
type Booking struct {
	ID            int64           `json:"id"`
	Status        Status          `json:"status"`
	BookingDate   time.Time       `json:"-"`
	StartTime     TimeOfDay       `json:"startTime"`
	EndTime       TimeOfDay       `json:"endTime"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	DepositAmount decimal.Decimal `json:"depositAmount"`
	FieldName     string          `json:"fieldName,omitempty"`
	CustomerName  string          `json:"customerName,omitempty"`
}

// EndInstant is the moment the match ends on the booking's local calendar.
func (b Booking) EndInstant() time.Time {
	return Combine(b.BookingDate, b.EndTime)
}

func (b Booking) MarshalJSON() ([]byte, error) {
	type plain Booking
	return json.Marshal(struct {
		plain
		BookingDate string `json:"bookingDate"`
		StatusLabel string `json:"statusLabel"`
		StatusColor Color  `json:"statusColor"`
	}{
		plain:       plain(b),
		BookingDate: b.DateString(),
		StatusLabel: b.Status.Label(),
		StatusColor: b.Status.Color(),
	})
}

// DateString formats the booking date the way the backend expects it.
func (b Booking) DateString() string {
	return b.BookingDate.Format(dateLayout)
}
