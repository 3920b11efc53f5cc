// Package period resolves revenue aggregation periods into concrete
// calendar ranges. Every computation happens in the location of the
// reference time it is given; nothing here reads the system clock.
package period

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Type is the aggregation granularity. Values are the wire codes.
type Type int

const (
	Daily Type = iota
	Weekly
	Monthly
	Quarterly
	Yearly
)

// DefaultWeekCount is the sliding window used when a weekly query omits one.
const DefaultWeekCount = 8

// yearlySpan is how many years before the reference year the yearly view starts.
const yearlySpan = 3

var (
	ErrUnknownType      = errors.New("unknown period type")
	ErrInvalidWeekCount = errors.New("week count must be a positive integer")
	ErrMissingReference = errors.New("reference time is required")
)

func ParseType(code int) (Type, error) {
	t := Type(code)
	if !t.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnknownType, code)
	}
	return t, nil
}

// ParseTypeName accepts either a wire code ("1") or a name ("weekly").
func ParseTypeName(raw string) (Type, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if code, err := strconv.Atoi(value); err == nil {
		return ParseType(code)
	}
	switch value {
	case "daily", "day":
		return Daily, nil
	case "weekly", "week":
		return Weekly, nil
	case "monthly", "month":
		return Monthly, nil
	case "quarterly", "quarter":
		return Quarterly, nil
	case "yearly", "year", "annual":
		return Yearly, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownType, raw)
	}
}

func (t Type) Valid() bool {
	return t >= Daily && t <= Yearly
}

func (t Type) String() string {
	switch t {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	case Quarterly:
		return "quarterly"
	case Yearly:
		return "yearly"
	default:
		return fmt.Sprintf("period(%d)", int(t))
	}
}

func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(t))
}

func (t *Type) UnmarshalJSON(data []byte) error {
	var code int
	if err := json.Unmarshal(data, &code); err != nil {
		return fmt.Errorf("period type must be an integer code: %w", err)
	}
	parsed, err := ParseType(code)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Query asks for the range of one aggregation period. WeekCount only
// matters for Weekly.
type Query struct {
	Type         Type      `json:"periodType"`
	WeekCount    int       `json:"weekCount,omitempty"`
	ReferenceNow time.Time `json:"-"`
}

// Normalize fills in the default week count for weekly queries.
func (q Query) Normalize() Query {
	if q.Type == Weekly && q.WeekCount == 0 {
		q.WeekCount = DefaultWeekCount
	}
	if q.Type != Weekly {
		q.WeekCount = 0
	}
	return q
}

func (q Query) Validate() error {
	if !q.Type.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownType, int(q.Type))
	}
	if q.Type == Weekly && q.WeekCount <= 0 {
		return ErrInvalidWeekCount
	}
	if q.ReferenceNow.IsZero() {
		return ErrMissingReference
	}
	return nil
}
