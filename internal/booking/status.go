package booking

import (
	"encoding/json"
	"fmt"
)

// Status is the lifecycle state of a booking. The integer values are the
// codes used on the wire by the booking backend.
type Status int

const (
	StatusPending Status = iota
	StatusWaitingForApproval
	StatusConfirmed
	StatusRejected
	StatusCancelled
	StatusCompleted
	StatusExpired
	StatusNoShow
)

// AllStatuses lists every status in wire order.
var AllStatuses = []Status{
	StatusPending,
	StatusWaitingForApproval,
	StatusConfirmed,
	StatusRejected,
	StatusCancelled,
	StatusCompleted,
	StatusExpired,
	StatusNoShow,
}

func ParseStatus(code int) (Status, error) {
	s := Status(code)
	if !s.Valid() {
		return 0, fmt.Errorf("unknown booking status code: %d", code)
	}
	return s, nil
}

func (s Status) Valid() bool {
	return s >= StatusPending && s <= StatusNoShow
}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusWaitingForApproval:
		return "waiting_for_approval"
	case StatusConfirmed:
		return "confirmed"
	case StatusRejected:
		return "rejected"
	case StatusCancelled:
		return "cancelled"
	case StatusCompleted:
		return "completed"
	case StatusExpired:
		return "expired"
	case StatusNoShow:
		return "no_show"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// IsTerminal reports whether no action can move the booking out of s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusRejected, StatusCancelled, StatusCompleted, StatusExpired, StatusNoShow:
		return true
	default:
		return false
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown booking status code: %d", int(s))
	}
	return json.Marshal(int(s))
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var code int
	if err := json.Unmarshal(data, &code); err != nil {
		return fmt.Errorf("booking status must be an integer code: %w", err)
	}
	parsed, err := ParseStatus(code)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
