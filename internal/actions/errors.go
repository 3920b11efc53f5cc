package actions

import (
	"errors"
	"fmt"

	"github.com/codr1/fieldbook/internal/booking"
)

var ErrActionInFlight = errors.New("another action is already in progress for this booking")

const (
	msgMatchNotEnded  = "only allowed after the match ends"
	msgReasonRequired = "reason is required"
)

// GuardViolation is returned when an action's precondition does not hold.
// No write request is issued for it.
type GuardViolation struct {
	Action    booking.Action
	BookingID int64
	Verdict   booking.Verdict
	Message   string
}

func (e *GuardViolation) Error() string {
	return e.Message
}

// RequestFailure wraps a failed write against the booking backend.
type RequestFailure struct {
	Action    booking.Action
	BookingID int64
	Err       error
}

func (e *RequestFailure) Error() string {
	return fmt.Sprintf("%s booking %d: %v", e.Action, e.BookingID, e.Err)
}

func (e *RequestFailure) Unwrap() error {
	return e.Err
}

func violation(action booking.Action, b booking.Booking, verdict booking.Verdict) *GuardViolation {
	msg := ""
	switch verdict {
	case booking.MatchNotEnded:
		msg = msgMatchNotEnded
	case booking.UnknownAction:
		msg = fmt.Sprintf("unknown action %q", action)
	default:
		msg = fmt.Sprintf("booking cannot be %s from status %s", pastTense(action), b.Status.Label())
	}
	return &GuardViolation{Action: action, BookingID: b.ID, Verdict: verdict, Message: msg}
}

func pastTense(action booking.Action) string {
	switch action {
	case booking.ActionApprove:
		return "approved"
	case booking.ActionReject:
		return "rejected"
	case booking.ActionCancel:
		return "cancelled"
	case booking.ActionComplete:
		return "completed"
	case booking.ActionNoShow:
		return "marked as no-show"
	default:
		return string(action)
	}
}
