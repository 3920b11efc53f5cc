package booking

import "time"

// Action is an owner operation that moves a booking to a new status.
type Action string

const (
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionCancel   Action = "cancel"
	ActionComplete Action = "complete"
	ActionNoShow   Action = "no_show"
)

// Target is the status a successful action leaves the booking in.
func (a Action) Target() Status {
	switch a {
	case ActionApprove:
		return StatusConfirmed
	case ActionReject:
		return StatusRejected
	case ActionCancel:
		return StatusCancelled
	case ActionComplete:
		return StatusCompleted
	case ActionNoShow:
		return StatusNoShow
	default:
		return -1
	}
}

// Verdict is the outcome of a guard check.
type Verdict int

const (
	Allowed Verdict = iota
	WrongStatus
	MatchNotEnded
	MissingReason
	UnknownAction
)

func (v Verdict) String() string {
	switch v {
	case Allowed:
		return "allowed"
	case WrongStatus:
		return "wrong_status"
	case MatchNotEnded:
		return "match_not_ended"
	case MissingReason:
		return "missing_reason"
	default:
		return "unknown_action"
	}
}

func CanApprove(s Status) bool {
	return s == StatusWaitingForApproval
}

func CanReject(s Status) bool {
	return s == StatusWaitingForApproval
}

func CanCancel(s Status) bool {
	switch s {
	case StatusPending, StatusWaitingForApproval, StatusConfirmed:
		return true
	default:
		return false
	}
}

// CanComplete requires a confirmed booking whose match end has been reached.
// A match ending exactly at now is eligible.
func CanComplete(s Status, bookingDate time.Time, endTime TimeOfDay, now time.Time) bool {
	return s == StatusConfirmed && matchEnded(bookingDate, endTime, now)
}

// CanMarkNoShow shares the CanComplete precondition; complete and no-show
// are alternative outcomes of the same finished match.
func CanMarkNoShow(s Status, bookingDate time.Time, endTime TimeOfDay, now time.Time) bool {
	return CanComplete(s, bookingDate, endTime, now)
}

func matchEnded(bookingDate time.Time, endTime TimeOfDay, now time.Time) bool {
	return !now.Before(Combine(bookingDate, endTime))
}

// Check evaluates action against b at now and explains a refusal.
func Check(action Action, b Booking, now time.Time) Verdict {
	switch action {
	case ActionApprove:
		if !CanApprove(b.Status) {
			return WrongStatus
		}
	case ActionReject:
		if !CanReject(b.Status) {
			return WrongStatus
		}
	case ActionCancel:
		if !CanCancel(b.Status) {
			return WrongStatus
		}
	case ActionComplete, ActionNoShow:
		if b.Status != StatusConfirmed {
			return WrongStatus
		}
		if !matchEnded(b.BookingDate, b.EndTime, now) {
			return MatchNotEnded
		}
	default:
		return UnknownAction
	}
	return Allowed
}

// AvailableActions lists the actions Check would allow for b at now.
func AvailableActions(b Booking, now time.Time) []Action {
	var actions []Action
	for _, action := range []Action{ActionApprove, ActionReject, ActionCancel, ActionComplete, ActionNoShow} {
		if Check(action, b, now) == Allowed {
			actions = append(actions, action)
		}
	}
	return actions
}
