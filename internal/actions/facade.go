// Package actions exposes the owner's booking operations. Each operation
// checks the status guard locally and only then issues the write.
package actions

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/fieldbook/internal/booking"
)

// Writer issues booking status writes against the booking backend.
type Writer interface {
	Approve(ctx context.Context, bookingID int64) error
	Reject(ctx context.Context, bookingID int64, reason string) error
	Cancel(ctx context.Context, bookingID int64) error
	Complete(ctx context.Context, bookingID int64) error
	MarkNoShow(ctx context.Context, bookingID int64) error
}

// Outcome values recorded for every attempted action.
const (
	OutcomeSucceeded      = "succeeded"
	OutcomeGuardViolation = "guard_violation"
	OutcomeFailed         = "failed"
	OutcomeConflict       = "conflict"
)

// Attempt describes one action attempt for auditing and metrics.
type Attempt struct {
	BookingID  int64
	Action     booking.Action
	FromStatus booking.Status
	Outcome    string
	Message    string
	At         time.Time
}

// Recorder receives every attempt. Recording errors are logged, never returned.
type Recorder interface {
	RecordAttempt(ctx context.Context, attempt Attempt) error
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Option func(*Facade)

func WithClock(clock Clock) Option {
	return func(f *Facade) { f.clock = clock }
}

func WithRecorder(recorders ...Recorder) Option {
	return func(f *Facade) { f.recorders = append(f.recorders, recorders...) }
}

type Facade struct {
	writer    Writer
	clock     Clock
	recorders []Recorder

	mu       sync.Mutex
	inFlight map[int64]booking.Action
}

func NewFacade(writer Writer, opts ...Option) *Facade {
	f := &Facade{
		writer:   writer,
		clock:    realClock{},
		inFlight: make(map[int64]booking.Action),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Facade) Approve(ctx context.Context, b booking.Booking) error {
	return f.do(ctx, booking.ActionApprove, b, func(ctx context.Context) error {
		return f.writer.Approve(ctx, b.ID)
	})
}

// Reject requires a non-blank reason; a blank one never reaches the backend.
func (f *Facade) Reject(ctx context.Context, b booking.Booking, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		gv := &GuardViolation{
			Action:    booking.ActionReject,
			BookingID: b.ID,
			Verdict:   booking.MissingReason,
			Message:   msgReasonRequired,
		}
		if verdict := booking.Check(booking.ActionReject, b, f.clock.Now()); verdict != booking.Allowed {
			gv = violation(booking.ActionReject, b, verdict)
		}
		f.record(ctx, b, booking.ActionReject, OutcomeGuardViolation, gv.Message)
		return gv
	}
	return f.do(ctx, booking.ActionReject, b, func(ctx context.Context) error {
		return f.writer.Reject(ctx, b.ID, reason)
	})
}

func (f *Facade) Cancel(ctx context.Context, b booking.Booking) error {
	return f.do(ctx, booking.ActionCancel, b, func(ctx context.Context) error {
		return f.writer.Cancel(ctx, b.ID)
	})
}

func (f *Facade) Complete(ctx context.Context, b booking.Booking) error {
	return f.do(ctx, booking.ActionComplete, b, func(ctx context.Context) error {
		return f.writer.Complete(ctx, b.ID)
	})
}

func (f *Facade) MarkNoShow(ctx context.Context, b booking.Booking) error {
	return f.do(ctx, booking.ActionNoShow, b, func(ctx context.Context) error {
		return f.writer.MarkNoShow(ctx, b.ID)
	})
}

// Perform dispatches action by name. reason is only used by reject.
func (f *Facade) Perform(ctx context.Context, action booking.Action, b booking.Booking, reason string) error {
	switch action {
	case booking.ActionApprove:
		return f.Approve(ctx, b)
	case booking.ActionReject:
		return f.Reject(ctx, b, reason)
	case booking.ActionCancel:
		return f.Cancel(ctx, b)
	case booking.ActionComplete:
		return f.Complete(ctx, b)
	case booking.ActionNoShow:
		return f.MarkNoShow(ctx, b)
	default:
		gv := violation(action, b, booking.UnknownAction)
		f.record(ctx, b, action, OutcomeGuardViolation, gv.Message)
		return gv
	}
}

func (f *Facade) do(ctx context.Context, action booking.Action, b booking.Booking, write func(context.Context) error) error {
	logger := log.Ctx(ctx).With().
		Str("component", "booking_actions").
		Str("action", string(action)).
		Int64("booking_id", b.ID).
		Str("status", b.Status.String()).
		Logger()

	if verdict := booking.Check(action, b, f.clock.Now()); verdict != booking.Allowed {
		gv := violation(action, b, verdict)
		logger.Info().Str("verdict", verdict.String()).Msg("Booking action blocked by guard")
		f.record(ctx, b, action, OutcomeGuardViolation, gv.Message)
		return gv
	}

	if !f.acquire(b.ID, action) {
		logger.Warn().Msg("Booking action rejected: another action in flight")
		f.record(ctx, b, action, OutcomeConflict, ErrActionInFlight.Error())
		return ErrActionInFlight
	}
	defer f.release(b.ID)

	if err := write(ctx); err != nil {
		logger.Error().Err(err).Msg("Booking action request failed")
		f.record(ctx, b, action, OutcomeFailed, err.Error())
		return &RequestFailure{Action: action, BookingID: b.ID, Err: err}
	}

	logger.Info().Str("target_status", action.Target().String()).Msg("Booking action succeeded")
	f.record(ctx, b, action, OutcomeSucceeded, "")
	return nil
}

func (f *Facade) acquire(bookingID int64, action booking.Action) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.inFlight[bookingID]; busy {
		return false
	}
	f.inFlight[bookingID] = action
	return true
}

func (f *Facade) release(bookingID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.inFlight, bookingID)
}

func (f *Facade) record(ctx context.Context, b booking.Booking, action booking.Action, outcome, message string) {
	attempt := Attempt{
		BookingID:  b.ID,
		Action:     action,
		FromStatus: b.Status,
		Outcome:    outcome,
		Message:    message,
		At:         f.clock.Now(),
	}
	for _, recorder := range f.recorders {
		if err := recorder.RecordAttempt(ctx, attempt); err != nil {
			log.Ctx(ctx).Error().Err(err).Int64("booking_id", b.ID).Str("action", string(action)).Msg("Failed to record booking action")
		}
	}
}
