package db

import (
	"context"
	"fmt"

	"github.com/codr1/fieldbook/internal/actions"
)

// ActionLog persists booking action attempts.
type ActionLog struct {
	queries *Queries
}

func NewActionLog(database *DB) *ActionLog {
	return &ActionLog{queries: database.Queries}
}

func (l *ActionLog) RecordAttempt(ctx context.Context, attempt actions.Attempt) error {
	_, err := l.queries.InsertActionLog(ctx, InsertActionLogParams{
		BookingID:   attempt.BookingID,
		Action:      string(attempt.Action),
		FromStatus:  int64(attempt.FromStatus),
		Outcome:     attempt.Outcome,
		Message:     attempt.Message,
		AttemptedAt: attempt.At,
	})
	if err != nil {
		return fmt.Errorf("insert action log for booking %d: %w", attempt.BookingID, err)
	}
	return nil
}
