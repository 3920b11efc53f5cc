package db

import (
	"context"
	"database/sql"
	"time"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

type BookingActionLog struct {
	ID          int64     `json:"id"`
	BookingID   int64     `json:"bookingId"`
	Action      string    `json:"action"`
	FromStatus  int64     `json:"fromStatus"`
	Outcome     string    `json:"outcome"`
	Message     string    `json:"message"`
	AttemptedAt time.Time `json:"attemptedAt"`
}

const insertActionLog = `
INSERT INTO booking_action_log (booking_id, action, from_status, outcome, message, attempted_at)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id, booking_id, action, from_status, outcome, message, attempted_at
`

type InsertActionLogParams struct {
	BookingID   int64
	Action      string
	FromStatus  int64
	Outcome     string
	Message     string
	AttemptedAt time.Time
}

func (q *Queries) InsertActionLog(ctx context.Context, arg InsertActionLogParams) (BookingActionLog, error) {
	row := q.db.QueryRowContext(ctx, insertActionLog,
		arg.BookingID,
		arg.Action,
		arg.FromStatus,
		arg.Outcome,
		arg.Message,
		arg.AttemptedAt.UTC(),
	)
	var i BookingActionLog
	err := row.Scan(
		&i.ID,
		&i.BookingID,
		&i.Action,
		&i.FromStatus,
		&i.Outcome,
		&i.Message,
		&i.AttemptedAt,
	)
	return i, err
}

const listActionLogByBooking = `
SELECT id, booking_id, action, from_status, outcome, message, attempted_at
FROM booking_action_log
WHERE booking_id = ?
ORDER BY attempted_at DESC, id DESC
LIMIT ?
`

type ListActionLogByBookingParams struct {
	BookingID int64
	Limit     int64
}

func (q *Queries) ListActionLogByBooking(ctx context.Context, arg ListActionLogByBookingParams) ([]BookingActionLog, error) {
	rows, err := q.db.QueryContext(ctx, listActionLogByBooking, arg.BookingID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []BookingActionLog{}
	for rows.Next() {
		var i BookingActionLog
		if err := rows.Scan(
			&i.ID,
			&i.BookingID,
			&i.Action,
			&i.FromStatus,
			&i.Outcome,
			&i.Message,
			&i.AttemptedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteActionLogBefore = `
DELETE FROM booking_action_log
WHERE attempted_at < ?
`

func (q *Queries) DeleteActionLogBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteActionLogBefore, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const trimActionLogPerBooking = `
DELETE FROM booking_action_log
WHERE id IN (
    SELECT id FROM (
        SELECT id, ROW_NUMBER() OVER (
            PARTITION BY booking_id ORDER BY attempted_at DESC, id DESC
        ) AS rn
        FROM booking_action_log
    )
    WHERE rn > ?
)
`

// TrimActionLogPerBooking keeps only the newest keep entries of each booking.
func (q *Queries) TrimActionLogPerBooking(ctx context.Context, keep int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, trimActionLogPerBooking, keep)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
