package period

import (
	"fmt"
	"time"
)

const (
	// DateLayout is the wire format for range boundaries.
	DateLayout  = "2006-01-02"
	daysPerWeek = 7
)

// DateRange is an inclusive calendar range. Start is at the start of its
// day and End at the last nanosecond of its day.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Days counts calendar days in the range, inclusive of both ends.
func (r DateRange) Days() int {
	start := civilDays(r.Start)
	end := civilDays(r.End)
	return end - start + 1
}

func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// StartDate and EndDate are the boundaries formatted for the revenue endpoint.
func (r DateRange) StartDate() string { return FormatDate(r.Start) }
func (r DateRange) EndDate() string   { return FormatDate(r.End) }

func (r DateRange) String() string {
	return fmt.Sprintf("%s to %s", r.StartDate(), r.EndDate())
}

// Resolve maps q to the calendar range its revenue buckets cover.
func Resolve(q Query) (DateRange, error) {
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		return DateRange{}, err
	}

	now := q.ReferenceNow
	loc := now.Location()
	year := now.Year()

	switch q.Type {
	case Daily:
		monday := WeekStart(now)
		return span(monday, monday.AddDate(0, 0, daysPerWeek-1)), nil
	case Weekly:
		monday := WeekStart(now)
		sunday := monday.AddDate(0, 0, daysPerWeek-1)
		start := monday.AddDate(0, 0, -daysPerWeek*(q.WeekCount-1))
		return span(start, sunday), nil
	case Monthly, Quarterly:
		return span(
			time.Date(year, time.January, 1, 0, 0, 0, 0, loc),
			time.Date(year, time.December, 31, 0, 0, 0, 0, loc),
		), nil
	case Yearly:
		return span(
			time.Date(year-yearlySpan, time.January, 1, 0, 0, 0, 0, loc),
			time.Date(year, time.December, 31, 0, 0, 0, 0, loc),
		), nil
	default:
		return DateRange{}, fmt.Errorf("%w: %d", ErrUnknownType, int(q.Type))
	}
}

// WeekStart returns midnight of the Monday of the week containing t.
func WeekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % daysPerWeek
	return StartOfDay(t).AddDate(0, 0, -offset)
}

func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

// FormatDate renders t's calendar day in its own location, without a zone suffix.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate reads a YYYY-MM-DD string as midnight in loc.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	parsed, err := time.ParseInLocation(DateLayout, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be in YYYY-MM-DD format: %q", raw)
	}
	return parsed, nil
}

func span(startDay, endDay time.Time) DateRange {
	return DateRange{Start: StartOfDay(startDay), End: EndOfDay(endDay)}
}

// civilDays numbers calendar days independently of DST and zone offsets.
func civilDays(t time.Time) int {
	y, m, d := t.Date()
	return int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}
