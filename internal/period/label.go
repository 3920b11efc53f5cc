package period

import (
	"fmt"
	"time"
)

// Label is the bucket identifier for a bucket starting at bucketStart.
// Weekly buckets use ISO week numbering ("2025-W52"), so the year in the
// label can differ from the calendar year of bucketStart near January 1.
func Label(t Type, bucketStart time.Time) string {
	switch t {
	case Daily:
		return FormatDate(bucketStart)
	case Weekly:
		year, week := bucketStart.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case Monthly:
		return bucketStart.Format("2006-01")
	case Quarterly:
		quarter := (int(bucketStart.Month())-1)/3 + 1
		return fmt.Sprintf("%d-Q%d", bucketStart.Year(), quarter)
	case Yearly:
		return fmt.Sprintf("%d", bucketStart.Year())
	default:
		return FormatDate(bucketStart)
	}
}
