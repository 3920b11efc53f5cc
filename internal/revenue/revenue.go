package revenue

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/codr1/fieldbook/internal/period"
)

// DataPoint is one revenue bucket as returned by the revenue source.
type DataPoint struct {
	Date         time.Time       `json:"date"`
	Period       string          `json:"period"`
	Label        string          `json:"label"`
	Revenue      decimal.Decimal `json:"revenue"`
	BookingCount int64           `json:"bookingCount"`
}

// Total sums revenue and bookings across points.
func Total(points []DataPoint) (decimal.Decimal, int64) {
	revenue := decimal.Zero
	var bookings int64
	for _, p := range points {
		revenue = revenue.Add(p.Revenue)
		bookings += p.BookingCount
	}
	return revenue, bookings
}

// Source fetches revenue buckets for a resolved range.
type Source interface {
	Revenue(ctx context.Context, periodType period.Type, r period.DateRange) ([]DataPoint, error)
}

// Sink receives the coordinator's state changes. Calls for one coordinator
// are serialized and only ever carry the latest sequence number.
type Sink interface {
	RevenueLoading(seq uint64, q period.Query, r period.DateRange)
	ApplyRevenue(seq uint64, points []DataPoint)
	FailRevenue(seq uint64, err error)
}
