package dashboard

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/codr1/fieldbook/internal/booking"
)

type Stats struct {
	TotalBookings    int64           `json:"totalBookings"`
	TodayBookings    int64           `json:"todayBookings"`
	PendingApprovals int64           `json:"pendingApprovals"`
	TotalRevenue     decimal.Decimal `json:"totalRevenue"`
	MonthRevenue     decimal.Decimal `json:"monthRevenue"`
	ActiveFields     int64           `json:"activeFields"`
	TotalComplexes   int64           `json:"totalComplexes"`
}

type TopField struct {
	FieldID      int64           `json:"fieldId"`
	FieldName    string          `json:"fieldName"`
	ComplexName  string          `json:"complexName"`
	BookingCount int64           `json:"bookingCount"`
	Revenue      decimal.Decimal `json:"revenue"`
}

type PeakHour struct {
	Hour         int   `json:"hour"`
	BookingCount int64 `json:"bookingCount"`
}

type Complex struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Address    string `json:"address"`
	FieldCount int    `json:"fieldCount"`
	IsActive   bool   `json:"isActive"`
}

// Reader provides the owner-scoped dashboard reads other than revenue.
type Reader interface {
	Stats(ctx context.Context) (Stats, error)
	TopFields(ctx context.Context, limit int) ([]TopField, error)
	UpcomingBookings(ctx context.Context, limit int) ([]booking.Booking, error)
	PeakHours(ctx context.Context) ([]PeakHour, error)
	RecentBookings(ctx context.Context, limit int) ([]booking.Booking, error)
	Complexes(ctx context.Context) ([]Complex, error)
}
