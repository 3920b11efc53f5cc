package dashboard

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/codr1/fieldbook/internal/booking"
	"github.com/codr1/fieldbook/internal/period"
	"github.com/codr1/fieldbook/internal/revenue"
)

// Slice is one independently loaded part of the dashboard.
type Slice[T any] struct {
	Data      T         `json:"data"`
	Loading   bool      `json:"loading"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

type RevenueSlice struct {
	Slice[[]revenue.DataPoint]
	Query         period.Query     `json:"query"`
	Range         period.DateRange `json:"range"`
	StartDate     string           `json:"startDate,omitempty"`
	EndDate       string           `json:"endDate,omitempty"`
	Seq           uint64           `json:"seq"`
	TotalRevenue  decimal.Decimal  `json:"totalRevenue"`
	TotalBookings int64            `json:"totalBookings"`
}

// View is the dashboard view-model handed to the UI.
type View struct {
	OwnerID    int64                    `json:"ownerId"`
	Generation uint64                   `json:"generation"`
	Stats      Slice[Stats]             `json:"stats"`
	Revenue    RevenueSlice             `json:"revenue"`
	TopFields  Slice[[]TopField]        `json:"topFields"`
	Upcoming   Slice[[]booking.Booking] `json:"upcomingBookings"`
	PeakHours  Slice[[]PeakHour]        `json:"peakHours"`
	Recent     Slice[[]booking.Booking] `json:"recentBookings"`
	Complexes  Slice[[]Complex]         `json:"complexes"`
}

// Store owns the dashboard state. Every mutation goes through its methods;
// readers get copies from Snapshot.
type Store struct {
	mu     sync.Mutex
	view   View
	closed bool
	now    func() time.Time
}

func NewStore(ownerID int64, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{view: View{OwnerID: ownerID, Generation: 1}, now: now}
}

// BeginLoad marks the six list slices as loading. With reset it also
// discards everything loaded so far and starts a new generation; results
// belonging to an older generation are ignored from then on.
func (s *Store) BeginLoad(reset bool) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reset {
		s.view = View{OwnerID: s.view.OwnerID, Generation: s.view.Generation + 1, Revenue: RevenueSlice{Query: s.view.Revenue.Query}}
	}
	s.view.Stats.Loading = true
	s.view.TopFields.Loading = true
	s.view.Upcoming.Loading = true
	s.view.PeakHours.Loading = true
	s.view.Recent.Loading = true
	s.view.Complexes.Loading = true
	return s.view.Generation
}

func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.Generation
}

// Close freezes the store; later updates are dropped.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *Store) RevenueLoading(seq uint64, q period.Query, r period.DateRange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	rev := &s.view.Revenue
	rev.Seq = seq
	rev.Query = q
	rev.Range = r
	rev.StartDate = r.StartDate()
	rev.EndDate = r.EndDate()
	rev.Loading = true
	rev.Error = ""
}

func (s *Store) ApplyRevenue(seq uint64, points []revenue.DataPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	rev := &s.view.Revenue
	rev.Seq = seq
	rev.Data = append([]revenue.DataPoint(nil), points...)
	rev.TotalRevenue, rev.TotalBookings = revenue.Total(points)
	rev.Loading = false
	rev.Error = ""
	rev.UpdatedAt = s.now()
}

func (s *Store) FailRevenue(seq uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	rev := &s.view.Revenue
	rev.Seq = seq
	rev.Loading = false
	rev.Error = err.Error()
}

// Snapshot returns a copy of the current view.
func (s *Store) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.view
	v.Revenue.Data = cloneSlice(v.Revenue.Data)
	v.TopFields.Data = cloneSlice(v.TopFields.Data)
	v.Upcoming.Data = cloneSlice(v.Upcoming.Data)
	v.PeakHours.Data = cloneSlice(v.PeakHours.Data)
	v.Recent.Data = cloneSlice(v.Recent.Data)
	v.Complexes.Data = cloneSlice(v.Complexes.Data)
	return v
}

func setSlice[T any](s *Store, gen uint64, pick func(*View) *Slice[T], data T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.view.Generation {
		return false
	}
	slot := pick(&s.view)
	slot.Data = data
	slot.Loading = false
	slot.Error = ""
	slot.UpdatedAt = s.now()
	return true
}

func failSlice[T any](s *Store, gen uint64, pick func(*View) *Slice[T], err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.view.Generation {
		return false
	}
	slot := pick(&s.view)
	slot.Loading = false
	slot.Error = err.Error()
	return true
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	return append([]T(nil), in...)
}
