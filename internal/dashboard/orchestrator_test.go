package dashboard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/codr1/fieldbook/internal/booking"
	"github.com/codr1/fieldbook/internal/period"
	"github.com/codr1/fieldbook/internal/revenue"
)

var testNow = time.Date(2025, 12, 24, 10, 0, 0, 0, time.UTC)

type fakeReader struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
	panic map[string]bool
}

func newFakeReader() *fakeReader {
	return &fakeReader{calls: map[string]int{}, fail: map[string]error{}, panic: map[string]bool{}}
}

func (r *fakeReader) record(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[name]++
	if r.panic[name] {
		panic("unexpected payload shape")
	}
	return r.fail[name]
}

func (r *fakeReader) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

func (r *fakeReader) Stats(ctx context.Context) (Stats, error) {
	if err := r.record("stats"); err != nil {
		return Stats{}, err
	}
	return Stats{TotalBookings: 42, TotalRevenue: decimal.RequireFromString("1500000")}, nil
}

func (r *fakeReader) TopFields(ctx context.Context, limit int) ([]TopField, error) {
	if err := r.record("top_fields"); err != nil {
		return nil, err
	}
	return []TopField{{FieldID: 1, FieldName: "Field A", BookingCount: 9}}, nil
}

func (r *fakeReader) UpcomingBookings(ctx context.Context, limit int) ([]booking.Booking, error) {
	if err := r.record("upcoming"); err != nil {
		return nil, err
	}
	return []booking.Booking{{ID: 10, Status: booking.StatusConfirmed, BookingDate: testNow}}, nil
}

func (r *fakeReader) PeakHours(ctx context.Context) ([]PeakHour, error) {
	if err := r.record("peak_hours"); err != nil {
		return nil, err
	}
	return []PeakHour{{Hour: 19, BookingCount: 12}}, nil
}

func (r *fakeReader) RecentBookings(ctx context.Context, limit int) ([]booking.Booking, error) {
	if err := r.record("recent"); err != nil {
		return nil, err
	}
	return []booking.Booking{{ID: 11, Status: booking.StatusCompleted, BookingDate: testNow}}, nil
}

func (r *fakeReader) Complexes(ctx context.Context) ([]Complex, error) {
	if err := r.record("complexes"); err != nil {
		return nil, err
	}
	return []Complex{{ID: 3, Name: "North Complex", FieldCount: 4, IsActive: true}}, nil
}

type fakeRevenue struct {
	mu     sync.Mutex
	calls  []period.Type
	ranges []period.DateRange
	block  chan struct{}
	err    error
}

func (s *fakeRevenue) Revenue(ctx context.Context, periodType period.Type, r period.DateRange) ([]revenue.DataPoint, error) {
	s.mu.Lock()
	s.calls = append(s.calls, periodType)
	s.ranges = append(s.ranges, r)
	block := s.block
	err := s.err
	s.mu.Unlock()
	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	return []revenue.DataPoint{
		{Date: r.Start, Period: period.Label(periodType, r.Start), Revenue: decimal.NewFromInt(100), BookingCount: 2},
		{Date: r.Start.AddDate(0, 0, 7), Period: period.Label(periodType, r.Start.AddDate(0, 0, 7)), Revenue: decimal.NewFromInt(50), BookingCount: 1},
	}, nil
}

func (s *fakeRevenue) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func newTestOrchestrator(reader Reader, source revenue.Source) *Orchestrator {
	return NewOrchestrator(7, reader, source, Options{
		Location: time.UTC,
		Now:      func() time.Time { return testNow },
	})
}

func TestLoadPopulatesEverySlice(t *testing.T) {
	reader := newFakeReader()
	source := &fakeRevenue{}
	orch := newTestOrchestrator(reader, source)
	defer orch.Close()

	if err := orch.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	view := orch.Snapshot()

	if view.Stats.Loading || view.Stats.Data.TotalBookings != 42 {
		t.Fatalf("stats slice = %+v", view.Stats)
	}
	if len(view.TopFields.Data) != 1 || len(view.Upcoming.Data) != 1 || len(view.PeakHours.Data) != 1 ||
		len(view.Recent.Data) != 1 || len(view.Complexes.Data) != 1 {
		t.Fatalf("list slices not populated: %+v", view)
	}
	if view.Revenue.Loading || len(view.Revenue.Data) != 2 {
		t.Fatalf("revenue slice = %+v", view.Revenue)
	}
	if !view.Revenue.TotalRevenue.Equal(decimal.NewFromInt(150)) || view.Revenue.TotalBookings != 3 {
		t.Fatalf("revenue totals = %s / %d", view.Revenue.TotalRevenue, view.Revenue.TotalBookings)
	}
	// Default period is the last eight weeks.
	if view.Revenue.Query.Type != period.Weekly || view.Revenue.Range.Days() != 56 {
		t.Fatalf("revenue query = %+v range = %s", view.Revenue.Query, view.Revenue.Range)
	}
	if view.Revenue.EndDate != "2025-12-28" {
		t.Fatalf("revenue end = %s", view.Revenue.EndDate)
	}

	// A second Load is a no-op.
	if err := orch.Load(context.Background()); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if reader.count("stats") != 1 || source.callCount() != 1 {
		t.Fatalf("second load re-issued reads")
	}
}

func TestConcurrentLoadWaitsForFirstLoad(t *testing.T) {
	reader := newFakeReader()
	source := &fakeRevenue{block: make(chan struct{})}
	orch := newTestOrchestrator(reader, source)
	defer orch.Close()

	first := make(chan error, 1)
	go func() { first <- orch.Load(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for source.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("first load never reached the revenue read")
		}
		time.Sleep(time.Millisecond)
	}

	second := make(chan error, 1)
	go func() { second <- orch.Load(context.Background()) }()

	select {
	case err := <-second:
		t.Fatalf("second load returned before the first finished: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(source.block)
	for i, ch := range []chan error{first, second} {
		select {
		case err := <-ch:
			if err != nil {
				t.Fatalf("load %d: %v", i, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("load %d did not finish", i)
		}
	}

	if view := orch.Snapshot(); view.Revenue.Loading || len(view.Revenue.Data) != 2 {
		t.Fatalf("expected loaded revenue after waiting, got %+v", view.Revenue)
	}
	if reader.count("stats") != 1 || source.callCount() != 1 {
		t.Fatalf("expected a single round of reads, got stats=%d revenue=%d", reader.count("stats"), source.callCount())
	}
}

func TestLoadToleratesPartialFailure(t *testing.T) {
	reader := newFakeReader()
	reader.fail["peak_hours"] = errors.New("peak hours unavailable")
	reader.panic["complexes"] = true
	source := &fakeRevenue{}
	orch := newTestOrchestrator(reader, source)
	defer orch.Close()

	if err := orch.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	view := orch.Snapshot()

	if view.PeakHours.Error != "peak hours unavailable" || view.PeakHours.Loading {
		t.Fatalf("peak hours slice = %+v", view.PeakHours)
	}
	if !strings.Contains(view.Complexes.Error, ErrMalformedSlice.Error()) {
		t.Fatalf("complexes slice = %+v", view.Complexes)
	}
	if view.Stats.Error != "" || view.Stats.Data.TotalBookings != 42 {
		t.Fatalf("stats slice affected by sibling failure: %+v", view.Stats)
	}
	if view.Revenue.Error != "" || len(view.Revenue.Data) != 2 {
		t.Fatalf("revenue slice affected by sibling failure: %+v", view.Revenue)
	}
}

func TestChangePeriodOnlyReissuesRevenue(t *testing.T) {
	reader := newFakeReader()
	source := &fakeRevenue{}
	orch := newTestOrchestrator(reader, source)
	defer orch.Close()

	if err := orch.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	out, err := orch.ChangePeriod(context.Background(), period.Query{Type: period.Yearly})
	if err != nil {
		t.Fatalf("change period: %v", err)
	}
	if out.State != revenue.StateApplied {
		t.Fatalf("outcome = %s", out.State)
	}

	for _, name := range []string{"stats", "top_fields", "upcoming", "peak_hours", "recent", "complexes"} {
		if got := reader.count(name); got != 1 {
			t.Fatalf("%s read %d times, want 1", name, got)
		}
	}
	if source.callCount() != 2 {
		t.Fatalf("revenue read %d times, want 2", source.callCount())
	}

	view := orch.Snapshot()
	if view.Revenue.StartDate != "2022-01-01" || view.Revenue.EndDate != "2025-12-31" {
		t.Fatalf("revenue range = %s..%s", view.Revenue.StartDate, view.Revenue.EndDate)
	}
	if orch.Period().Type != period.Yearly {
		t.Fatalf("period = %+v", orch.Period())
	}
}

func TestChangePeriodRejectsInvalidWeekCount(t *testing.T) {
	orch := newTestOrchestrator(newFakeReader(), &fakeRevenue{})
	defer orch.Close()

	_, err := orch.ChangePeriod(context.Background(), period.Query{Type: period.Weekly, WeekCount: -4})
	if !errors.Is(err, period.ErrInvalidWeekCount) {
		t.Fatalf("err = %v", err)
	}
}

func TestRefreshReissuesAllReads(t *testing.T) {
	reader := newFakeReader()
	source := &fakeRevenue{}
	orch := newTestOrchestrator(reader, source)
	defer orch.Close()

	if err := orch.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	before := orch.Snapshot().Generation

	if err := orch.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	view := orch.Snapshot()
	if view.Generation != before+1 {
		t.Fatalf("generation = %d, want %d", view.Generation, before+1)
	}
	for _, name := range []string{"stats", "top_fields", "upcoming", "peak_hours", "recent", "complexes"} {
		if got := reader.count(name); got != 2 {
			t.Fatalf("%s read %d times, want 2", name, got)
		}
	}
	if source.callCount() != 2 {
		t.Fatalf("revenue read %d times, want 2", source.callCount())
	}
	if view.Stats.Data.TotalBookings != 42 || len(view.Revenue.Data) != 2 {
		t.Fatalf("refreshed view incomplete: %+v", view)
	}
}

func TestCloseDropsLateRevenue(t *testing.T) {
	reader := newFakeReader()
	source := &fakeRevenue{block: make(chan struct{})}
	orch := newTestOrchestrator(reader, source)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := orch.Load(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("load err = %v, want deadline while revenue blocks", err)
	}

	orch.Close()
	close(source.block)
	orch.Wait()

	view := orch.Snapshot()
	if len(view.Revenue.Data) != 0 {
		t.Fatalf("late revenue applied after close: %+v", view.Revenue)
	}
	if view.Revenue.Error != "" {
		t.Fatalf("late revenue surfaced an error after close: %s", view.Revenue.Error)
	}
	if err := orch.Refresh(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("refresh after close: %v", err)
	}
}

func TestRevenueFailureIsReportedOnItsSlice(t *testing.T) {
	reader := newFakeReader()
	source := &fakeRevenue{err: errors.New("revenue backend down")}
	orch := newTestOrchestrator(reader, source)
	defer orch.Close()

	if err := orch.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	view := orch.Snapshot()
	if view.Revenue.Error != "revenue backend down" || view.Revenue.Loading {
		t.Fatalf("revenue slice = %+v", view.Revenue)
	}
	if view.TopFields.Error != "" {
		t.Fatalf("top fields slice = %+v", view.TopFields)
	}
}
