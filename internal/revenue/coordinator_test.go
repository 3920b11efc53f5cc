package revenue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/codr1/fieldbook/internal/period"
)

type result struct {
	points []DataPoint
	err    error
}

type pendingCall struct {
	periodType period.Type
	dateRange  period.DateRange
	ctx        context.Context
	release    chan result
}

// gatedSource holds every call until the test releases it, ignoring
// cancellation the way a transport that cannot abort would.
type gatedSource struct {
	started chan *pendingCall
}

func newGatedSource() *gatedSource {
	return &gatedSource{started: make(chan *pendingCall, 16)}
}

func (s *gatedSource) Revenue(ctx context.Context, periodType period.Type, r period.DateRange) ([]DataPoint, error) {
	call := &pendingCall{periodType: periodType, dateRange: r, ctx: ctx, release: make(chan result, 1)}
	s.started <- call
	res := <-call.release
	return res.points, res.err
}

func (s *gatedSource) next(t *testing.T) *pendingCall {
	t.Helper()
	select {
	case call := <-s.started:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for revenue call")
		return nil
	}
}

type recordingSink struct {
	mu       sync.Mutex
	loading  []uint64
	applied  map[uint64][]DataPoint
	failures map[uint64]error
	order    []string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{applied: make(map[uint64][]DataPoint), failures: make(map[uint64]error)}
}

func (s *recordingSink) RevenueLoading(seq uint64, q period.Query, r period.DateRange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = append(s.loading, seq)
}

func (s *recordingSink) ApplyRevenue(seq uint64, points []DataPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied[seq] = points
	s.order = append(s.order, "apply")
}

func (s *recordingSink) FailRevenue(seq uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[seq] = err
	s.order = append(s.order, "fail")
}

func points(amount string) []DataPoint {
	return []DataPoint{{Period: amount, Revenue: decimal.RequireFromString(amount), BookingCount: 1}}
}

var referenceNow = time.Date(2025, 12, 24, 10, 0, 0, 0, time.UTC)

func TestCoordinatorDiscardsOlderResponseArrivingLate(t *testing.T) {
	source := newGatedSource()
	sink := newRecordingSink()
	var outcomes []Outcome
	var outcomesMu sync.Mutex
	c := NewCoordinator(source, sink, WithObserver(func(o Outcome) {
		outcomesMu.Lock()
		defer outcomesMu.Unlock()
		outcomes = append(outcomes, o)
	}))

	seqA := c.Issue(context.Background(), period.Query{Type: period.Daily, ReferenceNow: referenceNow})
	callA := source.next(t)
	seqB := c.Issue(context.Background(), period.Query{Type: period.Weekly, WeekCount: 4, ReferenceNow: referenceNow})
	callB := source.next(t)

	if seqB <= seqA {
		t.Fatalf("sequence not increasing: A=%d B=%d", seqA, seqB)
	}
	if callA.ctx.Err() == nil {
		t.Fatalf("expected query A to be cancelled once B was issued")
	}
	if callB.periodType != period.Weekly || callB.dateRange.Days() != 28 {
		t.Fatalf("query B resolved to %s %s", callB.periodType, callB.dateRange)
	}

	callB.release <- result{points: points("200")}
	callA.release <- result{points: points("100")}
	c.Wait()

	if len(sink.applied) != 1 {
		t.Fatalf("applied %d results, want 1", len(sink.applied))
	}
	got, ok := sink.applied[seqB]
	if !ok || !got[0].Revenue.Equal(decimal.RequireFromString("200")) {
		t.Fatalf("sink holds %+v, want B's result", sink.applied)
	}
	if len(sink.failures) != 0 {
		t.Fatalf("unexpected failures: %v", sink.failures)
	}

	states := map[uint64]State{}
	for _, o := range outcomes {
		states[o.Seq] = o.State
	}
	if states[seqA] != StateSuperseded || states[seqB] != StateApplied {
		t.Fatalf("outcomes = %v", states)
	}
	if c.State() != StateIdle {
		t.Fatalf("state = %s, want idle", c.State())
	}
}

func TestCoordinatorSupersededFailureIsSilent(t *testing.T) {
	source := newGatedSource()
	sink := newRecordingSink()
	c := NewCoordinator(source, sink)

	c.Issue(context.Background(), period.Query{Type: period.Monthly, ReferenceNow: referenceNow})
	callA := source.next(t)
	seqB := c.Issue(context.Background(), period.Query{Type: period.Yearly, ReferenceNow: referenceNow})
	callB := source.next(t)

	callA.release <- result{err: context.Canceled}
	callB.release <- result{points: points("50")}
	c.Wait()

	if len(sink.failures) != 0 {
		t.Fatalf("superseded failure surfaced: %v", sink.failures)
	}
	if _, ok := sink.applied[seqB]; !ok {
		t.Fatalf("latest result not applied")
	}
}

func TestCoordinatorLatestFailureSurfacedOnce(t *testing.T) {
	source := newGatedSource()
	sink := newRecordingSink()
	c := NewCoordinator(source, sink)

	errBoom := errors.New("backend unavailable")
	done := make(chan Outcome, 1)
	go func() {
		done <- c.Fetch(context.Background(), period.Query{Type: period.Quarterly, ReferenceNow: referenceNow})
	}()
	call := source.next(t)
	call.release <- result{err: errBoom}
	out := <-done

	if out.State != StateFailed || !errors.Is(out.Err, errBoom) {
		t.Fatalf("outcome = %s %v", out.State, out.Err)
	}
	if len(sink.failures) != 1 || len(sink.order) != 1 {
		t.Fatalf("failures = %v order = %v", sink.failures, sink.order)
	}
}

func TestCoordinatorInvalidQueryFailsWithoutCallingSource(t *testing.T) {
	source := newGatedSource()
	sink := newRecordingSink()
	c := NewCoordinator(source, sink)

	out := c.Fetch(context.Background(), period.Query{Type: period.Weekly, WeekCount: -1, ReferenceNow: referenceNow})
	if out.State != StateFailed || !errors.Is(out.Err, period.ErrInvalidWeekCount) {
		t.Fatalf("outcome = %s %v", out.State, out.Err)
	}
	select {
	case <-source.started:
		t.Fatal("source called for invalid query")
	default:
	}
}

func TestCoordinatorCloseDropsInFlightResult(t *testing.T) {
	source := newGatedSource()
	sink := newRecordingSink()
	c := NewCoordinator(source, sink)

	c.Issue(context.Background(), period.Query{Type: period.Daily, ReferenceNow: referenceNow})
	call := source.next(t)
	c.Close()
	if call.ctx.Err() == nil {
		t.Fatalf("expected in-flight query to be cancelled on close")
	}
	call.release <- result{points: points("10")}
	c.Wait()

	if len(sink.applied) != 0 || len(sink.failures) != 0 {
		t.Fatalf("closed coordinator touched sink: applied=%v failures=%v", sink.applied, sink.failures)
	}
	if seq := c.Issue(context.Background(), period.Query{Type: period.Daily, ReferenceNow: referenceNow}); seq != 0 {
		t.Fatalf("issue after close returned seq %d", seq)
	}
	if c.State() != StateClosed {
		t.Fatalf("state = %s", c.State())
	}
}

func TestCoordinatorManyIssuesOnlyLastApplies(t *testing.T) {
	source := newGatedSource()
	sink := newRecordingSink()
	c := NewCoordinator(source, sink)

	const n = 5
	calls := make([]*pendingCall, 0, n)
	var last uint64
	for i := 0; i < n; i++ {
		last = c.Issue(context.Background(), period.Query{Type: period.Weekly, WeekCount: i + 1, ReferenceNow: referenceNow})
		calls = append(calls, source.next(t))
	}
	// Release newest first so every older response arrives late.
	for i := n - 1; i >= 0; i-- {
		calls[i].release <- result{points: points("1")}
	}
	c.Wait()

	if len(sink.applied) != 1 {
		t.Fatalf("applied = %v", sink.applied)
	}
	if _, ok := sink.applied[last]; !ok {
		t.Fatalf("applied %v, want seq %d", sink.applied, last)
	}
	if c.Latest() != last {
		t.Fatalf("latest = %d, want %d", c.Latest(), last)
	}
}
