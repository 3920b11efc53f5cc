package revenue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/fieldbook/internal/period"
)

// State is where a revenue query stands.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateApplied
	StateSuperseded
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateApplied:
		return "applied"
	case StateSuperseded:
		return "superseded"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var ErrCoordinatorClosed = errors.New("revenue coordinator closed")

// Outcome describes how a single query ended.
type Outcome struct {
	Seq      uint64
	Query    period.Query
	Range    period.DateRange
	State    State
	Points   []DataPoint
	Err      error
	Duration time.Duration
}

type Option func(*Coordinator)

// WithObserver registers fn to be called with every outcome, superseded
// ones included. fn runs outside the coordinator's lock.
func WithObserver(fn func(Outcome)) Option {
	return func(c *Coordinator) {
		c.observers = append(c.observers, fn)
	}
}

// Coordinator sequences revenue queries so that only the most recently
// issued one can reach the sink.
type Coordinator struct {
	source    Source
	sink      Sink
	observers []func(Outcome)

	mu       sync.Mutex
	seq      uint64
	inFlight bool
	cancel   context.CancelFunc
	closed   bool

	wg sync.WaitGroup
}

func NewCoordinator(source Source, sink Sink, opts ...Option) *Coordinator {
	c := &Coordinator{source: source, sink: sink}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Issue starts q in the background and returns its sequence number. Any
// query still in flight is cancelled and its result will be discarded.
// It returns 0 once the coordinator is closed.
func (c *Coordinator) Issue(ctx context.Context, q period.Query) uint64 {
	seq, fetchCtx, cancel, ok := c.begin(ctx)
	if !ok {
		return 0
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		c.run(fetchCtx, seq, q)
	}()
	return seq
}

// Fetch runs q and blocks until it completes or is superseded.
func (c *Coordinator) Fetch(ctx context.Context, q period.Query) Outcome {
	seq, fetchCtx, cancel, ok := c.begin(ctx)
	if !ok {
		return Outcome{Query: q, State: StateClosed, Err: ErrCoordinatorClosed}
	}
	defer cancel()
	return c.run(fetchCtx, seq, q)
}

// Wait blocks until every query started by Issue has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close cancels the in-flight query. Results arriving afterwards are dropped.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.inFlight = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// State reports whether a query is in flight.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return StateClosed
	case c.inFlight:
		return StateFetching
	default:
		return StateIdle
	}
}

// Latest is the highest sequence number issued so far.
func (c *Coordinator) Latest() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

func (c *Coordinator) begin(parent context.Context) (uint64, context.Context, context.CancelFunc, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, nil, nil, false
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.seq++
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel
	c.inFlight = true
	return c.seq, ctx, cancel, true
}

func (c *Coordinator) run(ctx context.Context, seq uint64, q period.Query) Outcome {
	started := time.Now()
	q = q.Normalize()

	r, err := period.Resolve(q)
	if err != nil {
		return c.finish(Outcome{Seq: seq, Query: q, Err: err, Duration: time.Since(started)})
	}

	if !c.markLoading(seq, q, r) {
		return c.finish(Outcome{Seq: seq, Query: q, Range: r, Duration: time.Since(started)})
	}

	points, err := c.source.Revenue(ctx, q.Type, r)
	return c.finish(Outcome{
		Seq:      seq,
		Query:    q,
		Range:    r,
		Points:   points,
		Err:      err,
		Duration: time.Since(started),
	})
}

func (c *Coordinator) markLoading(seq uint64, q period.Query, r period.DateRange) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || seq != c.seq {
		return false
	}
	c.sink.RevenueLoading(seq, q, r)
	return true
}

func (c *Coordinator) finish(out Outcome) Outcome {
	c.mu.Lock()
	switch {
	case c.closed || out.Seq != c.seq:
		out.State = StateSuperseded
		out.Points = nil
	case out.Err != nil:
		out.State = StateFailed
		c.sink.FailRevenue(out.Seq, out.Err)
	default:
		out.State = StateApplied
		c.sink.ApplyRevenue(out.Seq, out.Points)
	}
	if out.State != StateSuperseded {
		c.inFlight = false
		c.cancel = nil
	}
	c.mu.Unlock()

	logger := log.With().
		Str("component", "revenue_coordinator").
		Uint64("seq", out.Seq).
		Str("period_type", out.Query.Type.String()).
		Str("state", out.State.String()).
		Dur("duration", out.Duration).
		Logger()
	switch out.State {
	case StateFailed:
		logger.Warn().Err(out.Err).Msg("Revenue query failed")
	case StateSuperseded:
		logger.Debug().Msg("Revenue query superseded")
	default:
		logger.Debug().Int("points", len(out.Points)).Msg("Revenue query applied")
	}

	for _, observe := range c.observers {
		observe(out)
	}
	return out
}
