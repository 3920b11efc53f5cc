package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/codr1/fieldbook/internal/booking"
	"github.com/codr1/fieldbook/internal/period"
	"github.com/codr1/fieldbook/internal/revenue"
)

const (
	defaultListLimit   = 5
	defaultLoadTimeout = 10 * time.Second
)

var (
	ErrClosed         = errors.New("dashboard closed")
	ErrMalformedSlice = errors.New("malformed dashboard response")
)

type Options struct {
	// Location is the facility calendar used for period resolution.
	Location *time.Location
	Now      func() time.Time

	TopFieldsLimit int
	UpcomingLimit  int
	RecentLimit    int
	LoadTimeout    time.Duration

	// InitialPeriod is the revenue period shown before the owner picks one.
	InitialPeriod period.Query

	RevenueObserver func(revenue.Outcome)
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.TopFieldsLimit <= 0 {
		o.TopFieldsLimit = defaultListLimit
	}
	if o.UpcomingLimit <= 0 {
		o.UpcomingLimit = defaultListLimit
	}
	if o.RecentLimit <= 0 {
		o.RecentLimit = defaultListLimit
	}
	if o.LoadTimeout <= 0 {
		o.LoadTimeout = defaultLoadTimeout
	}
	if !o.InitialPeriod.Type.Valid() {
		o.InitialPeriod = period.Query{Type: period.Weekly}
	}
	o.InitialPeriod = o.InitialPeriod.Normalize()
	return o
}

// Orchestrator assembles one owner's dashboard from independent reads.
type Orchestrator struct {
	ownerID int64
	reader  Reader
	store   *Store
	coord   *revenue.Coordinator
	opts    Options
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	query      period.Query
	loaded     bool
	closed     bool
	loadCancel context.CancelFunc
	loadDone   chan struct{} // closed when the latest load finishes

	wg sync.WaitGroup
}

func NewOrchestrator(ownerID int64, reader Reader, source revenue.Source, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	store := NewStore(ownerID, opts.Now)

	var coordOpts []revenue.Option
	if opts.RevenueObserver != nil {
		coordOpts = append(coordOpts, revenue.WithObserver(opts.RevenueObserver))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		ownerID: ownerID,
		reader:  reader,
		store:   store,
		coord:   revenue.NewCoordinator(source, store, coordOpts...),
		opts:    opts,
		logger:  log.With().Str("component", "dashboard").Int64("owner_id", ownerID).Logger(),
		ctx:     ctx,
		cancel:  cancel,
		query:   opts.InitialPeriod,
	}
}

func (o *Orchestrator) OwnerID() int64 { return o.ownerID }

// Snapshot returns the current view-model.
func (o *Orchestrator) Snapshot() View {
	return o.store.Snapshot()
}

// Period returns the currently selected revenue period.
func (o *Orchestrator) Period() period.Query {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.query
}

// ReferenceNow is the current time on the facility calendar.
func (o *Orchestrator) ReferenceNow() time.Time {
	return o.opts.Now().In(o.opts.Location)
}

// Load performs the initial load once. Later calls wait for the most recent
// load to finish instead of issuing new reads.
func (o *Orchestrator) Load(ctx context.Context) error {
	o.mu.Lock()
	if o.loaded {
		done, closed := o.loadDone, o.closed
		o.mu.Unlock()
		if closed {
			return ErrClosed
		}
		return waitLoad(ctx, done)
	}
	o.loaded = true
	o.mu.Unlock()
	return o.run(ctx, false)
}

// Refresh discards the current view-model and re-issues every read.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	o.mu.Lock()
	o.loaded = true
	o.mu.Unlock()
	return o.run(ctx, true)
}

// ChangePeriod re-runs only the revenue read for q.
func (o *Orchestrator) ChangePeriod(ctx context.Context, q period.Query) (revenue.Outcome, error) {
	q = q.Normalize()
	q.ReferenceNow = o.ReferenceNow()
	if err := q.Validate(); err != nil {
		return revenue.Outcome{}, err
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return revenue.Outcome{}, ErrClosed
	}
	o.query = period.Query{Type: q.Type, WeekCount: q.WeekCount}
	o.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(o.ctx, o.opts.LoadTimeout)
	defer cancel()

	done := make(chan revenue.Outcome, 1)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		done <- o.coord.Fetch(fetchCtx, q)
	}()

	select {
	case out := <-done:
		return out, nil
	case <-ctx.Done():
		return revenue.Outcome{}, ctx.Err()
	}
}

// Close tears the dashboard down. In-flight reads are cancelled and any
// response that still arrives is dropped.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.coord.Close()
	o.store.Close()
	o.cancel()
	o.logger.Debug().Msg("Dashboard closed")
}

// Wait blocks until background reads have finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
	o.coord.Wait()
}

func (o *Orchestrator) run(ctx context.Context, reset bool) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.loadCancel != nil {
		o.loadCancel()
	}
	loadCtx, cancel := context.WithTimeout(o.ctx, o.opts.LoadTimeout)
	o.loadCancel = cancel
	gen := o.store.BeginLoad(reset)
	q := o.query
	done := make(chan struct{})
	o.loadDone = done
	o.mu.Unlock()

	q.ReferenceNow = o.ReferenceNow()
	o.logger.Debug().
		Uint64("generation", gen).
		Bool("reset", reset).
		Str("period_type", q.Type.String()).
		Msg("Loading dashboard")

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer close(done)
		defer cancel()

		var g errgroup.Group
		g.Go(func() error {
			return loadSlice(loadCtx, o, gen, "stats", func(v *View) *Slice[Stats] { return &v.Stats }, o.reader.Stats)
		})
		g.Go(func() error {
			return loadSlice(loadCtx, o, gen, "top_fields", func(v *View) *Slice[[]TopField] { return &v.TopFields }, func(ctx context.Context) ([]TopField, error) {
				return o.reader.TopFields(ctx, o.opts.TopFieldsLimit)
			})
		})
		g.Go(func() error {
			return loadSlice(loadCtx, o, gen, "upcoming_bookings", func(v *View) *Slice[[]booking.Booking] { return &v.Upcoming }, func(ctx context.Context) ([]booking.Booking, error) {
				return o.reader.UpcomingBookings(ctx, o.opts.UpcomingLimit)
			})
		})
		g.Go(func() error {
			return loadSlice(loadCtx, o, gen, "peak_hours", func(v *View) *Slice[[]PeakHour] { return &v.PeakHours }, o.reader.PeakHours)
		})
		g.Go(func() error {
			return loadSlice(loadCtx, o, gen, "recent_bookings", func(v *View) *Slice[[]booking.Booking] { return &v.Recent }, func(ctx context.Context) ([]booking.Booking, error) {
				return o.reader.RecentBookings(ctx, o.opts.RecentLimit)
			})
		})
		g.Go(func() error {
			return loadSlice(loadCtx, o, gen, "complexes", func(v *View) *Slice[[]Complex] { return &v.Complexes }, o.reader.Complexes)
		})
		g.Go(func() error {
			o.coord.Fetch(loadCtx, q)
			return nil
		})
		_ = g.Wait()
	}()

	return waitLoad(ctx, done)
}

func waitLoad(ctx context.Context, done <-chan struct{}) error {
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// loadSlice fills one slice. A failed or malformed read only marks its own
// slice as failed, so it always returns nil to keep siblings running.
func loadSlice[T any](ctx context.Context, o *Orchestrator, gen uint64, name string, pick func(*View) *Slice[T], fetch func(context.Context) (T, error)) (err error) {
	logger := o.logger.With().Str("slice", name).Uint64("generation", gen).Logger()
	defer func() {
		if r := recover(); r != nil {
			failure := fmt.Errorf("%w: %s: %v", ErrMalformedSlice, name, r)
			logger.Error().Interface("panic", r).Msg("Dashboard slice read panicked")
			failSlice(o.store, gen, pick, failure)
			err = nil
		}
	}()

	data, fetchErr := fetch(ctx)
	if fetchErr != nil {
		if failSlice(o.store, gen, pick, fetchErr) {
			logger.Warn().Err(fetchErr).Msg("Dashboard slice read failed")
		}
		return nil
	}
	if !setSlice(o.store, gen, pick, data) {
		logger.Debug().Msg("Dashboard slice result discarded")
	}
	return nil
}
