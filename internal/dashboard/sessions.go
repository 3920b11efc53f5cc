package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Factory builds a dashboard for one owner.
type Factory func(ownerID int64) *Orchestrator

type session struct {
	orch       *Orchestrator
	lastAccess time.Time
}

// Sessions keeps the live dashboards keyed by owner.
type Sessions struct {
	factory Factory
	now     func() time.Time

	mu       sync.Mutex
	sessions map[int64]*session
}

func NewSessions(factory Factory, now func() time.Time) *Sessions {
	if now == nil {
		now = time.Now
	}
	return &Sessions{
		factory:  factory,
		now:      now,
		sessions: make(map[int64]*session),
	}
}

// GetOrCreate returns the owner's dashboard, creating it when absent.
// created reports whether the caller should perform the initial load.
func (s *Sessions) GetOrCreate(ownerID int64) (orch *Orchestrator, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.sessions[ownerID]; ok {
		entry.lastAccess = s.now()
		return entry.orch, false
	}
	orch = s.factory(ownerID)
	s.sessions[ownerID] = &session{orch: orch, lastAccess: s.now()}
	log.Debug().Int64("owner_id", ownerID).Msg("Dashboard session created")
	return orch, true
}

func (s *Sessions) Get(ownerID int64) (*Orchestrator, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[ownerID]
	if !ok {
		return nil, false
	}
	entry.lastAccess = s.now()
	return entry.orch, true
}

// Close tears down the owner's dashboard, if any.
func (s *Sessions) Close(ownerID int64) bool {
	s.mu.Lock()
	entry, ok := s.sessions[ownerID]
	delete(s.sessions, ownerID)
	s.mu.Unlock()
	if !ok {
		return false
	}
	entry.orch.Close()
	return true
}

// CloseIdle tears down dashboards not accessed within maxIdle.
func (s *Sessions) CloseIdle(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)

	s.mu.Lock()
	var idle []*Orchestrator
	for ownerID, entry := range s.sessions {
		if entry.lastAccess.Before(cutoff) {
			idle = append(idle, entry.orch)
			delete(s.sessions, ownerID)
		}
	}
	s.mu.Unlock()

	for _, orch := range idle {
		orch.Close()
	}
	return len(idle)
}

// RefreshAll refreshes every live dashboard, one after another.
func (s *Sessions) RefreshAll(ctx context.Context) int {
	s.mu.Lock()
	orchs := make([]*Orchestrator, 0, len(s.sessions))
	for _, entry := range s.sessions {
		orchs = append(orchs, entry.orch)
	}
	s.mu.Unlock()

	refreshed := 0
	for _, orch := range orchs {
		if err := orch.Refresh(ctx); err != nil {
			log.Ctx(ctx).Warn().Err(err).Int64("owner_id", orch.OwnerID()).Msg("Dashboard refresh skipped")
			continue
		}
		refreshed++
	}
	return refreshed
}

// CloseAll tears down every dashboard and waits for their reads to stop.
func (s *Sessions) CloseAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[int64]*session)
	s.mu.Unlock()

	for _, entry := range all {
		entry.orch.Close()
	}
	for _, entry := range all {
		entry.orch.Wait()
	}
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
