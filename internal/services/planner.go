package services

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	perrors "github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
	"github.com/google/uuid"

	"github.com/dpup/saferoute/server/internal/config"
	"github.com/dpup/saferoute/server/internal/lib/routing"
)

// ErrSessionNotFound is returned for an unknown or expired session id
var ErrSessionNotFound = errors.New("session not found")

// Planner owns the live route search sessions
type Planner struct {
	ttl      time.Duration
	template SessionOptions

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewPlanner creates a session registry. opts supplies the collaborators
// every session shares; policy settings come from cfg.
func NewPlanner(ctx context.Context, cfg config.PlannerConfig, opts SessionOptions) *Planner {
	opts.Debounce = cfg.Debounce
	opts.ProviderTimeout = cfg.ProviderTimeout
	opts.RefetchOnHazardUpdate = cfg.RefetchOnHazardUpdate
	opts.PreserveManualSelection = cfg.PreserveManualSelection
	if opts.Scorer == nil {
		opts.Scorer = routing.NewScorer(cfg.CorridorKm)
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	ctx, cancel := context.WithCancel(ctx)
	return &Planner{
		ttl:      cfg.SessionTTL,
		template: opts,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new idle session
func (p *Planner) Create(ctx context.Context) *Session {
	s := NewSession(p.ctx, uuid.NewString(), p.template)

	p.mu.Lock()
	p.sessions[s.ID()] = s
	n := len(p.sessions)
	p.mu.Unlock()

	p.template.Metrics.SetActiveSessions(n)
	logging.Infow(ctx, "Planner: session created", "session", s.ID())
	return s
}

// Get looks up a session
func (p *Planner) Get(id string) (*Session, error) {
	p.mu.RLock()
	s, ok := p.sessions[id]
	p.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete shuts a session down and forgets it
func (p *Planner) Delete(ctx context.Context, id string) error {
	p.mu.Lock()
	s, ok := p.sessions[id]
	delete(p.sessions, id)
	n := len(p.sessions)
	p.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Shutdown()
	p.template.Metrics.SetActiveSessions(n)
	logging.Infow(ctx, "Planner: session deleted", "session", id)
	return nil
}

// Len returns the number of live sessions
func (p *Planner) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}

// Sweep removes sessions idle for longer than the TTL and returns how many
// were removed
func (p *Planner) Sweep(ctx context.Context) int {
	if p.ttl <= 0 {
		return 0
	}
	cutoff := p.template.Clock().Add(-p.ttl)

	var expired []*Session
	p.mu.Lock()
	for id, s := range p.sessions {
		if s.LastUsed().Before(cutoff) {
			expired = append(expired, s)
			delete(p.sessions, id)
		}
	}
	n := len(p.sessions)
	p.mu.Unlock()

	for _, s := range expired {
		s.Shutdown()
	}
	if len(expired) > 0 {
		p.template.Metrics.SetActiveSessions(n)
		logging.Infow(ctx, "Planner: expired idle sessions", "count", len(expired), "remaining", n)
	}
	return len(expired)
}

// StartSweeper expires idle sessions every interval until ctx is done
func (p *Planner) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				err, _ := perrors.ParseStack(debug.Stack())
				logging.Errorw(ctx, "Session sweeper panic recovered", "error", r, "error.stack_trace", err.MinimalStack(3, 5))
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-p.ctx.Done():
				return
			case <-ticker.C:
				p.Sweep(ctx)
			}
		}
	}()
}

// Shutdown closes every session
func (p *Planner) Shutdown() {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[string]*Session)
	p.mu.Unlock()

	for _, s := range sessions {
		s.Shutdown()
	}
	p.cancel()
	p.template.Metrics.SetActiveSessions(0)
}
