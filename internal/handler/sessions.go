package handler

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/checkout"
)

type sessionEntry struct {
	mu       sync.Mutex
	flow     *checkout.Flow
	owner    string
	lastUsed time.Time
	removed  bool
}

// Sessions keeps checkout flows in memory. Calls on one session are
// serialised; sessions idle longer than the configured timeout are dropped
// by Sweep.
type Sessions struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry
	idle    time.Duration
	now     func() time.Time
}

// NewSessions returns an empty registry expiring sessions after idle.
func NewSessions(idle time.Duration) *Sessions {
	return &Sessions{
		entries: make(map[string]*sessionEntry),
		idle:    idle,
		now:     time.Now,
	}
}

// Add registers f under its session ID.
func (s *Sessions) Add(f *checkout.Flow) {
	sess := f.Session()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sess.ID] = &sessionEntry{
		flow:     f,
		owner:    sess.Owner.Key(),
		lastUsed: s.now(),
	}
}

// With runs fn with exclusive access to the session. A session owned by
// someone else is reported as not found.
func (s *Sessions) With(id string, owner cart.Owner, fn func(*checkout.Flow) error) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok || e.owner != owner.Key() {
		return errSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return errSessionNotFound
	}
	e.lastUsed = s.now()
	return fn(e.flow)
}

// Remove drops the session if owner holds it.
func (s *Sessions) Remove(id string, owner cart.Owner) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || e.owner != owner.Key() {
		s.mu.Unlock()
		return errSessionNotFound
	}
	delete(s.entries, id)
	s.mu.Unlock()

	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
	return nil
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep drops sessions idle since before now minus the idle timeout and
// returns how many were removed. Sessions in use are skipped.
func (s *Sessions) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for id, e := range s.entries {
		if !e.mu.TryLock() {
			continue
		}
		if now.Sub(e.lastUsed) > s.idle {
			e.removed = true
			delete(s.entries, id)
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	lg := zctx.From(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.Sweep(now); n > 0 {
				lg.Debug("Expired checkout sessions", zap.Int("count", n))
			}
		}
	}
}
