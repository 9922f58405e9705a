// Package session keeps the open checkout sessions of the till, one per
// cashier terminal.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/minimercado-till/internal/domain/cart"
	"github.com/xenking/minimercado-till/internal/domain/checkout"
)

// ErrNotFound is returned for unknown or evicted session ids.
var ErrNotFound = errors.New("session not found")

// Session is one terminal's checkout: its own cart and payment state.
type Session struct {
	ID          string
	CreatedAt   time.Time
	Coordinator *checkout.Coordinator

	lastUsed time.Time
}

// Config controls how sessions are built and expired.
type Config struct {
	// IdleTimeout evicts sessions not used for this long. Zero disables
	// eviction.
	IdleTimeout time.Duration
	// NewIDs returns the line id generator for a new session. Nil uses a
	// per-session cart.Sequence.
	NewIDs func() cart.IDGenerator
}

// Store is a concurrency-safe registry of sessions. Sessions share the
// submitter and catalog refresher but nothing else.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session

	cfg       Config
	submitter checkout.Submitter
	refresher checkout.Refresher
	now       func() time.Time
}

// NewStore creates an empty Store.
func NewStore(cfg Config, submitter checkout.Submitter, refresher checkout.Refresher) *Store {
	return &Store{
		sessions:  make(map[string]*Session),
		cfg:       cfg,
		submitter: submitter,
		refresher: refresher,
		now:       time.Now,
	}
}

// Create opens a new session with an empty cart.
func (s *Store) Create() *Session {
	var ids cart.IDGenerator
	if s.cfg.NewIDs != nil {
		ids = s.cfg.NewIDs()
	}

	now := s.now()
	sess := &Session{
		ID:          uuid.NewString(),
		CreatedAt:   now,
		Coordinator: checkout.NewCoordinator(cart.NewEngine(ids), s.submitter, s.refresher),
		lastUsed:    now,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

// Get returns the session and marks it as used.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	sess.lastUsed = s.now()
	return sess, nil
}

// Delete closes a session. A session with a sale in flight cannot be closed;
// commands on a handle obtained before Delete fail with checkout.ErrClosed.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if err := sess.Coordinator.Close(); err != nil {
		return err
	}
	delete(s.sessions, id)
	return nil
}

// Len returns the number of open sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// EvictIdle removes sessions idle for longer than the configured timeout and
// returns how many were removed. Sessions with a sale in flight are kept.
func (s *Store) EvictIdle() int {
	if s.cfg.IdleTimeout <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.cfg.IdleTimeout)
	evicted := 0
	for id, sess := range s.sessions {
		if !sess.lastUsed.Before(cutoff) {
			continue
		}
		if sess.Coordinator.Close() != nil {
			continue
		}
		delete(s.sessions, id)
		evicted++
	}
	return evicted
}

// StartCleanup runs EvictIdle periodically until ctx is cancelled.
func (s *Store) StartCleanup(ctx context.Context) {
	if s.cfg.IdleTimeout <= 0 {
		return
	}
	interval := max(s.cfg.IdleTimeout/2, time.Second)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		lg := zctx.From(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.EvictIdle(); n > 0 {
					lg.Info("Evicted idle sessions",
						zap.Int("evicted", n),
						zap.Int("open", s.Len()),
					)
				}
			}
		}
	}()
}
