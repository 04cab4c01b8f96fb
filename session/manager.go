package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/firasghr/GoChallengeEngine/config"
	"github.com/firasghr/GoChallengeEngine/proxy"
)

// SessionManager owns the sessions of an engine.
//
// A sync.RWMutex protects the sessions map.  Sessions are created in
// parallel, at most cfg.Concurrency at a time.
type SessionManager struct {
	sessions map[int]*Session
	mutex    sync.RWMutex
	config   *config.Config
	opts     Options
}

// NewSessionManager creates an empty SessionManager backed by cfg.
func NewSessionManager(cfg *config.Config, opts Options) *SessionManager {
	return &SessionManager{
		sessions: make(map[int]*Session),
		config:   cfg,
		opts:     opts,
	}
}

// CreateSessions creates count sessions, assigning each the next proxy from
// pm (direct connections when pm is nil or empty).  On the first failure the
// remaining creations are skipped and the error is returned; sessions
// already created stay registered.
func (sm *SessionManager) CreateSessions(ctx context.Context, count int, pm *proxy.Manager) error {
	if count < 1 {
		return fmt.Errorf("session manager: count must be at least 1, got %d", count)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(sm.config.Concurrency, 1))

	sm.mutex.RLock()
	base := len(sm.sessions)
	sm.mutex.RUnlock()

	for i := 0; i < count; i++ {
		id := base + i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p := ""
			if pm != nil {
				p = pm.Next()
			}
			s, err := NewSession(id, p, sm.config, sm.opts)
			if err != nil {
				return err
			}
			sm.mutex.Lock()
			sm.sessions[id] = s
			sm.mutex.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("session manager: %w", err)
	}
	return nil
}

// GetSession returns the session with the given id and true, or nil and false
// if no such session exists.
func (sm *SessionManager) GetSession(id int) (*Session, bool) {
	sm.mutex.RLock()
	s, ok := sm.sessions[id]
	sm.mutex.RUnlock()
	return s, ok
}

// Sessions returns the registered sessions ordered by id.
func (sm *SessionManager) Sessions() []*Session {
	sm.mutex.RLock()
	out := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, s)
	}
	sm.mutex.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StartAll transitions every idle session to "active".
func (sm *SessionManager) StartAll() {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	for _, s := range sm.sessions {
		s.mu.Lock()
		if s.State == StateIdle {
			s.State = StateActive
		}
		s.mu.Unlock()
	}
}

// StopAll closes and forgets every session.
func (sm *SessionManager) StopAll() {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	for id, s := range sm.sessions {
		s.Close()
		delete(sm.sessions, id)
	}
}

// Count returns the number of registered sessions.
func (sm *SessionManager) Count() int {
	sm.mutex.RLock()
	n := len(sm.sessions)
	sm.mutex.RUnlock()
	return n
}
