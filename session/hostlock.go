package session

import (
	"context"
	"sync"
)

// hostLock serialises work per key (a request host).  Each key gets its own
// one-slot channel so contention on one host never blocks another, and an
// entry is dropped once nobody holds or waits on it.
type hostLock struct {
	mu    sync.Mutex
	slots map[string]*hostSlot
}

type hostSlot struct {
	ch   chan struct{}
	refs int
}

// lock blocks until key is free or ctx ends.  On success the returned func
// releases key and must be called exactly once.
func (l *hostLock) lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	if l.slots == nil {
		l.slots = make(map[string]*hostSlot)
	}
	s, ok := l.slots[key]
	if !ok {
		s = &hostSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return func() {
			<-s.ch
			l.release(key, s)
		}, nil
	case <-ctx.Done():
		l.release(key, s)
		return nil, ctx.Err()
	}
}

func (l *hostLock) release(key string, s *hostSlot) {
	l.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
	l.mu.Unlock()
}

// held reports whether key is currently locked.  Advisory only.
func (l *hostLock) held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	return ok && len(s.ch) == 1
}
