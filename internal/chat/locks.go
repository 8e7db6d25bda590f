package chat

import (
	"sync"
	"time"
)

// lockManager serializes turns per session: two concurrent sends against the
// same session run one after the other instead of racing on the same history
// snapshot. Different sessions run in parallel. The lock is in-process only;
// the store never holds a transaction across the provider call.
type lockManager struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu       sync.Mutex
	lastUsed time.Time
}

func newLockManager() *lockManager {
	return &lockManager{locks: make(map[string]*sessionLock)}
}

// withLock executes fn while holding the per-session mutex.
func (m *lockManager) withLock(sessionID string, fn func() error) error {
	m.mu.Lock()
	sl, ok := m.locks[sessionID]
	if !ok {
		sl = &sessionLock{}
		m.locks[sessionID] = sl
	}
	m.mu.Unlock()

	sl.mu.Lock()
	defer sl.mu.Unlock()

	sl.lastUsed = time.Now()
	return fn()
}

// cleanup removes locks not used within maxAge to prevent memory leaks.
// Locks currently held or waited on are skipped: deleting one would let the
// next caller mint a second lock for the same session and run concurrently
// with the blocked turn.
func (m *lockManager) cleanup(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for id, sl := range m.locks {
		if now.Sub(sl.lastUsed) <= maxAge {
			continue
		}
		if !sl.mu.TryLock() {
			continue
		}
		sl.mu.Unlock()
		delete(m.locks, id)
	}
}
