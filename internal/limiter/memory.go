package limiter

import (
	"context"
	"sync"
	"time"
)

type attempts struct {
	fails        int
	blockedUntil time.Time
	updatedAt    time.Time
}

// Memory is a process-local limiter for single-node and in-memory deployments.
type Memory struct {
	mu     sync.Mutex
	policy Policy
	now    func() time.Time
	state  map[string]*attempts
}

// NewMemory constructs an in-process limiter.
func NewMemory(p Policy) *Memory {
	return &Memory{policy: p, now: time.Now, state: make(map[string]*attempts)}
}

func key(username string, ipHash []byte) string { return username + "\x00" + string(ipHash) }

// Allow reports whether login is currently allowed and a retry-after duration.
func (m *Memory) Allow(_ context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.state[key(username, ipHash)]
	if !ok {
		return true, 0, nil
	}
	if wait := a.blockedUntil.Sub(m.now()); wait > 0 {
		return false, wait, nil
	}
	return true, 0, nil
}

// Success forgets all failures for (username, ip).
func (m *Memory) Success(_ context.Context, username string, ipHash []byte) error {
	m.mu.Lock()
	delete(m.state, key(username, ipHash))
	m.mu.Unlock()
	return nil
}

// Failure records a failed attempt and blocks once the policy threshold is hit.
func (m *Memory) Failure(_ context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	k := key(username, ipHash)
	a, ok := m.state[k]
	if !ok || now.Sub(a.updatedAt) > m.policy.Window {
		a = &attempts{}
		m.state[k] = a
	}
	a.fails++
	a.updatedAt = now
	if a.fails < m.policy.MaxFails {
		return false, 0, nil
	}
	a.blockedUntil = now.Add(m.policy.BlockFor)
	return true, m.policy.BlockFor, nil
}
