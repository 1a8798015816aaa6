package limiter

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	fails        int
	lastFailure  time.Time
	blockedUntil time.Time
}

// Memory is an in-process limiter for single-node deployments.
type Memory struct {
	mu       sync.Mutex
	entries  map[string]*entry
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time
	swept    time.Time
}

// NewMemory constructs an in-process limiter.
func NewMemory(window time.Duration, maxFails int, blockFor time.Duration) *Memory {
	return &Memory{
		entries:  make(map[string]*entry),
		window:   window,
		maxFails: maxFails,
		blockFor: blockFor,
		now:      time.Now,
	}
}

func key(actor string, ipHash []byte) string { return actor + "\x00" + string(ipHash) }

// stale reports whether the entry neither blocks nor counts toward a block at now.
func (m *Memory) stale(e *entry, now time.Time) bool {
	return !now.Before(e.blockedUntil) && now.Sub(e.lastFailure) > m.window
}

// sweep drops stale entries at most once per window. Caller holds mu.
func (m *Memory) sweep(now time.Time) {
	if now.Sub(m.swept) < m.window {
		return
	}
	for k, e := range m.entries {
		if m.stale(e, now) {
			delete(m.entries, k)
		}
	}
	m.swept = now
}

func (m *Memory) Allow(_ context.Context, actor string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	k := key(actor, ipHash)
	e, ok := m.entries[k]
	if !ok {
		return true, 0, nil
	}
	if m.stale(e, now) {
		delete(m.entries, k)
		return true, 0, nil
	}
	if wait := e.blockedUntil.Sub(now); wait > 0 {
		return false, wait, nil
	}
	return true, 0, nil
}

func (m *Memory) Success(_ context.Context, actor string, ipHash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key(actor, ipHash))
	return nil
}

func (m *Memory) Failure(_ context.Context, actor string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.sweep(now)
	k := key(actor, ipHash)
	e, ok := m.entries[k]
	if !ok || now.Sub(e.lastFailure) > m.window {
		e = &entry{}
		m.entries[k] = e
	}
	e.fails++
	e.lastFailure = now
	if e.fails >= m.maxFails {
		e.blockedUntil = now.Add(m.blockFor)
		return true, m.blockFor, nil
	}
	return false, 0, nil
}
