package hangmen

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Manager holds every live session keyed by pin. It is safe for concurrent
// use; lookups run in parallel with each other and with session operations.
//
// Lock order is manager, then session. Nothing holding a session's gate may
// call back into the Manager.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	newPin func() string
	intn   func(n int) int
	now    func() time.Time
	grace  time.Duration
	logf   func(format string, args ...any)

	onCollect func(pin string)
}

type Option func(*Manager)

// WithPinGenerator replaces NewPin as the source of session pins.
func WithPinGenerator(gen func() string) Option {
	return func(m *Manager) {
		m.newPin = gen
	}
}

// WithShuffleSource shuffles turn orders from r instead of the global
// generator. Access to r is serialized across sessions.
func WithShuffleSource(r *rand.Rand) Option {
	return func(m *Manager) {
		var mu sync.Mutex
		m.intn = func(n int) int {
			mu.Lock()
			defer mu.Unlock()

			return r.IntN(n)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithGrace keeps empty sessions younger than d out of garbage collection,
// so a session survives between being created and its first player joining.
func WithGrace(d time.Duration) Option {
	return func(m *Manager) {
		m.grace = d
	}
}

func WithLogf(logf func(format string, args ...any)) Option {
	return func(m *Manager) {
		m.logf = logf
	}
}

// WithOnCollect registers fn to be called with the pin of every collected
// session. fn runs with the manager locked and must not call back into it.
func WithOnCollect(fn func(pin string)) Option {
	return func(m *Manager) {
		m.onCollect = fn
	}
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		newPin:   NewPin,
		intn:     rand.IntN,
		now:      time.Now,
		logf:     func(string, ...any) {},

		onCollect: func(string) {},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateSession allocates a session in the lobby under a fresh pin and
// returns that pin. Pins colliding with a live session are regenerated.
func (m *Manager) CreateSession() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	pin := m.newPin()
	for {
		if _, exists := m.sessions[pin]; !exists {
			break
		}
		pin = m.newPin()
	}

	m.sessions[pin] = newSession(pin, m.intn, m.now())
	m.logf("GAMES: Created session %s", pin)

	return pin
}

func (m *Manager) GetSession(pin string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[pin]
	return s, ok
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.sessions)
}

// GarbageCollect removes every session with no players in a single pass and
// returns how many were removed. Sessions created within the grace period
// are skipped.
func (m *Manager) GarbageCollect() int {
	cutoff := m.now().Add(-m.grace)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for pin, s := range m.sessions {
		if m.grace > 0 && s.createdAt.After(cutoff) {
			continue
		}
		if s.PlayerCount() > 0 {
			continue
		}

		delete(m.sessions, pin)
		removed++
		m.onCollect(pin)
		m.logf("GAMES: Collected empty session %s", pin)
	}

	return removed
}

// Run collects empty sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.GarbageCollect()
		}
	}
}
