package hangmen

import (
	"sync"
	"time"
)

// Session is one live game behind its own gate. Every read or write of the
// underlying Game happens with the gate held, so callers on different
// connections observe operations one at a time and never half applied.
// Sessions do not share locks with each other.
type Session struct {
	mu        sync.Mutex
	game      *Game
	createdAt time.Time
}

func newSession(pin string, intn func(n int) int, now time.Time) *Session {
	return &Session{
		game:      newGame(pin, intn),
		createdAt: now,
	}
}

// Pin is fixed at creation and may be read without the gate.
func (s *Session) Pin() string {
	return s.game.pin
}

// Do runs fn with the session's gate held. The gate is released on every
// exit path, including panics inside fn. fn must not block on another
// session's gate.
func (s *Session) Do(fn func(g *Game)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(s.game)
}

// The methods below each hold the gate for exactly one operation. Callers
// that must follow an operation with more work under the same gate, such as
// broadcasting the result, use Do instead.

func (s *Session) AddPlayer(pin, name string) {
	s.Do(func(g *Game) { g.AddPlayer(pin, name) })
}

func (s *Session) SetPlayerWord(pin, word string) {
	s.Do(func(g *Game) { g.SetPlayerWord(pin, word) })
}

// GuessLetter applies actor's letter guess if actor holds the turn, and
// reports whether they did.
func (s *Session) GuessLetter(actor string, letter rune) bool {
	var ok bool
	s.Do(func(g *Game) {
		if !g.IsTurn(actor) {
			return
		}
		g.GuessLetter(letter)
		ok = true
	})
	return ok
}

// GuessWord applies actor's guess of target's word if actor holds the turn,
// and reports whether they did.
func (s *Session) GuessWord(actor, target, word string) bool {
	var ok bool
	s.Do(func(g *Game) {
		if !g.IsTurn(actor) {
			return
		}
		g.GuessWord(target, word)
		ok = true
	})
	return ok
}

func (s *Session) RemovePlayer(pin string) {
	s.Do(func(g *Game) { g.RemovePlayer(pin) })
}

func (s *Session) CheckGameOver() bool {
	var over bool
	s.Do(func(g *Game) { over = g.CheckGameOver() })
	return over
}

func (s *Session) Reset() {
	s.Do(func(g *Game) { g.Reset() })
}

func (s *Session) PlayerCount() int {
	var n int
	s.Do(func(g *Game) { n = g.PlayerCount() })
	return n
}

func (s *Session) Snapshot(viewer string) Snapshot {
	var snap Snapshot
	s.Do(func(g *Game) { snap = g.Snapshot(viewer) })
	return snap
}
