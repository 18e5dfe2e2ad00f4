// Package hangmen implements the server-side rules of Hangmen, a multiplayer
// hangman variant where every player is also a word to be guessed.
//
// Each player submits a secret word in the lobby. Once at least two players
// are present and all of them are ready, the round starts with a shuffled
// turn order. On their turn a player either guesses a letter, eliminating
// everyone whose word becomes fully revealed, or guesses another player's
// word outright, eliminating the target on a hit and themselves on a miss.
// The round is over once at most the turn holder is left standing.
//
// A Game is a plain state machine and is not safe for concurrent use; every
// Game is owned by a Session, which serializes access through its gate.
package hangmen

import "slices"

type Game struct {
	pin       string
	players   map[string]*Player
	joined    []string // player pins in join order
	turnOrder []string // head holds the turn
	alphabet  Alphabet
	lobby     bool

	intn func(n int) int
}

func newGame(pin string, intn func(n int) int) *Game {
	return &Game{
		pin:     pin,
		players: make(map[string]*Player),
		lobby:   true,
		intn:    intn,
	}
}

func (g *Game) Pin() string {
	return g.pin
}

func (g *Game) IsLobby() bool {
	return g.lobby
}

// Player returns a copy of the player record for pin.
func (g *Game) Player(pin string) (Player, bool) {
	p, ok := g.players[pin]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

func (g *Game) PlayerCount() int {
	return len(g.players)
}

// TurnOrder returns a copy of the current rotation, turn holder first.
func (g *Game) TurnOrder() []string {
	return slices.Clone(g.turnOrder)
}

func (g *Game) WasGuessed(letter rune) bool {
	return g.alphabet.WasGuessed(letter)
}

// AddPlayer registers a new player in either phase. Players joining a round
// in progress take no turns until they submit a word.
func (g *Game) AddPlayer(pin, name string) {
	if _, ok := g.players[pin]; ok {
		return
	}
	g.players[pin] = newPlayer(pin, name)
	g.joined = append(g.joined, pin)
}

// SetPlayerWord stores pin's secret word and marks them ready.
//
// In the lobby this starts the round once there are at least two players
// and every one of them is ready. During a round a late joiner is appended
// to the back of the turn order; players who are already ready, including
// eliminated ones, are left untouched so nobody re-enters the rotation.
func (g *Game) SetPlayerWord(pin, word string) {
	p, ok := g.players[pin]
	if !ok {
		return
	}

	if !g.lobby {
		if p.Ready {
			return
		}
		p.SetWordAndReady(word)
		g.turnOrder = append(g.turnOrder, pin)
		return
	}

	p.SetWordAndReady(word)

	if len(g.players) < 2 {
		return
	}
	for _, other := range g.players {
		if !other.Ready {
			return
		}
	}

	g.startRound()
}

// startRound shuffles every player into the turn order (Fisher-Yates) and
// leaves the lobby.
func (g *Game) startRound() {
	order := slices.Clone(g.joined)
	for i := len(order) - 1; i > 0; i-- {
		j := g.intn(i + 1)
		order[i], order[j] = order[j], order[i]
	}

	g.turnOrder = order
	g.lobby = false
}

// GuessLetter reveals letter for everyone. Every ready, alive player whose
// word is now fully spelled is eliminated, evaluated in one pass against the
// updated alphabet. The turn then passes on unless the guesser knocked
// themselves out or the round is over.
func (g *Game) GuessLetter(letter rune) {
	if g.lobby || g.CheckGameOver() {
		return
	}
	if _, ok := letterIndex(letter); !ok || g.alphabet.WasGuessed(letter) {
		return
	}

	guesser, _ := g.CurrentPlayerPin()

	g.alphabet.Guess(letter)

	var spelled []string
	for _, pin := range g.joined {
		p := g.players[pin]
		if p.Ready && p.Alive && g.alphabet.CanSpell(p.Word) {
			spelled = append(spelled, pin)
		}
	}
	for _, pin := range spelled {
		g.killPlayer(pin)
	}

	g.endTurn(guesser)
}

// GuessWord has the turn holder guess targetPin's word. A correct guess
// eliminates the target, a wrong one the guesser. Targeting yourself or a
// player who is already out is ignored.
func (g *Game) GuessWord(targetPin, word string) {
	if g.lobby || g.CheckGameOver() {
		return
	}

	guesser, ok := g.CurrentPlayerPin()
	if !ok {
		return
	}

	target, ok := g.players[targetPin]
	if !ok || !target.Alive || targetPin == guesser {
		return
	}

	loser := guesser
	if word == target.Word {
		loser = targetPin
	}
	if g.players[loser].Ready {
		g.killPlayer(loser)
	}

	g.endTurn(guesser)
}

// RemovePlayer handles a player leaving. Players who never took part in a
// round are forgotten entirely; everyone else is eliminated and kept for the
// final standings.
func (g *Game) RemovePlayer(pin string) {
	p, ok := g.players[pin]
	if !ok {
		return
	}

	if g.lobby || !p.Ready {
		delete(g.players, pin)
		g.joined = slices.DeleteFunc(g.joined, func(s string) bool { return s == pin })
		return
	}

	g.killPlayer(pin)
}

// CheckGameOver reports whether at most the turn holder is still alive.
// It is always false in the lobby, and a round whose turn order has emptied
// out is over with no winner.
func (g *Game) CheckGameOver() bool {
	if g.lobby {
		return false
	}

	current, ok := g.CurrentPlayerPin()
	if !ok {
		return true
	}

	for pin, p := range g.players {
		if pin != current && p.Alive {
			return false
		}
	}
	return true
}

// Winner returns the last player standing once the round is over.
func (g *Game) Winner() (string, bool) {
	if !g.CheckGameOver() {
		return "", false
	}
	return g.CurrentPlayerPin()
}

// Reset discards every player and returns the session to an empty lobby.
func (g *Game) Reset() {
	g.players = make(map[string]*Player)
	g.joined = nil
	g.turnOrder = nil
	g.alphabet = Alphabet{}
	g.lobby = true
}

// CurrentPlayerPin returns the pin holding the turn, or false when the turn
// order is empty.
func (g *Game) CurrentPlayerPin() (string, bool) {
	if len(g.turnOrder) == 0 {
		return "", false
	}
	return g.turnOrder[0], true
}

// IsTurn reports whether pin may act right now.
func (g *Game) IsTurn(pin string) bool {
	if g.lobby {
		return false
	}
	current, ok := g.CurrentPlayerPin()
	return ok && current == pin
}

func (g *Game) endTurn(guesser string) {
	if g.CheckGameOver() {
		return
	}
	if p, ok := g.players[guesser]; ok && p.Alive {
		g.progressTurn()
	}
}

func (g *Game) killPlayer(pin string) {
	p, ok := g.players[pin]
	if !ok {
		return
	}
	p.Kill()

	if i := slices.Index(g.turnOrder, pin); i >= 0 {
		g.turnOrder = slices.Delete(g.turnOrder, i, i+1)
	}
}

// progressTurn moves the turn holder to the back of the rotation.
func (g *Game) progressTurn() {
	if len(g.turnOrder) < 2 {
		return
	}
	head := g.turnOrder[0]
	g.turnOrder = append(g.turnOrder[1:], head)
}
