/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package hangmen

// Player is one participant in a session. Players are owned by their Game
// and only mutated while the owning session's gate is held.
type Player struct {
	Pin   string
	Name  string
	Word  string
	Ready bool
	Alive bool
}

func newPlayer(pin, name string) *Player {
	return &Player{
		Pin:   pin,
		Name:  name,
		Alive: true,
	}
}

// SetWordAndReady stores the player's secret word and marks them ready.
// A second call overwrites the word without any checks.
func (p *Player) SetWordAndReady(word string) {
	p.Word = word
	p.Ready = true
}

func (p *Player) Kill() {
	p.Alive = false
}
