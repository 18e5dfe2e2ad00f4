package hangmen

// PlayerView is one player as seen by a particular viewer.
type PlayerView struct {
	Pin   string `json:"pin"`
	Name  string `json:"name"`
	Word  string `json:"word,omitempty"` // only ever set for the viewer's own record
	Mask  string `json:"mask,omitempty"` // guessed letters of the word, "_" for the rest
	Ready bool   `json:"ready"`
	Alive bool   `json:"alive"`
}

// Snapshot is the public projection of a session, safe to send to viewer.
type Snapshot struct {
	Pin         string                `json:"pin"`
	Players     map[string]PlayerView `json:"players"`
	Joined      []string              `json:"joined"`
	TurnOrder   []string              `json:"turn_order"`
	CurrentTurn string                `json:"current_turn,omitempty"`
	Guessed     []string              `json:"guessed"`
	Lobby       bool                  `json:"lobby"`
}

// Snapshot projects the game for viewer. Secret words are redacted for
// everyone except their owner; pass an empty viewer to redact all of them.
func (g *Game) Snapshot(viewer string) Snapshot {
	players := make(map[string]PlayerView, len(g.players))
	for pin, p := range g.players {
		view := PlayerView{
			Pin:   p.Pin,
			Name:  p.Name,
			Ready: p.Ready,
			Alive: p.Alive,
		}
		if p.Ready {
			view.Mask = g.alphabet.Mask(p.Word)
		}
		if viewer != "" && pin == viewer {
			view.Word = p.Word
		}
		players[pin] = view
	}

	current, _ := g.CurrentPlayerPin()

	joined := make([]string, len(g.joined))
	copy(joined, g.joined)

	turnOrder := make([]string, len(g.turnOrder))
	copy(turnOrder, g.turnOrder)

	return Snapshot{
		Pin:         g.pin,
		Players:     players,
		Joined:      joined,
		TurnOrder:   turnOrder,
		CurrentTurn: current,
		Guessed:     g.alphabet.Guessed(),
		Lobby:       g.lobby,
	}
}
