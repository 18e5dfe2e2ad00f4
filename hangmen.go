// Hangmen websocket transport
//
// Every connection is a player. A connection creates or joins one session at
// a time and then plays through it by sending JSON messages; after every
// change each member of the session receives their own view of the state.
//
// Features:
// - One websocket endpoint: /ws
// - Fresh random player ID (UUIDv4) per connection
// - Sessions identified by short random pins, created on request
// - Secret words are only ever sent to the player who chose them
// - Errors (unknown pin, invalid input) go only to the offending client
// - Guesses from players who do not hold the turn are dropped silently
// - At the end of a round everyone receives the final state, is removed from
//   the session, and the session returns to an empty lobby
// - Disconnecting counts as leaving the session
// - Empty sessions are collected periodically
// - Read-only JSON state and a QR code of the join link per session

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Seednode/hangmen/games/hangmen"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const maxMessageSize = 4096

// Messages coming from clients
type ClientMessage struct {
	Type   string `json:"type"`             // "create", "join", "set_word", "guess_letter", "guess_word", "leave"
	Pin    string `json:"pin,omitempty"`    // join
	Name   string `json:"name,omitempty"`   // create / join
	Word   string `json:"word,omitempty"`   // set_word / guess_word
	Letter string `json:"letter,omitempty"` // guess_letter
	Target string `json:"target,omitempty"` // guess_word
}

// WelcomeMessage tells a new connection which player ID it was given.
type WelcomeMessage struct {
	Type     string `json:"type"` // "welcome"
	PlayerID string `json:"player_id"`
}

// StateMessage carries the session as seen by the receiving player.
type StateMessage struct {
	Type  string           `json:"type"` // "state"
	State hangmen.Snapshot `json:"state"`
}

// RoundOverMessage is the last message a session sends before resetting.
type RoundOverMessage struct {
	Type       string           `json:"type"`                  // "round_over"
	Winner     string           `json:"winner,omitempty"`      // player ID, empty if nobody is left
	WinnerName string           `json:"winner_name,omitempty"` // display name of the winner
	State      hangmen.Snapshot `json:"state"`
}

// SimpleMessage is for notifications sent to a single client ("error").
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string

	mu     sync.Mutex
	closed bool
	hub    *Hub
}

// trySend queues msg without blocking. A client that cannot keep up has its
// send channel closed, which ends its write pump and, through the read pump,
// removes it from its session.
func (c *Client) trySend(msg any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- msg:
		return true
	default:
		c.closed = true
		close(c.send)
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) currentHub() *Hub {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.hub
}

func (c *Client) setHub(h *Hub) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hub = h
}

func (c *Client) sendError(err error) {
	c.trySend(SimpleMessage{
		Type:    "error",
		Message: err.Error(),
	})
}

// Hub is the broadcast group of one session. clients is guarded by the
// session's gate, so membership changes and broadcasts are ordered with the
// game operations they belong to.
type Hub struct {
	cfg     *Config
	session *hangmen.Session
	clients map[*Client]bool
}

// join adds c to the session as a player named name.
func (h *Hub) join(c *Client, name string) {
	h.session.Do(func(g *hangmen.Game) {
		g.AddPlayer(c.playerID, name)
		h.clients[c] = true
		c.setHub(h)

		logf(h.cfg, "GAMES: Player %q joined %s", name, g.Pin())

		h.broadcastLocked(g)
	})
}

// apply runs fn for a member of the session. If fn reports a change, the new
// state is broadcast and a finished round is wrapped up, all before the gate
// is released.
func (h *Hub) apply(c *Client, fn func(g *hangmen.Game) bool) {
	h.session.Do(func(g *hangmen.Game) {
		if !h.clients[c] {
			return
		}
		if !fn(g) {
			return
		}

		h.broadcastLocked(g)
		h.finishRoundLocked(g)
	})
}

// leave removes c from the session, eliminating them if they were playing.
func (h *Hub) leave(c *Client) {
	h.session.Do(func(g *hangmen.Game) {
		if !h.clients[c] {
			return
		}
		delete(h.clients, c)
		c.setHub(nil)

		g.RemovePlayer(c.playerID)
		logf(h.cfg, "GAMES: Player %s left %s", c.playerID, g.Pin())

		h.broadcastLocked(g)
		h.finishRoundLocked(g)
	})
}

func (h *Hub) broadcastLocked(g *hangmen.Game) {
	for client := range h.clients {
		client.trySend(StateMessage{
			Type:  "state",
			State: g.Snapshot(client.playerID),
		})
	}
}

// finishRoundLocked sends the final standings, empties the broadcast group
// and resets the session once the round is over.
func (h *Hub) finishRoundLocked(g *hangmen.Game) {
	if !g.CheckGameOver() {
		return
	}

	winner, _ := g.Winner()
	winnerName := ""
	if p, ok := g.Player(winner); ok {
		winnerName = p.Name
	}

	for client := range h.clients {
		client.trySend(RoundOverMessage{
			Type:       "round_over",
			Winner:     winner,
			WinnerName: winnerName,
			State:      g.Snapshot(client.playerID),
		})
		client.setHub(nil)
		delete(h.clients, client)
	}

	if winnerName != "" {
		logf(h.cfg, "GAMES: %q won a round in %s", winnerName, g.Pin())
	} else {
		logf(h.cfg, "GAMES: Round in %s ended with no winner", g.Pin())
	}

	g.Reset()
}

// GameServer owns the session manager and the broadcast group of every
// session that has seen a connection.
type GameServer struct {
	cfg *Config
	gm  *hangmen.Manager

	mu   sync.Mutex
	hubs map[string]*Hub
}

func newGameServer(cfg *Config, opts ...hangmen.Option) *GameServer {
	srv := &GameServer{
		cfg:  cfg,
		hubs: make(map[string]*Hub),
	}

	opts = append([]hangmen.Option{
		hangmen.WithGrace(cfg.gcInterval),
		hangmen.WithLogf(func(format string, args ...any) {
			logf(cfg, format, args...)
		}),
		hangmen.WithOnCollect(srv.dropHub),
	}, opts...)

	srv.gm = hangmen.NewManager(opts...)

	return srv
}

// hubFor returns the broadcast group for s. A pin reused by a newer session
// gets a fresh hub.
func (srv *GameServer) hubFor(s *hangmen.Session) *Hub {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if h, ok := srv.hubs[s.Pin()]; ok && h.session == s {
		return h
	}

	h := &Hub{
		cfg:     srv.cfg,
		session: s,
		clients: make(map[*Client]bool),
	}
	srv.hubs[s.Pin()] = h

	return h
}

func (srv *GameServer) dropHub(pin string) {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	delete(srv.hubs, pin)
}

func (srv *GameServer) handleMessage(c *Client, msg ClientMessage) {
	switch msg.Type {
	case "create":
		srv.handleCreate(c, msg)
	case "join":
		srv.handleJoin(c, msg)
	case "set_word":
		srv.handleSetWord(c, msg)
	case "guess_letter":
		srv.handleGuessLetter(c, msg)
	case "guess_word":
		srv.handleGuessWord(c, msg)
	case "leave":
		if h := c.currentHub(); h != nil {
			h.leave(c)
		}
	default:
		// ignore unknown types
	}
}

func (srv *GameServer) handleCreate(c *Client, msg ClientMessage) {
	if c.currentHub() != nil {
		c.sendError(ErrAlreadyInSession)
		return
	}

	name, err := validateName(msg.Name, srv.cfg.maxNameLength)
	if err != nil {
		c.sendError(err)
		return
	}

	pin := srv.gm.CreateSession()
	s, ok := srv.gm.GetSession(pin)
	if !ok {
		c.sendError(fmt.Errorf("%w: %s", ErrSessionNotFound, pin))
		return
	}

	srv.hubFor(s).join(c, name)
}

func (srv *GameServer) handleJoin(c *Client, msg ClientMessage) {
	if c.currentHub() != nil {
		c.sendError(ErrAlreadyInSession)
		return
	}

	name, err := validateName(msg.Name, srv.cfg.maxNameLength)
	if err != nil {
		c.sendError(err)
		return
	}

	pin := strings.ToLower(strings.TrimSpace(msg.Pin))
	s, ok := srv.gm.GetSession(pin)
	if !ok {
		c.sendError(fmt.Errorf("%w: %q", ErrSessionNotFound, pin))
		return
	}

	srv.hubFor(s).join(c, name)
}

func (srv *GameServer) handleSetWord(c *Client, msg ClientMessage) {
	h := c.currentHub()
	if h == nil {
		c.sendError(ErrNotInSession)
		return
	}

	word, err := validateWord(msg.Word, srv.cfg.maxWordLength)
	if err != nil {
		c.sendError(err)
		return
	}

	h.apply(c, func(g *hangmen.Game) bool {
		g.SetPlayerWord(c.playerID, word)
		return true
	})
}

func (srv *GameServer) handleGuessLetter(c *Client, msg ClientMessage) {
	h := c.currentHub()
	if h == nil {
		c.sendError(ErrNotInSession)
		return
	}

	letter, err := validateLetter(msg.Letter)
	if err != nil {
		c.sendError(err)
		return
	}

	h.apply(c, func(g *hangmen.Game) bool {
		if !g.IsTurn(c.playerID) {
			return false
		}

		logf(srv.cfg, "GAMES: Player %s guessed %q in %s", c.playerID, letter, g.Pin())
		g.GuessLetter(letter)
		return true
	})
}

func (srv *GameServer) handleGuessWord(c *Client, msg ClientMessage) {
	h := c.currentHub()
	if h == nil {
		c.sendError(ErrNotInSession)
		return
	}

	word, err := validateWord(msg.Word, srv.cfg.maxWordLength)
	if err != nil {
		c.sendError(err)
		return
	}

	h.apply(c, func(g *hangmen.Game) bool {
		if !g.IsTurn(c.playerID) {
			return false
		}

		logf(srv.cfg, "GAMES: Player %s guessed the word of %s in %s", c.playerID, msg.Target, g.Pin())
		g.GuessWord(msg.Target, word)
		return true
	})
}

func validateName(name string, maxLength int) (string, error) {
	name = strings.TrimSpace(name)

	n := utf8.RuneCountInString(name)
	if n == 0 || n > maxLength {
		return "", fmt.Errorf("%w: must be 1-%d characters", ErrInvalidName, maxLength)
	}

	return name, nil
}

// validateWord lower-cases word and requires it to consist only of a-z.
// Anything else could never be revealed by letter guesses.
func validateWord(word string, maxLength int) (string, error) {
	word = strings.ToLower(strings.TrimSpace(word))

	if len(word) == 0 || len(word) > maxLength {
		return "", fmt.Errorf("%w: must be 1-%d letters", ErrInvalidWord, maxLength)
	}
	for _, r := range word {
		if r < 'a' || r > 'z' {
			return "", fmt.Errorf("%w: only the letters a-z are allowed", ErrInvalidWord)
		}
	}

	return word, nil
}

func validateLetter(letter string) (rune, error) {
	letter = strings.ToLower(strings.TrimSpace(letter))

	r, size := utf8.DecodeRuneInString(letter)
	if size == 0 || size != len(letter) || r < 'a' || r > 'z' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLetter, letter)
	}

	return r, nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func serveWS(srv *GameServer) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(srv.cfg, "ERROR: Websocket upgrade for %s failed: %v", realIP(r), err)
			return
		}
		conn.SetReadLimit(maxMessageSize)

		client := &Client{
			conn:     conn,
			send:     make(chan any, 16),
			playerID: uuid.NewString(),
		}

		logf(srv.cfg, "SERVE: Player %s connected from %s", client.playerID, realIP(r))

		client.trySend(WelcomeMessage{
			Type:     "welcome",
			PlayerID: client.playerID,
		})

		go client.writePump()
		client.readPump(srv)
	}
}

func (c *Client) readPump(srv *GameServer) {
	defer func() {
		if h := c.currentHub(); h != nil {
			h.leave(c)
		}
		c.close()
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		srv.handleMessage(c, msg)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// serveState returns the session as JSON with every secret word redacted.
// Player ids are public, so the endpoint never serves an owner view.
func serveState(srv *GameServer) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()

		s, ok := srv.gm.GetSession(ps.ByName("pin"))
		if !ok {
			http.Error(w, ErrSessionNotFound.Error(), http.StatusNotFound)
			return
		}

		data, err := json.Marshal(s.Snapshot(""))
		if err != nil {
			http.Error(w, "unable to encode state", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(srv.cfg, w)

		written, err := w.Write(data)
		if err != nil {
			return
		}

		logf(srv.cfg, "SERVE: State of %s (%s) to %s in %s",
			s.Pin(),
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// QR handler: generates a PNG QR code linking to the session's join page.
func serveQR(srv *GameServer) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		pin := ps.ByName("pin")
		if _, ok := srv.gm.GetSession(pin); !ok {
			http.Error(w, ErrSessionNotFound.Error(), http.StatusNotFound)
			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		link := scheme + "://" + r.Host + srv.cfg.prefix + "/?join=" + url.QueryEscape(pin)

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(link, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

// registerHangmenGame sets up routes so that:
//   - /ws                → websocket for playing
//   - /sessions/:pin     → JSON state of a session
//   - /sessions/:pin/qr  → PNG QR code of the session's join link
func registerHangmenGame(cfg *Config, srv *GameServer, mux *httprouter.Router) {
	mux.GET(cfg.prefix+"/ws", serveWS(srv))
	mux.GET(cfg.prefix+"/sessions/:pin", serveState(srv))
	mux.GET(cfg.prefix+"/sessions/:pin/qr", serveQR(srv))
}
