package main

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Seednode/hangmen/games/hangmen"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

type testMessage struct {
	Type       string           `json:"type"`
	PlayerID   string           `json:"player_id"`
	Message    string           `json:"message"`
	Winner     string           `json:"winner"`
	WinnerName string           `json:"winner_name"`
	State      hangmen.Snapshot `json:"state"`
}

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
	id   string
}

func newTestServer(t *testing.T) (*httptest.Server, *GameServer) {
	t.Helper()

	cfg := &Config{
		maxNameLength: 16,
		maxWordLength: 16,
	}
	games := newGameServer(cfg, hangmen.WithShuffleSource(rand.New(rand.NewPCG(1, 2))))

	mux := httprouter.New()
	registerHangmenGame(cfg, games, mux)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return ts, games
}

func dial(t *testing.T, ts *httptest.Server) *testClient {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	c := &testClient{t: t, conn: conn}

	welcome := c.next()
	if welcome.Type != "welcome" || welcome.PlayerID == "" {
		t.Fatalf("expected welcome with a player id, got %+v", welcome)
	}
	c.id = welcome.PlayerID

	return c
}

func (c *testClient) send(msg ClientMessage) {
	c.t.Helper()

	if err := c.conn.WriteJSON(msg); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *testClient) next() testMessage {
	c.t.Helper()

	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg testMessage
	if err := c.conn.ReadJSON(&msg); err != nil {
		c.t.Fatalf("read: %v", err)
	}
	return msg
}

func (c *testClient) waitFor(match func(testMessage) bool) testMessage {
	c.t.Helper()

	for {
		if msg := c.next(); match(msg) {
			return msg
		}
	}
}

func isType(typ string) func(testMessage) bool {
	return func(m testMessage) bool { return m.Type == typ }
}

func withPlayers(n int) func(testMessage) bool {
	return func(m testMessage) bool { return m.Type == "state" && len(m.State.Players) == n }
}

func roundStarted(m testMessage) bool {
	return m.Type == "state" && !m.State.Lobby
}

// startRound connects alice ("cat") and bob ("dog") and plays them into an
// active round.
func startRound(t *testing.T, ts *httptest.Server) (alice, bob *testClient, pin string, aliceState testMessage) {
	t.Helper()

	alice = dial(t, ts)
	alice.send(ClientMessage{Type: "create", Name: "alice"})
	created := alice.waitFor(isType("state"))
	pin = created.State.Pin
	if _, ok := created.State.Players[alice.id]; !ok {
		t.Fatalf("expected creator in the roster, got %+v", created.State.Players)
	}

	bob = dial(t, ts)
	bob.send(ClientMessage{Type: "join", Pin: pin, Name: "bob"})
	bob.waitFor(withPlayers(2))
	alice.waitFor(withPlayers(2))

	alice.send(ClientMessage{Type: "set_word", Word: "Cat"})
	bob.send(ClientMessage{Type: "set_word", Word: "dog"})

	aliceState = alice.waitFor(roundStarted)
	bob.waitFor(roundStarted)

	return alice, bob, pin, aliceState
}

func TestFullRoundOverWebsocket(t *testing.T) {
	ts, _ := newTestServer(t)

	alice, bob, pin, state := startRound(t, ts)

	if got := state.State.Players[alice.id].Word; got != "cat" {
		t.Fatalf("expected alice to see her own word, got %q", got)
	}
	if got := state.State.Players[bob.id].Word; got != "" {
		t.Fatalf("expected bob's word to be redacted for alice, got %q", got)
	}

	holder, other := alice, bob
	otherWord := "dog"
	if state.State.CurrentTurn == bob.id {
		holder, other = bob, alice
		otherWord = "cat"
	}

	// Out of turn: dropped without any broadcast. The invalid letter that
	// follows is answered to other alone, which orders the two.
	other.send(ClientMessage{Type: "guess_letter", Letter: "e"})
	other.send(ClientMessage{Type: "guess_letter", Letter: "12"})
	if msg := other.next(); msg.Type != "error" {
		t.Fatalf("expected error for the invalid letter, got %+v", msg)
	}

	holder.send(ClientMessage{Type: "guess_word", Target: other.id, Word: strings.ToUpper(otherWord)})

	final := other.next()
	if final.Type != "state" {
		t.Fatalf("expected state before round over, got %+v", final)
	}
	if len(final.State.Guessed) != 0 {
		t.Fatalf("expected out-of-turn guess to be ignored, got %v", final.State.Guessed)
	}
	if final.State.Players[other.id].Alive {
		t.Fatal("expected the guessed player to be eliminated")
	}

	over := other.waitFor(isType("round_over"))
	if over.Winner != holder.id {
		t.Fatalf("expected winner %s, got %s", holder.id, over.Winner)
	}
	holder.waitFor(isType("round_over"))

	snap := getState(t, ts, pin, "")
	if !snap.Lobby || len(snap.Players) != 0 {
		t.Fatalf("expected session reset to an empty lobby, got %+v", snap)
	}

	// Evicted clients can play again.
	holder.send(ClientMessage{Type: "join", Pin: pin, Name: "again"})
	holder.waitFor(withPlayers(1))
}

func TestJoinUnknownSessionErrorsOnlyToRequester(t *testing.T) {
	ts, _ := newTestServer(t)

	alice := dial(t, ts)
	alice.send(ClientMessage{Type: "create", Name: "alice"})
	alice.waitFor(isType("state"))

	bob := dial(t, ts)
	bob.send(ClientMessage{Type: "join", Pin: "nope00", Name: "bob"})

	msg := bob.next()
	if msg.Type != "error" || !strings.Contains(msg.Message, ErrSessionNotFound.Error()) {
		t.Fatalf("expected session not found error, got %+v", msg)
	}

	// alice sees nothing from bob's failed join; her next message is the
	// answer to her own invalid request.
	alice.send(ClientMessage{Type: "set_word", Word: "c4t"})
	if msg := alice.next(); msg.Type != "error" || !strings.Contains(msg.Message, ErrInvalidWord.Error()) {
		t.Fatalf("expected invalid word error, got %+v", msg)
	}
}

func TestActionsOutsideSessionAreRejected(t *testing.T) {
	ts, _ := newTestServer(t)

	c := dial(t, ts)
	c.send(ClientMessage{Type: "set_word", Word: "cat"})
	if msg := c.next(); msg.Type != "error" || msg.Message != ErrNotInSession.Error() {
		t.Fatalf("expected not in session error, got %+v", msg)
	}

	c.send(ClientMessage{Type: "create", Name: "   "})
	if msg := c.next(); msg.Type != "error" || !strings.Contains(msg.Message, ErrInvalidName.Error()) {
		t.Fatalf("expected invalid name error, got %+v", msg)
	}

	c.send(ClientMessage{Type: "create", Name: "carol"})
	c.waitFor(isType("state"))
	c.send(ClientMessage{Type: "create", Name: "carol"})
	if msg := c.next(); msg.Type != "error" || msg.Message != ErrAlreadyInSession.Error() {
		t.Fatalf("expected already in session error, got %+v", msg)
	}
}

func TestDisconnectEndsRound(t *testing.T) {
	ts, _ := newTestServer(t)

	alice, bob, pin, _ := startRound(t, ts)

	_ = bob.conn.Close()

	state := alice.waitFor(isType("state"))
	if state.State.Players[bob.id].Alive {
		t.Fatal("expected bob to be eliminated after disconnecting")
	}

	over := alice.waitFor(isType("round_over"))
	if over.Winner != alice.id || over.WinnerName != "alice" {
		t.Fatalf("expected alice to win, got %+v", over)
	}

	snap := getState(t, ts, pin, "")
	if len(snap.Players) != 0 {
		t.Fatalf("expected empty roster after reset, got %+v", snap.Players)
	}
}

func TestLeaveInLobbyForgetsPlayer(t *testing.T) {
	ts, _ := newTestServer(t)

	alice := dial(t, ts)
	alice.send(ClientMessage{Type: "create", Name: "alice"})
	pin := alice.waitFor(isType("state")).State.Pin

	bob := dial(t, ts)
	bob.send(ClientMessage{Type: "join", Pin: pin, Name: "bob"})
	alice.waitFor(withPlayers(2))

	bob.send(ClientMessage{Type: "leave"})
	alice.waitFor(withPlayers(1))

	if _, ok := getState(t, ts, pin, "").Players[bob.id]; ok {
		t.Fatal("expected bob to be forgotten")
	}
}

func TestStateEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	alice, bob, pin, _ := startRound(t, ts)

	anon := getState(t, ts, pin, "")
	for id, p := range anon.Players {
		if p.Word != "" {
			t.Fatalf("expected %s's word to be redacted, got %q", id, p.Word)
		}
	}

	// Ids are visible to every player, so naming one must not reveal a word.
	for _, id := range []string{alice.id, bob.id} {
		snap := getState(t, ts, pin, id)
		for owner, p := range snap.Players {
			if p.Word != "" {
				t.Fatalf("expected %s's word to stay redacted when asking as %s, got %q", owner, id, p.Word)
			}
		}
		if snap.Players[bob.id].Mask != "___" {
			t.Fatalf("expected bob's mask, got %q", snap.Players[bob.id].Mask)
		}
	}

	resp, err := http.Get(ts.URL + "/sessions/missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestQREndpoint(t *testing.T) {
	ts, games := newTestServer(t)
	pin := games.gm.CreateSession()

	resp, err := http.Get(ts.URL + "/sessions/" + pin + "/qr")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("expected image/png, got %q", ct)
	}

	missing, err := http.Get(ts.URL + "/sessions/missing/qr")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.StatusCode)
	}
}

func TestCollectedSessionDropsHub(t *testing.T) {
	_, games := newTestServer(t)

	pin := games.gm.CreateSession()
	s, _ := games.gm.GetSession(pin)
	games.hubFor(s)

	games.gm.GarbageCollect()

	games.mu.Lock()
	_, ok := games.hubs[pin]
	games.mu.Unlock()
	if ok {
		t.Fatal("expected hub to be dropped with its session")
	}
}

func getState(t *testing.T, ts *httptest.Server, pin, player string) hangmen.Snapshot {
	t.Helper()

	url := ts.URL + "/sessions/" + pin
	if player != "" {
		url += "?player=" + player
	}

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var snap hangmen.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return snap
}

func TestValidateWord(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  error
	}{
		{"Cat", "cat", nil},
		{"  dog ", "dog", nil},
		{"", "", ErrInvalidWord},
		{"c4t", "", ErrInvalidWord},
		{"two words", "", ErrInvalidWord},
		{"abcdefghijklmnopq", "", ErrInvalidWord},
	}

	for _, tt := range tests {
		got, err := validateWord(tt.in, 16)
		if !errors.Is(err, tt.err) || got != tt.want {
			t.Errorf("validateWord(%q): expected (%q, %v), got (%q, %v)", tt.in, tt.want, tt.err, got, err)
		}
	}
}

func TestValidateLetter(t *testing.T) {
	tests := []struct {
		in   string
		want rune
		err  error
	}{
		{"a", 'a', nil},
		{"Z", 'z', nil},
		{"", 0, ErrInvalidLetter},
		{"ab", 0, ErrInvalidLetter},
		{"1", 0, ErrInvalidLetter},
		{"é", 0, ErrInvalidLetter},
	}

	for _, tt := range tests {
		got, err := validateLetter(tt.in)
		if !errors.Is(err, tt.err) || got != tt.want {
			t.Errorf("validateLetter(%q): expected (%q, %v), got (%q, %v)", tt.in, tt.want, tt.err, got, err)
		}
	}
}

func TestValidateName(t *testing.T) {
	if got, err := validateName("  alice ", 8); err != nil || got != "alice" {
		t.Fatalf("expected alice, got (%q, %v)", got, err)
	}
	if _, err := validateName("", 8); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected invalid name, got %v", err)
	}
	if _, err := validateName("bartholomew", 8); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected invalid name, got %v", err)
	}
}
