package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chess-arena/internal/auth"
	"chess-arena/internal/matchmaking"
	"chess-arena/internal/middleware"
	"chess-arena/internal/presence"
	"chess-arena/internal/protocol"
	"chess-arena/internal/registry"
	"chess-arena/internal/room"
	"chess-arena/internal/timing"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type testServer struct {
	*httptest.Server
	ws     *WebSocketHandler
	reg    *registry.Registry
	queue  *matchmaking.Queue
	tokens *auth.TokenService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	tokens := auth.NewTokenService("test-secret", "")
	tracker := presence.NewLocal()
	queue := matchmaking.NewQueue(logger)
	reg := registry.New(registry.Config{
		Scheduler: timing.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Logger:    logger,
		Room:      room.Config{ForfeitOnAbandon: true},
	})
	t.Cleanup(reg.Close)

	ws := NewWebSocketHandler(WebSocketOptions{
		Auth:     auth.NewAuthenticator(tokens, false),
		Presence: tracker,
		Queue:    queue,
		Registry: reg,
		Logger:   logger,
	})
	router := NewRouter(RouterOptions{
		WebSocket: ws,
		Status:    NewStatusHandler(reg, queue, tracker, ws.Hub()),
		Auth:      middleware.NewAuthMiddleware(tokens),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, ws: ws, reg: reg, queue: queue, tokens: tokens}
}

func (s *testServer) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg map[string]interface{}) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %v: %v", msg["type"], err)
	}
}

// expect reads until a message of type want arrives
func expect(t *testing.T, conn *websocket.Conn, want protocol.Type) *protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg protocol.Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		if msg.Type == want {
			return &msg
		}
	}
}

func identify(t *testing.T, conn *websocket.Conn, playerID string) {
	t.Helper()
	send(t, conn, map[string]interface{}{"type": "identify", "playerId": playerID, "displayName": strings.ToUpper(playerID)})
	if got := expect(t, conn, protocol.TypeIdentityAccepted); got.PlayerID != playerID {
		t.Fatalf("identity_accepted for %q, want %q", got.PlayerID, playerID)
	}
}

func TestRequestsBeforeIdentifyAreRejected(t *testing.T) {
	srv := newTestServer(t)
	conn := srv.dial(t, "")

	send(t, conn, map[string]interface{}{"type": "find_match", "timeCategory": "blitz"})
	if got := expect(t, conn, protocol.TypeError); got.Code != registry.CodeNotAuthenticated {
		t.Fatalf("code = %s", got.Code)
	}
}

func TestMalformedMessages(t *testing.T) {
	srv := newTestServer(t)
	conn := srv.dial(t, "")

	for _, frame := range []string{`{"type":"teleport"}`, `not json`, `{"type":"make_move","gameId":"g"}`} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			t.Fatalf("write: %v", err)
		}
		if got := expect(t, conn, protocol.TypeError); got.Code != registry.CodeInvalidMessage {
			t.Fatalf("%s: code = %s", frame, got.Code)
		}
	}
}

func TestDuplicateIdentityRejected(t *testing.T) {
	srv := newTestServer(t)
	identify(t, srv.dial(t, ""), "alice")

	second := srv.dial(t, "")
	send(t, second, map[string]interface{}{"type": "identify", "playerId": "alice"})
	got := expect(t, second, protocol.TypeIdentityRejected)
	if got.Code != registry.CodeDuplicateIdentity {
		t.Fatalf("code = %s", got.Code)
	}
}

func TestTokenOnUpgradeIdentifies(t *testing.T) {
	srv := newTestServer(t)
	token, err := srv.tokens.Issue(auth.Identity{PlayerID: "carol", DisplayName: "Carol", Ratings: map[string]int{"blitz": 1800}})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	conn := srv.dial(t, "?token="+token)
	got := expect(t, conn, protocol.TypeIdentityAccepted)
	if got.PlayerID != "carol" || got.DisplayName != "Carol" {
		t.Fatalf("identity = %s/%s", got.PlayerID, got.DisplayName)
	}
}

func TestInvalidTimeCategory(t *testing.T) {
	srv := newTestServer(t)
	conn := srv.dial(t, "")
	identify(t, conn, "alice")

	send(t, conn, map[string]interface{}{"type": "find_match", "timeCategory": "hyperbullet"})
	if got := expect(t, conn, protocol.TypeError); got.Code != registry.CodeInvalidTimeCategory {
		t.Fatalf("code = %s", got.Code)
	}
}

func TestMatchPlayAndResign(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.dial(t, "")
	bob := srv.dial(t, "")
	identify(t, alice, "alice")
	identify(t, bob, "bob")

	send(t, alice, map[string]interface{}{"type": "find_match", "timeCategory": "blitz"})
	if got := expect(t, alice, protocol.TypeMatchWaiting); got.TimeCategory != "blitz" {
		t.Fatalf("waiting category = %s", got.TimeCategory)
	}
	send(t, bob, map[string]interface{}{"type": "find_match", "timeCategory": "blitz"})

	aFound := expect(t, alice, protocol.TypeMatchFound)
	bFound := expect(t, bob, protocol.TypeMatchFound)
	if aFound.GameID == "" || aFound.GameID != bFound.GameID {
		t.Fatalf("game ids %q / %q", aFound.GameID, bFound.GameID)
	}
	if aFound.Color == bFound.Color {
		t.Fatalf("both players got %s", aFound.Color)
	}
	if aFound.Opponent == nil || aFound.Opponent.PlayerID != "bob" {
		t.Fatalf("alice's opponent = %+v", aFound.Opponent)
	}
	gameID := aFound.GameID

	white, black := alice, bob
	if aFound.Color == "black" {
		white, black = bob, alice
	}

	// a seated player cannot queue again
	send(t, alice, map[string]interface{}{"type": "find_match", "timeCategory": "blitz"})
	if got := expect(t, alice, protocol.TypeError); got.Code != registry.CodeAlreadyInGame || got.GameID != gameID {
		t.Fatalf("find_match while seated: %+v", got)
	}

	for _, c := range []*websocket.Conn{white, black} {
		send(t, c, map[string]interface{}{"type": "join_room", "gameId": gameID})
		expect(t, c, protocol.TypeJoinedAsPlayer)
	}
	started := expect(t, white, protocol.TypeGameStarted)
	if len(started.Players) != 2 {
		t.Fatalf("game_started players = %d", len(started.Players))
	}

	send(t, white, map[string]interface{}{"type": "make_move", "gameId": gameID, "from": "e2", "to": "e4"})
	applied := expect(t, black, protocol.TypeMoveApplied)
	if applied.Move == nil || applied.Move.SAN != "e4" {
		t.Fatalf("move_applied = %+v", applied.Move)
	}

	send(t, white, map[string]interface{}{"type": "make_move", "gameId": gameID, "from": "d2", "to": "d4"})
	if got := expect(t, white, protocol.TypeMoveRejected); got.GameID != gameID || got.Reason == "" {
		t.Fatalf("out-of-turn move: %+v", got)
	}

	send(t, black, map[string]interface{}{"type": "respond_draw", "gameId": gameID, "accept": true})
	if got := expect(t, black, protocol.TypeError); got.Code != registry.CodeActionRejected {
		t.Fatalf("respond_draw without offer: code = %s", got.Code)
	}

	send(t, black, map[string]interface{}{"type": "resign", "gameId": gameID})
	over := expect(t, white, protocol.TypeGameOver)
	if over.Result != protocol.ResultWhiteWins || over.Cause != protocol.CauseResignation {
		t.Fatalf("game_over = %s/%s", over.Result, over.Cause)
	}

	resp, err := http.Get(srv.URL + "/api/rooms/" + gameID + "/replay")
	if err != nil {
		t.Fatalf("GET replay: %v", err)
	}
	defer resp.Body.Close()
	var replay ReplayResponse
	if err := json.NewDecoder(resp.Body).Decode(&replay); err != nil {
		t.Fatalf("decode replay: %v", err)
	}
	if len(replay.Positions) != 2 || replay.Positions[1] != "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1" {
		t.Fatalf("replay positions = %v", replay.Positions)
	}
}

func TestUnknownRoom(t *testing.T) {
	srv := newTestServer(t)
	conn := srv.dial(t, "")
	identify(t, conn, "alice")

	send(t, conn, map[string]interface{}{"type": "join_room", "gameId": "nope"})
	if got := expect(t, conn, protocol.TypeError); got.Code != registry.CodeGameNotFound {
		t.Fatalf("code = %s", got.Code)
	}
}

func TestCancelAndDisconnectLeaveQueue(t *testing.T) {
	srv := newTestServer(t)
	conn := srv.dial(t, "")
	identify(t, conn, "alice")

	send(t, conn, map[string]interface{}{"type": "find_match"})
	if got := expect(t, conn, protocol.TypeMatchWaiting); got.TimeCategory != "rapid" {
		t.Fatalf("default category = %s", got.TimeCategory)
	}
	send(t, conn, map[string]interface{}{"type": "cancel_match"})
	expect(t, conn, protocol.TypeMatchCancelled)
	if srv.queue.IsWaiting("alice") {
		t.Fatalf("alice should have left the queue")
	}

	send(t, conn, map[string]interface{}{"type": "find_match", "timeCategory": "bullet"})
	expect(t, conn, protocol.TypeMatchWaiting)
	conn.Close()

	deadline := time.Now().Add(3 * time.Second)
	for srv.queue.IsWaiting("alice") || srv.ws.Hub().Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("disconnect did not clear the queue entry and hub")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// the identity is free again
	identify(t, srv.dial(t, ""), "alice")
}

func TestFindMatchWhileQueuedKeepsCategory(t *testing.T) {
	srv := newTestServer(t)
	conn := srv.dial(t, "")
	identify(t, conn, "alice")

	send(t, conn, map[string]interface{}{"type": "find_match", "timeCategory": "blitz"})
	expect(t, conn, protocol.TypeMatchWaiting)

	send(t, conn, map[string]interface{}{"type": "find_match", "timeCategory": "bullet"})
	got := expect(t, conn, protocol.TypeMatchWaiting)
	if got.TimeCategory != "blitz" || got.TimeControl == nil || got.TimeControl.Category != "blitz" {
		t.Fatalf("match_waiting should name the queue alice is in, got %+v", got)
	}
	if sizes := srv.queue.Sizes(); sizes["blitz"] != 1 || sizes["bullet"] != 0 {
		t.Fatalf("queue sizes = %v", sizes)
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://arena.example/"})
	cases := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://arena.example", true},
		{"https://evil.example", false},
		{"http://arena.example", false},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if c.origin != "" {
			req.Header.Set("Origin", c.origin)
		}
		if got := check(req); got != c.want {
			t.Fatalf("origin %q: got %v", c.origin, got)
		}
	}
	if !originChecker(nil)(httptest.NewRequest(http.MethodGet, "/ws", nil)) {
		t.Fatalf("empty allow list should accept everything")
	}
}
