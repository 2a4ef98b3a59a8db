package room

import (
	"errors"
	"sync"
	"testing"
	"time"

	"chess-arena/internal/game"
	"chess-arena/internal/protocol"
	"chess-arena/internal/timing"
)

type recorder struct {
	mu   sync.Mutex
	msgs []*protocol.Message
	fail bool
}

func (c *recorder) Send(m *protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("connection closed")
	}
	c.msgs = append(c.msgs, m)
	return nil
}

func (c *recorder) find(t protocol.Type) *protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.msgs) - 1; i >= 0; i-- {
		if c.msgs[i].Type == t {
			return c.msgs[i]
		}
	}
	return nil
}

func (c *recorder) count(t protocol.Type) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.msgs {
		if m.Type == t {
			n++
		}
	}
	return n
}

var unlimited = game.TimeControl{Category: game.Classical}

type fixture struct {
	room     *Room
	fake     *timing.Fake
	white    *recorder
	black    *recorder
	finished []Summary
}

func newFixture(t *testing.T, tc game.TimeControl, forfeit bool) *fixture {
	t.Helper()
	f := &fixture{
		fake:  timing.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		white: &recorder{},
		black: &recorder{},
	}
	f.room = New("g1", tc,
		Seat{PlayerID: "w", DisplayName: "Wanda", Rating: 1500},
		Seat{PlayerID: "b", DisplayName: "Boris", Rating: 1550},
		Config{
			Scheduler:        f.fake,
			ForfeitOnAbandon: forfeit,
			OnFinish:         func(s Summary) { f.finished = append(f.finished, s) },
		})
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	if _, err := f.room.AddUser(User{PlayerID: "w"}, f.white); err != nil {
		t.Fatalf("white join: %v", err)
	}
	if _, err := f.room.AddUser(User{PlayerID: "b"}, f.black); err != nil {
		t.Fatalf("black join: %v", err)
	}
}

func (f *fixture) play(t *testing.T, moves ...string) {
	t.Helper()
	for _, s := range moves {
		m, err := game.ParseMove(s)
		if err != nil {
			t.Fatalf("ParseMove(%s): %v", s, err)
		}
		mover := "w"
		if f.room.Board().Active == game.Black {
			mover = "b"
		}
		if _, err := f.room.MakeMove(mover, m); err != nil {
			t.Fatalf("MakeMove(%s): %v", s, err)
		}
	}
}

func (f *fixture) fen() string {
	b := f.room.Board()
	return b.FEN()
}

func move(t *testing.T, s string) game.Move {
	t.Helper()
	m, err := game.ParseMove(s)
	if err != nil {
		t.Fatalf("ParseMove(%s): %v", s, err)
	}
	return m
}

func TestSecondPlayerStartsGame(t *testing.T) {
	f := newFixture(t, game.TimeControlConfigs[game.Blitz], true)

	role, err := f.room.AddUser(User{PlayerID: "w"}, f.white)
	if err != nil || role != RolePlayer {
		t.Fatalf("AddUser = %v, %v", role, err)
	}
	if f.room.Status() != StatusWaiting {
		t.Fatalf("one player should leave the room waiting")
	}
	joined := f.white.find(protocol.TypeJoinedAsPlayer)
	if joined == nil || joined.Color != "white" || joined.State.FEN != game.StartFEN {
		t.Fatalf("unexpected joined_as_player: %+v", joined)
	}

	if _, err := f.room.AddUser(User{PlayerID: "b"}, f.black); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if f.room.Status() != StatusPlaying {
		t.Fatalf("second original player should start the game")
	}
	for name, c := range map[string]*recorder{"white": f.white, "black": f.black} {
		started := c.find(protocol.TypeGameStarted)
		if started == nil || len(started.Players) != 2 {
			t.Fatalf("%s did not receive game_started with both players: %+v", name, started)
		}
		if started.State.WhiteTimeMs != 180000 || started.State.ActiveColor != "white" {
			t.Fatalf("%s got unexpected initial state %+v", name, started.State)
		}
	}
	if f.white.find(protocol.TypePlayerJoined) == nil {
		t.Fatalf("white should hear that black joined")
	}
}

func TestSpectatorIsReadOnly(t *testing.T) {
	f := newFixture(t, unlimited, true)
	f.start(t)
	watcher := &recorder{}

	role, err := f.room.AddUser(User{PlayerID: "s", DisplayName: "Sam"}, watcher)
	if err != nil || role != RoleSpectator {
		t.Fatalf("AddUser = %v, %v", role, err)
	}
	if m := watcher.find(protocol.TypeJoinedAsSpectator); m == nil || m.SpectatorCount != 1 || len(m.Players) != 2 {
		t.Fatalf("unexpected joined_as_spectator: %+v", m)
	}
	if f.white.find(protocol.TypeSpectatorJoined) == nil || f.black.find(protocol.TypeSpectatorJoined) == nil {
		t.Fatalf("players should be told about the spectator")
	}
	if _, err := f.room.MakeMove("s", move(t, "e2e4")); !errors.Is(err, ErrNotAPlayer) {
		t.Fatalf("spectator move: expected ErrNotAPlayer, got %v", err)
	}
	if err := f.room.Resign("s"); !errors.Is(err, ErrNotAPlayer) {
		t.Fatalf("spectator resign: expected ErrNotAPlayer, got %v", err)
	}

	f.play(t, "e2e4")
	if m := watcher.find(protocol.TypeMoveApplied); m == nil || m.Move.SAN != "e4" {
		t.Fatalf("spectator should receive moves, got %+v", m)
	}

	if !f.room.Disconnect("s", watcher) {
		t.Fatalf("spectator disconnect should be reported")
	}
	if f.room.SpectatorCount() != 0 {
		t.Fatalf("spectators leave without a grace period")
	}
}

func TestMoveRejections(t *testing.T) {
	f := newFixture(t, unlimited, true)
	f.room.AddUser(User{PlayerID: "w"}, f.white)
	if _, err := f.room.MakeMove("w", move(t, "e2e4")); !errors.Is(err, ErrGameNotActive) {
		t.Fatalf("before start: expected ErrGameNotActive, got %v", err)
	}
	f.room.AddUser(User{PlayerID: "b"}, f.black)

	if _, err := f.room.MakeMove("b", move(t, "e7e5")); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
	var illegal *game.IllegalMoveError
	if _, err := f.room.MakeMove("w", move(t, "e2e5")); !errors.As(err, &illegal) {
		t.Fatalf("expected *game.IllegalMoveError, got %v", err)
	}
	if f.fen() != game.StartFEN {
		t.Fatalf("rejected moves must not touch the position")
	}
}

func TestMoveBroadcastsState(t *testing.T) {
	f := newFixture(t, game.TimeControlConfigs[game.Blitz], true)
	f.start(t)

	f.fake.Advance(4 * time.Second)
	rec, err := f.room.MakeMove("w", move(t, "e2e4"))
	if err != nil {
		t.Fatalf("MakeMove: %v", err)
	}
	if rec.SAN != "e4" || rec.Ply != 1 || rec.ElapsedMs != 4000 {
		t.Fatalf("unexpected record %+v", rec)
	}
	for _, c := range []*recorder{f.white, f.black} {
		m := c.find(protocol.TypeMoveApplied)
		if m == nil {
			t.Fatalf("move_applied not delivered")
		}
		if m.State.ActiveColor != "black" || len(m.State.Moves) != 1 {
			t.Fatalf("unexpected state %+v", m.State)
		}
		// 180s - 4s + 2s increment
		if m.State.WhiteTimeMs != 178000 {
			t.Fatalf("white clock = %d", m.State.WhiteTimeMs)
		}
	}
}

func TestCheckmateFinishesGame(t *testing.T) {
	f := newFixture(t, unlimited, true)
	f.start(t)
	f.play(t, "f2f3", "e7e5", "g2g4", "d8h4")

	if f.room.Status() != StatusFinished {
		t.Fatalf("fool's mate should finish the game")
	}
	over := f.white.find(protocol.TypeGameOver)
	if over == nil || over.Result != protocol.ResultBlackWins || over.Winner != "black" || over.Cause != protocol.CauseCheckmate {
		t.Fatalf("unexpected game_over %+v", over)
	}
	if len(f.finished) != 1 || len(f.finished[0].Moves) != 4 || f.finished[0].EndedAt == nil {
		t.Fatalf("OnFinish should receive the final summary, got %+v", f.finished)
	}
	if got := f.finished[0].SAN(); got[3] != "Qh4#" {
		t.Fatalf("last SAN = %s", got[3])
	}
	if _, err := f.room.MakeMove("w", move(t, "a2a3")); !errors.Is(err, ErrGameNotActive) {
		t.Fatalf("finished room must reject moves, got %v", err)
	}
}

func TestReconnectRestoresState(t *testing.T) {
	f := newFixture(t, unlimited, true)
	f.start(t)
	f.play(t, "e2e4")
	before := f.fen()

	if !f.room.Disconnect("w", f.white) {
		t.Fatalf("disconnect should detach white")
	}
	if p, _ := f.room.Player("w"); p.Connected {
		t.Fatalf("white should be marked disconnected")
	}
	if m := f.black.find(protocol.TypePeerDisconnected); m == nil || m.PlayerID != "w" {
		t.Fatalf("black should be told about the disconnect")
	}
	if f.fake.Pending() != 1 {
		t.Fatalf("expected one grace timer, got %d", f.fake.Pending())
	}

	again := &recorder{}
	if _, err := f.room.AddUser(User{PlayerID: "w"}, again); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	joined := again.find(protocol.TypeJoinedAsPlayer)
	if joined == nil || len(joined.State.Moves) != 1 || joined.State.FEN != before {
		t.Fatalf("reconnect should replay the current state, got %+v", joined)
	}
	if f.black.find(protocol.TypePeerReconnected) == nil {
		t.Fatalf("black should be told about the reconnect")
	}
	if p, _ := f.room.Player("w"); !p.Connected {
		t.Fatalf("white should be connected again")
	}
	if f.fake.Pending() != 0 {
		t.Fatalf("reconnect should cancel the grace timer")
	}

	f.fake.Advance(DefaultGracePeriod + time.Minute)
	if f.room.Status() != StatusPlaying || f.black.count(protocol.TypePlayerAbandoned) != 0 {
		t.Fatalf("cancelled grace timer must not abandon the game")
	}
	if f.fen() != before {
		t.Fatalf("reconnect changed the position")
	}
}

func TestStaleConnectionCloseIsIgnored(t *testing.T) {
	f := newFixture(t, unlimited, true)
	f.start(t)
	f.room.Disconnect("w", f.white)
	fresh := &recorder{}
	f.room.AddUser(User{PlayerID: "w"}, fresh)

	if f.room.Disconnect("w", f.white) {
		t.Fatalf("closing the old socket must not detach the new one")
	}
	if p, _ := f.room.Player("w"); !p.Connected {
		t.Fatalf("white should still be connected")
	}
}

func TestDuplicateConnectionRejected(t *testing.T) {
	f := newFixture(t, unlimited, true)
	f.start(t)
	if _, err := f.room.AddUser(User{PlayerID: "w"}, &recorder{}); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("expected ErrAlreadyConnected, got %v", err)
	}
	f.room.AddUser(User{PlayerID: "s"}, &recorder{})
	if _, err := f.room.AddUser(User{PlayerID: "s"}, &recorder{}); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("duplicate spectator: expected ErrAlreadyConnected, got %v", err)
	}
}

func TestGraceExpiryForfeits(t *testing.T) {
	f := newFixture(t, unlimited, true)
	f.start(t)
	f.room.Disconnect("b", f.black)

	f.fake.Advance(DefaultGracePeriod)
	if m := f.white.find(protocol.TypePlayerAbandoned); m == nil || m.PlayerID != "b" {
		t.Fatalf("white should be told black abandoned")
	}
	over := f.white.find(protocol.TypeGameOver)
	if over == nil || over.Result != protocol.ResultWhiteWins || over.Cause != protocol.CauseAbandoned {
		t.Fatalf("unexpected game_over %+v", over)
	}
}

func TestGraceExpiryWithoutForfeit(t *testing.T) {
	f := newFixture(t, unlimited, false)
	f.start(t)
	f.room.Disconnect("b", f.black)

	f.fake.Advance(DefaultGracePeriod)
	if f.white.find(protocol.TypePlayerAbandoned) == nil {
		t.Fatalf("abandoned notice expected")
	}
	if f.room.Status() != StatusPlaying {
		t.Fatalf("game should stay open when forfeits are disabled")
	}
}

func TestResign(t *testing.T) {
	f := newFixture(t, unlimited, true)
	f.start(t)
	if err := f.room.Resign("w"); err != nil {
		t.Fatalf("Resign: %v", err)
	}
	over := f.black.find(protocol.TypeGameOver)
	if over == nil || over.Winner != "black" || over.Cause != protocol.CauseResignation {
		t.Fatalf("unexpected game_over %+v", over)
	}
	if err := f.room.Resign("b"); !errors.Is(err, ErrGameNotActive) {
		t.Fatalf("second resignation: expected ErrGameNotActive, got %v", err)
	}
}

func TestDrawOffers(t *testing.T) {
	f := newFixture(t, unlimited, true)
	f.start(t)

	if err := f.room.RespondDraw("b", true); !errors.Is(err, ErrNoDrawOffer) {
		t.Fatalf("expected ErrNoDrawOffer, got %v", err)
	}
	if err := f.room.OfferDraw("w"); err != nil {
		t.Fatalf("OfferDraw: %v", err)
	}
	if m := f.black.find(protocol.TypeDrawOffered); m == nil || m.By != "white" {
		t.Fatalf("black should see the offer, got %+v", m)
	}
	if err := f.room.RespondDraw("w", true); !errors.Is(err, ErrNoDrawOffer) {
		t.Fatalf("offering side cannot accept its own offer, got %v", err)
	}
	if err := f.room.RespondDraw("b", false); err != nil {
		t.Fatalf("decline: %v", err)
	}
	if f.white.find(protocol.TypeDrawDeclined) == nil || f.room.State().DrawOffer != "" {
		t.Fatalf("decline should clear the offer")
	}

	f.room.OfferDraw("w")
	f.play(t, "e2e4")
	if f.room.State().DrawOffer != "" {
		t.Fatalf("a move should withdraw the offer")
	}

	f.room.OfferDraw("b")
	if err := f.room.OfferDraw("w"); err != nil {
		t.Fatalf("counter offer: %v", err)
	}
	over := f.white.find(protocol.TypeGameOver)
	if over == nil || over.Result != protocol.ResultDraw || over.Cause != protocol.CauseAgreement {
		t.Fatalf("crossing offers should agree a draw, got %+v", over)
	}
}

func TestFlagFallFinishesGame(t *testing.T) {
	f := newFixture(t, game.TimeControlConfigs[game.Bullet], true)
	f.start(t)
	f.fake.Advance(time.Minute)

	over := f.black.find(protocol.TypeGameOver)
	if over == nil || over.Result != protocol.ResultBlackWins || over.Cause != protocol.CauseTimeout {
		t.Fatalf("unexpected game_over %+v", over)
	}
	if over.State.WhiteTimeMs != 0 {
		t.Fatalf("flagged side should show zero, got %d", over.State.WhiteTimeMs)
	}
}

func TestMoveAfterFlagFallLoses(t *testing.T) {
	f := newFixture(t, game.TimeControlConfigs[game.Bullet], true)
	f.start(t)
	f.play(t, "f2f3", "e7e5", "g2g4")

	// black's flag falls while the room is busy, so the clock callback
	// queues behind the lock and the mating move gets there first
	f.room.mu.Lock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.fake.Advance(61 * time.Second)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for f.room.clock.Running() {
		if time.Now().After(deadline) {
			f.room.mu.Unlock()
			t.Fatalf("clock did not stop")
		}
		time.Sleep(time.Millisecond)
	}
	f.room.mu.Unlock()

	if _, err := f.room.MakeMove("b", move(t, "d8h4")); !errors.Is(err, ErrGameNotActive) {
		t.Fatalf("move after flag fall: expected ErrGameNotActive, got %v", err)
	}
	<-done

	if f.white.count(protocol.TypeGameOver) != 1 {
		t.Fatalf("expected exactly one game_over, got %d", f.white.count(protocol.TypeGameOver))
	}
	over := f.white.find(protocol.TypeGameOver)
	if over.Result != protocol.ResultWhiteWins || over.Cause != protocol.CauseTimeout {
		t.Fatalf("unexpected game_over %+v", over)
	}
	if f.black.count(protocol.TypeMoveApplied) != 3 {
		t.Fatalf("the late move must not be broadcast")
	}
	if len(f.finished) != 1 || len(f.finished[0].Moves) != 3 {
		t.Fatalf("OnFinish summary = %+v", f.finished)
	}
}

func TestUnstartedRoomIsAborted(t *testing.T) {
	f := newFixture(t, unlimited, true)
	f.room.AddUser(User{PlayerID: "w"}, f.white)
	f.fake.Advance(DefaultGracePeriod)

	if f.room.Status() != StatusFinished {
		t.Fatalf("room should be aborted when the opponent never arrives")
	}
	if over := f.white.find(protocol.TypeGameOver); over == nil || over.Result != protocol.ResultAborted {
		t.Fatalf("unexpected game_over %+v", over)
	}
}

func TestBroadcastSurvivesFailingConnection(t *testing.T) {
	f := newFixture(t, unlimited, true)
	f.start(t)
	broken := &recorder{fail: true}
	f.room.AddUser(User{PlayerID: "s"}, broken)

	f.play(t, "d2d4")
	if f.black.find(protocol.TypeMoveApplied) == nil {
		t.Fatalf("a failing spectator must not block delivery to players")
	}
}
