package matchmaking

import (
	"errors"
	"testing"
	"time"

	"chess-arena/internal/game"
)

type fakeNow struct{ t time.Time }

func (f *fakeNow) now() time.Time          { return f.t }
func (f *fakeNow) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestQueue(t *testing.T) (*Queue, *fakeNow) {
	t.Helper()
	clock := &fakeNow{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	q := NewQueue(nil)
	q.SetNow(clock.now)
	return q, clock
}

func blitzEntry(id string, rating int) Entry {
	return Entry{PlayerID: id, DisplayName: id, Rating: rating, TimeControl: game.TimeControlConfigs[game.Blitz]}
}

func TestRatingThreshold(t *testing.T) {
	cases := []struct {
		wait time.Duration
		want int
	}{
		{0, 100},
		{29 * time.Second, 100},
		{30 * time.Second, 150},
		{59 * time.Second, 150},
		{60 * time.Second, 200},
		{119 * time.Second, 200},
		{120 * time.Second, 300},
		{10 * time.Minute, 300},
	}
	for _, c := range cases {
		if got := RatingThreshold(c.wait); got != c.want {
			t.Fatalf("RatingThreshold(%v) = %d, want %d", c.wait, got, c.want)
		}
	}
}

func TestCloseRatingsMatchImmediately(t *testing.T) {
	q, _ := newTestQueue(t)
	m, err := q.EnqueueOrMatch(blitzEntry("alice", 1500))
	if err != nil || m != nil {
		t.Fatalf("first entry should wait, got %v, %v", m, err)
	}
	m, err = q.EnqueueOrMatch(blitzEntry("bob", 1590))
	if err != nil {
		t.Fatalf("EnqueueOrMatch: %v", err)
	}
	if m == nil {
		t.Fatalf("gap of 90 should match immediately")
	}
	ids := map[string]bool{m.White.PlayerID: true, m.Black.PlayerID: true}
	if !ids["alice"] || !ids["bob"] || m.White.PlayerID == m.Black.PlayerID {
		t.Fatalf("match should pair alice and bob with distinct colors: %+v", m)
	}
	if m.GameID == "" || m.TimeControl != game.TimeControlConfigs[game.Blitz] {
		t.Fatalf("unexpected match metadata: %+v", m)
	}
	if q.IsWaiting("alice") || q.IsWaiting("bob") {
		t.Fatalf("matched players must leave the queue")
	}
}

func TestWideGapWaitsOverTwoMinutes(t *testing.T) {
	q, clock := newTestQueue(t)
	if m, _ := q.EnqueueOrMatch(blitzEntry("alice", 1500)); m != nil {
		t.Fatalf("unexpected match")
	}

	clock.advance(90 * time.Second)
	if m, _ := q.EnqueueOrMatch(blitzEntry("bob", 1750)); m != nil {
		t.Fatalf("gap of 250 must not match after 90s")
	}
	if got := len(q.ProcessMatches()); got != 0 {
		t.Fatalf("sweep matched %d pairs too early", got)
	}

	clock.advance(31 * time.Second)
	var notified []Match
	q.SetMatchNotifier(func(m Match) { notified = append(notified, m) })
	matches := q.ProcessMatches()
	if len(matches) != 1 || len(notified) != 1 {
		t.Fatalf("expected one match after 121s, got %d (notified %d)", len(matches), len(notified))
	}
	if q.Sizes()[game.Blitz] != 0 {
		t.Fatalf("queue should be empty after the sweep")
	}
}

func TestArrivalMatchesLongWaiter(t *testing.T) {
	q, clock := newTestQueue(t)
	q.EnqueueOrMatch(blitzEntry("alice", 1500))
	clock.advance(121 * time.Second)
	m, err := q.EnqueueOrMatch(blitzEntry("bob", 1750))
	if err != nil || m == nil {
		t.Fatalf("expected match against an entry waiting 121s, got %v, %v", m, err)
	}
}

func TestFirstFitNotBestFit(t *testing.T) {
	q, _ := newTestQueue(t)
	q.EnqueueOrMatch(blitzEntry("far", 1405))
	q.EnqueueOrMatch(blitzEntry("near", 1510))
	m, _ := q.EnqueueOrMatch(blitzEntry("new", 1500))
	if m == nil {
		t.Fatalf("expected a match")
	}
	if m.White.PlayerID != "far" && m.Black.PlayerID != "far" {
		t.Fatalf("first compatible entry in queue order should win: %+v", m)
	}
	if !q.IsWaiting("near") {
		t.Fatalf("closer entry should still be waiting")
	}
}

func TestTimeControlMustMatchExactly(t *testing.T) {
	q, _ := newTestQueue(t)
	custom := blitzEntry("alice", 1500)
	custom.TimeControl.IncrementMs = 0
	q.EnqueueOrMatch(custom)
	if m, _ := q.EnqueueOrMatch(blitzEntry("bob", 1500)); m != nil {
		t.Fatalf("different increments must not match")
	}

	rapid := blitzEntry("carol", 1500)
	rapid.TimeControl = game.TimeControlConfigs[game.Rapid]
	if m, _ := q.EnqueueOrMatch(rapid); m != nil {
		t.Fatalf("different categories must not match")
	}
	sizes := q.Sizes()
	if sizes[game.Blitz] != 2 || sizes[game.Rapid] != 1 {
		t.Fatalf("unexpected sizes %v", sizes)
	}
}

func TestEnqueueErrors(t *testing.T) {
	q, _ := newTestQueue(t)
	bad := blitzEntry("alice", 1500)
	bad.TimeControl.Category = "correspondence"
	if _, err := q.EnqueueOrMatch(bad); !errors.Is(err, ErrInvalidTimeCategory) {
		t.Fatalf("expected ErrInvalidTimeCategory, got %v", err)
	}

	q.EnqueueOrMatch(blitzEntry("alice", 1500))
	if _, err := q.EnqueueOrMatch(blitzEntry("alice", 1500)); !errors.Is(err, ErrAlreadyQueued) {
		t.Fatalf("expected ErrAlreadyQueued, got %v", err)
	}

	rapid := blitzEntry("alice", 1500)
	rapid.TimeControl = game.TimeControlConfigs[game.Rapid]
	if _, err := q.EnqueueOrMatch(rapid); !errors.Is(err, ErrAlreadyQueued) {
		t.Fatalf("other category while queued: expected ErrAlreadyQueued, got %v", err)
	}
	if e, ok := q.Entry("alice"); !ok || e.TimeControl.Category != game.Blitz {
		t.Fatalf("entry should stay in the blitz queue, got %+v", e)
	}
}

func TestCancel(t *testing.T) {
	q, _ := newTestQueue(t)
	q.EnqueueOrMatch(blitzEntry("alice", 1500))
	if !q.Cancel("alice") {
		t.Fatalf("cancel should find the entry")
	}
	if q.Cancel("alice") {
		t.Fatalf("second cancel should report nothing removed")
	}
	if m, _ := q.EnqueueOrMatch(blitzEntry("bob", 1500)); m != nil {
		t.Fatalf("cancelled entry must not be matched")
	}
}

func TestColorAssignmentUsesBothColors(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200 && len(seen) < 2; i++ {
		white, _ := assignColors(Entry{PlayerID: "a"}, Entry{PlayerID: "b"})
		seen[white.PlayerID] = true
	}
	if len(seen) != 2 {
		t.Fatalf("expected both players to be white at some point, got %v", seen)
	}
}

func TestMatchSeat(t *testing.T) {
	m := Match{White: Entry{PlayerID: "w"}, Black: Entry{PlayerID: "b"}}
	if _, c, ok := m.Seat("b"); !ok || c != game.Black {
		t.Fatalf("Seat(b) = %v %v", c, ok)
	}
	if _, _, ok := m.Seat("x"); ok {
		t.Fatalf("unknown player should have no seat")
	}
}

func TestStartStop(t *testing.T) {
	q, _ := newTestQueue(t)
	q.SetInterval(10 * time.Millisecond)
	q.Start()
	q.Stop()
	q.Stop()
}
