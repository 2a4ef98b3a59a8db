package game

import (
	"testing"
	"time"

	"chess-arena/internal/timing"
)

func TestClockChargesMoverAndAddsIncrement(t *testing.T) {
	fake := timing.NewFake(time.Unix(0, 0))
	clock := NewClock(TimeControlConfigs[Blitz], fake, nil)
	clock.Start(White)

	fake.Advance(10 * time.Second)
	if flagged := clock.Switch(White); flagged {
		t.Fatalf("white should not flag after 10s")
	}
	w, b := clock.Remaining()
	if w != 172000 || b != 180000 {
		t.Fatalf("after white's move: white=%d black=%d", w, b)
	}

	fake.Advance(5 * time.Second)
	w, b = clock.Remaining()
	if w != 172000 || b != 175000 {
		t.Fatalf("black running: white=%d black=%d", w, b)
	}
}

func TestClockFlagFall(t *testing.T) {
	fake := timing.NewFake(time.Unix(0, 0))
	var flagged []Color
	clock := NewClock(TimeControlConfigs[Bullet], fake, func(c Color) { flagged = append(flagged, c) })
	clock.Start(White)

	fake.Advance(30 * time.Second)
	clock.Switch(White)
	// white's original deadline passes while black is on move
	fake.Advance(31 * time.Second)
	if len(flagged) != 0 {
		t.Fatalf("stale deadline fired: %v", flagged)
	}
	fake.Advance(30 * time.Second)
	if len(flagged) != 1 || flagged[0] != Black {
		t.Fatalf("expected black to flag once, got %v", flagged)
	}
	if clock.Running() {
		t.Fatalf("clock should stop after flag fall")
	}
	if _, b := clock.Remaining(); b != 0 {
		t.Fatalf("flagged side should show zero, got %d", b)
	}
}

func TestClockStopFreezesTime(t *testing.T) {
	fake := timing.NewFake(time.Unix(0, 0))
	clock := NewClock(TimeControl{Category: Bullet, BaseTimeMs: 1000}, fake, func(Color) { t.Fatalf("stopped clock flagged") })
	clock.Start(White)
	fake.Advance(400 * time.Millisecond)
	clock.Stop()
	fake.Advance(10 * time.Second)
	if w, _ := clock.Remaining(); w != 600 {
		t.Fatalf("white remaining after stop = %d", w)
	}

	clock.Start(White)
	fake.Advance(100 * time.Millisecond)
	if clock.Switch(White) {
		t.Fatalf("white still had time")
	}
	clock.Stop()
	if w, _ := clock.Remaining(); w != 500 {
		t.Fatalf("white remaining = %d", w)
	}
}

func TestUnlimitedClock(t *testing.T) {
	fake := timing.NewFake(time.Unix(0, 0))
	clock := NewClock(TimeControl{Category: Classical}, fake, func(Color) { t.Fatalf("unlimited clock flagged") })
	clock.Start(White)
	fake.Advance(time.Hour)
	if clock.Switch(White) {
		t.Fatalf("unlimited clock flagged on switch")
	}
	if fake.Pending() != 0 {
		t.Fatalf("unlimited clock should not schedule callbacks")
	}
}

func TestTimeControlValidate(t *testing.T) {
	if err := DefaultTimeControl.Validate(); err != nil {
		t.Fatalf("default: %v", err)
	}
	if err := (TimeControl{Category: "hyper", BaseTimeMs: 1000}).Validate(); err == nil {
		t.Fatalf("unknown category should fail")
	}
	if err := (TimeControl{Category: Blitz, BaseTimeMs: -1}).Validate(); err == nil {
		t.Fatalf("negative base should fail")
	}
	if err := (TimeControl{Category: Blitz, BaseTimeMs: 10_000_000_000_000}).Validate(); err == nil {
		t.Fatalf("base time that overflows a Duration should fail")
	}
	if err := (TimeControl{Category: Rapid, BaseTimeMs: 60000, IncrementMs: MaxTimeMs + 1}).Validate(); err == nil {
		t.Fatalf("increment above the cap should fail")
	}
	if err := (TimeControl{Category: Classical, BaseTimeMs: MaxTimeMs, IncrementMs: MaxTimeMs}).Validate(); err != nil {
		t.Fatalf("values at the cap should pass: %v", err)
	}
	if !IsValidTimeCategory("rapid") || IsValidTimeCategory("correspondence") {
		t.Fatalf("IsValidTimeCategory mismatch")
	}
}

func TestClockReportsFlagBeforeCallback(t *testing.T) {
	fake := timing.NewFake(time.Unix(0, 0))
	var sawFlag, switchFlagged bool
	var clock *Clock
	clock = NewClock(TimeControlConfigs[Bullet], fake, func(c Color) {
		// a move racing the callback must still see the fallen flag
		sawFlag = clock.Flagged(c)
		switchFlagged = clock.Switch(c)
	})
	clock.Start(White)
	if clock.Flagged(White) {
		t.Fatalf("fresh clock reported a flag")
	}
	fake.Advance(59 * time.Second)
	if clock.Flagged(White) || clock.Flagged(Black) {
		t.Fatalf("flag reported with time left")
	}
	fake.Advance(time.Second)
	if !sawFlag || !switchFlagged {
		t.Fatalf("stopped clock hid the flag: Flagged=%v Switch=%v", sawFlag, switchFlagged)
	}
	if clock.Flagged(Black) {
		t.Fatalf("black still has time")
	}
}
