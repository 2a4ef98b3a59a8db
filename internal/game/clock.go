package game

import (
	"sync"
	"time"

	"chess-arena/internal/timing"
)

// Clock tracks the remaining time of both sides of one game. Only the side to
// move is charged; flag fall is reported once through the onFlag callback.
type Clock struct {
	control   TimeControl
	sched     timing.Scheduler
	onFlag    func(Color)
	mu        sync.Mutex
	remaining [2]time.Duration
	active    Color
	running   bool
	turnStart time.Time
	timer     timing.Stopper
	gen       int
}

// NewClock creates a stopped clock with the base time on both sides.
// onFlag is called without the clock's lock held.
func NewClock(tc TimeControl, sched timing.Scheduler, onFlag func(Color)) *Clock {
	if sched == nil {
		sched = timing.System
	}
	c := &Clock{control: tc, sched: sched, onFlag: onFlag}
	c.remaining[White] = tc.Base()
	c.remaining[Black] = tc.Base()
	return c
}

// Start runs the clock for the active side
func (c *Clock) Start(active Color) {
	if c.control.IsUnlimited() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = active
	c.running = true
	c.turnStart = c.sched.Now()
	c.arm()
}

// Switch charges the mover for the time spent, adds the increment and hands the
// clock to the opponent. flagged is true when the mover had already run out.
func (c *Clock) Switch(mover Color) (flagged bool) {
	if c.control.IsUnlimited() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return c.remaining[mover] <= 0
	}

	now := c.sched.Now()
	c.remaining[mover] -= now.Sub(c.turnStart)
	if c.remaining[mover] <= 0 {
		c.remaining[mover] = 0
		c.disarm()
		c.running = false
		return true
	}
	c.remaining[mover] += c.control.Increment()
	c.active = mover.Opposite()
	c.turnStart = now
	c.arm()
	return false
}

// Stop freezes the clock, charging the side to move for its elapsed time
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.remaining[c.active] -= c.sched.Now().Sub(c.turnStart)
	if c.remaining[c.active] < 0 {
		c.remaining[c.active] = 0
	}
	c.running = false
	c.disarm()
}

// Remaining returns both sides' time in milliseconds, live for the running side
func (c *Clock) Remaining() (whiteMs, blackMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rem := c.remaining
	if c.running {
		rem[c.active] -= c.sched.Now().Sub(c.turnStart)
	}
	for i := range rem {
		if rem[i] < 0 {
			rem[i] = 0
		}
	}
	return rem[White].Milliseconds(), rem[Black].Milliseconds()
}

// Flagged reports whether side has run out of time. It turns true as soon as
// the time is spent, before the onFlag callback has been delivered.
func (c *Clock) Flagged(side Color) bool {
	if c.control.IsUnlimited() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rem := c.remaining[side]
	if c.running && c.active == side {
		rem -= c.sched.Now().Sub(c.turnStart)
	}
	return rem <= 0
}

// Running reports whether a side's time is being charged
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Clock) arm() {
	c.disarm()
	c.gen++
	gen, side := c.gen, c.active
	c.timer = c.sched.AfterFunc(c.remaining[side], func() { c.fire(gen, side) })
}

func (c *Clock) disarm() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Clock) fire(gen int, side Color) {
	c.mu.Lock()
	if !c.running || gen != c.gen || c.active != side {
		c.mu.Unlock()
		return
	}
	c.remaining[side] = 0
	c.running = false
	c.timer = nil
	c.mu.Unlock()

	if c.onFlag != nil {
		c.onFlag(side)
	}
}
