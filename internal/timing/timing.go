// Package timing abstracts one-shot timers so that clocks, grace periods and
// retention windows can be driven manually in tests.
package timing

import (
	"sort"
	"sync"
	"time"
)

// Stopper cancels a pending callback. *time.Timer satisfies it.
type Stopper interface {
	Stop() bool
}

// Scheduler runs deferred one-shot callbacks and reports the current time
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Stopper
}

type system struct{}

func (system) Now() time.Time { return time.Now() }

func (system) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// System is the wall-clock scheduler backed by time.AfterFunc
var System Scheduler = system{}

// Fake is a manually advanced Scheduler. Callbacks run synchronously inside
// Advance, in deadline order, on the caller's goroutine.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	seq     int
	pending []*fakeTimer
}

type fakeTimer struct {
	fake    *Fake
	at      time.Time
	seq     int
	f       func()
	stopped bool
	fired   bool
}

// NewFake starts a fake clock at start
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Stopper {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := &fakeTimer{fake: f, at: f.now.Add(d), seq: f.seq, f: fn}
	f.pending = append(f.pending, t)
	return t
}

// Pending counts callbacks that are neither stopped nor fired
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.pending {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing every callback that comes due
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		sort.SliceStable(f.pending, func(i, j int) bool {
			if f.pending[i].at.Equal(f.pending[j].at) {
				return f.pending[i].seq < f.pending[j].seq
			}
			return f.pending[i].at.Before(f.pending[j].at)
		})
		var next *fakeTimer
		for _, t := range f.pending {
			if !t.stopped && !t.fired && !t.at.After(target) {
				next = t
				break
			}
		}
		if next == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		next.fired = true
		if next.at.After(f.now) {
			f.now = next.at
		}
		f.mu.Unlock()
		next.f()
	}
}

func (t *fakeTimer) Stop() bool {
	t.fake.mu.Lock()
	defer t.fake.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}
