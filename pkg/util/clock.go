package util

import (
	"sort"
	"sync"
	"time"
)

// Clock abstracts timers so interval driven code can be tested deterministically.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
	NewTicker(d time.Duration) Ticker
}

// Timer is the subset of *time.Timer used by callers.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// Ticker is the subset of *time.Ticker used by callers.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock returns a Clock backed by the time package.
func RealClock() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return NowUTC() }

func (realClock) NewTimer(d time.Duration) Timer { return realTimer{time.NewTimer(d)} }

func (realClock) NewTicker(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }

type realTimer struct{ t *time.Timer }

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// FakeClock is a manually advanced Clock. Fired events are delivered synchronously:
// Advance blocks until the owner of a timer or ticker receives each event or stops it.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	seq     int
	waiters []*fakeWaiter
}

// NewFakeClock starts a fake clock at the given instant.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

type fakeWaiter struct {
	clock    *FakeClock
	seq      int
	when     time.Time
	period   time.Duration
	c        chan time.Time
	stopped  chan struct{}
	stopOnce sync.Once
}

func (w *fakeWaiter) C() <-chan time.Time { return w.c }

func (w *fakeWaiter) Stop() bool {
	active := w.clock.remove(w)
	w.stopOnce.Do(func() { close(w.stopped) })
	return active
}

type fakeTicker struct{ *fakeWaiter }

func (t fakeTicker) Stop() { t.fakeWaiter.Stop() }

// Now implements Clock.
func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// NewTimer implements Clock.
func (f *FakeClock) NewTimer(d time.Duration) Timer {
	return f.add(d, 0)
}

// NewTicker implements Clock.
func (f *FakeClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("util: non-positive interval for NewTicker")
	}
	return fakeTicker{f.add(d, d)}
}

// Pending reports how many timers and tickers are still armed.
func (f *FakeClock) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waiters)
}

// Advance moves the clock forward, firing due events in time order.
// Events due at the same instant fire in creation order.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		next := f.nextDueLocked(target)
		if next == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		f.now = next.when
		fired := next.when
		if next.period > 0 {
			next.when = next.when.Add(next.period)
		} else {
			f.removeLocked(next)
		}
		f.mu.Unlock()

		select {
		case next.c <- fired:
		case <-next.stopped:
		}
	}
}

func (f *FakeClock) add(d time.Duration, period time.Duration) *fakeWaiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	w := &fakeWaiter{
		clock:   f,
		seq:     f.seq,
		when:    f.now.Add(d),
		period:  period,
		c:       make(chan time.Time),
		stopped: make(chan struct{}),
	}
	f.waiters = append(f.waiters, w)
	return w
}

func (f *FakeClock) nextDueLocked(target time.Time) *fakeWaiter {
	if len(f.waiters) == 0 {
		return nil
	}
	sort.SliceStable(f.waiters, func(i, j int) bool {
		if f.waiters[i].when.Equal(f.waiters[j].when) {
			return f.waiters[i].seq < f.waiters[j].seq
		}
		return f.waiters[i].when.Before(f.waiters[j].when)
	})
	if f.waiters[0].when.After(target) {
		return nil
	}
	return f.waiters[0]
}

func (f *FakeClock) remove(w *fakeWaiter) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.removeLocked(w)
}

func (f *FakeClock) removeLocked(w *fakeWaiter) bool {
	for i, candidate := range f.waiters {
		if candidate == w {
			f.waiters = append(f.waiters[:i], f.waiters[i+1:]...)
			return true
		}
	}
	return false
}

var (
	_ Clock = realClock{}
	_ Clock = (*FakeClock)(nil)
)
