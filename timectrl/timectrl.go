package timectrl

import (
	"context"
	"sync"
	"time"
)

// SimClock is an interface for accessing simulation time. Components that
// schedule work against the simulated frame clock depend on it rather than a
// concrete controller.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
	// Frame returns the number of ticks advanced so far.
	Frame() uint64
	// After returns a channel that receives the simulation time once d has
	// elapsed in simulation time.
	After(d time.Duration) <-chan time.Time
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances one Tick per wall-clock Tick.
	RealTime Mode = iota
	// Accelerated advances as quickly as listeners allow.
	Accelerated
	// Manual never advances on its own; callers drive it with Step.
	Manual
)

// Listener is invoked on every tick with the new simulation time and frame.
type Listener func(now time.Time, frame uint64)

type timer struct {
	at time.Time
	ch chan time.Time
}

// TimeController drives simulation time and notifies registered listeners.
// It implements SimClock.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time
	frame       uint64

	listeners []Listener
	timers    []timer

	// stepMu serialises ticks so listeners never run concurrently.
	stepMu sync.Mutex
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Frame returns the number of completed ticks.
func (tc *TimeController) Frame() uint64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.frame
}

// SetTime jumps simulation time without running listeners. Pending After
// timers that are now due fire immediately.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.currentTime = t
	due := tc.takeDueLocked(t)
	tc.mu.Unlock()
	fire(due, t)
}

// After returns a channel that receives the simulation time after d has
// elapsed in simulation time. A non-positive d fires immediately.
func (tc *TimeController) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if d <= 0 {
		ch <- tc.currentTime
		return ch
	}
	tc.timers = append(tc.timers, timer{at: tc.currentTime.Add(d), ch: ch})
	return ch
}

// AddListener registers a callback invoked on every tick.
func (tc *TimeController) AddListener(fn Listener) {
	tc.mu.Lock()
	tc.listeners = append(tc.listeners, fn)
	tc.mu.Unlock()
}

// Step advances simulation time by one Tick, fires due timers and runs all
// listeners on the calling goroutine.
func (tc *TimeController) Step() time.Time {
	tc.stepMu.Lock()
	defer tc.stepMu.Unlock()

	tc.mu.Lock()
	tc.currentTime = tc.currentTime.Add(tc.Tick)
	tc.frame++
	now, frame := tc.currentTime, tc.frame
	due := tc.takeDueLocked(now)
	listeners := append([]Listener(nil), tc.listeners...)
	tc.mu.Unlock()

	fire(due, now)
	for _, fn := range listeners {
		fn(now, frame)
	}
	return now
}

// Run advances time until ctx is cancelled. In Manual mode it only waits.
func (tc *TimeController) Run(ctx context.Context) {
	if tc.Mode == Manual || tc.Tick <= 0 {
		<-ctx.Done()
		return
	}
	if tc.Mode == Accelerated {
		for ctx.Err() == nil {
			tc.Step()
		}
		return
	}
	ticker := time.NewTicker(tc.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tc.Step()
		}
	}
}

// Start runs the controller for the specified simulated duration in a separate
// goroutine (forever when duration is zero). It returns a channel that is
// closed when the controller finishes.
func (tc *TimeController) Start(duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if duration <= 0 {
			tc.Run(ctx)
			return
		}
		ticks := int(duration / tc.Tick)
		var ticker *time.Ticker
		if tc.Mode == RealTime {
			ticker = time.NewTicker(tc.Tick)
			defer ticker.Stop()
		}
		for i := 0; i < ticks; i++ {
			if ticker != nil {
				<-ticker.C
			}
			tc.Step()
		}
	}()
	return done
}

func (tc *TimeController) takeDueLocked(now time.Time) []chan time.Time {
	var due []chan time.Time
	kept := tc.timers[:0]
	for _, t := range tc.timers {
		if !t.at.After(now) {
			due = append(due, t.ch)
			continue
		}
		kept = append(kept, t)
	}
	tc.timers = kept
	return due
}

func fire(chs []chan time.Time, now time.Time) {
	for _, ch := range chs {
		ch <- now
	}
}
