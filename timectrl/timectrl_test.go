package timectrl

import (
	"context"
	"testing"
	"time"
)

func TestTimeControllerSetTime(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, time.Second, Manual)

	newNow := start.Add(42 * time.Second)
	tc.SetTime(newNow)

	if got := tc.Now(); !got.Equal(newNow) {
		t.Fatalf("Now() = %v, want %v", got, newNow)
	}
}

func TestTimeControllerStartUpdatesNow(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, 5*time.Millisecond, Accelerated)

	done := tc.Start(15 * time.Millisecond)
	<-done

	expected := start.Add(15 * time.Millisecond)
	if got := tc.Now(); !got.Equal(expected) {
		t.Fatalf("Now() = %v, want %v", got, expected)
	}
	if got := tc.Frame(); got != 3 {
		t.Fatalf("Frame() = %d, want 3", got)
	}
}

func TestStepRunsListenersInOrder(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, 25*time.Millisecond, Manual)

	var frames []uint64
	tc.AddListener(func(_ time.Time, frame uint64) { frames = append(frames, frame) })

	for i := 0; i < 4; i++ {
		tc.Step()
	}
	if len(frames) != 4 || frames[0] != 1 || frames[3] != 4 {
		t.Fatalf("frames = %v, want [1 2 3 4]", frames)
	}
	if got := tc.Now(); !got.Equal(start.Add(100 * time.Millisecond)) {
		t.Fatalf("Now() = %v", got)
	}
}

func TestAfterFiresOnSimulatedTime(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, time.Second, Manual)

	ch := tc.After(2 * time.Second)
	tc.Step()
	select {
	case <-ch:
		t.Fatalf("timer fired after one tick")
	default:
	}
	tc.Step()
	select {
	case at := <-ch:
		if !at.Equal(start.Add(2 * time.Second)) {
			t.Fatalf("fired at %v", at)
		}
	default:
		t.Fatalf("timer did not fire after two ticks")
	}

	if _, ok := <-tc.After(0); !ok {
		t.Fatalf("zero duration timer should fire immediately")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	tc := NewTimeController(time.Now(), time.Millisecond, RealTime)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tc.Run(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	if tc.Frame() == 0 {
		t.Fatalf("expected some ticks in real-time mode")
	}
}
