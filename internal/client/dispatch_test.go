package client

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/signalsfoundry/simvar-client/internal/observability"
)

func TestDispatcherIsolatesFaultyHandlers(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewClientCollector(reg)
	if err != nil {
		t.Fatalf("NewClientCollector: %v", err)
	}
	d := NewDispatcher(1, 10*time.Millisecond, nil, metrics)
	defer d.Close()

	release := make(chan struct{})
	defer close(release)
	d.Subscribe(CategoryDataUpdates, func(any) { <-release })
	d.Subscribe(CategoryDataUpdates, func(any) { panic("boom") })
	got := make(chan any, 16)
	d.Subscribe(CategoryDataUpdates, func(v any) { got <- v })

	const n = 5
	for i := 0; i < n; i++ {
		d.Publish(context.Background(), CategoryDataUpdates, i)
		// Give the healthy subscriber time to drain its one-slot queue.
		time.Sleep(5 * time.Millisecond)
	}

	for i := 0; i < n; i++ {
		select {
		case v := <-got:
			if v != i {
				t.Fatalf("event %d = %v", i, v)
			}
		case <-time.After(time.Second):
			t.Fatalf("healthy subscriber missed event %d", i)
		}
	}
	if drops := testutil.ToFloat64(metrics.DispatchDrops.WithLabelValues(string(CategoryDataUpdates))); drops < 1 {
		t.Fatalf("expected dropped events for the blocked subscriber, got %v", drops)
	}
}

func TestDispatcherUnsubscribe(t *testing.T) {
	d := NewDispatcher(4, 0, nil, nil)
	defer d.Close()

	var calls atomic.Int32
	sub := d.Subscribe(CategoryClientEvents, func(any) { calls.Add(1) })
	if d.Subscribers(CategoryClientEvents) != 1 {
		t.Fatalf("subscribers = %d", d.Subscribers(CategoryClientEvents))
	}
	sub.Unsubscribe()
	sub.Unsubscribe()
	d.Publish(context.Background(), CategoryClientEvents, "ignored")
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("handler ran after unsubscribe")
	}
	if d.Subscribers(CategoryClientEvents) != 0 {
		t.Fatalf("subscriber still registered")
	}
}

func TestDispatcherCloseMakesSubscriptionsInert(t *testing.T) {
	d := NewDispatcher(4, 0, nil, nil)
	d.Close()
	d.Close()
	sub := d.Subscribe(CategoryLogRecords, func(any) { t.Errorf("handler ran on closed dispatcher") })
	d.Publish(context.Background(), CategoryLogRecords, "x")
	sub.Unsubscribe()
	time.Sleep(10 * time.Millisecond)
}
