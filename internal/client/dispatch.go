package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/simvar-client/internal/logging"
	"github.com/signalsfoundry/simvar-client/internal/observability"
	"github.com/signalsfoundry/simvar-client/model"
)

// Category names a class of asynchronous notification.
type Category string

const (
	CategoryClientEvents Category = "client_event"
	CategoryLogRecords   Category = "log_record"
	CategoryDataUpdates  Category = "data_update"
	CategoryListResults  Category = "list_result"
)

// Dispatcher fans notifications out to subscribers. Each subscriber owns a
// bounded queue drained by its own goroutine, so a slow or panicking handler
// only affects itself. Publish waits at most the handler budget for room in a
// full queue and then drops the event for that subscriber.
type Dispatcher struct {
	log     logging.Logger
	metrics *observability.ClientCollector
	buffer  int
	budget  time.Duration

	mu     sync.RWMutex
	subs   map[Category]map[uint64]*subscriber
	closed bool
	nextID atomic.Uint64
}

// Subscription is the handle returned by every subscribe call.
type Subscription struct {
	d    *Dispatcher
	sub  *subscriber
	once sync.Once
}

type subscriber struct {
	id     uint64
	cat    Category
	queue  chan any
	handle func(any)
	done   chan struct{}
}

// NewDispatcher creates a dispatcher. log must not feed back into the
// dispatcher itself.
func NewDispatcher(buffer int, budget time.Duration, log logging.Logger, metrics *observability.ClientCollector) *Dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	if budget <= 0 {
		budget = 50 * time.Millisecond
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Dispatcher{
		log:     log,
		metrics: metrics,
		buffer:  buffer,
		budget:  budget,
		subs:    make(map[Category]map[uint64]*subscriber),
	}
}

// Subscribe registers handle for cat. Handlers of one subscription run
// sequentially in publish order.
func (d *Dispatcher) Subscribe(cat Category, handle func(any)) *Subscription {
	s := &subscriber{
		id:     d.nextID.Add(1),
		cat:    cat,
		queue:  make(chan any, d.buffer),
		handle: handle,
		done:   make(chan struct{}),
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		close(s.done)
		return &Subscription{d: d, sub: s}
	}
	if d.subs[cat] == nil {
		d.subs[cat] = make(map[uint64]*subscriber)
	}
	d.subs[cat][s.id] = s
	d.mu.Unlock()

	go d.run(s)
	return &Subscription{d: d, sub: s}
}

// Unsubscribe stops delivery. Events already queued are discarded. It is safe
// to call from inside the handler and more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.d.mu.Lock()
		if m := s.d.subs[s.sub.cat]; m != nil {
			if _, ok := m[s.sub.id]; ok {
				delete(m, s.sub.id)
				close(s.sub.done)
			}
		}
		s.d.mu.Unlock()
	})
}

// Publish hands ev to every subscriber of cat.
func (d *Dispatcher) Publish(ctx context.Context, cat Category, ev any) {
	d.mu.RLock()
	targets := make([]*subscriber, 0, len(d.subs[cat]))
	for _, s := range d.subs[cat] {
		targets = append(targets, s)
	}
	d.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.queue <- ev:
			continue
		default:
		}
		timer := time.NewTimer(d.budget)
		select {
		case s.queue <- ev:
		case <-s.done:
		case <-timer.C:
			d.metrics.IncDispatchDrops(string(cat))
			d.log.Warn(ctx, "subscriber queue full; event dropped",
				logging.String("category", string(cat)),
				logging.Any("subscriber", s.id),
			)
		}
		timer.Stop()
	}
}

// Subscribers reports the number of subscribers of cat.
func (d *Dispatcher) Subscribers(cat Category) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs[cat])
}

// Close unsubscribes everyone; later subscriptions are inert.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for _, m := range d.subs {
		for id, s := range m {
			delete(m, id)
			close(s.done)
		}
	}
}

func (d *Dispatcher) run(s *subscriber) {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.queue:
			select {
			case <-s.done:
				return
			default:
			}
			d.deliver(s, ev)
		}
	}
}

func (d *Dispatcher) deliver(s *subscriber, ev any) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error(context.Background(), "event handler panicked",
				logging.String("category", string(s.cat)),
				logging.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	s.handle(ev)
}

func subscribeTyped[T any](d *Dispatcher, cat Category, fn func(T)) *Subscription {
	return d.Subscribe(cat, func(v any) {
		if ev, ok := v.(T); ok {
			fn(ev)
		}
	})
}

// OnClientEvent subscribes to session status changes.
func (c *Client) OnClientEvent(fn func(model.ClientEvent)) *Subscription {
	return subscribeTyped(c.dispatcher, CategoryClientEvents, fn)
}

// OnLogRecord subscribes to client and server log records.
func (c *Client) OnLogRecord(fn func(model.LogRecord)) *Subscription {
	return subscribeTyped(c.dispatcher, CategoryLogRecords, fn)
}

// OnDataUpdate subscribes to data request deliveries. The record passed to fn
// is a private copy.
func (c *Client) OnDataUpdate(fn func(model.DataRequestRecord)) *Subscription {
	return subscribeTyped(c.dispatcher, CategoryDataUpdates, fn)
}

// OnListResult subscribes to results of List.
func (c *Client) OnListResult(fn func(model.ListResult)) *Subscription {
	return subscribeTyped(c.dispatcher, CategoryListResults, fn)
}
