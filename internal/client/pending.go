package client

import (
	"sync"
	"time"

	"github.com/signalsfoundry/simvar-client/internal/observability"
	"github.com/signalsfoundry/simvar-client/internal/wire"
	"github.com/signalsfoundry/simvar-client/model"
)

// pendingKey correlates a response with its request. Tokens are scoped per
// command so the same token may be outstanding for different commands.
type pendingKey struct {
	cmd   model.CommandID
	token uint32
}

type callResult struct {
	frame *wire.Frame
	err   error
}

type pendingCall struct {
	issued time.Time
	done   chan callResult
}

type pendingTable struct {
	mu      sync.Mutex
	calls   map[pendingKey]*pendingCall
	metrics *observability.ClientCollector
}

func newPendingTable(metrics *observability.ClientCollector) *pendingTable {
	return &pendingTable{calls: make(map[pendingKey]*pendingCall), metrics: metrics}
}

// add registers a waiter. Reusing an outstanding key is a caller error.
func (p *pendingTable) add(key pendingKey) (*pendingCall, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.calls[key]; ok {
		return nil, invalidParam("%s token %d is already outstanding", key.cmd, key.token)
	}
	call := &pendingCall{issued: time.Now(), done: make(chan callResult, 1)}
	p.calls[key] = call
	p.metrics.SetPending(len(p.calls))
	return call, nil
}

// complete hands f to the waiter for key. It reports false when nothing is
// outstanding under key.
func (p *pendingTable) complete(key pendingKey, f *wire.Frame) bool {
	p.mu.Lock()
	call, ok := p.calls[key]
	if ok {
		delete(p.calls, key)
		p.metrics.SetPending(len(p.calls))
	}
	p.mu.Unlock()
	if ok {
		call.done <- callResult{frame: f}
	}
	return ok
}

// remove drops call if it is still registered under key.
func (p *pendingTable) remove(key pendingKey, call *pendingCall) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.calls[key]; ok && cur == call {
		delete(p.calls, key)
		p.metrics.SetPending(len(p.calls))
		return true
	}
	return false
}

// failAll completes every waiter with err and returns how many there were.
func (p *pendingTable) failAll(err error) int {
	p.mu.Lock()
	calls := p.calls
	p.calls = make(map[pendingKey]*pendingCall)
	p.metrics.SetPending(0)
	p.mu.Unlock()
	for _, call := range calls {
		call.done <- callResult{err: err}
	}
	return len(calls)
}

func (p *pendingTable) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
