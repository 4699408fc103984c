package client

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/signalsfoundry/simvar-client/model"
)

type registryEntry struct {
	rec model.DataRequestRecord
	gen uint64
	// settled closes on the first delivery or when the entry leaves the registry.
	settled chan struct{}
	once    sync.Once
}

func (e *registryEntry) settle() { e.once.Do(func() { close(e.settled) }) }

// registry maps request ids to their records. Ids are unique; putting an
// existing id replaces the record.
type registry struct {
	mu      sync.RWMutex
	entries map[uint32]*registryEntry
	gen     uint64
}

func newRegistry() *registry {
	return &registry{entries: make(map[uint32]*registryEntry)}
}

func (r *registry) put(req model.DataRequest) (uint64, <-chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.entries[req.RequestID]; ok {
		old.settle()
	}
	r.gen++
	e := &registryEntry{rec: model.DataRequestRecord{DataRequest: req}, gen: r.gen, settled: make(chan struct{})}
	r.entries[req.RequestID] = e
	return e.gen, e.settled
}

// deliver stores data on the record for id and returns a copy of the result.
func (r *registry) deliver(id uint32, data []byte, at time.Time) (model.DataRequestRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return model.DataRequestRecord{}, false
	}
	e.rec.Data = append(e.rec.Data[:0], data...)
	e.rec.LastUpdate = at
	e.rec.Deliveries++
	e.settle()
	return e.rec.Clone(), true
}

func (r *registry) has(id uint32, gen uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return ok && (gen == 0 || e.gen == gen)
}

func (r *registry) get(id uint32) (model.DataRequestRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return model.DataRequestRecord{}, false
	}
	return e.rec.Clone(), true
}

// remove deletes id. A non-zero gen only removes that generation.
func (r *registry) remove(id uint32, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || (gen != 0 && e.gen != gen) {
		return false
	}
	delete(r.entries, id)
	e.settle()
	return true
}

func (r *registry) clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	for id, e := range r.entries {
		delete(r.entries, id)
		e.settle()
	}
	return n
}

func (r *registry) snapshot() []model.DataRequestRecord {
	r.mu.RLock()
	out := make([]model.DataRequestRecord, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.rec.Clone())
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b model.DataRequestRecord) int {
		return cmp.Compare(a.RequestID, b.RequestID)
	})
	return out
}

func (r *registry) ids() []uint32 {
	r.mu.RLock()
	out := make([]uint32, 0, len(r.entries))
	for id := range r.entries {
		out = append(out, id)
	}
	r.mu.RUnlock()
	slices.Sort(out)
	return out
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
