package client

import (
	"testing"
	"time"

	"github.com/signalsfoundry/simvar-client/model"
)

func TestRegistryGenerations(t *testing.T) {
	r := newRegistry()
	req := model.NewNamedRequest(7, 'A', "PLANE ALTITUDE", "feet", model.DataTypeDouble)

	gen1, settled1 := r.put(req)
	gen2, settled2 := r.put(req)
	if gen1 == gen2 {
		t.Fatalf("re-registration kept generation %d", gen1)
	}
	select {
	case <-settled1:
	default:
		t.Fatalf("replaced entry was not settled")
	}
	if r.len() != 1 {
		t.Fatalf("len = %d, want 1", r.len())
	}
	if r.remove(7, gen1) {
		t.Fatalf("stale generation removed the new entry")
	}

	rec, ok := r.deliver(7, model.EncodeValue(model.KindFloat64, 8, 1500, ""), time.Unix(10, 0))
	if !ok || rec.Deliveries != 1 {
		t.Fatalf("deliver = %v, %v", rec, ok)
	}
	select {
	case <-settled2:
	default:
		t.Fatalf("first delivery did not settle the entry")
	}
	rec.Data[0] ^= 0xFF
	if stored, _ := r.get(7); stored.Data[0] == rec.Data[0] {
		t.Fatalf("delivered record shares memory with the registry")
	}

	if !r.has(7, 0) || !r.has(7, gen2) || r.has(7, gen1) {
		t.Fatalf("has() does not respect generations")
	}
	if _, ok := r.deliver(8, nil, time.Now()); ok {
		t.Fatalf("delivery for unknown id accepted")
	}
	if !r.remove(7, gen2) || r.len() != 0 {
		t.Fatalf("remove by current generation failed")
	}
}

func TestRegistrySnapshotIsSorted(t *testing.T) {
	r := newRegistry()
	for _, id := range []uint32{30, 10, 20} {
		r.put(model.NewNamedRequest(id, 'L', "v", "number", model.DataTypeDouble))
	}
	ids := r.ids()
	if len(ids) != 3 || ids[0] != 10 || ids[1] != 20 || ids[2] != 30 {
		t.Fatalf("ids = %v", ids)
	}
	snap := r.snapshot()
	snap[0].NameOrCode = "changed"
	if rec, _ := r.get(10); rec.NameOrCode != "v" {
		t.Fatalf("snapshot aliases registry state")
	}
	if n := r.clear(); n != 3 || r.len() != 0 {
		t.Fatalf("clear = %d, len = %d", n, r.len())
	}
}

func TestPendingTable(t *testing.T) {
	p := newPendingTable(nil)
	key := pendingKey{cmd: model.CmdPing, token: 1}
	call, err := p.add(key)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := p.add(key); StatusOf(err) != model.StatusInvalidParameter {
		t.Fatalf("duplicate add = %v", err)
	}
	if _, err := p.add(pendingKey{cmd: model.CmdExec, token: 1}); err != nil {
		t.Fatalf("same token on another command: %v", err)
	}
	if !p.complete(key, nil) {
		t.Fatalf("complete failed")
	}
	if p.complete(key, nil) {
		t.Fatalf("completed twice")
	}
	if p.remove(key, call) {
		t.Fatalf("remove after complete should report false")
	}
	if n := p.failAll(ErrDisconnected); n != 1 || p.len() != 0 {
		t.Fatalf("failAll = %d, len = %d", n, p.len())
	}
}
