package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/simvar-client/internal/peer"
	"github.com/signalsfoundry/simvar-client/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localRequest(id uint32, name string, period model.UpdatePeriod, epsilon float32) model.DataRequest {
	req := model.NewNamedRequest(id, 'L', name, "number", model.DataTypeDouble)
	req.Period = period
	req.DeltaEpsilon = epsilon
	return req
}

func value(t *testing.T, rec model.DataRequestRecord) float64 {
	t.Helper()
	v, ok := rec.TryFloat64()
	require.True(t, ok, "record %s is not a double", rec)
	return v
}

func TestSaveDataRequestOnceDeliversExactlyOnce(t *testing.T) {
	srv := startPeer(t, peer.Config{})
	c := connectedClient(t, srv)
	ctx := context.Background()
	require.NoError(t, c.SetOrCreateLocalVariable(ctx, "x", 4))

	require.NoError(t, c.SaveDataRequest(ctx, localRequest(1, "x", model.PeriodOnce, 0)))
	rec, ok := c.DataRequest(1)
	require.True(t, ok)
	assert.Equal(t, uint64(1), rec.Deliveries)
	assert.Equal(t, 4.0, value(t, rec))

	require.NoError(t, c.SetLocalVariable(ctx, "x", 5))
	for i := 0; i < 5; i++ {
		srv.Step()
	}
	// A round trip after the steps flushes anything they might have sent.
	_, err := c.GetVariable(ctx, model.NewLocalVariableRequest("x"))
	require.NoError(t, err)

	rec, ok = c.DataRequest(1)
	require.True(t, ok, "once request stays registered")
	assert.Equal(t, uint64(1), rec.Deliveries)
}

func TestSaveDataRequestDeltaEpsilon(t *testing.T) {
	srv := startPeer(t, peer.Config{})
	c := connectedClient(t, srv)
	ctx := context.Background()
	updates := collect(c.OnDataUpdate)
	require.NoError(t, c.SetOrCreateLocalVariable(ctx, "x", 1.0))

	require.NoError(t, c.SaveDataRequest(ctx, localRequest(2, "x", model.PeriodTick, 0.5)))
	assert.Equal(t, 1.0, value(t, next(t, updates)))

	require.NoError(t, c.SetLocalVariable(ctx, "x", 1.2))
	srv.Step()
	require.NoError(t, c.SetLocalVariable(ctx, "x", 1.9))
	srv.Step()

	assert.Equal(t, 1.9, value(t, next(t, updates)), "1.2 is within epsilon of 1.0")
	rec, _ := c.DataRequest(2)
	assert.Equal(t, uint64(2), rec.Deliveries)
}

func TestSaveDataRequestNeverWaitsForAckOnly(t *testing.T) {
	srv := startPeer(t, peer.Config{})
	c := connectedClient(t, srv)
	ctx := context.Background()
	updates := collect(c.OnDataUpdate)

	req := model.NewCalculatedRequest(3, model.CalcString, "(A:TITLE,string)", 32, model.PeriodNever, 0, 0)
	require.NoError(t, c.SaveDataRequest(ctx, req))
	rec, ok := c.DataRequest(3)
	require.True(t, ok)
	assert.Zero(t, rec.Deliveries)

	require.NoError(t, c.UpdateDataRequest(ctx, 3))
	got := next(t, updates)
	s, ok := got.TryString()
	require.True(t, ok)
	assert.Equal(t, "Generic Trainer", s)

	assert.ErrorIs(t, c.UpdateDataRequest(ctx, 99), ErrNotFound)
}

func TestSaveDataRequestReplacesSameID(t *testing.T) {
	srv := startPeer(t, peer.Config{})
	c := connectedClient(t, srv)
	ctx := context.Background()

	first := model.NewNamedRequest(4, 'A', "PLANE ALTITUDE", "feet", model.DataTypeDouble)
	second := model.NewNamedRequest(4, 'A', "AIRSPEED INDICATED", "knots", model.DataTypeDouble)
	require.NoError(t, c.SaveDataRequest(ctx, first))
	require.NoError(t, c.SaveDataRequest(ctx, second))

	recs := c.DataRequests()
	require.Len(t, recs, 1)
	assert.Equal(t, "AIRSPEED INDICATED", recs[0].NameOrCode)
	assert.Equal(t, 110.0, value(t, recs[0]))
}

func TestSaveDataRequestRejections(t *testing.T) {
	srv := startPeer(t, peer.Config{})
	c := connectedClient(t, srv)
	ctx := context.Background()

	err := c.SaveDataRequest(ctx, model.NewNamedRequest(5, 'A', "NOT A VARIABLE", "number", model.DataTypeDouble))
	assert.ErrorIs(t, err, ErrNotFound)
	_, ok := c.DataRequest(5)
	assert.False(t, ok, "rejected request must not stay registered")

	err = c.SaveDataRequest(ctx, model.NewNamedRequest(6, 'A', "", "number", model.DataTypeDouble))
	assert.ErrorIs(t, err, ErrInvalidParameter)
	err = c.SaveDataRequest(ctx, model.NewNamedRequest(7, 'A', "PLANE ALTITUDE", "feet", 2))
	assert.ErrorIs(t, err, ErrInvalidParameter)
	assert.Empty(t, c.DataRequestIDs())
}

func TestSaveDataRequestAsyncRejectionRemovesRecord(t *testing.T) {
	srv := startPeer(t, peer.Config{})
	c := connectedClient(t, srv)
	ctx := context.Background()
	updates := collect(c.OnDataUpdate)

	require.NoError(t, c.SaveDataRequestAsync(ctx, model.NewNamedRequest(8, 'A', "NOT A VARIABLE", "number", model.DataTypeDouble)))
	require.NoError(t, c.SaveDataRequestAsync(ctx, model.NewNamedRequest(9, 'A', "CG PERCENT", "percent", model.DataTypeFloat)))

	rec := next(t, updates)
	assert.Equal(t, uint32(9), rec.RequestID)
	f, ok := rec.TryFloat32()
	require.True(t, ok)
	assert.Equal(t, float32(25.5), f)

	require.Eventually(t, func() bool {
		_, ok := c.DataRequest(8)
		return !ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint32{9}, c.DataRequestIDs())
}

func TestRemoveDataRequestIsIdempotent(t *testing.T) {
	srv := startPeer(t, peer.Config{})
	c := connectedClient(t, srv)
	ctx := context.Background()

	require.NoError(t, c.SaveDataRequest(ctx, model.NewNamedRequest(10, 'A', "CG PERCENT", "percent", model.DataTypeDouble)))
	require.NoError(t, c.RemoveDataRequest(ctx, 10))
	require.NoError(t, c.RemoveDataRequest(ctx, 10))
	require.NoError(t, c.RemoveDataRequest(ctx, 12345))
	assert.Empty(t, c.DataRequests())
	assert.ErrorIs(t, c.UpdateDataRequest(ctx, 10), ErrNotFound)

	// Removal works without any session too.
	require.NoError(t, c.DisconnectSimulator(ctx))
	require.NoError(t, c.RemoveDataRequest(ctx, 10))
}

func TestPausedRequestsStopDelivering(t *testing.T) {
	srv := startPeer(t, peer.Config{})
	c := connectedClient(t, srv)
	ctx := context.Background()
	require.NoError(t, c.SetOrCreateLocalVariable(ctx, "p", 0))
	require.NoError(t, c.SaveDataRequest(ctx, localRequest(11, "p", model.PeriodTick, -1)))

	require.NoError(t, c.SetDataRequestsPaused(ctx, true))
	// Round trip so the pause is applied before stepping.
	_, err := c.GetVariable(ctx, model.NewLocalVariableRequest("p"))
	require.NoError(t, err)
	srv.Step()
	srv.Step()
	_, err = c.GetVariable(ctx, model.NewLocalVariableRequest("p"))
	require.NoError(t, err)
	rec, _ := c.DataRequest(11)
	assert.Equal(t, uint64(1), rec.Deliveries)

	require.NoError(t, c.SetDataRequestsPaused(ctx, false))
	_, err = c.GetVariable(ctx, model.NewLocalVariableRequest("p"))
	require.NoError(t, err)
	srv.Step()
	require.Eventually(t, func() bool {
		rec, _ := c.DataRequest(11)
		return rec.Deliveries == 2
	}, time.Second, 5*time.Millisecond)
}

func TestDisconnectFailsOutstandingRequests(t *testing.T) {
	srv := startPeer(t, peer.Config{})
	c := connectedClient(t, srv)
	ctx := context.Background()
	require.NoError(t, c.SaveDataRequest(ctx, model.NewNamedRequest(13, 'A', "CG PERCENT", "percent", model.DataTypeDouble)))
	srv.SetServerEnabled(false)

	const n = 5
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.SendCommandWithResponse(ctx, model.Command{ID: model.CmdPing}, 5*time.Second)
			errs <- err
		}()
	}
	require.Eventually(t, func() bool { return c.pending.len() == n }, time.Second, 5*time.Millisecond)

	start := time.Now()
	require.NoError(t, c.DisconnectServer(ctx))
	wg.Wait()
	close(errs)
	assert.Less(t, time.Since(start), time.Second)
	for err := range errs {
		assert.ErrorIs(t, err, ErrDisconnected)
	}
	assert.Empty(t, c.DataRequests())
	assert.Equal(t, model.ConnectedSim, c.State())
}

func TestSaveDataRequestDuplicateOutstandingKeepsRecord(t *testing.T) {
	srv := startPeer(t, peer.Config{})
	c := connectedClient(t, srv)
	ctx := context.Background()
	srv.SetServerEnabled(false)

	first := model.NewNamedRequest(1, 'A', "CG PERCENT", "percent", model.DataTypeDouble)
	firstErr := make(chan error, 1)
	go func() { firstErr <- c.SaveDataRequest(ctx, first) }()
	require.Eventually(t, func() bool { return c.pending.len() == 1 }, time.Second, 5*time.Millisecond)

	second := model.NewNamedRequest(1, 'A', "PLANE ALTITUDE", "feet", model.DataTypeDouble)
	err := c.SaveDataRequest(ctx, second)
	require.ErrorIs(t, err, ErrInvalidParameter)

	rec, ok := c.DataRequest(1)
	require.True(t, ok, "rejected duplicate removed the record in flight")
	assert.Equal(t, "CG PERCENT", rec.NameOrCode)

	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, ErrTimeout)
	case <-time.After(2 * time.Second):
		t.Fatalf("first save did not time out")
	}
	rec, ok = c.DataRequest(1)
	require.True(t, ok, "timed out save keeps its record")
	assert.Equal(t, "CG PERCENT", rec.NameOrCode)
	assert.Equal(t, 0, c.pending.len())
}
