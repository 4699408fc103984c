package client

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/signalsfoundry/simvar-client/internal/observability"
	"github.com/signalsfoundry/simvar-client/internal/peer"
	"github.com/signalsfoundry/simvar-client/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentRequestsCorrelate(t *testing.T) {
	srv := startPeer(t, peer.Config{})
	c := connectedClient(t, srv)

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := c.SendCommandWithResponse(context.Background(), model.Command{
				ID:    model.CmdExec,
				UData: uint32(model.CalcDouble),
				SData: fmt.Sprintf("%d 1 +", i),
			}, time.Second)
			if err != nil {
				errs <- err
				return
			}
			if resp.ID != model.CmdAck || resp.FData != float64(i+1) {
				errs <- fmt.Errorf("request %d got %s", i, resp)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestDuplicateOutstandingTokenRejected(t *testing.T) {
	srv := startPeer(t, peer.Config{})
	c := connectedClient(t, srv)
	srv.SetServerEnabled(false)

	first := make(chan error, 1)
	go func() {
		_, err := c.SendCommandWithResponse(context.Background(), model.Command{ID: model.CmdPing, Token: 77}, 300*time.Millisecond)
		first <- err
	}()
	require.Eventually(t, func() bool { return c.pending.len() == 1 }, time.Second, 5*time.Millisecond)

	_, err := c.SendCommandWithResponse(context.Background(), model.Command{ID: model.CmdPing, Token: 77}, 0)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	// The same token on another command is a different request.
	second := make(chan error, 1)
	go func() {
		_, err := c.SendCommandWithResponse(context.Background(), model.Command{ID: model.CmdExec, Token: 77, SData: "1"}, 100*time.Millisecond)
		second <- err
	}()
	assert.ErrorIs(t, <-second, ErrTimeout)
	assert.ErrorIs(t, <-first, ErrTimeout)
	assert.Zero(t, c.pending.len())
}

func TestSendCommandWithResponseValidation(t *testing.T) {
	srv := startPeer(t, peer.Config{})
	c := connectedClient(t, srv)
	for _, id := range []model.CommandID{model.CmdNone, model.CmdAck, model.CmdNak} {
		_, err := c.SendCommandWithResponse(context.Background(), model.Command{ID: id}, 0)
		assert.ErrorIs(t, err, ErrInvalidParameter, id.String())
	}
}

func TestNakCarriesResponse(t *testing.T) {
	srv := startPeer(t, peer.Config{})
	c := connectedClient(t, srv)

	resp, err := c.SendCommandWithResponse(context.Background(), model.Command{ID: model.CmdSendKey, UData: 1}, 0)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, model.CmdNak, resp.ID)

	resp, err = c.SendCommandWithResponse(context.Background(), model.Command{ID: model.CmdSendKey, UData: 65850}, 0)
	require.NoError(t, err)
	assert.Equal(t, model.CmdAck, resp.ID)
	assert.Equal(t, []int32{65850}, srv.Store().KeyEvents())
}

func TestContextCancellationReportsTimeout(t *testing.T) {
	srv := startPeer(t, peer.Config{})
	c := connectedClient(t, srv)
	srv.SetServerEnabled(false)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := c.SendCommandWithResponse(ctx, model.Command{ID: model.CmdPing}, 5*time.Second)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, model.StatusTimeout, StatusOf(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestRequestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewClientCollector(reg)
	require.NoError(t, err)
	srv := startPeer(t, peer.Config{})
	c := connectedClient(t, srv, func(cfg *Config) { cfg.Metrics = metrics })

	_, _, err = c.ExecuteCalculatorCode(context.Background(), "1 1 +", model.CalcDouble, 0)
	require.NoError(t, err)
	_, err = c.Lookup(context.Background(), model.LookupSimulatorVariable, "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Requests.WithLabelValues("exec", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Requests.WithLabelValues("lookup", "NotFound")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.PendingRequests))
	assert.Equal(t, float64(model.ConnectedServer), testutil.ToFloat64(metrics.SessionState))
}
