package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/signalsfoundry/simvar-client/internal/client"
	"github.com/signalsfoundry/simvar-client/internal/config"
	"github.com/signalsfoundry/simvar-client/internal/logging"
	"github.com/signalsfoundry/simvar-client/internal/transport"
	"github.com/signalsfoundry/simvar-client/model"
)

func TestSimpeerStartupSmoke(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcLis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	wsLis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	cfg := config.Default()
	cfg.Metrics.Address = ""
	cfg.Peer.Version = "2.1.0.7"
	cfg.Peer.Tick = 10 * time.Millisecond
	log := logging.New(logging.Config{Level: "warn", Format: "text"})

	runCtx, stop := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(runCtx, cfg, log, grpcLis, wsLis)
	}()

	dialers := map[string]transport.Dialer{
		"grpc":      transport.GRPCDialer{Target: grpcLis.Addr().String()},
		"websocket": transport.WebSocketDialer{URL: "ws://" + wsLis.Addr().String() + transport.WebSocketPath},
	}
	for name, d := range dialers {
		c := client.New(client.Config{Dialer: d, ConnectTimeout: 2 * time.Second, RequestTimeout: 2 * time.Second})
		if err := c.ConnectServer(ctx, 0); err != nil {
			t.Fatalf("%s: ConnectServer: %v", name, err)
		}
		if got := c.ServerVersion(); got != model.PackVersion(2, 1, 0, 7) {
			t.Fatalf("%s: server version = %s", name, model.FormatVersion(got))
		}
		v, err := c.GetVariable(ctx, model.NewVariableRequest("CG PERCENT", "percent", 0))
		if err != nil {
			t.Fatalf("%s: GetVariable: %v", name, err)
		}
		if v != 25.5 {
			t.Fatalf("%s: CG PERCENT = %v", name, v)
		}
		_ = c.Close()
	}

	stop()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
}

func TestRunRejectsBadVersion(t *testing.T) {
	cfg := config.Default()
	cfg.Peer.Version = "one.two"
	cfg.Metrics.Address = ""
	if err := run(context.Background(), cfg, logging.Noop(), nil, nil); err == nil {
		t.Fatalf("expected version parse error")
	}
}
