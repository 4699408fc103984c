// Command simpeer runs a simulated server module that speaks the session
// protocol over gRPC and WebSocket.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/signalsfoundry/simvar-client/internal/config"
	"github.com/signalsfoundry/simvar-client/internal/logging"
	"github.com/signalsfoundry/simvar-client/internal/observability"
	"github.com/signalsfoundry/simvar-client/internal/peer"
	"github.com/signalsfoundry/simvar-client/internal/transport"
	"github.com/signalsfoundry/simvar-client/model"
	"github.com/signalsfoundry/simvar-client/timectrl"
	"google.golang.org/grpc"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	grpcAddr := flag.String("grpc-addr", "", "TCP address for the gRPC session service (overrides config)")
	wsAddr := flag.String("ws-addr", "", "HTTP address for the WebSocket session endpoint (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (overrides config)")
	disabled := flag.Bool("server-disabled", false, "start with the server module disabled; only Hello is answered")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err == nil {
		err = cfg.ApplyEnv()
	}
	if err != nil {
		logging.NewFromEnv().Error(context.Background(), "invalid configuration", logging.Err(err))
		os.Exit(1)
	}
	if *grpcAddr != "" {
		cfg.Peer.GRPCAddress = *grpcAddr
	}
	if *wsAddr != "" {
		cfg.Peer.WebSocketAddress = *wsAddr
	}
	if *metricsAddr != "" {
		cfg.Metrics.Address = *metricsAddr
	}
	if *disabled {
		cfg.Peer.ServerEnabled = false
	}

	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, nil, nil); err != nil {
		log.Error(context.Background(), "simpeer exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves the peer until ctx is done. Nil listeners are opened from cfg;
// an empty address disables that endpoint.
func run(ctx context.Context, cfg *config.Config, log logging.Logger, grpcLis, wsLis net.Listener) error {
	tracingShutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	}, log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), tracingShutdown, log)

	version, err := model.ParseVersion(cfg.Peer.Version)
	if err != nil {
		return err
	}

	collector, err := observability.NewPeerCollector(nil)
	if err != nil {
		return err
	}
	metricsSrv := serveMetrics(cfg.Metrics.Address, collector, log)

	clock := timectrl.NewTimeController(time.Now(), cfg.Peer.Tick, timectrl.RealTime)
	srv := peer.New(peer.Config{
		Version:       version,
		DisableServer: !cfg.Peer.ServerEnabled,
		Clock:         clock,
		Logger:        log,
		Metrics:       collector,
	})
	go srv.Run(ctx)

	if grpcLis == nil && cfg.Peer.GRPCAddress != "" {
		if grpcLis, err = net.Listen("tcp", cfg.Peer.GRPCAddress); err != nil {
			return err
		}
	}
	if wsLis == nil && cfg.Peer.WebSocketAddress != "" {
		if wsLis, err = net.Listen("tcp", cfg.Peer.WebSocketAddress); err != nil {
			if grpcLis != nil {
				_ = grpcLis.Close()
			}
			return err
		}
	}

	errCh := make(chan error, 2)

	var grpcSrv *grpc.Server
	if grpcLis != nil {
		grpcSrv = transport.NewGRPCServer(srv, grpc.ChainStreamInterceptor(collector.StreamServerInterceptor()))
		log.Info(ctx, "serving gRPC sessions", logging.String("addr", grpcLis.Addr().String()))
		go func() {
			if err := grpcSrv.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- err
			}
		}()
	}

	var wsSrv *http.Server
	if wsLis != nil {
		mux := http.NewServeMux()
		mux.Handle(transport.WebSocketPath, transport.WebSocketHandler(srv, log))
		wsSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		log.Info(ctx, "serving WebSocket sessions",
			logging.String("addr", wsLis.Addr().String()),
			logging.String("path", transport.WebSocketPath),
		)
		go func() {
			if err := wsSrv.Serve(wsLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	log.Info(context.Background(), "shutting down simpeer")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv.Shutdown(shutdownCtx, "simulator shutting down")
	_ = srv.Close()
	if grpcSrv != nil {
		grpcSrv.Stop()
	}
	if wsSrv != nil {
		_ = wsSrv.Shutdown(shutdownCtx)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return err
}

func serveMetrics(addr string, collector *observability.PeerCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
