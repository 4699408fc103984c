package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// PeerCollector exposes metrics of the simulated peer.
type PeerCollector struct {
	gatherer prometheus.Gatherer

	Sessions       prometheus.Gauge
	Commands       *prometheus.CounterVec
	DataFramesSent prometheus.Counter
	Streams        *prometheus.CounterVec
}

// NewPeerCollector registers peer metrics against the provided registerer.
func NewPeerCollector(reg prometheus.Registerer) (*PeerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	sessions, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "simvar_peer_sessions",
		Help: "Client sessions currently served by the peer.",
	}), "simvar_peer_sessions")
	if err != nil {
		return nil, err
	}
	commands, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simvar_peer_commands_total",
		Help: "Commands handled by the peer, labeled by command and response status.",
	}, []string{"command", "status"}), "simvar_peer_commands_total")
	if err != nil {
		return nil, err
	}
	frames, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simvar_peer_data_frames_sent_total",
		Help: "Data request value frames sent to clients.",
	}), "simvar_peer_data_frames_sent_total")
	if err != nil {
		return nil, err
	}
	streams, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simvar_peer_grpc_streams_total",
		Help: "Finished gRPC session streams, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "simvar_peer_grpc_streams_total")
	if err != nil {
		return nil, err
	}

	return &PeerCollector{
		gatherer:       gatherer,
		Sessions:       sessions,
		Commands:       commands,
		DataFramesSent: frames,
		Streams:        streams,
	}, nil
}

func (c *PeerCollector) SessionOpened() {
	if c == nil || c.Sessions == nil {
		return
	}
	c.Sessions.Inc()
}

func (c *PeerCollector) SessionClosed() {
	if c == nil || c.Sessions == nil {
		return
	}
	c.Sessions.Dec()
}

// ObserveCommand counts one handled command.
func (c *PeerCollector) ObserveCommand(command, status string) {
	if c == nil || c.Commands == nil {
		return
	}
	c.Commands.WithLabelValues(strings.ToLower(command), status).Inc()
}

func (c *PeerCollector) AddDataFrames(n int) {
	if c == nil || c.DataFramesSent == nil || n <= 0 {
		return
	}
	c.DataFramesSent.Add(float64(n))
}

// StreamServerInterceptor counts finished session streams by status code.
func (c *PeerCollector) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		err := handler(srv, ss)
		if c == nil || c.Streams == nil {
			return err
		}
		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err)
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			code = codes.OK
		}
		c.Streams.WithLabelValues(service, method, code.String()).Inc()
		return err
	}
}

func (c *PeerCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *PeerCollector) Handler() http.Handler {
	return handlerFor(c.Gatherer())
}
