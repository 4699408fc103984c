package observability

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ClientCollector bundles Prometheus metrics for the client protocol engine.
// All methods are safe on a nil receiver so the engine can run unobserved.
type ClientCollector struct {
	gatherer prometheus.Gatherer

	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	PendingRequests prometheus.Gauge
	DataRequests    prometheus.Gauge
	DataUpdates     prometheus.Counter
	StaleResponses  prometheus.Counter
	DispatchDrops   *prometheus.CounterVec
	SessionState    prometheus.Gauge
}

// NewClientCollector registers client metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewClientCollector(reg prometheus.Registerer) (*ClientCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simvar_client_requests_total",
		Help: "Correlated requests completed by the client, labeled by command and result status.",
	}, []string{"command", "status"}), "simvar_client_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "simvar_client_request_duration_seconds",
		Help:    "Time from sending a correlated request until it completed.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"command"}), "simvar_client_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	pending, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "simvar_client_pending_requests",
		Help: "Requests currently awaiting a response.",
	}), "simvar_client_pending_requests")
	if err != nil {
		return nil, err
	}
	dataRequests, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "simvar_client_data_requests",
		Help: "Data requests currently held in the subscription registry.",
	}), "simvar_client_data_requests")
	if err != nil {
		return nil, err
	}
	updates, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simvar_client_data_updates_total",
		Help: "Value deliveries applied to registered data requests.",
	}), "simvar_client_data_updates_total")
	if err != nil {
		return nil, err
	}
	stale, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simvar_client_stale_responses_total",
		Help: "Responses discarded because no request with their key was outstanding.",
	}), "simvar_client_stale_responses_total")
	if err != nil {
		return nil, err
	}
	drops, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simvar_client_dispatch_dropped_total",
		Help: "Events dropped because a subscriber did not keep up, labeled by category.",
	}, []string{"category"}), "simvar_client_dispatch_dropped_total")
	if err != nil {
		return nil, err
	}
	state, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "simvar_client_session_state",
		Help: "Current session state (0 disconnected .. 4 server connected).",
	}), "simvar_client_session_state")
	if err != nil {
		return nil, err
	}

	return &ClientCollector{
		gatherer:        gatherer,
		Requests:        requests,
		RequestDuration: durations,
		PendingRequests: pending,
		DataRequests:    dataRequests,
		DataUpdates:     updates,
		StaleResponses:  stale,
		DispatchDrops:   drops,
		SessionState:    state,
	}, nil
}

// ObserveRequest records one completed correlated request.
func (c *ClientCollector) ObserveRequest(command, status string, d time.Duration) {
	if c == nil {
		return
	}
	command = strings.ToLower(command)
	if c.Requests != nil {
		c.Requests.WithLabelValues(command, status).Inc()
	}
	if c.RequestDuration != nil {
		c.RequestDuration.WithLabelValues(command).Observe(d.Seconds())
	}
}

// SetPending updates the outstanding request gauge.
func (c *ClientCollector) SetPending(n int) {
	if c == nil || c.PendingRequests == nil {
		return
	}
	c.PendingRequests.Set(float64(n))
}

// SetDataRequests updates the registry size gauge.
func (c *ClientCollector) SetDataRequests(n int) {
	if c == nil || c.DataRequests == nil {
		return
	}
	c.DataRequests.Set(float64(n))
}

func (c *ClientCollector) IncDataUpdates() {
	if c == nil || c.DataUpdates == nil {
		return
	}
	c.DataUpdates.Inc()
}

func (c *ClientCollector) IncStaleResponses() {
	if c == nil || c.StaleResponses == nil {
		return
	}
	c.StaleResponses.Inc()
}

func (c *ClientCollector) IncDispatchDrops(category string) {
	if c == nil || c.DispatchDrops == nil {
		return
	}
	c.DispatchDrops.WithLabelValues(category).Inc()
}

func (c *ClientCollector) SetSessionState(state int) {
	if c == nil || c.SessionState == nil {
		return
	}
	c.SessionState.Set(float64(state))
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *ClientCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *ClientCollector) Handler() http.Handler {
	return handlerFor(c.Gatherer())
}

func handlerFor(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}
