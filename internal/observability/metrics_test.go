package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClientCollectorRecordsRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewClientCollector(reg)
	if err != nil {
		t.Fatalf("NewClientCollector: %v", err)
	}

	collector.ObserveRequest("Ping", "OK", 10*time.Millisecond)
	collector.ObserveRequest("Ping", "Timeout", 2*time.Second)
	collector.ObserveRequest("Get", "OK", time.Millisecond)

	if got := testutil.ToFloat64(collector.Requests.WithLabelValues("ping", "OK")); got != 1 {
		t.Fatalf("requests{ping,OK} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Requests.WithLabelValues("ping", "Timeout")); got != 1 {
		t.Fatalf("requests{ping,Timeout} = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "simvar_client_request_duration_seconds", map[string]string{
		"command": "ping",
	}); count != 2 {
		t.Fatalf("request duration sample_count = %d, want 2", count)
	}
}

func TestClientCollectorGaugesAndCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewClientCollector(reg)
	if err != nil {
		t.Fatalf("NewClientCollector: %v", err)
	}
	collector.SetPending(3)
	collector.SetDataRequests(2)
	collector.IncDataUpdates()
	collector.IncStaleResponses()
	collector.IncDispatchDrops("data")
	collector.IncDispatchDrops("data")
	collector.SetSessionState(4)

	if got := testutil.ToFloat64(collector.PendingRequests); got != 3 {
		t.Fatalf("pending = %v, want 3", got)
	}
	if got := testutil.ToFloat64(collector.DispatchDrops.WithLabelValues("data")); got != 2 {
		t.Fatalf("drops = %v, want 2", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"simvar_client_pending_requests 3",
		"simvar_client_data_requests 2",
		"simvar_client_data_updates_total 1",
		"simvar_client_stale_responses_total 1",
		"simvar_client_session_state 4",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output:\n%s", metric, body)
		}
	}
}

func TestCollectorsShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewClientCollector(reg)
	if err != nil {
		t.Fatalf("first NewClientCollector: %v", err)
	}
	second, err := NewClientCollector(reg)
	if err != nil {
		t.Fatalf("second NewClientCollector: %v", err)
	}
	first.IncStaleResponses()
	second.IncStaleResponses()
	if got := testutil.ToFloat64(first.StaleResponses); got != 2 {
		t.Fatalf("shared counter = %v, want 2", got)
	}

	conflict := prometheus.NewGauge(prometheus.GaugeOpts{Name: "simvar_peer_data_frames_sent_total", Help: "conflict"})
	reg2 := prometheus.NewRegistry()
	reg2.MustRegister(conflict)
	if _, err := NewPeerCollector(reg2); err == nil {
		t.Fatalf("expected incompatible registration error")
	}
}

func TestNilCollectorsAreSafe(t *testing.T) {
	var c *ClientCollector
	c.ObserveRequest("ping", "OK", time.Millisecond)
	c.SetPending(1)
	c.IncDispatchDrops("log")
	var p *PeerCollector
	p.SessionOpened()
	p.ObserveCommand("get", "OK")
	p.AddDataFrames(3)
}

func TestPeerStreamInterceptorRecordsCodes(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPeerCollector(reg)
	if err != nil {
		t.Fatalf("NewPeerCollector: %v", err)
	}
	interceptor := collector.StreamServerInterceptor()
	info := &grpc.StreamServerInfo{FullMethod: "/simvar.v1.Peer/Session"}

	_ = interceptor(nil, nil, info, func(any, grpc.ServerStream) error { return io.EOF })
	_ = interceptor(nil, nil, info, func(any, grpc.ServerStream) error {
		return status.Error(codes.Unavailable, "gone")
	})
	_ = interceptor(nil, nil, info, func(any, grpc.ServerStream) error { return context.Canceled })

	if got := testutil.ToFloat64(collector.Streams.WithLabelValues("Peer", "Session", "OK")); got != 2 {
		t.Fatalf("streams{OK} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.Streams.WithLabelValues("Peer", "Session", "Unavailable")); got != 1 {
		t.Fatalf("streams{Unavailable} = %v, want 1", got)
	}

	collector.SessionOpened()
	collector.SessionOpened()
	collector.SessionClosed()
	collector.ObserveCommand("Exec", "OK")
	collector.AddDataFrames(5)
	if got := testutil.ToFloat64(collector.Sessions); got != 1 {
		t.Fatalf("sessions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Commands.WithLabelValues("exec", "OK")); got != 1 {
		t.Fatalf("commands = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.DataFramesSent); got != 5 {
		t.Fatalf("frames = %v, want 5", got)
	}
}

func TestSplitMethod(t *testing.T) {
	cases := map[string][2]string{
		"/simvar.v1.Peer/Session": {"Peer", "Session"},
		"":                        {"unknown", "unknown"},
		"Session":                 {"unknown", "unknown"},
	}
	for in, want := range cases {
		svc, m := SplitMethod(in)
		if svc != want[0] || m != want[1] {
			t.Fatalf("SplitMethod(%q) = %s/%s, want %s/%s", in, svc, m, want[0], want[1])
		}
	}
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	_, span := Tracer().Start(context.Background(), "noop")
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if _, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "bogus"}, nil); err == nil {
		t.Fatalf("expected unsupported exporter error")
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
