// Package client implements the protocol engine used to talk to a simulator
// and the server module running inside it: session management, correlated
// commands, direct variable access, data request subscriptions and event
// fan-out.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/simvar-client/internal/logging"
	"github.com/signalsfoundry/simvar-client/internal/observability"
	"github.com/signalsfoundry/simvar-client/internal/transport"
	"github.com/signalsfoundry/simvar-client/model"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultRequestTimeout = 2 * time.Second
	DefaultConnectTimeout = 5 * time.Second
	DefaultDispatchBuffer = 64
	DefaultHandlerBudget  = 50 * time.Millisecond
)

// Config configures a Client.
type Config struct {
	// ClientID identifies this client to the server module.
	ClientID string
	// Dialer is used by ConnectSimulator when no dialer is passed explicitly.
	Dialer transport.Dialer

	RequestTimeout time.Duration
	ConnectTimeout time.Duration
	DispatchBuffer int
	HandlerBudget  time.Duration

	// ServerLogLevel is sent to the server module after every server connect.
	// LogNone leaves the server's remote logging off.
	ServerLogLevel model.LogLevel

	Logger  logging.Logger
	Metrics *observability.ClientCollector
}

// Client is safe for concurrent use. All blocking operations take a context
// which bounds them in addition to their timeout.
type Client struct {
	cfg        Config
	baseLog    logging.Logger
	log        logging.Logger
	metrics    *observability.ClientCollector
	dispatcher *Dispatcher
	pending    *pendingTable
	registry   *registry

	// connectMu serialises connect and disconnect sequences.
	connectMu sync.Mutex

	mu            sync.Mutex
	state         model.SessionState
	conn          transport.Conn
	recvDone      chan struct{}
	sessionID     string
	serverVersion uint32

	tokens          atomic.Uint32
	serverLogLevel  atomic.Int32
	clientRemoteLog atomic.Int32
}

// New creates a disconnected client.
func New(cfg Config) *Client {
	if cfg.ClientID == "" {
		cfg.ClientID = "simvar-client"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.DispatchBuffer <= 0 {
		cfg.DispatchBuffer = DefaultDispatchBuffer
	}
	if cfg.HandlerBudget <= 0 {
		cfg.HandlerBudget = DefaultHandlerBudget
	}
	base := cfg.Logger
	if base == nil {
		base = logging.Noop()
	}
	base = base.With(logging.String("client_id", cfg.ClientID))

	c := &Client{
		cfg:      cfg,
		baseLog:  base,
		metrics:  cfg.Metrics,
		pending:  newPendingTable(cfg.Metrics),
		registry: newRegistry(),
	}
	c.dispatcher = NewDispatcher(cfg.DispatchBuffer, cfg.HandlerBudget, base, cfg.Metrics)
	c.log = logging.WithHook(base, c.publishClientLog)
	c.serverLogLevel.Store(int32(cfg.ServerLogLevel))
	c.clientRemoteLog.Store(int32(model.LogNone))
	c.metrics.SetSessionState(int(model.Disconnected))
	return c
}

// ClientID returns the configured client id.
func (c *Client) ClientID() string { return c.cfg.ClientID }

// State returns the current session state.
func (c *Client) State() model.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsSimConnected reports whether the simulator link is up.
func (c *Client) IsSimConnected() bool { return c.State().SimConnected() }

// IsServerConnected reports whether the server module session is up.
func (c *Client) IsServerConnected() bool { return c.State() == model.ConnectedServer }

// ServerVersion is the packed version reported by the last successful ping or
// server connect, or 0.
func (c *Client) ServerVersion() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverVersion
}

// SessionID is the tag sent with the most recent simulator handshake.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Close tears down every connection and stops event delivery. The client
// cannot deliver events afterwards.
func (c *Client) Close() error {
	err := c.DisconnectSimulator(context.Background())
	c.dispatcher.Close()
	return err
}

// setState changes the state only while conn is still the active connection.
func (c *Client) setState(conn transport.Conn, s model.SessionState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return false
	}
	c.state = s
	c.metrics.SetSessionState(int(s))
	return true
}

// connFor returns the active connection if the session is at least in state need.
func (c *Client) connFor(need model.SessionState) (transport.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.state < need {
		return nil, fmt.Errorf("%w: session is %s", ErrNotConnected, c.state)
	}
	return c.conn, nil
}

func (c *Client) emit(ctx context.Context, typ model.ClientEventType, msg string) {
	ev := model.ClientEvent{Type: typ, Status: c.State(), Message: msg}
	c.baseLog.Debug(ctx, "client event",
		logging.String("event", typ.String()),
		logging.String("state", ev.Status.String()),
		logging.String("message", msg),
	)
	c.dispatcher.Publish(ctx, CategoryClientEvents, ev)
}

func (c *Client) nextToken() uint32 {
	for {
		if t := c.tokens.Add(1); t != 0 {
			return t
		}
	}
}

// publishClientLog turns the client's own log lines into LogRecord events
// when remote client logging is enabled.
func (c *Client) publishClientLog(ctx context.Context, level slog.Level, msg string, fields []logging.Field) {
	rec := logLevelFromSlog(level)
	if !model.LogLevel(c.clientRemoteLog.Load()).Allows(rec) {
		return
	}
	var b strings.Builder
	b.WriteString(msg)
	for _, f := range fields {
		fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
	}
	c.dispatcher.Publish(ctx, CategoryLogRecords, model.LogRecord{
		Level:     rec,
		Message:   b.String(),
		Timestamp: time.Now(),
		Source:    model.LogSourceClient,
	})
}

func logLevelFromSlog(l slog.Level) model.LogLevel {
	switch {
	case l >= slog.LevelError:
		return model.LogError
	case l >= slog.LevelWarn:
		return model.LogWarning
	case l >= slog.LevelInfo:
		return model.LogInfo
	default:
		return model.LogDebug
	}
}

func slogLevelFromLog(l model.LogLevel) slog.Level {
	switch l {
	case model.LogNone:
		return logging.LevelOff
	case model.LogCritical, model.LogError:
		return slog.LevelError
	case model.LogWarning:
		return slog.LevelWarn
	case model.LogInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
