// Package peer simulates the far side of the protocol: a simulator with a
// server module that answers commands, evaluates calculator code and streams
// data request values on its frame clock. It serves the gRPC and WebSocket
// transports and in-memory pipes alike.
package peer

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/simvar-client/internal/logging"
	"github.com/signalsfoundry/simvar-client/internal/observability"
	"github.com/signalsfoundry/simvar-client/internal/transport"
	"github.com/signalsfoundry/simvar-client/internal/wire"
	"github.com/signalsfoundry/simvar-client/model"
	"github.com/signalsfoundry/simvar-client/timectrl"
)

const (
	// DefaultTick is the frame period of a peer created without a clock.
	DefaultTick = 25 * time.Millisecond
	// DefaultVisualFrameDivisor is the number of ticks per visual frame.
	DefaultVisualFrameDivisor = 2
)

// DefaultVersion is reported by Ping and Connect when Config.Version is zero.
var DefaultVersion = model.PackVersion(1, 0, 0, 0)

// Config configures a Server.
type Config struct {
	Name    string
	Version uint32
	// DisableServer starts the peer with the server module not running: only
	// the simulator handshake is answered.
	DisableServer bool

	Store *Store
	// Clock drives scheduled deliveries. Nil creates a Manual clock advanced
	// only by Step.
	Clock              *timectrl.TimeController
	VisualFrameDivisor uint64

	Logger  logging.Logger
	Metrics *observability.PeerCollector
}

// Server is a simulated peer. It is safe for concurrent use.
type Server struct {
	cfg     Config
	log     logging.Logger
	metrics *observability.PeerCollector
	store   *Store
	clock   *timectrl.TimeController
	calc    *Calculator
	enabled atomic.Bool

	mu       sync.Mutex
	sessions map[*session]struct{}
}

var _ transport.SessionServer = (*Server)(nil)

// New creates a peer and subscribes it to its clock.
func New(cfg Config) *Server {
	if cfg.Name == "" {
		cfg.Name = "simpeer"
	}
	if cfg.Version == 0 {
		cfg.Version = DefaultVersion
	}
	if cfg.Store == nil {
		cfg.Store = DefaultStore()
	}
	if cfg.Clock == nil {
		cfg.Clock = timectrl.NewTimeController(time.Now(), DefaultTick, timectrl.Manual)
	}
	if cfg.VisualFrameDivisor == 0 {
		cfg.VisualFrameDivisor = DefaultVisualFrameDivisor
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Noop()
	}
	s := &Server{
		cfg:      cfg,
		log:      log.With(logging.String("peer", cfg.Name)),
		metrics:  cfg.Metrics,
		store:    cfg.Store,
		clock:    cfg.Clock,
		calc:     NewCalculator(cfg.Store, cfg.Clock, cfg.Clock.StartTime),
		sessions: make(map[*session]struct{}),
	}
	s.enabled.Store(!cfg.DisableServer)
	cfg.Clock.AddListener(s.onTick)
	return s
}

// Store returns the variable state shared by all sessions.
func (s *Server) Store() *Store { return s.store }

// Clock returns the frame clock.
func (s *Server) Clock() *timectrl.TimeController { return s.clock }

// ServerEnabled reports whether the server module answers commands.
func (s *Server) ServerEnabled() bool { return s.enabled.Load() }

// SetServerEnabled starts or silently stops the server module. While stopped,
// every command except the simulator handshake goes unanswered.
func (s *Server) SetServerEnabled(enabled bool) {
	s.enabled.Store(enabled)
	s.log.Info(context.Background(), "server module toggled", logging.Any("enabled", enabled))
}

// Step advances the clock by one tick and runs all due deliveries before
// returning.
func (s *Server) Step() time.Time { return s.clock.Step() }

// Run drives the clock until ctx is cancelled.
func (s *Server) Run(ctx context.Context) { s.clock.Run(ctx) }

// Sessions returns the number of connected clients.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown stops the server module and tells every server-connected client.
// Their data requests are dropped; the simulator links stay open.
func (s *Server) Shutdown(ctx context.Context, reason string) {
	s.enabled.Store(false)
	for _, sess := range s.snapshot() {
		sess.shutdown(ctx, reason)
	}
	s.log.Info(ctx, "server module shut down", logging.String("reason", reason))
}

// Close drops every client connection, as when the simulator exits.
func (s *Server) Close() error {
	var errs []error
	for _, sess := range s.snapshot() {
		if err := sess.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ServeConn runs one client session until the connection ends or ctx is
// cancelled.
func (s *Server) ServeConn(ctx context.Context, conn transport.Conn) error {
	sess := newSession(ctx, s, conn)
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
	s.metrics.SessionOpened()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	defer func() {
		stop()
		s.mu.Lock()
		delete(s.sessions, sess)
		s.mu.Unlock()
		s.metrics.SessionClosed()
		sess.log.Debug(ctx, "session ended")
	}()

	for {
		f, err := conn.Recv()
		if err != nil {
			if errors.Is(err, wire.ErrInvalidFrame) {
				sess.log.Warn(ctx, "discarding malformed frame", logging.Err(err))
				continue
			}
			if errors.Is(err, io.EOF) || errors.Is(err, transport.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if f.Type != wire.FrameCommand {
			sess.log.Debug(ctx, "ignoring non-command frame", logging.String("type", f.Type.String()))
			continue
		}
		if err := sess.handle(f); err != nil {
			return err
		}
	}
}

func (s *Server) snapshot() []*session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

func (s *Server) onTick(now time.Time, frame uint64) {
	if !s.enabled.Load() {
		return
	}
	visual := frame%s.cfg.VisualFrameDivisor == 0
	for _, sess := range s.snapshot() {
		sess.tick(now, visual)
	}
}
