// Package transport provides message-oriented connections between a client
// and a simulator peer. The client engine only depends on Conn; the concrete
// link may be a gRPC stream, a WebSocket or an in-process pipe.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/signalsfoundry/simvar-client/internal/wire"
)

// ErrClosed is returned by Send on a closed connection.
var ErrClosed = errors.New("transport: connection closed")

// Conn is a bidirectional frame link. Send may be called concurrently; Recv
// must only be called from one goroutine. Recv returns io.EOF (or a wrapped
// transport error) once the link is gone.
type Conn interface {
	Send(ctx context.Context, f *wire.Frame) error
	Recv() (*wire.Frame, error)
	Close() error
}

// Dialer opens a Conn to a peer.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }

// SessionServer serves one peer session over conn until the client goes away
// or ctx ends.
type SessionServer interface {
	ServeConn(ctx context.Context, conn Conn) error
}

// NewDialer builds the dialer for a named transport: "grpc" dials a gRPC
// target, "websocket" (or "ws") a ws:// or wss:// URL. A bare host:port is
// turned into ws://host:port/session for WebSocket.
func NewDialer(kind, address string, pingInterval time.Duration) (Dialer, error) {
	switch strings.ToLower(kind) {
	case "grpc", "":
		return GRPCDialer{Target: address}, nil
	case "websocket", "ws":
		url := address
		if !strings.Contains(url, "://") {
			url = "ws://" + url + WebSocketPath
		}
		return WebSocketDialer{URL: url, PingInterval: pingInterval}, nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", kind)
	}
}
