package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/signalsfoundry/simvar-client/internal/logging"
	"github.com/signalsfoundry/simvar-client/internal/wire"
)

// WebSocketPath is where peers mount WebSocketHandler.
const WebSocketPath = "/session"

const (
	wsWriteTimeout = 10 * time.Second
	wsReadLimit    = 1 << 20
)

// WebSocketDialer connects to a peer's WebSocket endpoint. Frames travel as
// binary messages holding the protobuf encoding of the frame.
type WebSocketDialer struct {
	URL    string
	Header http.Header
	// PingInterval enables keepalive pings; the read side then expects a pong
	// within three intervals. Zero disables keepalive.
	PingInterval time.Duration
	Dialer       *websocket.Dialer
}

func (d WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, _, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", d.URL, err)
	}
	c := newWSConn(ws)
	if d.PingInterval > 0 {
		c.startKeepalive(d.PingInterval)
	}
	return c, nil
}

type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex // serialises frame, ping and close writes
	done    chan struct{}
	once    sync.Once
}

func newWSConn(ws *websocket.Conn) *wsConn {
	ws.SetReadLimit(wsReadLimit)
	return &wsConn{conn: ws, done: make(chan struct{})}
}

func (c *wsConn) startKeepalive(interval time.Duration) {
	pongWait := 3 * interval
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.done:
				return
			case <-ticker.C:
				c.writeMu.Lock()
				_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				err := c.conn.WriteMessage(websocket.PingMessage, nil)
				c.writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()
}

func (c *wsConn) Send(ctx context.Context, f *wire.Frame) error {
	data, err := wire.Marshal(f)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(wsWriteTimeout)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *wsConn) Recv() (*wire.Frame, error) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, err
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		return wire.Unmarshal(data)
	}
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// WebSocketHandler upgrades HTTP requests and serves each connection with srv.
func WebSocketHandler(srv SessionServer, log logging.Logger) http.Handler {
	if log == nil {
		log = logging.Noop()
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn(r.Context(), "websocket upgrade failed", logging.Err(err))
			return
		}
		conn := newWSConn(ws)
		defer conn.Close()
		if err := srv.ServeConn(r.Context(), conn); err != nil && !errors.Is(err, io.EOF) {
			log.Debug(r.Context(), "websocket session ended", logging.Err(err))
		}
	})
}
