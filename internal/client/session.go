package client

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/signalsfoundry/simvar-client/internal/logging"
	"github.com/signalsfoundry/simvar-client/internal/transport"
	"github.com/signalsfoundry/simvar-client/internal/wire"
	"github.com/signalsfoundry/simvar-client/model"
)

// ConnectSimulator opens the link to the simulator with dialer (the configured
// dialer when nil) and completes the hello handshake. It returns immediately
// when already connected. A zero timeout uses the configured connect timeout.
func (c *Client) ConnectSimulator(ctx context.Context, timeout time.Duration, dialer transport.Dialer) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()
	return c.connectSimulatorLocked(ctx, timeout, dialer)
}

func (c *Client) connectSimulatorLocked(ctx context.Context, timeout time.Duration, dialer transport.Dialer) error {
	if c.State().SimConnected() {
		return nil
	}
	if dialer == nil {
		dialer = c.cfg.Dialer
	}
	if dialer == nil {
		return invalidParam("no dialer configured")
	}
	if timeout <= 0 {
		timeout = c.cfg.ConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c.mu.Lock()
	c.state = model.ConnectingSim
	c.mu.Unlock()
	c.metrics.SetSessionState(int(model.ConnectingSim))
	c.emit(ctx, model.EventSimConnecting, "connecting to simulator")

	conn, err := dialer.Dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.state = model.Disconnected
		c.mu.Unlock()
		c.metrics.SetSessionState(int(model.Disconnected))
		c.log.Warn(ctx, "simulator dial failed", logging.Err(err))
		c.emit(ctx, model.EventSimDisconnected, "simulator connection failed: "+err.Error())
		if ctx.Err() != nil {
			return fmt.Errorf("connect simulator: %w", ErrTimeout)
		}
		return fmt.Errorf("connect simulator: %w: %w", ErrNotConnected, err)
	}

	sessionID := uuid.NewString()
	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.recvDone = done
	c.sessionID = sessionID
	c.mu.Unlock()
	go c.receive(conn, sessionID, done)

	hello := &wire.Frame{
		Type:    wire.FrameCommand,
		Token:   c.nextToken(),
		Command: model.CmdHello,
		SData:   c.cfg.ClientID,
		Session: sessionID,
	}
	resp, err := c.call(ctx, conn, hello, timeout)
	if err != nil {
		c.log.Warn(ctx, "simulator handshake failed", logging.Err(err))
		c.closeConn(ctx, conn, "simulator handshake failed")
		if StatusOf(err) == model.StatusTimeout {
			return fmt.Errorf("connect simulator: %w", ErrTimeout)
		}
		return fmt.Errorf("connect simulator: %w: %w", ErrNotConnected, err)
	}
	if !c.setState(conn, model.ConnectedSim) {
		return fmt.Errorf("connect simulator: %w", ErrDisconnected)
	}
	c.log.Info(ctx, "connected to simulator",
		logging.String("session_id", sessionID),
		logging.String("peer", resp.SData),
	)
	c.emit(ctx, model.EventSimConnected, "connected to simulator")
	return nil
}

// ConnectServer connects the simulator first when needed and then opens a
// session with the server module. It returns immediately when already
// connected. A zero timeout uses the configured connect timeout.
func (c *Client) ConnectServer(ctx context.Context, timeout time.Duration) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	if c.State() == model.ConnectedServer {
		return nil
	}
	if err := c.connectSimulatorLocked(ctx, 0, nil); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = c.cfg.ConnectTimeout
	}
	conn, err := c.connFor(model.ConnectedSim)
	if err != nil {
		return err
	}
	c.setState(conn, model.ConnectingServer)
	c.emit(ctx, model.EventServerConnecting, "connecting to server")

	req := &wire.Frame{
		Type:    wire.FrameCommand,
		Token:   c.nextToken(),
		Command: model.CmdConnect,
		SData:   c.cfg.ClientID,
	}
	resp, err := c.call(ctx, conn, req, timeout)
	if err != nil {
		if c.setState(conn, model.ConnectedSim) {
			c.emit(ctx, model.EventServerDisconnected, "server connection failed: "+err.Error())
		}
		c.log.Warn(ctx, "server connect failed", logging.Err(err))
		return fmt.Errorf("connect server: %w", err)
	}
	if !c.setState(conn, model.ConnectedServer) {
		return fmt.Errorf("connect server: %w", ErrDisconnected)
	}
	c.mu.Lock()
	c.serverVersion = resp.UData
	c.mu.Unlock()
	c.log.Info(ctx, "connected to server", logging.String("version", model.FormatVersion(resp.UData)))
	c.emit(ctx, model.EventServerConnected, "connected to server v"+model.FormatVersion(resp.UData))

	if lvl := model.LogLevel(c.serverLogLevel.Load()); lvl != model.LogNone {
		if err := c.sendLogLevel(ctx, conn, lvl, model.FacilityRemote); err != nil {
			c.log.Warn(ctx, "could not restore server log level", logging.Err(err))
		}
	}
	return nil
}

// PingServer asks the server module for its version. It connects the
// simulator when needed and returns 0 when the server does not answer, which
// is the normal result when the server module is not running.
func (c *Client) PingServer(ctx context.Context) uint32 {
	c.connectMu.Lock()
	err := c.connectSimulatorLocked(ctx, 0, nil)
	c.connectMu.Unlock()
	if err != nil {
		return 0
	}
	conn, err := c.connFor(model.ConnectedSim)
	if err != nil {
		return 0
	}
	req := &wire.Frame{Type: wire.FrameCommand, Token: c.nextToken(), Command: model.CmdPing}
	resp, err := c.call(ctx, conn, req, 0)
	if err != nil {
		c.log.Info(ctx, "server did not answer ping", logging.Err(err))
		return 0
	}
	c.mu.Lock()
	c.serverVersion = resp.UData
	c.mu.Unlock()
	return resp.UData
}

// DisconnectServer ends the server module session. Data requests are removed
// on a best-effort basis and cleared locally; outstanding requests complete
// with ErrDisconnected. The simulator link stays up.
func (c *Client) DisconnectServer(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()
	return c.disconnectServerLocked(ctx)
}

func (c *Client) disconnectServerLocked(ctx context.Context) error {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if conn == nil || (state != model.ConnectedServer && state != model.ConnectingServer) {
		return nil
	}

	for _, id := range c.registry.ids() {
		rm := wire.NewCommand(model.Command{ID: model.CmdRemove, UData: id})
		if err := c.send(ctx, conn, rm); err != nil {
			c.log.Debug(ctx, "best-effort remove failed", logging.Uint32("request_id", id), logging.Err(err))
			break
		}
	}
	bye := wire.NewCommand(model.Command{ID: model.CmdDisconnect, SData: c.cfg.ClientID})
	if err := c.send(ctx, conn, bye); err != nil {
		c.log.Debug(ctx, "disconnect command not sent", logging.Err(err))
	}

	c.setState(conn, model.ConnectedSim)
	c.failOutstanding(ctx)
	c.log.Info(ctx, "disconnected from server")
	c.emit(ctx, model.EventServerDisconnected, "disconnected from server")
	return nil
}

// DisconnectSimulator ends the server session if needed and closes the
// transport. The session always ends Disconnected; close errors are only
// logged.
func (c *Client) DisconnectSimulator(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	if err := c.disconnectServerLocked(ctx); err != nil {
		c.log.Warn(ctx, "server disconnect failed", logging.Err(err))
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.mu.Lock()
		c.state = model.Disconnected
		c.mu.Unlock()
		c.metrics.SetSessionState(int(model.Disconnected))
		return nil
	}
	c.emit(ctx, model.EventSimDisconnecting, "disconnecting from simulator")
	c.closeConn(ctx, conn, "disconnected from simulator")
	return nil
}

// closeConn retires conn if it is still active: the session becomes
// Disconnected, the transport is closed, the receive goroutine is awaited and
// all outstanding state is failed.
func (c *Client) closeConn(ctx context.Context, conn transport.Conn, reason string) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	done := c.recvDone
	c.conn = nil
	c.recvDone = nil
	c.state = model.Disconnected
	c.mu.Unlock()
	c.metrics.SetSessionState(int(model.Disconnected))

	if err := conn.Close(); err != nil {
		c.log.Warn(ctx, "transport close failed", logging.Err(err))
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(c.cfg.ConnectTimeout):
			c.log.Warn(ctx, "receive loop did not stop after close")
		}
	}
	c.failOutstanding(ctx)
	c.emit(ctx, model.EventSimDisconnected, reason)
}

// connectionLost handles a transport failure reported by the receive loop.
func (c *Client) connectionLost(ctx context.Context, conn transport.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.recvDone = nil
	c.state = model.Disconnected
	c.mu.Unlock()
	c.metrics.SetSessionState(int(model.Disconnected))

	if cerr := conn.Close(); cerr != nil {
		c.log.Warn(ctx, "transport close failed", logging.Err(cerr))
	}
	n := c.failOutstanding(ctx)
	c.log.Warn(ctx, "connection to simulator lost", logging.Err(err), logging.Int("failed_requests", n))
	c.emit(ctx, model.EventConnectionLost, "connection lost: "+err.Error())
	c.emit(ctx, model.EventSimDisconnected, "simulator disconnected")
}

// serverGone handles a shutdown notice from the server module.
func (c *Client) serverGone(ctx context.Context, conn transport.Conn, msg string) {
	c.mu.Lock()
	active := c.conn == conn && (c.state == model.ConnectedServer || c.state == model.ConnectingServer)
	c.mu.Unlock()
	if !active {
		return
	}
	c.setState(conn, model.ConnectedSim)
	c.failOutstanding(ctx)
	if msg == "" {
		msg = "server shut down"
	}
	c.log.Warn(ctx, "server module disconnected", logging.String("reason", msg))
	c.emit(ctx, model.EventServerDisconnected, msg)
}

// failOutstanding completes all pending requests with ErrDisconnected and
// clears the registry. It returns the number of failed requests.
func (c *Client) failOutstanding(ctx context.Context) int {
	n := c.pending.failAll(ErrDisconnected)
	if cleared := c.registry.clear(); cleared > 0 {
		c.log.Debug(ctx, "data requests cleared", logging.Int("count", cleared))
	}
	c.metrics.SetDataRequests(0)
	return n
}
