package client

import (
	"context"
	"errors"
	"time"

	"github.com/signalsfoundry/simvar-client/internal/logging"
	"github.com/signalsfoundry/simvar-client/internal/transport"
	"github.com/signalsfoundry/simvar-client/internal/wire"
	"github.com/signalsfoundry/simvar-client/model"
)

// receive is the only reader of conn. It completes pending requests, applies
// data deliveries to the registry and publishes notifications. Transport
// failures end the session instead of propagating.
func (c *Client) receive(conn transport.Conn, sessionID string, done chan struct{}) {
	defer close(done)
	ctx := logging.ContextWithSessionID(context.Background(), sessionID)
	for {
		f, err := conn.Recv()
		if err != nil {
			if errors.Is(err, wire.ErrInvalidFrame) {
				c.log.Warn(ctx, "discarding malformed frame", logging.Err(err))
				continue
			}
			c.connectionLost(ctx, conn, err)
			return
		}
		c.handleFrame(ctx, conn, f)
	}
}

func (c *Client) handleFrame(ctx context.Context, conn transport.Conn, f *wire.Frame) {
	switch f.Type {
	case wire.FrameResponse:
		c.handleResponse(ctx, f)
	case wire.FrameData:
		c.handleData(ctx, f)
	case wire.FrameLog:
		ts := f.Time
		if ts.IsZero() {
			ts = time.Now()
		}
		c.dispatcher.Publish(ctx, CategoryLogRecords, model.LogRecord{
			Level:     model.LogLevel(f.UData),
			Message:   f.SData,
			Timestamp: ts,
			Source:    model.LogSourceServer,
		})
	case wire.FrameList:
		c.dispatcher.Publish(ctx, CategoryListResults, model.ListResult{
			ListType: model.LookupItemType(f.UData),
			Result:   f.Status,
			Items:    f.Items,
		})
	case wire.FrameNotice:
		switch f.Command {
		case model.CmdShutdown, model.CmdDisconnect:
			c.serverGone(ctx, conn, f.SData)
		default:
			c.log.Debug(ctx, "ignoring notice", logging.String("command", f.Command.String()))
		}
	default:
		c.log.Debug(ctx, "ignoring frame", logging.String("type", f.Type.String()))
	}
}

func (c *Client) handleResponse(ctx context.Context, f *wire.Frame) {
	if c.pending.complete(pendingKey{cmd: f.Command, token: f.Token}, f) {
		return
	}
	// Asynchronously saved data requests are acknowledged without a waiter;
	// a rejection removes the record.
	if f.Command == model.CmdDataRequest {
		if f.Status != model.StatusOK && c.registry.remove(f.Token, 0) {
			c.metrics.SetDataRequests(c.registry.len())
			c.log.Warn(ctx, "data request rejected by server",
				logging.Uint32("request_id", f.Token),
				logging.String("status", f.Status.String()),
				logging.String("reason", f.SData),
			)
		}
		return
	}
	c.metrics.IncStaleResponses()
	c.log.Debug(ctx, "discarding response with no outstanding request",
		logging.String("command", f.Command.String()),
		logging.Uint32("token", f.Token),
	)
}

func (c *Client) handleData(ctx context.Context, f *wire.Frame) {
	at := f.Time
	if at.IsZero() {
		at = time.Now()
	}
	rec, ok := c.registry.deliver(f.Token, f.Raw, at)
	if !ok {
		c.log.Debug(ctx, "data for unknown request", logging.Uint32("request_id", f.Token))
		return
	}
	c.metrics.IncDataUpdates()
	c.dispatcher.Publish(ctx, CategoryDataUpdates, rec)
}
