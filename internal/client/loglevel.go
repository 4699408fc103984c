package client

import (
	"context"

	"github.com/signalsfoundry/simvar-client/internal/logging"
	"github.com/signalsfoundry/simvar-client/internal/transport"
	"github.com/signalsfoundry/simvar-client/internal/wire"
	"github.com/signalsfoundry/simvar-client/model"
)

// List asks the server for the items of itemType. The result is delivered to
// OnListResult subscribers.
func (c *Client) List(ctx context.Context, itemType model.LookupItemType) error {
	switch itemType {
	case model.LookupLocalVariable, model.LookupSimulatorVariable, model.LookupTokenVariable,
		model.LookupKeyEventID, model.LookupDataRequest:
	default:
		return invalidParam("cannot list %s", itemType)
	}
	return c.SendCommand(ctx, model.Command{ID: model.CmdList, UData: uint32(itemType)})
}

// SetLogLevel changes a log threshold.
//
// For the client source, FacilityConsole sets the level of the configured
// logger and FacilityRemote sets which client log lines are published as
// LogRecord events. For the server source the level is remembered, sent now
// when a server session is up and re-sent after every server connect.
func (c *Client) SetLogLevel(ctx context.Context, level model.LogLevel, facility model.LogFacility, source model.LogSource) error {
	if level < model.LogNone || level > model.LogTrace {
		return invalidParam("log level %d", int(level))
	}
	if facility == model.FacilityNone || facility&^model.FacilityAll != 0 {
		return invalidParam("log facility %#x", int(facility))
	}

	if source == model.LogSourceClient {
		if facility&model.FacilityConsole != 0 {
			if l, ok := c.baseLog.(logging.Leveled); ok {
				l.SetLevel(slogLevelFromLog(level))
			}
		}
		if facility&model.FacilityRemote != 0 {
			c.clientRemoteLog.Store(int32(level))
		}
		return nil
	}

	if facility&model.FacilityRemote != 0 {
		c.serverLogLevel.Store(int32(level))
	}
	conn, err := c.connFor(model.ConnectedServer)
	if err != nil {
		// Applied on the next server connect.
		return nil
	}
	return c.sendLogLevel(ctx, conn, level, facility)
}

func (c *Client) sendLogLevel(ctx context.Context, conn transport.Conn, level model.LogLevel, facility model.LogFacility) error {
	return c.send(ctx, conn, wire.NewCommand(model.Command{
		ID:    model.CmdLogLevel,
		UData: uint32(level),
		FData: float64(facility),
	}))
}
