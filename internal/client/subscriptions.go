package client

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/simvar-client/internal/logging"
	"github.com/signalsfoundry/simvar-client/internal/wire"
	"github.com/signalsfoundry/simvar-client/model"
)

// SaveDataRequest registers req and waits for the server's acknowledgement and
// then for the first value, both within the request timeout. A record with the
// same id is replaced. A rejection removes the new record. When the ack
// arrives but no value does in time, the record stays registered and
// ErrTimeout is returned.
func (c *Client) SaveDataRequest(ctx context.Context, req model.DataRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	conn, err := c.connFor(model.ConnectedServer)
	if err != nil {
		return err
	}
	// Reserve the pending slot before the registry changes: a duplicate
	// outstanding save must leave the record in flight untouched.
	f := dataRequestFrame(req)
	key := pendingKey{cmd: f.Command, token: f.Token}
	call, err := c.pending.add(key)
	if err != nil {
		return fmt.Errorf("save data request %d: %w", req.RequestID, err)
	}
	deadline := time.Now().Add(c.cfg.RequestTimeout)
	gen, settled := c.registry.put(req)
	c.metrics.SetDataRequests(c.registry.len())

	if _, err := c.await(ctx, conn, f, c.cfg.RequestTimeout, key, call); err != nil {
		if StatusOf(err) != model.StatusTimeout && c.registry.remove(req.RequestID, gen) {
			c.metrics.SetDataRequests(c.registry.len())
		}
		return fmt.Errorf("save data request %d: %w", req.RequestID, err)
	}
	if req.Period == model.PeriodNever {
		return nil
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case <-settled:
	case <-timer.C:
		return fmt.Errorf("first value for data request %d: %w", req.RequestID, ErrTimeout)
	case <-ctx.Done():
		return fmt.Errorf("first value for data request %d: %w", req.RequestID, ErrTimeout)
	}
	if c.registry.has(req.RequestID, gen) {
		return nil
	}
	if !c.IsServerConnected() {
		return fmt.Errorf("save data request %d: %w", req.RequestID, ErrDisconnected)
	}
	return fmt.Errorf("save data request %d: superseded or removed: %w", req.RequestID, ErrRejected)
}

// SaveDataRequestAsync registers req and transmits it without waiting for any
// reply. A later rejection removes the record and is logged.
func (c *Client) SaveDataRequestAsync(ctx context.Context, req model.DataRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	conn, err := c.connFor(model.ConnectedServer)
	if err != nil {
		return err
	}
	gen, _ := c.registry.put(req)
	c.metrics.SetDataRequests(c.registry.len())
	if err := c.send(ctx, conn, dataRequestFrame(req)); err != nil {
		c.registry.remove(req.RequestID, gen)
		c.metrics.SetDataRequests(c.registry.len())
		return err
	}
	return nil
}

// UpdateDataRequest asks the server to deliver the current value of a
// registered request out of schedule.
func (c *Client) UpdateDataRequest(ctx context.Context, requestID uint32) error {
	if !c.registry.has(requestID, 0) {
		return fmt.Errorf("data request %d: %w", requestID, ErrNotFound)
	}
	conn, err := c.connFor(model.ConnectedServer)
	if err != nil {
		return err
	}
	return c.send(ctx, conn, wire.NewCommand(model.Command{ID: model.CmdUpdate, UData: requestID}))
}

// RemoveDataRequest forgets requestID locally and tells the server on a
// best-effort basis. Unknown ids are not an error.
func (c *Client) RemoveDataRequest(ctx context.Context, requestID uint32) error {
	if c.registry.remove(requestID, 0) {
		c.metrics.SetDataRequests(c.registry.len())
	}
	conn, err := c.connFor(model.ConnectedServer)
	if err != nil {
		return nil
	}
	if err := c.send(ctx, conn, wire.NewCommand(model.Command{ID: model.CmdRemove, UData: requestID})); err != nil {
		c.log.Debug(ctx, "remove not sent", logging.Uint32("request_id", requestID), logging.Err(err))
	}
	return nil
}

// DataRequest returns a copy of the record for requestID.
func (c *Client) DataRequest(requestID uint32) (model.DataRequestRecord, bool) {
	return c.registry.get(requestID)
}

// DataRequests returns a point-in-time copy of all records sorted by id. The
// server may drop a registration without telling the client; this list is
// what the client believes is active and is never reconciled with the server.
func (c *Client) DataRequests() []model.DataRequestRecord {
	return c.registry.snapshot()
}

// DataRequestIDs returns the registered ids in ascending order.
func (c *Client) DataRequestIDs() []uint32 {
	return c.registry.ids()
}

// SetDataRequestsPaused suspends or resumes all scheduled deliveries for this
// client on the server. Registrations are kept.
func (c *Client) SetDataRequestsPaused(ctx context.Context, paused bool) error {
	var resume uint32 = 1
	if paused {
		resume = 0
	}
	return c.SendCommand(ctx, model.Command{ID: model.CmdSubscribe, UData: resume})
}

func dataRequestFrame(req model.DataRequest) *wire.Frame {
	return &wire.Frame{
		Type:    wire.FrameCommand,
		Token:   req.RequestID,
		Command: model.CmdDataRequest,
		Request: &req,
	}
}
