package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/signalsfoundry/simvar-client/internal/observability"
	"github.com/signalsfoundry/simvar-client/internal/transport"
	"github.com/signalsfoundry/simvar-client/internal/wire"
	"github.com/signalsfoundry/simvar-client/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SendCommand sends cmd to the server module without waiting for a reply.
func (c *Client) SendCommand(ctx context.Context, cmd model.Command) error {
	if cmd.ID == model.CmdNone {
		return invalidParam("command id is required")
	}
	conn, err := c.connFor(model.ConnectedServer)
	if err != nil {
		return err
	}
	return c.send(ctx, conn, wire.NewCommand(cmd))
}

// SendCommandWithResponse sends cmd and waits for the matching Ack or Nak. A
// zero cmd.Token is replaced by the next engine token. A Nak returns the
// response together with ErrRejected. A zero timeout uses the default.
func (c *Client) SendCommandWithResponse(ctx context.Context, cmd model.Command, timeout time.Duration) (model.Command, error) {
	switch cmd.ID {
	case model.CmdNone, model.CmdAck, model.CmdNak:
		return model.Command{}, invalidParam("%s cannot be sent as a request", cmd.ID)
	}
	conn, err := c.connFor(model.ConnectedServer)
	if err != nil {
		return model.Command{}, err
	}
	if cmd.Token == 0 {
		cmd.Token = c.nextToken()
	}
	resp, err := c.call(ctx, conn, wire.NewCommand(cmd), timeout)
	if resp == nil {
		return model.Command{}, err
	}
	return resp.AsCommand(), err
}

// ExecuteCalculatorCode runs code on the server module and returns its numeric
// and string results. With CalcNone the code is run for its side effects.
func (c *Client) ExecuteCalculatorCode(ctx context.Context, code string, resultType model.CalcResultType, timeout time.Duration) (float64, string, error) {
	if strings.TrimSpace(code) == "" {
		return 0, "", invalidParam("calculator code is empty")
	}
	if resultType < model.CalcNone || resultType > model.CalcFormatted {
		return 0, "", invalidParam("result type %d", int(resultType))
	}
	conn, err := c.connFor(model.ConnectedServer)
	if err != nil {
		return 0, "", err
	}
	req := wire.NewCommand(model.Command{
		ID:    model.CmdExec,
		Token: c.nextToken(),
		UData: uint32(resultType),
		SData: code,
	})
	resp, err := c.call(ctx, conn, req, timeout)
	if err != nil {
		return 0, "", err
	}
	return resp.FData, resp.SData, nil
}

func (c *Client) send(ctx context.Context, conn transport.Conn, f *wire.Frame) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	if err := conn.Send(ctx, f); err != nil {
		return fmt.Errorf("send %s: %w: %w", f.Command, ErrNotConnected, err)
	}
	return nil
}

// call sends a correlated request and waits for its response, the timeout,
// ctx or connection teardown, whichever comes first. A response with a non-OK
// status is returned together with the matching error.
func (c *Client) call(ctx context.Context, conn transport.Conn, f *wire.Frame, timeout time.Duration) (*wire.Frame, error) {
	key := pendingKey{cmd: f.Command, token: f.Token}
	call, err := c.pending.add(key)
	if err != nil {
		return nil, err
	}
	return c.await(ctx, conn, f, timeout, key, call)
}

// await sends f for a waiter already reserved under key and waits for the
// outcome.
func (c *Client) await(ctx context.Context, conn transport.Conn, f *wire.Frame, timeout time.Duration, key pendingKey, call *pendingCall) (*wire.Frame, error) {
	if timeout <= 0 {
		timeout = c.cfg.RequestTimeout
	}
	ctx, span := observability.Tracer().Start(ctx, "simvar."+f.Command.String(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("simvar.command", f.Command.String()),
			attribute.Int64("simvar.token", int64(f.Token)),
		),
	)
	defer span.End()

	finish := func(status model.Status) {
		c.metrics.ObserveRequest(f.Command.String(), status.String(), time.Since(call.issued))
		span.SetAttributes(attribute.String("simvar.status", status.String()))
		if status != model.StatusOK {
			span.SetStatus(codes.Error, status.String())
		}
	}
	result := func(res callResult) (*wire.Frame, error) {
		if res.err != nil {
			finish(StatusOf(res.err))
			return nil, fmt.Errorf("%s: %w", f.Command, res.err)
		}
		if err := errorFor(res.frame.Status); err != nil {
			finish(res.frame.Status)
			if res.frame.SData != "" {
				return res.frame, fmt.Errorf("%s: %w: %s", f.Command, err, res.frame.SData)
			}
			return res.frame, fmt.Errorf("%s: %w", f.Command, err)
		}
		finish(model.StatusOK)
		return res.frame, nil
	}

	if err := c.send(ctx, conn, f); err != nil {
		if !c.pending.remove(key, call) {
			return result(<-call.done)
		}
		finish(model.StatusNotConnected)
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-call.done:
		return result(res)
	case <-timer.C:
	case <-ctx.Done():
	}
	if !c.pending.remove(key, call) {
		// Completed concurrently with the deadline.
		return result(<-call.done)
	}
	finish(model.StatusTimeout)
	return nil, fmt.Errorf("%s after %s: %w", f.Command, timeout, ErrTimeout)
}
