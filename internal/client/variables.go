package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/signalsfoundry/simvar-client/internal/wire"
	"github.com/signalsfoundry/simvar-client/model"
)

// Lookup resolves name to a numeric id in the itemType namespace. ErrNotFound
// is the normal result for unknown names.
func (c *Client) Lookup(ctx context.Context, itemType model.LookupItemType, name string) (int32, error) {
	if itemType <= model.LookupNone || itemType > model.LookupDataRequest {
		return -1, invalidParam("lookup type %d", int(itemType))
	}
	if strings.TrimSpace(name) == "" {
		return -1, invalidParam("lookup name is empty")
	}
	resp, err := c.request(ctx, model.Command{ID: model.CmdLookup, UData: uint32(itemType), SData: name}, nil)
	if err != nil {
		return -1, err
	}
	return int32(resp.FData), nil
}

// GetVariable reads the current value of the variable addressed by req.
func (c *Client) GetVariable(ctx context.Context, req model.VariableRequest) (float64, error) {
	cmd := model.CmdGet
	if req.CreateLocal {
		cmd = model.CmdGetCreate
	}
	return c.variableCommand(ctx, cmd, req, 0)
}

// GetOrCreateLocalVariable reads local variable name, creating it with
// defaultValue when it does not exist yet.
func (c *Client) GetOrCreateLocalVariable(ctx context.Context, name string, defaultValue float64) (float64, error) {
	req := model.NewLocalVariableRequest(name)
	req.CreateLocal = true
	return c.variableCommand(ctx, model.CmdGetCreate, req, defaultValue)
}

// SetVariable writes value to the variable addressed by req.
func (c *Client) SetVariable(ctx context.Context, req model.VariableRequest, value float64) error {
	cmd := model.CmdSet
	if req.CreateLocal {
		cmd = model.CmdSetCreate
	}
	_, err := c.variableCommand(ctx, cmd, req, value)
	return err
}

// SetLocalVariable writes an existing local variable.
func (c *Client) SetLocalVariable(ctx context.Context, name string, value float64) error {
	_, err := c.variableCommand(ctx, model.CmdSet, model.NewLocalVariableRequest(name), value)
	return err
}

// SetOrCreateLocalVariable writes local variable name, creating it first if
// needed.
func (c *Client) SetOrCreateLocalVariable(ctx context.Context, name string, value float64) error {
	req := model.NewLocalVariableRequest(name)
	req.CreateLocal = true
	_, err := c.variableCommand(ctx, model.CmdSetCreate, req, value)
	return err
}

func (c *Client) variableCommand(ctx context.Context, cmd model.CommandID, req model.VariableRequest, value float64) (float64, error) {
	if err := req.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	resp, err := c.request(ctx, model.Command{ID: cmd, FData: value}, &req)
	if err != nil {
		return 0, err
	}
	return resp.FData, nil
}

// request runs a correlated server command with the default timeout.
func (c *Client) request(ctx context.Context, cmd model.Command, variable *model.VariableRequest) (*wire.Frame, error) {
	conn, err := c.connFor(model.ConnectedServer)
	if err != nil {
		return nil, err
	}
	cmd.Token = c.nextToken()
	f := wire.NewCommand(cmd)
	f.Variable = variable
	return c.call(ctx, conn, f, 0)
}
