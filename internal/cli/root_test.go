package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/signalsfoundry/simvar-client/internal/client"
	"github.com/signalsfoundry/simvar-client/internal/peer"
	"github.com/signalsfoundry/simvar-client/internal/transport"
	"github.com/signalsfoundry/simvar-client/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"ping", "get", "set", "calc", "lookup", "list", "watch", "demo"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, "subcommand %s", name)
		assert.Equal(t, name, sub.Name())
	}
}

func TestRootCommandGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"config", "transport", "address", "client-id", "timeout", "format", "verbose"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "flag %s", name)
	}
	assert.Equal(t, "text", cmd.PersistentFlags().Lookup("format").DefValue)
}

func TestRootCommandRejectsUnknownFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"ping", "--format", "xml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRootCommandRejectsUnknownTransport(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"ping", "--transport", "serial"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client.transport")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("boom")))
	assert.Equal(t, int(model.StatusNotFound), ExitCode(client.ErrNotFound))
}

// run executes args against an in-process peer.
func run(t *testing.T, srv *peer.Server, args ...string) (string, error) {
	t.Helper()
	opts := &RootOptions{
		dialer: transport.PipeDialer(func(c transport.Conn) { _ = srv.ServeConn(context.Background(), c) }),
	}
	cmd := newRootCommand(opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--timeout", "1s"))
	err := cmd.Execute()
	return out.String(), err
}

func newPeer(t *testing.T) *peer.Server {
	t.Helper()
	srv := peer.New(peer.Config{})
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func TestPingCommand(t *testing.T) {
	out, err := run(t, newPeer(t), "ping")
	require.NoError(t, err)
	assert.Equal(t, "server version 1.0.0.0\n", out)
}

func TestPingCommandServerDisabled(t *testing.T) {
	srv := peer.New(peer.Config{DisableServer: true})
	t.Cleanup(func() { _ = srv.Close() })

	_, err := run(t, srv, "ping")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not answer")
}

func TestGetCommand(t *testing.T) {
	out, err := run(t, newPeer(t), "get", "CG PERCENT", "--unit", "percent")
	require.NoError(t, err)
	assert.Equal(t, "A:CG PERCENT:0,percent = 25.5\n", out)
}

func TestSetThenGetLocal(t *testing.T) {
	srv := newPeer(t)

	out, err := run(t, srv, "set", "--type", "L", "flaps_handle", "2", "--create")
	require.NoError(t, err)
	assert.Equal(t, "L:flaps_handle set to 2\n", out)

	out, err = run(t, srv, "get", "--type", "L", "flaps_handle", "--format", "json")
	require.NoError(t, err)
	var got struct {
		Variable string  `json:"variable"`
		Value    float64 `json:"value"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "L:flaps_handle", got.Variable)
	assert.Equal(t, 2.0, got.Value)
}

func TestSetCommandRejectsBadValue(t *testing.T) {
	_, err := run(t, newPeer(t), "set", "X", "not-a-number")
	require.Error(t, err)
}

func TestCalcCommand(t *testing.T) {
	out, err := run(t, newPeer(t), "calc", "2 3 + 4 *")
	require.NoError(t, err)
	assert.Equal(t, "20\n", out)

	out, err = run(t, newPeer(t), "calc", "'trainer' 1 +", "--result", "string")
	require.NoError(t, err)
	assert.Equal(t, "trainer1\n", out)

	out, err = run(t, newPeer(t), "calc", "(A:TITLE,string)", "--result", "string")
	require.NoError(t, err)
	assert.Equal(t, "Generic Trainer\n", out)
}

func TestLookupCommand(t *testing.T) {
	srv := newPeer(t)

	out, err := run(t, srv, "lookup", "key", "ATC_MENU_OPEN")
	require.NoError(t, err)
	assert.Contains(t, out, "= 65850")

	_, err = run(t, srv, "lookup", "sim", "NO SUCH VARIABLE")
	require.Error(t, err)
	assert.Equal(t, int(model.StatusNotFound), ExitCode(err))

	_, err = run(t, srv, "lookup", "planet", "x")
	require.Error(t, err)
}

func TestListCommand(t *testing.T) {
	out, err := run(t, newPeer(t), "list", "key")
	require.NoError(t, err)
	assert.Contains(t, out, "TOGGLE_NAV_LIGHTS")
	assert.Contains(t, out, "65567")
}

func TestWatchOnce(t *testing.T) {
	out, err := run(t, newPeer(t), "watch", "CG PERCENT", "--unit", "percent", "--period", "once", "--count", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "#1  25.5")
}

func TestWatchCalculatedJSON(t *testing.T) {
	out, err := run(t, newPeer(t), "watch", "(A:TITLE,string)", "--calc", "string",
		"--period", "once", "--count", "1", "--request-id", "7", "--format", "json")
	require.NoError(t, err)

	var got watchUpdate
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, uint32(7), got.RequestID)
	assert.Equal(t, "Generic Trainer", got.Value)
	assert.Equal(t, uint64(1), got.Deliveries)
}

func TestWatchRejectsInvalidRequest(t *testing.T) {
	_, err := run(t, newPeer(t), "watch", "X", "--period", "ms")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidDataRequest)
}
