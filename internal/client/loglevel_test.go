package client

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/signalsfoundry/simvar-client/internal/logging"
	"github.com/signalsfoundry/simvar-client/internal/peer"
	"github.com/signalsfoundry/simvar-client/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerLogRecordsAndLists(t *testing.T) {
	srv := startPeer(t, peer.Config{})
	c := newTestClient(t, srv)
	ctx := context.Background()
	logs := collect(c.OnLogRecord)
	lists := collect(c.OnListResult)

	// Remembered until the server session is up.
	require.NoError(t, c.SetLogLevel(ctx, model.LogWarning, model.FacilityRemote, model.LogSourceServer))
	require.NoError(t, c.ConnectServer(ctx, 0))

	_, _, err := c.ExecuteCalculatorCode(ctx, "1 nonsense", model.CalcDouble, 0)
	require.ErrorIs(t, err, ErrInvalidParameter)
	rec := next(t, logs)
	assert.Equal(t, model.LogSourceServer, rec.Source)
	assert.Equal(t, model.LogWarning, rec.Level)
	assert.Contains(t, rec.Message, "calculator code failed")

	require.NoError(t, c.SaveDataRequest(ctx, model.NewNamedRequest(1, 'A', "CG PERCENT", "percent", model.DataTypeDouble)))
	require.NoError(t, c.List(ctx, model.LookupDataRequest))
	res := next(t, lists)
	assert.Equal(t, model.LookupDataRequest, res.ListType)
	assert.Equal(t, model.StatusOK, res.Result)
	assert.Equal(t, []model.ListItem{{ID: 1, Name: "CG PERCENT"}}, res.Items)

	require.NoError(t, c.List(ctx, model.LookupKeyEventID))
	assert.Len(t, next(t, lists).Items, 4)

	assert.ErrorIs(t, c.List(ctx, model.LookupUnitType), ErrInvalidParameter)
}

func TestClientLogLevels(t *testing.T) {
	var buf bytes.Buffer
	base := logging.New(logging.Config{Level: "info", Writer: &buf})
	srv := startPeer(t, peer.Config{})
	c := newTestClient(t, srv, func(cfg *Config) { cfg.Logger = base })
	ctx := context.Background()
	logs := collect(c.OnLogRecord)

	require.NoError(t, c.SetLogLevel(ctx, model.LogInfo, model.FacilityRemote, model.LogSourceClient))
	require.NoError(t, c.ConnectServer(ctx, 0))

	rec := next(t, logs)
	assert.Equal(t, model.LogSourceClient, rec.Source)
	assert.Equal(t, model.LogInfo, rec.Level)
	assert.True(t, strings.HasPrefix(rec.Message, "connected to"), rec.Message)

	require.NoError(t, c.SetLogLevel(ctx, model.LogNone, model.FacilityConsole, model.LogSourceClient))
	buf.Reset()
	require.NoError(t, c.DisconnectSimulator(ctx))
	assert.Empty(t, buf.String(), "console logging was switched off")

	assert.ErrorIs(t, c.SetLogLevel(ctx, model.LogLevel(42), model.FacilityRemote, model.LogSourceServer), ErrInvalidParameter)
	assert.ErrorIs(t, c.SetLogLevel(ctx, model.LogInfo, model.FacilityNone, model.LogSourceServer), ErrInvalidParameter)
}
