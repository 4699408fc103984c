package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "simvar.yaml")
	data := `
client:
  id: cockpit
  transport: websocket
  address: ws://localhost:50601/session
  request_timeout: 500ms
peer:
  tick: 10ms
  server_enabled: false
tracing:
  enabled: true
  exporter: otlp
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "cockpit", cfg.Client.ID)
	assert.Equal(t, "websocket", cfg.Client.Transport)
	assert.Equal(t, 500*time.Millisecond, cfg.Client.RequestTimeout)
	assert.Equal(t, DefaultConnectTimeout, cfg.Client.ConnectTimeout)
	assert.Equal(t, DefaultDispatchBuffer, cfg.Client.DispatchBuffer)
	assert.Equal(t, 10*time.Millisecond, cfg.Peer.Tick)
	assert.False(t, cfg.Peer.ServerEnabled)
	assert.Equal(t, ":50601", cfg.Peer.WebSocketAddress)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRatio)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, DefaultRequestTimeout, cfg.Client.RequestTimeout)
	assert.Equal(t, DefaultHandlerBudget, cfg.Client.HandlerBudget)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("client:\n  transport: carrier-pigeon\ntracing:\n  sample_ratio: 2\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client.transport")
	assert.Contains(t, err.Error(), "tracing.sample_ratio")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SIMVAR_CLIENT_ID", "env-client")
	t.Setenv("SIMVAR_REQUEST_TIMEOUT", "750ms")
	t.Setenv("SIMVAR_DISPATCH_BUFFER", "8")
	t.Setenv("SIMVAR_PEER_SERVER_ENABLED", "false")
	t.Setenv("SIMVAR_TRACING_SAMPLE_RATIO", "0.25")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, "env-client", cfg.Client.ID)
	assert.Equal(t, 750*time.Millisecond, cfg.Client.RequestTimeout)
	assert.Equal(t, 8, cfg.Client.DispatchBuffer)
	assert.False(t, cfg.Peer.ServerEnabled)
	assert.Equal(t, 0.25, cfg.Tracing.SampleRatio)

	t.Setenv("SIMVAR_CONNECT_TIMEOUT", "soon")
	err := cfg.ApplyEnv()
	require.Error(t, err)
	assert.Equal(t, DefaultConnectTimeout, cfg.Client.ConnectTimeout)
}

func TestSampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "simvar.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "simvar-cli", cfg.Client.ID)
	assert.Equal(t, 25*time.Millisecond, cfg.Peer.Tick)
	assert.Equal(t, "1.0.0.0", cfg.Peer.Version)
}
