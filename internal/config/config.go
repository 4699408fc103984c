// Package config loads client and peer settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Documented defaults.
const (
	DefaultRequestTimeout = 2 * time.Second
	DefaultConnectTimeout = 5 * time.Second
	DefaultDispatchBuffer = 64
	DefaultHandlerBudget  = 50 * time.Millisecond
	DefaultPeerTick       = 25 * time.Millisecond
)

type Config struct {
	Client  ClientConfig  `yaml:"client"`
	Peer    PeerConfig    `yaml:"peer"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

type ClientConfig struct {
	ID             string        `yaml:"id"`
	Transport      string        `yaml:"transport"` // grpc | websocket
	Address        string        `yaml:"address"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	DispatchBuffer int           `yaml:"dispatch_buffer"`
	HandlerBudget  time.Duration `yaml:"handler_budget"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	ServerLogLevel string        `yaml:"server_log_level"`
}

type PeerConfig struct {
	GRPCAddress      string        `yaml:"grpc_address"`
	WebSocketAddress string        `yaml:"websocket_address"`
	Tick             time.Duration `yaml:"tick"`
	Version          string        `yaml:"version"`
	ServerEnabled    bool          `yaml:"server_enabled"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Address string `yaml:"address"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Client: ClientConfig{
			ID:             "simvar-client",
			Transport:      "grpc",
			Address:        "localhost:50600",
			RequestTimeout: DefaultRequestTimeout,
			ConnectTimeout: DefaultConnectTimeout,
			DispatchBuffer: DefaultDispatchBuffer,
			HandlerBudget:  DefaultHandlerBudget,
			ServerLogLevel: "info",
		},
		Peer: PeerConfig{
			GRPCAddress:      ":50600",
			WebSocketAddress: ":50601",
			Tick:             DefaultPeerTick,
			Version:          "1.0.0.0",
			ServerEnabled:    true,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Address: ":9600"},
		Tracing: TracingConfig{ServiceName: "simvar", Exporter: "stdout", SampleRatio: 1},
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Client.Transport) {
	case "grpc", "websocket", "ws":
	default:
		errs = append(errs, fmt.Errorf("client.transport: unsupported %q", c.Client.Transport))
	}
	if c.Client.RequestTimeout < 0 {
		errs = append(errs, errors.New("client.request_timeout: must not be negative"))
	}
	if c.Client.ConnectTimeout < 0 {
		errs = append(errs, errors.New("client.connect_timeout: must not be negative"))
	}
	if c.Client.DispatchBuffer < 0 {
		errs = append(errs, errors.New("client.dispatch_buffer: must not be negative"))
	}
	if c.Peer.Tick < 0 {
		errs = append(errs, errors.New("peer.tick: must not be negative"))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, errors.New("tracing.sample_ratio: must be within [0,1]"))
	}
	return errors.Join(errs...)
}

// ApplyEnv overrides fields from SIMVAR_* environment variables. Unparseable
// values are reported and leave the field unchanged.
func (c *Config) ApplyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("SIMVAR_CLIENT_ID", &c.Client.ID)
	str("SIMVAR_TRANSPORT", &c.Client.Transport)
	str("SIMVAR_ADDRESS", &c.Client.Address)
	dur("SIMVAR_REQUEST_TIMEOUT", &c.Client.RequestTimeout)
	dur("SIMVAR_CONNECT_TIMEOUT", &c.Client.ConnectTimeout)
	dur("SIMVAR_HANDLER_BUDGET", &c.Client.HandlerBudget)
	str("SIMVAR_SERVER_LOG_LEVEL", &c.Client.ServerLogLevel)
	if v, ok := os.LookupEnv("SIMVAR_DISPATCH_BUFFER"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SIMVAR_DISPATCH_BUFFER: %w", err))
		} else {
			c.Client.DispatchBuffer = n
		}
	}

	str("SIMVAR_PEER_GRPC_ADDRESS", &c.Peer.GRPCAddress)
	str("SIMVAR_PEER_WEBSOCKET_ADDRESS", &c.Peer.WebSocketAddress)
	dur("SIMVAR_PEER_TICK", &c.Peer.Tick)
	boolean("SIMVAR_PEER_SERVER_ENABLED", &c.Peer.ServerEnabled)

	str("SIMVAR_LOG_LEVEL", &c.Logging.Level)
	str("SIMVAR_LOG_FORMAT", &c.Logging.Format)
	str("SIMVAR_METRICS_ADDRESS", &c.Metrics.Address)

	boolean("SIMVAR_TRACING_ENABLED", &c.Tracing.Enabled)
	str("SIMVAR_TRACING_EXPORTER", &c.Tracing.Exporter)
	str("SIMVAR_TRACING_SERVICE_NAME", &c.Tracing.ServiceName)
	str("SIMVAR_OTLP_ENDPOINT", &c.Tracing.Endpoint)
	if v, ok := os.LookupEnv("SIMVAR_TRACING_SAMPLE_RATIO"); ok && v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("SIMVAR_TRACING_SAMPLE_RATIO: %w", err))
		} else {
			c.Tracing.SampleRatio = r
		}
	}
	return errors.Join(errs...)
}
