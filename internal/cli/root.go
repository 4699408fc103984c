// Package cli implements the simvar command line client.
package cli

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/signalsfoundry/simvar-client/internal/client"
	"github.com/signalsfoundry/simvar-client/internal/config"
	"github.com/signalsfoundry/simvar-client/internal/transport"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Transport  string
	Address    string
	ClientID   string
	Timeout    time.Duration
	Format     string // "json" | "text"
	Verbose    bool

	cfg *config.Config
	// dialer replaces the configured transport when set.
	dialer transport.Dialer
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the simvar CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simvar",
		Short: "simvar - simulator variable client",
		Long:  "Read, write and watch simulator variables through the server module running inside a simulator.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.load(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "YAML configuration file")
	flags.StringVar(&opts.Transport, "transport", "", "transport to the simulator (grpc|websocket)")
	flags.StringVarP(&opts.Address, "address", "a", "", "simulator address")
	flags.StringVar(&opts.ClientID, "client-id", "", "client id announced to the server module")
	flags.DurationVar(&opts.Timeout, "timeout", 0, "request timeout")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output, including server log records")

	cmd.AddCommand(NewPingCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewSetCommand(opts))
	cmd.AddCommand(NewCalcCommand(opts))
	cmd.AddCommand(NewLookupCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewDemoCommand(opts))
	return cmd
}

// load reads the config file and environment, then applies explicit flags.
func (o *RootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("transport") {
		cfg.Client.Transport = o.Transport
	}
	if flags.Changed("address") {
		cfg.Client.Address = o.Address
	}
	if flags.Changed("client-id") {
		cfg.Client.ID = o.ClientID
	}
	if flags.Changed("timeout") {
		cfg.Client.RequestTimeout = o.Timeout
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}

// ExitCode maps a command error onto the process exit status. Operation
// failures exit with their status number; anything else exits with 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var se *client.StatusError
	if errors.As(err, &se) {
		return int(se.Status)
	}
	return 1
}
