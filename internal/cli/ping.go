package cli

import (
	"fmt"

	"github.com/signalsfoundry/simvar-client/model"
	"github.com/spf13/cobra"
)

// NewPingCommand creates the ping command.
func NewPingCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the server module answers",
		Long:  "Opens the simulator link and pings the server module. Exits non-zero when the server does not answer.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rootOpts.session(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer c.Close()

			version := c.PingServer(cmd.Context())
			if version == 0 {
				return fmt.Errorf("server module at %s did not answer", rootOpts.cfg.Client.Address)
			}
			return rootOpts.output(cmd).print(
				fmt.Sprintf("server version %s", model.FormatVersion(version)),
				map[string]any{"version": model.FormatVersion(version), "packed": version},
			)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}
