package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/simvar-client/internal/peer"
	"github.com/signalsfoundry/simvar-client/internal/transport"
	"github.com/signalsfoundry/simvar-client/model"
	"github.com/signalsfoundry/simvar-client/timectrl"
	"github.com/spf13/cobra"
)

// NewDemoCommand creates the demo command.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted session against an in-process simulated peer",
		Long: `Starts a simulated peer in this process and walks through a session:
ping, variable access, calculator code and a data request on a climbing
altitude. Useful for checking the client without a simulator.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			clock := timectrl.NewTimeController(time.Now(), rootOpts.cfg.Peer.Tick, timectrl.RealTime)
			srv := peer.New(peer.Config{Name: "demo-peer", Clock: clock})
			defer srv.Close()
			clock.AddListener(func(_ time.Time, frame uint64) {
				_ = srv.Store().SetSimVar("PLANE ALTITUDE", 0, 1500+float64(frame))
			})
			go srv.Run(ctx)

			if rootOpts.dialer == nil {
				rootOpts.dialer = transport.PipeDialer(func(c transport.Conn) { _ = srv.ServeConn(ctx, c) })
			}
			c, err := rootOpts.session(ctx, true)
			if err != nil {
				return err
			}
			defer c.Close()

			out := rootOpts.output(cmd)
			step := func(name string, v any) error {
				return out.print(fmt.Sprintf("%-10s %v", name, v), map[string]any{"step": name, "result": v})
			}

			if err := step("version", model.FormatVersion(c.ServerVersion())); err != nil {
				return err
			}
			cg, err := c.GetVariable(ctx, model.NewVariableRequest("CG PERCENT", "percent", 0))
			if err != nil {
				return err
			}
			if err := step("cg", cg); err != nil {
				return err
			}
			if err := c.SetOrCreateLocalVariable(ctx, "demo_counter", 41); err != nil {
				return err
			}
			n, _, err := c.ExecuteCalculatorCode(ctx, "(L:demo_counter) 1 + dup (>L:demo_counter)", model.CalcDouble, 0)
			if err != nil {
				return err
			}
			if err := step("counter", n); err != nil {
				return err
			}

			req := model.NewNamedRequest(1, 'A', "PLANE ALTITUDE", "feet", model.DataTypeDouble)
			req.DeltaEpsilon = 5
			return watch(cmd, rootOpts, c, req, count)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().IntVarP(&count, "count", "n", 3, "altitude updates to print before exiting")
	return cmd
}
