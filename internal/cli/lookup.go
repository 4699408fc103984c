package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/signalsfoundry/simvar-client/model"
	"github.com/spf13/cobra"
)

// NewLookupCommand creates the lookup command.
func NewLookupCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup <type> <name>",
		Short: "Resolve a name to its numeric id",
		Long:  "Resolves a name in one of the local, sim, token, unit, key or request namespaces.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemType, err := parseLookupType(args[0])
			if err != nil {
				return err
			}
			c, err := rootOpts.session(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer c.Close()

			id, err := c.Lookup(cmd.Context(), itemType, args[1])
			if err != nil {
				return err
			}
			return rootOpts.output(cmd).print(
				fmt.Sprintf("%s %q = %d", itemType, args[1], id),
				map[string]any{"type": itemType.String(), "name": args[1], "id": id},
			)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	return cmd
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <type>",
		Short: "List the names in a namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemType, err := parseLookupType(args[0])
			if err != nil {
				return err
			}
			c, err := rootOpts.session(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer c.Close()

			results := make(chan model.ListResult, 1)
			sub := c.OnListResult(func(r model.ListResult) {
				if r.ListType == itemType {
					select {
					case results <- r:
					default:
					}
				}
			})
			defer sub.Unsubscribe()

			if err := c.List(cmd.Context(), itemType); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), rootOpts.cfg.Client.RequestTimeout)
			defer cancel()
			select {
			case r := <-results:
				var b strings.Builder
				for i, it := range r.Items {
					if i > 0 {
						b.WriteByte('\n')
					}
					fmt.Fprintf(&b, "%6d  %s", it.ID, it.Name)
				}
				return rootOpts.output(cmd).print(b.String(), r)
			case <-ctx.Done():
				return fmt.Errorf("no %s list received: %w", itemType, ctx.Err())
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	return cmd
}
