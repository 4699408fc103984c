package cli

import (
	"fmt"
	"strconv"

	"github.com/signalsfoundry/simvar-client/model"
	"github.com/spf13/cobra"
)

type variableFlags struct {
	varType string
	unit    string
	index   uint8
	id      int32
}

func (f *variableFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.varType, "type", "t", "A", "variable type letter (A simulator, L local, T token)")
	cmd.Flags().StringVarP(&f.unit, "unit", "u", "", "unit name for simulator variables")
	cmd.Flags().Uint8Var(&f.index, "index", 0, "simulator variable index")
	cmd.Flags().Int32Var(&f.id, "id", -1, "address the variable by id instead of name")
}

func (f *variableFlags) request(args []string) (model.VariableRequest, error) {
	vt, err := parseVarType(f.varType)
	if err != nil {
		return model.VariableRequest{}, err
	}
	req := model.VariableRequest{VariableType: vt, Unit: f.unit, SimVarIndex: f.index, VariableID: f.id}
	if len(args) > 0 {
		req.Name = args[0]
	}
	return req, nil
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	var vf variableFlags
	var create bool
	var def float64

	cmd := &cobra.Command{
		Use:   "get [name]",
		Short: "Read a variable",
		Long: `Reads one variable through the server module.

Examples:
  simvar get "CG PERCENT" --unit percent
  simvar get --type L my_local --create --default 3`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := vf.request(args)
			if err != nil {
				return err
			}
			c, err := rootOpts.session(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer c.Close()

			var v float64
			if create {
				v, err = c.GetOrCreateLocalVariable(cmd.Context(), req.Name, def)
			} else {
				v, err = c.GetVariable(cmd.Context(), req)
			}
			if err != nil {
				return err
			}
			return rootOpts.output(cmd).print(
				fmt.Sprintf("%s = %s", req, strconv.FormatFloat(v, 'g', -1, 64)),
				map[string]any{"variable": req.String(), "value": v},
			)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	vf.register(cmd)
	cmd.Flags().BoolVar(&create, "create", false, "create the local variable when it does not exist")
	cmd.Flags().Float64Var(&def, "default", 0, "initial value for a created local variable")
	return cmd
}

// NewSetCommand creates the set command.
func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	var vf variableFlags
	var create bool

	cmd := &cobra.Command{
		Use:   "set <name> <value>",
		Short: "Write a variable",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("value %q: %w", args[1], err)
			}
			req, err := vf.request(args[:1])
			if err != nil {
				return err
			}
			req.CreateLocal = create

			c, err := rootOpts.session(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.SetVariable(cmd.Context(), req, value); err != nil {
				return err
			}
			return rootOpts.output(cmd).print(
				fmt.Sprintf("%s set to %s", req, args[1]),
				map[string]any{"variable": req.String(), "value": value},
			)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	vf.register(cmd)
	cmd.Flags().BoolVar(&create, "create", false, "create the local variable when it does not exist")
	return cmd
}

// NewCalcCommand creates the calc command.
func NewCalcCommand(rootOpts *RootOptions) *cobra.Command {
	var result string

	cmd := &cobra.Command{
		Use:   "calc <code>",
		Short: "Execute calculator code",
		Long: `Executes RPN calculator code on the server module and prints the result.

Examples:
  simvar calc "(A:PLANE ALTITUDE,feet) 100 +"
  simvar calc "(>K:TOGGLE_NAV_LIGHTS)" --result none`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := parseResultType(result)
			if err != nil {
				return err
			}
			c, err := rootOpts.session(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer c.Close()

			num, str, err := c.ExecuteCalculatorCode(cmd.Context(), args[0], rt, 0)
			if err != nil {
				return err
			}
			text := strconv.FormatFloat(num, 'g', -1, 64)
			if str != "" {
				text = str
			}
			return rootOpts.output(cmd).print(text, map[string]any{"number": num, "string": str})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().StringVarP(&result, "result", "r", "double", "result type (none|double|integer|string|formatted)")
	return cmd
}
