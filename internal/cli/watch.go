package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/signalsfoundry/simvar-client/internal/client"
	"github.com/signalsfoundry/simvar-client/model"
	"github.com/spf13/cobra"
)

type watchFlags struct {
	requestID uint32
	varType   string
	unit      string
	index     uint8
	calc      string
	size      int32
	period    string
	interval  uint32
	epsilon   float32
	count     int
}

func (f *watchFlags) request(nameOrCode string) (model.DataRequest, error) {
	period, err := parsePeriod(f.period)
	if err != nil {
		return model.DataRequest{}, err
	}
	req := model.DataRequest{
		RequestID:    f.requestID,
		NameOrCode:   nameOrCode,
		ValueSize:    f.size,
		Period:       period,
		Interval:     f.interval,
		DeltaEpsilon: f.epsilon,
	}
	if f.calc != "" {
		rt, err := parseResultType(f.calc)
		if err != nil {
			return model.DataRequest{}, err
		}
		req.RequestType = model.RequestCalculated
		req.CalcResultType = rt
		if req.ValueSize == 0 {
			req.ValueSize = model.DataTypeDouble
			if rt == model.CalcString || rt == model.CalcFormatted {
				req.ValueSize = 256
			} else if rt == model.CalcInteger {
				req.ValueSize = model.DataTypeInt32
			}
		}
		return req, req.Validate()
	}
	vt, err := parseVarType(f.varType)
	if err != nil {
		return model.DataRequest{}, err
	}
	req.RequestType = model.RequestNamed
	req.VariableType = vt
	req.Unit = f.unit
	req.SimVarIndex = f.index
	if req.ValueSize == 0 {
		req.ValueSize = model.DataTypeDouble
	}
	return req, req.Validate()
}

type watchUpdate struct {
	RequestID  uint32    `json:"request_id"`
	Value      any       `json:"value"`
	Deliveries uint64    `json:"deliveries"`
	At         time.Time `json:"at"`
}

func recordValue(r model.DataRequestRecord) (any, string) {
	if s, ok := r.TryString(); ok {
		return s, s
	}
	if v, ok := r.TryInt64(); ok {
		return v, strconv.FormatInt(v, 10)
	}
	if v, ok := r.Number(); ok {
		return v, strconv.FormatFloat(v, 'g', -1, 64)
	}
	return r.Data, fmt.Sprintf("% x", r.Data)
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	var wf watchFlags

	cmd := &cobra.Command{
		Use:   "watch <name-or-code>",
		Short: "Register a data request and print its updates",
		Long: `Registers a data request with the server module and prints every delivered
value until --count updates arrived or the command is interrupted.

Examples:
  simvar watch "PLANE ALTITUDE" --unit feet --epsilon 10
  simvar watch "(E:SIMULATION TIME,seconds)" --calc double --period second --count 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := wf.request(args[0])
			if err != nil {
				return err
			}
			c, err := rootOpts.session(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer c.Close()
			return watch(cmd, rootOpts, c, req, wf.count)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.Flags()
	flags.Uint32Var(&wf.requestID, "request-id", 1, "data request id")
	flags.StringVarP(&wf.varType, "type", "t", "A", "variable type letter for named requests")
	flags.StringVarP(&wf.unit, "unit", "u", "", "unit name for simulator variables")
	flags.Uint8Var(&wf.index, "index", 0, "simulator variable index")
	flags.StringVar(&wf.calc, "calc", "", "treat the argument as calculator code with this result type")
	flags.Int32Var(&wf.size, "size", 0, "value size in bytes, or a negative predefined data type")
	flags.StringVarP(&wf.period, "period", "p", "tick", "update period (never|once|tick|visual|second|ms)")
	flags.Uint32Var(&wf.interval, "interval", 0, "ticks skipped between updates, or milliseconds for --period ms")
	flags.Float32Var(&wf.epsilon, "epsilon", 0, "minimum change between updates; negative delivers every period")
	flags.IntVarP(&wf.count, "count", "n", 0, "stop after this many updates (0 runs until interrupted)")
	return cmd
}

func watch(cmd *cobra.Command, rootOpts *RootOptions, c *client.Client, req model.DataRequest, count int) error {
	updates := make(chan model.DataRequestRecord, 16)
	done := make(chan struct{})
	defer close(done)
	sub := c.OnDataUpdate(func(r model.DataRequestRecord) {
		if r.RequestID != req.RequestID {
			return
		}
		select {
		case updates <- r:
		case <-done:
		}
	})
	defer sub.Unsubscribe()

	lost := make(chan model.ClientEvent, 1)
	evSub := c.OnClientEvent(func(ev model.ClientEvent) {
		switch ev.Type {
		case model.EventConnectionLost, model.EventServerDisconnected, model.EventSimDisconnected:
			select {
			case lost <- ev:
			default:
			}
		}
	})
	defer evSub.Unsubscribe()

	if err := c.SaveDataRequest(cmd.Context(), req); err != nil {
		return err
	}
	defer func() { _ = c.RemoveDataRequest(cmd.Context(), req.RequestID) }()

	out := rootOpts.output(cmd)
	for n := 0; count <= 0 || n < count; n++ {
		select {
		case r := <-updates:
			v, text := recordValue(r)
			if err := out.print(
				fmt.Sprintf("%s  #%d  %s", r.LastUpdate.Format("15:04:05.000"), r.RequestID, text),
				watchUpdate{RequestID: r.RequestID, Value: v, Deliveries: r.Deliveries, At: r.LastUpdate},
			); err != nil {
				return err
			}
		case ev := <-lost:
			return fmt.Errorf("%s: %s", ev.Type, ev.Message)
		case <-cmd.Context().Done():
			return nil
		}
	}
	return nil
}
