package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/signalsfoundry/simvar-client/internal/client"
	"github.com/signalsfoundry/simvar-client/internal/logging"
	"github.com/signalsfoundry/simvar-client/internal/transport"
	"github.com/signalsfoundry/simvar-client/model"
	"github.com/spf13/cobra"
)

// session builds a client from the loaded configuration and connects it. With
// server false only the simulator link is opened.
func (o *RootOptions) session(ctx context.Context, server bool) (*client.Client, error) {
	cfg := o.cfg.Client
	dialer := o.dialer
	if dialer == nil {
		var err error
		if dialer, err = transport.NewDialer(cfg.Transport, cfg.Address, cfg.PingInterval); err != nil {
			return nil, err
		}
	}
	serverLevel, err := model.ParseLogLevel(cfg.ServerLogLevel)
	if err != nil {
		return nil, err
	}
	if !o.Verbose {
		serverLevel = model.LogNone
	}

	level := "warn"
	if o.Verbose {
		level = "debug"
	}
	c := client.New(client.Config{
		ClientID:       cfg.ID,
		Dialer:         dialer,
		RequestTimeout: cfg.RequestTimeout,
		ConnectTimeout: cfg.ConnectTimeout,
		DispatchBuffer: cfg.DispatchBuffer,
		HandlerBudget:  cfg.HandlerBudget,
		ServerLogLevel: serverLevel,
		Logger:         logging.New(logging.Config{Level: level, Format: o.cfg.Logging.Format, Writer: os.Stderr}),
	})
	if o.Verbose {
		c.OnLogRecord(func(r model.LogRecord) {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", r.Source, r)
		})
	}

	if server {
		err = c.ConnectServer(ctx, 0)
	} else {
		err = c.ConnectSimulator(ctx, 0, nil)
	}
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// output renders results as text lines or JSON documents.
type output struct {
	format string
	w      io.Writer
}

func (o *RootOptions) output(cmd *cobra.Command) output {
	return output{format: o.Format, w: cmd.OutOrStdout()}
}

func (out output) print(text string, v any) error {
	if out.format == "json" {
		return json.NewEncoder(out.w).Encode(v)
	}
	_, err := fmt.Fprintln(out.w, text)
	return err
}

func parseVarType(s string) (byte, error) {
	u := strings.ToUpper(s)
	if len(u) != 1 || u[0] < 'A' || u[0] > 'Z' {
		return 0, fmt.Errorf("variable type must be a single letter, got %q", s)
	}
	return u[0], nil
}

var lookupTypes = map[string]model.LookupItemType{
	"local":   model.LookupLocalVariable,
	"sim":     model.LookupSimulatorVariable,
	"token":   model.LookupTokenVariable,
	"unit":    model.LookupUnitType,
	"key":     model.LookupKeyEventID,
	"request": model.LookupDataRequest,
}

func parseLookupType(s string) (model.LookupItemType, error) {
	if t, ok := lookupTypes[strings.ToLower(s)]; ok {
		return t, nil
	}
	return model.LookupNone, fmt.Errorf("unknown item type %q (local|sim|token|unit|key|request)", s)
}

var resultTypes = map[string]model.CalcResultType{
	"none":      model.CalcNone,
	"double":    model.CalcDouble,
	"integer":   model.CalcInteger,
	"string":    model.CalcString,
	"formatted": model.CalcFormatted,
}

func parseResultType(s string) (model.CalcResultType, error) {
	if t, ok := resultTypes[strings.ToLower(s)]; ok {
		return t, nil
	}
	return model.CalcNone, fmt.Errorf("unknown result type %q", s)
}

var periods = map[string]model.UpdatePeriod{
	"never":  model.PeriodNever,
	"once":   model.PeriodOnce,
	"tick":   model.PeriodTick,
	"visual": model.PeriodVisualFrame,
	"second": model.PeriodSecond,
	"ms":     model.PeriodMillisecond,
}

func parsePeriod(s string) (model.UpdatePeriod, error) {
	if p, ok := periods[strings.ToLower(s)]; ok {
		return p, nil
	}
	return model.PeriodNever, fmt.Errorf("unknown period %q (never|once|tick|visual|second|ms)", s)
}
