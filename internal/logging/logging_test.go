package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewHonoursRuntimeLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Writer: &buf})

	log.Info(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("info written at warn level: %q", buf.String())
	}

	lv, ok := log.(Leveled)
	if !ok {
		t.Fatalf("logger does not implement Leveled")
	}
	lv.SetLevel(slog.LevelDebug)
	log.Debug(context.Background(), "visible", String("k", "v"))
	if !strings.Contains(buf.String(), "visible") || !strings.Contains(buf.String(), "k=v") {
		t.Fatalf("debug record missing after SetLevel: %q", buf.String())
	}
}

func TestLevelOffSilences(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "off", Writer: &buf})
	log.Error(context.Background(), "nope")
	if buf.Len() != 0 {
		t.Fatalf("expected silence, got %q", buf.String())
	}
}

func TestWithHookSeesAccumulatedFields(t *testing.T) {
	type rec struct {
		level  slog.Level
		msg    string
		fields []Field
	}
	var got []rec
	hook := func(_ context.Context, level slog.Level, msg string, fields []Field) {
		got = append(got, rec{level, msg, fields})
	}

	log := WithHook(Noop(), hook).With(String("client", "c1"))
	log.Warn(context.Background(), "slow", Int("ms", 5))

	if len(got) != 1 {
		t.Fatalf("hook calls = %d, want 1", len(got))
	}
	if got[0].level != slog.LevelWarn || got[0].msg != "slow" {
		t.Fatalf("unexpected record %+v", got[0])
	}
	if len(got[0].fields) != 2 || got[0].fields[0].Key != "client" || got[0].fields[1].Key != "ms" {
		t.Fatalf("fields = %+v", got[0].fields)
	}
}

func TestWithHookForwardsLevelToBase(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: "info", Writer: &buf})
	log := WithHook(base, func(context.Context, slog.Level, string, []Field) {})

	log.(Leveled).SetLevel(LevelOff)
	log.Error(context.Background(), "dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected base silenced, got %q", buf.String())
	}
}

func TestSessionLoggerReusesExistingID(t *testing.T) {
	ctx := ContextWithSessionID(context.Background(), "abc")
	ctx, _ = WithSessionLogger(ctx, nil)
	if got := SessionIDFromContext(ctx); got != "abc" {
		t.Fatalf("session id = %q, want abc", got)
	}

	fresh, id := EnsureSessionID(context.Background())
	if id == "" || SessionIDFromContext(fresh) != id {
		t.Fatalf("EnsureSessionID did not attach an id")
	}
}
