package logging

import (
	"context"
	"log/slog"
)

// Hook receives every record written through a hooked logger, including the
// fields accumulated with With. It runs on the logging goroutine and must not
// block.
type Hook func(ctx context.Context, level slog.Level, msg string, fields []Field)

// WithHook returns a Logger that writes to base and also hands each record to
// hook. The hook sees records regardless of base's level threshold.
func WithHook(base Logger, hook Hook) Logger {
	if base == nil {
		base = Noop()
	}
	if hook == nil {
		return base
	}
	return &hooked{base: base, hook: hook}
}

type hooked struct {
	base   Logger
	hook   Hook
	fields []Field
}

func (h *hooked) With(fields ...Field) Logger {
	merged := make([]Field, 0, len(h.fields)+len(fields))
	merged = append(merged, h.fields...)
	merged = append(merged, fields...)
	return &hooked{base: h.base.With(fields...), hook: h.hook, fields: merged}
}

func (h *hooked) Debug(ctx context.Context, msg string, fields ...Field) {
	h.base.Debug(ctx, msg, fields...)
	h.emit(ctx, slog.LevelDebug, msg, fields)
}

func (h *hooked) Info(ctx context.Context, msg string, fields ...Field) {
	h.base.Info(ctx, msg, fields...)
	h.emit(ctx, slog.LevelInfo, msg, fields)
}

func (h *hooked) Warn(ctx context.Context, msg string, fields ...Field) {
	h.base.Warn(ctx, msg, fields...)
	h.emit(ctx, slog.LevelWarn, msg, fields)
}

func (h *hooked) Error(ctx context.Context, msg string, fields ...Field) {
	h.base.Error(ctx, msg, fields...)
	h.emit(ctx, slog.LevelError, msg, fields)
}

// SetLevel forwards to base when it supports runtime levels.
func (h *hooked) SetLevel(level slog.Level) {
	if l, ok := h.base.(Leveled); ok {
		l.SetLevel(level)
	}
}

func (h *hooked) Level() slog.Level {
	if l, ok := h.base.(Leveled); ok {
		return l.Level()
	}
	return slog.LevelInfo
}

func (h *hooked) emit(ctx context.Context, level slog.Level, msg string, fields []Field) {
	all := fields
	if len(h.fields) > 0 {
		all = make([]Field, 0, len(h.fields)+len(fields))
		all = append(all, h.fields...)
		all = append(all, fields...)
	}
	h.hook(ctx, level, msg, all)
}
