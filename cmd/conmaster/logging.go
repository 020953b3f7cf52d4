package main

import (
	"context"
	"log/slog"

	"github.com/sirupsen/logrus"
)

// logrusHandler adapts slog's structured logging onto the teacher's
// own logging dependency, github.com/sirupsen/logrus, rather than
// slog's stdlib text handler. The rest of the module logs through
// *slog.Logger (package master's idiom); only the CLI's outermost
// handler is logrus-backed, a deliberate nod to the dependency the
// teacher's legacy root files use throughout.
type logrusHandler struct {
	logger *logrus.Logger
	attrs  []slog.Attr
}

func newLogrusHandler(level slog.Level) *logrusHandler {
	logger := logrus.New()
	logger.SetLevel(toLogrusLevel(level))
	return &logrusHandler{logger: logger}
}

func toLogrusLevel(level slog.Level) logrus.Level {
	switch {
	case level <= slog.LevelDebug:
		return logrus.DebugLevel
	case level <= slog.LevelInfo:
		return logrus.InfoLevel
	case level <= slog.LevelWarn:
		return logrus.WarnLevel
	default:
		return logrus.ErrorLevel
	}
}

func (h *logrusHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.IsLevelEnabled(toLogrusLevel(level))
}

func (h *logrusHandler) Handle(_ context.Context, record slog.Record) error {
	fields := make(logrus.Fields, len(h.attrs)+record.NumAttrs())
	for _, a := range h.attrs {
		fields[a.Key] = a.Value.Any()
	}
	record.Attrs(func(a slog.Attr) bool {
		fields[a.Key] = a.Value.Any()
		return true
	})
	entry := h.logger.WithFields(fields)
	switch {
	case record.Level <= slog.LevelDebug:
		entry.Debug(record.Message)
	case record.Level <= slog.LevelInfo:
		entry.Info(record.Message)
	case record.Level <= slog.LevelWarn:
		entry.Warn(record.Message)
	default:
		entry.Error(record.Message)
	}
	return nil
}

func (h *logrusHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &logrusHandler{logger: h.logger, attrs: merged}
}

func (h *logrusHandler) WithGroup(_ string) slog.Handler { return h }
