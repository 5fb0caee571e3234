package utils

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/mdobak/go-xerrors"
)

var (
	defaultLogger *slog.Logger
	loggerOnce    sync.Once
)

// NewLogger builds a JSON slog logger writing to stderr. Stack traces attached
// via xerrors are rendered through the replace hook so log aggregation sees
// them as a single attribute.
func NewLogger() *slog.Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level:       logLevelFromEnv(),
		ReplaceAttr: replaceErrorAttr,
	})
	return slog.New(handler)
}

// GetLogger returns the process-wide default logger. Core packages take a
// logger by injection; this is for the edges (main, socket handlers, tools).
func GetLogger() *slog.Logger {
	loggerOnce.Do(func() {
		defaultLogger = NewLogger()
	})
	return defaultLogger
}

func logLevelFromEnv() slog.Level {
	switch GetEnv("LOG_LEVEL", "info") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func replaceErrorAttr(_ []string, attr slog.Attr) slog.Attr {
	if attr.Key != "error" {
		return attr
	}
	err, ok := attr.Value.Any().(error)
	if !ok {
		return attr
	}
	grouped := []slog.Attr{slog.String("msg", err.Error())}
	if trace := xerrors.StackTrace(err); len(trace) > 0 {
		frames := trace.Frames()
		locations := make([]string, 0, len(frames))
		for _, frame := range frames {
			locations = append(locations, frame.Function)
		}
		grouped = append(grouped, slog.Any("trace", locations))
	}
	return slog.Attr{Key: attr.Key, Value: slog.GroupValue(grouped...)}
}

// LogError wraps err with a stack trace and logs it with the supplied message.
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error, attrs ...slog.Attr) {
	args := make([]any, 0, len(attrs)+1)
	args = append(args, slog.Any("error", xerrors.New(err)))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	logger.ErrorContext(ctx, msg, args...)
}
