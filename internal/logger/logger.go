package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

// LevelCritical sits above error and marks failures that abort a poll or
// stop the process.
const LevelCritical = slog.Level(12)

func Configure(levelStr string, env string) {
	slog.SetDefault(slog.New(newHandler(os.Stdout, levelStr, env)))
}

func newHandler(w io.Writer, levelStr string, env string) slog.Handler {
	level := parseLogLevel(levelStr)

	if env == "dev" || env == "development" {
		return tint.NewHandler(w, &tint.Options{Level: level, ReplaceAttr: replaceLevel})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level, ReplaceAttr: replaceLevel})
}

// Critical logs msg at LevelCritical on the default logger.
func Critical(msg string, args ...any) {
	slog.Default().Log(context.Background(), LevelCritical, msg, args...)
}

func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey || len(groups) != 0 {
		return a
	}
	if level, ok := a.Value.Any().(slog.Level); ok && level == LevelCritical {
		a.Value = slog.StringValue("CRITICAL")
	}
	return a
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "critical":
		return LevelCritical
	default:
		return slog.LevelInfo
	}
}
