package logger

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

func createHandler(config Config) (slog.Handler, error) {
	level := parseLogLevel(config.Env, config.Level)

	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: config.AddSource,
	}

	if config.AddSource && config.SourcePathLength > 0 {
		handlerOpts.ReplaceAttr = createSourceReplacer(config.SourcePathLength)
	}

	switch strings.ToLower(config.Env) {
	case "prod":
		return slog.NewJSONHandler(config.Output, handlerOpts), nil

	case "dev":
		textOpts := *handlerOpts
		textOpts.ReplaceAttr = createTextReplacer(config.TimeFormat, config.SourcePathLength)
		return slog.NewTextHandler(config.Output, &textOpts), nil

	case "test":
		return slog.NewTextHandler(config.Output, &slog.HandlerOptions{
			Level: level,
		}), nil

	default:
		return nil, fmt.Errorf("unknown environment: %s (use 'dev', 'prod', or 'test')", config.Env)
	}
}

func parseLogLevel(env, explicitLevel string) slog.Level {
	switch strings.ToLower(explicitLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	switch strings.ToLower(env) {
	case "dev":
		return slog.LevelDebug
	case "test":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// createSourceReplacer shortens source file paths in JSON output
func createSourceReplacer(pathLength int) func([]string, slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.SourceKey {
			if source, ok := a.Value.Any().(*slog.Source); ok && source != nil {
				source.File = shortenPath(source.File, pathLength)
			}
		}
		return a
	}
}

// createTextReplacer handles both time format and source path for text logs
func createTextReplacer(timeFormat string, pathLength int) func([]string, slog.Attr) slog.Attr {
	shorten := createSourceReplacer(pathLength)

	return func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.TimeKey && len(groups) == 0 {
			if t, ok := a.Value.Any().(time.Time); ok {
				a.Value = slog.StringValue(t.Format(timeFormat))
			}
			return a
		}

		if pathLength > 0 {
			return shorten(groups, a)
		}
		return a
	}
}

// shortenPath keeps only the last n segments of a path
func shortenPath(path string, segments int) string {
	if segments == 0 {
		return path
	}

	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= segments {
		return path
	}

	return strings.Join(parts[len(parts)-segments:], "/")
}
