package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// SetupLogging configures the global slog logger based on args
// Returns the log file handle (caller must close it) or nil if no file
func SetupLogging(args Args) (*os.File, error) {
	logLevel, err := parseLogLevel(args.LogLevel)
	if err != nil {
		return nil, err
	}

	// Determine output mode
	mode := "text"
	if args.Json {
		mode = "json"
	}

	var writers []io.Writer
	var logFile *os.File

	// Add file writer if specified
	if args.Log != "" {
		f, err := os.OpenFile(args.Log, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		logFile = f
		writers = append(writers, f)
	}

	// Results go to stdout in both modes, so stderr is only added when
	// no log file was given.
	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	output := writers[0]

	// Create handler based on mode
	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: logLevel,
	}
	if opts.Level == slog.LevelDebug {
		opts.AddSource = true
	}

	if mode == "json" {
		// JSON mode gets JSON-formatted logs
		handler = slog.NewJSONHandler(output, opts)
	} else {
		// Text mode gets human-readable logs
		handler = slog.NewTextHandler(output, opts)
	}

	// Set as default logger
	slog.SetDefault(slog.New(handler))

	return logFile, nil
}

// parseLogLevel converts string to slog.Level. Empty means info.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}
