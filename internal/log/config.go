package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format selects the handler that renders records.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config holds configuration for the logger.
type Config struct {
	// Level is the minimum level written.
	Level slog.Level

	Format Format

	// Output defaults to stderr so command output on stdout stays parseable.
	Output io.Writer

	// AddSource includes source file and line number in logs.
	AddSource bool

	// ServiceName is attached to every record as "service" when set.
	ServiceName string
}

// DefaultConfig logs at info level as JSON to stderr.
func DefaultConfig() Config {
	return Config{
		Level:       slog.LevelInfo,
		Format:      FormatJSON,
		Output:      os.Stderr,
		ServiceName: "autoheal",
	}
}

// ParseLevel accepts debug, info, warn, warning and error in any case.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// ParseFormat accepts json and text ("console" is an alias for text).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "text", "console":
		return FormatText, nil
	}
	return FormatJSON, fmt.Errorf("unknown log format %q", s)
}

// FromSettings builds a Config from the strings in autoheal.yaml. Unknown
// values fall back to the defaults; config validation rejects them earlier.
func FromSettings(level, format string) Config {
	cfg := DefaultConfig()
	if l, err := ParseLevel(level); err == nil {
		cfg.Level = l
	}
	if f, err := ParseFormat(format); err == nil {
		cfg.Format = f
	}
	return cfg
}
