package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ParseLevel converts DEBUG, INFO, WARN or ERROR (any case) to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log_level must be DEBUG, INFO, WARN or ERROR, got %q", s)
	}
}

func isFormat(f string) bool {
	return f == "text" || f == "json"
}

// NewLogger builds a logger writing to w in the configured format and level.
func (c Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch c.LogFormat {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	case "text", "":
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return slog.New(h), nil
}
