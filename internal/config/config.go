// Package config holds the runtime settings of the chat server: defaults,
// environment overrides and sanitisation.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultAddr          = "0.0.0.0:8080"
	DefaultOutboxSize    = 128
	DefaultMaxLineLength = 64 * 1024
	DefaultWriteTimeout  = 10 * time.Second
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
)

// Config holds the server configuration.
type Config struct {
	// Addr is the TCP listen address for line clients.
	Addr string
	// HTTPAddr enables the HTTP surface (health, stats, WebSocket) when set.
	HTTPAddr string
	// OutboxSize is the number of messages buffered per peer before it is dropped.
	OutboxSize int
	// MaxLineLength bounds a single inbound line in bytes.
	MaxLineLength int
	// WriteTimeout bounds every write to a peer.
	WriteTimeout time.Duration
	LogLevel     string
	LogFormat    string
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Addr:          DefaultAddr,
		OutboxSize:    DefaultOutboxSize,
		MaxLineLength: DefaultMaxLineLength,
		WriteTimeout:  DefaultWriteTimeout,
		LogLevel:      DefaultLogLevel,
		LogFormat:     DefaultLogFormat,
	}
}

// FromEnv overlays LINECHAT_* environment variables on the defaults.
// Unparseable values are ignored.
func FromEnv() Config {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) Config {
	cfg := Default()

	if v, ok := lookup("LINECHAT_ADDR"); ok && v != "" {
		cfg.Addr = v
	}
	if v, ok := lookup("LINECHAT_HTTP_ADDR"); ok {
		cfg.HTTPAddr = v
	}
	if v, ok := lookup("LINECHAT_OUTBOX_SIZE"); ok {
		cfg.OutboxSize = parseIntValue(v, cfg.OutboxSize)
	}
	if v, ok := lookup("LINECHAT_MAX_LINE_LENGTH"); ok {
		cfg.MaxLineLength = parseIntValue(v, cfg.MaxLineLength)
	}
	if v, ok := lookup("LINECHAT_WRITE_TIMEOUT"); ok {
		cfg.WriteTimeout = parseDuration(v, cfg.WriteTimeout)
	}
	if v, ok := lookup("LINECHAT_LOG_LEVEL"); ok && v != "" {
		cfg.LogLevel = v
	}
	if v, ok := lookup("LINECHAT_LOG_FORMAT"); ok && v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// Sanitize replaces out-of-range values with defaults.
func (c Config) Sanitize() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.OutboxSize <= 0 {
		c.OutboxSize = DefaultOutboxSize
	}
	if c.MaxLineLength <= 0 {
		c.MaxLineLength = DefaultMaxLineLength
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if _, err := ParseLevel(c.LogLevel); err != nil || c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat != "text" && c.LogFormat != "json" {
		c.LogFormat = DefaultLogFormat
	}
	return c
}

// ParseLevel maps a level name onto slog.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("config: unknown log level %q", name)
	}
}

// NewLogger builds the process logger described by c.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := ParseLevel(c.LogLevel)
	opts := &slog.HandlerOptions{Level: level}

	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
