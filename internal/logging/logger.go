// Package logging provides structured logging for the relay server.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string // "json" or "console"
	Output io.Writer
}

// Logger wraps zerolog.Logger with additional context
type Logger struct {
	zerolog.Logger
}

// NewLogger creates a new structured logger
func NewLogger(cfg LogConfig) *Logger {
	// Set global log level
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure output
	var output io.Writer
	if cfg.Output != nil {
		output = cfg.Output
	} else {
		output = os.Stdout
	}

	// Configure format
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	// Create logger with common fields
	logger := zerolog.New(output).
		With().
		Timestamp().
		Str("service", "cepa-node").
		Logger()

	return &Logger{Logger: logger}
}

// WithComponent returns a logger with component context
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.With().Str("component", component).Logger(),
	}
}

// WithHop returns a logger tagged with the next-hop address a packet is
// being forwarded to.
func (l *Logger) WithHop(nextHop string) *Logger {
	return &Logger{
		Logger: l.With().Str("next_hop", nextHop).Logger(),
	}
}

// WithPeer returns a logger tagged with the remote address of an inbound
// connection.
func (l *Logger) WithPeer(addr string) *Logger {
	return &Logger{
		Logger: l.With().Str("peer", addr).Logger(),
	}
}

// WithRecord returns a logger tagged with a delivery log record ID, so a
// log line and the corresponding DeliveryLog entry can be correlated.
func (l *Logger) WithRecord(id string) *Logger {
	return &Logger{
		Logger: l.With().Str("record_id", id).Logger(),
	}
}
