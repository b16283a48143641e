// Package logging builds the zerolog loggers relay components share. File
// output goes to .relay/logs/relay.log so failures can be inspected after a
// watch session closes; console output serves interactive commands.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// FileName is the log file created inside the log directory.
const FileName = "relay.log"

// Options selects where log lines go and how verbose they are.
type Options struct {
	// Dir is the log directory; empty disables the file sink.
	Dir string
	// Console mirrors log lines to stderr with human formatting.
	Console bool
	// Debug lowers the level threshold to debug.
	Debug bool
}

// New builds the root logger plus a closer for the file sink. With no sink
// configured the logger is a no-op.
func New(opts Options) (zerolog.Logger, func() error, error) {
	closer := func() error { return nil }
	var sinks []io.Writer
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("logging: ensure log dir: %w", err)
		}
		file, err := os.OpenFile(filepath.Join(opts.Dir, FileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("logging: open log file: %w", err)
		}
		sinks = append(sinks, file)
		closer = file.Close
	}
	if opts.Console {
		sinks = append(sinks, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	if len(sinks) == 0 {
		return zerolog.Nop(), closer, nil
	}
	level := zerolog.InfoLevel
	if opts.Debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(io.MultiWriter(sinks...)).Level(level).With().Timestamp().Logger()
	return logger, closer, nil
}

// Component tags a child logger for one subsystem.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
