// Package logging configures the process-wide charmbracelet logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the debug log written to the data directory.
const FileName = "sprachcache.log"

// Options selects the log level and destination.
type Options struct {
	Level   string
	Debug   bool   // forces debug level and tees into a rotating file
	Dir     string // directory for the debug log file
	Output  io.Writer
	NoColor bool
}

// Setup configures log.Default and returns a function closing any opened
// log file.
func Setup(opts Options) (func() error, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level, err := log.ParseLevel(opts.Level)
	if err != nil {
		level = log.InfoLevel
	}

	closer := func() error { return nil }
	if opts.Debug {
		level = log.DebugLevel
		if opts.Dir != "" {
			if err := os.MkdirAll(opts.Dir, 0o755); err != nil { //nolint:gosec
				return closer, fmt.Errorf("unable to create log directory: %w", err)
			}
			rotating := &lumberjack.Logger{
				Filename:   filepath.Join(opts.Dir, FileName),
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     14, // days
			}
			out = io.MultiWriter(out, rotating)
			closer = rotating.Close
		}
	}

	log.SetOutput(out)
	log.SetLevel(level)
	log.SetReportTimestamp(opts.Debug)
	if opts.NoColor {
		log.SetColorProfile(termenv.Ascii)
	}
	return closer, nil
}

// SetLevel changes the level of log.Default.
func SetLevel(level string) error {
	l, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(l)
	return nil
}

// New returns a logger scoped to a component.
func New(prefix string) *log.Logger {
	return log.Default().WithPrefix(prefix)
}
