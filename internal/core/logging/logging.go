// SPDX-License-Identifier: Apache-2.0

// Package logging builds the structured loggers handed to every component.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/phuslu/log"
	"golang.org/x/term"
)

// New returns a logger writing to stderr. Format "auto" picks the console
// writer on a terminal and JSON lines otherwise.
func New(level, format string) (*log.Logger, error) {
	return NewWithWriter(os.Stderr, level, format, term.IsTerminal(int(os.Stderr.Fd())))
}

// NewWithWriter is New with an explicit destination
func NewWithWriter(w io.Writer, level, format string, tty bool) (*log.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	logger := &log.Logger{
		Level:      lvl,
		TimeFormat: "15:04:05",
	}

	switch strings.ToLower(format) {
	case "console":
		logger.Writer = &log.ConsoleWriter{Writer: w, ColorOutput: tty}
	case "json":
		logger.Writer = &log.IOWriter{Writer: w}
	case "", "auto":
		if tty {
			logger.Writer = &log.ConsoleWriter{Writer: w, ColorOutput: true}
		} else {
			logger.Writer = &log.IOWriter{Writer: w}
		}
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return logger, nil
}

// Discard returns a logger that drops everything
func Discard() *log.Logger {
	return &log.Logger{Level: log.ErrorLevel, Writer: &log.IOWriter{Writer: io.Discard}}
}

func parseLevel(level string) (log.Level, error) {
	switch strings.ToLower(level) {
	case "trace":
		return log.TraceLevel, nil
	case "debug":
		return log.DebugLevel, nil
	case "", "info":
		return log.InfoLevel, nil
	case "warn", "warning":
		return log.WarnLevel, nil
	case "error":
		return log.ErrorLevel, nil
	}
	return log.InfoLevel, fmt.Errorf("unknown log level %q", level)
}
