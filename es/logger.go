package es

import (
	"context"
	"fmt"
	"log"
)

// Logger is the structured logging interface used across the module.
// Key/value pairs alternate in kv. A nil Logger is valid everywhere and
// disables logging.
type Logger interface {
	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, msg string, kv ...any)
}

// StdLogger adapts the standard library logger to the Logger interface.
type StdLogger struct {
	logger *log.Logger
}

// NewStdLogger creates a Logger backed by the given standard library logger.
// Passing nil uses the default logger.
func NewStdLogger(logger *log.Logger) *StdLogger {
	if logger == nil {
		logger = log.Default()
	}
	return &StdLogger{logger: logger}
}

func (l *StdLogger) Debug(ctx context.Context, msg string, kv ...any) { l.print("DEBUG", msg, kv) }
func (l *StdLogger) Info(ctx context.Context, msg string, kv ...any)  { l.print("INFO", msg, kv) }
func (l *StdLogger) Warn(ctx context.Context, msg string, kv ...any)  { l.print("WARN", msg, kv) }
func (l *StdLogger) Error(ctx context.Context, msg string, kv ...any) { l.print("ERROR", msg, kv) }

func (l *StdLogger) print(level, msg string, kv []any) {
	line := level + " " + msg
	for i := 0; i+1 < len(kv); i += 2 {
		line += fmt.Sprintf(" %v=%v", kv[i], kv[i+1])
	}
	if len(kv)%2 == 1 {
		line += fmt.Sprintf(" %v", kv[len(kv)-1])
	}
	l.logger.Println(line)
}
