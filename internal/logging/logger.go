// internal/logging/logger.go
package logging

import (
	"fmt"
	"log"
)

// Logger is the printf-style logging contract used by runtime components.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// StdLogger writes through a standard library logger with level prefixes.
type StdLogger struct {
	logger *log.Logger
	debug  bool
}

// NewStdLogger wraps l. Debug lines are dropped unless debug is set.
func NewStdLogger(l *log.Logger, debug bool) *StdLogger {
	return &StdLogger{logger: l, debug: debug}
}

func (l *StdLogger) Debug(msg string, args ...any) {
	if !l.debug {
		return
	}
	l.logger.Printf("DEBUG: %s", fmt.Sprintf(msg, args...))
}

func (l *StdLogger) Info(msg string, args ...any) {
	l.logger.Printf("INFO: %s", fmt.Sprintf(msg, args...))
}

func (l *StdLogger) Error(msg string, args ...any) {
	l.logger.Printf("ERROR: %s", fmt.Sprintf(msg, args...))
}

// Nop discards everything.
type Nop struct{}

func (Nop) Debug(string, ...any) {}
func (Nop) Info(string, ...any)  {}
func (Nop) Error(string, ...any) {}
