// internal/events/events.go
package events

import (
	"github.com/tamzrod/cgm-collector/internal/logging"
)

// Category groups events by the subsystem that raised them.
type Category string

const (
	CategoryDevice   Category = "device"
	CategoryDatabase Category = "database"
	CategoryPoll     Category = "poll"
)

// Severity of an event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Reporter receives user-visible events.
// Implementations must not block on I/O for long; callers hold a wake lock.
type Reporter interface {
	Report(c Category, s Severity, msg string)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(c Category, s Severity, msg string)

func (f ReporterFunc) Report(c Category, s Severity, msg string) { f(c, s, msg) }

// LogReporter writes events to a logger.
type LogReporter struct {
	log logging.Logger
}

func NewLogReporter(l logging.Logger) *LogReporter {
	return &LogReporter{log: l}
}

func (r *LogReporter) Report(c Category, s Severity, msg string) {
	switch s {
	case SeverityError, SeverityWarning:
		r.log.Error("event category=%s severity=%s: %s", c, s, msg)
	default:
		r.log.Info("event category=%s severity=%s: %s", c, s, msg)
	}
}

// Multi fans an event out to several reporters in order.
type Multi []Reporter

func (m Multi) Report(c Category, s Severity, msg string) {
	for _, r := range m {
		if r != nil {
			r.Report(c, s, msg)
		}
	}
}
