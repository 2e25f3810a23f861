// internal/poller/types.go
package poller

import (
	"context"
	"time"

	"github.com/tamzrod/cgm-collector/internal/download"
)

// Session is one logical connection to the receiver.
// Download blocks on device I/O; it connects on demand and reuses the link.
type Session interface {
	Download(ctx context.Context, since download.Since, pages int) (download.Download, error)
	IsConnected() bool
	Close() error
}

// Store persists downloaded records.
type Store interface {
	NewestRecordTimestamp(ctx context.Context, device download.DeviceType) (download.Since, error)
	Persist(ctx context.Context, d download.Download) error
}

// Telemetry receives counters and gauges about attempts.
type Telemetry interface {
	ObserveAttempt(status string, took time.Duration)
	Fault(reason string)
	SetNextPoll(d time.Duration)
	AddReadings(n int)
	Coalesced()
}

// TriggerKind tells why an attempt was started.
type TriggerKind uint8

const (
	TriggerScheduled TriggerKind = iota
	TriggerManual
)

func (k TriggerKind) String() string {
	if k == TriggerManual {
		return "manual"
	}
	return "scheduled"
}

// Trigger requests one attempt. Pages is a hint for how many record pages to
// read; 0 means the configured default for the kind.
type Trigger struct {
	Kind  TriggerKind
	Pages int
}

// Result is the full outcome of one handled trigger.
type Result struct {
	AttemptID string
	Trigger   Trigger
	At        time.Time
	Status    download.Status
	Reason    string
	Delay     time.Duration

	// Download is nil when there is nothing to persist this cycle.
	Download *download.Download
}

type nopTelemetry struct{}

func (nopTelemetry) ObserveAttempt(string, time.Duration) {}
func (nopTelemetry) Fault(string)                         {}
func (nopTelemetry) SetNextPoll(time.Duration)            {}
func (nopTelemetry) AddReadings(int)                      {}
func (nopTelemetry) Coalesced()                           {}
