// internal/status/tracker.go
package status

import (
	"time"

	"github.com/tamzrod/cgm-collector/internal/download"
	"github.com/tamzrod/cgm-collector/internal/poller"
)

// Tracker folds attempt results and 1 Hz ticks into a Snapshot.
// It is owned by a single goroutine.
type Tracker struct {
	snap Snapshot
}

// NewTracker starts in the boot state (HealthUnknown).
func NewTracker() *Tracker {
	return &Tracker{snap: Snapshot{Health: HealthUnknown}}
}

func (t *Tracker) Snapshot() Snapshot {
	return t.snap
}

// Apply folds one attempt result. It reports whether the snapshot changed.
func (t *Tracker) Apply(res poller.Result) bool {
	next := t.snap

	switch {
	case res.Status == download.StatusSuccess:
		next.Health = HealthOK
		next.LastErrorCode = 0
		next.SecondsInError = 0 // reset on recovery

		if res.Download != nil {
			if last, ok := res.Download.Payload.Latest(); ok {
				next.LastGlucose = last.Glucose
				next.LastTrend = uint16(last.Trend)
			} else {
				next.Health = HealthStale
			}
		}

	case res.Reason == download.ReasonNoDevice:
		next.Health = HealthDisabled
		next.LastErrorCode = res.Status.Code()

	default:
		next.Health = HealthError
		next.LastErrorCode = res.Status.Code()
		// seconds_in_error increments on the 1 Hz tick only.
	}

	next.SecondsToNextPoll = seconds(res.Delay)

	changed := next != t.snap
	t.snap = next
	return changed
}

// Tick advances the 1 Hz counters. remaining/scheduled come from the scheduler.
// It reports whether the snapshot changed.
func (t *Tracker) Tick(remaining time.Duration, scheduled bool) bool {
	next := t.snap

	inError := next.Health == HealthError || next.Health == HealthDisabled
	if inError && next.SecondsInError < MaxCounter {
		next.SecondsInError++
	}

	if scheduled {
		next.SecondsToNextPoll = seconds(remaining)
	} else {
		next.SecondsToNextPoll = 0
	}

	changed := next != t.snap
	t.snap = next
	return changed
}

func seconds(d time.Duration) uint16 {
	s := int64(d / time.Second)
	switch {
	case s < 0:
		return 0
	case s > MaxCounter:
		return MaxCounter
	}
	return uint16(s)
}
