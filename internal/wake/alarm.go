// internal/wake/alarm.go
package wake

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Alarm is the best-effort host wake primitive.
// Arm replaces any previously armed wake-up.
type Alarm interface {
	Arm(at time.Time, fire func())
	Cancel()
}

// ExactAlarm is implemented by alarms that fire at the requested instant
// without coalescing or deferral.
type ExactAlarm interface {
	Alarm
	ArmExact(at time.Time, fire func())
}

// ClockAlarm arms one timer on a clock.
// Arm rounds up to the next Granularity boundary; ArmExact does not.
type ClockAlarm struct {
	clk         clock.Clock
	granularity time.Duration

	mu    sync.Mutex
	timer *clock.Timer
	gen   uint64
}

// NewClockAlarm builds an alarm. A zero granularity makes Arm exact as well.
func NewClockAlarm(clk clock.Clock, granularity time.Duration) *ClockAlarm {
	if clk == nil {
		clk = clock.New()
	}
	return &ClockAlarm{clk: clk, granularity: granularity}
}

func (a *ClockAlarm) Arm(at time.Time, fire func()) {
	if a.granularity > 0 {
		if r := at.Truncate(a.granularity); r.Before(at) {
			at = r.Add(a.granularity)
		}
	}
	a.arm(at, fire)
}

func (a *ClockAlarm) ArmExact(at time.Time, fire func()) {
	a.arm(at, fire)
}

func (a *ClockAlarm) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
}

func (a *ClockAlarm) arm(at time.Time, fire func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopLocked()
	a.gen++
	gen := a.gen

	d := at.Sub(a.clk.Now())
	if d < 0 {
		d = 0
	}
	a.timer = a.clk.AfterFunc(d, func() {
		// A timer that was replaced between firing and this check is stale.
		a.mu.Lock()
		current := a.gen == gen
		if current {
			a.timer = nil
		}
		a.mu.Unlock()
		if current {
			fire()
		}
	})
}

func (a *ClockAlarm) stopLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.gen++
}

var _ ExactAlarm = (*ClockAlarm)(nil)
