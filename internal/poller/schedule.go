// internal/poller/schedule.go
package poller

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tamzrod/cgm-collector/internal/logging"
	"github.com/tamzrod/cgm-collector/internal/wake"
)

// PollState is the absolute time of the next programmed wake-up.
// Only Scheduler writes it; anyone may read it.
type PollState struct {
	mu   sync.RWMutex
	next time.Time
}

// Next returns the programmed wake-up, or false when none is scheduled.
func (s *PollState) Next() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.next, !s.next.IsZero()
}

func (s *PollState) set(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = t
}

func (s *PollState) clear() {
	s.set(time.Time{})
}

// Scheduler owns the single outstanding wake-up.
// States: Idle (nothing programmed) and Armed (wake-up at PollState.Next()).
type Scheduler struct {
	mu      sync.Mutex
	alarm   wake.Alarm
	state   *PollState
	clk     clock.Clock
	ceiling time.Duration
	log     logging.Logger
	fire    func()
}

// NewScheduler builds an Idle scheduler. state may be shared with readers.
func NewScheduler(alarm wake.Alarm, state *PollState, clk clock.Clock, ceiling time.Duration, log logging.Logger) *Scheduler {
	if state == nil {
		state = &PollState{}
	}
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = logging.Nop{}
	}
	return &Scheduler{
		alarm:   alarm,
		state:   state,
		clk:     clk,
		ceiling: ceiling,
		log:     log,
	}
}

// OnFire sets the callback invoked when the programmed wake-up fires.
func (s *Scheduler) OnFire(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fire = fn
}

// State exposes the poll state for read-only use.
func (s *Scheduler) State() *PollState {
	return s.state
}

// ScheduleIn arms a wake-up at now+delay, replacing any armed one.
// Exact alarms are preferred; plain alarms are a fallback.
func (s *Scheduler) ScheduleIn(delay time.Duration) {
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.clk.Now().Add(delay)
	s.log.Debug("setting next poll for %s from now (at=%s)", delay, at.Format(time.RFC3339))

	if ex, ok := s.alarm.(wake.ExactAlarm); ok {
		ex.ArmExact(at, s.onAlarm)
	} else {
		s.alarm.Arm(at, s.onAlarm)
	}
	s.state.set(at)
}

// Cancel removes the armed wake-up, if any, and resets the state to none.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Debug("cancelling next poll")
	s.alarm.Cancel()
	s.state.clear()
}

// Armed reports whether a wake-up is programmed.
func (s *Scheduler) Armed() bool {
	_, ok := s.state.Next()
	return ok
}

// RemainingUntilNext reports the countdown to the programmed poll, capped at
// the ceiling interval and floored at zero once the wake-up is due.
// ok is false when no poll is scheduled.
//
// This is the time left until the armed wake-up (next - now). It is not the
// complement against the sampling interval (ceiling - (next - now)), which
// would count up toward the ceiling instead of down toward the poll.
func (s *Scheduler) RemainingUntilNext() (d time.Duration, ok bool) {
	next, ok := s.state.Next()
	if !ok {
		return 0, false
	}
	d = next.Sub(s.clk.Now())
	if d < 0 {
		d = 0
	}
	if s.ceiling > 0 && d > s.ceiling {
		d = s.ceiling
	}
	return d, true
}

func (s *Scheduler) onAlarm() {
	s.mu.Lock()
	fn := s.fire
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}
