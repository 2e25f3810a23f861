// internal/poller/builder.go
package poller

import (
	"errors"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tamzrod/cgm-collector/internal/config"
	"github.com/tamzrod/cgm-collector/internal/download"
	"github.com/tamzrod/cgm-collector/internal/events"
	"github.com/tamzrod/cgm-collector/internal/logging"
	"github.com/tamzrod/cgm-collector/internal/receiver"
	"github.com/tamzrod/cgm-collector/internal/wake"
)

// alarmGranularity is the slack allowed to best-effort (non-exact) alarms.
const alarmGranularity = time.Second

// BuildDeps are the process-wide collaborators handed to Build.
type BuildDeps struct {
	Store     Store
	Reporter  events.Reporter
	Telemetry Telemetry
	Logger    logging.Logger
	Clock     clock.Clock

	// Results receives one Result per handled trigger. May be nil.
	Results chan<- Result

	// Dial overrides the serial dialer (tests).
	Dial receiver.Dialer
}

// Built is the wired polling pipeline for one receiver.
type Built struct {
	Poller    *Poller
	Runner    *Runner
	Scheduler *Scheduler
	Session   Session // nil when no device is configured
}

// Build constructs the session, scheduler, poller and runner and wires the
// scheduler's wake-up into the runner.
// The session connects lazily; nothing touches the device here.
func Build(c config.CollectorConfig, deps BuildDeps) (*Built, func() error, error) {
	if deps.Store == nil {
		return nil, nil, errors.New("poller: store required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	log := deps.Logger

	// ---- session ----
	device := download.DeviceType(c.Device.Type)
	var sess Session
	switch {
	case device == download.DeviceNone:
		log.Info("no device type configured, polls will report %s", download.StatusDeviceNotFound)
	case !config.KnownDeviceType(c.Device.Type):
		log.Error("unknown device type %q, polls will report %s", c.Device.Type, download.StatusDeviceNotFound)
		device = download.DeviceNone
	default:
		dial := deps.Dial
		if dial == nil {
			dial = receiver.SerialDialer(receiver.SerialConfig{
				Port:     c.Device.Port,
				BaudRate: c.Device.BaudRate,
				Timeout:  time.Duration(c.Device.TimeoutMs) * time.Millisecond,
			})
		}
		rs, err := receiver.NewSession(receiver.Config{
			Device: device,
			Dial:   dial,
			Clock:  deps.Clock,
		})
		if err != nil {
			return nil, nil, err
		}
		sess = rs
	}

	// ---- power retention ----
	var lock wake.Lock
	if sl, err := wake.NewSysfsLock(c.WakeLock.Name, c.WakeLock.Dir); err != nil {
		log.Info("wake lock disabled (dir=%s): %v", c.WakeLock.Dir, err)
	} else {
		lock = sl
	}

	// ---- scheduling ----
	np := NextPoll{
		Ceiling:  time.Duration(c.Poll.CeilingSec) * time.Second,
		Fallback: time.Duration(c.Poll.FallbackSec) * time.Second,
		Min:      time.Duration(c.Poll.MinDelaySec) * time.Second,
	}
	sched := NewScheduler(wake.NewClockAlarm(deps.Clock, alarmGranularity), &PollState{}, deps.Clock, np.Ceiling, log)

	p, err := New(
		Config{
			Device:         device,
			NextPoll:       np,
			ScheduledPages: c.Poll.ScheduledPages,
			ManualPages:    c.Poll.ManualPages,
		},
		Deps{
			Session:   sess,
			Store:     deps.Store,
			Scheduler: sched,
			Guard:     wake.NewGuard(lock),
			Reporter:  deps.Reporter,
			Telemetry: deps.Telemetry,
			Logger:    log,
			Clock:     deps.Clock,
		},
	)
	if err != nil {
		return nil, nil, err
	}

	r := NewRunner(p, deps.Results, deps.Telemetry)
	scheduledPages := c.Poll.ScheduledPages
	sched.OnFire(func() {
		r.Submit(Trigger{Kind: TriggerScheduled, Pages: scheduledPages})
	})

	closeAll := func() error {
		sched.Cancel()
		if sess != nil {
			return sess.Close()
		}
		return nil
	}

	return &Built{Poller: p, Runner: r, Scheduler: sched, Session: sess}, closeAll, nil
}
