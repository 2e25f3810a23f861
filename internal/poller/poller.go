// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/tamzrod/cgm-collector/internal/download"
	"github.com/tamzrod/cgm-collector/internal/events"
	"github.com/tamzrod/cgm-collector/internal/logging"
	"github.com/tamzrod/cgm-collector/internal/wake"
)

// Scheduling is the part of Scheduler the poller drives.
type Scheduling interface {
	ScheduleIn(delay time.Duration)
}

// Config is the minimal runtime config the poller needs.
type Config struct {
	Device         download.DeviceType
	NextPoll       NextPoll
	ScheduledPages int
	ManualPages    int
}

// Deps are the poller's collaborators. Session may be nil (no device configured).
type Deps struct {
	Session   Session
	Store     Store
	Scheduler Scheduling
	Guard     *wake.Guard
	Reporter  events.Reporter
	Telemetry Telemetry
	Logger    logging.Logger
	Clock     clock.Clock
}

// Poller runs download attempts against one receiver session.
// Attempts are serialized: at most one touches the session at a time.
type Poller struct {
	cfg Config

	session  Session
	store    Store
	sched    Scheduling
	guard    *wake.Guard
	reporter events.Reporter
	tel      Telemetry
	log      logging.Logger
	clk      clock.Clock

	mu sync.Mutex
}

// New creates a poller with immutable config.
func New(cfg Config, deps Deps) (*Poller, error) {
	if deps.Store == nil {
		return nil, errors.New("poller: store required")
	}
	if deps.Scheduler == nil {
		return nil, errors.New("poller: scheduler required")
	}
	if cfg.NextPoll.Ceiling <= 0 || cfg.NextPoll.Fallback <= 0 {
		return nil, errors.New("poller: ceiling and fallback intervals must be > 0")
	}
	if cfg.ScheduledPages <= 0 {
		cfg.ScheduledPages = 1
	}
	if cfg.ManualPages <= 0 {
		cfg.ManualPages = cfg.ScheduledPages
	}

	p := &Poller{
		cfg:      cfg,
		session:  deps.Session,
		store:    deps.Store,
		sched:    deps.Scheduler,
		guard:    deps.Guard,
		reporter: deps.Reporter,
		tel:      deps.Telemetry,
		log:      deps.Logger,
		clk:      deps.Clock,
	}
	if p.guard == nil {
		p.guard = wake.NewGuard(nil)
	}
	if p.reporter == nil {
		p.reporter = events.Multi{}
	}
	if p.tel == nil {
		p.tel = nopTelemetry{}
	}
	if p.log == nil {
		p.log = logging.Nop{}
	}
	if p.clk == nil {
		p.clk = clock.New()
	}
	return p, nil
}

// Handle resolves the download cursor from the store and runs one attempt.
func (p *Poller) Handle(ctx context.Context, t Trigger) Result {
	since, err := p.store.NewestRecordTimestamp(ctx, p.cfg.Device)
	if err != nil {
		// Full download; the store ignores duplicates.
		p.log.Error("newest record lookup failed (device=%s): %v", p.cfg.Device, err)
		since = download.Since{}
	}

	pages := t.Pages
	if pages <= 0 {
		pages = p.cfg.ScheduledPages
		if t.Kind == TriggerManual {
			pages = p.cfg.ManualPages
		}
	}

	res := p.attempt(ctx, since, pages)
	res.Trigger = t
	return res
}

// RunOnce performs exactly one download attempt and reschedules.
// It returns nil when the attempt failed and nothing should be persisted.
// With no device configured it returns a DEVICE_NOT_FOUND placeholder without I/O.
func (p *Poller) RunOnce(ctx context.Context, since download.Since, pages int) *download.Download {
	return p.attempt(ctx, since, pages).Download
}

func (p *Poller) attempt(ctx context.Context, since download.Since, pages int) (res Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	res.AttemptID = uuid.NewString()
	res.At = p.clk.Now()

	release, err := p.guard.Hold()
	if err != nil {
		p.log.Error("wake lock not acquired (attempt=%s): %v", res.AttemptID, err)
	}
	defer func() {
		if err := release(); err != nil {
			p.log.Error("wake lock release failed (attempt=%s): %v", res.AttemptID, err)
		}
	}()

	if p.session == nil {
		p.log.Error("device not initialized, skipping download (attempt=%s)", res.AttemptID)
		d := download.Placeholder(res.At, p.cfg.Device, download.StatusDeviceNotFound)
		res.Status = d.Status
		res.Reason = download.ReasonNoDevice
		res.Download = &d
		p.tel.ObserveAttempt(res.Status.String(), 0)
		res.Delay = p.schedule(res.AttemptID, p.cfg.NextPoll.Delay(nil))
		return res
	}

	d, err := p.download(ctx, since, pages)
	out := download.Classify(d, err)
	res.Status = out.Status
	res.Reason = out.Reason
	p.tel.ObserveAttempt(out.Status.String(), p.clk.Since(res.At))

	if out.Status != download.StatusSuccess {
		if out.Reportable {
			p.reporter.Report(events.CategoryDevice, events.SeverityError, faultMessage(out, res.AttemptID))
			p.tel.Fault(out.Reason)
			p.log.Error("download failed (attempt=%s status=%s reason=%s): %v", res.AttemptID, out.Status, out.Reason, err)
		} else {
			p.log.Info("bad download, will try again (attempt=%s status=%s): %v", res.AttemptID, out.Status, err)
		}
		res.Delay = p.schedule(res.AttemptID, p.cfg.NextPoll.Delay(nil))
		return res
	}

	p.tel.AddReadings(len(d.Payload.Readings))
	if err := p.store.Persist(ctx, d); err != nil {
		p.reporter.Report(events.CategoryDatabase, events.SeverityError,
			fmt.Sprintf("unable to store %d readings (attempt=%s)", len(d.Payload.Readings), res.AttemptID))
		p.log.Error("persist failed (attempt=%s): %v", res.AttemptID, err)
	}

	res.Download = &d
	res.Delay = p.schedule(res.AttemptID, p.cfg.NextPoll.Delay(&d))
	return res
}

// download calls the session, converting decode panics into errors.
func (p *Poller) download(ctx context.Context, since download.Since, pages int) (d download.Download, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			d = download.Download{}
			err = download.FromPanic(rec)
		}
	}()
	return p.session.Download(ctx, since, pages)
}

func (p *Poller) schedule(attemptID string, delay time.Duration) time.Duration {
	p.log.Debug("next poll in %s (attempt=%s)", delay, attemptID)
	p.sched.ScheduleIn(delay)
	p.tel.SetNextPoll(delay)
	return delay
}

func faultMessage(out download.Outcome, attemptID string) string {
	switch out.Reason {
	case download.ReasonCRC:
		return "CRC check failed on receiver data (attempt=" + attemptID + ")"
	case download.ReasonFraming, download.ReasonEmptyPayload:
		return "unable to read from the receiver, will retry (attempt=" + attemptID + ")"
	default:
		return "unexpected error while downloading from the receiver (attempt=" + attemptID + ")"
	}
}
