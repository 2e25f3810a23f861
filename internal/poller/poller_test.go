// internal/poller/poller_test.go
package poller

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tamzrod/cgm-collector/internal/download"
	"github.com/tamzrod/cgm-collector/internal/events"
	"github.com/tamzrod/cgm-collector/internal/wake"
)

type harness struct {
	clk   *clock.Mock
	alarm *fakeExactAlarm
	sched *Scheduler
	store *fakeStore
	lock  *countingLock
	rep   *recordingReporter
	tel   *recordingTelemetry
	p     *Poller
}

func newHarness(t *testing.T, session Session) *harness {
	t.Helper()

	h := &harness{
		clk:   clock.NewMock(),
		alarm: &fakeExactAlarm{},
		store: &fakeStore{},
		lock:  &countingLock{},
		rep:   &recordingReporter{},
		tel:   &recordingTelemetry{},
	}
	h.sched = NewScheduler(h.alarm, nil, h.clk, DefaultCeiling, nil)

	p, err := New(
		Config{
			Device:         download.DeviceDexcomG4,
			NextPoll:       DefaultNextPoll(),
			ScheduledPages: 1,
			ManualPages:    2,
		},
		Deps{
			Session:   session,
			Store:     h.store,
			Scheduler: h.sched,
			Guard:     wake.NewGuard(h.lock),
			Reporter:  h.rep,
			Telemetry: h.tel,
			Clock:     h.clk,
		},
	)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	h.p = p
	return h
}

func (h *harness) assertArmedIn(t *testing.T, want time.Duration) {
	t.Helper()
	if !h.sched.Armed() {
		t.Fatalf("scheduler idle after attempt")
	}
	next, _ := h.sched.State().Next()
	if got := next.Sub(h.clk.Now()); got != want {
		t.Fatalf("next poll in %s, want %s", got, want)
	}
}

func (h *harness) assertGuardOnce(t *testing.T, attempts int32) {
	t.Helper()
	if h.lock.acquired != attempts || h.lock.released != attempts {
		t.Fatalf("wake lock acquired=%d released=%d, want %d each", h.lock.acquired, h.lock.released, attempts)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{NextPoll: DefaultNextPoll()}, Deps{Scheduler: &Scheduler{}}); err == nil {
		t.Fatalf("expected error without store")
	}
	if _, err := New(Config{NextPoll: DefaultNextPoll()}, Deps{Store: &fakeStore{}}); err == nil {
		t.Fatalf("expected error without scheduler")
	}
	if _, err := New(Config{}, Deps{Store: &fakeStore{}, Scheduler: &Scheduler{}}); err == nil {
		t.Fatalf("expected error without intervals")
	}
}

func TestRunOnce_Success(t *testing.T) {
	sess := &fakeSession{
		result: download.New(time.Unix(0, 0), download.DeviceDexcomG4, 420, []download.Reading{
			{SystemTime: 300, Glucose: 120},
		}),
	}
	h := newHarness(t, sess)

	d := h.p.RunOnce(context.Background(), download.SinceTime(10), 1)
	if d == nil || d.Status != download.StatusSuccess {
		t.Fatalf("expected success download, got %+v", d)
	}
	if len(h.store.persisted) != 1 {
		t.Fatalf("expected one persist, got %d", len(h.store.persisted))
	}
	if sess.lastSince != download.SinceTime(10) || sess.lastPages != 1 {
		t.Fatalf("session called with since=%+v pages=%d", sess.lastSince, sess.lastPages)
	}
	h.assertArmedIn(t, 480*time.Second)
	h.assertGuardOnce(t, 1)
	if h.tel.readings != 1 || len(h.rep.events) != 0 {
		t.Fatalf("readings=%d events=%d", h.tel.readings, len(h.rep.events))
	}
}

func TestRunOnce_CRCFault(t *testing.T) {
	sess := &fakeSession{err: &download.CRCError{Where: "record", Want: 0x1234, Got: 0x4321}}
	h := newHarness(t, sess)

	d := h.p.RunOnce(context.Background(), download.Since{}, 1)
	if d != nil {
		t.Fatalf("expected nil download, got %+v", d)
	}
	if len(h.rep.events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(h.rep.events))
	}
	if ev := h.rep.events[0]; ev.c != events.CategoryDevice || ev.s != events.SeverityError {
		t.Fatalf("unexpected event %+v", ev)
	}
	if len(h.tel.faults) != 1 || h.tel.faults[0] != download.ReasonCRC {
		t.Fatalf("unexpected telemetry faults %v", h.tel.faults)
	}
	if h.tel.attempts[0] != "TRANSPORT_FAULT" {
		t.Fatalf("unexpected attempt status %v", h.tel.attempts)
	}
	if len(h.store.persisted) != 0 {
		t.Fatalf("fault must not persist")
	}
	h.assertArmedIn(t, 2*time.Minute)
	h.assertGuardOnce(t, 1)
}

func TestRunOnce_EveryFaultReschedules(t *testing.T) {
	cases := map[string]*fakeSession{
		"not found": {err: download.ErrDeviceNotFound},
		"framing":   {err: &download.FrameError{Op: "page", Err: io.ErrShortBuffer}},
		"crc":       {err: &download.CRCError{Where: "packet"}},
		"unknown":   {err: errBoom},
		"panic":     {panic: "decoder exploded"},
		"bounds":    {panic: boundsPanic()},
		"bad":       {result: download.Placeholder(time.Unix(0, 0), download.DeviceDexcomG4, download.StatusTransportFault)},
	}

	for name, sess := range cases {
		h := newHarness(t, sess)
		if d := h.p.RunOnce(context.Background(), download.Since{}, 1); d != nil {
			t.Fatalf("%s: expected nil download, got %+v", name, d)
		}
		if !h.sched.Armed() {
			t.Fatalf("%s: scheduler idle after fault", name)
		}
		h.assertArmedIn(t, DefaultFallback)
		h.assertGuardOnce(t, 1)
	}
}

func TestRunOnce_NotFoundIsNotReported(t *testing.T) {
	h := newHarness(t, &fakeSession{err: download.ErrDeviceNotFound})
	h.p.RunOnce(context.Background(), download.Since{}, 1)
	if len(h.rep.events) != 0 || len(h.tel.faults) != 0 {
		t.Fatalf("device-not-found must be logged only, events=%d faults=%d", len(h.rep.events), len(h.tel.faults))
	}
}

func TestRunOnce_FlaggedBadDownloadIsReported(t *testing.T) {
	for _, st := range []download.Status{download.StatusTransportFault, download.StatusUnknownFault} {
		h := newHarness(t, &fakeSession{result: download.Placeholder(time.Unix(0, 0), download.DeviceDexcomG4, st)})

		res := h.p.Handle(context.Background(), Trigger{Kind: TriggerScheduled})
		if res.Status != st || res.Download != nil {
			t.Fatalf("%s: unexpected result %+v", st, res)
		}
		if len(h.rep.events) != 1 || h.rep.events[0].c != events.CategoryDevice {
			t.Fatalf("%s: expected one device event, got %+v", st, h.rep.events)
		}
		if len(h.tel.faults) != 1 || h.tel.faults[0] != download.ReasonBadDownload {
			t.Fatalf("%s: unexpected telemetry faults %v", st, h.tel.faults)
		}
		h.assertArmedIn(t, DefaultFallback)
	}
}

func TestRunOnce_BoundsPanicIsTransportFault(t *testing.T) {
	h := newHarness(t, &fakeSession{panic: boundsPanic()})

	res := h.p.Handle(context.Background(), Trigger{Kind: TriggerScheduled})
	if res.Status != download.StatusTransportFault {
		t.Fatalf("expected TRANSPORT_FAULT, got %s", res.Status)
	}
	if len(h.rep.events) != 1 {
		t.Fatalf("expected one event, got %d", len(h.rep.events))
	}
}

func TestRunOnce_NoSession(t *testing.T) {
	h := newHarness(t, nil)

	d := h.p.RunOnce(context.Background(), download.Since{}, 1)
	if d == nil || d.Status != download.StatusDeviceNotFound {
		t.Fatalf("expected DEVICE_NOT_FOUND placeholder, got %+v", d)
	}
	if d.Payload != nil {
		t.Fatalf("placeholder must carry no payload")
	}
	if len(h.store.persisted) != 0 || len(h.rep.events) != 0 {
		t.Fatalf("no-device path must do nothing but reschedule")
	}
	h.assertArmedIn(t, DefaultFallback)
	h.assertGuardOnce(t, 1)
}

func TestRunOnce_PersistFailureStillReturnsDownload(t *testing.T) {
	sess := &fakeSession{
		result: download.New(time.Unix(0, 0), download.DeviceDexcomG4, 900, []download.Reading{{SystemTime: 600}}),
	}
	h := newHarness(t, sess)
	h.store.persistErr = errBoom

	d := h.p.RunOnce(context.Background(), download.Since{}, 1)
	if d == nil {
		t.Fatalf("expected download despite persist failure")
	}
	if len(h.rep.events) != 1 || h.rep.events[0].c != events.CategoryDatabase {
		t.Fatalf("expected one database event, got %+v", h.rep.events)
	}
	// (900-600) mod 600 = 300
	h.assertArmedIn(t, 300*time.Second)
}

func TestHandle_UsesStoreCursorAndPageHints(t *testing.T) {
	sess := &fakeSession{
		result: download.New(time.Unix(0, 0), download.DeviceDexcomG4, 900, nil),
	}
	h := newHarness(t, sess)
	h.store.newest = download.SinceTime(777)

	res := h.p.Handle(context.Background(), Trigger{Kind: TriggerManual})
	if sess.lastSince != download.SinceTime(777) {
		t.Fatalf("since=%+v, want 777", sess.lastSince)
	}
	if sess.lastPages != 2 {
		t.Fatalf("manual trigger pages=%d, want 2", sess.lastPages)
	}
	if res.Trigger.Kind != TriggerManual || res.AttemptID == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	// Success without readings falls back.
	if res.Delay != DefaultFallback {
		t.Fatalf("delay=%s want fallback", res.Delay)
	}

	h.p.Handle(context.Background(), Trigger{Kind: TriggerScheduled, Pages: 5})
	if sess.lastPages != 5 {
		t.Fatalf("explicit page hint ignored, got %d", sess.lastPages)
	}
}

func TestHandle_CursorLookupFailure(t *testing.T) {
	sess := &fakeSession{result: download.New(time.Unix(0, 0), download.DeviceDexcomG4, 900, nil)}
	h := newHarness(t, sess)
	h.store.newestErr = errBoom

	h.p.Handle(context.Background(), Trigger{})
	if sess.lastSince.Valid {
		t.Fatalf("expected full download after lookup failure")
	}
}

func TestRunOnce_SerializesConcurrentCallers(t *testing.T) {
	sess := &fakeSession{
		hold:   10 * time.Millisecond,
		result: download.New(time.Unix(0, 0), download.DeviceDexcomG4, 900, []download.Reading{{SystemTime: 600}}),
	}
	h := newHarness(t, sess)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.p.RunOnce(context.Background(), download.Since{}, 1)
		}()
	}
	wg.Wait()

	if sess.maxActive != 1 {
		t.Fatalf("expected one in-flight download at a time, saw %d", sess.maxActive)
	}
	if sess.calls != 8 {
		t.Fatalf("expected 8 serialized calls, got %d", sess.calls)
	}
	h.assertGuardOnce(t, 8)
}

func boundsPanic() (rec any) {
	defer func() { rec = recover() }()
	idx := 7
	var page []byte
	_ = page[idx]
	return nil
}
