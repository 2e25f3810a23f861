// internal/poller/fakes_test.go
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tamzrod/cgm-collector/internal/download"
	"github.com/tamzrod/cgm-collector/internal/events"
)

// ---- session ----

type fakeSession struct {
	mu        sync.Mutex
	calls     int
	lastSince download.Since
	lastPages int

	active    int32
	maxActive int32
	hold      time.Duration

	result download.Download
	err    error
	panic  any
}

func (f *fakeSession) Download(ctx context.Context, since download.Since, pages int) (download.Download, error) {
	n := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		m := atomic.LoadInt32(&f.maxActive)
		if n <= m || atomic.CompareAndSwapInt32(&f.maxActive, m, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls++
	f.lastSince = since
	f.lastPages = pages
	f.mu.Unlock()

	if f.hold > 0 {
		time.Sleep(f.hold)
	}
	if f.panic != nil {
		panic(f.panic)
	}
	return f.result, f.err
}

func (f *fakeSession) IsConnected() bool { return true }
func (f *fakeSession) Close() error      { return nil }

// ---- store ----

type fakeStore struct {
	mu         sync.Mutex
	newest     download.Since
	newestErr  error
	persisted  []download.Download
	persistErr error
}

func (f *fakeStore) NewestRecordTimestamp(ctx context.Context, device download.DeviceType) (download.Since, error) {
	return f.newest, f.newestErr
}

func (f *fakeStore) Persist(ctx context.Context, d download.Download) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persisted = append(f.persisted, d)
	return f.persistErr
}

// ---- alarm ----

type fakeAlarm struct {
	mu    sync.Mutex
	at    time.Time
	armed bool
	exact int
	plain int
	fire  func()
}

func (a *fakeAlarm) Arm(at time.Time, fire func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.at, a.armed, a.fire = at, true, fire
	a.plain++
}

func (a *fakeAlarm) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.armed = false
	a.fire = nil
}

type fakeExactAlarm struct {
	fakeAlarm
}

func (a *fakeExactAlarm) ArmExact(at time.Time, fire func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.at, a.armed, a.fire = at, true, fire
	a.exact++
}

// ---- wake lock ----

type countingLock struct {
	acquired, released int32
}

func (l *countingLock) Acquire() error { atomic.AddInt32(&l.acquired, 1); return nil }
func (l *countingLock) Release() error { atomic.AddInt32(&l.released, 1); return nil }

// ---- reporter / telemetry ----

type event struct {
	c   events.Category
	s   events.Severity
	msg string
}

type recordingReporter struct {
	mu     sync.Mutex
	events []event
}

func (r *recordingReporter) Report(c events.Category, s events.Severity, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{c, s, msg})
}

type recordingTelemetry struct {
	mu        sync.Mutex
	attempts  []string
	faults    []string
	nextPoll  time.Duration
	readings  int
	coalesced int
}

func (r *recordingTelemetry) ObserveAttempt(status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, status)
}

func (r *recordingTelemetry) Fault(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults = append(r.faults, reason)
}

func (r *recordingTelemetry) SetNextPoll(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextPoll = d
}

func (r *recordingTelemetry) AddReadings(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readings += n
}

func (r *recordingTelemetry) Coalesced() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coalesced++
}

var errBoom = errors.New("boom")
