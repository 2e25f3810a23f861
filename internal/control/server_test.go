// internal/control/server_test.go
package control

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tamzrod/cgm-collector/internal/metrics"
	"github.com/tamzrod/cgm-collector/internal/poller"
	"github.com/tamzrod/cgm-collector/internal/wake"
)

type recordingSubmitter struct {
	mu       sync.Mutex
	triggers []poller.Trigger
	accept   bool
}

func (r *recordingSubmitter) Submit(t poller.Trigger) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers = append(r.triggers, t)
	return r.accept
}

func newTestScheduler(mock *clock.Mock) *poller.Scheduler {
	return poller.NewScheduler(wake.NewClockAlarm(mock, time.Second), &poller.PollState{}, mock, 600*time.Second, nil)
}

func TestSync_SubmitsManualTrigger(t *testing.T) {
	sub := &recordingSubmitter{accept: true}
	h := NewHandler(sub, newTestScheduler(clock.NewMock()), nil, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync?pages=3", nil))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status got=%d want=%d", rec.Code, http.StatusAccepted)
	}
	if len(sub.triggers) != 1 || sub.triggers[0].Kind != poller.TriggerManual || sub.triggers[0].Pages != 3 {
		t.Fatalf("unexpected triggers %+v", sub.triggers)
	}

	var body SyncResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Queued || body.Coalesced || body.Pages != 3 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestSync_ReportsCoalesced(t *testing.T) {
	sub := &recordingSubmitter{accept: false}
	h := NewHandler(sub, newTestScheduler(clock.NewMock()), nil, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync", nil))

	var body SyncResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Queued || !body.Coalesced {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestSync_RejectsBadPages(t *testing.T) {
	sub := &recordingSubmitter{accept: true}
	h := NewHandler(sub, newTestScheduler(clock.NewMock()), nil, nil)

	for _, q := range []string{"pages=-1", "pages=abc", "pages=256"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync?"+q, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status got=%d want=400", q, rec.Code)
		}
	}
	if len(sub.triggers) != 0 {
		t.Fatalf("rejected requests must not submit")
	}
}

func TestPoll_StateAndCancel(t *testing.T) {
	mock := clock.NewMock()
	sched := newTestScheduler(mock)
	h := NewHandler(&recordingSubmitter{}, sched, nil, nil)

	get := func() PollResponse {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/poll", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("GET /poll status=%d", rec.Code)
		}
		var body PollResponse
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return body
	}

	if body := get(); body.Scheduled || body.NextPoll != nil {
		t.Fatalf("idle scheduler reported %+v", body)
	}

	sched.ScheduleIn(300 * time.Second)
	body := get()
	if !body.Scheduled || body.RemainingSec != 300 || body.NextPoll == nil {
		t.Fatalf("armed scheduler reported %+v", body)
	}
	if !body.NextPoll.Equal(mock.Now().Add(300 * time.Second)) {
		t.Fatalf("next poll got=%s", body.NextPoll)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/poll", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE /poll status=%d", rec.Code)
	}
	if sched.Armed() {
		t.Fatalf("cancel must disarm the scheduler")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ObserveAttempt("SUCCESS", 250*time.Millisecond)

	h := NewHandler(&recordingSubmitter{}, newTestScheduler(clock.NewMock()), reg, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics status=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "cgm_download_attempts_total") {
		t.Fatalf("metrics body missing attempts counter")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := NewHandler(&recordingSubmitter{}, newTestScheduler(clock.NewMock()), nil, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sync", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /sync status got=%d want=405", rec.Code)
	}
}
