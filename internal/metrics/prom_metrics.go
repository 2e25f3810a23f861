// internal/metrics/prom_metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tamzrod/cgm-collector/internal/events"
)

// Metrics holds the collector's Prometheus instruments.
type Metrics struct {
	attempts  *prometheus.CounterVec
	faults    *prometheus.CounterVec
	events    *prometheus.CounterVec
	latency   prometheus.Histogram
	nextPoll  prometheus.Gauge
	readings  prometheus.Counter
	coalesced prometheus.Counter
}

// New creates the instruments and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cgm_download_attempts_total",
			Help: "Download attempts by classified status.",
		}, []string{"status"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cgm_download_faults_total",
			Help: "Reportable download faults by reason.",
		}, []string{"reason"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cgm_events_total",
			Help: "Events reported by category and severity.",
		}, []string{"category", "severity"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cgm_download_duration_seconds",
			Help:    "Wall time of one download attempt while holding the wake lock.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		nextPoll: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cgm_next_poll_delay_seconds",
			Help: "Delay programmed for the next poll.",
		}),
		readings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cgm_readings_downloaded_total",
			Help: "Sensor readings returned by successful downloads.",
		}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cgm_triggers_coalesced_total",
			Help: "Triggers merged into an already pending one.",
		}),
	}

	reg.MustRegister(m.attempts, m.faults, m.events, m.latency, m.nextPoll, m.readings, m.coalesced)
	return m
}

func (m *Metrics) ObserveAttempt(status string, took time.Duration) {
	m.attempts.WithLabelValues(status).Inc()
	m.latency.Observe(took.Seconds())
}

func (m *Metrics) Fault(reason string) {
	m.faults.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetNextPoll(d time.Duration) {
	m.nextPoll.Set(d.Seconds())
}

func (m *Metrics) AddReadings(n int) {
	if n > 0 {
		m.readings.Add(float64(n))
	}
}

func (m *Metrics) Coalesced() {
	m.coalesced.Inc()
}

// Report counts an event. It satisfies events.Reporter so it can sit in an events.Multi.
func (m *Metrics) Report(c events.Category, s events.Severity, _ string) {
	m.events.WithLabelValues(string(c), string(s)).Inc()
}

var _ events.Reporter = (*Metrics)(nil)
