// Package metrics keeps the loop counters and exposes them to Prometheus.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Frame counters
	FramesRead    atomic.Uint64
	FramesSkipped atomic.Uint64 // bad reads
	FramesGated   atomic.Uint64 // dropped by the motion gate
	FramesIdle    atomic.Uint64 // read while disarmed

	// Detection counters
	PersonFrames   atomic.Uint64 // frames with at least one qualifying person
	Throttled      atomic.Uint64
	CapSuppressed  atomic.Uint64
	EventsAllowed  atomic.Uint64
	EventsIntruder atomic.Uint64

	// Delivery
	NotifySent   atomic.Uint64
	NotifyFailed atomic.Uint64
	HookFailures atomic.Uint64

	// Errors
	DetectErrors atomic.Uint64
	FaceErrors   atomic.Uint64
	LogErrors    atomic.Uint64 // CSV, snapshot and store writes

	// Timing
	DetectLatencyMs atomic.Uint64 // last detector round trip
	LastEventUnix   atomic.Int64

	Armed atomic.Bool

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.Armed.Store(true)
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) counter(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{Namespace: "doorcam", Name: name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	m.counter("frames_read_total", "Frames read from the camera", &m.FramesRead)
	m.counter("frames_skipped_total", "Frames skipped after a read error", &m.FramesSkipped)
	m.counter("frames_gated_total", "Frames dropped by the motion gate", &m.FramesGated)
	m.counter("frames_idle_total", "Frames read while disarmed", &m.FramesIdle)
	m.counter("person_frames_total", "Frames with a person above the confidence threshold", &m.PersonFrames)
	m.counter("throttled_total", "Qualifying frames suppressed by the cooldown", &m.Throttled)
	m.counter("cap_suppressed_total", "Qualifying frames suppressed by the hourly cap", &m.CapSuppressed)
	m.counter("notifications_sent_total", "Notifications delivered", &m.NotifySent)
	m.counter("notifications_failed_total", "Notifications that failed", &m.NotifyFailed)
	m.counter("hook_failures_total", "Hook runs that failed", &m.HookFailures)
	m.counter("detect_errors_total", "Detector failures", &m.DetectErrors)
	m.counter("face_errors_total", "Face matching failures", &m.FaceErrors)
	m.counter("log_errors_total", "Snapshot, CSV or store write failures", &m.LogErrors)

	events := prometheus.NewDesc("doorcam_events_total", "Detection events emitted", []string{"classification"}, nil)
	m.registry.MustRegister(&eventCollector{desc: events, m: m})

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: "doorcam", Name: "detect_latency_ms", Help: "Last detector round trip in ms"},
		func() float64 { return float64(m.DetectLatencyMs.Load()) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: "doorcam", Name: "last_event_timestamp_seconds", Help: "Unix time of the last event"},
		func() float64 { return float64(m.LastEventUnix.Load()) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: "doorcam", Name: "armed", Help: "1 when alerts are armed"},
		func() float64 {
			if m.Armed.Load() {
				return 1
			}
			return 0
		},
	))
}

type eventCollector struct {
	desc *prometheus.Desc
	m    *Metrics
}

func (c *eventCollector) Describe(ch chan<- *prometheus.Desc) { ch <- c.desc }

func (c *eventCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(c.m.EventsAllowed.Load()), "ALLOWED")
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(c.m.EventsIntruder.Load()), "INTRUDER")
}

// UpdateDetectLatency records the duration of a detector call.
func (m *Metrics) UpdateDetectLatency(d time.Duration) {
	m.DetectLatencyMs.Store(uint64(d.Milliseconds()))
}

// Handler returns the /metrics handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Snapshot is a plain copy of the counters for JSON status output.
type Snapshot struct {
	FramesRead    uint64 `json:"frames_read"`
	FramesSkipped uint64 `json:"frames_skipped"`
	FramesGated   uint64 `json:"frames_gated"`
	PersonFrames  uint64 `json:"person_frames"`
	Throttled     uint64 `json:"throttled"`
	Allowed       uint64 `json:"events_allowed"`
	Intruder      uint64 `json:"events_intruder"`
	NotifySent    uint64 `json:"notifications_sent"`
	NotifyFailed  uint64 `json:"notifications_failed"`
	DetectErrors  uint64 `json:"detect_errors"`
	DetectLatency uint64 `json:"detect_latency_ms"`
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		FramesRead:    m.FramesRead.Load(),
		FramesSkipped: m.FramesSkipped.Load(),
		FramesGated:   m.FramesGated.Load(),
		PersonFrames:  m.PersonFrames.Load(),
		Throttled:     m.Throttled.Load(),
		Allowed:       m.EventsAllowed.Load(),
		Intruder:      m.EventsIntruder.Load(),
		NotifySent:    m.NotifySent.Load(),
		NotifyFailed:  m.NotifyFailed.Load(),
		DetectErrors:  m.DetectErrors.Load(),
		DetectLatency: m.DetectLatencyMs.Load(),
	}
}
