// Package metrics exposes Prometheus collectors for the monitoring pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/teslashibe/go-shesafe/pkg/alert"
)

const namespace = "shesafe"

// Metrics holds every collector. It implements alert.Recorder,
// notify.Recorder and hotspot.Recorder.
type Metrics struct {
	framesProcessed  *prometheus.CounterVec
	personsDetected  *prometheus.GaugeVec
	sourceReconnects *prometheus.CounterVec
	workerState      *prometheus.GaugeVec

	alertsAccepted   *prometheus.CounterVec
	alertsSuppressed *prometheus.CounterVec
	audioRequests    *prometheus.CounterVec

	notifications        *prometheus.CounterVec
	notificationsDropped prometheus.Counter

	hotspotCycles  *prometheus.CounterVec
	hotspotBuckets prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "camera", Name: "frames_processed_total", Help: "Frames processed per camera."},
			[]string{"camera"},
		),
		personsDetected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Subsystem: "camera", Name: "persons", Help: "Persons in the latest frame per camera and gender."},
			[]string{"camera", "gender"},
		),
		sourceReconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "camera", Name: "source_reconnects_total", Help: "Source reopen attempts after repeated missing frames."},
			[]string{"camera"},
		),
		workerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Subsystem: "camera", Name: "worker_state", Help: "1 for the current state of each camera worker."},
			[]string{"camera", "state"},
		),
		alertsAccepted: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "alerts", Name: "accepted_total", Help: "Alerts accepted by kind and severity."},
			[]string{"kind", "severity"},
		),
		alertsSuppressed: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "alerts", Name: "suppressed_total", Help: "Alerts suppressed by cooldown."},
			[]string{"kind"},
		),
		audioRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "audio", Name: "requests_total", Help: "Audio channel requests by severity and outcome."},
			[]string{"severity", "outcome"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "notify", Name: "deliveries_total", Help: "Notification deliveries by channel and outcome."},
			[]string{"channel", "outcome"},
		),
		notificationsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "notify", Name: "dropped_total", Help: "Notifications dropped before delivery."},
		),
		hotspotCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "hotspot", Name: "cycles_total", Help: "Hotspot aggregation cycles by outcome."},
			[]string{"outcome"},
		),
		hotspotBuckets: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: namespace, Subsystem: "hotspot", Name: "buckets", Help: "Buckets in the latest hotspot snapshot."},
		),
	}

	// Zero series for every kind so rate() works before the first alert.
	policies := alert.DefaultPolicies()
	for _, k := range alert.Kinds {
		m.alertsSuppressed.WithLabelValues(string(k))
		if p, ok := policies[k]; ok {
			m.alertsAccepted.WithLabelValues(string(k), string(p.Severity))
		}
	}

	if reg != nil {
		reg.MustRegister(
			m.framesProcessed,
			m.personsDetected,
			m.sourceReconnects,
			m.workerState,
			m.alertsAccepted,
			m.alertsSuppressed,
			m.audioRequests,
			m.notifications,
			m.notificationsDropped,
			m.hotspotCycles,
			m.hotspotBuckets,
		)
	}
	return m
}

func outcome(ok bool) string {
	if ok {
		return "accepted"
	}
	return "rejected"
}

// FrameProcessed counts one processed frame and its person counts.
func (m *Metrics) FrameProcessed(camera string, men, women int) {
	if m == nil {
		return
	}
	m.framesProcessed.WithLabelValues(camera).Inc()
	m.personsDetected.WithLabelValues(camera, "male").Set(float64(men))
	m.personsDetected.WithLabelValues(camera, "female").Set(float64(women))
}

// SourceReconnect counts a source reopen.
func (m *Metrics) SourceReconnect(camera string) {
	if m == nil {
		return
	}
	m.sourceReconnects.WithLabelValues(camera).Inc()
}

// WorkerState sets state as the only active state of camera's worker.
func (m *Metrics) WorkerState(camera, state string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.workerState.WithLabelValues(camera, s).Set(v)
	}
}

func (m *Metrics) AlertAccepted(kind alert.Kind, sev alert.Severity) {
	if m == nil {
		return
	}
	m.alertsAccepted.WithLabelValues(string(kind), string(sev)).Inc()
}

func (m *Metrics) AlertSuppressed(kind alert.Kind) {
	if m == nil {
		return
	}
	m.alertsSuppressed.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) AudioArbitrated(sev alert.Severity, accepted bool) {
	if m == nil {
		return
	}
	m.audioRequests.WithLabelValues(string(sev), outcome(accepted)).Inc()
}

func (m *Metrics) NotificationSent(channel string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(channel, "sent").Inc()
}

func (m *Metrics) NotificationFailed(channel string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(channel, "failed").Inc()
}

func (m *Metrics) NotificationDropped() {
	if m == nil {
		return
	}
	m.notificationsDropped.Inc()
}

func (m *Metrics) HotspotCycle(buckets int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.hotspotCycles.WithLabelValues("failed").Inc()
		return
	}
	m.hotspotCycles.WithLabelValues("ok").Inc()
	m.hotspotBuckets.Set(float64(buckets))
}
