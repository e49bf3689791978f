package metrics

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/teslashibe/go-shesafe/pkg/alert"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	out := make(map[string]float64)
	for _, f := range families {
		for _, m := range f.GetMetric() {
			var labels []string
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			key := f.GetName()
			if len(labels) > 0 {
				key += "{" + strings.Join(labels, ",") + "}"
			}
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			}
		}
	}
	return out
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.AlertAccepted(alert.KindTuckThumb, alert.SeverityHigh)
	m.AlertAccepted(alert.KindTuckThumb, alert.SeverityHigh)
	m.AlertSuppressed(alert.KindWomanIsolated)
	m.AudioArbitrated(alert.SeverityMedium, false)
	m.NotificationSent("gmail")
	m.NotificationFailed("mqtt")
	m.NotificationDropped()
	m.HotspotCycle(7, nil)
	m.HotspotCycle(0, errors.New("boom"))
	m.FrameProcessed("cam1", 3, 1)
	m.WorkerState("cam1", "RUNNING", []string{"STARTING", "RUNNING"})

	got := gather(t, reg)
	tests := []struct {
		key  string
		want float64
	}{
		{"shesafe_alerts_accepted_total{kind=TUCK_THUMB,severity=HIGH}", 2},
		{"shesafe_alerts_suppressed_total{kind=WOMAN_ISOLATED}", 1},
		{"shesafe_audio_requests_total{outcome=rejected,severity=MEDIUM}", 1},
		{"shesafe_notify_deliveries_total{channel=gmail,outcome=sent}", 1},
		{"shesafe_notify_deliveries_total{channel=mqtt,outcome=failed}", 1},
		{"shesafe_notify_dropped_total", 1},
		{"shesafe_hotspot_cycles_total{outcome=ok}", 1},
		{"shesafe_hotspot_cycles_total{outcome=failed}", 1},
		{"shesafe_hotspot_buckets", 7},
		{"shesafe_camera_frames_processed_total{camera=cam1}", 1},
		{"shesafe_camera_persons{camera=cam1,gender=male}", 3},
		{"shesafe_camera_worker_state{camera=cam1,state=RUNNING}", 1},
		{"shesafe_camera_worker_state{camera=cam1,state=STARTING}", 0},
	}
	for _, tc := range tests {
		if got[tc.key] != tc.want {
			t.Errorf("%s = %v, want %v", tc.key, got[tc.key], tc.want)
		}
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.AlertAccepted(alert.KindTrapThumb, alert.SeverityHigh)
	m.NotificationDropped()
	m.HotspotCycle(1, nil)
	m.FrameProcessed("cam1", 0, 0)
	m.WorkerState("cam1", "RUNNING", nil)
	m.SourceReconnect("cam1")
}

func TestNew_AlertSeriesStartAtZero(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	got := gather(t, reg)

	for _, k := range alert.Kinds {
		sev := alert.DefaultPolicies()[k].Severity
		t.Run(string(k), func(t *testing.T) {
			for _, key := range []string{
				"shesafe_alerts_suppressed_total{kind=" + string(k) + "}",
				"shesafe_alerts_accepted_total{kind=" + string(k) + ",severity=" + string(sev) + "}",
			} {
				v, ok := got[key]
				if !ok {
					t.Fatalf("%s not exported", key)
				}
				if v != 0 {
					t.Errorf("%s = %v, want 0", key, v)
				}
			}
		})
	}
}
