package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

// gathered returns the metric family names registered on reg.
func gathered(reg *prometheus.Registry) map[string]float64 {
	mfs, err := reg.Gather()
	So(err, ShouldBeNil)
	out := make(map[string]float64, len(mfs))
	for _, mf := range mfs {
		var sum float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				sum += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				sum += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				sum += float64(m.GetHistogram().GetSampleCount())
			}
		}
		out[mf.GetName()] = sum
	}
	return out
}

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given a manager on a fresh registry", t, func() {
		reg := prometheus.NewRegistry()
		m := NewManager(
			WithPrometheusRegistry(reg),
			WithNamespace("test"),
			WithSubsystem("unit"),
			WithHistogramBuckets([]float64{1, 10, 100}),
			WithConstLabels(map[string]string{"env": "test"}),
		)

		Convey("When recording values", func() {
			m.eventsRecorded.Inc()
			m.eventsRecorded.Inc()
			m.scoringFallbacks.Inc()
			m.sessionsActive.Set(3)
			m.riskScore.Observe(42)
			m.scoringLatency.WithLabelValues("fallback").Observe(0.2)

			Convey("Then they are exported with the configured names", func() {
				got := gathered(reg)
				So(got["test_unit_events_recorded_total"], ShouldEqual, 2)
				So(got["test_unit_scoring_fallback_total"], ShouldEqual, 1)
				So(got["test_unit_sessions_active"], ShouldEqual, 3)
				So(got["test_unit_risk_score"], ShouldEqual, 1)
				So(got["test_unit_scoring_latency_milliseconds"], ShouldEqual, 1)
			})
		})

		Convey("When creating a second manager on the same registry", func() {
			Convey("Then registration panics on duplicate collectors", func() {
				So(func() { NewManager(WithPrometheusRegistry(reg), WithNamespace("test"), WithSubsystem("unit")) }, ShouldPanic)
			})
		})
	})
}

func TestGlobalRecorders(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When every recorder is called", func() {
			So(func() {
				RecordEventReceived("ws")
				RecordEventReceived("http")
				RecordEventDecodeError()
				RecordEventDuplicate()
				RecordEventRejected("session_ended")
				RecordEventRecorded()
				RecordScoringLatency("external", 12)
				RecordScoringFallback()
				RecordScoringUpstreamError("timeout")
				ObserveRiskScore(19)
				RecordSessionCreated()
				RecordSessionEnded()
				RecordConsentRejection()
				UpdateSessions(4, 2)
				UpdateQueueSize(10)
				UpdateQueueCapacity(100)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError("full")
				UpdateWorkerCount(4)
				RecordWorkerProcessingLatency(3)
				RecordWorkerError()
				UpdateWebSocketClients(1)
				RecordWebSocketConnection()
				RecordHTTPRequest("sessions", "POST", "201")
				RecordHTTPRequestDuration("sessions", "POST", "201", 4)
				RecordErrorByComponent("ws", "decode")
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)

			Convey("Then the custom registry exposes them", func() {
				got := gathered(GetRegistry())
				So(got, ShouldContainKey, "proctor_monitor_events_received_total")
				So(got, ShouldContainKey, "proctor_monitor_scoring_upstream_errors_total")
				So(got["proctor_monitor_sessions"], ShouldEqual, 4)
				So(got["proctor_monitor_sessions_active"], ShouldEqual, 2)
			})
		})
	})
}
