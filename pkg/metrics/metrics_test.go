package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "connect")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("ns"),
				WithSubsystem("sub"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then metric names use the namespace and labels", func() {
				manager.jobKills.WithLabelValues("terminated").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				var found bool
				for _, f := range families {
					if f.GetName() == "ns_sub_job_kills_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "env")
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording job kills", func() {
			before := testutil.ToFloat64(globalManager.jobKills.WithLabelValues("timeout"))
			RecordJobKill("timeout")
			So(testutil.ToFloat64(globalManager.jobKills.WithLabelValues("timeout")), ShouldEqual, before+1)
		})

		Convey("When recording cache events", func() {
			before := testutil.ToFloat64(globalManager.cacheEvents.WithLabelValues("visitor", "hit"))
			RecordCacheHit("visitor")
			RecordCacheMiss("visitor")
			RecordCacheExpired("visitor")
			UpdateCacheSize("visitor", 3)
			So(testutil.ToFloat64(globalManager.cacheEvents.WithLabelValues("visitor", "hit")), ShouldEqual, before+1)
			So(testutil.ToFloat64(globalManager.cacheSize.WithLabelValues("visitor")), ShouldEqual, 3)
		})

		Convey("When recording queue gauges", func() {
			UpdateQueueSize(7)
			UpdateQueueCapacity(64)
			So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 7)
			So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 64)
		})

		Convey("When recording the remaining series", func() {
			So(func() {
				RecordHTTPRequest("/api/dags", "POST", "201")
				RecordHTTPRequestDuration("/api/dags", "POST", "201", 12)
				RecordErrorByEndpoint("/api/dags", "POST", "validation_error")
				RecordErrorByType("validation_error", "warning")
				RecordUpstreamRequest("content.get", "200", 30)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				UpdateWorkerActiveCount(2)
				RecordWorkerProcessingLatency(900)
				RecordDAGOperation("publish", "ok")
				RecordHealthCheck("PASS")
				RecordChatStream("ok")
				RecordMCPToolCall("connect_whoami", "ok")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.4)
			}, ShouldNotPanic)
		})

		Convey("The custom registry exposes the series", func() {
			RecordDAGOperation("create", "ok")
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			var names []string
			for _, f := range families {
				names = append(names, f.GetName())
			}
			So(strings.Join(names, ","), ShouldContainSubstring, "connect_extensions_dag_operations_total")
		})
	})
}
