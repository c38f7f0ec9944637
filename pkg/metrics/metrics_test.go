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
		Convey("When creating with default options on a fresh registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then collectors should be registered under the default namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.recalculations.WithLabelValues("7d", OutcomeSuccess).Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)

				found := false
				for _, f := range families {
					if f.GetName() == "trendscore_engine_recalculations_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_ns"),
				WithSubsystem("test_sub"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.fallbackComputes.Inc()

			Convey("Then names and constant labels should follow the options", func() {
				expected := `
# HELP test_ns_test_sub_fallback_computations_total Live fallback computations executed
# TYPE test_ns_test_sub_fallback_computations_total counter
test_ns_test_sub_fallback_computations_total{env="test"} 1
`
				err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "test_ns_test_sub_fallback_computations_total")
				So(err, ShouldBeNil)
			})
		})

		Convey("When two managers share a registry", func() {
			registry := prometheus.NewRegistry()
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then the second registration should panic", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording recalculation metrics", func() {
			before := testutil.ToFloat64(globalManager.itemsScored.WithLabelValues("24h"))
			RecordItemsScored("24h", 5)
			RecordItemFailures("24h", 1)
			RecordSnapshotsRemoved("24h", 2)
			RecordRecalculation("24h", OutcomePartial)
			RecordRecalculationDuration("24h", 0.2)
			UpdateSnapshotRows("24h", 42)

			Convey("Then counters and gauges should move", func() {
				So(testutil.ToFloat64(globalManager.itemsScored.WithLabelValues("24h")), ShouldEqual, before+5)
				So(testutil.ToFloat64(globalManager.snapshotRows.WithLabelValues("24h")), ShouldEqual, 42)
			})
		})

		Convey("When recording read path metrics", func() {
			before := testutil.ToFloat64(globalManager.rankingQueries.WithLabelValues("hot", "7d", SourceSnapshot))
			RecordRankingQuery("hot", "7d", SourceSnapshot)
			RecordRankingLatency(SourceSnapshot, 0.01)
			RecordFallbackComputation()
			RecordFallbackShared()
			RecordFallbackError()
			RecordStoreRetry("list_snapshots")

			So(testutil.ToFloat64(globalManager.rankingQueries.WithLabelValues("hot", "7d", SourceSnapshot)), ShouldEqual, before+1)
		})

		Convey("When recording fan-out, HTTP and system metrics", func() {
			So(func() {
				UpdateQueueSize(3)
				RecordQueueRejected("closed")
				AddWorkerBusy(1)
				AddWorkerBusy(-1)
				RecordWorkerTaskDuration(0.001)
				RecordHTTPRequest("/trending", "GET", "200")
				RecordHTTPRequestDuration("/trending", "GET", "200", 0.003)
				RecordErrorByComponent("job", "write_failed")
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(8)
				RecordSystemGCPauseTime(0.5)
			}, ShouldNotPanic)

			So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 3)
		})

		Convey("Then the global registry should be exposed", func() {
			So(GetRegistry(), ShouldEqual, customRegistry)
		})
	})
}
