package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsOptions(t *testing.T) {
	Convey("Given metrics options", t, func() {
		Convey("When creating options", func() {
			namespaceOpt := WithNamespace("test-namespace")
			subsystemOpt := WithSubsystem("test-subsystem")
			histogramBucketsOpt := WithHistogramBuckets([]float64{1, 60, 600, 3600})
			registryOpt := WithPrometheusRegistry(prometheus.NewRegistry())

			Convey("Then they should be valid functions", func() {
				So(namespaceOpt, ShouldNotBeNil)
				So(subsystemOpt, ShouldNotBeNil)
				So(histogramBucketsOpt, ShouldNotBeNil)
				So(registryOpt, ShouldNotBeNil)
			})
		})
	})
}

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test-namespace"),
				WithSubsystem("test-subsystem"),
				WithHistogramBuckets([]float64{1, 60, 600, 3600}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given metrics recording", t, func() {
		Convey("When recording ingest metrics", func() {
			Convey("Then it should record loaded possessions", func() {
				So(func() {
					RecordPossessionLoaded()
					RecordPossessionsLoaded(250)
				}, ShouldNotPanic)
			})

			Convey("And it should record rejected possessions by reason", func() {
				So(func() {
					RecordPossessionRejected("unknown_player")
					RecordPossessionRejected("nonfinite_outcome")
					RecordPossessionRejected("duplicate")
				}, ShouldNotPanic)
			})

			Convey("And it should record unassigned possessions", func() {
				So(func() {
					RecordPossessionUnassigned()
					RecordPossessionUnassigned()
				}, ShouldNotPanic)
			})

			Convey("And it should track dataset shape", func() {
				So(func() {
					UpdateFeatureRows(120000)
					RecordAggregationDuration(3.5)
				}, ShouldNotPanic)
			})
		})

		Convey("When recording selection metrics", func() {
			So(func() {
				UpdateSelectedParameters(37)
				UpdateObservationsPerParameter(324.3)
				UpdateExcludedMatchups(3)
			}, ShouldNotPanic)
		})

		Convey("When recording sampling metrics", func() {
			Convey("Then it should track chain lifecycle", func() {
				So(func() {
					UpdateChainsActive(4)
					RecordChainCompleted()
					RecordChainDuration(1800.0)
					UpdateChainsActive(3)
				}, ShouldNotPanic)
			})

			Convey("And it should track sampling progress", func() {
				So(func() {
					RecordDrawsRecorded(1000)
					RecordLeapfrogSteps(32)
					RecordDivergence()
				}, ShouldNotPanic)
			})

			Convey("And it should track per-chain adaptation", func() {
				So(func() {
					UpdateChainStepSize("0", 0.012)
					UpdateChainStepSize("1", 0.015)
					UpdateChainAcceptRate("0", 0.81)
					UpdateChainAcceptRate("1", 0.79)
				}, ShouldNotPanic)
			})

			Convey("And it should record sampler errors", func() {
				So(func() {
					RecordSamplerError()
				}, ShouldNotPanic)
			})
		})

		Convey("When recording audit metrics", func() {
			So(func() {
				UpdateMaxRHat(1.004)
				UpdateMinESS(873.2)
				RecordAuditFailure()
			}, ShouldNotPanic)
		})

		Convey("When recording publish metrics", func() {
			So(func() {
				RecordRunPublished("accepted")
				RecordRunPublished("rejected")
				RecordPublishError()
			}, ShouldNotPanic)
		})

		Convey("When recording error metrics", func() {
			So(func() {
				RecordErrorByComponent("aggregator", "unknown_player")
				RecordErrorByComponent("sampler", "divergence_storm")
				RecordErrorByComponent("repository", "io")
			}, ShouldNotPanic)
		})

		Convey("When recording system metrics", func() {
			So(func() {
				UpdateSystemMemoryUsage(1024 * 1024 * 100)
				UpdateSystemGoroutineCount(12)
			}, ShouldNotPanic)
		})
	})
}

func TestMetricsEdgeCases(t *testing.T) {
	Convey("Given metrics edge cases", t, func() {
		Convey("When recording metrics with edge values", func() {
			Convey("And using zero values", func() {
				So(func() {
					UpdateFeatureRows(0)
					UpdateChainsActive(0)
					UpdateExcludedMatchups(0)
					RecordDrawsRecorded(0)
					RecordAggregationDuration(0.0)
				}, ShouldNotPanic)
			})

			Convey("And using very large values", func() {
				So(func() {
					UpdateFeatureRows(50_000_000)
					RecordDrawsRecorded(1_000_000)
					RecordLeapfrogSteps(1 << 30)
					RecordChainDuration(86400.0)
				}, ShouldNotPanic)
			})

			Convey("And using empty label values", func() {
				So(func() {
					RecordPossessionRejected("")
					RecordRunPublished("")
					RecordErrorByComponent("", "")
					UpdateChainStepSize("", 0.1)
				}, ShouldNotPanic)
			})
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given metrics concurrency", t, func() {
		Convey("When recording metrics concurrently", func() {
			done := make(chan bool, 10)

			// Start multiple goroutines recording metrics
			for i := 0; i < 10; i++ {
				go func(id int) {
					for j := 0; j < 100; j++ {
						RecordPossessionLoaded()
						RecordDrawsRecorded(10)
						RecordLeapfrogSteps(j)
						UpdateChainsActive(id)
					}
					done <- true
				}(i)
			}

			// Wait for all goroutines to complete
			for i := 0; i < 10; i++ {
				<-done
			}

			Convey("Then it should handle concurrent access without panics", func() {
				So(true, ShouldBeTrue) // If we get here, no panics occurred
			})
		})
	})
}

func TestMetricsOptionsValidation(t *testing.T) {
	Convey("Given metrics options validation", t, func() {
		Convey("When creating with empty namespace", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithNamespace(""), WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When creating with empty subsystem", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithSubsystem(""), WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When creating with nil histogram buckets", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithHistogramBuckets(nil), WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When creating with a nil registry", func() {
			manager := NewManager(WithPrometheusRegistry(prometheus.NewRegistry()), WithPrometheusRegistry(nil))

			Convey("Then the earlier registry should survive", func() {
				So(manager, ShouldNotBeNil)
			})
		})
	})
}
