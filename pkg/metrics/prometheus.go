// Package metrics provides Prometheus metrics for the matchfit estimation pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the matchfit pipeline.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Ingest Metrics - Dataset assembly quality
	possessionsLoaded     prometheus.Counter
	possessionsRejected   *prometheus.CounterVec
	possessionsUnassigned prometheus.Counter
	featureRows           prometheus.Gauge
	aggregationDuration   prometheus.Histogram

	// Selection Metrics - Candidate sufficiency
	selectedParameters   prometheus.Gauge
	observationsPerParam prometheus.Gauge
	excludedMatchups     prometheus.Gauge

	// Sampling Metrics - Chain progress and health
	chainsActive      prometheus.Gauge
	chainsCompleted   prometheus.Counter
	drawsRecorded     prometheus.Counter
	divergences       prometheus.Counter
	leapfrogSteps     prometheus.Counter
	chainDuration     prometheus.Histogram
	chainStepSize     *prometheus.GaugeVec
	chainAcceptRate   *prometheus.GaugeVec
	samplerErrorCount prometheus.Counter

	// Audit Metrics - Convergence outcomes
	maxRHat       prometheus.Gauge
	minESS        prometheus.Gauge
	auditFailures prometheus.Counter

	// Publish Metrics - Run ledger outcomes
	runsPublished *prometheus.CounterVec
	publishErrors prometheus.Counter

	// Error Metrics - Detailed error tracking
	errorRateByComponent *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "matchfit",
		subsystem:        "fit",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	// Initialize metrics
	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)

	// Ingest Metrics - Everything the aggregator accepts, drops, or banks
	m.possessionsLoaded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "possessions_loaded_total",
		Help:      "Total number of possessions read from the input source",
	})

	m.possessionsRejected = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "possessions_rejected_total",
			Help:      "Total number of possessions dropped during aggregation, by reason",
		},
		[]string{"reason"},
	)

	m.possessionsUnassigned = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "possessions_unassigned_total",
		Help:      "Total number of possessions retained without a matchup assignment",
	})

	m.featureRows = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "feature_rows",
		Help:      "Number of feature rows in the assembled dataset",
	})

	m.aggregationDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "aggregation_duration_seconds",
		Help:      "Wall-clock time spent assembling the design matrix",
		Buckets:   m.histogramBuckets,
	})

	// Selection Metrics - What the sufficiency screen decided
	m.selectedParameters = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "selected_parameters",
		Help:      "Parameter count of the selected model specification",
	})

	m.observationsPerParam = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "observations_per_parameter",
		Help:      "Observation-to-parameter ratio of the selected specification",
	})

	m.excludedMatchups = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "excluded_matchups",
		Help:      "Number of matchup buckets excluded for insufficient observations",
	})

	// Sampling Metrics - Chain progress and health
	m.chainsActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "chains_active",
		Help:      "Number of sampling chains currently running",
	})

	m.chainsCompleted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "chains_completed_total",
		Help:      "Total number of sampling chains run to completion",
	})

	m.drawsRecorded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "draws_recorded_total",
		Help:      "Total number of post-warmup posterior draws recorded",
	})

	m.divergences = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "divergences_total",
		Help:      "Total number of divergent transitions across all chains",
	})

	m.leapfrogSteps = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "leapfrog_steps_total",
		Help:      "Total number of leapfrog integration steps taken",
	})

	m.chainDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "chain_duration_seconds",
		Help:      "Wall-clock time per completed chain",
		Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200, 14400},
	})

	m.chainStepSize = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "chain_step_size",
			Help:      "Adapted integrator step size per chain",
		},
		[]string{"chain"},
	)

	m.chainAcceptRate = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "chain_accept_rate",
			Help:      "Mean Metropolis acceptance probability per chain",
		},
		[]string{"chain"},
	)

	m.samplerErrorCount = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sampler_errors_total",
		Help:      "Total number of sampler failures",
	})

	// Audit Metrics - Convergence outcomes
	m.maxRHat = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "max_rhat",
		Help:      "Worst split R-hat across all parameters of the last audited run",
	})

	m.minESS = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "min_ess",
		Help:      "Smallest effective sample size across all parameters of the last audited run",
	})

	m.auditFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "audit_failures_total",
		Help:      "Total number of runs rejected by the convergence audit",
	})

	// Publish Metrics - Run ledger outcomes
	m.runsPublished = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "runs_published_total",
			Help:      "Total number of runs written to the ledger, by status",
		},
		[]string{"status"},
	)

	m.publishErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "publish_errors_total",
		Help:      "Total number of publish failures",
	})

	// Error Metrics - Detailed error tracking
	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_component_total",
			Help:      "Total number of errors by component",
		},
		[]string{"component", "error_type"},
	)

	// System Performance Metrics
	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})
}

// Ingest Metrics Functions.

// RecordPossessionLoaded increments the loaded possessions counter.
func RecordPossessionLoaded() {
	globalManager.possessionsLoaded.Inc()
}

// RecordPossessionsLoaded adds a batch to the loaded possessions counter.
func RecordPossessionsLoaded(n int) {
	globalManager.possessionsLoaded.Add(float64(n))
}

// RecordPossessionRejected increments the rejected possessions counter for a reason.
func RecordPossessionRejected(reason string) {
	globalManager.possessionsRejected.WithLabelValues(reason).Inc()
}

// RecordPossessionsRejected adds a batch to the rejected possessions counter.
func RecordPossessionsRejected(reason string, n int) {
	globalManager.possessionsRejected.WithLabelValues(reason).Add(float64(n))
}

// RecordPossessionUnassigned increments the unassigned possessions counter.
func RecordPossessionUnassigned() {
	globalManager.possessionsUnassigned.Inc()
}

// RecordPossessionsUnassigned adds a batch to the unassigned possessions counter.
func RecordPossessionsUnassigned(n int) {
	globalManager.possessionsUnassigned.Add(float64(n))
}

// UpdateFeatureRows sets the assembled feature row count.
func UpdateFeatureRows(n int) {
	globalManager.featureRows.Set(float64(n))
}

// RecordAggregationDuration records the design-matrix assembly duration.
func RecordAggregationDuration(seconds float64) {
	globalManager.aggregationDuration.Observe(seconds)
}

// Selection Metrics Functions.

// UpdateSelectedParameters sets the selected specification's parameter count.
func UpdateSelectedParameters(n int) {
	globalManager.selectedParameters.Set(float64(n))
}

// UpdateObservationsPerParameter sets the selected specification's data ratio.
func UpdateObservationsPerParameter(ratio float64) {
	globalManager.observationsPerParam.Set(ratio)
}

// UpdateExcludedMatchups sets the count of matchup buckets dropped for sparsity.
func UpdateExcludedMatchups(n int) {
	globalManager.excludedMatchups.Set(float64(n))
}

// Sampling Metrics Functions.

// UpdateChainsActive sets the number of running chains.
func UpdateChainsActive(n int) {
	globalManager.chainsActive.Set(float64(n))
}

// RecordChainCompleted increments the completed chains counter.
func RecordChainCompleted() {
	globalManager.chainsCompleted.Inc()
}

// RecordDrawsRecorded adds to the recorded draws counter.
func RecordDrawsRecorded(n int) {
	globalManager.drawsRecorded.Add(float64(n))
}

// RecordDivergence increments the divergence counter.
func RecordDivergence() {
	globalManager.divergences.Inc()
}

// RecordDivergences adds a chain's divergence count to the counter.
func RecordDivergences(n int) {
	globalManager.divergences.Add(float64(n))
}

// RecordLeapfrogSteps adds to the leapfrog step counter.
func RecordLeapfrogSteps(n int) {
	globalManager.leapfrogSteps.Add(float64(n))
}

// RecordChainDuration records a completed chain's wall-clock duration.
func RecordChainDuration(seconds float64) {
	globalManager.chainDuration.Observe(seconds)
}

// UpdateChainStepSize sets the adapted step size for a chain.
func UpdateChainStepSize(chain string, stepSize float64) {
	globalManager.chainStepSize.WithLabelValues(chain).Set(stepSize)
}

// UpdateChainAcceptRate sets the mean acceptance probability for a chain.
func UpdateChainAcceptRate(chain string, rate float64) {
	globalManager.chainAcceptRate.WithLabelValues(chain).Set(rate)
}

// RecordSamplerError increments the sampler failure counter.
func RecordSamplerError() {
	globalManager.samplerErrorCount.Inc()
}

// Audit Metrics Functions.

// UpdateMaxRHat sets the worst split R-hat of the last audited run.
func UpdateMaxRHat(v float64) {
	globalManager.maxRHat.Set(v)
}

// UpdateMinESS sets the smallest effective sample size of the last audited run.
func UpdateMinESS(v float64) {
	globalManager.minESS.Set(v)
}

// RecordAuditFailure increments the audit rejection counter.
func RecordAuditFailure() {
	globalManager.auditFailures.Inc()
}

// Publish Metrics Functions.

// RecordRunPublished increments the published runs counter for a status.
func RecordRunPublished(status string) {
	globalManager.runsPublished.WithLabelValues(status).Inc()
}

// RecordPublishError increments the publish failure counter.
func RecordPublishError() {
	globalManager.publishErrors.Inc()
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
