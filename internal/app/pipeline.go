// Package pipeline runs one model fit from raw inputs to published
// artifacts.
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/halfcourt/matchfit/internal/adapters/repository"
	"github.com/halfcourt/matchfit/internal/diagnostics"
	"github.com/halfcourt/matchfit/internal/domain/archetype"
	"github.com/halfcourt/matchfit/internal/domain/features"
	"github.com/halfcourt/matchfit/internal/domain/matchup"
	"github.com/halfcourt/matchfit/internal/domain/model"
	"github.com/halfcourt/matchfit/internal/domain/modelspec"
	"github.com/halfcourt/matchfit/internal/publish"
	"github.com/halfcourt/matchfit/internal/sampler"
	"github.com/halfcourt/matchfit/pkg/logger"
	"github.com/halfcourt/matchfit/pkg/metrics"
)

// Pipeline stages reported through Progress.
const (
	StageIdle      = "idle"
	StageLoad      = "load"
	StageAggregate = "aggregate"
	StageSelect    = "select"
	StageSample    = "sample"
	StageAudit     = "audit"
	StagePublish   = "publish"
	StageDone      = "done"
)

// Result summarizes one finished run. Verdict carries the acceptance
// decision; a rejected or incomplete run is still a successful Run call.
type Result struct {
	RunID   string
	Verdict string
	Table   *publish.CoefficientTable
	Report  *publish.RunReport
}

// Pipeline wires the fitting stages together: load, aggregate, select,
// sample, audit, publish. Each stage starts only after the previous one
// finished. Cancellation during sampling surfaces as an incomplete run when
// enough draws exist to report on, and as an error otherwise.
type Pipeline struct {
	mu sync.Mutex

	// Core components
	loader    repository.Loader
	sink      repository.Sink
	ledger    repository.Ledger
	selector  modelspec.Selector
	sampler   sampler.Sampler
	auditor   diagnostics.Auditor
	publisher publish.Publisher

	samplerOpts []sampler.Option

	// Configuration
	runID         string
	season        string
	superclusters int
	workers       int
	walltime      time.Duration

	// Progress snapshot for the monitor endpoint
	currentRun      string
	stage           string
	startedAt       time.Time
	featureRows     int
	parameters      int
	chainsPersisted atomic.Int64

	logger logger.Logger
}

// New constructs a Pipeline with default components. A loader and a sink
// must be supplied through options before Run.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		selector:  modelspec.New(),
		auditor:   diagnostics.New(),
		publisher: publish.New(),
		workers:   runtime.NumCPU(),
		stage:     StageIdle,
		logger:    logger.Get().Named("pipeline"),
	}

	// Apply all options
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Run executes the full pipeline once and returns the published result.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if p.loader == nil {
		return nil, ErrNoLoader
	}
	if p.sink == nil {
		return nil, ErrNoSink
	}

	runID := p.runID
	if runID == "" {
		runID = uuid.New().String()
	}

	start := time.Now()
	p.begin(runID, start)
	log := p.logger.With(logger.String("run_id", runID))
	log.Info(ctx, "run starting")

	var timings publish.Timings

	// Load
	p.setStage(StageLoad)
	loadStart := time.Now()
	possessions, duplicates, err := p.loader.Possessions(ctx)
	if err != nil {
		return nil, p.fail(ctx, log, StageLoad, err)
	}
	entries, err := p.loader.Archetypes(ctx)
	if err != nil {
		return nil, p.fail(ctx, log, StageLoad, err)
	}
	assignments, err := p.loader.Superclusters(ctx)
	if err != nil {
		return nil, p.fail(ctx, log, StageLoad, err)
	}
	timings.LoadSeconds = time.Since(loadStart).Seconds()

	// Aggregate
	p.setStage(StageAggregate)
	aggStart := time.Now()
	ds, err := p.aggregate(ctx, possessions, entries, assignments)
	if err != nil {
		return nil, p.fail(ctx, log, StageAggregate, err)
	}
	if duplicates > 0 {
		// The loader dropped these before aggregation saw them; fold them
		// back into the dataset tallies.
		ds.TotalRead += duplicates
		ds.Rejected[model.RejectDuplicate] = duplicates
	}
	for reason, n := range ds.Rejected {
		metrics.RecordPossessionsRejected(string(reason), n)
	}
	metrics.RecordPossessionsUnassigned(ds.UnassignedRows())
	metrics.UpdateFeatureRows(len(ds.Rows))
	timings.AggregateSeconds = time.Since(aggStart).Seconds()
	metrics.RecordAggregationDuration(timings.AggregateSeconds)

	p.observeDataset(ds)
	log.Info(ctx, "dataset assembled",
		logger.Int("rows", len(ds.Rows)),
		logger.Int("rejected", ds.RejectedTotal()),
		logger.Int("unassigned", ds.UnassignedRows()),
		logger.Int("archetypes", ds.Archetypes),
		logger.Int("superclusters", ds.Superclusters),
	)

	// Select
	p.setStage(StageSelect)
	selStart := time.Now()
	sel, err := p.selector.Select(ds)
	if err != nil {
		return nil, p.fail(ctx, log, StageSelect, err)
	}
	timings.SelectSeconds = time.Since(selStart).Seconds()

	metrics.UpdateSelectedParameters(sel.Chosen.ParamCount())
	metrics.UpdateExcludedMatchups(len(sel.Excluded))
	for _, a := range sel.Assessments {
		if a.Spec.Name == sel.Chosen.Name {
			metrics.UpdateObservationsPerParameter(a.Ratio)
		}
	}
	p.observeSelection(sel)
	log.Info(ctx, "specification selected",
		logger.String("spec", sel.Chosen.Name),
		logger.Int("params", sel.Chosen.ParamCount()),
		logger.Int("excluded_matchups", len(sel.Excluded)),
	)

	// Sample
	p.setStage(StageSample)
	sampStart := time.Now()
	samp := p.sampler
	if samp == nil {
		opts := append([]sampler.Option{}, p.samplerOpts...)
		opts = append(opts, sampler.WithChainSink(&countingSink{
			sink:    p.sink,
			counter: &p.chainsPersisted,
		}))
		samp = sampler.New(opts...)
	}
	sctx := ctx
	if p.walltime > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, p.walltime)
		defer cancel()
	}
	set, err := samp.Sample(sctx, ds, sel.Chosen)
	if err != nil {
		return nil, p.fail(ctx, log, StageSample, err)
	}
	timings.SampleSeconds = time.Since(sampStart).Seconds()

	// Audit
	p.setStage(StageAudit)
	auditStart := time.Now()
	rep, err := p.auditor.Audit(set)
	if err != nil {
		return nil, p.fail(ctx, log, StageAudit, err)
	}
	timings.AuditSeconds = time.Since(auditStart).Seconds()

	metrics.UpdateMaxRHat(rep.MaxRHat)
	metrics.UpdateMinESS(rep.MinESS)
	if !rep.Accepted {
		metrics.RecordAuditFailure()
		log.Warn(ctx, "audit rejected the run",
			logger.Any("failures", rep.Failures),
			logger.Float64("max_r_hat", rep.MaxRHat),
			logger.Float64("min_ess", rep.MinESS),
		)
	}

	// Publish
	p.setStage(StagePublish)
	timings.TotalSeconds = time.Since(start).Seconds()
	table, report, err := p.publisher.Build(&publish.Input{
		RunID:     runID,
		Dataset:   ds,
		Selection: sel,
		Set:       set,
		Audit:     rep,
		Timings:   timings,
	})
	if err != nil {
		return nil, p.fail(ctx, log, StagePublish, err)
	}

	// Artifacts are written even when the run context was cancelled: an
	// incomplete run's report is still a deliverable.
	writeCtx := context.WithoutCancel(ctx)
	if err := p.sink.WriteCoefficients(writeCtx, table); err != nil {
		metrics.RecordPublishError()
		return nil, p.fail(ctx, log, StagePublish, err)
	}
	if err := p.sink.WriteReport(writeCtx, report); err != nil {
		metrics.RecordPublishError()
		return nil, p.fail(ctx, log, StagePublish, err)
	}
	if p.ledger != nil {
		if err := p.ledger.WriteRun(writeCtx, table, report); err != nil {
			// The run directory is complete; a ledger failure must not
			// discard it.
			metrics.RecordPublishError()
			log.Error(ctx, "ledger append failed", logger.Error(err))
		}
	}

	metrics.RecordRunPublished(report.Verdict)
	p.setStage(StageDone)
	log.Info(ctx, "run finished",
		logger.String("verdict", report.Verdict),
		logger.Duration("elapsed", time.Since(start)),
	)

	return &Result{
		RunID:   runID,
		Verdict: report.Verdict,
		Table:   table,
		Report:  report,
	}, nil
}

// aggregate builds the resolver, classifier and dataset from loaded tables.
func (p *Pipeline) aggregate(ctx context.Context, possessions []model.Possession, entries []archetype.Entry, assignments []matchup.Assignment) (*model.Dataset, error) {
	resolver, err := archetype.NewTable(entries, archetype.WithSeason(p.season))
	if err != nil {
		return nil, fmt.Errorf("archetype table: %w", err)
	}

	s := p.superclusters
	if s == 0 {
		s = superclusterCount(assignments)
	}
	classifier, err := matchup.NewTable(assignments, s,
		matchup.WithArchetypeSpace(resolver.Archetypes()))
	if err != nil {
		return nil, fmt.Errorf("supercluster table: %w", err)
	}

	agg, err := features.New(resolver, classifier, features.WithWorkers(p.workers))
	if err != nil {
		return nil, fmt.Errorf("aggregator: %w", err)
	}
	return agg.Aggregate(ctx, possessions)
}

// superclusterCount derives S from the assignment rows. An empty table
// still yields a valid one-cluster space; every row then lands in the
// unassigned bucket and only pooled fits are possible.
func superclusterCount(assignments []matchup.Assignment) int {
	s := 1
	for i := range assignments {
		if n := int(assignments[i].Supercluster) + 1; n > s {
			s = n
		}
	}
	return s
}

// Progress reports the current stage and counters. Safe for concurrent use
// with Run; the monitor endpoint polls it.
func (p *Pipeline) Progress() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()

	prog := map[string]any{
		"run_id":           p.currentRun,
		"stage":            p.stage,
		"chains_persisted": p.chainsPersisted.Load(),
	}
	if !p.startedAt.IsZero() {
		prog["elapsed_seconds"] = time.Since(p.startedAt).Seconds()
	}
	if p.featureRows > 0 {
		prog["feature_rows"] = p.featureRows
	}
	if p.parameters > 0 {
		prog["parameters"] = p.parameters
	}
	return prog
}

func (p *Pipeline) begin(runID string, start time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentRun = runID
	p.startedAt = start
	p.featureRows = 0
	p.parameters = 0
	p.chainsPersisted.Store(0)
}

func (p *Pipeline) setStage(stage string) {
	p.mu.Lock()
	p.stage = stage
	p.mu.Unlock()
}

func (p *Pipeline) observeDataset(ds *model.Dataset) {
	p.mu.Lock()
	p.featureRows = len(ds.Rows)
	p.mu.Unlock()
}

func (p *Pipeline) observeSelection(sel *modelspec.Selection) {
	p.mu.Lock()
	p.parameters = sel.Chosen.ParamCount()
	p.mu.Unlock()
}

// fail records and wraps a stage error.
func (p *Pipeline) fail(ctx context.Context, log logger.Logger, stage string, err error) error {
	metrics.RecordErrorByComponent("pipeline", stage)
	log.Error(ctx, "stage failed",
		logger.String("stage", stage),
		logger.Error(err),
	)
	return fmt.Errorf("%s: %w", stage, err)
}

// countingSink forwards chain persistence to the real sink and counts
// successes for progress reporting.
type countingSink struct {
	sink    sampler.ChainSink
	counter *atomic.Int64
}

func (c *countingSink) PersistChain(ctx context.Context, chain *sampler.ChainResult) error {
	if err := c.sink.PersistChain(ctx, chain); err != nil {
		return err
	}
	c.counter.Add(1)
	return nil
}
