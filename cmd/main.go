package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/halfcourt/matchfit/internal/adapters/monitor"
	"github.com/halfcourt/matchfit/internal/adapters/repository"
	pipeline "github.com/halfcourt/matchfit/internal/app"
	"github.com/halfcourt/matchfit/internal/config"
	"github.com/halfcourt/matchfit/internal/diagnostics"
	"github.com/halfcourt/matchfit/internal/domain/modelspec"
	"github.com/halfcourt/matchfit/internal/publish"
	"github.com/halfcourt/matchfit/internal/sampler"
	"github.com/halfcourt/matchfit/pkg/logger"
	"github.com/halfcourt/matchfit/pkg/metrics"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Exit codes. A run that publishes artifacts but fails the convergence
// audit is distinguished from an outright failure so schedulers can tell
// "rerun with a bigger budget" from "fix the inputs".
const (
	exitOK         = 0
	exitError      = 1
	exitRejected   = 2
	exitIncomplete = 3
)

const (
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Initialize logging
	if err := logger.Init(); err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return exitError
	}
	defer func() {
		_ = logger.Sync()
	}()

	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return exitError
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	runID := uuid.New().String()

	loader, closeLoader, err := buildLoader(cfg)
	if err != nil {
		log.Error(ctx, "input setup failed", logger.Error(err))
		return exitError
	}
	defer closeLoader()

	sink, err := repository.NewFileSink(filepath.Join(cfg.OutputDir, runID))
	if err != nil {
		log.Error(ctx, "run directory setup failed", logger.Error(err))
		return exitError
	}

	opts := []pipeline.Option{
		pipeline.WithLoader(loader),
		pipeline.WithSink(sink),
		pipeline.WithRunID(runID),
		pipeline.WithSeason(cfg.Season),
		pipeline.WithSuperclusters(cfg.Superclusters),
		pipeline.WithAggregationWorkers(cfg.AggregatorWorkers),
		pipeline.WithWalltime(cfg.WalltimeBudget()),
		pipeline.WithSelector(modelspec.New(
			modelspec.WithMinObsPerParam(cfg.MinObsPerParam),
			modelspec.WithSafeObsPerParam(cfg.SafeObsPerParam),
		)),
		pipeline.WithAuditor(diagnostics.New(
			diagnostics.WithMaxRHat(cfg.MaxRHat),
			diagnostics.WithMinESS(cfg.MinESS),
			diagnostics.WithMaxDivergenceRate(cfg.MaxDivergenceRate),
		)),
		pipeline.WithPublisher(publish.New(
			publish.WithCredibleMass(cfg.CredibleMass),
		)),
		pipeline.WithSamplerOptions(samplerOptions(cfg)...),
	}

	if cfg.PublishDB != "" {
		ledger, err := repository.OpenPublishDB(cfg.PublishDB)
		if err != nil {
			log.Error(ctx, "ledger setup failed", logger.Error(err))
			return exitError
		}
		defer func() { _ = ledger.Close() }()
		opts = append(opts, pipeline.WithLedger(ledger))
	}

	p := pipeline.New(opts...)

	// Monitor endpoints for multi-hour runs; a no-op when monitor_addr is
	// empty.
	mon := monitor.New(cfg.MonitorAddr, p)
	mon.Start(ctx)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := mon.Stop(sctx); err != nil {
			log.Error(ctx, "monitor shutdown failed", logger.Error(err))
		}
	}()

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	res, err := p.Run(ctx)
	if err != nil {
		log.Error(ctx, "run failed", logger.Error(err))
		return exitError
	}

	log.Info(ctx, "artifacts written",
		logger.String("run_id", res.RunID),
		logger.String("dir", sink.Dir()),
		logger.String("verdict", res.Verdict),
	)

	return exitCodeFor(res.Verdict)
}

// exitCodeFor maps a run verdict onto the process exit code.
func exitCodeFor(verdict string) int {
	switch verdict {
	case publish.VerdictAccepted:
		return exitOK
	case publish.VerdictIncomplete:
		return exitIncomplete
	default:
		return exitRejected
	}
}

// buildLoader constructs the configured input source and its cleanup.
func buildLoader(cfg *config.Config) (repository.Loader, func(), error) {
	if cfg.InputDriver == config.DriverSQLite {
		l, err := repository.OpenSQLiteLoader(cfg.InputDB)
		if err != nil {
			return nil, nil, err
		}
		return l, func() { _ = l.Close() }, nil
	}

	l, err := repository.NewCSVLoader(cfg.PossessionsPath, cfg.ArchetypesPath, cfg.SuperclustersPath)
	if err != nil {
		return nil, nil, err
	}
	return l, func() {}, nil
}

// samplerOptions maps sampling configuration onto sampler options.
func samplerOptions(cfg *config.Config) []sampler.Option {
	opts := []sampler.Option{
		sampler.WithChains(cfg.Chains),
		sampler.WithWarmup(cfg.WarmupDraws),
		sampler.WithKeepDraws(cfg.KeepDraws),
		sampler.WithSeed(cfg.Seed),
		sampler.WithMaxLeapfrog(cfg.MaxLeapfrog),
		sampler.WithTargetAccept(cfg.TargetAccept),
		sampler.WithMaxEnergyError(cfg.MaxEnergyError),
		sampler.WithPriors(sampler.Priors{
			InterceptScale:   cfg.InterceptScale,
			CoefficientScale: cfg.CoefficientScale,
			NoiseScale:       cfg.NoiseScale,
		}),
	}
	if cfg.Likelihood == config.LikelihoodStudentT {
		opts = append(opts, sampler.WithStudentTLikelihood(cfg.StudentTDoF))
	}
	return opts
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval) // Update every 10 seconds
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	// Update memory usage
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)

	// Update goroutine count
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
