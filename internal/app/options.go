// Package pipeline runs one model fit from raw inputs to published
// artifacts.
package pipeline

import (
	"time"

	"github.com/halfcourt/matchfit/internal/adapters/repository"
	"github.com/halfcourt/matchfit/internal/diagnostics"
	"github.com/halfcourt/matchfit/internal/domain/modelspec"
	"github.com/halfcourt/matchfit/internal/publish"
	"github.com/halfcourt/matchfit/internal/sampler"
	"github.com/halfcourt/matchfit/pkg/logger"
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLoader sets the input loader. Required before Run.
func WithLoader(l repository.Loader) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.loader = l
		}
	}
}

// WithSink sets the artifact sink for chains, coefficients and the run
// report. Required before Run.
func WithSink(s repository.Sink) Option {
	return func(p *Pipeline) {
		if s != nil {
			p.sink = s
		}
	}
}

// WithLedger sets an optional append-only run ledger. Ledger failures are
// logged, not fatal.
func WithLedger(l repository.Ledger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.ledger = l
		}
	}
}

// WithSelector replaces the default specification selector.
func WithSelector(s modelspec.Selector) Option {
	return func(p *Pipeline) {
		if s != nil {
			p.selector = s
		}
	}
}

// WithSampler injects a fully built sampler. When unset, Run constructs one
// from the options given via WithSamplerOptions and wires the pipeline sink
// as its chain sink.
func WithSampler(s sampler.Sampler) Option {
	return func(p *Pipeline) {
		if s != nil {
			p.sampler = s
		}
	}
}

// WithSamplerOptions appends options for the sampler Run builds when no
// sampler was injected. The chain sink is always appended last.
func WithSamplerOptions(opts ...sampler.Option) Option {
	return func(p *Pipeline) {
		p.samplerOpts = append(p.samplerOpts, opts...)
	}
}

// WithAuditor replaces the default convergence auditor.
func WithAuditor(a diagnostics.Auditor) Option {
	return func(p *Pipeline) {
		if a != nil {
			p.auditor = a
		}
	}
}

// WithPublisher replaces the default artifact publisher.
func WithPublisher(pub publish.Publisher) Option {
	return func(p *Pipeline) {
		if pub != nil {
			p.publisher = pub
		}
	}
}

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(p *Pipeline) {
		if id != "" {
			p.runID = id
		}
	}
}

// WithSeason restricts archetype resolution to one season.
func WithSeason(season string) Option {
	return func(p *Pipeline) {
		p.season = season
	}
}

// WithSuperclusters declares the style-cluster count S instead of deriving
// it from the assignment table. Assignments outside [0, S) then fail the
// aggregation stage.
func WithSuperclusters(s int) Option {
	return func(p *Pipeline) {
		if s > 0 {
			p.superclusters = s
		}
	}
}

// WithAggregationWorkers sets the feature aggregation worker count.
func WithAggregationWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithWalltime bounds the sampling stage. Zero means no budget.
func WithWalltime(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.walltime = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}
