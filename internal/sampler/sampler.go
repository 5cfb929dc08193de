// Package sampler draws posterior samples for a chosen parameterization
// with Hamiltonian Monte Carlo.
package sampler

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/halfcourt/matchfit/internal/domain/model"
	"github.com/halfcourt/matchfit/internal/domain/modelspec"
	"github.com/halfcourt/matchfit/pkg/logger"
	"github.com/halfcourt/matchfit/pkg/metrics"
)

// Default sampling configuration.
const (
	defaultChains         = 4
	defaultWarmup         = 1000
	defaultKeep           = 1000
	defaultSeed           = int64(1)
	defaultMaxLeapfrog    = 64
	defaultTargetAccept   = 0.8
	defaultMaxEnergyError = 1000.0
)

func defaultPriors() Priors {
	return Priors{InterceptScale: 2, CoefficientScale: 1, NoiseScale: 2}
}

// ChainResult is one chain's output. Draws live in the constrained space:
// coefficients and the residual scale are positive, intercepts unbounded.
type ChainResult struct {
	ID            int
	Draws         [][]float64
	Divergences   int
	LeapfrogSteps int
	StepSize      float64
	AcceptRate    float64
	Completed     bool
	Duration      time.Duration
}

// SampleSet is the joint output of all chains for one parameterization.
type SampleSet struct {
	Spec       modelspec.Specification
	ParamNames []string
	Warmup     int
	Requested  int // retained draws requested per chain
	Chains     []ChainResult
}

// Dim is the sampled parameter count, including the residual scale.
func (s *SampleSet) Dim() int {
	return len(s.ParamNames)
}

// InterceptIndex locates a matchup's intercept in a draw vector.
func (s *SampleSet) InterceptIndex(m int) int {
	if s.Spec.Intercepts == 1 {
		return 0
	}
	return m
}

// OffIndex locates an offensive coefficient in a draw vector.
func (s *SampleSet) OffIndex(block, a int) int {
	return s.Spec.Intercepts + block*s.Spec.Archetypes + a
}

// DefIndex locates a defensive coefficient in a draw vector.
func (s *SampleSet) DefIndex(block, a int) int {
	return s.Spec.Intercepts + s.Spec.CoeffBlocks*s.Spec.Archetypes + block*s.Spec.Archetypes + a
}

// SigmaIndex locates the residual scale in a draw vector.
func (s *SampleSet) SigmaIndex() int {
	return len(s.ParamNames) - 1
}

// Completed reports whether every chain delivered its full draw count.
func (s *SampleSet) Completed() bool {
	if len(s.Chains) == 0 {
		return false
	}
	for i := range s.Chains {
		if !s.Chains[i].Completed {
			return false
		}
	}
	return true
}

// TotalDraws counts retained draws across chains.
func (s *SampleSet) TotalDraws() int {
	n := 0
	for i := range s.Chains {
		n += len(s.Chains[i].Draws)
	}
	return n
}

// TotalDivergences counts divergent retained transitions across chains.
func (s *SampleSet) TotalDivergences() int {
	n := 0
	for i := range s.Chains {
		n += s.Chains[i].Divergences
	}
	return n
}

// DivergenceRate is the divergent fraction of retained transitions.
func (s *SampleSet) DivergenceRate() float64 {
	total := s.TotalDraws()
	if total == 0 {
		return 0
	}
	return float64(s.TotalDivergences()) / float64(total)
}

// ChainSink receives each chain as soon as it completes, so finished chains
// survive a later cancellation independently of the joined result.
type ChainSink interface {
	PersistChain(ctx context.Context, chain *ChainResult) error
}

// Sampler fits a specification to a dataset and returns posterior draws.
type Sampler interface {
	// Sample runs all chains to completion or cancellation. A cancelled
	// run returns the partial SampleSet with per-chain Completed flags;
	// only posterior construction problems surface as errors.
	Sample(ctx context.Context, ds *model.Dataset, spec modelspec.Specification) (*SampleSet, error)
}

// HMC is the Hamiltonian Monte Carlo implementation of Sampler.
type HMC struct {
	chains         int
	warmup         int
	keep           int
	seed           int64
	maxLeapfrog    int
	targetAccept   float64
	maxEnergyError float64
	priors         Priors
	family         Likelihood
	dof            float64
	sink           ChainSink

	// Logging
	logger logger.Logger
}

// New creates an HMC sampler with configuration options.
func New(opts ...Option) *HMC {
	s := &HMC{
		chains:         defaultChains,
		warmup:         defaultWarmup,
		keep:           defaultKeep,
		seed:           defaultSeed,
		maxLeapfrog:    defaultMaxLeapfrog,
		targetAccept:   defaultTargetAccept,
		maxEnergyError: defaultMaxEnergyError,
		priors:         defaultPriors(),
		family:         Gaussian,
		logger:         logger.Get().Named("sampler"),
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Sample builds the posterior for the specification and runs the configured
// number of chains as independent goroutines with distinct seeds.
func (s *HMC) Sample(ctx context.Context, ds *model.Dataset, spec modelspec.Specification) (*SampleSet, error) {
	post, err := newPosterior(ds, spec, s.priors, s.family, s.dof)
	if err != nil {
		metrics.RecordSamplerError()
		metrics.RecordErrorByComponent("sampler", "posterior_build")
		return nil, fmt.Errorf("build posterior: %w", err)
	}

	set := &SampleSet{
		Spec:       spec,
		ParamNames: post.lay.names(),
		Warmup:     s.warmup,
		Requested:  s.keep,
		Chains:     make([]ChainResult, s.chains),
	}

	s.logger.Info(ctx, "sampling started",
		logger.String("spec", spec.Name),
		logger.Int("parameters", post.dim()),
		logger.Int("observations", len(post.rows)),
		logger.Int("chains", s.chains),
		logger.Int("warmup", s.warmup),
		logger.Int("draws", s.keep),
	)
	metrics.UpdateChainsActive(s.chains)

	var wg sync.WaitGroup
	for i := 0; i < s.chains; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c := &chain{
				id:   id,
				eval: newEvaluator(post),
				rng:  rand.New(rand.NewSource(s.seed + int64(id))),
				cfg: chainConfig{
					warmup:         s.warmup,
					keep:           s.keep,
					maxLeapfrog:    s.maxLeapfrog,
					targetAccept:   s.targetAccept,
					maxEnergyError: s.maxEnergyError,
				},
			}
			set.Chains[id] = c.run(ctx)
			s.observeChain(ctx, &set.Chains[id])
		}(i)
	}
	wg.Wait()
	metrics.UpdateChainsActive(0)

	if !set.Completed() {
		s.logger.Warn(ctx, "sampling incomplete",
			logger.String("spec", spec.Name),
			logger.Int("draws", set.TotalDraws()),
			logger.Error(ctx.Err()),
		)
	} else {
		s.logger.Info(ctx, "sampling finished",
			logger.String("spec", spec.Name),
			logger.Int("draws", set.TotalDraws()),
			logger.Int("divergences", set.TotalDivergences()),
		)
	}
	return set, nil
}

// observeChain reports one finished chain to metrics, logs, and the
// optional sink. Sink failures are logged and counted, never fatal: draw
// persistence is independent of the in-memory result.
func (s *HMC) observeChain(ctx context.Context, res *ChainResult) {
	label := strconv.Itoa(res.ID)
	metrics.RecordDrawsRecorded(len(res.Draws))
	metrics.RecordDivergences(res.Divergences)
	metrics.RecordLeapfrogSteps(res.LeapfrogSteps)
	metrics.RecordChainDuration(res.Duration.Seconds())
	metrics.UpdateChainStepSize(label, res.StepSize)
	metrics.UpdateChainAcceptRate(label, res.AcceptRate)

	if !res.Completed {
		s.logger.Warn(ctx, "chain cancelled",
			logger.Int("chain", res.ID),
			logger.Int("draws", len(res.Draws)),
		)
		return
	}

	metrics.RecordChainCompleted()
	s.logger.Info(ctx, "chain finished",
		logger.Int("chain", res.ID),
		logger.Int("draws", len(res.Draws)),
		logger.Int("divergences", res.Divergences),
		logger.Float64("step_size", res.StepSize),
		logger.Float64("accept_rate", res.AcceptRate),
		logger.Duration("elapsed", res.Duration),
	)

	if s.sink == nil {
		return
	}
	if err := s.sink.PersistChain(ctx, res); err != nil {
		metrics.RecordSamplerError()
		metrics.RecordErrorByComponent("sampler", "chain_sink")
		s.logger.Error(ctx, "chain sink failed",
			logger.Int("chain", res.ID),
			logger.Error(err),
		)
	}
}
