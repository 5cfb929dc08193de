// Package sampler draws posterior samples for a chosen parameterization
// with Hamiltonian Monte Carlo.
package sampler

// Option applies a configuration option to the sampler.
type Option func(*HMC)

// WithChains sets the number of independent chains.
func WithChains(n int) Option {
	return func(s *HMC) {
		if n > 0 {
			s.chains = n
		}
	}
}

// WithWarmup sets the adaptation draws discarded per chain.
func WithWarmup(n int) Option {
	return func(s *HMC) {
		if n > 0 {
			s.warmup = n
		}
	}
}

// WithKeepDraws sets the retained draws per chain.
func WithKeepDraws(n int) Option {
	return func(s *HMC) {
		if n > 0 {
			s.keep = n
		}
	}
}

// WithSeed sets the base seed; chain i runs on seed+i.
func WithSeed(seed int64) Option {
	return func(s *HMC) {
		s.seed = seed
	}
}

// WithMaxLeapfrog caps the leapfrog steps per trajectory.
func WithMaxLeapfrog(n int) Option {
	return func(s *HMC) {
		if n > 0 {
			s.maxLeapfrog = n
		}
	}
}

// WithTargetAccept sets the dual-averaging acceptance target.
func WithTargetAccept(target float64) Option {
	return func(s *HMC) {
		if target > 0 && target < 1 {
			s.targetAccept = target
		}
	}
}

// WithMaxEnergyError sets the Hamiltonian error above which a trajectory
// counts as divergent.
func WithMaxEnergyError(limit float64) Option {
	return func(s *HMC) {
		if limit > 0 {
			s.maxEnergyError = limit
		}
	}
}

// WithPriors overrides the prior scales. Non-positive scales are ignored
// field by field.
func WithPriors(p Priors) Option {
	return func(s *HMC) {
		if p.InterceptScale > 0 {
			s.priors.InterceptScale = p.InterceptScale
		}
		if p.CoefficientScale > 0 {
			s.priors.CoefficientScale = p.CoefficientScale
		}
		if p.NoiseScale > 0 {
			s.priors.NoiseScale = p.NoiseScale
		}
	}
}

// WithGaussianLikelihood selects Gaussian observation noise.
func WithGaussianLikelihood() Option {
	return func(s *HMC) {
		s.family = Gaussian
		s.dof = 0
	}
}

// WithStudentTLikelihood selects heavy-tailed observation noise with the
// given degrees of freedom.
func WithStudentTLikelihood(dof float64) Option {
	return func(s *HMC) {
		if dof > 0 {
			s.family = StudentT
			s.dof = dof
		}
	}
}

// WithChainSink attaches a sink that persists each chain as it completes.
func WithChainSink(sink ChainSink) Option {
	return func(s *HMC) {
		s.sink = sink
	}
}
