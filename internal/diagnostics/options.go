// Package diagnostics audits posterior sample sets for convergence.
package diagnostics

// Option applies a configuration option to the auditor.
type Option func(*auditor)

// WithMaxRHat sets the split R-hat ceiling for acceptance.
func WithMaxRHat(v float64) Option {
	return func(a *auditor) {
		if v > 1 {
			a.maxRHat = v
		}
	}
}

// WithMinESS sets the effective sample size floor for acceptance.
func WithMinESS(v float64) Option {
	return func(a *auditor) {
		if v > 0 {
			a.minESS = v
		}
	}
}

// WithMaxDivergenceRate sets the divergent-transition fraction ceiling.
func WithMaxDivergenceRate(v float64) Option {
	return func(a *auditor) {
		if v > 0 && v <= 1 {
			a.maxDivergenceRate = v
		}
	}
}
