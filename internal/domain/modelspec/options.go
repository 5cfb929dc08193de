// Package modelspec enumerates candidate parameterizations and screens them
// for data sufficiency.
package modelspec

// Option applies a configuration option to the selector.
type Option func(*selector)

// WithMinObsPerParam sets the minimum observations-per-parameter ratio a
// candidate needs to survive the screen.
func WithMinObsPerParam(ratio float64) Option {
	return func(s *selector) {
		if ratio > 0 {
			s.minObsPerParam = ratio
		}
	}
}

// WithSafeObsPerParam sets the ratio regarded as comfortably identified.
// It affects reporting only, never eligibility.
func WithSafeObsPerParam(ratio float64) Option {
	return func(s *selector) {
		if ratio > 0 {
			s.safeObsPerParam = ratio
		}
	}
}
