// Package publish renders a fitted run into its two artifacts: the
// coefficient table and the run report.
package publish

// Option applies a configuration option to the publisher.
type Option func(*publisher)

// WithCredibleMass sets the central credible interval mass.
func WithCredibleMass(mass float64) Option {
	return func(p *publisher) {
		if mass > 0 && mass < 1 {
			p.credibleMass = mass
		}
	}
}
