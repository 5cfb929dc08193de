// Package matchup classifies lineup pairs into style-matchup buckets.
package matchup

// Option applies a configuration option to the table classifier.
type Option func(*tableClassifier)

// WithArchetypeSpace cross-checks every lineup key against the resolver's
// dense id space [0, K) at load time. Zero disables the check.
func WithArchetypeSpace(k int) Option {
	return func(c *tableClassifier) {
		c.archetypeSpace = k
	}
}
