// Package features assembles possessions into the modeling dataset.
package features

// Option applies a configuration option to the aggregator.
type Option func(*aggregator)

// WithWorkers sets the shard fan-out width. Values below 1 fall back to a
// single worker.
func WithWorkers(workers int) Option {
	return func(a *aggregator) {
		a.workers = workers
	}
}
