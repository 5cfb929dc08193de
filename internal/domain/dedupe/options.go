// Package dedupe tracks seen possession ids during ingestion.
package dedupe

// Option applies a configuration option to the InMemoryDeduper.
type Option func(*inMemoryDeduper)

// WithSizeHint preallocates the id map for an expected number of ids.
func WithSizeHint(n int) Option {
	return func(d *inMemoryDeduper) {
		if n > 0 {
			d.seen = make(map[string]struct{}, n)
		}
	}
}
