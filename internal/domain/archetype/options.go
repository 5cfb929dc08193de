// Package archetype resolves players to their role archetype and skill pair.
package archetype

// Option applies a configuration option to the table resolver.
type Option func(*tableResolver)

// WithSeason restricts the resolver to one season slice of the table.
// Empty keeps every row, which assumes the table is already single-season.
func WithSeason(season string) Option {
	return func(r *tableResolver) {
		r.season = season
	}
}
