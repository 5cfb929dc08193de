// Package repository loads model inputs and persists run artifacts.
package repository

// Option applies a configuration option to the CSVLoader.
type Option func(*CSVLoader)

// WithExpectedRows preallocates possession buffers for an expected row
// count. Purely a hint for large loads.
func WithExpectedRows(n int) Option {
	return func(l *CSVLoader) {
		if n > 0 {
			l.expectRows = n
		}
	}
}
