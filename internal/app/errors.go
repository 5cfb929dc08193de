// Package pipeline runs one model fit from raw inputs to published
// artifacts.
package pipeline

import "errors"

// Pipeline errors.
var (
	// ErrNoLoader indicates Run was called without an input loader.
	ErrNoLoader = errors.New("no loader configured")

	// ErrNoSink indicates Run was called without an artifact sink.
	ErrNoSink = errors.New("no sink configured")
)
