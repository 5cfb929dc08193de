package publish

import "errors"

// Sentinel error kinds for this package. These allow errors.Is checks from callers.
var (
	ErrIncompleteInput = errors.New("publish input is missing a run artifact")
)
