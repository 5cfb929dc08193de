package diagnostics

import "errors"

// Sentinel error kinds for this package. These allow errors.Is checks from callers.
var (
	ErrEmptySampleSet = errors.New("sample set has no draws to audit")
)
