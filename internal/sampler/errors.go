package sampler

import "errors"

// Sentinel error kinds for this package. These allow errors.Is checks from callers.
var (
	ErrNilDataset     = errors.New("dataset is nil")
	ErrNoObservations = errors.New("no usable observations for this specification")
	ErrSpecMismatch   = errors.New("specification does not match the dataset")
)
