package features

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrNilResolver    = errors.New("archetype resolver is nil")
	ErrNilClassifier  = errors.New("matchup classifier is nil")
	ErrArchetypeIndex = errors.New("resolver produced archetype outside dense id space")
)
