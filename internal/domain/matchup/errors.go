package matchup

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrSuperclusterCount     = errors.New("supercluster count must be positive")
	ErrSuperclusterRange     = errors.New("supercluster id out of range")
	ErrLineupArchetype       = errors.New("lineup archetype outside dense id space")
	ErrConflictingAssignment = errors.New("conflicting supercluster assignment")
)
