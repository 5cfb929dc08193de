package archetype

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrEmptyTable       = errors.New("archetype table is empty")
	ErrArchetypeRange   = errors.New("archetype id out of range")
	ErrSparseArchetypes = errors.New("archetype id space is not dense")
	ErrDuplicatePlayer  = errors.New("duplicate player in archetype table")
)
