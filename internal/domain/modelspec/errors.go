package modelspec

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrInsufficientData = errors.New("no candidate specification has enough observations")
)

// InsufficientDataError reports that every candidate failed the sufficiency
// screen. It matches ErrInsufficientData under errors.Is and carries the
// full assessment table for the run report.
type InsufficientDataError struct {
	Assessments []Assessment
}

func (e *InsufficientDataError) Error() string {
	best := 0.0
	for _, a := range e.Assessments {
		if a.Ratio > best {
			best = a.Ratio
		}
	}
	return fmt.Sprintf("%v (best ratio %.1f)", ErrInsufficientData, best)
}

func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}
