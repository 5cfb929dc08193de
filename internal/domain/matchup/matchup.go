// Package matchup classifies lineup pairs into style-matchup buckets.
package matchup

import (
	"fmt"

	"github.com/halfcourt/matchfit/internal/domain/model"
)

// SuperclusterID is a lineup style cluster index in [0, S).
type SuperclusterID int

// Pair is the (offense, defense) supercluster combination of one possession.
type Pair struct {
	Off SuperclusterID
	Def SuperclusterID
}

// Index flattens the pair into the matchup index off*S + def.
func (p Pair) Index(s int) int {
	return int(p.Off)*s + int(p.Def)
}

// Classifier maps two lineups to their matchup pair. Implementations are
// pure functions of the two multisets: read-only after construction and safe
// for concurrent use.
type Classifier interface {
	// Classify returns the supercluster pair for the two lineups. ok is
	// false when either lineup has no assignment; the row then belongs in
	// the unassigned bucket, which is not an error.
	Classify(off, def model.Lineup) (Pair, bool)

	// Superclusters returns S, the number of style clusters per side.
	Superclusters() int
}

// Assignment is one supercluster table row: a canonical lineup and its
// style cluster.
type Assignment struct {
	Lineup       model.Lineup
	Supercluster SuperclusterID
}

// tableClassifier is a map-backed Classifier.
type tableClassifier struct {
	assignments    map[model.Lineup]SuperclusterID
	s              int
	archetypeSpace int
}

// NewTable builds a Classifier over S style clusters. Supercluster ids
// outside [0, S) are fatal: a bad id would index outside the matchup space.
// Conflicting assignments for the same lineup are fatal too; byte-identical
// duplicates are tolerated.
func NewTable(assignments []Assignment, s int, opts ...Option) (Classifier, error) {
	if s < 1 {
		return nil, fmt.Errorf("%w: %d", ErrSuperclusterCount, s)
	}

	c := &tableClassifier{
		assignments: make(map[model.Lineup]SuperclusterID, len(assignments)),
		s:           s,
	}

	// Apply all options
	for _, opt := range opts {
		opt(c)
	}

	for i := range assignments {
		a := &assignments[i]
		if a.Supercluster < 0 || int(a.Supercluster) >= s {
			return nil, fmt.Errorf("%w: supercluster %d for lineup %v (S=%d)", ErrSuperclusterRange, a.Supercluster, a.Lineup, s)
		}
		if c.archetypeSpace > 0 {
			for _, id := range a.Lineup {
				if id < 0 || int(id) >= c.archetypeSpace {
					return nil, fmt.Errorf("%w: archetype %d in lineup %v (K=%d)", ErrLineupArchetype, id, a.Lineup, c.archetypeSpace)
				}
			}
		}
		key := model.NewLineup(a.Lineup)
		if prev, ok := c.assignments[key]; ok {
			if prev != a.Supercluster {
				return nil, fmt.Errorf("%w: lineup %v assigned to both %d and %d", ErrConflictingAssignment, key, prev, a.Supercluster)
			}
			continue
		}
		c.assignments[key] = a.Supercluster
	}

	return c, nil
}

func (c *tableClassifier) Classify(off, def model.Lineup) (Pair, bool) {
	offSC, ok := c.assignments[off]
	if !ok {
		return Pair{}, false
	}
	defSC, ok := c.assignments[def]
	if !ok {
		return Pair{}, false
	}
	return Pair{Off: offSC, Def: defSC}, true
}

func (c *tableClassifier) Superclusters() int {
	return c.s
}
