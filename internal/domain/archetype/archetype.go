// Package archetype resolves players to their role archetype and skill pair.
package archetype

import (
	"fmt"

	"github.com/halfcourt/matchfit/internal/domain/model"
)

// Resolver answers player lookups against a loaded archetype table.
// Implementations are read-only after construction and safe for concurrent
// use.
type Resolver interface {
	// Resolve returns the player's archetype and skill pair. ok is false for
	// players absent from the table; absence is a drop condition for the
	// possession, never an imputation.
	Resolve(playerID string) (model.ArchetypeID, model.Skill, bool)

	// Archetypes returns K, the size of the dense archetype id space.
	Archetypes() int
}

// Entry is one archetype table row as loaded from storage.
type Entry struct {
	PlayerID  string
	Season    string
	Archetype model.ArchetypeID
	OffSkill  float64
	DefSkill  float64
}

type player struct {
	archetype model.ArchetypeID
	skill     model.Skill
}

// tableResolver is a map-backed Resolver over one season slice.
type tableResolver struct {
	season  string
	players map[string]player
	k       int
}

// NewTable builds a Resolver from table entries, keeping only the configured
// season when one is set. The archetype id space must be dense: every id in
// [0, K) observed at least once, no negatives, no gaps. Violations are fatal
// because downstream Z-vectors index arrays by archetype id.
func NewTable(entries []Entry, opts ...Option) (Resolver, error) {
	r := &tableResolver{players: make(map[string]player)}

	// Apply all options
	for _, opt := range opts {
		opt(r)
	}

	maxID := model.ArchetypeID(-1)
	for i := range entries {
		e := &entries[i]
		if r.season != "" && e.Season != r.season {
			continue
		}
		if e.Archetype < 0 {
			return nil, fmt.Errorf("%w: archetype %d for player %q", ErrArchetypeRange, e.Archetype, e.PlayerID)
		}
		if _, dup := r.players[e.PlayerID]; dup {
			return nil, fmt.Errorf("%w: player %q", ErrDuplicatePlayer, e.PlayerID)
		}
		r.players[e.PlayerID] = player{
			archetype: e.Archetype,
			skill:     model.Skill{Off: e.OffSkill, Def: e.DefSkill},
		}
		if e.Archetype > maxID {
			maxID = e.Archetype
		}
	}

	if len(r.players) == 0 {
		return nil, ErrEmptyTable
	}

	r.k = int(maxID) + 1
	if err := r.checkDense(); err != nil {
		return nil, err
	}
	return r, nil
}

// checkDense verifies the observed ids cover [0, K) with no gaps.
func (r *tableResolver) checkDense() error {
	seen := make([]bool, r.k)
	for _, p := range r.players {
		seen[p.archetype] = true
	}
	for id, ok := range seen {
		if !ok {
			return fmt.Errorf("%w: no player carries archetype %d (max id %d)", ErrSparseArchetypes, id, r.k-1)
		}
	}
	return nil
}

func (r *tableResolver) Resolve(playerID string) (model.ArchetypeID, model.Skill, bool) {
	p, ok := r.players[playerID]
	if !ok {
		return 0, model.Skill{}, false
	}
	return p.archetype, p.skill, true
}

func (r *tableResolver) Archetypes() int {
	return r.k
}
