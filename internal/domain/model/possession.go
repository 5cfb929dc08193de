// Package model contains domain models passed between pipeline stages.
package model

import "sort"

// LineupSize is the number of players on each side of a possession.
const LineupSize = 5

// UnassignedMatchup marks a feature row whose lineup pair has no
// supercluster assignment. Such rows stay usable for pooled fits but are
// excluded from matchup-parameterized fits.
const UnassignedMatchup = -1

// ArchetypeID is a dense role index in [0, K). The density is validated when
// the archetype table loads, so an ArchetypeID doubles as an array index.
type ArchetypeID int

// Skill is a player's offensive/defensive skill pair for one season.
type Skill struct {
	Off float64
	Def float64
}

// Possession is one offensive trip: five offensive players, five defenders,
// and the points the offense produced. Immutable after ingestion.
type Possession struct {
	GameID       string
	PossessionID string
	Offense      [LineupSize]string // player ids
	Defense      [LineupSize]string // player ids
	Outcome      float64
}

// Lineup is the sorted multiset of archetype ids fielded by one side.
// Player identity and on-court ordering are deliberately absent.
type Lineup [LineupSize]ArchetypeID

// NewLineup builds the canonical (sorted) lineup for five archetype ids.
func NewLineup(ids [LineupSize]ArchetypeID) Lineup {
	l := Lineup(ids)
	sort.Slice(l[:], func(i, j int) bool { return l[i] < l[j] })
	return l
}
