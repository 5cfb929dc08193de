package model

// RejectReason labels why a possession was dropped during aggregation.
// Dropped rows are counted, never imputed.
type RejectReason string

// Rejection reasons.
const (
	RejectUnknownPlayer    RejectReason = "unknown_player"
	RejectNonFiniteOutcome RejectReason = "nonfinite_outcome"
	RejectDuplicate        RejectReason = "duplicate"
)

// FeatureRow is one possession reduced to model features: per-archetype
// skill sums for each side, the matchup bucket, and the outcome. A row is a
// pure function of (possession, archetype table, supercluster table) and is
// never mutated after aggregation.
type FeatureRow struct {
	ZOff    []float64 // length K, ZOff[a] = sum of off-skill over offensive players with archetype a
	ZDef    []float64 // length K
	Matchup int       // offSC*S + defSC, or UnassignedMatchup
	Outcome float64
}

// Dataset is the assembled modeling matrix plus the bookkeeping the selector
// and publisher need: dimensions, rejection tallies, and bucket occupancy.
type Dataset struct {
	Rows          []FeatureRow
	Archetypes    int // K
	Superclusters int // S

	TotalRead int
	Rejected  map[RejectReason]int
}

// RejectedTotal sums dropped possessions across all reasons.
func (d *Dataset) RejectedTotal() int {
	n := 0
	for _, c := range d.Rejected {
		n += c
	}
	return n
}

// Matchups returns S*S, the size of the matchup index space.
func (d *Dataset) Matchups() int {
	return d.Superclusters * d.Superclusters
}

// AssignedRows counts rows carrying a real matchup index.
func (d *Dataset) AssignedRows() int {
	n := 0
	for i := range d.Rows {
		if d.Rows[i].Matchup != UnassignedMatchup {
			n++
		}
	}
	return n
}

// UnassignedRows counts rows in the unassigned bucket.
func (d *Dataset) UnassignedRows() int {
	return len(d.Rows) - d.AssignedRows()
}

// MatchupCounts tallies assigned rows per matchup bucket. The returned slice
// has length S*S; unassigned rows are not represented.
func (d *Dataset) MatchupCounts() []int {
	counts := make([]int, d.Matchups())
	for i := range d.Rows {
		if m := d.Rows[i].Matchup; m != UnassignedMatchup {
			counts[m]++
		}
	}
	return counts
}
