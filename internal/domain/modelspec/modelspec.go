// Package modelspec enumerates candidate parameterizations and screens them
// for data sufficiency.
package modelspec

import (
	"github.com/halfcourt/matchfit/internal/domain/model"
)

// Default sufficiency thresholds (observations per parameter).
const (
	defaultMinObsPerParam  = 50
	defaultSafeObsPerParam = 150
)

// Candidate parameterization names.
const (
	SpecGlobal           = "global"
	SpecMatchupIntercept = "matchup-intercept"
	SpecPerMatchup       = "per-matchup"
)

// Specification describes one candidate parameterization structurally:
// how many intercepts and how many coefficient blocks it carries. The
// sampler adds one residual-scale parameter on top of ParamCount.
type Specification struct {
	Name          string
	Intercepts    int // 1 (pooled) or M (per matchup)
	CoeffBlocks   int // 1 (pooled) or M (per matchup)
	Archetypes    int // K
	Superclusters int // S
}

// Matchups returns M = S*S.
func (s Specification) Matchups() int {
	return s.Superclusters * s.Superclusters
}

// ParamCount is the regression parameter count: intercepts plus 2K
// coefficients per block. The residual scale is not included.
func (s Specification) ParamCount() int {
	return s.Intercepts + s.CoeffBlocks*2*s.Archetypes
}

// UsesMatchups reports whether rows must carry an assigned matchup index to
// inform this specification.
func (s Specification) UsesMatchups() bool {
	return s.Intercepts > 1 || s.CoeffBlocks > 1
}

// BucketParams is the number of parameters specific to a single matchup
// bucket, the unit of the per-bucket sufficiency check.
func (s Specification) BucketParams() int {
	p := 0
	if s.Intercepts > 1 {
		p++
	}
	if s.CoeffBlocks > 1 {
		p += 2 * s.Archetypes
	}
	return p
}

// Candidates enumerates the three parameterizations for a dataset's
// dimensions, ordered from least to most expressive.
func Candidates(ds *model.Dataset) []Specification {
	k, s := ds.Archetypes, ds.Superclusters
	m := ds.Matchups()
	return []Specification{
		{Name: SpecGlobal, Intercepts: 1, CoeffBlocks: 1, Archetypes: k, Superclusters: s},
		{Name: SpecMatchupIntercept, Intercepts: m, CoeffBlocks: 1, Archetypes: k, Superclusters: s},
		{Name: SpecPerMatchup, Intercepts: m, CoeffBlocks: m, Archetypes: k, Superclusters: s},
	}
}

// Assessment is the sufficiency verdict for one candidate.
type Assessment struct {
	Spec       Specification
	UsableRows int
	Ratio      float64
	Eligible   bool // ratio >= min threshold
	Safe       bool // ratio >= safe threshold
}

// ExcludedMatchup flags a bucket too sparse to trust even though the chosen
// specification passed in aggregate.
type ExcludedMatchup struct {
	Matchup int
	Rows    int
	Params  int
	Ratio   float64
}

// Selection is the selector's outcome: the chosen specification, the full
// assessment table, and any per-bucket exclusions of the chosen spec.
type Selection struct {
	Chosen      Specification
	Assessments []Assessment
	Excluded    []ExcludedMatchup
}

// Selector picks the most expressive parameterization the data can support.
type Selector interface {
	Select(ds *model.Dataset) (*Selection, error)
}

type selector struct {
	minObsPerParam  float64
	safeObsPerParam float64
}

// New creates a Selector with the default thresholds.
func New(opts ...Option) Selector {
	s := &selector{
		minObsPerParam:  defaultMinObsPerParam,
		safeObsPerParam: defaultSafeObsPerParam,
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Select assesses every candidate and keeps the most expressive one whose
// observations-per-parameter ratio clears the minimum. Matchup-parameterized
// candidates only count rows with an assigned matchup. Rejected candidates
// stay in the report; an empty survivor set is an error carrying the full
// assessment table.
func (sel *selector) Select(ds *model.Dataset) (*Selection, error) {
	assigned := ds.AssignedRows()
	total := len(ds.Rows)

	out := &Selection{}
	hasChosen := false
	for _, spec := range Candidates(ds) {
		usable := total
		if spec.UsesMatchups() {
			usable = assigned
		}
		ratio := float64(usable) / float64(spec.ParamCount())
		a := Assessment{
			Spec:       spec,
			UsableRows: usable,
			Ratio:      ratio,
			Eligible:   ratio >= sel.minObsPerParam,
			Safe:       ratio >= sel.safeObsPerParam,
		}
		out.Assessments = append(out.Assessments, a)
		// Later candidates are at least as expressive, so >= keeps the most
		// structured parameterization on ties (degenerate S=1 spaces).
		if a.Eligible && (!hasChosen || spec.ParamCount() >= out.Chosen.ParamCount()) {
			hasChosen = true
			out.Chosen = spec
		}
	}

	if !hasChosen {
		return nil, &InsufficientDataError{Assessments: out.Assessments}
	}

	if out.Chosen.UsesMatchups() {
		out.Excluded = sel.excludeSparseBuckets(ds, out.Chosen)
	}
	return out, nil
}

// excludeSparseBuckets applies the per-bucket sufficiency check of the
// chosen specification: a bucket with too few rows for its own parameters is
// flagged unreliable even when the aggregate ratio passes.
func (sel *selector) excludeSparseBuckets(ds *model.Dataset, spec Specification) []ExcludedMatchup {
	bucketParams := spec.BucketParams()
	if bucketParams == 0 {
		return nil
	}

	var excluded []ExcludedMatchup
	for m, rows := range ds.MatchupCounts() {
		ratio := float64(rows) / float64(bucketParams)
		if ratio < sel.minObsPerParam {
			excluded = append(excluded, ExcludedMatchup{
				Matchup: m,
				Rows:    rows,
				Params:  bucketParams,
				Ratio:   ratio,
			})
		}
	}
	return excluded
}
