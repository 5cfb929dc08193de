// Package publish renders a fitted run into its two artifacts: the
// coefficient table and the run report.
package publish

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/halfcourt/matchfit/internal/diagnostics"
	"github.com/halfcourt/matchfit/internal/domain/model"
	"github.com/halfcourt/matchfit/internal/domain/modelspec"
	"github.com/halfcourt/matchfit/internal/sampler"
)

const defaultCredibleMass = 0.95

// Scope values for coefficient rows.
const (
	ScopeGlobal  = "global"
	ScopeMatchup = "matchup"
)

// Role values for coefficient rows.
const (
	RoleOffense = "offense"
	RoleDefense = "defense"
)

// Run verdicts.
const (
	VerdictAccepted   = "accepted"
	VerdictRejected   = "rejected"
	VerdictIncomplete = "incomplete"
)

// CoefficientRow is one published archetype effect. Matchup is
// model.UnassignedMatchup for globally scoped rows.
type CoefficientRow struct {
	Scope     string  `json:"scope"`
	Matchup   int     `json:"matchup"`
	Archetype int     `json:"archetype"`
	Role      string  `json:"role"`
	Estimate  float64 `json:"estimate"`
	Lower     float64 `json:"lower"`
	Upper     float64 `json:"upper"`
	Trusted   bool    `json:"trusted"`
}

// CoefficientTable is the published coefficient artifact for one run.
type CoefficientTable struct {
	RunID        string           `json:"run_id"`
	CredibleMass float64          `json:"credible_mass"`
	Rows         []CoefficientRow `json:"rows"`
}

// CandidateSummary reports one candidate's sufficiency screen outcome.
type CandidateSummary struct {
	Name       string  `json:"name"`
	Params     int     `json:"params"`
	UsableRows int     `json:"usable_rows"`
	Ratio      float64 `json:"ratio"`
	Eligible   bool    `json:"eligible"`
	Safe       bool    `json:"safe"`
}

// ExcludedSummary reports one matchup bucket dropped for sparsity.
type ExcludedSummary struct {
	Matchup int     `json:"matchup"`
	Rows    int     `json:"rows"`
	Params  int     `json:"params"`
	Ratio   float64 `json:"ratio"`
}

// DataSummary reports what survived ingestion.
type DataSummary struct {
	TotalRead  int            `json:"total_read"`
	Retained   int            `json:"retained"`
	Unassigned int            `json:"unassigned"`
	Rejected   map[string]int `json:"rejected,omitempty"`
}

// ChainSummary reports one chain's sampling behavior.
type ChainSummary struct {
	ID              int     `json:"id"`
	Draws           int     `json:"draws"`
	Divergences     int     `json:"divergences"`
	StepSize        float64 `json:"step_size"`
	AcceptRate      float64 `json:"accept_rate"`
	Completed       bool    `json:"completed"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// SamplingSummary aggregates the chain pool's behavior.
type SamplingSummary struct {
	Chains         []ChainSummary `json:"chains"`
	Warmup         int            `json:"warmup"`
	RequestedDraws int            `json:"requested_draws"`
	TotalDraws     int            `json:"total_draws"`
	Divergences    int            `json:"divergences"`
	DivergenceRate float64        `json:"divergence_rate"`
}

// ParamSummary is one parameter's posterior and mixing summary.
type ParamSummary struct {
	Name  string  `json:"name"`
	Mean  float64 `json:"mean"`
	SD    float64 `json:"sd"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	RHat  float64 `json:"r_hat"`
	ESS   float64 `json:"ess"`
}

// Timings carries per-stage wall-clock seconds, filled by the pipeline.
type Timings struct {
	LoadSeconds      float64 `json:"load_seconds"`
	AggregateSeconds float64 `json:"aggregate_seconds"`
	SelectSeconds    float64 `json:"select_seconds"`
	SampleSeconds    float64 `json:"sample_seconds"`
	AuditSeconds     float64 `json:"audit_seconds"`
	TotalSeconds     float64 `json:"total_seconds"`
}

// RunReport is the structured diagnostic artifact for one run.
type RunReport struct {
	RunID      string              `json:"run_id"`
	CreatedAt  time.Time           `json:"created_at"`
	Spec       string              `json:"spec"`
	Params     int                 `json:"params"`
	Candidates []CandidateSummary  `json:"candidates"`
	Data       DataSummary         `json:"data"`
	Excluded   []ExcludedSummary   `json:"excluded_matchups"`
	Sampling   SamplingSummary     `json:"sampling"`
	Audit      *diagnostics.Report `json:"audit"`
	Posterior  []ParamSummary      `json:"posterior"`
	Verdict    string              `json:"verdict"`
	Timings    Timings             `json:"timings"`
}

// Input bundles everything a finished run produced. RunID may be empty, in
// which case Build stamps a fresh one.
type Input struct {
	RunID     string
	Dataset   *model.Dataset
	Selection *modelspec.Selection
	Set       *sampler.SampleSet
	Audit     *diagnostics.Report
	Timings   Timings
}

// Publisher renders run artifacts.
type Publisher interface {
	Build(in *Input) (*CoefficientTable, *RunReport, error)
}

type publisher struct {
	credibleMass float64
}

// New creates a Publisher with configuration options.
func New(opts ...Option) Publisher {
	p := &publisher{
		credibleMass: defaultCredibleMass,
	}

	// Apply all options
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Build summarizes the posterior into the coefficient table and assembles
// the run report. A coefficient is trusted only when the audit accepted the
// run, every chain completed, and its matchup was not excluded for
// sparsity.
func (p *publisher) Build(in *Input) (*CoefficientTable, *RunReport, error) {
	if err := validate(in); err != nil {
		return nil, nil, err
	}

	runID := in.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	verdict := VerdictRejected
	switch {
	case !in.Audit.Complete:
		verdict = VerdictIncomplete
	case in.Audit.Accepted:
		verdict = VerdictAccepted
	}

	pooled := poolDraws(in.Set)
	summaries := p.summarize(in.Set, in.Audit, pooled)

	excluded := make(map[int]bool, len(in.Selection.Excluded))
	for _, e := range in.Selection.Excluded {
		excluded[e.Matchup] = true
	}

	table := &CoefficientTable{
		RunID:        runID,
		CredibleMass: p.credibleMass,
		Rows:         p.coefficientRows(in, pooled, excluded),
	}
	report := p.runReport(in, runID, verdict, summaries)
	return table, report, nil
}

func validate(in *Input) error {
	switch {
	case in == nil:
		return fmt.Errorf("%w: nil input", ErrIncompleteInput)
	case in.Dataset == nil:
		return fmt.Errorf("%w: missing dataset", ErrIncompleteInput)
	case in.Selection == nil:
		return fmt.Errorf("%w: missing selection", ErrIncompleteInput)
	case in.Set == nil:
		return fmt.Errorf("%w: missing sample set", ErrIncompleteInput)
	case in.Audit == nil:
		return fmt.Errorf("%w: missing audit report", ErrIncompleteInput)
	}
	return nil
}

// poolDraws gathers each parameter's draws across chains, sorted for
// quantile lookups. Parameters with no draws yield empty slices.
func poolDraws(set *sampler.SampleSet) [][]float64 {
	dim := set.Dim()
	pooled := make([][]float64, dim)
	total := set.TotalDraws()
	for p := 0; p < dim; p++ {
		pooled[p] = make([]float64, 0, total)
	}
	for c := range set.Chains {
		for _, draw := range set.Chains[c].Draws {
			for p := 0; p < dim; p++ {
				pooled[p] = append(pooled[p], draw[p])
			}
		}
	}
	for p := 0; p < dim; p++ {
		sort.Float64s(pooled[p])
	}
	return pooled
}

// quantile interpolates linearly between order statistics.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func meanSD(xs []float64) (mean, sd float64) {
	n := float64(len(xs))
	if n == 0 {
		return math.NaN(), math.NaN()
	}
	for _, v := range xs {
		mean += v
	}
	mean /= n
	if n < 2 {
		return mean, 0
	}
	for _, v := range xs {
		d := v - mean
		sd += d * d
	}
	return mean, math.Sqrt(sd / (n - 1))
}

// summarize builds the per-parameter posterior table, joining mixing
// statistics from the audit by position.
func (p *publisher) summarize(set *sampler.SampleSet, audit *diagnostics.Report, pooled [][]float64) []ParamSummary {
	lowerQ := (1 - p.credibleMass) / 2
	upperQ := 1 - lowerQ

	out := make([]ParamSummary, set.Dim())
	for i := range out {
		mean, sd := meanSD(pooled[i])
		out[i] = ParamSummary{
			Name:  set.ParamNames[i],
			Mean:  mean,
			SD:    sd,
			Lower: quantile(pooled[i], lowerQ),
			Upper: quantile(pooled[i], upperQ),
		}
		if i < len(audit.Params) {
			out[i].RHat = audit.Params[i].RHat
			out[i].ESS = audit.Params[i].ESS
		}
	}
	return out
}

// coefficientRows flattens the coefficient blocks into table rows.
func (p *publisher) coefficientRows(in *Input, pooled [][]float64, excluded map[int]bool) []CoefficientRow {
	spec := in.Set.Spec
	trustedBase := in.Audit.Accepted && in.Audit.Complete
	lowerQ := (1 - p.credibleMass) / 2
	upperQ := 1 - lowerQ

	rows := make([]CoefficientRow, 0, 2*spec.CoeffBlocks*spec.Archetypes)
	emit := func(role string, idx func(block, a int) int) {
		for block := 0; block < spec.CoeffBlocks; block++ {
			scope, matchup := ScopeGlobal, model.UnassignedMatchup
			trusted := trustedBase
			if spec.CoeffBlocks > 1 {
				scope, matchup = ScopeMatchup, block
				trusted = trusted && !excluded[block]
			}
			for a := 0; a < spec.Archetypes; a++ {
				draws := pooled[idx(block, a)]
				mean, _ := meanSD(draws)
				rows = append(rows, CoefficientRow{
					Scope:     scope,
					Matchup:   matchup,
					Archetype: a,
					Role:      role,
					Estimate:  mean,
					Lower:     quantile(draws, lowerQ),
					Upper:     quantile(draws, upperQ),
					Trusted:   trusted,
				})
			}
		}
	}
	emit(RoleOffense, in.Set.OffIndex)
	emit(RoleDefense, in.Set.DefIndex)
	return rows
}

func (p *publisher) runReport(in *Input, runID, verdict string, summaries []ParamSummary) *RunReport {
	ds := in.Dataset
	set := in.Set

	rep := &RunReport{
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
		Spec:      set.Spec.Name,
		Params:    set.Spec.ParamCount(),
		Audit:     in.Audit,
		Posterior: summaries,
		Verdict:   verdict,
		Timings:   in.Timings,
		Data: DataSummary{
			TotalRead:  ds.TotalRead,
			Retained:   len(ds.Rows),
			Unassigned: ds.UnassignedRows(),
		},
	}

	if n := ds.RejectedTotal(); n > 0 {
		rep.Data.Rejected = make(map[string]int, len(ds.Rejected))
		for reason, count := range ds.Rejected {
			rep.Data.Rejected[string(reason)] = count
		}
	}

	for _, a := range in.Selection.Assessments {
		rep.Candidates = append(rep.Candidates, CandidateSummary{
			Name:       a.Spec.Name,
			Params:     a.Spec.ParamCount(),
			UsableRows: a.UsableRows,
			Ratio:      a.Ratio,
			Eligible:   a.Eligible,
			Safe:       a.Safe,
		})
	}
	for _, e := range in.Selection.Excluded {
		rep.Excluded = append(rep.Excluded, ExcludedSummary{
			Matchup: e.Matchup,
			Rows:    e.Rows,
			Params:  e.Params,
			Ratio:   e.Ratio,
		})
	}

	rep.Sampling = SamplingSummary{
		Warmup:         set.Warmup,
		RequestedDraws: set.Requested,
		TotalDraws:     set.TotalDraws(),
		Divergences:    set.TotalDivergences(),
		DivergenceRate: set.DivergenceRate(),
	}
	for i := range set.Chains {
		ch := &set.Chains[i]
		rep.Sampling.Chains = append(rep.Sampling.Chains, ChainSummary{
			ID:              ch.ID,
			Draws:           len(ch.Draws),
			Divergences:     ch.Divergences,
			StepSize:        ch.StepSize,
			AcceptRate:      ch.AcceptRate,
			Completed:       ch.Completed,
			DurationSeconds: ch.Duration.Seconds(),
		})
	}
	return rep
}
