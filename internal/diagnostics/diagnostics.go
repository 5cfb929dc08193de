// Package diagnostics audits posterior sample sets for convergence.
package diagnostics

import (
	"fmt"
	"math"

	"github.com/halfcourt/matchfit/internal/sampler"
)

// Default acceptance thresholds. Chains shorter than minDrawsPerChain
// cannot support split statistics and are dropped from the analysis.
const (
	defaultMaxRHat           = 1.01
	defaultMinESS            = 400.0
	defaultMaxDivergenceRate = 0.01
	minDrawsPerChain         = 8
	percentFactor            = 100
)

// ParamDiagnostic is the convergence verdict for one parameter.
type ParamDiagnostic struct {
	Name string  `json:"name"`
	RHat float64 `json:"r_hat"`
	ESS  float64 `json:"ess"`
}

// Report is the audit outcome for a sample set. Accepted requires every
// parameter to mix, divergences to stay rare, and the run to be complete;
// Failures lists each violated criterion with the offending parameters.
type Report struct {
	Params         []ParamDiagnostic `json:"params"`
	MaxRHat        float64           `json:"max_r_hat"`
	MinESS         float64           `json:"min_ess"`
	DivergenceRate float64           `json:"divergence_rate"`
	Complete       bool              `json:"complete"`
	Accepted       bool              `json:"accepted"`
	Failures       []string          `json:"failures,omitempty"`
}

// Auditor decides whether a sample set is trustworthy.
type Auditor interface {
	Audit(set *sampler.SampleSet) (*Report, error)
}

type auditor struct {
	maxRHat           float64
	minESS            float64
	maxDivergenceRate float64
}

// New creates an Auditor with configuration options.
func New(opts ...Option) Auditor {
	a := &auditor{
		maxRHat:           defaultMaxRHat,
		minESS:            defaultMinESS,
		maxDivergenceRate: defaultMaxDivergenceRate,
	}

	// Apply all options
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Audit computes split R-hat and effective sample size per parameter and
// applies the acceptance policy. Chains are truncated to a common length;
// chains with too few draws are dropped from the statistics but still count
// against completeness.
func (a *auditor) Audit(set *sampler.SampleSet) (*Report, error) {
	if set == nil || len(set.Chains) == 0 {
		return nil, ErrEmptySampleSet
	}
	if set.TotalDraws() == 0 {
		return nil, fmt.Errorf("%w: no retained draws", ErrEmptySampleSet)
	}

	rep := &Report{
		Complete:       set.Completed(),
		DivergenceRate: set.DivergenceRate(),
	}

	chains := usableChains(set)
	if len(chains) == 0 {
		rep.Failures = append(rep.Failures,
			fmt.Sprintf("no chain carries the %d draws needed for split statistics", minDrawsPerChain))
	} else {
		a.analyze(set, chains, rep)
	}

	if rep.DivergenceRate >= a.maxDivergenceRate {
		rep.Failures = append(rep.Failures,
			fmt.Sprintf("divergence rate %.2f%% at or above %.2f%%",
				rep.DivergenceRate*percentFactor, a.maxDivergenceRate*percentFactor))
	}
	if !rep.Complete {
		rep.Failures = append(rep.Failures, "run incomplete: at least one chain did not finish")
	}

	rep.Accepted = len(rep.Failures) == 0
	return rep, nil
}

// analyze fills the per-parameter table and the mixing failures.
func (a *auditor) analyze(set *sampler.SampleSet, chains [][][]float64, rep *Report) {
	dim := set.Dim()
	rep.Params = make([]ParamDiagnostic, 0, dim)
	rep.MaxRHat = 0
	rep.MinESS = math.Inf(1)

	var badRHat, badESS []string
	for p := 0; p < dim; p++ {
		series := make([][]float64, len(chains))
		for c := range chains {
			col := make([]float64, len(chains[c]))
			for i := range chains[c] {
				col[i] = chains[c][i][p]
			}
			series[c] = col
		}

		split := splitHalves(series)
		rhat := splitRHat(split)
		ess := effectiveSampleSize(split)
		name := set.ParamNames[p]
		rep.Params = append(rep.Params, ParamDiagnostic{Name: name, RHat: rhat, ESS: ess})

		rep.MaxRHat = math.Max(rep.MaxRHat, rhat)
		rep.MinESS = math.Min(rep.MinESS, ess)
		if !(rhat < a.maxRHat) {
			badRHat = append(badRHat, name)
		}
		if !(ess > a.minESS) {
			badESS = append(badESS, name)
		}
	}

	if len(badRHat) > 0 {
		rep.Failures = append(rep.Failures,
			fmt.Sprintf("r-hat %.4f at or above %.4f for %v", rep.MaxRHat, a.maxRHat, badRHat))
	}
	if len(badESS) > 0 {
		rep.Failures = append(rep.Failures,
			fmt.Sprintf("ess %.0f at or below %.0f for %v", rep.MinESS, a.minESS, badESS))
	}
}

// usableChains truncates every chain with enough draws to the shortest such
// chain, so split statistics see equal lengths.
func usableChains(set *sampler.SampleSet) [][][]float64 {
	minLen := math.MaxInt
	for i := range set.Chains {
		n := len(set.Chains[i].Draws)
		if n >= minDrawsPerChain && n < minLen {
			minLen = n
		}
	}
	if minLen == math.MaxInt {
		return nil
	}

	var chains [][][]float64
	for i := range set.Chains {
		draws := set.Chains[i].Draws
		if len(draws) >= minDrawsPerChain {
			chains = append(chains, draws[:minLen])
		}
	}
	return chains
}

// splitHalves cuts each sequence in two, doubling the chain count. An odd
// trailing draw is dropped.
func splitHalves(series [][]float64) [][]float64 {
	out := make([][]float64, 0, 2*len(series))
	for _, s := range series {
		half := len(s) / 2
		out = append(out, s[:half], s[half:2*half])
	}
	return out
}

func meanOf(xs []float64) float64 {
	sum := 0.0
	for _, v := range xs {
		sum += v
	}
	return sum / float64(len(xs))
}

// sampleVar is the unbiased variance around the sequence mean.
func sampleVar(xs []float64, mean float64) float64 {
	sum := 0.0
	for _, v := range xs {
		d := v - mean
		sum += d * d
	}
	return sum / float64(len(xs)-1)
}

// splitRHat is the potential scale reduction factor over split sequences
// (Gelman et al., BDA3 11.4). Values near one indicate the chains agree in
// both location and spread.
func splitRHat(split [][]float64) float64 {
	m := len(split)
	n := len(split[0])
	if m < 2 || n < 2 {
		return math.NaN()
	}

	means := make([]float64, m)
	w := 0.0
	for j, s := range split {
		means[j] = meanOf(s)
		w += sampleVar(s, means[j])
	}
	w /= float64(m)

	grand := meanOf(means)
	b := float64(n) * sampleVar(means, grand)

	varPlus := float64(n-1)/float64(n)*w + b/float64(n)
	return math.Sqrt(varPlus / w)
}

// effectiveSampleSize follows the multi-chain estimator with Geyer's
// initial monotone positive sequence: paired autocorrelations are summed
// while positive, forced non-increasing, and the resulting integrated
// autocorrelation time divides the total draw count.
func effectiveSampleSize(split [][]float64) float64 {
	m := len(split)
	n := len(split[0])
	if m < 2 || n < 4 {
		return math.NaN()
	}

	means := make([]float64, m)
	vars := make([]float64, m)
	centered := make([][]float64, m)
	w := 0.0
	for j, s := range split {
		means[j] = meanOf(s)
		vars[j] = sampleVar(s, means[j])
		w += vars[j]
		z := make([]float64, n)
		for i, v := range s {
			z[i] = v - means[j]
		}
		centered[j] = z
	}
	w /= float64(m)

	grand := meanOf(means)
	b := float64(n) * sampleVar(means, grand)
	varPlus := float64(n-1)/float64(n)*w + b/float64(n)
	if varPlus <= 0 {
		return math.NaN()
	}

	// autocovariance at lag t averaged across chains, 1/n normalization
	acov := func(t int) float64 {
		sum := 0.0
		for _, z := range centered {
			s := 0.0
			for i := 0; i+t < n; i++ {
				s += z[i] * z[i+t]
			}
			sum += s / float64(n)
		}
		return sum / float64(m)
	}

	rho := func(t int) float64 {
		if t == 0 {
			return 1
		}
		return 1 - (w-acov(t))/varPlus
	}

	// Geyer pairs: sum while positive, then enforce monotone decrease.
	tau := 0.0
	prevPair := math.Inf(1)
	for t := 0; t+1 < n; t += 2 {
		pair := rho(t) + rho(t+1)
		if pair <= 0 {
			break
		}
		if pair > prevPair {
			pair = prevPair
		}
		tau += pair
		prevPair = pair
	}
	tau = 2*tau - 1

	total := float64(m * n)
	if tau <= 0 {
		return total
	}
	return total / tau
}
