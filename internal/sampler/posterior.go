// Package sampler draws posterior samples for a chosen parameterization
// with Hamiltonian Monte Carlo.
package sampler

import (
	"fmt"
	"math"

	"github.com/halfcourt/matchfit/internal/domain/model"
	"github.com/halfcourt/matchfit/internal/domain/modelspec"
)

const logSqrt2Pi = 0.9189385332046727 // log(sqrt(2*pi))

// Priors holds the scale hyperparameters of the model. Intercepts are
// Normal(0, InterceptScale); coefficients and the residual scale are
// HalfNormal with their respective scales.
type Priors struct {
	InterceptScale   float64
	CoefficientScale float64
	NoiseScale       float64
}

// Likelihood selects the observation noise family.
type Likelihood string

// Supported likelihood families.
const (
	Gaussian Likelihood = "gaussian"
	StudentT Likelihood = "student-t"
)

// layout maps a specification onto the unconstrained parameter vector:
// intercepts first, then log off-coefficients, then log def-coefficients,
// then the log residual scale.
type layout struct {
	spec  modelspec.Specification
	nInt  int // intercept count
	nCoef int // coefficients per role: CoeffBlocks * K
	dim   int
}

func newLayout(spec modelspec.Specification) layout {
	nInt := spec.Intercepts
	nCoef := spec.CoeffBlocks * spec.Archetypes
	return layout{
		spec:  spec,
		nInt:  nInt,
		nCoef: nCoef,
		dim:   nInt + 2*nCoef + 1,
	}
}

func (l layout) offAt(block, a int) int {
	return l.nInt + block*l.spec.Archetypes + a
}

func (l layout) defAt(block, a int) int {
	return l.nInt + l.nCoef + block*l.spec.Archetypes + a
}

func (l layout) sigmaAt() int {
	return l.dim - 1
}

// names labels every position of the parameter vector for reports and
// per-chain draw files.
func (l layout) names() []string {
	names := make([]string, l.dim)
	for i := 0; i < l.nInt; i++ {
		if l.nInt == 1 {
			names[i] = "intercept"
		} else {
			names[i] = fmt.Sprintf("intercept[%d]", i)
		}
	}
	k := l.spec.Archetypes
	for block := 0; block < l.spec.CoeffBlocks; block++ {
		for a := 0; a < k; a++ {
			if l.spec.CoeffBlocks == 1 {
				names[l.offAt(block, a)] = fmt.Sprintf("beta_off[%d]", a)
				names[l.defAt(block, a)] = fmt.Sprintf("beta_def[%d]", a)
			} else {
				names[l.offAt(block, a)] = fmt.Sprintf("beta_off[%d][%d]", block, a)
				names[l.defAt(block, a)] = fmt.Sprintf("beta_def[%d][%d]", block, a)
			}
		}
	}
	names[l.sigmaAt()] = "sigma"
	return names
}

// constrained maps an unconstrained point to the reported space:
// coefficients and the residual scale are exponentiated, intercepts pass
// through.
func (l layout) constrained(theta []float64) []float64 {
	out := make([]float64, l.dim)
	copy(out, theta[:l.nInt])
	for j := l.nInt; j < l.dim; j++ {
		out[j] = math.Exp(theta[j])
	}
	return out
}

// obsRow is one possession prepared for repeated density evaluation. The
// intercept and block indices are resolved once so the hot loop never
// branches on the specification.
type obsRow struct {
	zOff      []float64
	zDef      []float64
	intercept int
	block     int
	outcome   float64
}

// posterior is the joint log-density of the regression. It is read-only
// after construction and safe to share across chains; mutable evaluation
// scratch lives in evaluator.
type posterior struct {
	lay    layout
	rows   []obsRow
	priors Priors

	studentT bool
	dof      float64
	tConst   float64 // per-row constant of the student-t log-density

	outcomeSD float64 // sample SD of retained outcomes, used for init
}

func newPosterior(ds *model.Dataset, spec modelspec.Specification, priors Priors, family Likelihood, dof float64) (*posterior, error) {
	if ds == nil {
		return nil, ErrNilDataset
	}
	if spec.Archetypes != ds.Archetypes || spec.Superclusters != ds.Superclusters {
		return nil, fmt.Errorf("%w: specification is %dx%d, dataset is %dx%d",
			ErrSpecMismatch, spec.Archetypes, spec.Superclusters, ds.Archetypes, ds.Superclusters)
	}
	if spec.ParamCount() < 1 {
		return nil, fmt.Errorf("%w: empty parameter vector", ErrSpecMismatch)
	}

	p := &posterior{
		lay:    newLayout(spec),
		priors: priors,
	}
	switch family {
	case Gaussian:
	case StudentT:
		if dof <= 0 {
			return nil, fmt.Errorf("%w: student-t needs positive dof, got %g", ErrSpecMismatch, dof)
		}
		p.studentT = true
		p.dof = dof
		lg1, _ := math.Lgamma((dof + 1) / 2)
		lg2, _ := math.Lgamma(dof / 2)
		p.tConst = lg1 - lg2 - 0.5*math.Log(dof*math.Pi)
	default:
		return nil, fmt.Errorf("%w: unknown likelihood %q", ErrSpecMismatch, family)
	}

	// Rows without an assigned matchup only inform pooled parameterizations.
	usesMatchups := spec.UsesMatchups()
	var sum, sumSq float64
	for i := range ds.Rows {
		row := &ds.Rows[i]
		if usesMatchups && row.Matchup == model.UnassignedMatchup {
			continue
		}
		intercept, block := 0, 0
		if spec.Intercepts > 1 {
			intercept = row.Matchup
		}
		if spec.CoeffBlocks > 1 {
			block = row.Matchup
		}
		p.rows = append(p.rows, obsRow{
			zOff:      row.ZOff,
			zDef:      row.ZDef,
			intercept: intercept,
			block:     block,
			outcome:   row.Outcome,
		})
		sum += row.Outcome
		sumSq += row.Outcome * row.Outcome
	}
	if len(p.rows) == 0 {
		return nil, ErrNoObservations
	}

	n := float64(len(p.rows))
	variance := sumSq/n - (sum/n)*(sum/n)
	if variance > 0 {
		p.outcomeSD = math.Sqrt(variance)
	} else {
		p.outcomeSD = 1
	}
	return p, nil
}

func (p *posterior) dim() int {
	return p.lay.dim
}

// evaluator wraps a posterior with per-chain scratch buffers so chains can
// evaluate the density concurrently without sharing mutable state.
type evaluator struct {
	post *posterior
	beta []float64 // exp of the coefficient segment, reused per call
}

func newEvaluator(p *posterior) *evaluator {
	return &evaluator{
		post: p,
		beta: make([]float64, 2*p.lay.nCoef),
	}
}

// logDensity returns the joint log-density at theta and, when grad is
// non-nil, fills it with the analytic gradient. Coefficients and the
// residual scale are parameterized on the log scale; the half-normal
// priors carry the change-of-variables term.
func (e *evaluator) logDensity(theta, grad []float64) float64 {
	p := e.post
	lay := p.lay
	k := lay.spec.Archetypes

	if grad != nil {
		for i := range grad {
			grad[i] = 0
		}
	}

	lp := 0.0

	// Intercept priors: Normal(0, s).
	s2 := p.priors.InterceptScale * p.priors.InterceptScale
	for i := 0; i < lay.nInt; i++ {
		b := theta[i]
		lp -= 0.5 * b * b / s2
		if grad != nil {
			grad[i] -= b / s2
		}
	}

	// Coefficient priors: HalfNormal(s) on beta = exp(u), with log-Jacobian u.
	cs2 := p.priors.CoefficientScale * p.priors.CoefficientScale
	for j := lay.nInt; j < lay.nInt+2*lay.nCoef; j++ {
		u := theta[j]
		beta := math.Exp(u)
		e.beta[j-lay.nInt] = beta
		lp += u - 0.5*beta*beta/cs2
		if grad != nil {
			grad[j] += 1 - beta*beta/cs2
		}
	}

	// Residual scale prior: HalfNormal(s) on sigma = exp(v).
	sigmaIdx := lay.sigmaAt()
	v := theta[sigmaIdx]
	sigma := math.Exp(v)
	ns2 := p.priors.NoiseScale * p.priors.NoiseScale
	lp += v - 0.5*sigma*sigma/ns2
	if grad != nil {
		grad[sigmaIdx] += 1 - sigma*sigma/ns2
	}

	invVar := 1.0 / (sigma * sigma)
	for i := range p.rows {
		row := &p.rows[i]
		offBase := row.block * k
		defBase := lay.nCoef + row.block*k

		mu := theta[row.intercept]
		for a := 0; a < k; a++ {
			mu += e.beta[offBase+a] * row.zOff[a]
			mu -= e.beta[defBase+a] * row.zDef[a]
		}
		r := row.outcome - mu

		var dmu, dlogSigma float64
		if p.studentT {
			denom := p.dof*sigma*sigma + r*r
			lp += p.tConst - v - 0.5*(p.dof+1)*math.Log1p(r*r*invVar/p.dof)
			dmu = (p.dof + 1) * r / denom
			dlogSigma = (p.dof+1)*r*r/denom - 1
		} else {
			lp += -logSqrt2Pi - v - 0.5*r*r*invVar
			dmu = r * invVar
			dlogSigma = r*r*invVar - 1
		}

		if grad != nil {
			grad[row.intercept] += dmu
			for a := 0; a < k; a++ {
				grad[lay.nInt+offBase+a] += dmu * row.zOff[a] * e.beta[offBase+a]
				grad[lay.nInt+defBase+a] -= dmu * row.zDef[a] * e.beta[defBase+a]
			}
			grad[sigmaIdx] += dlogSigma
		}
	}

	return lp
}
