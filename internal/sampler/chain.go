// Package sampler draws posterior samples for a chosen parameterization
// with Hamiltonian Monte Carlo.
package sampler

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Dual-averaging constants from Hoffman & Gelman (2014).
const (
	daGamma = 0.05
	daT0    = 10.0
	daKappa = 0.75
)

const (
	trajectoryTime       = 1.0  // target integration time per transition
	metricRegularization = 1e-3 // shrinkage target for the diagonal metric
	stepSizeSearchLimit  = 50
	minMetricSamples     = 10
)

// chainConfig carries the per-chain sampling knobs.
type chainConfig struct {
	warmup         int
	keep           int
	maxLeapfrog    int
	targetAccept   float64
	maxEnergyError float64
}

// chain runs one HMC chain. Each chain owns its rng, evaluator scratch and
// adaptation state; nothing is shared with sibling chains.
type chain struct {
	id   int
	eval *evaluator
	rng  *rand.Rand
	cfg  chainConfig

	stepSize float64
	invMass  []float64 // diagonal inverse mass: posterior variance estimates

	// Dual-averaging state
	mu        float64
	hBar      float64
	logEpsBar float64
	adaptN    int

	// Warmup variance accumulator
	acc welford

	// Current state and trajectory scratch
	lp       float64
	theta    []float64
	grad     []float64
	p        []float64
	thetaNew []float64
	gradNew  []float64
	pNew     []float64
}

// initialPoint draws a starting state: intercepts near zero, coefficients
// near 0.1 on the natural scale, and the residual scale near the sample SD
// of the retained outcomes.
func (p *posterior) initialPoint(rng *rand.Rand) []float64 {
	theta := make([]float64, p.lay.dim)
	for i := 0; i < p.lay.nInt; i++ {
		theta[i] = 0.1 * rng.NormFloat64()
	}
	logBeta := math.Log(0.1)
	for j := p.lay.nInt; j < p.lay.nInt+2*p.lay.nCoef; j++ {
		theta[j] = logBeta + 0.2*rng.NormFloat64()
	}
	theta[p.lay.sigmaAt()] = math.Log(p.outcomeSD) + 0.1*rng.NormFloat64()
	return theta
}

// run executes warmup and retention for one chain. Cancellation returns the
// draws recorded so far with Completed left false.
func (c *chain) run(ctx context.Context) ChainResult {
	start := time.Now()
	res := ChainResult{ID: c.id}

	dim := c.eval.post.dim()
	c.theta = c.eval.post.initialPoint(c.rng)
	c.grad = make([]float64, dim)
	c.p = make([]float64, dim)
	c.thetaNew = make([]float64, dim)
	c.gradNew = make([]float64, dim)
	c.pNew = make([]float64, dim)
	c.invMass = make([]float64, dim)
	for i := range c.invMass {
		c.invMass[i] = 1
	}
	c.acc = newWelford(dim)

	c.lp = c.eval.logDensity(c.theta, c.grad)
	c.stepSize = c.findStepSize()
	c.resetAdaptation()

	// The metric is estimated from the middle half of warmup; the tail
	// quarter re-adapts the step size against the new metric.
	winStart := c.cfg.warmup / 4
	winEnd := (3 * c.cfg.warmup) / 4

	var acceptSum float64
	total := c.cfg.warmup + c.cfg.keep
	for i := 0; i < total; i++ {
		select {
		case <-ctx.Done():
			res.StepSize = c.stepSize
			res.AcceptRate = meanAccept(acceptSum, len(res.Draws))
			res.Duration = time.Since(start)
			return res
		default:
		}

		alpha, divergent, steps := c.transition()
		res.LeapfrogSteps += steps

		if i < c.cfg.warmup {
			c.adaptStepSize(alpha)
			if i >= winStart && i < winEnd {
				c.acc.observe(c.theta)
			}
			if i == winEnd-1 && c.acc.variances(c.invMass) {
				// A new metric invalidates the adapted step size.
				c.stepSize = c.findStepSize()
				c.resetAdaptation()
			}
			if i == c.cfg.warmup-1 {
				c.stepSize = math.Exp(c.logEpsBar)
			}
			continue
		}

		if divergent {
			res.Divergences++
		}
		acceptSum += alpha
		res.Draws = append(res.Draws, c.eval.post.lay.constrained(c.theta))
	}

	res.Completed = true
	res.StepSize = c.stepSize
	res.AcceptRate = meanAccept(acceptSum, len(res.Draws))
	res.Duration = time.Since(start)
	return res
}

func meanAccept(sum float64, draws int) float64 {
	if draws == 0 {
		return 0
	}
	return sum / float64(draws)
}

// transition proposes one trajectory and applies the Metropolis correction.
// A non-finite state or an energy error above the configured bound rejects
// the proposal and reports a divergence.
func (c *chain) transition() (alpha float64, divergent bool, steps int) {
	for i := range c.p {
		c.p[i] = c.rng.NormFloat64() / math.Sqrt(c.invMass[i])
	}
	h0 := c.kinetic(c.p) - c.lp

	copy(c.thetaNew, c.theta)
	copy(c.gradNew, c.grad)
	copy(c.pNew, c.p)

	steps = c.trajectorySteps()
	lpNew := c.lp
	for s := 0; s < steps; s++ {
		lpNew = c.leapfrog(c.stepSize, c.thetaNew, c.pNew, c.gradNew)
		if math.IsNaN(lpNew) || math.IsInf(lpNew, 0) {
			return 0, true, steps
		}
	}

	h1 := c.kinetic(c.pNew) - lpNew
	dh := h1 - h0
	if math.IsNaN(dh) || dh > c.cfg.maxEnergyError {
		return 0, true, steps
	}

	alpha = 1.0
	if dh > 0 {
		alpha = math.Exp(-dh)
	}
	if c.rng.Float64() < alpha {
		copy(c.theta, c.thetaNew)
		copy(c.grad, c.gradNew)
		c.lp = lpNew
	}
	return alpha, false, steps
}

// leapfrog advances one step of size eps in place and returns the new
// log-density. The momentum half-steps use the gradient of the log-density;
// the position step is preconditioned by the inverse mass.
func (c *chain) leapfrog(eps float64, theta, p, grad []float64) float64 {
	for i := range p {
		p[i] += 0.5 * eps * grad[i]
	}
	for i := range theta {
		theta[i] += eps * c.invMass[i] * p[i]
	}
	lp := c.eval.logDensity(theta, grad)
	for i := range p {
		p[i] += 0.5 * eps * grad[i]
	}
	return lp
}

func (c *chain) kinetic(p []float64) float64 {
	ke := 0.0
	for i, v := range p {
		ke += v * v * c.invMass[i]
	}
	return 0.5 * ke
}

// trajectorySteps jitters the leapfrog count around a fixed integration
// time so chains cannot lock onto a periodic orbit.
func (c *chain) trajectorySteps() int {
	jitter := 0.9 + 0.2*c.rng.Float64()
	steps := int(math.Round(jitter * trajectoryTime / c.stepSize))
	if steps < 1 {
		steps = 1
	}
	if steps > c.cfg.maxLeapfrog {
		steps = c.cfg.maxLeapfrog
	}
	return steps
}

// findStepSize doubles or halves a unit step until the one-step acceptance
// probability crosses one half, starting from the chain's current state.
func (c *chain) findStepSize() float64 {
	eps := 1.0

	theta := make([]float64, len(c.theta))
	grad := make([]float64, len(c.grad))
	p := make([]float64, len(c.p))

	try := func(eps float64) float64 {
		copy(theta, c.theta)
		copy(grad, c.grad)
		for i := range p {
			p[i] = c.rng.NormFloat64() / math.Sqrt(c.invMass[i])
		}
		h0 := c.kinetic(p) - c.lp
		lp := c.leapfrog(eps, theta, p, grad)
		if math.IsNaN(lp) || math.IsInf(lp, 0) {
			return 0
		}
		dh := (c.kinetic(p) - lp) - h0
		if math.IsNaN(dh) {
			return 0
		}
		if dh < 0 {
			return 1
		}
		return math.Exp(-dh)
	}

	accept := try(eps)
	grow := accept > 0.5
	for i := 0; i < stepSizeSearchLimit; i++ {
		if grow {
			if accept <= 0.5 {
				break
			}
			eps *= 2
		} else {
			if accept >= 0.5 {
				break
			}
			eps /= 2
		}
		if eps < 1e-10 || eps > 1e7 {
			break
		}
		accept = try(eps)
	}
	return eps
}

func (c *chain) resetAdaptation() {
	c.mu = math.Log(10 * c.stepSize)
	c.hBar = 0
	c.logEpsBar = 0
	c.adaptN = 0
}

// adaptStepSize is one dual-averaging update toward the target acceptance.
func (c *chain) adaptStepSize(alpha float64) {
	c.adaptN++
	t := float64(c.adaptN)
	c.hBar = (1-1/(t+daT0))*c.hBar + (c.cfg.targetAccept-alpha)/(t+daT0)
	logEps := c.mu - math.Sqrt(t)/daGamma*c.hBar
	eta := math.Pow(t, -daKappa)
	c.logEpsBar = eta*logEps + (1-eta)*c.logEpsBar
	c.stepSize = math.Exp(logEps)
}

// welford accumulates per-dimension running variances.
type welford struct {
	n    int
	mean []float64
	m2   []float64
}

func newWelford(dim int) welford {
	return welford{
		mean: make([]float64, dim),
		m2:   make([]float64, dim),
	}
}

func (w *welford) observe(x []float64) {
	w.n++
	for i, v := range x {
		d := v - w.mean[i]
		w.mean[i] += d / float64(w.n)
		w.m2[i] += d * (v - w.mean[i])
	}
}

// variances writes regularized variance estimates into out, shrinking small
// samples toward a unit-free floor the way Stan conditions its metric. It
// reports false when too few samples accumulated to trust the estimate.
func (w *welford) variances(out []float64) bool {
	if w.n < minMetricSamples {
		return false
	}
	n := float64(w.n)
	shrink := n / (n + 5)
	for i := range out {
		v := w.m2[i] / (n - 1)
		out[i] = shrink*v + metricRegularization*(1-shrink)
	}
	return true
}
