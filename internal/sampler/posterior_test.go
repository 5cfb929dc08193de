package sampler

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/halfcourt/matchfit/internal/domain/model"
	"github.com/halfcourt/matchfit/internal/domain/modelspec"
)

// testDataset builds deterministic rows cycling through every matchup
// bucket plus the unassigned bucket. K=2, S=2.
func testDataset(n int) *model.Dataset {
	rng := rand.New(rand.NewSource(7))
	ds := &model.Dataset{Archetypes: 2, Superclusters: 2}
	for i := 0; i < n; i++ {
		ds.Rows = append(ds.Rows, model.FeatureRow{
			ZOff:    []float64{rng.NormFloat64(), rng.NormFloat64()},
			ZDef:    []float64{rng.NormFloat64(), rng.NormFloat64()},
			Matchup: i%5 - 1, // -1, 0, 1, 2, 3
			Outcome: rng.NormFloat64(),
		})
	}
	ds.TotalRead = n
	return ds
}

func TestLayoutDimensions(t *testing.T) {
	ds := testDataset(10)
	specs := modelspec.Candidates(ds)

	global := newLayout(specs[0])
	if global.dim != 6 {
		t.Errorf("global layout: expected dim 6, got %d", global.dim)
	}
	if got := global.names(); got[0] != "intercept" || got[1] != "beta_off[0]" || got[3] != "beta_def[0]" || got[5] != "sigma" {
		t.Errorf("global layout: unexpected names %v", got)
	}

	perMatchup := newLayout(specs[2])
	if perMatchup.dim != 21 { // 4 intercepts + 2*8 coefficients + sigma
		t.Errorf("per-matchup layout: expected dim 21, got %d", perMatchup.dim)
	}
	names := perMatchup.names()
	if names[2] != "intercept[2]" {
		t.Errorf("expected intercept[2], got %s", names[2])
	}
	if names[perMatchup.offAt(3, 1)] != "beta_off[3][1]" {
		t.Errorf("unexpected off name %s", names[perMatchup.offAt(3, 1)])
	}
	if names[perMatchup.defAt(0, 0)] != "beta_def[0][0]" {
		t.Errorf("unexpected def name %s", names[perMatchup.defAt(0, 0)])
	}
	if names[perMatchup.sigmaAt()] != "sigma" {
		t.Errorf("expected sigma last, got %s", names[perMatchup.sigmaAt()])
	}
}

func TestLayoutConstrained(t *testing.T) {
	lay := newLayout(modelspec.Specification{
		Name: modelspec.SpecGlobal, Intercepts: 1, CoeffBlocks: 1, Archetypes: 1, Superclusters: 1,
	})
	out := lay.constrained([]float64{-0.5, math.Log(2), math.Log(3), math.Log(1.5)})

	want := []float64{-0.5, 2, 3, 1.5}
	for i, w := range want {
		if math.Abs(out[i]-w) > 1e-12 {
			t.Errorf("constrained[%d]: expected %g, got %g", i, w, out[i])
		}
	}
}

func TestPosteriorRowFiltering(t *testing.T) {
	ds := testDataset(50) // 10 unassigned rows
	specs := modelspec.Candidates(ds)
	priors := defaultPriors()

	global, err := newPosterior(ds, specs[0], priors, Gaussian, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(global.rows) != 50 {
		t.Errorf("global fit should keep unassigned rows: expected 50, got %d", len(global.rows))
	}

	perMatchup, err := newPosterior(ds, specs[2], priors, Gaussian, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(perMatchup.rows) != 40 {
		t.Errorf("matchup fit should drop unassigned rows: expected 40, got %d", len(perMatchup.rows))
	}
	for i := range perMatchup.rows {
		if perMatchup.rows[i].intercept < 0 || perMatchup.rows[i].block < 0 {
			t.Errorf("row %d carries an unresolved matchup index", i)
		}
	}
}

func TestPosteriorConstruction(t *testing.T) {
	ds := testDataset(20)
	spec := modelspec.Candidates(ds)[0]
	priors := defaultPriors()

	if _, err := newPosterior(nil, spec, priors, Gaussian, 0); !errors.Is(err, ErrNilDataset) {
		t.Errorf("expected ErrNilDataset, got %v", err)
	}

	mismatched := spec
	mismatched.Archetypes = 3
	if _, err := newPosterior(ds, mismatched, priors, Gaussian, 0); !errors.Is(err, ErrSpecMismatch) {
		t.Errorf("expected ErrSpecMismatch, got %v", err)
	}

	empty := &model.Dataset{Archetypes: 2, Superclusters: 2}
	if _, err := newPosterior(empty, spec, priors, Gaussian, 0); !errors.Is(err, ErrNoObservations) {
		t.Errorf("expected ErrNoObservations, got %v", err)
	}

	if _, err := newPosterior(ds, spec, priors, Likelihood("cauchy"), 0); !errors.Is(err, ErrSpecMismatch) {
		t.Errorf("expected ErrSpecMismatch for unknown family, got %v", err)
	}

	if _, err := newPosterior(ds, spec, priors, StudentT, 0); !errors.Is(err, ErrSpecMismatch) {
		t.Errorf("expected ErrSpecMismatch for non-positive dof, got %v", err)
	}
}

// checkGradient compares the analytic gradient against central finite
// differences at theta.
func checkGradient(t *testing.T, p *posterior, theta []float64) {
	t.Helper()
	ev := newEvaluator(p)
	grad := make([]float64, len(theta))
	ev.logDensity(theta, grad)

	const h = 1e-6
	for i := range theta {
		up := append([]float64(nil), theta...)
		dn := append([]float64(nil), theta...)
		up[i] += h
		dn[i] -= h
		numeric := (ev.logDensity(up, nil) - ev.logDensity(dn, nil)) / (2 * h)

		scale := math.Max(1, math.Abs(numeric))
		if math.Abs(numeric-grad[i])/scale > 1e-5 {
			t.Errorf("gradient mismatch at %d: analytic %.10g, numeric %.10g", i, grad[i], numeric)
		}
	}
}

func TestGradientGaussian(t *testing.T) {
	ds := testDataset(60)
	priors := defaultPriors()
	rng := rand.New(rand.NewSource(11))

	for _, spec := range modelspec.Candidates(ds) {
		p, err := newPosterior(ds, spec, priors, Gaussian, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		checkGradient(t, p, p.initialPoint(rng))

		// A second point away from the init region.
		theta := p.initialPoint(rng)
		for i := range theta {
			theta[i] += 0.5 * rng.NormFloat64()
		}
		checkGradient(t, p, theta)
	}
}

func TestGradientStudentT(t *testing.T) {
	ds := testDataset(60)
	priors := defaultPriors()
	rng := rand.New(rand.NewSource(13))

	for _, dof := range []float64{3, 7, 30} {
		p, err := newPosterior(ds, modelspec.Candidates(ds)[0], priors, StudentT, dof)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		checkGradient(t, p, p.initialPoint(rng))
	}
}

func TestSampleSetIndexesMatchLayout(t *testing.T) {
	ds := testDataset(10)
	for _, spec := range modelspec.Candidates(ds) {
		lay := newLayout(spec)
		set := &SampleSet{Spec: spec, ParamNames: lay.names()}

		for m := 0; m < spec.Intercepts; m++ {
			if got := set.InterceptIndex(m); got != m {
				t.Errorf("%s: intercept index %d resolved to %d", spec.Name, m, got)
			}
		}
		for block := 0; block < spec.CoeffBlocks; block++ {
			for a := 0; a < spec.Archetypes; a++ {
				if set.OffIndex(block, a) != lay.offAt(block, a) {
					t.Errorf("%s: off index mismatch at block %d archetype %d", spec.Name, block, a)
				}
				if set.DefIndex(block, a) != lay.defAt(block, a) {
					t.Errorf("%s: def index mismatch at block %d archetype %d", spec.Name, block, a)
				}
			}
		}
		if set.SigmaIndex() != lay.sigmaAt() {
			t.Errorf("%s: sigma index mismatch", spec.Name)
		}
	}
}

func TestEvaluatorsShareReadOnlyPosterior(t *testing.T) {
	ds := testDataset(30)
	p, err := newPosterior(ds, modelspec.Candidates(ds)[1], defaultPriors(), Gaussian, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rng := rand.New(rand.NewSource(3))
	theta := p.initialPoint(rng)

	a := newEvaluator(p)
	b := newEvaluator(p)
	ga := make([]float64, p.dim())
	gb := make([]float64, p.dim())

	lpA := a.logDensity(theta, ga)
	lpB := b.logDensity(theta, gb)
	if lpA != lpB {
		t.Errorf("evaluators disagree: %g vs %g", lpA, lpB)
	}
	for i := range ga {
		if ga[i] != gb[i] {
			t.Errorf("gradients disagree at %d: %g vs %g", i, ga[i], gb[i])
		}
	}
}
