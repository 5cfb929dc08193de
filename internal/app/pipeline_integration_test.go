package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	pipeline "github.com/halfcourt/matchfit/internal/app"
	"github.com/halfcourt/matchfit/internal/adapters/repository"
	"github.com/halfcourt/matchfit/internal/domain/modelspec"
	"github.com/halfcourt/matchfit/internal/publish"
	"github.com/halfcourt/matchfit/internal/sampler"
	"github.com/halfcourt/matchfit/internal/synth"
	"github.com/halfcourt/matchfit/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

// findRow pulls one coefficient row by role and archetype.
func findRow(table *publish.CoefficientTable, role string, archetype int) (publish.CoefficientRow, bool) {
	for _, r := range table.Rows {
		if r.Role == role && r.Archetype == archetype {
			return r, true
		}
	}
	return publish.CoefficientRow{}, false
}

// TestPipelineIntegration runs the whole pipeline against a generated log
// with known effects and checks that the published estimates recover them.
func TestPipelineIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping sampling run in short mode")
	}

	Convey("Given a generated log with known archetype effects", t, func() {
		betaOff := []float64{0.5, 0.2, 0.1}
		betaDef := []float64{0.3, 0.1, 0.05}
		gen, err := synth.New(synth.Config{
			Seed:                42,
			Games:               25,
			PossessionsPerGame:  40,
			Archetypes:          3,
			Superclusters:       2,
			PlayersPerArchetype: 8,
			AssignedShare:       0.9,
			BetaOff:             betaOff,
			BetaDef:             betaDef,
			Sigma:               1.0,
		})
		So(err, ShouldBeNil)
		out, err := gen.Generate(context.Background())
		So(err, ShouldBeNil)
		So(len(out.Possessions), ShouldEqual, 1000)

		dir := t.TempDir()
		sink, err := repository.NewFileSink(filepath.Join(dir, "it-run"))
		So(err, ShouldBeNil)
		ledger, err := repository.OpenPublishDB(filepath.Join(dir, "matchfit.db"))
		So(err, ShouldBeNil)
		defer func() { _ = ledger.Close() }()

		p := pipeline.New(
			pipeline.WithLoader(&memLoader{out: out}),
			pipeline.WithSink(sink),
			pipeline.WithLedger(ledger),
			pipeline.WithRunID("it-run"),
			pipeline.WithWalltime(10*time.Minute),
			pipeline.WithSamplerOptions(
				sampler.WithChains(2),
				sampler.WithWarmup(400),
				sampler.WithKeepDraws(400),
				sampler.WithSeed(7),
			),
		)

		Convey("When the pipeline runs end to end", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			res, err := p.Run(ctx)

			Convey("Then the run should be accepted", func() {
				So(err, ShouldBeNil)
				So(res, ShouldNotBeNil)
				So(res.Verdict, ShouldEqual, publish.VerdictAccepted)
				So(res.Report.Audit.Complete, ShouldBeTrue)
			})

			Convey("And the shared-coefficient parameterization should be chosen", func() {
				So(err, ShouldBeNil)
				// 1000 rows support matchup intercepts but not per-matchup
				// coefficient blocks at the default thresholds.
				So(res.Report.Spec, ShouldEqual, "matchup-intercept")
				So(len(res.Table.Rows), ShouldEqual, 6)
			})

			Convey("And the estimates should recover the true effects", func() {
				So(err, ShouldBeNil)
				for a := 0; a < 3; a++ {
					off, ok := findRow(res.Table, publish.RoleOffense, a)
					So(ok, ShouldBeTrue)
					So(off.Scope, ShouldEqual, publish.ScopeGlobal)
					So(off.Estimate, ShouldAlmostEqual, betaOff[a], 0.2)
					So(off.Lower, ShouldBeLessThan, off.Upper)
					So(off.Trusted, ShouldBeTrue)

					def, ok := findRow(res.Table, publish.RoleDefense, a)
					So(ok, ShouldBeTrue)
					So(def.Estimate, ShouldAlmostEqual, betaDef[a], 0.2)
				}
			})

			Convey("And the run directory should hold every artifact", func() {
				So(err, ShouldBeNil)
				for _, name := range []string{
					"chain-00.json",
					"chain-01.json",
					repository.CoefficientsFile,
					repository.ReportFile,
				} {
					_, statErr := os.Stat(filepath.Join(sink.Dir(), name))
					So(statErr, ShouldBeNil)
				}
			})

			Convey("And the ledger should resolve the accepted run", func() {
				So(err, ShouldBeNil)
				id, lerr := ledger.LastAcceptedRunID(context.Background())
				So(lerr, ShouldBeNil)
				So(id, ShouldEqual, "it-run")
			})
		})

		Convey("When the selector demands more observations per parameter", func() {
			pooledSink, err := repository.NewFileSink(filepath.Join(dir, "it-run-pooled"))
			So(err, ShouldBeNil)

			// At 100 observations per parameter the matchup-intercept
			// candidate drops out and the pooled fit is the only one left.
			pooled := pipeline.New(
				pipeline.WithLoader(&memLoader{out: out}),
				pipeline.WithSink(pooledSink),
				pipeline.WithRunID("it-run-pooled"),
				pipeline.WithWalltime(10*time.Minute),
				pipeline.WithSelector(modelspec.New(modelspec.WithMinObsPerParam(100))),
				pipeline.WithSamplerOptions(
					sampler.WithChains(2),
					sampler.WithWarmup(400),
					sampler.WithKeepDraws(400),
					sampler.WithSeed(11),
				),
			)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			res, err := pooled.Run(ctx)

			Convey("Then the pooled fit recovers every coefficient", func() {
				So(err, ShouldBeNil)
				So(res.Verdict, ShouldEqual, publish.VerdictAccepted)
				So(res.Report.Spec, ShouldEqual, "global")
				So(len(res.Table.Rows), ShouldEqual, 6)

				for a := 0; a < 3; a++ {
					off, ok := findRow(res.Table, publish.RoleOffense, a)
					So(ok, ShouldBeTrue)
					So(off.Scope, ShouldEqual, publish.ScopeGlobal)
					So(off.Estimate, ShouldAlmostEqual, betaOff[a], 0.2)
					So(off.Upper-off.Lower, ShouldBeBetween, 0, 0.5)
					So(off.Trusted, ShouldBeTrue)

					def, ok := findRow(res.Table, publish.RoleDefense, a)
					So(ok, ShouldBeTrue)
					So(def.Estimate, ShouldAlmostEqual, betaDef[a], 0.2)
					So(def.Trusted, ShouldBeTrue)
				}
			})
		})
	})
}
