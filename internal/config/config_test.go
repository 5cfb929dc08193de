package config_test

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/halfcourt/matchfit/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.LogLevel, convey.ShouldEqual, "info")
			convey.So(cfg.InputDriver, convey.ShouldEqual, config.DriverCSV)
			convey.So(cfg.OutputDir, convey.ShouldEqual, "out")
			convey.So(cfg.Superclusters, convey.ShouldEqual, 5)
			convey.So(cfg.MinObsPerParam, convey.ShouldEqual, 50)
			convey.So(cfg.SafeObsPerParam, convey.ShouldEqual, 150)
			convey.So(cfg.Chains, convey.ShouldEqual, 4)
			convey.So(cfg.WarmupDraws, convey.ShouldEqual, 1000)
			convey.So(cfg.KeepDraws, convey.ShouldEqual, 1000)
			convey.So(cfg.TargetAccept, convey.ShouldEqual, 0.8)
			convey.So(cfg.MaxEnergyError, convey.ShouldEqual, 1000)
			convey.So(cfg.Likelihood, convey.ShouldEqual, config.LikelihoodGaussian)
			convey.So(cfg.CredibleMass, convey.ShouldEqual, 0.95)
			convey.So(cfg.AggregatorWorkers, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.MaxRHat, convey.ShouldEqual, 1.01)
			convey.So(cfg.MinESS, convey.ShouldEqual, 400)
			convey.So(cfg.MaxDivergenceRate, convey.ShouldEqual, 0.01)
		})

		convey.Convey("Then the defaults should pass validation", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_WalltimeBudget(t *testing.T) {
	convey.Convey("Given walltime configuration", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("When no budget is configured", func() {
			cfg.WalltimeMinutes = 0

			convey.Convey("Then the budget is zero", func() {
				convey.So(cfg.WalltimeBudget(), convey.ShouldEqual, time.Duration(0))
			})
		})

		convey.Convey("When a budget is configured", func() {
			cfg.WalltimeMinutes = 90

			convey.Convey("Then the budget converts to a duration", func() {
				convey.So(cfg.WalltimeBudget(), convey.ShouldEqual, 90*time.Minute)
			})
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given config validation", t, func() {
		base := func() *config.Config { return config.New(context.Background()) }

		convey.Convey("When the csv driver is missing a path", func() {
			cfg := base()
			cfg.ArchetypesPath = ""

			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When the sqlite driver is missing its database", func() {
			cfg := base()
			cfg.InputDriver = config.DriverSQLite
			cfg.InputDB = ""

			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When the sqlite driver has its database", func() {
			cfg := base()
			cfg.InputDriver = config.DriverSQLite
			cfg.InputDB = "input.db"

			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("When the input driver is unknown", func() {
			cfg := base()
			cfg.InputDriver = "postgres"

			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When the likelihood is unknown", func() {
			cfg := base()
			cfg.Likelihood = "cauchy"

			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When student_t has a non-positive dof", func() {
			cfg := base()
			cfg.Likelihood = config.LikelihoodStudentT
			cfg.StudentTDoF = 0

			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When chains is zero", func() {
			cfg := base()
			cfg.Chains = 0

			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When keep_draws is zero", func() {
			cfg := base()
			cfg.KeepDraws = 0

			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When target_accept is out of range", func() {
			cfg := base()
			cfg.TargetAccept = 1.2

			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When a prior scale is non-positive", func() {
			cfg := base()
			cfg.CoefficientScale = 0

			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When credible_mass is out of range", func() {
			cfg := base()
			cfg.CredibleMass = 1

			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When max_rhat does not exceed 1", func() {
			cfg := base()
			cfg.MaxRHat = 1.0

			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When max_divergence_rate is out of range", func() {
			cfg := base()
			cfg.MaxDivergenceRate = 1.5

			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})
	})
}
