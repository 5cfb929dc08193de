// Package config defines pipeline configuration structures and loading hooks.
//
// Conventions:
// - Keep fields unexported where possible and use functional options.
// - Provide New(...Option) initializer to build a Config with defaults.
// - All future functions must accept context.Context as the first parameter.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"context"
	"runtime"
	"time"
)

// Input driver names accepted by InputDriver.
const (
	DriverCSV    = "csv"
	DriverSQLite = "sqlite"
)

// Likelihood family names accepted by Likelihood.
const (
	LikelihoodGaussian = "gaussian"
	LikelihoodStudentT = "student_t"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// InputDriver selects the input source: csv or sqlite.
	InputDriver string `koanf:"input_driver"`

	// PossessionsPath, ArchetypesPath, SuperclustersPath locate the CSV
	// inputs when InputDriver is csv.
	PossessionsPath   string `koanf:"possessions_path"`
	ArchetypesPath    string `koanf:"archetypes_path"`
	SuperclustersPath string `koanf:"superclusters_path"`

	// InputDB locates the SQLite database when InputDriver is sqlite.
	InputDB string `koanf:"input_db"`

	// Season selects the archetype-table season slice to resolve against.
	Season string `koanf:"season"`

	// OutputDir receives per-run artifacts (coefficients.csv, report.json,
	// chain draw files) under a run-id subdirectory.
	OutputDir string `koanf:"output_dir"`

	// PublishDB optionally appends accepted and rejected runs to a SQLite
	// ledger. Empty disables the ledger.
	PublishDB string `koanf:"publish_db"`

	// Superclusters is S, the number of lineup style clusters per side.
	Superclusters int `koanf:"superclusters"`

	// MinObsPerParam rejects candidate parameterizations whose
	// observations-per-parameter ratio falls below it. SafeObsPerParam is
	// the ratio regarded as comfortable; it only affects reporting.
	MinObsPerParam  float64 `koanf:"min_obs_per_param"`
	SafeObsPerParam float64 `koanf:"safe_obs_per_param"`

	// Chains, WarmupDraws, KeepDraws size the posterior sampling run.
	Chains      int `koanf:"chains"`
	WarmupDraws int `koanf:"warmup_draws"`
	KeepDraws   int `koanf:"keep_draws"`

	// Seed is the base RNG seed; chain i derives seed+i.
	Seed int64 `koanf:"seed"`

	// MaxLeapfrog caps the leapfrog steps per trajectory; TargetAccept is
	// the dual-averaging acceptance target; MaxEnergyError marks a
	// trajectory divergent when exceeded.
	MaxLeapfrog    int     `koanf:"max_leapfrog"`
	TargetAccept   float64 `koanf:"target_accept"`
	MaxEnergyError float64 `koanf:"max_energy_error"`

	// Prior scales: intercept Normal(0, InterceptScale), coefficients
	// HalfNormal(CoefficientScale), residual sigma HalfNormal(NoiseScale).
	InterceptScale   float64 `koanf:"intercept_scale"`
	CoefficientScale float64 `koanf:"coefficient_scale"`
	NoiseScale       float64 `koanf:"noise_scale"`

	// Likelihood selects the outcome family: gaussian or student_t.
	// StudentTDoF applies only to student_t.
	Likelihood  string  `koanf:"likelihood"`
	StudentTDoF float64 `koanf:"student_t_dof"`

	// CredibleMass sets the posterior interval mass for published
	// coefficients, e.g. 0.95.
	CredibleMass float64 `koanf:"credible_mass"`

	// WalltimeMinutes bounds the posterior sampling stage; 0 means no
	// budget. Chains cut off by the budget surface as an incomplete run.
	WalltimeMinutes int `koanf:"walltime_minutes"`

	// AggregatorWorkers sets the fan-out width for feature aggregation.
	AggregatorWorkers int `koanf:"aggregator_workers"`

	// Convergence acceptance thresholds.
	MaxRHat           float64 `koanf:"max_rhat"`
	MinESS            float64 `koanf:"min_ess"`
	MaxDivergenceRate float64 `koanf:"max_divergence_rate"`

	// MonitorAddr exposes /metrics, /healthz and /progress when non-empty,
	// e.g. ":9090". Empty disables the monitor server.
	MonitorAddr string `koanf:"monitor_addr"`
}

// New creates a Config using provided options. Context is accepted first to
// satisfy the project-wide convention; it is reserved for future use (e.g.,
// loading from env/files) and is currently unused.
func New(_ context.Context) *Config {
	c := &Config{
		LogLevel:          "info",
		InputDriver:       DriverCSV,
		PossessionsPath:   "data/possessions.csv",
		ArchetypesPath:    "data/archetypes.csv",
		SuperclustersPath: "data/superclusters.csv",
		Season:            "",
		OutputDir:         "out",
		Superclusters:     5,
		MinObsPerParam:    50,
		SafeObsPerParam:   150,
		Chains:            4,
		WarmupDraws:       1000,
		KeepDraws:         1000,
		Seed:              1,
		MaxLeapfrog:       64,
		TargetAccept:      0.8,
		MaxEnergyError:    1000,
		InterceptScale:    2.0,
		CoefficientScale:  1.0,
		NoiseScale:        2.0,
		Likelihood:        LikelihoodGaussian,
		StudentTDoF:       7,
		CredibleMass:      0.95,
		WalltimeMinutes:   0,
		AggregatorWorkers: runtime.NumCPU(),
		MaxRHat:           1.01,
		MinESS:            400,
		MaxDivergenceRate: 0.01,
	}
	return c
}

// WalltimeBudget returns the configured wall-clock budget, or 0 when the run
// is unbounded.
func (c *Config) WalltimeBudget() time.Duration {
	if c.WalltimeMinutes <= 0 {
		return 0
	}
	return time.Duration(c.WalltimeMinutes) * time.Minute
}
