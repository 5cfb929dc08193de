package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New(ctx))
//  2. file (YAML) if MATCHFIT_CONFIG is set
//  3. env (prefix MATCHFIT_)
func Load(ctx context.Context) (*Config, error) {
	// Start with defaults
	base := New(ctx)

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("MATCHFIT_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: MATCHFIT_CHAINS, MATCHFIT_OUTPUT_DIR, ...
	// Map env keys like MATCHFIT_OUTPUT_DIR -> output_dir (flat keys)
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("MATCHFIT_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "matchfit_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.InputDriver {
	case DriverCSV:
		if c.PossessionsPath == "" || c.ArchetypesPath == "" || c.SuperclustersPath == "" {
			return fmt.Errorf("%w: csv driver requires possessions_path, archetypes_path and superclusters_path", ErrInvalidConfig)
		}
	case DriverSQLite:
		if c.InputDB == "" {
			return fmt.Errorf("%w: sqlite driver requires input_db", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown input_driver %q", ErrInvalidConfig, c.InputDriver)
	}

	switch c.Likelihood {
	case LikelihoodGaussian:
	case LikelihoodStudentT:
		if c.StudentTDoF <= 0 {
			return fmt.Errorf("%w: student_t_dof must be positive, got %v", ErrInvalidConfig, c.StudentTDoF)
		}
	default:
		return fmt.Errorf("%w: unknown likelihood %q", ErrInvalidConfig, c.Likelihood)
	}

	if c.OutputDir == "" {
		return fmt.Errorf("%w: output_dir must not be empty", ErrInvalidConfig)
	}
	if c.Superclusters < 1 {
		return fmt.Errorf("%w: superclusters must be at least 1, got %d", ErrInvalidConfig, c.Superclusters)
	}
	if c.MinObsPerParam <= 0 {
		return fmt.Errorf("%w: min_obs_per_param must be positive, got %v", ErrInvalidConfig, c.MinObsPerParam)
	}
	if c.Chains < 1 {
		return fmt.Errorf("%w: chains must be at least 1, got %d", ErrInvalidConfig, c.Chains)
	}
	if c.WarmupDraws < 0 {
		return fmt.Errorf("%w: warmup_draws must not be negative, got %d", ErrInvalidConfig, c.WarmupDraws)
	}
	if c.KeepDraws < 1 {
		return fmt.Errorf("%w: keep_draws must be at least 1, got %d", ErrInvalidConfig, c.KeepDraws)
	}
	if c.MaxLeapfrog < 1 {
		return fmt.Errorf("%w: max_leapfrog must be at least 1, got %d", ErrInvalidConfig, c.MaxLeapfrog)
	}
	if c.TargetAccept <= 0 || c.TargetAccept >= 1 {
		return fmt.Errorf("%w: target_accept must be in (0, 1), got %v", ErrInvalidConfig, c.TargetAccept)
	}
	if c.MaxEnergyError <= 0 {
		return fmt.Errorf("%w: max_energy_error must be positive, got %v", ErrInvalidConfig, c.MaxEnergyError)
	}
	if c.InterceptScale <= 0 || c.CoefficientScale <= 0 || c.NoiseScale <= 0 {
		return fmt.Errorf("%w: prior scales must be positive", ErrInvalidConfig)
	}
	if c.CredibleMass <= 0 || c.CredibleMass >= 1 {
		return fmt.Errorf("%w: credible_mass must be in (0, 1), got %v", ErrInvalidConfig, c.CredibleMass)
	}
	if c.AggregatorWorkers < 1 {
		return fmt.Errorf("%w: aggregator_workers must be at least 1, got %d", ErrInvalidConfig, c.AggregatorWorkers)
	}
	if c.MaxRHat <= 1 {
		return fmt.Errorf("%w: max_rhat must exceed 1, got %v", ErrInvalidConfig, c.MaxRHat)
	}
	if c.MinESS <= 0 {
		return fmt.Errorf("%w: min_ess must be positive, got %v", ErrInvalidConfig, c.MinESS)
	}
	if c.MaxDivergenceRate < 0 || c.MaxDivergenceRate > 1 {
		return fmt.Errorf("%w: max_divergence_rate must be in [0, 1], got %v", ErrInvalidConfig, c.MaxDivergenceRate)
	}
	return nil
}
