// Package repository loads model inputs and persists run artifacts.
package repository

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/halfcourt/matchfit/internal/publish"
	"github.com/halfcourt/matchfit/internal/sampler"
	"github.com/halfcourt/matchfit/pkg/logger"
)

// Artifact file names inside a run directory.
const (
	CoefficientsFile = "coefficients.csv"
	ReportFile       = "report.json"
)

// coefficientColumns is the coefficients.csv header.
var coefficientColumns = []string{
	"scope", "matchup", "archetype", "role", "estimate", "lower", "upper", "trusted",
}

// FileSink writes run artifacts into one per-run directory: chain draws as
// they arrive, then the coefficient table and report at publish time.
type FileSink struct {
	dir string
	log logger.Logger
}

// NewFileSink creates the run directory and a Sink writing into it.
func NewFileSink(dir string) (*FileSink, error) {
	if dir == "" {
		return nil, ErrEmptyPath
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run dir %s: %w", dir, err)
	}
	return &FileSink{dir: dir, log: logger.Get().Named("repository")}, nil
}

// Dir returns the run directory.
func (s *FileSink) Dir() string { return s.dir }

// chainFile is the on-disk form of one chain.
type chainFile struct {
	ID              int         `json:"id"`
	StepSize        float64     `json:"step_size"`
	AcceptRate      float64     `json:"accept_rate"`
	Divergences     int         `json:"divergences"`
	LeapfrogSteps   int         `json:"leapfrog_steps"`
	Completed       bool        `json:"completed"`
	DurationSeconds float64     `json:"duration_seconds"`
	Draws           [][]float64 `json:"draws"`
}

// PersistChain writes one chain's draws as chain-XX.json.
func (s *FileSink) PersistChain(ctx context.Context, chain *sampler.ChainResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := filepath.Join(s.dir, fmt.Sprintf("chain-%02d.json", chain.ID))
	payload := chainFile{
		ID:              chain.ID,
		StepSize:        chain.StepSize,
		AcceptRate:      chain.AcceptRate,
		Divergences:     chain.Divergences,
		LeapfrogSteps:   chain.LeapfrogSteps,
		Completed:       chain.Completed,
		DurationSeconds: chain.Duration.Seconds(),
		Draws:           chain.Draws,
	}
	if err := s.writeJSON(path, payload); err != nil {
		return err
	}

	s.log.Info(ctx, "chain persisted",
		logger.Int("chain", chain.ID),
		logger.Int("draws", len(chain.Draws)),
		logger.String("path", path),
	)
	return nil
}

// WriteCoefficients writes the coefficient table as coefficients.csv.
func (s *FileSink) WriteCoefficients(ctx context.Context, table *publish.CoefficientTable) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if table == nil {
		return fmt.Errorf("write coefficients: nil table")
	}

	path := filepath.Join(s.dir, CoefficientsFile)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(coefficientColumns); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	for i := range table.Rows {
		r := &table.Rows[i]
		rec := []string{
			r.Scope,
			strconv.Itoa(r.Matchup),
			strconv.Itoa(r.Archetype),
			r.Role,
			strconv.FormatFloat(r.Estimate, 'g', -1, 64),
			strconv.FormatFloat(r.Lower, 'g', -1, 64),
			strconv.FormatFloat(r.Upper, 'g', -1, 64),
			strconv.FormatBool(r.Trusted),
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	s.log.Info(ctx, "coefficients written",
		logger.String("run_id", table.RunID),
		logger.Int("rows", len(table.Rows)),
		logger.String("path", path),
	)
	return nil
}

// WriteReport writes the run report as report.json.
func (s *FileSink) WriteReport(ctx context.Context, report *publish.RunReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if report == nil {
		return fmt.Errorf("write report: nil report")
	}

	path := filepath.Join(s.dir, ReportFile)
	if err := s.writeJSON(path, report); err != nil {
		return err
	}

	s.log.Info(ctx, "report written",
		logger.String("run_id", report.RunID),
		logger.String("verdict", report.Verdict),
		logger.String("path", path),
	)
	return nil
}

func (s *FileSink) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
