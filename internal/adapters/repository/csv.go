// Package repository loads model inputs and persists run artifacts.
package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/halfcourt/matchfit/internal/domain/archetype"
	"github.com/halfcourt/matchfit/internal/domain/dedupe"
	"github.com/halfcourt/matchfit/internal/domain/matchup"
	"github.com/halfcourt/matchfit/internal/domain/model"
	"github.com/halfcourt/matchfit/pkg/logger"
	"github.com/halfcourt/matchfit/pkg/metrics"
)

// Input column orders, shared by the CSV loader and the dataset generator.
// Every input file starts with a header row naming exactly these columns.
var (
	PossessionColumns = []string{
		"game_id", "possession_id",
		"off1", "off2", "off3", "off4", "off5",
		"def1", "def2", "def3", "def4", "def5",
		"outcome",
	}
	ArchetypeColumns    = []string{"player_id", "season", "archetype_id", "off_skill", "def_skill"}
	SuperclusterColumns = []string{"lineup_key", "supercluster_id"}
)

// cancelCheckStride bounds how many rows are scanned between context checks.
const cancelCheckStride = 1024

// CSVLoader reads the three input tables from CSV files. Loading is strict:
// a row that cannot be parsed fails the load, while a duplicate possession
// id is skipped and counted. Non-finite outcomes parse fine here and are
// rejected downstream during aggregation.
type CSVLoader struct {
	possessionsPath   string
	archetypesPath    string
	superclustersPath string
	expectRows        int
	log               logger.Logger
}

// NewCSVLoader creates a Loader over three CSV file paths.
func NewCSVLoader(possessions, archetypes, superclusters string, opts ...Option) (*CSVLoader, error) {
	if possessions == "" || archetypes == "" || superclusters == "" {
		return nil, ErrEmptyPath
	}

	l := &CSVLoader{
		possessionsPath:   possessions,
		archetypesPath:    archetypes,
		superclustersPath: superclusters,
		log:               logger.Get().Named("repository"),
	}

	// Apply all options
	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// Possessions reads the possession log. The first occurrence of each
// (game_id, possession_id) wins; later duplicates are dropped and counted.
func (l *CSVLoader) Possessions(ctx context.Context) ([]model.Possession, int, error) {
	var dedupeOpts []dedupe.Option
	if l.expectRows > 0 {
		dedupeOpts = append(dedupeOpts, dedupe.WithSizeHint(l.expectRows))
	}
	seen := dedupe.NewInMemoryDeduper(dedupeOpts...)

	rows := make([]model.Possession, 0, l.expectRows)
	duplicates := 0

	err := readTable(ctx, l.possessionsPath, PossessionColumns, func(line int, rec []string) error {
		outcome, err := strconv.ParseFloat(rec[12], 64)
		if err != nil {
			return fmt.Errorf("%w: %s line %d: outcome %q", ErrBadRecord, l.possessionsPath, line, rec[12])
		}

		p := model.Possession{GameID: rec[0], PossessionID: rec[1], Outcome: outcome}
		copy(p.Offense[:], rec[2:7])
		copy(p.Defense[:], rec[7:12])

		if seen.SeenAndRecord(p.GameID + ":" + p.PossessionID) {
			duplicates++
			return nil
		}
		rows = append(rows, p)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	metrics.RecordPossessionsLoaded(len(rows))
	l.log.Info(ctx, "possessions loaded",
		logger.String("path", l.possessionsPath),
		logger.Int("rows", len(rows)),
		logger.Int("duplicates", duplicates),
	)
	return rows, duplicates, nil
}

// Archetypes reads the player archetype table. Density of the id space is
// checked by the archetype resolver, not here.
func (l *CSVLoader) Archetypes(ctx context.Context) ([]archetype.Entry, error) {
	var entries []archetype.Entry

	err := readTable(ctx, l.archetypesPath, ArchetypeColumns, func(line int, rec []string) error {
		id, err := strconv.Atoi(rec[2])
		if err != nil {
			return fmt.Errorf("%w: %s line %d: archetype_id %q", ErrBadRecord, l.archetypesPath, line, rec[2])
		}
		off, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return fmt.Errorf("%w: %s line %d: off_skill %q", ErrBadRecord, l.archetypesPath, line, rec[3])
		}
		def, err := strconv.ParseFloat(rec[4], 64)
		if err != nil {
			return fmt.Errorf("%w: %s line %d: def_skill %q", ErrBadRecord, l.archetypesPath, line, rec[4])
		}

		entries = append(entries, archetype.Entry{
			PlayerID:  rec[0],
			Season:    rec[1],
			Archetype: model.ArchetypeID(id),
			OffSkill:  off,
			DefSkill:  def,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info(ctx, "archetypes loaded",
		logger.String("path", l.archetypesPath),
		logger.Int("rows", len(entries)),
	)
	return entries, nil
}

// Superclusters reads the lineup style assignments.
func (l *CSVLoader) Superclusters(ctx context.Context) ([]matchup.Assignment, error) {
	var assignments []matchup.Assignment

	err := readTable(ctx, l.superclustersPath, SuperclusterColumns, func(line int, rec []string) error {
		lineup, err := ParseLineupKey(rec[0])
		if err != nil {
			return fmt.Errorf("%s line %d: %w", l.superclustersPath, line, err)
		}
		id, err := strconv.Atoi(rec[1])
		if err != nil {
			return fmt.Errorf("%w: %s line %d: supercluster_id %q", ErrBadRecord, l.superclustersPath, line, rec[1])
		}

		assignments = append(assignments, matchup.Assignment{
			Lineup:       lineup,
			Supercluster: matchup.SuperclusterID(id),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info(ctx, "superclusters loaded",
		logger.String("path", l.superclustersPath),
		logger.Int("rows", len(assignments)),
	)
	return assignments, nil
}

// readTable streams one CSV file through a per-row callback. The header row
// is mandatory and must name the expected columns in order.
func readTable(ctx context.Context, path string, columns []string, row func(line int, rec []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(columns)
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMissingHeader, path, err)
	}
	if !headerMatches(header, columns) {
		return fmt.Errorf("%w: %s: got %v, want %v", ErrMissingHeader, path, header, columns)
	}

	for line := 2; ; line++ {
		if line%cancelCheckStride == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %s line %d: %v", ErrBadRecord, path, line, err)
		}
		if err := row(line, rec); err != nil {
			return err
		}
	}
}

// headerMatches compares a header row against the expected columns,
// ignoring case and surrounding whitespace.
func headerMatches(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if !strings.EqualFold(strings.TrimSpace(got[i]), want[i]) {
			return false
		}
	}
	return true
}
