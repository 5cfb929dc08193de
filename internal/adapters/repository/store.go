// Package repository loads model inputs and persists run artifacts.
package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/halfcourt/matchfit/internal/domain/archetype"
	"github.com/halfcourt/matchfit/internal/domain/matchup"
	"github.com/halfcourt/matchfit/internal/domain/model"
	"github.com/halfcourt/matchfit/internal/publish"
	"github.com/halfcourt/matchfit/internal/sampler"
)

// Loader reads the three input tables. Implementations guard against
// duplicate possession ids and report how many they skipped; all other
// validation happens downstream.
type Loader interface {
	// Possessions returns the possession log and the count of duplicate
	// ids that were dropped.
	Possessions(ctx context.Context) ([]model.Possession, int, error)

	// Archetypes returns the player archetype table rows.
	Archetypes(ctx context.Context) ([]archetype.Entry, error)

	// Superclusters returns the lineup style assignments.
	Superclusters(ctx context.Context) ([]matchup.Assignment, error)
}

// Sink persists the artifacts of one run. Implementations must tolerate
// being called for rejected runs: publication is append-only and keyed by
// run id, so a rejected run never disturbs an earlier accepted one.
type Sink interface {
	sampler.ChainSink

	// WriteCoefficients persists the coefficient table.
	WriteCoefficients(ctx context.Context, table *publish.CoefficientTable) error

	// WriteReport persists the run report.
	WriteReport(ctx context.Context, report *publish.RunReport) error
}

// Ledger appends finished runs to a durable run history. Accepted and
// rejected runs both land in the ledger; readers filter on the accepted
// flag, so the last accepted run survives any number of rejected ones.
type Ledger interface {
	WriteRun(ctx context.Context, table *publish.CoefficientTable, report *publish.RunReport) error
}

// LineupKey renders a lineup as its canonical wire key: the five archetype
// ids sorted ascending and joined by dashes.
func LineupKey(l model.Lineup) string {
	parts := make([]string, model.LineupSize)
	for i, id := range l {
		parts[i] = strconv.Itoa(int(id))
	}
	return strings.Join(parts, "-")
}

// ParseLineupKey parses the dash-joined form back into a lineup.
func ParseLineupKey(key string) (model.Lineup, error) {
	parts := strings.Split(key, "-")
	if len(parts) != model.LineupSize {
		return model.Lineup{}, fmt.Errorf("%w: lineup key %q needs %d ids", ErrBadRecord, key, model.LineupSize)
	}
	var ids [model.LineupSize]model.ArchetypeID
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return model.Lineup{}, fmt.Errorf("%w: lineup key %q: %v", ErrBadRecord, key, err)
		}
		ids[i] = model.ArchetypeID(n)
	}
	return model.NewLineup(ids), nil
}
