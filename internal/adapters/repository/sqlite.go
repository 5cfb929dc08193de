// Package repository loads model inputs and persists run artifacts.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite" // registers the "sqlite" driver

	"github.com/halfcourt/matchfit/internal/domain/archetype"
	"github.com/halfcourt/matchfit/internal/domain/dedupe"
	"github.com/halfcourt/matchfit/internal/domain/matchup"
	"github.com/halfcourt/matchfit/internal/domain/model"
	"github.com/halfcourt/matchfit/internal/publish"
	"github.com/halfcourt/matchfit/pkg/logger"
	"github.com/halfcourt/matchfit/pkg/metrics"
)

// SQLiteLoader reads the three input tables from a SQLite snapshot. Table
// names and columns mirror the CSV layout: possessions, player_archetypes,
// lineup_superclusters.
type SQLiteLoader struct {
	db  *sql.DB
	log logger.Logger
}

// OpenSQLiteLoader opens a read-only view over a snapshot database.
func OpenSQLiteLoader(path string) (*SQLiteLoader, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return &SQLiteLoader{db: db, log: logger.Get().Named("repository")}, nil
}

// Close releases the database handle.
func (l *SQLiteLoader) Close() error {
	if l.db == nil {
		return ErrNotOpen
	}
	err := l.db.Close()
	l.db = nil
	return err
}

// Possessions reads the possession log. The first occurrence of each
// (game_id, possession_id) wins; later duplicates are dropped and counted.
func (l *SQLiteLoader) Possessions(ctx context.Context) ([]model.Possession, int, error) {
	if l.db == nil {
		return nil, 0, ErrNotOpen
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT game_id, possession_id,
		       off1, off2, off3, off4, off5,
		       def1, def2, def3, def4, def5,
		       outcome
		FROM possessions`)
	if err != nil {
		return nil, 0, fmt.Errorf("query possessions: %w", err)
	}
	defer rows.Close()

	seen := dedupe.NewInMemoryDeduper()
	var out []model.Possession
	duplicates := 0

	for rows.Next() {
		var p model.Possession
		if err := rows.Scan(
			&p.GameID, &p.PossessionID,
			&p.Offense[0], &p.Offense[1], &p.Offense[2], &p.Offense[3], &p.Offense[4],
			&p.Defense[0], &p.Defense[1], &p.Defense[2], &p.Defense[3], &p.Defense[4],
			&p.Outcome,
		); err != nil {
			return nil, 0, fmt.Errorf("%w: possessions: %v", ErrBadRecord, err)
		}

		if seen.SeenAndRecord(p.GameID + ":" + p.PossessionID) {
			duplicates++
			continue
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan possessions: %w", err)
	}

	metrics.RecordPossessionsLoaded(len(out))
	l.log.Info(ctx, "possessions loaded",
		logger.Int("rows", len(out)),
		logger.Int("duplicates", duplicates),
	)
	return out, duplicates, nil
}

// Archetypes reads the player archetype table.
func (l *SQLiteLoader) Archetypes(ctx context.Context) ([]archetype.Entry, error) {
	if l.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT player_id, season, archetype_id, off_skill, def_skill
		FROM player_archetypes`)
	if err != nil {
		return nil, fmt.Errorf("query player_archetypes: %w", err)
	}
	defer rows.Close()

	var entries []archetype.Entry
	for rows.Next() {
		var e archetype.Entry
		var id int
		if err := rows.Scan(&e.PlayerID, &e.Season, &id, &e.OffSkill, &e.DefSkill); err != nil {
			return nil, fmt.Errorf("%w: player_archetypes: %v", ErrBadRecord, err)
		}
		e.Archetype = model.ArchetypeID(id)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan player_archetypes: %w", err)
	}

	l.log.Info(ctx, "archetypes loaded", logger.Int("rows", len(entries)))
	return entries, nil
}

// Superclusters reads the lineup style assignments.
func (l *SQLiteLoader) Superclusters(ctx context.Context) ([]matchup.Assignment, error) {
	if l.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT lineup_key, supercluster_id
		FROM lineup_superclusters`)
	if err != nil {
		return nil, fmt.Errorf("query lineup_superclusters: %w", err)
	}
	defer rows.Close()

	var assignments []matchup.Assignment
	for rows.Next() {
		var key string
		var id int
		if err := rows.Scan(&key, &id); err != nil {
			return nil, fmt.Errorf("%w: lineup_superclusters: %v", ErrBadRecord, err)
		}
		lineup, err := ParseLineupKey(key)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, matchup.Assignment{
			Lineup:       lineup,
			Supercluster: matchup.SuperclusterID(id),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan lineup_superclusters: %w", err)
	}

	l.log.Info(ctx, "superclusters loaded", logger.Int("rows", len(assignments)))
	return assignments, nil
}

// PublishDB is an append-only SQLite ledger of runs. Every run lands here,
// accepted or not; nothing is ever updated or deleted, so the newest
// accepted row always reflects the last trusted fit.
type PublishDB struct {
	db  *sql.DB
	log logger.Logger
}

// publishSchema creates the ledger tables on first open.
const publishSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id          TEXT PRIMARY KEY,
	created_at      TEXT NOT NULL,
	spec            TEXT NOT NULL,
	params          INTEGER NOT NULL,
	verdict         TEXT NOT NULL,
	accepted        INTEGER NOT NULL,
	max_rhat        REAL,
	min_ess         REAL,
	divergence_rate REAL,
	report_json     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS coefficients (
	run_id    TEXT NOT NULL,
	scope     TEXT NOT NULL,
	matchup   INTEGER NOT NULL,
	archetype INTEGER NOT NULL,
	role      TEXT NOT NULL,
	estimate  REAL NOT NULL,
	lower     REAL NOT NULL,
	upper     REAL NOT NULL,
	trusted   INTEGER NOT NULL,
	PRIMARY KEY (run_id, matchup, archetype, role)
);
CREATE TABLE IF NOT EXISTS excluded_matchups (
	run_id      TEXT NOT NULL,
	matchup     INTEGER NOT NULL,
	row_count   INTEGER NOT NULL,
	param_count INTEGER NOT NULL,
	ratio       REAL NOT NULL,
	PRIMARY KEY (run_id, matchup)
);
`

// OpenPublishDB opens (and if needed creates) the run ledger.
func OpenPublishDB(path string) (*PublishDB, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(publishSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}
	return &PublishDB{db: db, log: logger.Get().Named("repository")}, nil
}

// Close releases the database handle.
func (p *PublishDB) Close() error {
	if p.db == nil {
		return ErrNotOpen
	}
	err := p.db.Close()
	p.db = nil
	return err
}

// WriteRun appends one run, its coefficient rows, and its exclusions in a
// single transaction.
func (p *PublishDB) WriteRun(ctx context.Context, table *publish.CoefficientTable, report *publish.RunReport) error {
	if p.db == nil {
		return ErrNotOpen
	}
	if table == nil || report == nil {
		return fmt.Errorf("write run: nil artifact")
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback()

	accepted := 0
	if report.Verdict == publish.VerdictAccepted {
		accepted = 1
	}
	var maxRHat, minESS, divergenceRate float64
	if report.Audit != nil {
		maxRHat = report.Audit.MaxRHat
		minESS = report.Audit.MinESS
		divergenceRate = report.Audit.DivergenceRate
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, created_at, spec, params, verdict, accepted,
		                  max_rhat, min_ess, divergence_rate, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, report.CreatedAt.UTC().Format(time.RFC3339), report.Spec,
		report.Params, report.Verdict, accepted,
		maxRHat, minESS, divergenceRate, string(reportJSON),
	); err != nil {
		return fmt.Errorf("insert run %s: %w", report.RunID, err)
	}

	coefStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO coefficients (run_id, scope, matchup, archetype, role,
		                          estimate, lower, upper, trusted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare coefficient insert: %w", err)
	}
	defer coefStmt.Close()

	for i := range table.Rows {
		r := &table.Rows[i]
		trusted := 0
		if r.Trusted {
			trusted = 1
		}
		if _, err := coefStmt.ExecContext(ctx,
			table.RunID, r.Scope, r.Matchup, r.Archetype, r.Role,
			r.Estimate, r.Lower, r.Upper, trusted,
		); err != nil {
			return fmt.Errorf("insert coefficient: %w", err)
		}
	}

	for i := range report.Excluded {
		e := &report.Excluded[i]
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO excluded_matchups (run_id, matchup, row_count, param_count, ratio)
			VALUES (?, ?, ?, ?, ?)`,
			report.RunID, e.Matchup, e.Rows, e.Params, e.Ratio,
		); err != nil {
			return fmt.Errorf("insert exclusion: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}

	p.log.Info(ctx, "run appended to ledger",
		logger.String("run_id", report.RunID),
		logger.String("verdict", report.Verdict),
		logger.Int("coefficients", len(table.Rows)),
	)
	return nil
}

// LastAcceptedRunID returns the run id of the most recently accepted run,
// or empty when the ledger holds none.
func (p *PublishDB) LastAcceptedRunID(ctx context.Context) (string, error) {
	if p.db == nil {
		return "", ErrNotOpen
	}
	var id string
	err := p.db.QueryRowContext(ctx, `
		SELECT run_id FROM runs
		WHERE accepted = 1
		ORDER BY created_at DESC
		LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query last accepted run: %w", err)
	}
	return id, nil
}
