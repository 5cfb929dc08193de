// Package synth generates possession logs from a known ground truth.
package synth

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/halfcourt/matchfit/internal/domain/archetype"
	"github.com/halfcourt/matchfit/internal/domain/matchup"
	"github.com/halfcourt/matchfit/internal/domain/model"
	"github.com/halfcourt/matchfit/pkg/logger"
)

// Default generation parameters.
const (
	defaultGames               = 50
	defaultPossessionsPerGame  = 40
	defaultArchetypes          = 3
	defaultSuperclusters       = 2
	defaultPlayersPerArchetype = 8
	defaultAssignedShare       = 0.9
	defaultSigma               = 1.0
	defaultSeason              = "2025"
	defaultCoefficientDraw     = 0.5
	rosterSize                 = 10
)

// Config holds generation parameters.
type Config struct {
	Seed                int64     // rng seed; one seed fully determines the dataset
	Games               int       // number of games
	PossessionsPerGame  int       // possessions per game
	Archetypes          int       // K, dense role ids
	Superclusters       int       // S, style clusters per side
	PlayersPerArchetype int       // pool size per role
	Season              string    // season stamp on archetype rows
	AssignedShare       float64   // fraction of lineups given a style cluster
	Intercept           float64   // true scoring baseline
	BetaOff             []float64 // true offensive effects, length K; drawn when nil
	BetaDef             []float64 // true defensive effects, length K; drawn when nil
	Sigma               float64   // residual noise scale
}

// Truth is the generating model, written alongside the dataset so fits can
// be checked against it.
type Truth struct {
	Seed      int64     `json:"seed"`
	Intercept float64   `json:"intercept"`
	BetaOff   []float64 `json:"beta_off"`
	BetaDef   []float64 `json:"beta_def"`
	Sigma     float64   `json:"sigma"`
}

// Stats holds generation statistics.
type Stats struct {
	Games           int
	Possessions     int
	Players         int
	LineupsSeen     int
	LineupsAssigned int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}

// Output bundles the generated tables with the truth that produced them.
type Output struct {
	Possessions []model.Possession
	Archetypes  []archetype.Entry
	Assignments []matchup.Assignment
	Truth       Truth
	Stats       Stats
}

// player is one synthetic player: identity, role and true skills.
type player struct {
	id        string
	archetype model.ArchetypeID
	skill     model.Skill
}

// Generator produces datasets whose outcomes follow the configured linear
// model plus gaussian noise. Generation is sequential so a seed fully
// determines the output.
type Generator struct {
	cfg Config
	rng *rand.Rand
	log logger.Logger
}

// New creates a Generator, filling zero config fields with defaults.
func New(cfg Config) (*Generator, error) {
	if cfg.Games <= 0 {
		cfg.Games = defaultGames
	}
	if cfg.PossessionsPerGame <= 0 {
		cfg.PossessionsPerGame = defaultPossessionsPerGame
	}
	if cfg.Archetypes <= 0 {
		cfg.Archetypes = defaultArchetypes
	}
	if cfg.Superclusters <= 0 {
		cfg.Superclusters = defaultSuperclusters
	}
	if cfg.PlayersPerArchetype <= 0 {
		cfg.PlayersPerArchetype = defaultPlayersPerArchetype
	}
	if cfg.AssignedShare <= 0 || cfg.AssignedShare > 1 {
		cfg.AssignedShare = defaultAssignedShare
	}
	if cfg.Sigma <= 0 {
		cfg.Sigma = defaultSigma
	}
	if cfg.Season == "" {
		cfg.Season = defaultSeason
	}

	pool := cfg.Archetypes * cfg.PlayersPerArchetype
	if pool < 2*rosterSize {
		return nil, fmt.Errorf("player pool %d too small for two rosters of %d", pool, rosterSize)
	}
	if cfg.BetaOff != nil && len(cfg.BetaOff) != cfg.Archetypes {
		return nil, fmt.Errorf("beta_off has %d entries, want %d", len(cfg.BetaOff), cfg.Archetypes)
	}
	if cfg.BetaDef != nil && len(cfg.BetaDef) != cfg.Archetypes {
		return nil, fmt.Errorf("beta_def has %d entries, want %d", len(cfg.BetaDef), cfg.Archetypes)
	}

	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
		log: logger.Get().Named("synth"),
	}, nil
}

// Generate builds the full dataset in memory.
func (g *Generator) Generate(ctx context.Context) (*Output, error) {
	start := time.Now()

	truth := Truth{
		Seed:      g.cfg.Seed,
		Intercept: g.cfg.Intercept,
		BetaOff:   g.coefficients(g.cfg.BetaOff),
		BetaDef:   g.coefficients(g.cfg.BetaDef),
		Sigma:     g.cfg.Sigma,
	}

	pool := g.players()
	assignments := make(map[model.Lineup]matchup.SuperclusterID)
	unassigned := make(map[model.Lineup]bool)

	out := &Output{
		Truth:       truth,
		Possessions: make([]model.Possession, 0, g.cfg.Games*g.cfg.PossessionsPerGame),
	}

	for game := 0; game < g.cfg.Games; game++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("generation cancelled at game %d: %w", game, err)
		}

		gameID := fmt.Sprintf("game-%04d", game)
		home, away := g.rosters(pool)

		for i := 0; i < g.cfg.PossessionsPerGame; i++ {
			offense, defense := home, away
			if i%2 == 1 {
				offense, defense = away, home
			}

			offLineup := g.lineup(offense)
			defLineup := g.lineup(defense)
			g.classify(offLineup, assignments, unassigned)
			g.classify(defLineup, assignments, unassigned)

			p := model.Possession{
				GameID:       gameID,
				PossessionID: "p" + strconv.Itoa(i),
				Outcome:      g.outcome(truth, offLineup, defLineup),
			}
			for j, pl := range offLineup {
				p.Offense[j] = pl.id
			}
			for j, pl := range defLineup {
				p.Defense[j] = pl.id
			}
			out.Possessions = append(out.Possessions, p)
		}
	}

	out.Archetypes = make([]archetype.Entry, 0, len(pool))
	for _, pl := range pool {
		out.Archetypes = append(out.Archetypes, archetype.Entry{
			PlayerID:  pl.id,
			Season:    g.cfg.Season,
			Archetype: pl.archetype,
			OffSkill:  pl.skill.Off,
			DefSkill:  pl.skill.Def,
		})
	}

	out.Assignments = make([]matchup.Assignment, 0, len(assignments))
	for lineup, sc := range assignments {
		out.Assignments = append(out.Assignments, matchup.Assignment{Lineup: lineup, Supercluster: sc})
	}
	// Map iteration order would leak into the output files otherwise.
	sort.Slice(out.Assignments, func(i, j int) bool {
		return lineupLess(out.Assignments[i].Lineup, out.Assignments[j].Lineup)
	})

	end := time.Now()
	out.Stats = Stats{
		Games:           g.cfg.Games,
		Possessions:     len(out.Possessions),
		Players:         len(pool),
		LineupsSeen:     len(assignments) + len(unassigned),
		LineupsAssigned: len(assignments),
		StartTime:       start,
		EndTime:         end,
		Duration:        end.Sub(start),
	}

	g.log.Info(ctx, "dataset generated",
		logger.Int("possessions", out.Stats.Possessions),
		logger.Int("players", out.Stats.Players),
		logger.Int("lineups_assigned", out.Stats.LineupsAssigned),
		logger.Int("lineups_seen", out.Stats.LineupsSeen),
		logger.Duration("elapsed", out.Stats.Duration),
	)
	return out, nil
}

// coefficients returns the configured truth vector, or draws a half-normal
// one when none was given.
func (g *Generator) coefficients(configured []float64) []float64 {
	if configured != nil {
		out := make([]float64, len(configured))
		copy(out, configured)
		return out
	}
	out := make([]float64, g.cfg.Archetypes)
	for i := range out {
		v := g.rng.NormFloat64() * defaultCoefficientDraw
		if v < 0 {
			v = -v
		}
		out[i] = v
	}
	return out
}

// players builds the pool: PlayersPerArchetype players for each role, with
// skills drawn from a standard normal.
func (g *Generator) players() []player {
	pool := make([]player, 0, g.cfg.Archetypes*g.cfg.PlayersPerArchetype)
	for a := 0; a < g.cfg.Archetypes; a++ {
		for i := 0; i < g.cfg.PlayersPerArchetype; i++ {
			pool = append(pool, player{
				id:        fmt.Sprintf("player-%d-%02d", a, i),
				archetype: model.ArchetypeID(a),
				skill:     model.Skill{Off: g.rng.NormFloat64(), Def: g.rng.NormFloat64()},
			})
		}
	}
	return pool
}

// rosters draws two disjoint rosters for one game.
func (g *Generator) rosters(pool []player) ([]player, []player) {
	perm := g.rng.Perm(len(pool))
	home := make([]player, rosterSize)
	away := make([]player, rosterSize)
	for i := 0; i < rosterSize; i++ {
		home[i] = pool[perm[i]]
		away[i] = pool[perm[rosterSize+i]]
	}
	return home, away
}

// lineup samples five distinct players from a roster.
func (g *Generator) lineup(roster []player) [model.LineupSize]player {
	perm := g.rng.Perm(len(roster))
	var out [model.LineupSize]player
	for i := 0; i < model.LineupSize; i++ {
		out[i] = roster[perm[i]]
	}
	return out
}

// classify decides, once per distinct lineup, whether it gets a style
// cluster and which one.
func (g *Generator) classify(lineup [model.LineupSize]player, assignments map[model.Lineup]matchup.SuperclusterID, unassigned map[model.Lineup]bool) {
	var ids [model.LineupSize]model.ArchetypeID
	for i, pl := range lineup {
		ids[i] = pl.archetype
	}
	key := model.NewLineup(ids)

	if _, ok := assignments[key]; ok {
		return
	}
	if unassigned[key] {
		return
	}
	if g.rng.Float64() < g.cfg.AssignedShare {
		assignments[key] = matchup.SuperclusterID(g.rng.Intn(g.cfg.Superclusters))
	} else {
		unassigned[key] = true
	}
}

// lineupLess orders lineups lexicographically by archetype id.
func lineupLess(a, b model.Lineup) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// outcome evaluates the true model on one possession and adds noise.
func (g *Generator) outcome(truth Truth, offense, defense [model.LineupSize]player) float64 {
	v := truth.Intercept
	for _, pl := range offense {
		v += truth.BetaOff[pl.archetype] * pl.skill.Off
	}
	for _, pl := range defense {
		v -= truth.BetaDef[pl.archetype] * pl.skill.Def
	}
	return v + g.rng.NormFloat64()*truth.Sigma
}
