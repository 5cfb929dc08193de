// Package features assembles possessions into the modeling dataset.
package features

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"runtime"

	"github.com/halfcourt/matchfit/internal/domain/archetype"
	"github.com/halfcourt/matchfit/internal/domain/matchup"
	"github.com/halfcourt/matchfit/internal/domain/model"
)

// cancelCheckStride bounds how many rows a shard worker processes between
// context checks.
const cancelCheckStride = 1024

// Aggregator turns raw possessions into feature rows.
type Aggregator interface {
	// Aggregate builds the dataset. Possessions referencing unknown players
	// or carrying non-finite outcomes are dropped and tallied, never
	// imputed. Row order in the result carries no meaning.
	Aggregate(ctx context.Context, possessions []model.Possession) (*model.Dataset, error)
}

// aggregator fans possessions out by game id and concatenates shard results.
type aggregator struct {
	resolver   archetype.Resolver
	classifier matchup.Classifier
	workers    int
}

// New creates an Aggregator reading from the given resolver and classifier.
// Both are read-only snapshots for the whole run.
func New(resolver archetype.Resolver, classifier matchup.Classifier, opts ...Option) (Aggregator, error) {
	if resolver == nil {
		return nil, ErrNilResolver
	}
	if classifier == nil {
		return nil, ErrNilClassifier
	}

	a := &aggregator{
		resolver:   resolver,
		classifier: classifier,
		workers:    runtime.NumCPU(),
	}

	// Apply all options
	for _, opt := range opts {
		opt(a)
	}

	if a.workers < 1 {
		a.workers = 1
	}
	return a, nil
}

// shardResult is one worker's slice of the dataset.
type shardResult struct {
	rows     []model.FeatureRow
	rejected map[model.RejectReason]int
	err      error
}

func (a *aggregator) Aggregate(ctx context.Context, possessions []model.Possession) (*model.Dataset, error) {
	k := a.resolver.Archetypes()
	s := a.classifier.Superclusters()

	ds := &model.Dataset{
		Archetypes:    k,
		Superclusters: s,
		TotalRead:     len(possessions),
		Rejected:      make(map[model.RejectReason]int),
	}
	if len(possessions) == 0 {
		return ds, nil
	}

	workers := minInt(a.workers, len(possessions))

	// Shard by game id so a game's possessions never split across workers
	// and no two workers touch the same index.
	shards := make([][]int, workers)
	for i := range possessions {
		w := gameShard(possessions[i].GameID, workers)
		shards[w] = append(shards[w], i)
	}

	resultChan := make(chan shardResult, workers)
	for w := 0; w < workers; w++ {
		go func(indices []int) {
			resultChan <- a.processShard(ctx, possessions, indices, k, s)
		}(shards[w])
	}

	// Join barrier: every worker sends exactly one result.
	var firstErr error
	for w := 0; w < workers; w++ {
		res := <-resultChan
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		ds.Rows = append(ds.Rows, res.rows...)
		for reason, n := range res.rejected {
			ds.Rejected[reason] += n
		}
	}
	if firstErr != nil {
		return nil, fmt.Errorf("aggregate possessions: %w", firstErr)
	}

	return ds, nil
}

// processShard converts one worker's possessions, tallying drops locally so
// the merge stays contention-free.
func (a *aggregator) processShard(ctx context.Context, possessions []model.Possession, indices []int, k, s int) shardResult {
	res := shardResult{
		rows:     make([]model.FeatureRow, 0, len(indices)),
		rejected: make(map[model.RejectReason]int),
	}
	for n, idx := range indices {
		if n%cancelCheckStride == 0 {
			select {
			case <-ctx.Done():
				res.err = ctx.Err()
				return res
			default:
			}
		}

		row, reason, err := a.convert(&possessions[idx], k, s)
		if err != nil {
			res.err = err
			return res
		}
		if reason != "" {
			res.rejected[reason]++
			continue
		}
		res.rows = append(res.rows, row)
	}
	return res
}

// convert builds one feature row. A non-empty reason means the possession is
// dropped; a non-nil error means a load-time invariant has been violated and
// the whole aggregation must abort.
func (a *aggregator) convert(p *model.Possession, k, s int) (model.FeatureRow, model.RejectReason, error) {
	if math.IsNaN(p.Outcome) || math.IsInf(p.Outcome, 0) {
		return model.FeatureRow{}, model.RejectNonFiniteOutcome, nil
	}

	zOff := make([]float64, k)
	zDef := make([]float64, k)
	var offIDs, defIDs [model.LineupSize]model.ArchetypeID

	for i, pid := range p.Offense {
		id, skill, ok := a.resolver.Resolve(pid)
		if !ok {
			return model.FeatureRow{}, model.RejectUnknownPlayer, nil
		}
		if id < 0 || int(id) >= k {
			return model.FeatureRow{}, "", fmt.Errorf("%w: archetype %d for player %q (K=%d)", ErrArchetypeIndex, id, pid, k)
		}
		offIDs[i] = id
		zOff[id] += skill.Off
	}
	for i, pid := range p.Defense {
		id, skill, ok := a.resolver.Resolve(pid)
		if !ok {
			return model.FeatureRow{}, model.RejectUnknownPlayer, nil
		}
		if id < 0 || int(id) >= k {
			return model.FeatureRow{}, "", fmt.Errorf("%w: archetype %d for player %q (K=%d)", ErrArchetypeIndex, id, pid, k)
		}
		defIDs[i] = id
		zDef[id] += skill.Def
	}

	m := model.UnassignedMatchup
	if pair, ok := a.classifier.Classify(model.NewLineup(offIDs), model.NewLineup(defIDs)); ok {
		m = pair.Index(s)
	}

	return model.FeatureRow{ZOff: zOff, ZDef: zDef, Matchup: m, Outcome: p.Outcome}, "", nil
}

// gameShard places a game id on a worker.
func gameShard(gameID string, workers int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(gameID))
	return int(h.Sum32() % uint32(workers)) //nolint:gosec // checksum, not crypto
}

// minInt returns the minimum of two integers.
func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
