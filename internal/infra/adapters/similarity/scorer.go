package similarity

import (
	"context"
	"time"

	"grouping-backfill/internal/domain/model"
	"grouping-backfill/internal/domain/ports/adapter"
	"grouping-backfill/internal/infra/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Compile-time checks
var (
	_ adapter.SimilarityScorer = (*SequentialScorer)(nil)
	_ adapter.SimilarityScorer = (*PooledScorer)(nil)
)

// NewScorer picks the batch strategy from the configured concurrency degree:
// 1 means one call at a time in batch order, >1 a bounded worker pool.
func NewScorer(client *Client, threads int, logger *zerolog.Logger) adapter.SimilarityScorer {
	if threads > 1 {
		return NewPooledScorer(client, threads, logger)
	}
	return NewSequentialScorer(client, logger)
}

// SequentialScorer scores groups one at a time, in batch order.
type SequentialScorer struct {
	client *Client
	log    *zerolog.Logger
}

func NewSequentialScorer(client *Client, logger *zerolog.Logger) *SequentialScorer {
	sLog := logger.With().Str("component", "SequentialScorer").Logger()
	return &SequentialScorer{client: client, log: &sLog}
}

func (s *SequentialScorer) Score(ctx context.Context, projectID int64, groupIDs []int64, snapshots map[int64]model.EventSnapshot) (*model.BatchScoreResult, error) {
	res := &model.BatchScoreResult{
		Success:  true,
		Outcomes: make(map[int64]model.ScoreOutcome, len(groupIDs)),
	}

	for _, id := range groupIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snap, ok := snapshots[id]
		if !ok {
			continue
		}
		out, err := scoreOne(ctx, s.client, "sequential", projectID, snap)
		if err != nil {
			// Keep going: remaining groups still get their calls, the
			// batch result just carries the first failure reason.
			s.log.Warn().Err(err).Int64("group_id", id).Msg("similarity call failed")
			if res.Success {
				res.Success = false
				res.Reason = err.Error()
			}
			continue
		}
		res.Outcomes[out.GroupID] = out
	}

	if !res.Success {
		metrics.IncSimilarityBatchFailure()
	}
	metrics.AddGroups("scored", len(res.Outcomes))
	return res, nil
}

// PooledScorer fans per-group calls out over a bounded worker pool and joins
// the outcomes keyed by group id, independent of completion order. A worker
// failure marks the batch failed but the remaining workers are drained; no
// request is orphaned.
type PooledScorer struct {
	client  *Client
	threads int
	log     *zerolog.Logger
}

func NewPooledScorer(client *Client, threads int, logger *zerolog.Logger) *PooledScorer {
	if threads < 1 {
		threads = 1
	}
	pLog := logger.With().Str("component", "PooledScorer").Int("threads", threads).Logger()
	return &PooledScorer{client: client, threads: threads, log: &pLog}
}

func (p *PooledScorer) Score(ctx context.Context, projectID int64, groupIDs []int64, snapshots map[int64]model.EventSnapshot) (*model.BatchScoreResult, error) {
	// Each worker owns one slot; no shared mutable state to contend on.
	type slot struct {
		outcome model.ScoreOutcome
		err     error
		done    bool
	}
	slots := make([]slot, len(groupIDs))

	var g errgroup.Group
	g.SetLimit(p.threads)
	for i, id := range groupIDs {
		snap, ok := snapshots[id]
		if !ok {
			continue
		}
		i, id := i, id
		g.Go(func() error {
			out, err := scoreOne(ctx, p.client, "pooled", projectID, snap)
			if err != nil {
				p.log.Warn().Err(err).Int64("group_id", id).Msg("similarity call failed")
				slots[i] = slot{err: err, done: true}
				return nil
			}
			slots[i] = slot{outcome: out, done: true}
			return nil
		})
	}
	// Workers report through their slot, never an error, so Wait drains all
	// of them even after a failure.
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &model.BatchScoreResult{
		Success:  true,
		Outcomes: make(map[int64]model.ScoreOutcome, len(groupIDs)),
	}
	for _, s := range slots {
		if !s.done {
			continue
		}
		if s.err != nil {
			if res.Success {
				res.Success = false
				res.Reason = s.err.Error()
			}
			continue
		}
		res.Outcomes[s.outcome.GroupID] = s.outcome
	}

	if !res.Success {
		metrics.IncSimilarityBatchFailure()
	}
	metrics.AddGroups("scored", len(res.Outcomes))
	return res, nil
}

func scoreOne(ctx context.Context, client *Client, mode string, projectID int64, snap model.EventSnapshot) (model.ScoreOutcome, error) {
	start := time.Now()
	out, err := client.ScoreGroup(ctx, projectID, snap)
	metrics.ObserveSimilarityLatency(mode, float64(time.Since(start).Milliseconds()))
	metrics.IncSimilarityCall(err == nil)
	return out, err
}
