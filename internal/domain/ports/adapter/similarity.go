package adapter

import (
	"context"

	"grouping-backfill/internal/domain/model"
)

// SimilarityScorer scores one batch of groups against the external
// similarity service. Two implementations exist (sequential and pooled),
// chosen at construction; both honor the same contract: outcomes keyed by
// group id, and Success=false with a Reason whenever any group's call
// failed. The error return is reserved for context cancellation.
type SimilarityScorer interface {
	Score(ctx context.Context, projectID int64, groupIDs []int64, snapshots map[int64]model.EventSnapshot) (*model.BatchScoreResult, error)
}
