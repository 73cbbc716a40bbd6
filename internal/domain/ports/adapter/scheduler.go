package adapter

import (
	"context"
	"time"

	"grouping-backfill/internal/domain/model"
)

// TaskScheduler is the fire-and-forget re-invocation primitive: enqueue a
// cursor, and some consumer somewhere runs the next pipeline step with it.
// Continuations never propagate tracing context; a cohort walk can chain
// tens of thousands of invocations.
type TaskScheduler interface {
	Enqueue(ctx context.Context, cursor model.BackfillCursor, delay time.Duration) error
}
