package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"grouping-backfill/internal/domain"
	"grouping-backfill/internal/domain/model"
	"grouping-backfill/internal/domain/ports/adapter"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var _ adapter.TaskScheduler = (*TaskQueue)(nil)

// TaskQueue is a redis-list task queue carrying backfill cursors. Enqueue is
// the fire-and-forget continuation primitive; the consumer side blocks on
// BRPOP. One list, FIFO, no acks: a crashed invocation loses only its own
// step and the cursor it was enqueued with can be re-triggered manually.
type TaskQueue struct {
	client RedisClient
	key    string
}

func NewTaskQueue(client RedisClient, queueName string) *TaskQueue {
	return &TaskQueue{client: client, key: "backfill:queue:" + queueName}
}

func (q *TaskQueue) Enqueue(ctx context.Context, cursor model.BackfillCursor, delay time.Duration) error {
	now := time.Now().UTC()
	env := model.TaskEnvelope{
		ID:         uuid.NewString(),
		EnqueuedAt: now,
		NotBefore:  now.Add(delay),
		Cursor:     cursor,
	}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal task envelope: %w", err)
	}
	return q.client.LPush(ctx, q.key, b)
}

// Dequeue blocks up to wait for the next envelope. Returns
// domain.ErrQueueEmpty when the wait elapses with nothing to do.
func (q *TaskQueue) Dequeue(ctx context.Context, wait time.Duration) (*model.TaskEnvelope, error) {
	raw, err := q.client.BRPop(ctx, wait, q.key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrQueueEmpty
		}
		return nil, err
	}
	var env model.TaskEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("unmarshal task envelope: %w", err)
	}
	return &env, nil
}

// Depth reports the number of queued tasks, for metrics.
func (q *TaskQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key)
}
