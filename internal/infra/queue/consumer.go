package queue

import (
	"context"
	"errors"
	"time"

	"grouping-backfill/internal/domain"
	"grouping-backfill/internal/domain/model"
	"grouping-backfill/internal/domain/ports/adapter"
	"grouping-backfill/internal/infra/logging"
	"grouping-backfill/internal/infra/metrics"
	"grouping-backfill/internal/infra/redis"
	"grouping-backfill/internal/infra/worker"
	"grouping-backfill/internal/usecase"

	"github.com/rs/zerolog"
)

// TaskSource is the consumer side of the task queue.
type TaskSource interface {
	Dequeue(ctx context.Context, wait time.Duration) (*model.TaskEnvelope, error)
	Depth(ctx context.Context) (int64, error)
}

// ChainLocker serializes invocations that target the same project.
type ChainLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// lockRetryDelay is how long a task is deferred when its project lock is
// held by another invocation.
const lockRetryDelay = 5 * time.Second

// Consumer binds the task queue to the backfill pipeline: it dequeues
// envelopes and runs each as one bounded invocation on the worker pool.
// Every invocation gets a hard time budget; blowing it fails the invocation
// without advancing the cursor, since continuations are only enqueued after
// the pipeline step succeeds.
type Consumer struct {
	source      TaskSource
	sched       adapter.TaskScheduler
	lock        ChainLocker
	uc          usecase.BackfillUseCase
	pool        *worker.Pool
	taskTimeout time.Duration
	dequeueWait time.Duration
	log         *zerolog.Logger
}

func NewConsumer(
	source TaskSource,
	sched adapter.TaskScheduler,
	lock ChainLocker,
	uc usecase.BackfillUseCase,
	pool *worker.Pool,
	taskTimeout, dequeueWait time.Duration,
	logger *zerolog.Logger,
) *Consumer {
	cLog := logger.With().Str("component", "QueueConsumer").Logger()
	return &Consumer{
		source:      source,
		sched:       sched,
		lock:        lock,
		uc:          uc,
		pool:        pool,
		taskTimeout: taskTimeout,
		dequeueWait: dequeueWait,
		log:         &cLog,
	}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info().Msg("queue consumer started")
	for {
		if err := ctx.Err(); err != nil {
			c.log.Info().Msg("queue consumer stopping")
			return err
		}

		env, err := c.source.Dequeue(ctx, c.dequeueWait)
		if err != nil {
			if errors.Is(err, domain.ErrQueueEmpty) {
				c.observeDepth(ctx)
				continue
			}
			if ctx.Err() != nil {
				c.log.Info().Msg("queue consumer stopping")
				return ctx.Err()
			}
			metrics.IncTaskError("decode")
			c.log.Error().Err(err).Msg("dequeue failed")
			continue
		}

		metrics.IncTaskConsumed()
		c.observeDepth(ctx)

		envCopy := *env
		if err := c.pool.Submit(ctx, func(taskCtx context.Context) error {
			c.runOne(taskCtx, &envCopy)
			return nil
		}); err != nil {
			c.log.Error().Err(err).Str("task_id", env.ID).Msg("failed to submit task")
		}
	}
}

func (c *Consumer) runOne(ctx context.Context, env *model.TaskEnvelope) {
	// Delays are honored here rather than at enqueue time; they are zero in
	// practice.
	if wait := time.Until(env.NotBefore); wait > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}

	taskCtx, cancel := context.WithTimeout(ctx, c.taskTimeout)
	defer cancel()
	taskCtx = logging.WithTaskID(taskCtx, env.ID)
	taskCtx = logging.WithProjectID(taskCtx, env.Cursor.ProjectID)
	log := logging.With(taskCtx, c.log)

	// One invocation per project at a time. Losing the race means another
	// chain is mid-batch on this project; defer rather than interleave.
	lockKey := redis.ProjectLockKey(env.Cursor.ProjectID)
	token, err := c.lock.TryLock(taskCtx, lockKey, c.taskTimeout)
	if err != nil {
		metrics.IncTaskError("lock")
		log.Warn().Err(err).Msg("project lock held, deferring task")
		if err := c.sched.Enqueue(ctx, env.Cursor, lockRetryDelay); err != nil {
			log.Error().Err(err).Msg("failed to defer locked task")
		}
		return
	}
	defer func() {
		if err := c.lock.Unlock(ctx, lockKey, token); err != nil {
			log.Warn().Err(err).Msg("failed to release project lock")
		}
	}()

	start := time.Now()
	transition, err := c.uc.ProcessBatch(taskCtx, env.Cursor)
	metrics.ObserveBatchDuration(time.Since(start).Seconds())
	metrics.IncBatch(string(transition))

	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		metrics.IncTaskError("timeout")
		log.Error().Dur("elapsed", time.Since(start)).Msg("invocation exceeded its time budget, cursor not advanced")
	case err != nil:
		metrics.IncTaskError("pipeline")
		log.Error().Err(err).Str("transition", string(transition)).Msg("backfill invocation failed")
	default:
		log.Info().Str("transition", string(transition)).Dur("elapsed", time.Since(start)).Msg("backfill invocation done")
	}
}

func (c *Consumer) observeDepth(ctx context.Context) {
	if depth, err := c.source.Depth(ctx); err == nil {
		metrics.SetQueueDepth(depth)
	}
}
