package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"grouping-backfill/internal/domain/ports/adapter"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

var _ adapter.FeatureGate = (*Killswitch)(nil)

const (
	globalKillKey     = "backfill:killswitch:global"
	projectKillPrefix = "backfill:killswitch:project:"
)

// Killswitch is a redis-flag feature gate so operators can halt a cohort
// walk at the next invocation boundary without a deploy. Reads fail open:
// an unreachable redis must not stop the walk on its own.
type Killswitch struct {
	client RedisClient
	log    *zerolog.Logger
}

func NewKillswitch(client RedisClient, logger *zerolog.Logger) *Killswitch {
	ksLog := logger.With().Str("component", "Killswitch").Logger()
	return &Killswitch{client: client, log: &ksLog}
}

func (k *Killswitch) GloballyKilled(ctx context.Context) bool {
	return k.killed(ctx, globalKillKey)
}

func (k *Killswitch) ProjectKilled(ctx context.Context, projectID int64) bool {
	return k.killed(ctx, fmt.Sprintf("%s%d", projectKillPrefix, projectID))
}

func (k *Killswitch) killed(ctx context.Context, key string) bool {
	v, err := k.client.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			k.log.Warn().Err(err).Str("key", key).Msg("killswitch read failed, failing open")
		}
		return false
	}
	return v == "1"
}

// SetGlobal flips the global killswitch (ops API).
func (k *Killswitch) SetGlobal(ctx context.Context, killed bool) error {
	return k.set(ctx, globalKillKey, killed)
}

// SetProject flips a per-project killswitch (ops API).
func (k *Killswitch) SetProject(ctx context.Context, projectID int64, killed bool) error {
	return k.set(ctx, fmt.Sprintf("%s%d", projectKillPrefix, projectID), killed)
}

func (k *Killswitch) set(ctx context.Context, key string, killed bool) error {
	if !killed {
		return k.client.Del(ctx, key)
	}
	return k.client.Set(ctx, key, "1", time.Duration(0))
}
