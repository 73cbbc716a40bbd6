package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"grouping-backfill/internal/domain/model"
	"grouping-backfill/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

var _ repository.EventPayloadStore = (*PayloadStore)(nil)

// PayloadStore resolves event payload blobs from redis. Payloads are written
// by the ingestion side as JSON under event:{project_id}:{event_id}.
type PayloadStore struct {
	client RedisClient
	log    *zerolog.Logger
}

func NewPayloadStore(client RedisClient, logger *zerolog.Logger) *PayloadStore {
	psLog := logger.With().Str("component", "PayloadStore").Logger()
	return &PayloadStore{client: client, log: &psLog}
}

func payloadKey(projectID int64, eventID string) string {
	return fmt.Sprintf("event:%d:%s", projectID, eventID)
}

// FetchPayloads resolves the payload blob for each ref in a single MGET.
// Refs whose blob is missing, unparsable, or lacking a usable stacktrace are
// dropped from the result; the pipeline tolerates the loss by contract.
func (s *PayloadStore) FetchPayloads(ctx context.Context, projectID int64, refs []model.EventRef) (map[int64]model.EventSnapshot, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	keys := make([]string, len(refs))
	for i, ref := range refs {
		keys[i] = payloadKey(projectID, ref.EventID)
	}

	vals, err := s.client.MGet(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("mget event payloads: %w", err)
	}

	out := make(map[int64]model.EventSnapshot, len(refs))
	for i, v := range vals {
		ref := refs[i]
		raw, ok := v.(string)
		if !ok || raw == "" {
			continue
		}
		var snap model.EventSnapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			s.log.Debug().
				Int64("group_id", ref.GroupID).
				Str("event_id", ref.EventID).
				Err(err).
				Msg("dropping group with unparsable payload")
			continue
		}
		snap.GroupID = ref.GroupID
		snap.EventID = ref.EventID
		if !snap.Usable() {
			s.log.Debug().
				Int64("group_id", ref.GroupID).
				Str("event_id", ref.EventID).
				Msg("dropping group without usable stacktrace")
			continue
		}
		out[ref.GroupID] = snap
	}
	return out, nil
}
