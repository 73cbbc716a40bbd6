package repository

import (
	"context"

	"grouping-backfill/internal/domain/model"
)

// EventIndexRepository is the columnar event index: per group, the newest
// event reference. Groups with no row are silently absent from the result.
type EventIndexRepository interface {
	QueryLatestEvents(ctx context.Context, projectID int64, groupIDs []int64) ([]model.EventRef, error)
}

// EventPayloadStore resolves full event payloads for index rows. Lossy by
// contract: refs whose blob is missing or unusable are absent from the map.
type EventPayloadStore interface {
	FetchPayloads(ctx context.Context, projectID int64, refs []model.EventRef) (map[int64]model.EventSnapshot, error)
}
