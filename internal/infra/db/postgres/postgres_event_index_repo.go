package postgres

import (
	"context"

	"grouping-backfill/internal/domain/model"
	"grouping-backfill/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.EventIndexRepository = (*eventIndexRepo)(nil)

// eventIndexRepo reads the columnar event index: one row per ingested event,
// from which we take the newest event per group as its representative.
type eventIndexRepo struct {
	db querier
}

func NewEventIndexRepo(pool *pgxpool.Pool) *eventIndexRepo {
	return &eventIndexRepo{db: pool}
}

func (r *eventIndexRepo) QueryLatestEvents(ctx context.Context, projectID int64, groupIDs []int64) ([]model.EventRef, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}

	const q = `
SELECT DISTINCT ON (group_id) group_id, event_id
FROM error_events
WHERE project_id = $1 AND group_id = ANY($2)
ORDER BY group_id, received_at DESC;`

	rows, err := r.db.Query(ctx, q, projectID, groupIDs)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var refs []model.EventRef
	for rows.Next() {
		var ref model.EventRef
		if err := rows.Scan(&ref.GroupID, &ref.EventID); err != nil {
			return nil, translateError(err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
