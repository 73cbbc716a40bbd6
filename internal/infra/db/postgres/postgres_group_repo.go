package postgres

import (
	"context"

	"grouping-backfill/internal/domain/model"
	"grouping-backfill/internal/domain/ports/repository"
	"grouping-backfill/internal/infra/metrics"

	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.GroupRepository = (*groupRepo)(nil)

type groupRepo struct {
	db querier
}

func NewGroupRepo(pool *pgxpool.Pool) *groupRepo {
	return &groupRepo{db: pool}
}

// SelectUnembedded pages unembedded, unresolved groups by ascending id.
// Group ids are monotonic, so (project_id, id > cursor) is a stable page
// even while new groups keep being created.
func (r *groupRepo) SelectUnembedded(ctx context.Context, projectID int64, afterGroupID *int64, limit int) ([]int64, *int64, error) {
	if limit <= 0 {
		return nil, nil, nil
	}

	var after int64
	if afterGroupID != nil {
		after = *afterGroupID
	}

	const q = `
SELECT id
FROM error_groups
WHERE project_id = $1
  AND id > $2
  AND has_grouping_record = false
  AND status = $3
  AND times_seen > 0
ORDER BY id ASC
LIMIT $4;`

	rows, err := r.db.Query(ctx, q, projectID, after, model.GroupStatusUnresolved, limit)
	if err != nil {
		return nil, nil, translateError(err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, nil, translateError(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, translateError(err)
	}
	if len(ids) == 0 {
		return nil, nil, nil
	}
	metrics.AddGroups("selected", len(ids))
	last := ids[len(ids)-1]
	return ids, &last, nil
}

func (r *groupRepo) ApplyScore(ctx context.Context, projectID int64, outcome model.ScoreOutcome) error {
	const q = `
UPDATE error_groups
SET grouping_record_hash = $3,
    has_grouping_record  = true,
    similar_group_id     = $4
WHERE project_id = $1 AND id = $2;`

	_, err := r.db.Exec(ctx, q, projectID, outcome.GroupID, outcome.GroupingRecordHash, outcome.SimilarGroupID)
	if err != nil {
		return translateError(err)
	}
	metrics.AddGroups("applied", 1)
	return nil
}

func (r *groupRepo) DeleteGroupingRecords(ctx context.Context, projectID int64) error {
	const q = `
UPDATE error_groups
SET grouping_record_hash = NULL,
    has_grouping_record  = false,
    similar_group_id     = NULL
WHERE project_id = $1 AND has_grouping_record = true;`

	_, err := r.db.Exec(ctx, q, projectID)
	return translateError(err)
}
