package repository

import (
	"context"

	"grouping-backfill/internal/domain/model"
)

type GroupRepository interface {
	// SelectUnembedded returns up to limit ids of groups without a grouping
	// record, with id > afterGroupID (nil means from the start), in
	// ascending id order. lastScanned is the highest id the page reached
	// and is the next cursor regardless of how many of the returned groups
	// survive downstream filtering; nil lastScanned means the project is
	// exhausted.
	SelectUnembedded(ctx context.Context, projectID int64, afterGroupID *int64, limit int) (ids []int64, lastScanned *int64, err error)

	// ApplyScore writes one group's similarity outcome. Callers treat
	// failures as per-group: log and move on.
	ApplyScore(ctx context.Context, projectID int64, outcome model.ScoreOutcome) error

	// DeleteGroupingRecords clears all grouping-record state for a project
	// (the only_delete mode of the backfill).
	DeleteGroupingRecords(ctx context.Context, projectID int64) error
}
