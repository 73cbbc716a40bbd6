package repository

import (
	"context"

	"grouping-backfill/internal/domain/model"
)

type ProjectRepository interface {
	// FindByID returns domain.ErrProjectNotFound when the project is gone;
	// the pipeline treats that as an exhausted batch, not a failure.
	FindByID(ctx context.Context, id int64) (*model.Project, error)
	// EnableIngestion flips the project to inline grouping-record
	// computation. Called once per project when a backfill chain starts
	// with enable_ingestion set.
	EnableIngestion(ctx context.Context, id int64) error
}
