package postgres

import (
	"context"
	"errors"

	"grouping-backfill/internal/domain"
	"grouping-backfill/internal/domain/model"
	"grouping-backfill/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.ProjectRepository = (*projectRepo)(nil)

type projectRepo struct {
	db querier
}

func NewProjectRepo(pool *pgxpool.Pool) *projectRepo {
	return &projectRepo{db: pool}
}

func (r *projectRepo) FindByID(ctx context.Context, id int64) (*model.Project, error) {
	const q = `
SELECT id, slug, status, backfill_enabled, ingestion_enabled
FROM projects
WHERE id = $1;`

	var p model.Project
	err := r.db.QueryRow(ctx, q, id).Scan(&p.ID, &p.Slug, &p.Status, &p.BackfillEnabled, &p.IngestionEnabled)
	if err != nil {
		if errors.Is(translateError(err), domain.ErrNotFound) {
			return nil, domain.ErrProjectNotFound
		}
		return nil, translateError(err)
	}
	return &p, nil
}

func (r *projectRepo) EnableIngestion(ctx context.Context, id int64) error {
	const q = `
UPDATE projects SET ingestion_enabled = true WHERE id = $1;`

	tag, err := r.db.Exec(ctx, q, id)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProjectNotFound
	}
	return nil
}
