package model

type ProjectStatus int16

const (
	ProjectStatusActive ProjectStatus = iota
	ProjectStatusDisabled
	ProjectStatusPendingDeletion
)

// Project is the unit the backfill walks over. Only the fields the pipeline
// reads are modeled here; the full project record lives with the ingestion
// side of the platform.
type Project struct {
	ID     int64
	Slug   string
	Status ProjectStatus
	// BackfillEnabled gates whether this project participates in the
	// grouping-record backfill at all.
	BackfillEnabled bool
	// IngestionEnabled marks that newly ingested events get grouping
	// records computed inline, so the backfill only has to cover history.
	IngestionEnabled bool
}
