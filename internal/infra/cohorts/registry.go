package cohorts

import "grouping-backfill/internal/domain/ports/adapter"

var _ adapter.CohortRegistry = (*Registry)(nil)

// Registry is the config-backed cohort map. Project order within a cohort is
// the order backfill chains walk them in.
type Registry struct {
	cohorts map[string][]int64
}

func NewRegistry(cohorts map[string][]int64) *Registry {
	return &Registry{cohorts: cohorts}
}

func (r *Registry) ProjectsFor(name string) ([]int64, bool) {
	ids, ok := r.cohorts[name]
	if !ok || len(ids) == 0 {
		return nil, false
	}
	// Callers must not mutate the shared config slice.
	out := make([]int64, len(ids))
	copy(out, ids)
	return out, true
}
