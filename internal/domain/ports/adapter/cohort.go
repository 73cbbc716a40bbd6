package adapter

// CohortRegistry resolves a named cohort to its ordered project id list.
// Resolution happens on every continuation rather than once per chain, so a
// config change mid-walk takes effect at the next project boundary.
type CohortRegistry interface {
	ProjectsFor(name string) ([]int64, bool)
}
