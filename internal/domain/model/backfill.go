package model

import (
	"time"
)

// Transition names the state-machine step a backfill invocation took. It is
// returned by the pipeline for tests and operator visibility; the scheduling
// side effect has already happened by the time the caller sees it.
type Transition string

const (
	// TransitionBatchInProgress means more groups may remain in the current
	// project; the next invocation was enqueued with an advanced group cursor.
	TransitionBatchInProgress Transition = "batch_in_progress"
	// TransitionCohortAdvanced means the current project is exhausted and the
	// next project in the cohort was enqueued with a fresh group cursor.
	TransitionCohortAdvanced Transition = "cohort_advanced"
	// TransitionCohortExhausted means the project index ran past the end of
	// the cohort list. Terminal; nothing was enqueued.
	TransitionCohortExhausted Transition = "cohort_exhausted"
	// TransitionTerminated means a single-project run finished. Terminal.
	TransitionTerminated Transition = "terminated"
	// TransitionHalted means the invocation stopped without scheduling a
	// continuation: killswitch, disabled feature, or a scoring failure.
	// The cursor did not advance; a manual re-trigger resumes the work.
	TransitionHalted Transition = "halted"
)

// Terminal reports whether the walk is over (as opposed to merely this
// invocation being done).
func (t Transition) Terminal() bool {
	return t == TransitionTerminated || t == TransitionCohortExhausted || t == TransitionHalted
}

// Cohort identifies the ordered set of projects a backfill chain walks.
// Either Name references a configured cohort, or ProjectIDs lists the
// projects explicitly. A nil *Cohort means single-project mode.
type Cohort struct {
	Name       string  `json:"name,omitempty"`
	ProjectIDs []int64 `json:"project_ids,omitempty"`
}

// BackfillCursor is the complete resumption state of a backfill chain. It is
// the task payload of every invocation and the only durable job state; the
// next cursor is always derived fresh, never mutated in place.
type BackfillCursor struct {
	ProjectID int64 `json:"project_id"`
	// LastGroupID is the group-id high-water mark within ProjectID.
	// Nil on the first invocation for a project.
	LastGroupID *int64  `json:"last_group_id,omitempty"`
	Cohort      *Cohort `json:"cohort,omitempty"`
	// ProjectIndex is the position of ProjectID in the cohort's project list.
	// Cohort-only state: it is never consulted when Cohort is nil.
	ProjectIndex    *int `json:"project_index,omitempty"`
	OnlyDelete      bool `json:"only_delete,omitempty"`
	EnableIngestion bool `json:"enable_ingestion,omitempty"`
}

// TaskEnvelope wraps a cursor for transport on the task queue.
type TaskEnvelope struct {
	ID         string         `json:"id"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	NotBefore  time.Time      `json:"not_before,omitempty"`
	Cursor     BackfillCursor `json:"cursor"`
}
