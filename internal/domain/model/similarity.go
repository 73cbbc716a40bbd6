package model

// ScoreOutcome is the similarity service's verdict for a single group:
// either a fresh grouping-record hash, or a pointer at an existing parent
// group it matched against.
type ScoreOutcome struct {
	GroupID            int64  `json:"group_id"`
	GroupingRecordHash string `json:"grouping_record_hash"`
	SimilarGroupID     *int64 `json:"similar_group_id,omitempty"`
}

// BatchScoreResult is the joined result of scoring one batch. Outcomes is
// keyed by group id so callers are independent of completion order. There is
// no partial credit: when Success is false the outcomes map must not be
// persisted, and Reason says why the batch failed.
type BatchScoreResult struct {
	Success  bool
	Reason   string
	Outcomes map[int64]ScoreOutcome
}
