package model

// EventRef is one row from the columnar event index: the newest event known
// for a group. It only carries enough to resolve the payload blob.
type EventRef struct {
	GroupID int64
	EventID string
}

// EventSnapshot is the resolved stacktrace payload for one group's
// representative event, joined from the event index and the payload store.
// Every snapshot handed to the scorer is complete: a group whose payload is
// missing or has no usable stacktrace is dropped upstream instead.
type EventSnapshot struct {
	GroupID       int64  `json:"group_id"`
	EventID       string `json:"event_id"`
	Hash          string `json:"hash"`
	Message       string `json:"message"`
	ExceptionType string `json:"exception_type"`
	Stacktrace    string `json:"stacktrace"`
}

// Usable reports whether the snapshot carries enough to score.
func (s EventSnapshot) Usable() bool {
	return s.Stacktrace != "" && s.Hash != ""
}
