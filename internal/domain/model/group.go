package model

// GroupStatus mirrors the status column of error_groups. Only unresolved
// groups are eligible for backfill; group ids are monotonic per
// installation, which is what makes id-ordered cursor paging safe.
type GroupStatus int16

const (
	GroupStatusUnresolved GroupStatus = iota
	GroupStatusResolved
	GroupStatusIgnored
)
