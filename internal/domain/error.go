package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrProjectNotFound = errors.New("project not found")
	ErrScoringFailed   = errors.New("similarity scoring failed")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrQueueEmpty      = errors.New("task queue empty")
	ErrLockHeld        = errors.New("project lock held")
)
