package services

import "errors"

var (
	// ErrCommitConflict means the store rejected a commit because the task
	// changed or disappeared elsewhere. Callers roll the optimistic local
	// change back to the last confirmed state.
	ErrCommitConflict = errors.New("task changed elsewhere")

	ErrInvalidStatus   = errors.New("invalid task status")
	ErrInvalidPriority = errors.New("invalid task priority")
)
