package grading

import "errors"

var (
	ErrSnapshotLocked   = errors.New("grading: snapshot is locked")
	ErrSnapshotNotFound = errors.New("grading: snapshot not found")
	ErrMissingStaff     = errors.New("grading: staff id is required")
	ErrInvalidMonth     = errors.New("grading: invalid month")
)
