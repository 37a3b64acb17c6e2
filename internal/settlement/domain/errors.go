package settlement

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDate      = errors.New("settlement: invalid date")
	ErrMissingSubmitter = errors.New("settlement: submitter required")
	ErrNotFound         = errors.New("settlement: not found")
	ErrAlreadyExists    = errors.New("settlement: already exists for store and date")
	ErrNilSettlement    = errors.New("settlement: nil settlement")
)

// TransitionError reports an illegal status transition.
type TransitionError struct {
	ID   string
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("settlement %s: cannot move from %s to %s", e.ID, e.From, e.To)
}

// ConcurrentModificationError reports a lost optimistic-concurrency race.
// The caller should reload and retry with the current version.
type ConcurrentModificationError struct {
	ID              string
	ExpectedVersion int
	ActualVersion   int
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("settlement %s: version %d is stale (current %d), reload and retry", e.ID, e.ExpectedVersion, e.ActualVersion)
}
