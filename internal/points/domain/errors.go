package points

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownReason  = errors.New("points: unknown reason code")
	ErrMissingStaff   = errors.New("points: staff id is required")
	ErrMissingRef     = errors.New("points: reference id is required")
	ErrManualPoints   = errors.New("points: manual adjustments carry caller-supplied points")
	ErrZeroAdjustment = errors.New("points: manual adjustment must be non-zero")
	ErrEntryNotFound  = errors.New("points: entry not found")
	ErrNilEntry       = errors.New("points: nil entry")
)

// DuplicateEntryError reports a replayed (staff, reference, reason) triple.
// The stored entry is returned alongside so callers can treat the replay as
// success.
type DuplicateEntryError struct {
	StaffID     string
	ReferenceID string
	Reason      ReasonCode
}

func (e *DuplicateEntryError) Error() string {
	return fmt.Sprintf("points: entry already recorded for staff %s reference %s reason %s", e.StaffID, e.ReferenceID, e.Reason)
}

// IsDuplicate reports whether err is a duplicate-entry conflict.
func IsDuplicate(err error) bool {
	var dup *DuplicateEntryError
	return errors.As(err, &dup)
}
