package allocation

import (
	"errors"
	"fmt"
)

// ErrMissingTargets is returned when a stratification feature has no targets.
var ErrMissingTargets = errors.New("allocation: feature has no targets")

// CapacityError reports that the pool cannot fill the requested panels.
type CapacityError struct {
	Requested int
	Available int
}

// Shortfall is how many records the pool is missing.
func (e *CapacityError) Shortfall() int {
	return e.Requested - e.Available
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("allocation: %d records requested but only %d available (short by %d)",
		e.Requested, e.Available, e.Shortfall())
}

// InsufficientSamplesWarning marks a draw that ran out of candidates. It is
// attached to results rather than returned, so callers decide whether to
// escalate it.
type InsufficientSamplesWarning struct {
	Requested int `json:"requested"`
	Selected  int `json:"selected"`
}

func (w *InsufficientSamplesWarning) Error() string {
	return fmt.Sprintf("allocation: only %d of %d requested records were available", w.Selected, w.Requested)
}
