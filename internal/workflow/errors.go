package workflow

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an assignment, redemption, task, reward or
// member id does not resolve.
var ErrNotFound = errors.New("not found")

// ErrUnavailable is returned when a reward is switched off or out of stock.
var ErrUnavailable = errors.New("reward unavailable")

// ErrPhotoRequired is returned when a submission for a photo-required task
// carries no photo.
var ErrPhotoRequired = errors.New("photo evidence required")

// InvalidTransitionError is returned when an operation is called from a
// state that does not permit it. A repeated approval fails with this rather
// than silently succeeding, so the caller knows no change occurred.
type InvalidTransitionError struct {
	Entity string
	From   string
	Action string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s cannot %s from status %s", e.Entity, e.Action, e.From)
}
