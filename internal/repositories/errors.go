package repositories

import "errors"

// ErrNotFound is returned when a record does not exist or belongs to
// another user.
var ErrNotFound = errors.New("record not found")
