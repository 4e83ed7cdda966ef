// Sentinel errors shared by every storage implementation.  Higher layers
// match on these with errors.Is rather than on driver-specific codes.
package storage

import "errors"

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a transaction loses a write conflict
// (deadlock, lock wait timeout).  The coordinator retries a bounded
// number of times on this error.
var ErrConflict = errors.New("write conflict")

// ErrDuplicate is returned when a uniqueness constraint is violated,
// e.g. registering an email twice.
var ErrDuplicate = errors.New("duplicate")
