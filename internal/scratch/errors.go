package scratch

import "errors"

// ErrRunClosed indicates a path was requested after the run was cleaned up.
var ErrRunClosed = errors.New("scratch run already cleaned up")

// ErrInvalidRole indicates a role name that is empty or contains a separator.
var ErrInvalidRole = errors.New("invalid scratch role")

// ErrCleanup indicates a scratch file could not be removed.
var ErrCleanup = errors.New("scratch cleanup failed")
