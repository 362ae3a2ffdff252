package command

import "errors"

// ErrNotFound indicates a required external tool is not installed or not on PATH.
var ErrNotFound = errors.New("tool not found")

// ErrTimeout is returned when an external tool does not exit within its timeout.
var ErrTimeout = errors.New("tool did not exit within timeout")

// ErrStart indicates an external tool could not be started.
var ErrStart = errors.New("cannot start tool")
