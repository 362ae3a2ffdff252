package cli

import "errors"

// CLI-specific sentinel errors.
// These are validation/usage errors that don't belong to domain packages.

var (
	// ErrFileNotFound indicates the specified input file does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrOutputExists indicates the output file already exists.
	ErrOutputExists = errors.New("output file already exists")

	// ErrEmptyInput indicates an input file or stream without content.
	ErrEmptyInput = errors.New("input is empty")

	// ErrDoctorFailed indicates at least one environment check failed.
	ErrDoctorFailed = errors.New("environment check failed")
)
