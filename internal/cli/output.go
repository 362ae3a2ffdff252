package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// encodeResult writes v as JSON to w, indented unless compact is set.
func encodeResult(w io.Writer, v any, compact bool) error {
	enc := json.NewEncoder(w)
	if !compact {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// writeResult writes v as JSON to path, or to w when path is empty.
func writeResult(w io.Writer, path string, v any, compact bool) error {
	if path == "" {
		return encodeResult(w, v, compact)
	}
	f, err := createExclusive(path)
	if err != nil {
		return err
	}

	writeErr := func() error {
		defer func() { _ = f.Close() }()
		return encodeResult(f, v, compact)
	}()

	if writeErr != nil {
		_ = os.Remove(path)
		return writeErr
	}
	return nil
}

// createExclusive creates path for writing.
// It fails if the file already exists (O_EXCL), preventing accidental overwrites.
func createExclusive(path string) (*os.File, error) {
	// #nosec G302 G304 -- user-specified output file with standard permissions
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("output file already exists: %s: %w", path, ErrOutputExists)
		}
		return nil, fmt.Errorf("cannot create output file: %w", err)
	}
	return f, nil
}

// readInput reads path, or r when path is empty or "-".
func readInput(r io.Reader, path string) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("cannot read stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(path) // #nosec G304 -- user-specified input file
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("cannot read input file: %w", err)
	}
	return data, nil
}
