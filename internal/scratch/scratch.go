// Package scratch manages run-scoped temporary files.
//
// A Store hands out Runs. Each Run has a unique identifier and allocates
// paths under the store directory named "lipsync-<runID>-<role>". Every path
// a Run allocates is removed exactly once: either early through Release or at
// the end of the run through Cleanup, which callers defer.
package scratch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultPrefix is prepended to every scratch file name.
const DefaultPrefix = "lipsync-"

// filePerm is the permission mode for scratch files; they hold user audio.
const filePerm = 0600

// dirPerm is the permission mode for a scratch directory created by NewStore.
const dirPerm = 0750

// fileRemover removes files.
type fileRemover interface {
	Remove(name string) error
}

// fileWriter writes files.
type fileWriter interface {
	WriteFile(name string, data []byte, perm os.FileMode) error
}

// osFiles implements fileRemover and fileWriter using the os package.
type osFiles struct{}

func (osFiles) Remove(name string) error {
	return os.Remove(name)
}

func (osFiles) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

// Store allocates run-scoped scratch namespaces under a single directory.
type Store struct {
	dir    string
	newID  func() string
	remove fileRemover
	write  fileWriter
	log    logrus.FieldLogger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithIDFunc sets the run identifier generator (for testing).
func WithIDFunc(fn func() string) StoreOption {
	return func(s *Store) { s.newID = fn }
}

// WithFileRemover sets the file remover implementation.
func WithFileRemover(r fileRemover) StoreOption {
	return func(s *Store) { s.remove = r }
}

// WithFileWriter sets the file writer implementation.
func WithFileWriter(w fileWriter) StoreOption {
	return func(s *Store) { s.write = w }
}

// WithLogger sets the logger receiving cleanup warnings.
func WithLogger(l logrus.FieldLogger) StoreOption {
	return func(s *Store) { s.log = l }
}

// NewStore creates a Store rooted at dir, creating dir if needed.
// An empty dir selects os.TempDir().
func NewStore(dir string, opts ...StoreOption) (*Store, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("cannot create scratch directory %s: %w", dir, err)
	}

	s := &Store{
		dir:    dir,
		newID:  uuid.NewString,
		remove: osFiles{},
		write:  osFiles{},
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the scratch directory.
func (s *Store) Dir() string {
	return s.dir
}

// NewRun starts a new scratch namespace with a fresh identifier.
func (s *Store) NewRun() *Run {
	return &Run{
		id:    s.newID(),
		store: s,
		state: make(map[string]bool),
	}
}

// Run is one run's scratch namespace. It is safe for concurrent use.
type Run struct {
	id    string
	store *Store

	mu     sync.Mutex
	paths  []string        // allocation order
	state  map[string]bool // path -> already removed
	closed bool
}

// ID returns the run identifier.
func (r *Run) ID() string {
	return r.id
}

// Path allocates and tracks the path for role. The file is not created.
// Allocating the same role twice returns the same path.
func (r *Run) Path(role string) (string, error) {
	if role == "" || strings.ContainsAny(role, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	p := filepath.Join(r.store.dir, DefaultPrefix+r.id+"-"+role)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", ErrRunClosed
	}
	if _, ok := r.state[p]; !ok {
		r.paths = append(r.paths, p)
		r.state[p] = false
	}
	return p, nil
}

// WriteFile allocates the path for role and writes data to it.
func (r *Run) WriteFile(role string, data []byte) (string, error) {
	p, err := r.Path(role)
	if err != nil {
		return "", err
	}
	if err := r.store.write.WriteFile(p, data, filePerm); err != nil {
		return "", fmt.Errorf("cannot write scratch file %s: %w", p, err)
	}
	return p, nil
}

// Release removes one allocated path now. Releasing an unknown or already
// removed path is a no-op. Failures are logged and returned.
func (r *Run) Release(p string) error {
	r.mu.Lock()
	removed, ok := r.state[p]
	if !ok || removed {
		r.mu.Unlock()
		return nil
	}
	r.state[p] = true
	r.mu.Unlock()

	return r.removeOne(p)
}

// Cleanup removes every path not yet removed and closes the run.
// It never stops at the first failure; failures are logged and joined.
// Calling Cleanup more than once is a no-op.
func (r *Run) Cleanup() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	var pending []string
	for _, p := range r.paths {
		if !r.state[p] {
			r.state[p] = true
			pending = append(pending, p)
		}
	}
	r.mu.Unlock()

	var errs []error
	for _, p := range pending {
		if err := r.removeOne(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Paths returns every path allocated so far, in allocation order.
func (r *Run) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

// removeOne removes p, treating an already missing file as success.
func (r *Run) removeOne(p string) error {
	err := r.store.remove.Remove(p)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	r.store.log.WithFields(logrus.Fields{
		"run_id": r.id,
		"path":   p,
	}).WithError(err).Warn("failed to remove scratch file")
	return fmt.Errorf("%w: %s: %w", ErrCleanup, p, err)
}
