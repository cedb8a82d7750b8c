// Package workdir manages folio's home directory and per-run scratch
// directories.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	// DefaultDirName is the default name for the folio home directory.
	DefaultDirName = ".folio"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	runPrefix = "folio-run-"
)

// Home represents the folio home directory.
type Home struct {
	path string
}

// NewHome creates a Home with the given path.
// If path is empty, uses the default (~/.folio).
func NewHome(path string) (*Home, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}
	return &Home{path: path}, nil
}

// Path returns the root path of the home directory.
func (h *Home) Path() string {
	return h.path
}

// ConfigPath returns the path to the default config file.
func (h *Home) ConfigPath() string {
	return filepath.Join(h.path, ConfigFileName)
}

// ConfigExists returns true if the config file exists in the home directory.
func (h *Home) ConfigExists() bool {
	_, err := os.Stat(h.ConfigPath())
	return err == nil
}

// EnsureExists creates the home directory if it doesn't exist.
func (h *Home) EnsureExists() error {
	if err := os.MkdirAll(h.path, 0o755); err != nil {
		return fmt.Errorf("failed to create home directory: %w", err)
	}
	return nil
}

// Run is the scratch directory of one processing run.
type Run struct {
	ID   string
	path string
	keep bool
}

// NewRun creates a uniquely named scratch directory under parent (the
// system temp dir when empty). When keep is true Cleanup leaves it in place.
func NewRun(parent string, keep bool) (*Run, error) {
	if parent == "" {
		parent = os.TempDir()
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	id := uuid.New().String()
	r := &Run{ID: id, path: filepath.Join(parent, runPrefix+id), keep: keep}
	if err := os.MkdirAll(r.SourceDir(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	return r, nil
}

// Path returns the root of the run directory.
func (r *Run) Path() string {
	return r.path
}

// SourceDir holds the fetched input and every file derived from it.
func (r *Run) SourceDir() string {
	return filepath.Join(r.path, "source")
}

// Cleanup removes the run directory unless it was created with keep.
func (r *Run) Cleanup() error {
	if r.keep {
		return nil
	}
	if err := os.RemoveAll(r.path); err != nil {
		return fmt.Errorf("failed to remove run directory: %w", err)
	}
	return nil
}
