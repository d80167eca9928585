package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pinwise/pinwise-go/pkg/catalog"
	"github.com/pinwise/pinwise-go/pkg/project"
	"github.com/pinwise/pinwise-go/pkg/version"
)

// ErrIncompatibleSnapshot is returned when a snapshot was written in a
// format this build cannot read.
var ErrIncompatibleSnapshot = errors.New("incompatible snapshot")

// ErrProjectNotFound is returned when a stored project does not exist.
var ErrProjectNotFound = errors.New("project not found")

// Snapshot is the on-disk form of a project.
type Snapshot struct {
	// Format is the snapshot format version ("major.minor").
	Format string `json:"format"`

	// SavedAt is when the snapshot was written.
	SavedAt time.Time `json:"saved_at"`

	// Project is the saved project. Instance specs are stored by id only.
	Project *project.Project `json:"project"`
}

// FileStore manages a project snapshot in a JSON file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a new file store.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the snapshot file path.
func (s *FileStore) Path() string { return s.path }

// Save persists p to disk.
func (s *FileStore) Save(p *project.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Ensure parent directory exists
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	snap := Snapshot{Format: version.SnapshotFormat, SavedAt: time.Now().UTC(), Project: p}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	// Replace atomically.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads the project from disk and rebinds its specs against c.
// Returns nil, nil if the file doesn't exist (no project yet).
func (s *FileStore) Load(c *catalog.Catalog) (*project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(data, c)
}

// Clear removes the snapshot file.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func decodeSnapshot(data []byte, c *catalog.Catalog) (*project.Project, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if err := version.CanRead(snap.Format); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncompatibleSnapshot, err)
	}
	if snap.Project == nil {
		return nil, fmt.Errorf("%w: no project", ErrIncompatibleSnapshot)
	}
	if err := snap.Project.Rebind(c); err != nil {
		return nil, err
	}
	return snap.Project, nil
}
