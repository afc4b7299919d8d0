// Package session persists flow snapshots as pretty-printed JSON files,
// one per session, under a sessions directory. Snapshots are full-file
// rewrites; the file layout is the on-disk compatibility surface for
// resuming interrupted runs.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	maestro "github.com/maestroflow/maestro"
)

// Store writes sessions/<id>.json snapshot files.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir (usually "sessions"). The
// directory is created on first save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Has reports whether a snapshot exists for the session.
func (s *Store) Has(id string) bool {
	_, err := os.Stat(s.path(id))
	return err == nil
}

// Save rewrites the session file with the given snapshot.
func (s *Store) Save(id string, snap maestro.Snapshot) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create sessions dir: %w", err)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(s.path(id), data, 0o644); err != nil {
		return fmt.Errorf("write session %s: %w", id, err)
	}
	return nil
}

// Load reads the snapshot for the session.
func (s *Store) Load(id string) (maestro.Snapshot, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return maestro.Snapshot{}, fmt.Errorf("read session %s: %w", id, err)
	}
	var snap maestro.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return maestro.Snapshot{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return snap, nil
}

// compile-time check
var _ maestro.SnapshotStore = (*Store)(nil)
