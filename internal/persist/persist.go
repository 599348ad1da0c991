// Package persist reads and writes the on-disk catalog snapshot and the
// sync-state sidecar. Writes are atomic: data lands in a temp file in the
// target directory and is renamed into place, so a crashed or rolled-back
// run can never leave a half-written snapshot behind.
package persist

import (
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/quantmap/quantmap/pkg/catalogs"
	"github.com/quantmap/quantmap/pkg/errors"
	"github.com/quantmap/quantmap/pkg/syncer"
)

const (
	// SnapshotFile is the catalog snapshot filename inside the store dir.
	SnapshotFile = "catalog.yaml"
	// StateFile is the sync-state sidecar filename inside the store dir.
	StateFile = "sync-state.yaml"

	dirPermissions  = 0o755
	filePermissions = 0o644
)

// Store persists snapshots and sync state under a single directory.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir. The directory is created on
// first write, not here.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// LoadCatalog reads the previous catalog snapshot. A missing snapshot is
// not an error: it returns an empty catalog, which forces the first run
// into full mode.
func (s *Store) LoadCatalog() (*catalogs.Catalog, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, SnapshotFile))
	if err != nil {
		if os.IsNotExist(err) {
			return catalogs.New(), nil
		}
		return nil, errors.WrapIO("read", SnapshotFile, err)
	}
	var snap catalogs.Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, errors.WrapParse("yaml", SnapshotFile, err)
	}
	return snap.Catalog(), nil
}

// SaveCatalog writes the catalog snapshot atomically. The caller decides
// when a run is allowed to commit; this only performs the write.
func (s *Store) SaveCatalog(cat *catalogs.Catalog, now time.Time) error {
	snap := cat.Snapshot(now)
	data, err := yaml.Marshal(snap)
	if err != nil {
		return errors.WrapParse("yaml", SnapshotFile, err)
	}
	return s.writeAtomic(SnapshotFile, data)
}

// LoadState reads the sync-state sidecar. A missing sidecar yields the
// zero state.
func (s *Store) LoadState() (syncer.State, error) {
	var state syncer.State
	data, err := os.ReadFile(filepath.Join(s.dir, StateFile))
	if err != nil {
		if os.IsNotExist(err) {
			return state, nil
		}
		return state, errors.WrapIO("read", StateFile, err)
	}
	if err := yaml.Unmarshal(data, &state); err != nil {
		return state, errors.WrapParse("yaml", StateFile, err)
	}
	return state, nil
}

// SaveState writes the sync-state sidecar atomically.
func (s *Store) SaveState(state syncer.State) error {
	data, err := yaml.Marshal(state)
	if err != nil {
		return errors.WrapParse("yaml", StateFile, err)
	}
	return s.writeAtomic(StateFile, data)
}

// writeAtomic writes data to name via a temp file and rename. The temp
// file lives in the same directory so the rename stays on one filesystem.
func (s *Store) writeAtomic(name string, data []byte) error {
	if err := os.MkdirAll(s.dir, dirPermissions); err != nil {
		return errors.WrapIO("create", s.dir, err)
	}
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return errors.WrapIO("create", name, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.WrapIO("write", name, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapIO("close", name, err)
	}
	if err := os.Chmod(tmpName, filePermissions); err != nil {
		return errors.WrapIO("chmod", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		return errors.WrapIO("rename", name, err)
	}
	return nil
}
