package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
)

// OSFileSystem writes snapshots to the local disk
type OSFileSystem struct{}

// NewOSFileSystem creates a new OS-based file system
func NewOSFileSystem() *OSFileSystem {
	return &OSFileSystem{}
}

// WriteFile replaces path with data. The data goes to a temp file in the
// same directory which is then renamed over path, so readers and
// interrupted runs never see a partial snapshot.
func (fs *OSFileSystem) WriteFile(path string, data []byte, perm int) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, os.FileMode(perm)); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Exists reports whether a snapshot file is already at path
func (fs *OSFileSystem) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// MkdirAll creates the snapshot directory and its parents
func (fs *OSFileSystem) MkdirAll(path string, perm int) error {
	return os.MkdirAll(path, os.FileMode(perm))
}
