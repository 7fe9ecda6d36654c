package primitives

import (
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
)

// Filepath is a type-safe wrapper around file paths used for heap files and
// the log.
//
// Example usage:
//
//	dataDir := primitives.Filepath("/data")
//	tablePath := dataDir.Join("users.dat")
//	if tablePath.Exists() {
//	    tablePath.Remove()
//	}
type Filepath string

// TableID derives a stable identifier from the cleaned path.
//
// The storage engine never uses this for addressing; tables get their IDs
// from the catalog. It exists for offline tools that inspect a single heap
// file and need some table ID to build page IDs with.
func (f Filepath) TableID() TableID {
	id := TableID(xxhash.Sum64String(filepath.Clean(string(f))))
	if id == InvalidTableID {
		return 1
	}
	return id
}

func (f Filepath) Dir() string {
	return filepath.Dir(string(f))
}

func (f Filepath) String() string {
	return string(f)
}

func (f Filepath) Join(elem ...string) Filepath {
	parts := append([]string{string(f)}, elem...)
	return Filepath(filepath.Join(parts...))
}

func (f Filepath) Base() string {
	return filepath.Base(string(f))
}

func (f Filepath) Exists() bool {
	_, err := os.Stat(string(f))
	return err == nil
}

// Remove deletes the file. Removing a file that does not exist is a no-op.
func (f Filepath) Remove() error {
	if !f.Exists() {
		return nil
	}
	return os.Remove(string(f))
}

func (f Filepath) IsEmpty() bool {
	return string(f) == ""
}

// MkdirAll creates the directory containing the path.
func (f Filepath) MkdirAll() error {
	return os.MkdirAll(f.Dir(), 0o750)
}
