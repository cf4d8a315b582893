// Package store persists one update record per (package, dist-tag) pair as
// a JSON file.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/git-pkgs/updatecheck/fsutil"
	"github.com/git-pkgs/updatecheck/internal/core"
)

// DefaultDir returns the default record directory under the OS temp dir.
func DefaultDir() string {
	return filepath.Join(os.TempDir(), "updatecheck")
}

var nameReplacer = strings.NewReplacer("/", "-", "\\", "-")

// FileName returns the record file name for a package and dist-tag.
func FileName(name, distTag string) string {
	return nameReplacer.Replace(name) + "-" + distTag + ".json"
}

// Store reads and writes records under a base directory.
type Store struct {
	dir    string
	writer *fsutil.Writer
}

// New creates a Store rooted at dir. An empty dir uses DefaultDir and a nil
// writer uses the OS filesystem with system ownership.
func New(dir string, w *fsutil.Writer) *Store {
	if dir == "" {
		dir = DefaultDir()
	}
	if w == nil {
		w = fsutil.NewWriter(nil, nil)
	}
	return &Store{dir: dir, writer: w}
}

// Path returns the record path for a package and dist-tag.
func (s *Store) Path(name, distTag string) string {
	return filepath.Join(s.dir, FileName(name, distTag))
}

// Load returns the record at path. A missing, unreadable or malformed file
// yields an empty record, never an error.
func (s *Store) Load(path string) core.Record {
	data, err := readFile(s.writer, path)
	if err != nil {
		return core.Record{}
	}
	var rec core.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return core.Record{}
	}
	return rec
}

// Save replaces the record at path, creating parent directories as needed.
func (s *Store) Save(path string, rec core.Record, opts ...fsutil.Option) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	if err := s.writer.WriteFile(path, append(data, '\n'), opts...); err != nil {
		return fmt.Errorf("saving record: %w", err)
	}
	return nil
}

func readFile(w *fsutil.Writer, path string) ([]byte, error) {
	fi, err := w.Fs().Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return afero.ReadFile(w.Fs(), path)
}
