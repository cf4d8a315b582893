// Package fsutil creates directories and writes files while preserving the
// ownership of the nearest existing parent directory.
//
// When the process runs privileged (for example a global install run under
// sudo), files it creates would normally be owned by root and become
// unwritable for the invoking user. Writer re-applies the owner of the closest
// pre-existing directory to the target and to every directory it created.
//
//	w := fsutil.NewWriter(nil, nil)
//	err := w.WriteFile("/home/me/.cache/tool/meta.json", data)
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

const (
	defaultDirMode  os.FileMode = 0o777
	defaultFileMode os.FileMode = 0o644
)

// Ownership is the privilege and ownership capability used by Writer.
// It is an explicit value rather than process globals so the propagation
// logic can be exercised without real privilege.
type Ownership interface {
	// Privileged reports whether ownership must be propagated at all.
	Privileged() bool

	// Owner returns the owning user and group of path without following a
	// final symlink. ok is false if the owner cannot be determined.
	Owner(path string) (uid, gid int, ok bool)

	// Lchown changes the owner of path itself, not of a symlink target.
	Lchown(path string, uid, gid int) error
}

type options struct {
	applyOwner bool
	hasOwner   bool
	uid        int
	gid        int
	dirMode    os.FileMode
	fileMode   os.FileMode
}

// Option configures a single EnsureDir or WriteFile call.
type Option func(*options)

// ApplyOwner toggles ownership propagation. It defaults to true.
func ApplyOwner(apply bool) Option {
	return func(o *options) {
		o.applyOwner = apply
	}
}

// WithOwner sets an explicit owner, overriding the owner inferred from the
// nearest existing directory.
func WithOwner(uid, gid int) Option {
	return func(o *options) {
		o.hasOwner = true
		o.uid = uid
		o.gid = gid
	}
}

// WithDirMode sets the permission bits for created directories.
func WithDirMode(mode os.FileMode) Option {
	return func(o *options) {
		o.dirMode = mode
	}
}

// WithFileMode sets the permission bits for written files.
func WithFileMode(mode os.FileMode) Option {
	return func(o *options) {
		o.fileMode = mode
	}
}

func newOptions(opts []Option) options {
	o := options{
		applyOwner: true,
		dirMode:    defaultDirMode,
		fileMode:   defaultFileMode,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Writer performs ownership-preserving filesystem operations.
type Writer struct {
	fs  afero.Fs
	own Ownership
}

// NewWriter creates a Writer. A nil fs uses the OS filesystem and a nil
// ownership uses SystemOwnership.
func NewWriter(fs afero.Fs, own Ownership) *Writer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if own == nil {
		own = SystemOwnership()
	}
	return &Writer{fs: fs, own: own}
}

// Fs returns the underlying filesystem.
func (w *Writer) Fs() afero.Fs {
	return w.fs
}

// EnsureDir creates dir and any missing parents.
func (w *Writer) EnsureDir(dir string, opts ...Option) error {
	o := newOptions(opts)
	return w.execute(dir, o, func() error {
		return w.fs.MkdirAll(dir, o.dirMode)
	})
}

// WriteFile writes data to path, creating parent directories as needed.
// The file is written to a temporary sibling and renamed into place so that
// readers never observe a partial write.
func (w *Writer) WriteFile(path string, data []byte, opts ...Option) error {
	o := newOptions(opts)
	return w.execute(path, o, func() error {
		dir := filepath.Dir(path)
		if err := w.fs.MkdirAll(dir, o.dirMode); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
		return w.replace(dir, path, data, o.fileMode)
	})
}

func (w *Writer) replace(dir, path string, data []byte, mode os.FileMode) error {
	tmp, err := afero.TempFile(w.fs, dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = w.fs.Chmod(tmpName, mode)
	}
	if err == nil {
		err = w.fs.Rename(tmpName, path)
	}
	if err != nil {
		_ = w.fs.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// execute runs fn and, when privileged, propagates ownership to dest and the
// directories fn created. The owner comes from WithOwner or, failing that,
// from the nearest existing directory. Ownership failures are never returned.
func (w *Writer) execute(dest string, o options, fn func() error) error {
	if !o.applyOwner || !w.own.Privileged() {
		return fn()
	}

	dest, err := filepath.Abs(dest)
	if err != nil {
		return fn()
	}

	origin := w.nearestDir(dest)
	uid, gid := o.uid, o.gid
	if !o.hasOwner {
		var ok bool
		if uid, gid, ok = w.own.Owner(origin); !ok {
			return fn()
		}
	}

	if err := fn(); err != nil {
		return err
	}

	w.propagate(dest, origin, uid, gid)
	return nil
}

// nearestDir walks up from path to the first existing directory. Everything
// below it is created by the pending operation.
func (w *Writer) nearestDir(path string) string {
	for dir := path; ; {
		if fi, err := w.lstat(dir); err == nil && fi.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

// propagate walks from dest up to (excluding) origin, changing the owner of
// every segment not already owned by uid. It stops at the first failure.
func (w *Writer) propagate(dest, origin string, uid, gid int) {
	for p := dest; p != origin; {
		cur, _, ok := w.own.Owner(p)
		if !ok || cur == uid {
			return
		}
		if err := w.own.Lchown(p, uid, gid); err != nil {
			return
		}
		parent := filepath.Dir(p)
		if parent == p {
			return
		}
		p = parent
	}
}

func (w *Writer) lstat(path string) (os.FileInfo, error) {
	if l, ok := w.fs.(afero.Lstater); ok {
		fi, _, err := l.LstatIfPossible(path)
		return fi, err
	}
	return w.fs.Stat(path)
}
