package fileutils

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// WriteFileAtomic writes r to path through a temp file in the same directory
// so readers never observe a partially written file. Parent directories are
// created as needed.
func WriteFileAtomic(path string, r io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, errors.WithStack(err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return 0, errors.WithStack(err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return 0, errors.WithStack(err)
	}
	if err := tmp.Close(); err != nil {
		return 0, errors.WithStack(err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return 0, errors.WithStack(err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, errors.WithStack(err)
	}
	return n, nil
}

// RemoveEmptyParents removes empty directories from dir up to, but not
// including, root.
func RemoveEmptyParents(dir, root string) {
	root = filepath.Clean(root)
	for dir = filepath.Clean(dir); dir != root && len(dir) > len(root); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			return
		}
	}
}
