// Package fs defines the filesystem abstraction canoup works through.
// The mirror repository, its git directory and the installed-artifact marker
// are all reached via a Filesystem so that tests can swap in memory.
package fs

import (
	"fmt"
	"os"
	"path/filepath"
)

// Filesystem is the subset of filesystem operations canoup needs.
// Implementations should behave consistently with the standard library.
type Filesystem interface {
	Exists(path string) (bool, error)
	MkdirAll(path string, perm os.FileMode) error
	ReadFile(path string) ([]byte, error)
	Remove(name string) error
	Stat(name string) (os.FileInfo, error)
	WriteFile(filename string, data []byte, perm os.FileMode) error
}

// GetAbs returns path as an absolute path on the host filesystem.
func GetAbs(path string) (string, error) {
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("fs: abs %q: %w", path, err)
	}
	return abs, nil
}
