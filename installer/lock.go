package installer

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/canoup/canoup/errors"
	"github.com/canoup/canoup/fs"
)

// acquireLock takes the single-instance lock at path without blocking. The
// lock directory is created through fsys. The returned func releases it.
func acquireLock(fsys fs.Filesystem, path string) (func() error, error) {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, errors.CodeInvalidConfig, "failed to create lock directory for %s", path)
	}

	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInternal, "acquiring lock %s", path)
	}
	if !locked {
		return nil, errors.New(errors.CodeConflict, fmt.Sprintf("another update is in progress (lock %s is held)", path))
	}

	return lock.Unlock, nil
}
