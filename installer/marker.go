package installer

import (
	"github.com/canoup/canoup/errors"
	"github.com/canoup/canoup/fs"
)

// MarkerExists reports whether the installed artifact is present. Its
// absence forces a build even when the mirror is up to date.
func MarkerExists(fsys fs.Filesystem, path string) (bool, error) {
	ok, err := fsys.Exists(path)
	if err != nil {
		return false, errors.Wrapf(err, errors.CodeInvalidConfig, "failed to check installed marker %s", path)
	}
	return ok, nil
}
