// Package fsbridge lets go-git run on the project's fs.Filesystem.
package fsbridge

import (
	"fmt"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/canoup/canoup/fs"
)

// MinCacheSize is used when a non-positive object cache size is requested.
const MinCacheSize = 100

// rawer is implemented by filesystems backed by billy, such as fs/billy.FS.
type rawer interface {
	Raw() billy.Filesystem
}

// ToBillyFilesystem returns the billy filesystem behind fsys.
//
//nolint:ireturn // go-git consumes billy.Filesystem
func ToBillyFilesystem(fsys fs.Filesystem) (billy.Filesystem, error) {
	r, ok := fsys.(rawer)
	if !ok {
		return nil, fmt.Errorf("filesystem %T is not backed by billy", fsys)
	}
	return r.Raw(), nil
}

// NewStorage creates git object storage over dotGit with an LRU object
// cache of cacheSize entries. exclusive tells go-git that no other process
// touches the repository, which holds while the update lock is held.
func NewStorage(dotGit billy.Filesystem, cacheSize int, exclusive bool) *filesystem.Storage {
	if cacheSize <= 0 {
		cacheSize = MinCacheSize
	}

	objCache := cache.NewObjectLRU(cache.FileSize(cacheSize))
	return filesystem.NewStorageWithOptions(dotGit, objCache, filesystem.Options{
		ExclusiveAccess: exclusive,
	})
}
