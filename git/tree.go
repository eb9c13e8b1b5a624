package git

import (
	"errors"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// treeEntry is a leaf of a flattened tree: a blob, symlink or gitlink.
type treeEntry struct {
	Hash plumbing.Hash
	Mode filemode.FileMode
}

func (e *treeEntry) equal(other *treeEntry) bool {
	if e == nil || other == nil {
		return e == nil && other == nil
	}
	return e.Hash == other.Hash && e.Mode == other.Mode
}

// isRegular reports whether mode describes file content that can be line-merged.
func isRegular(mode filemode.FileMode) bool {
	return mode == filemode.Regular || mode == filemode.Executable || mode == filemode.Deprecated
}

// flattenTree maps every leaf path in tree to its entry. A nil tree is empty.
func flattenTree(tree *object.Tree) (map[string]*treeEntry, error) {
	entries := make(map[string]*treeEntry)
	if tree == nil {
		return entries, nil
	}

	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()

	for {
		name, entry, err := walker.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, WrapError(err, "failed to walk tree")
		}
		if entry.Mode == filemode.Dir {
			continue
		}
		entries[name] = &treeEntry{Hash: entry.Hash, Mode: entry.Mode}
	}

	return entries, nil
}

// readBlob returns the content of the blob with the given hash.
func (r *Repo) readBlob(hash plumbing.Hash) ([]byte, error) {
	blob, err := r.repo.BlobObject(hash)
	if err != nil {
		return nil, WrapErrorf(err, "failed to read blob %s", hash)
	}

	reader, err := blob.Reader()
	if err != nil {
		return nil, WrapErrorf(err, "failed to open blob %s", hash)
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, WrapErrorf(err, "failed to read blob %s", hash)
	}
	return content, nil
}

// writeBlob stores content in the object database.
func (r *Repo) writeBlob(content []byte) (plumbing.Hash, error) {
	obj := r.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(content)))

	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, WrapError(err, "failed to open blob writer")
	}
	if _, err := w.Write(content); err != nil {
		_ = w.Close()
		return plumbing.ZeroHash, WrapError(err, "failed to write blob")
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, WrapError(err, "failed to close blob writer")
	}

	hash, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, WrapError(err, "failed to store blob")
	}
	return hash, nil
}

// dirNode collects the entries of one directory while a tree is rebuilt.
type dirNode struct {
	files map[string]*treeEntry
	dirs  map[string]*dirNode
}

func newDirNode() *dirNode {
	return &dirNode{files: map[string]*treeEntry{}, dirs: map[string]*dirNode{}}
}

// writeTree stores the nested trees for a flat path→entry map and returns
// the root tree hash. Nothing is written when a path is used both as a file
// and as a directory.
func (r *Repo) writeTree(entries map[string]*treeEntry) (plumbing.Hash, error) {
	root := newDirNode()
	for p, e := range entries {
		node := root
		dir, file := path.Split(p)
		for _, part := range strings.Split(strings.TrimSuffix(dir, "/"), "/") {
			if part == "" {
				continue
			}
			if _, isFile := node.files[part]; isFile {
				return plumbing.ZeroHash, WrapErrorf(ErrInvalidTree, "%s is both a file and a directory", p)
			}
			child, ok := node.dirs[part]
			if !ok {
				child = newDirNode()
				node.dirs[part] = child
			}
			node = child
		}
		if _, isDir := node.dirs[file]; isDir {
			return plumbing.ZeroHash, WrapErrorf(ErrInvalidTree, "%s is both a file and a directory", p)
		}
		node.files[file] = e
	}

	return r.writeDirNode(root)
}

func (r *Repo) writeDirNode(node *dirNode) (plumbing.Hash, error) {
	tree := &object.Tree{}

	for name, child := range node.dirs {
		hash, err := r.writeDirNode(child)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		tree.Entries = append(tree.Entries, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: hash})
	}
	for name, e := range node.files {
		tree.Entries = append(tree.Entries, object.TreeEntry{Name: name, Mode: e.Mode, Hash: e.Hash})
	}

	// git orders entries bytewise with directories compared as "name/".
	sort.Slice(tree.Entries, func(i, j int) bool {
		return treeSortKey(tree.Entries[i]) < treeSortKey(tree.Entries[j])
	})

	obj := r.repo.Storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, WrapError(err, "failed to encode tree")
	}

	hash, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, WrapError(err, "failed to store tree")
	}
	return hash, nil
}

func treeSortKey(e object.TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}
