package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"

	gobilly "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/canoup/canoup/git/internal/textmerge"
)

// oursLabel tags the local side in conflict markers.
const oursLabel = "HEAD"

// MergeResult is the outcome of a three-way merge. Exactly one of Commit
// and Conflicts is set.
type MergeResult struct {
	// Commit is the new merge commit when the merge was clean.
	Commit string

	// Conflicts lists the conflicted paths, sorted. The branch was not moved.
	Conflicts []string
}

// Clean reports whether the merge produced a commit.
func (m *MergeResult) Clean() bool {
	return len(m.Conflicts) == 0
}

// mergedPath is the merge outcome for one path.
type mergedPath struct {
	// entry is the resulting leaf, nil when the path is deleted. For merged
	// text its Hash is unset until the blob is written.
	entry *treeEntry

	// content holds newly produced file content, conflict markers included.
	content []byte

	conflict bool
}

// Merge performs a three-way merge of commit into branch. A clean merge
// creates a commit with parents [tip, commit], advances the branch and
// checks it out. A conflicted merge writes the merged state, conflict
// markers included, into the working tree along with MERGE_HEAD and
// MERGE_MSG, and leaves the branch where it was.
//
// Context timeout/cancellation is honored during the operation.
func (r *Repo) Merge(ctx context.Context, branch, commit string) (*MergeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, WrapError(err, "context cancelled")
	}

	if r.worktree == nil {
		return nil, WrapError(ErrBareRepository, "cannot merge in bare repository")
	}

	tip, err := r.branchTip(branch)
	if err != nil {
		return nil, err
	}

	fetched, err := r.commitObject(commit)
	if err != nil {
		return nil, err
	}

	bases, err := tip.MergeBase(fetched)
	if err != nil {
		return nil, wrapBoth(ErrResolveFailed, err, "failed to find merge base")
	}
	if len(bases) == 0 {
		return nil, WrapErrorf(ErrNoMergeBase, "%s and %s", tip.Hash, fetched.Hash)
	}
	base := pickMergeBase(bases)

	baseFiles, err := commitFiles(base)
	if err != nil {
		return nil, err
	}
	oursFiles, err := commitFiles(tip)
	if err != nil {
		return nil, err
	}
	theirsFiles, err := commitFiles(fetched)
	if err != nil {
		return nil, err
	}

	labels := textmerge.Labels{Ours: oursLabel, Theirs: shortID(fetched.Hash)}

	merged := make(map[string]*mergedPath)
	var conflicts []string
	for _, p := range unionPaths(baseFiles, oursFiles, theirsFiles) {
		if err := ctx.Err(); err != nil {
			return nil, WrapError(err, "context cancelled")
		}

		mp, err := r.mergePath(baseFiles[p], oursFiles[p], theirsFiles[p], labels)
		if err != nil {
			return nil, WrapErrorf(err, "failed to merge %s", p)
		}
		merged[p] = mp
		if mp.conflict {
			conflicts = append(conflicts, p)
		}
	}

	conflicts = append(conflicts, resolveDirectoryClashes(merged, oursFiles)...)
	conflicts = sortedUnique(conflicts)

	msg := fmt.Sprintf("Merge: %s into %s", fetched.Hash, tip.Hash)

	if len(conflicts) > 0 {
		if err := r.writeConflictState(merged, oursFiles); err != nil {
			return nil, err
		}
		if err := r.writeMergeState(fetched.Hash, msg, conflicts); err != nil {
			return nil, err
		}
		r.logger.WarnContext(ctx, "merge has conflicts",
			"branch", branch,
			"fetched", fetched.Hash.String(),
			"conflicts", conflicts)
		return &MergeResult{Conflicts: conflicts}, nil
	}

	mergeCommit, err := r.commitMerge(merged, tip, fetched, msg)
	if err != nil {
		return nil, err
	}

	refName := plumbing.NewBranchReferenceName(branch)
	oldRef := plumbing.NewHashReference(refName, tip.Hash)
	newRef := plumbing.NewHashReference(refName, mergeCommit)
	if err := r.setRef(newRef, oldRef); err != nil {
		return nil, err
	}

	if err := r.setHead(refName); err != nil {
		return nil, errors.Join(err, r.setRef(oldRef, newRef))
	}

	// The branch only stays on the merge commit once its tree is checked out.
	if err := r.worktree.Checkout(&git.CheckoutOptions{Branch: refName}); err != nil {
		err = WrapErrorf(err, "failed to check out merge result on %s", branch)
		return nil, errors.Join(err, r.setRef(oldRef, newRef))
	}

	reflogMsg := fmt.Sprintf("merge %s: Merge made by canoup.", fetched.Hash)
	if err := r.appendReflog(refName, tip.Hash, mergeCommit, r.signature(), reflogMsg); err != nil {
		return nil, err
	}

	if err := r.clearMergeState(); err != nil {
		return nil, err
	}

	r.logger.InfoContext(ctx, "merged",
		"branch", branch,
		"fetched", fetched.Hash.String(),
		"commit", mergeCommit.String())

	return &MergeResult{Commit: mergeCommit.String()}, nil
}

// mergePath resolves one path across base, ours and theirs. Any of the
// three may be nil, meaning the path is absent on that side.
func (r *Repo) mergePath(base, ours, theirs *treeEntry, labels textmerge.Labels) (*mergedPath, error) {
	switch {
	case ours.equal(theirs):
		return &mergedPath{entry: ours}, nil
	case base.equal(ours):
		return &mergedPath{entry: theirs}, nil
	case base.equal(theirs):
		return &mergedPath{entry: ours}, nil
	case ours == nil || theirs == nil:
		return r.mergeModifyDelete(ours, theirs, labels)
	case !isRegular(ours.Mode) || !isRegular(theirs.Mode):
		// Symlinks and gitlinks changed on both sides: keep ours.
		return &mergedPath{entry: ours, conflict: true}, nil
	}

	mode, modeConflict := mergeMode(base, ours, theirs)

	switch {
	case ours.Hash == theirs.Hash:
		return &mergedPath{entry: &treeEntry{Hash: ours.Hash, Mode: mode}, conflict: modeConflict}, nil
	case base != nil && base.Hash == ours.Hash:
		return &mergedPath{entry: &treeEntry{Hash: theirs.Hash, Mode: mode}, conflict: modeConflict}, nil
	case base != nil && base.Hash == theirs.Hash:
		return &mergedPath{entry: &treeEntry{Hash: ours.Hash, Mode: mode}, conflict: modeConflict}, nil
	}

	var baseContent []byte
	if base != nil && isRegular(base.Mode) {
		content, err := r.readBlob(base.Hash)
		if err != nil {
			return nil, err
		}
		baseContent = content
	}
	oursContent, err := r.readBlob(ours.Hash)
	if err != nil {
		return nil, err
	}
	theirsContent, err := r.readBlob(theirs.Hash)
	if err != nil {
		return nil, err
	}

	if textmerge.IsBinary(baseContent) || textmerge.IsBinary(oursContent) || textmerge.IsBinary(theirsContent) {
		return &mergedPath{entry: ours, conflict: true}, nil
	}

	result := textmerge.Merge(baseContent, oursContent, theirsContent, labels)
	return &mergedPath{
		entry:    &treeEntry{Mode: mode},
		content:  result.Content,
		conflict: modeConflict || !result.Clean(),
	}, nil
}

// mergeModifyDelete handles a path deleted on one side and changed on the
// other. The surviving content is kept between conflict markers.
func (r *Repo) mergeModifyDelete(ours, theirs *treeEntry, labels textmerge.Labels) (*mergedPath, error) {
	survivor := ours
	if survivor == nil {
		survivor = theirs
	}

	if !isRegular(survivor.Mode) {
		return &mergedPath{entry: survivor, conflict: true}, nil
	}

	content, err := r.readBlob(survivor.Hash)
	if err != nil {
		return nil, err
	}
	if textmerge.IsBinary(content) {
		return &mergedPath{entry: survivor, conflict: true}, nil
	}

	var marked []byte
	if ours != nil {
		marked = textmerge.Conflict(content, nil, labels)
	} else {
		marked = textmerge.Conflict(nil, content, labels)
	}

	return &mergedPath{entry: &treeEntry{Mode: survivor.Mode}, content: marked, conflict: true}, nil
}

// resolveDirectoryClashes finds result paths that are a file while another
// result path uses them as a directory. Every path involved is put back to
// its local state and marked conflicted; this repeats until the result can
// be written as a tree. It returns the paths it touched.
func resolveDirectoryClashes(merged map[string]*mergedPath, ours map[string]*treeEntry) []string {
	var touched []string
	for {
		clashes := directoryClashes(merged)
		if len(clashes) == 0 {
			return touched
		}
		for _, p := range clashes {
			merged[p] = &mergedPath{entry: ours[p], conflict: true}
		}
		touched = append(touched, clashes...)
	}
}

// directoryClashes returns, sorted, each surviving path that is also a
// parent directory of another surviving path, together with the paths
// beneath it.
func directoryClashes(merged map[string]*mergedPath) []string {
	clashing := make(map[string]struct{})
	for p, mp := range merged {
		if mp.entry == nil {
			continue
		}
		for dir := path.Dir(p); dir != "."; dir = path.Dir(dir) {
			if parent, ok := merged[dir]; ok && parent.entry != nil {
				clashing[dir] = struct{}{}
				clashing[p] = struct{}{}
			}
		}
	}

	paths := make([]string, 0, len(clashing))
	for p := range clashing {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// pickMergeBase chooses among the best common ancestors. Criss-cross
// history can yield several; the most recently committed one is used, ties
// broken by hash, so the result does not depend on traversal order.
func pickMergeBase(bases []*object.Commit) *object.Commit {
	best := bases[0]
	for _, c := range bases[1:] {
		switch {
		case c.Committer.When.After(best.Committer.When):
			best = c
		case c.Committer.When.Equal(best.Committer.When) && c.Hash.String() < best.Hash.String():
			best = c
		}
	}
	return best
}

// mergeMode picks the file mode for a path present on both sides. When both
// sides changed it differently the path is conflicted and keeps the local
// mode; the content is still merged, so the conflict shows only in the
// conflict list and MERGE_MSG unless the content conflicts as well.
func mergeMode(base, ours, theirs *treeEntry) (filemode.FileMode, bool) {
	switch {
	case ours.Mode == theirs.Mode:
		return ours.Mode, false
	case base != nil && base.Mode == ours.Mode:
		return theirs.Mode, false
	case base != nil && base.Mode == theirs.Mode:
		return ours.Mode, false
	default:
		return ours.Mode, true
	}
}

// commitMerge writes merged blobs, the merged tree and a two-parent commit.
func (r *Repo) commitMerge(merged map[string]*mergedPath, tip, fetched *object.Commit, msg string) (plumbing.Hash, error) {
	entries := make(map[string]*treeEntry, len(merged))
	for p, mp := range merged {
		if mp.entry == nil {
			continue
		}
		e := *mp.entry
		if mp.content != nil {
			hash, err := r.writeBlob(mp.content)
			if err != nil {
				return plumbing.ZeroHash, err
			}
			e.Hash = hash
		}
		entries[p] = &e
	}

	treeHash, err := r.writeTree(entries)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	sig := r.signature()
	c := &object.Commit{
		Author:       *sig,
		Committer:    *sig,
		Message:      msg,
		TreeHash:     treeHash,
		ParentHashes: []plumbing.Hash{tip.Hash, fetched.Hash},
	}

	obj := r.repo.Storer.NewEncodedObject()
	if err := c.Encode(obj); err != nil {
		return plumbing.ZeroHash, WrapError(err, "failed to encode merge commit")
	}

	hash, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, WrapError(err, "failed to store merge commit")
	}
	return hash, nil
}

// writeConflictState brings the working tree to the merged state: paths
// whose result differs from ours are rewritten or removed and conflicted
// paths receive their marked-up content. The index is not touched.
func (r *Repo) writeConflictState(merged map[string]*mergedPath, ours map[string]*treeEntry) error {
	wt := r.worktree.Filesystem

	for p, mp := range merged {
		switch {
		case mp.entry == nil:
			if ours[p] == nil {
				continue
			}
			if err := wt.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				return WrapErrorf(err, "failed to remove %s", p)
			}
		case mp.content != nil:
			if err := writeWorktreeFile(wt, p, mp.content, mp.entry.Mode); err != nil {
				return err
			}
		case !mp.entry.equal(ours[p]):
			if err := r.checkoutEntry(wt, p, mp.entry); err != nil {
				return err
			}
		}
	}

	return nil
}

// checkoutEntry writes a stored leaf into the working tree.
func (r *Repo) checkoutEntry(wt gobilly.Filesystem, p string, e *treeEntry) error {
	switch {
	case e.Mode == filemode.Submodule:
		return wt.MkdirAll(p, 0o755)
	case e.Mode == filemode.Symlink:
		target, err := r.readBlob(e.Hash)
		if err != nil {
			return err
		}
		if err := wt.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return WrapErrorf(err, "failed to replace %s", p)
		}
		if err := wt.Symlink(string(target), p); err != nil {
			return WrapErrorf(err, "failed to write symlink %s", p)
		}
		return nil
	default:
		content, err := r.readBlob(e.Hash)
		if err != nil {
			return err
		}
		return writeWorktreeFile(wt, p, content, e.Mode)
	}
}

func writeWorktreeFile(wt gobilly.Filesystem, p string, content []byte, mode filemode.FileMode) error {
	perm, err := mode.ToOSFileMode()
	if err != nil || !perm.IsRegular() {
		perm = 0o644
	}
	if err := util.WriteFile(wt, p, content, perm.Perm()); err != nil {
		return WrapErrorf(err, "failed to write %s", p)
	}
	return nil
}

// commitFiles flattens the tree of c.
func commitFiles(c *object.Commit) (map[string]*treeEntry, error) {
	tree, err := c.Tree()
	if err != nil {
		return nil, WrapErrorf(err, "failed to read tree of %s", c.Hash)
	}
	return flattenTree(tree)
}

// unionPaths returns every path present in any of the maps, sorted.
func unionPaths(sets ...map[string]*treeEntry) []string {
	seen := make(map[string]struct{})
	for _, set := range sets {
		for p := range set {
			seen[p] = struct{}{}
		}
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func sortedUnique(paths []string) []string {
	sort.Strings(paths)
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if len(out) == 0 || out[len(out)-1] != p {
			out = append(out, p)
		}
	}
	return out
}

func shortID(h plumbing.Hash) string {
	return h.String()[:7]
}
