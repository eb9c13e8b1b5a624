package git

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	mergeHeadFile = "MERGE_HEAD"
	mergeMsgFile  = "MERGE_MSG"
)

// appendReflog records a ref update in logs/<ref> and logs/HEAD, in the
// format git itself writes, so that `git reflog` shows canoup's updates.
func (r *Repo) appendReflog(ref plumbing.ReferenceName, oldHash, newHash plumbing.Hash, sig *object.Signature, msg string) error {
	line := fmt.Sprintf("%s %s %s <%s> %d %s\t%s\n",
		oldHash, newHash, sig.Name, sig.Email, sig.When.Unix(), sig.When.Format("-0700"),
		strings.ReplaceAll(msg, "\n", " "))

	for _, name := range []string{ref.String(), plumbing.HEAD.String()} {
		if err := r.appendGitFile(path.Join("logs", name), line); err != nil {
			return WrapErrorf(err, "failed to append reflog for %s", name)
		}
	}
	return nil
}

func (r *Repo) appendGitFile(name, content string) error {
	dotgit := r.storage.Filesystem()
	if err := dotgit.MkdirAll(path.Dir(name), 0o755); err != nil {
		return err
	}

	f, err := dotgit.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write([]byte(content)); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// writeMergeState leaves MERGE_HEAD and MERGE_MSG behind after a conflicted
// merge, so that `git commit` in the mirror concludes it.
func (r *Repo) writeMergeState(fetched plumbing.Hash, msg string, conflicts []string) error {
	dotgit := r.storage.Filesystem()

	if err := util.WriteFile(dotgit, mergeHeadFile, []byte(fetched.String()+"\n"), 0o644); err != nil {
		return WrapError(err, "failed to write MERGE_HEAD")
	}

	var b strings.Builder
	b.WriteString(msg)
	b.WriteString("\n\n# Conflicts:\n")
	for _, p := range conflicts {
		b.WriteString("#\t" + p + "\n")
	}
	if err := util.WriteFile(dotgit, mergeMsgFile, []byte(b.String()), 0o644); err != nil {
		return WrapError(err, "failed to write MERGE_MSG")
	}
	return nil
}

// clearMergeState removes leftovers of an earlier conflicted merge once the
// branch has moved past it.
func (r *Repo) clearMergeState() error {
	dotgit := r.storage.Filesystem()
	for _, name := range []string{mergeHeadFile, mergeMsgFile} {
		if err := dotgit.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return WrapErrorf(err, "failed to remove %s", name)
		}
	}
	return nil
}

// MergeInProgress reports whether a conflicted merge awaits resolution and,
// if so, the commit being merged.
func (r *Repo) MergeInProgress() (bool, string, error) {
	content, err := util.ReadFile(r.storage.Filesystem(), mergeHeadFile)
	if errors.Is(err, os.ErrNotExist) {
		return false, "", nil
	}
	if err != nil {
		return false, "", WrapError(err, "failed to read MERGE_HEAD")
	}
	return true, strings.TrimSpace(string(content)), nil
}
