package git

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// CommitInfo summarises one commit for display.
type CommitInfo struct {
	Hash    string
	Summary string
	Author  string
	When    time.Time
}

// CurrentBranch returns the name of the currently checked out branch.
// It returns an error if HEAD is in a detached state.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	head, err := r.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", wrapBoth(ErrResolveFailed, err, "failed to get HEAD reference")
	}

	if head.Type() != plumbing.SymbolicReference || !head.Target().IsBranch() {
		return "", WrapError(ErrResolveFailed, "HEAD is detached")
	}

	return head.Target().Short(), nil
}

// Head returns the commit HEAD resolves to.
func (r *Repo) Head(ctx context.Context) (string, error) {
	head, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", WrapError(ErrBranchMissing, "HEAD points at an unborn branch")
	}
	if err != nil {
		return "", wrapBoth(ErrResolveFailed, err, "failed to resolve HEAD")
	}
	return head.Hash().String(), nil
}

// Log returns up to limit commits reachable from rev, newest first.
// A limit of zero returns the full history.
func (r *Repo) Log(ctx context.Context, rev string, limit int) ([]CommitInfo, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, wrapBoth(ErrResolveFailed, err, "failed to resolve "+rev)
	}

	iter, err := r.repo.Log(&git.LogOptions{From: *hash, Order: git.LogOrderCommitterTime})
	if err != nil {
		return nil, WrapError(err, "failed to create commit iterator")
	}
	defer iter.Close()

	var commits []CommitInfo
	for limit <= 0 || len(commits) < limit {
		if err := ctx.Err(); err != nil {
			return nil, WrapError(err, "context cancelled")
		}

		c, err := iter.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, WrapError(err, "failed to get next commit")
		}

		commits = append(commits, CommitInfo{
			Hash:    c.Hash.String(),
			Summary: summary(c.Message),
			Author:  c.Author.Name,
			When:    c.Committer.When,
		})
	}

	return commits, nil
}

// LatestTag returns the most recent tag whose commit is reachable from
// HEAD, by commit time. It returns "" when no tag qualifies.
func (r *Repo) LatestTag(ctx context.Context) (string, error) {
	headHash, err := r.Head(ctx)
	if err != nil {
		return "", err
	}
	head, err := r.commitObject(headHash)
	if err != nil {
		return "", err
	}

	refs, err := r.repo.Tags()
	if err != nil {
		return "", WrapError(err, "failed to list tags")
	}
	defer refs.Close()

	type candidate struct {
		name string
		when time.Time
	}
	var candidates []candidate

	err = refs.ForEach(func(ref *plumbing.Reference) error {
		c, err := r.tagCommit(ref)
		if err != nil {
			// Tags on trees or blobs never describe a release.
			return nil
		}
		reachable, err := c.IsAncestor(head)
		if err != nil {
			return err
		}
		if reachable {
			candidates = append(candidates, candidate{name: ref.Name().Short(), when: c.Committer.When})
		}
		return nil
	})
	if err != nil {
		return "", WrapError(err, "failed to iterate tags")
	}

	if len(candidates) == 0 {
		return "", nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].when.Equal(candidates[j].when) {
			return candidates[i].name > candidates[j].name
		}
		return candidates[i].when.After(candidates[j].when)
	})
	return candidates[0].name, nil
}

// tagCommit peels a lightweight or annotated tag to its commit.
func (r *Repo) tagCommit(ref *plumbing.Reference) (*object.Commit, error) {
	tag, err := r.repo.TagObject(ref.Hash())
	switch {
	case err == nil:
		return tag.Commit()
	case errors.Is(err, plumbing.ErrObjectNotFound):
		return r.repo.CommitObject(ref.Hash())
	default:
		return nil, err
	}
}

// ChangedFiles lists the paths that differ between two commits. An empty
// from compares against the empty tree.
func (r *Repo) ChangedFiles(ctx context.Context, from, to string) ([]string, error) {
	if from == to {
		return nil, nil
	}

	var fromTree *object.Tree
	if from != "" {
		c, err := r.commitObject(from)
		if err != nil {
			return nil, err
		}
		if fromTree, err = c.Tree(); err != nil {
			return nil, WrapError(err, "failed to get tree")
		}
	}

	toCommit, err := r.commitObject(to)
	if err != nil {
		return nil, err
	}
	toTree, err := toCommit.Tree()
	if err != nil {
		return nil, WrapError(err, "failed to get tree")
	}

	changes, err := object.DiffTreeWithOptions(ctx, fromTree, toTree, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, WrapError(err, "failed to compute changes")
	}

	paths := make([]string, 0, len(changes))
	for _, ch := range changes {
		name := ch.To.Name
		if name == "" {
			name = ch.From.Name
		}
		paths = append(paths, name)
	}
	sort.Strings(paths)
	return paths, nil
}

// summary returns the first line of a commit message.
func summary(msg string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(msg), "\n")
	return line
}
