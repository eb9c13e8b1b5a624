package git

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage"
)

// FastForward moves branch to commit, points HEAD at the branch and force
// checks out the working tree. Local modifications are discarded. An
// unborn branch is created at commit.
//
// Context timeout/cancellation is honored during the operation.
func (r *Repo) FastForward(ctx context.Context, branch, commit string) error {
	if err := ctx.Err(); err != nil {
		return WrapError(err, "context cancelled")
	}

	if r.worktree == nil {
		return WrapError(ErrBareRepository, "cannot fast-forward in bare repository")
	}

	if branch == "" {
		return WrapError(ErrInvalidRef, "branch name cannot be empty")
	}

	target, err := r.commitObject(commit)
	if err != nil {
		return err
	}

	refName := plumbing.NewBranchReferenceName(branch)
	newRef := plumbing.NewHashReference(refName, target.Hash)
	sig := r.signature()

	current, err := r.repo.Reference(refName, true)
	switch {
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		if err := r.repo.Storer.SetReference(newRef); err != nil {
			return WrapErrorf(err, "failed to create branch %q", branch)
		}
		msg := fmt.Sprintf("setting %s to %s", branch, target.Hash)
		if err := r.appendReflog(refName, plumbing.ZeroHash, target.Hash, sig, msg); err != nil {
			return err
		}
	case err != nil:
		return wrapBoth(ErrResolveFailed, err, "failed to read branch "+branch)
	default:
		if err := r.setRef(newRef, current); err != nil {
			return err
		}
		msg := fmt.Sprintf("fast-forward: setting %s to id: %s", refName, target.Hash)
		if err := r.appendReflog(refName, current.Hash(), target.Hash, sig, msg); err != nil {
			return err
		}
	}

	if err := r.setHead(refName); err != nil {
		return err
	}

	if err := r.worktree.Checkout(&git.CheckoutOptions{Branch: refName, Force: true}); err != nil {
		return WrapErrorf(err, "failed to check out %s", branch)
	}

	if err := r.clearMergeState(); err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "fast-forwarded branch", "branch", branch, "commit", target.Hash.String())
	return nil
}

// setRef moves a reference only if it still points where we last saw it.
func (r *Repo) setRef(newRef, old *plumbing.Reference) error {
	err := r.repo.Storer.CheckAndSetReference(newRef, old)
	if errors.Is(err, storage.ErrReferenceHasChanged) {
		return WrapErrorf(ErrRefChanged, "failed to update %s", newRef.Name())
	}
	if err != nil {
		return WrapErrorf(err, "failed to update %s", newRef.Name())
	}
	return nil
}

// setHead points HEAD at refName.
func (r *Repo) setHead(refName plumbing.ReferenceName) error {
	head := plumbing.NewSymbolicReference(plumbing.HEAD, refName)
	if err := r.repo.Storer.SetReference(head); err != nil {
		return WrapError(err, "failed to update HEAD")
	}
	return nil
}
