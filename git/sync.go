package git

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// FetchResult describes what a fetch brought in.
type FetchResult struct {
	// Remote and Branch name what was fetched.
	Remote string
	Branch string

	// Ref is the remote-tracking reference updated by the fetch.
	Ref string

	// Commit is the commit Ref points at after the fetch.
	Commit string

	// Updated reports whether any reference or object was transferred.
	Updated bool
}

// SyncResult describes how Sync integrated a fetched commit.
type SyncResult struct {
	Analysis MergeAnalysis

	// Before and After are the branch tip around the sync. Before is empty
	// for an unborn branch.
	Before string
	After  string

	// MergeCommit is set when a clean three-way merge created a commit.
	MergeCommit string

	// Conflicts lists conflicted paths; the branch did not move.
	Conflicts []string

	// Changed lists the paths that differ between Before and After.
	Changed []string
}

// Advanced reports whether the branch tip moved.
func (s *SyncResult) Advanced() bool {
	return s.After != s.Before
}

// Fetch fetches branch from remote into refs/remotes/<remote>/<branch>,
// following every tag. Updated is false when nothing was transferred.
//
// Context timeout/cancellation is honored during the fetch operation.
func (r *Repo) Fetch(ctx context.Context, remote, branch string) (*FetchResult, error) {
	if remote == "" {
		remote = DefaultRemoteName
	}

	if branch == "" {
		return nil, WrapError(ErrInvalidRef, "branch name cannot be empty")
	}

	rem, err := r.repo.Remote(remote)
	if errors.Is(err, git.ErrRemoteNotFound) {
		return nil, WrapErrorf(ErrRemoteMissing, "remote %q", remote)
	}
	if err != nil {
		return nil, WrapErrorf(err, "failed to get remote %q", remote)
	}

	tracking := plumbing.NewRemoteReferenceName(remote, branch)
	refSpec := config.RefSpec(fmt.Sprintf("+%s:%s", plumbing.NewBranchReferenceName(branch), tracking))
	if err := refSpec.Validate(); err != nil {
		return nil, WrapErrorf(ErrInvalidRef, "branch %q: %v", branch, err)
	}

	fetchOpts := &git.FetchOptions{
		RemoteName: remote,
		RefSpecs:   []config.RefSpec{refSpec},
		Tags:       git.AllTags,
	}

	auth, err := r.authFor(rem)
	if err != nil {
		return nil, err
	}
	fetchOpts.Auth = auth

	r.logger.InfoContext(ctx, "fetching", "remote", remote, "branch", branch)

	result := &FetchResult{Remote: remote, Branch: branch, Ref: tracking.String(), Updated: true}

	err = rem.FetchContext(ctx, fetchOpts)
	switch {
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		result.Updated = false
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed):
		return nil, wrapBoth(ErrAuthRequired, err, "failed to fetch from "+remote)
	case err != nil:
		return nil, WrapErrorf(err, "failed to fetch %s from %q", branch, remote)
	}

	ref, err := r.repo.Reference(tracking, true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, WrapErrorf(ErrBranchMissing, "%s has no branch %q", remote, branch)
	}
	if err != nil {
		return nil, wrapBoth(ErrResolveFailed, err, "failed to read "+tracking.String())
	}
	result.Commit = ref.Hash().String()

	r.logger.InfoContext(ctx, "fetched",
		"ref", result.Ref,
		"commit", result.Commit,
		"updated", result.Updated)

	return result, nil
}

// Sync integrates commit into branch: nothing for up-to-date or unrelated
// history, a fast-forward (or branch creation) when possible, otherwise a
// three-way merge. A conflicted merge is reported in the result, not as an
// error.
//
// Context timeout/cancellation is honored during the operation.
func (r *Repo) Sync(ctx context.Context, branch, commit string) (*SyncResult, error) {
	analysis, err := r.Analyze(ctx, branch, commit)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{Analysis: analysis}
	if tip, err := r.branchTip(branch); err == nil {
		result.Before = tip.Hash.String()
	}
	result.After = result.Before

	switch analysis {
	case AnalysisUpToDate:
		r.logger.InfoContext(ctx, "branch already up to date", "branch", branch)
		return result, nil
	case AnalysisNone:
		r.logger.InfoContext(ctx, "nothing to do: no common history", "branch", branch, "commit", commit)
		return result, nil
	case AnalysisFastForward, AnalysisUnborn:
		if err := r.FastForward(ctx, branch, commit); err != nil {
			return nil, err
		}
		result.After = commit
	case AnalysisNormal:
		merged, err := r.Merge(ctx, branch, commit)
		if err != nil {
			return nil, err
		}
		if !merged.Clean() {
			result.Conflicts = merged.Conflicts
			return result, nil
		}
		result.MergeCommit = merged.Commit
		result.After = merged.Commit
	}

	changed, err := r.ChangedFiles(ctx, result.Before, result.After)
	if err != nil {
		return nil, err
	}
	result.Changed = changed

	r.logger.InfoContext(ctx, "branch updated",
		"branch", branch,
		"analysis", analysis.String(),
		"from", result.Before,
		"to", result.After,
		"changed_files", len(changed))

	return result, nil
}
