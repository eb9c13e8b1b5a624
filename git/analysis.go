package git

import (
	"context"
	"errors"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// MergeAnalysis classifies how a fetched commit relates to a local branch.
type MergeAnalysis int8

const (
	// AnalysisNone means the commits share no history; nothing is done.
	AnalysisNone MergeAnalysis = iota

	// AnalysisUpToDate means the fetched commit is the tip or already in its history.
	AnalysisUpToDate

	// AnalysisFastForward means the tip is an ancestor of the fetched commit.
	AnalysisFastForward

	// AnalysisUnborn means the branch does not exist yet and can be created at the fetched commit.
	AnalysisUnborn

	// AnalysisNormal means both sides diverged from a common base and need a three-way merge.
	AnalysisNormal
)

// String returns a human-readable string representation of the MergeAnalysis.
func (a MergeAnalysis) String() string {
	switch a {
	case AnalysisNone:
		return "none"
	case AnalysisUpToDate:
		return "up-to-date"
	case AnalysisFastForward:
		return "fast-forward"
	case AnalysisUnborn:
		return "unborn"
	case AnalysisNormal:
		return "normal"
	default:
		return "unknown"
	}
}

// Analyze decides whether integrating commit into branch is a no-op, a
// fast-forward or a three-way merge. It has no side effects.
//
// Context timeout/cancellation is honored during the operation.
func (r *Repo) Analyze(ctx context.Context, branch, commit string) (MergeAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return AnalysisNone, WrapError(err, "context cancelled")
	}

	fetched, err := r.commitObject(commit)
	if err != nil {
		return AnalysisNone, err
	}

	if _, err := r.repo.Storer.Reference(plumbing.HEAD); err != nil &&
		!errors.Is(err, plumbing.ErrReferenceNotFound) {
		return AnalysisNone, wrapBoth(ErrResolveFailed, err, "failed to read HEAD")
	}

	tip, err := r.branchTip(branch)
	if errors.Is(err, ErrBranchMissing) {
		return AnalysisUnborn, nil
	}
	if err != nil {
		return AnalysisNone, err
	}

	analysis, err := classify(tip, fetched)
	if err != nil {
		return AnalysisNone, err
	}

	r.logger.DebugContext(ctx, "merge analysis",
		"branch", branch,
		"tip", tip.Hash.String(),
		"fetched", fetched.Hash.String(),
		"analysis", analysis.String())

	return analysis, nil
}

// classify relates tip and fetched through the commit graph.
func classify(tip, fetched *object.Commit) (MergeAnalysis, error) {
	if tip.Hash == fetched.Hash {
		return AnalysisUpToDate, nil
	}

	behind, err := fetched.IsAncestor(tip)
	if err != nil {
		return AnalysisNone, wrapBoth(ErrResolveFailed, err, "failed to walk history")
	}
	if behind {
		return AnalysisUpToDate, nil
	}

	ahead, err := tip.IsAncestor(fetched)
	if err != nil {
		return AnalysisNone, wrapBoth(ErrResolveFailed, err, "failed to walk history")
	}
	if ahead {
		return AnalysisFastForward, nil
	}

	bases, err := tip.MergeBase(fetched)
	if err != nil {
		return AnalysisNone, wrapBoth(ErrResolveFailed, err, "failed to find merge base")
	}
	if len(bases) == 0 {
		return AnalysisNone, nil
	}

	return AnalysisNormal, nil
}

// commitObject resolves a full hex commit id to its commit object.
func (r *Repo) commitObject(id string) (*object.Commit, error) {
	if !plumbing.IsHash(id) {
		return nil, WrapErrorf(ErrInvalidRef, "%q is not a commit id", id)
	}

	c, err := r.repo.CommitObject(plumbing.NewHash(id))
	if err != nil {
		return nil, wrapBoth(ErrResolveFailed, err, "failed to read commit "+id)
	}
	return c, nil
}

// branchTip returns the commit refs/heads/<branch> points at, or
// ErrBranchMissing when the branch is unborn.
func (r *Repo) branchTip(branch string) (*object.Commit, error) {
	if branch == "" {
		return nil, WrapError(ErrInvalidRef, "branch name cannot be empty")
	}

	ref, err := r.repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, WrapErrorf(ErrBranchMissing, "branch %q", branch)
	}
	if err != nil {
		return nil, wrapBoth(ErrResolveFailed, err, "failed to read branch "+branch)
	}

	c, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, wrapBoth(ErrResolveFailed, err, "failed to read tip of "+branch)
	}
	return c, nil
}
