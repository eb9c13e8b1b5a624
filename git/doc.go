// Package git maintains canoup's local mirror of the upstream repository.
//
// It wraps go-git and works exclusively through the project's native
// filesystem abstraction, so every operation runs against an on-disk clone
// as well as an in-memory one in tests.
//
// # Opening the mirror
//
//	fsys := billyfs.NewOSFS("/home/me/.local/share/canoup/Cano")
//
//	repo, err := git.Open(ctx, &git.Options{FS: fsys})
//	if errors.Is(err, git.ErrRepositoryMissing) {
//	    repo, err = git.Clone(ctx, "https://github.com/CobbCoding1/Cano", &git.Options{FS: fsys})
//	}
//
// # Updating
//
// Fetch brings the upstream branch into refs/remotes/<remote>/<branch>;
// Sync then integrates the fetched commit into the local branch:
//
//	fetched, err := repo.Fetch(ctx, "origin", "main")
//	result, err := repo.Sync(ctx, "main", fetched.Commit)
//
// Sync first runs Analyze, which classifies the fetched commit as
// up to date, a fast-forward, an unborn branch, a normal merge, or
// unrelated history. Fast-forwards force-checkout the new tip and discard
// local edits. Normal merges are three-way merges performed on the object
// database. A clean merge commits with parents [tip, fetched]. A conflicted
// merge writes conflict markers to the working tree plus MERGE_HEAD and
// MERGE_MSG, and leaves the branch untouched. A path that one side made a
// file and the other a directory keeps its local state and is reported as
// conflicted, as is a file mode changed differently on both sides; neither
// gets markers. Unrelated history is left alone.
//
// Every branch update is recorded in the reflog in git's own format.
//
// # Errors
//
// Failures wrap one of the package's sentinel errors (ErrRepositoryMissing,
// ErrRemoteMissing, ErrAuthRequired, ErrNoMergeBase, ...) and can be matched
// with errors.Is.
package git
