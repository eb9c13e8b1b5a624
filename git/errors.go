// Package git provides sentinel errors for mirror operations.
// All errors can be checked using errors.Is() for programmatic handling.
package git

import (
	"errors"
	"fmt"
)

// Common sentinel errors that can be checked with errors.Is().
// These wrap underlying go-git errors while providing a stable API for consumers.

// ErrAlreadyUpToDate is returned when a fetch transferred nothing because the
// local and remote states are already synchronized.
var ErrAlreadyUpToDate = errors.New("already up to date")

// ErrAuthRequired is returned when an operation requires authentication
// but no credentials were provided or available.
var ErrAuthRequired = errors.New("authentication required")

// ErrRepositoryMissing is returned by Open when no repository exists at the workdir.
var ErrRepositoryMissing = errors.New("repository does not exist")

// ErrRemoteMissing is returned when the named remote is not configured.
var ErrRemoteMissing = errors.New("remote does not exist")

// ErrBranchMissing is returned when attempting to operate on a branch that does not exist.
var ErrBranchMissing = errors.New("branch does not exist")

// ErrNoMergeBase is returned when two commits share no history.
var ErrNoMergeBase = errors.New("no merge base")

// ErrRefChanged is returned when a branch moved between reading and updating it.
var ErrRefChanged = errors.New("reference changed concurrently")

// ErrInvalidTree is returned when merged entries cannot form a tree, such
// as a path that is both a file and a directory.
var ErrInvalidTree = errors.New("invalid tree")

// ErrBareRepository is returned by operations that need a working tree.
var ErrBareRepository = errors.New("repository has no working tree")

// ErrInvalidRef is returned when a reference name or revision specification
// is malformed or invalid according to git's reference naming rules.
var ErrInvalidRef = errors.New("invalid reference")

// ErrResolveFailed is returned when a revision specification cannot be resolved
// to a valid commit hash (e.g., branch doesn't exist, invalid SHA).
var ErrResolveFailed = errors.New("cannot resolve revision")

// WrapError wraps an error with additional context while preserving
// the ability to check against sentinel errors using errors.Is().
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// WrapErrorf wraps an error with formatted additional context while preserving
// the ability to check against sentinel errors using errors.Is().
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// wrapBoth joins a sentinel with the underlying cause so that both
// errors.Is(err, sentinel) and the go-git detail survive.
func wrapBoth(sentinel, cause error, msg string) error {
	if cause == nil {
		return WrapError(sentinel, msg)
	}
	return fmt.Errorf("%s: %w: %w", msg, sentinel, cause)
}
