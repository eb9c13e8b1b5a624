package installer

import (
	"context"
	stderrors "errors"
	"log/slog"

	"github.com/canoup/canoup/errors"
	fsb "github.com/canoup/canoup/fs/billy"
	"github.com/canoup/canoup/git"
)

// Repository is the part of the mirror the update flow drives.
type Repository interface {
	Fetch(ctx context.Context, remote, branch string) (*git.FetchResult, error)
	Sync(ctx context.Context, branch, commit string) (*git.SyncResult, error)
}

var _ Repository = (*git.Repo)(nil)

// Opener opens the mirror, cloning it first when it does not exist yet.
// cloned reports whether a fresh clone was made.
type Opener func(ctx context.Context) (repo Repository, cloned bool, err error)

// Source describes the upstream repository and where its mirror lives.
type Source struct {
	URL    string
	Dir    string
	Remote string
	Branch string

	Identity    git.Signature
	Credentials git.Credentials
	Logger      *slog.Logger
}

func (s Source) options() *git.Options {
	return &git.Options{
		FS:              fsb.NewOSFS(s.Dir),
		RemoteName:      s.Remote,
		Branch:          s.Branch,
		Identity:        s.Identity,
		Auth:            git.NewAuthProvider(s.Credentials),
		Logger:          s.Logger,
		ExclusiveAccess: true,
	}
}

// OpenOrClone returns an Opener backed by go-git. The caller must hold the
// update lock.
func OpenOrClone(src Source) Opener {
	return func(ctx context.Context) (Repository, bool, error) {
		repo, err := git.Open(ctx, src.options())
		if err == nil {
			return repo, false, nil
		}
		if !stderrors.Is(err, git.ErrRepositoryMissing) {
			return nil, false, errors.Wrapf(err, errors.CodeRepository, "failed to open mirror at %s", src.Dir)
		}

		repo, err = git.Clone(ctx, src.URL, src.options())
		if err != nil {
			return nil, false, errors.Wrapf(err, errors.CodeRepository, "failed to clone %s into %s", src.URL, src.Dir)
		}
		return repo, true, nil
	}
}
