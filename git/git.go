package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobilly "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/canoup/canoup/fs"
	"github.com/canoup/canoup/git/internal/fsbridge"
)

const (
	// DefaultStorerCacheSize is the default size for the LRU object cache.
	DefaultStorerCacheSize = 1000

	// DefaultWorkdir is the default worktree directory name.
	DefaultWorkdir = "."

	// DefaultRemoteName is the default remote name used for operations.
	DefaultRemoteName = "origin"

	// DefaultIdentityName and DefaultIdentityEmail sign commits when neither
	// the repository nor the user's git configuration names anyone.
	DefaultIdentityName  = "canoup"
	DefaultIdentityEmail = "canoup@localhost"
)

// Options configures repository discovery/creation and performance.
type Options struct {
	// FS is the REQUIRED native filesystem root (OS or in-memory).
	// All repository state lives within this filesystem.
	FS fs.Filesystem

	// Workdir is the path within FS for the worktree root.
	// Defaults to "." (current directory in FS).
	Workdir string

	// Bare indicates if this should be a bare repository (.git only, no worktree).
	// Sync operations require a worktree.
	Bare bool

	// StorerCacheSize sets the LRU objects cache entries.
	// Defaults to DefaultStorerCacheSize.
	StorerCacheSize int

	// ExclusiveAccess lets go-git cache packfile state, valid only while no
	// other process writes the repository.
	ExclusiveAccess bool

	// Auth is an optional provider that resolves per-URL AuthMethod.
	// If nil, no authentication will be available.
	Auth AuthProvider

	// RemoteName names the remote Clone creates. Defaults to DefaultRemoteName.
	RemoteName string

	// Branch is checked out by Clone. Empty means the remote's default branch.
	Branch string

	// Identity signs merge commits and reflog entries when the repository
	// configuration has no user.name/user.email.
	Identity Signature

	// Logger receives structured progress records. Defaults to a discard logger.
	Logger *slog.Logger
}

// Validate checks that the Options are properly configured.
// It returns an error if required fields are missing or invalid.
func (o *Options) Validate() error {
	if o.FS == nil {
		return WrapError(ErrInvalidRef, "FS is required")
	}

	if o.StorerCacheSize < 0 {
		return WrapError(ErrInvalidRef, "StorerCacheSize cannot be negative")
	}

	return nil
}

// applyDefaults sets default values for any unset fields in Options.
func (o *Options) applyDefaults() {
	if o.Workdir == "" {
		o.Workdir = DefaultWorkdir
	}

	if o.StorerCacheSize == 0 {
		o.StorerCacheSize = DefaultStorerCacheSize
	}

	if o.RemoteName == "" {
		o.RemoteName = DefaultRemoteName
	}

	if o.Identity.Name == "" {
		o.Identity.Name = DefaultIdentityName
	}

	if o.Identity.Email == "" {
		o.Identity.Email = DefaultIdentityEmail
	}

	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
}

// layout holds the go-git storage and worktree filesystem for one repository.
type layout struct {
	storage    *filesystem.Storage
	worktreeFS gobilly.Filesystem
}

// prepare validates opts, applies defaults and resolves the storage layout.
func prepare(opts *Options) (*layout, error) {
	if err := opts.Validate(); err != nil {
		return nil, WrapError(err, "invalid options")
	}

	opts.applyDefaults()

	// Convert fs.Filesystem to billy.Filesystem
	billyFS, err := fsbridge.ToBillyFilesystem(opts.FS)
	if err != nil {
		return nil, fmt.Errorf("filesystem conversion failed: %w", err)
	}

	// Chroot to the workdir to scope the repository location
	scopedFS, err := billyFS.Chroot(opts.Workdir)
	if err != nil {
		return nil, fmt.Errorf("failed to chroot to workdir %q: %w", opts.Workdir, err)
	}

	if opts.Bare {
		// For bare repos, storage is at the root
		return &layout{storage: fsbridge.NewStorage(scopedFS, opts.StorerCacheSize, opts.ExclusiveAccess)}, nil
	}

	// For non-bare repos, storage goes in .git subdirectory
	dotGitFS, err := scopedFS.Chroot(".git")
	if err != nil {
		return nil, fmt.Errorf("failed to access .git directory: %w", err)
	}

	return &layout{
		storage:    fsbridge.NewStorage(dotGitFS, opts.StorerCacheSize, opts.ExclusiveAccess),
		worktreeFS: scopedFS,
	}, nil
}

// newRepo assembles a Repo around an opened go-git repository.
func newRepo(repo *git.Repository, l *layout, opts *Options) (*Repo, error) {
	r := &Repo{
		repo:    repo,
		storage: l.storage,
		fs:      opts.FS,
		options: *opts,
		logger:  opts.Logger,
	}

	// Set up worktree for non-bare repositories
	if !opts.Bare {
		worktree, err := repo.Worktree()
		if err != nil {
			return nil, WrapError(err, "failed to get worktree")
		}
		r.worktree = worktree
	}

	return r, nil
}

// Init creates a new git repository at the specified location.
// It initializes both bare and non-bare repositories with proper storage and worktree setup.
func Init(ctx context.Context, opts *Options) (*Repo, error) {
	l, err := prepare(opts)
	if err != nil {
		return nil, err
	}

	repo, err := git.Init(l.storage, l.worktreeFS)
	if err != nil {
		return nil, WrapError(err, "failed to initialize repository")
	}

	return newRepo(repo, l, opts)
}

// Open opens the existing repository at the workdir within the filesystem.
// It returns ErrRepositoryMissing when there is none, which callers use to
// decide whether to clone.
func Open(ctx context.Context, opts *Options) (*Repo, error) {
	l, err := prepare(opts)
	if err != nil {
		return nil, err
	}

	repo, err := git.Open(l.storage, l.worktreeFS)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, WrapErrorf(ErrRepositoryMissing, "no repository at %q", opts.Workdir)
		}
		return nil, WrapError(err, "failed to open repository")
	}

	return newRepo(repo, l, opts)
}

// Clone creates a new repository by cloning from a remote URL, following
// every tag. The remote is registered as Options.RemoteName.
//
// Context timeout/cancellation is honored during the clone operation.
func Clone(ctx context.Context, remoteURL string, opts *Options) (*Repo, error) {
	if remoteURL == "" {
		return nil, WrapError(ErrInvalidRef, "remote URL cannot be empty")
	}

	l, err := prepare(opts)
	if err != nil {
		return nil, err
	}

	cloneOpts := &git.CloneOptions{
		URL:        remoteURL,
		RemoteName: opts.RemoteName,
		Tags:       git.AllTags,
	}
	if opts.Branch != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(opts.Branch)
	}

	// Set up authentication if provided
	if opts.Auth != nil {
		authMethod, authErr := opts.Auth.Method(remoteURL)
		if authErr != nil {
			return nil, wrapBoth(ErrAuthRequired, authErr, "failed to get authentication method")
		}
		cloneOpts.Auth = authMethod
	}

	opts.Logger.InfoContext(ctx, "cloning repository", "url", remoteURL, "branch", opts.Branch)

	repo, err := git.CloneContext(ctx, l.storage, l.worktreeFS, cloneOpts)
	if err != nil {
		return nil, WrapErrorf(err, "failed to clone %q", remoteURL)
	}

	return newRepo(repo, l, opts)
}

// AuthProvider resolves authentication methods for git operations.
// Implementations should handle different URL schemes and credential sources.
type AuthProvider interface {
	// Method returns the appropriate transport.AuthMethod for the given remote URL.
	// Returns nil if no authentication is needed/available for this URL.
	// Returns an error if authentication cannot be resolved for the URL.
	Method(remoteURL string) (transport.AuthMethod, error)
}

// Signature represents an author/committer signature for commits and reflog entries.
type Signature struct {
	// Name is the author's or committer's name.
	Name string

	// Email is the author's or committer's email address.
	Email string

	// When is the timestamp for the signature. Zero means now.
	When time.Time
}

// Repo represents a git repository and provides high-level operations.
// It wraps a go-git Repository and Worktree, operating exclusively through
// the project's native filesystem abstraction.
type Repo struct {
	repo     *git.Repository
	worktree *git.Worktree
	storage  *filesystem.Storage
	fs       fs.Filesystem
	options  Options
	logger   *slog.Logger
}

// signature returns the identity recorded on commits and reflog lines.
// user.name/user.email from the repository and global configuration win
// over Options.Identity.
func (r *Repo) signature() *object.Signature {
	sig := &object.Signature{
		Name:  r.options.Identity.Name,
		Email: r.options.Identity.Email,
		When:  r.options.Identity.When,
	}

	if cfg, err := r.repo.ConfigScoped(config.GlobalScope); err == nil {
		if cfg.User.Name != "" {
			sig.Name = cfg.User.Name
		}
		if cfg.User.Email != "" {
			sig.Email = cfg.User.Email
		}
	}

	if sig.When.IsZero() {
		sig.When = time.Now()
	}
	return sig
}

// authFor resolves credentials for the named remote's first URL.
//
//nolint:ireturn // go-git consumes transport.AuthMethod
func (r *Repo) authFor(remote *git.Remote) (transport.AuthMethod, error) {
	if r.options.Auth == nil {
		return nil, nil
	}

	urls := remote.Config().URLs
	if len(urls) == 0 {
		return nil, WrapErrorf(ErrRemoteMissing, "remote %q has no URL", remote.Config().Name)
	}

	method, err := r.options.Auth.Method(urls[0])
	if err != nil {
		return nil, wrapBoth(ErrAuthRequired, err, "failed to get authentication method")
	}
	return method, nil
}
