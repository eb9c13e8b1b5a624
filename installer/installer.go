// Package installer runs one update of the Cano installation: it brings the
// local mirror up to date with upstream and rebuilds and reinstalls the
// editor when something changed or the installed binary is missing.
package installer

import (
	"context"
	"log/slog"

	"github.com/canoup/canoup/errors"
	"github.com/canoup/canoup/fs"
	fsb "github.com/canoup/canoup/fs/billy"
	"github.com/canoup/canoup/git"
)

// Options configures an Installer.
type Options struct {
	// Open opens or clones the mirror. Required.
	Open Opener

	// Pipeline builds and installs. Required.
	Pipeline Builder

	// Remote and Branch select what is fetched.
	Remote string
	Branch string

	// MarkerFS and MarkerPath locate the installed binary.
	MarkerFS   fs.Filesystem
	MarkerPath string

	// LockPath is the single-instance lock file. Empty disables locking.
	// Its directory is created through LockFS, which defaults to the host
	// filesystem.
	LockPath string
	LockFS   fs.Filesystem

	// Force rebuilds even when nothing changed.
	Force bool

	// TolerateFetchErrors treats a failed fetch as "nothing new".
	TolerateFetchErrors bool

	Logger *slog.Logger
}

// Validate checks that the Options are properly configured.
func (o *Options) Validate() error {
	switch {
	case o.Open == nil:
		return errors.New(errors.CodeInvalidConfig, "installer: Open is required")
	case o.Pipeline == nil:
		return errors.New(errors.CodeInvalidConfig, "installer: Pipeline is required")
	case o.MarkerFS == nil:
		return errors.New(errors.CodeInvalidConfig, "installer: MarkerFS is required")
	case o.MarkerPath == "":
		return errors.New(errors.CodeInvalidConfig, "installer: MarkerPath is required")
	case o.Branch == "":
		return errors.New(errors.CodeInvalidConfig, "installer: Branch is required")
	}
	return nil
}

func (o *Options) applyDefaults() {
	if o.Remote == "" {
		o.Remote = git.DefaultRemoteName
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.LockFS == nil {
		o.LockFS = fsb.NewBaseOSFS()
	}
}

// Report summarises one run.
type Report struct {
	// Cloned is set when the mirror was created by this run.
	Cloned bool

	// Fetch is nil after a clone or a tolerated fetch failure.
	Fetch *git.FetchResult

	// Sync is set when new upstream commits were integrated.
	Sync *git.SyncResult

	// Conflicts lists paths left conflicted by the merge. The build still ran.
	Conflicts []string

	// Built and Installed report which pipeline steps ran.
	Built     bool
	Installed bool

	// UpToDate is set when nothing was fetched and the binary is installed.
	UpToDate bool
}

// Installer performs updates.
type Installer struct {
	opts Options
}

// New creates an Installer.
func New(opts Options) (*Installer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts.applyDefaults()
	return &Installer{opts: opts}, nil
}

// Run performs one update. It never retries; the first failure ends the
// run with a coded error.
func (i *Installer) Run(ctx context.Context) (*Report, error) {
	log := i.opts.Logger

	if i.opts.LockPath != "" {
		unlock, err := acquireLock(i.opts.LockFS, i.opts.LockPath)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := unlock(); err != nil {
				log.WarnContext(ctx, "failed to release lock", "path", i.opts.LockPath, "error", err)
			}
		}()
	}

	repo, cloned, err := i.opts.Open(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeRepository, "failed to prepare mirror")
	}

	report := &Report{Cloned: cloned}
	if cloned {
		log.InfoContext(ctx, "cloned mirror, building")
		return report, i.buildAndInstall(ctx, report)
	}

	fetched, err := repo.Fetch(ctx, i.opts.Remote, i.opts.Branch)
	switch {
	case err != nil && i.opts.TolerateFetchErrors:
		log.WarnContext(ctx, "fetch failed, continuing with the local mirror", "error", err)
	case err != nil:
		return nil, errors.Wrapf(err, errors.CodeNetwork, "failed to fetch %s from %s", i.opts.Branch, i.opts.Remote)
	default:
		report.Fetch = fetched
	}

	if fetched == nil || !fetched.Updated {
		return report, i.maybeBuild(ctx, report)
	}

	result, err := repo.Sync(ctx, i.opts.Branch, fetched.Commit)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeRepository, "failed to update mirror")
	}
	report.Sync = result
	report.Conflicts = result.Conflicts

	if len(result.Conflicts) > 0 {
		log.WarnContext(ctx, "merge left conflicts in the mirror, building anyway",
			"conflicts", result.Conflicts)
	} else {
		log.InfoContext(ctx, "mirror updated",
			"analysis", result.Analysis.String(),
			"from", result.Before,
			"to", result.After,
			"changed", result.Changed)
	}

	return report, i.buildAndInstall(ctx, report)
}

// maybeBuild builds only when the installed binary is missing or a rebuild
// was forced.
func (i *Installer) maybeBuild(ctx context.Context, report *Report) error {
	installed, err := MarkerExists(i.opts.MarkerFS, i.opts.MarkerPath)
	if err != nil {
		return err
	}

	switch {
	case i.opts.Force:
		i.opts.Logger.InfoContext(ctx, "no upstream changes, rebuilding on request")
	case installed:
		report.UpToDate = true
		i.opts.Logger.InfoContext(ctx, "latest version installed", "marker", i.opts.MarkerPath)
		return nil
	default:
		i.opts.Logger.InfoContext(ctx, "no upstream changes but Cano is not installed", "marker", i.opts.MarkerPath)
	}

	return i.buildAndInstall(ctx, report)
}

func (i *Installer) buildAndInstall(ctx context.Context, report *Report) error {
	if err := i.opts.Pipeline.Build(ctx); err != nil {
		return err
	}
	report.Built = true

	if err := i.opts.Pipeline.Install(ctx); err != nil {
		return err
	}
	report.Installed = true
	return nil
}
