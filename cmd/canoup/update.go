package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"

	"github.com/canoup/canoup/errors"
	fsb "github.com/canoup/canoup/fs/billy"
	"github.com/canoup/canoup/git"
	"github.com/canoup/canoup/installer"
	"github.com/canoup/canoup/internal/config"
	"github.com/canoup/canoup/internal/secrets"
)

func newUpdateCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Sync the mirror, then build and install Cano if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUpdate(cmd, flags)
		},
	}
	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "rebuild and reinstall even when up to date")
	return cmd
}

func runUpdate(cmd *cobra.Command, flags *globalFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	logger := newLogger(cmd.ErrOrStderr(), cfg)
	logger.DebugContext(ctx, "configuration loaded",
		"mirror", cfg.Repo.Dir,
		"url", cfg.Repo.URL,
		"branch", cfg.Repo.Branch,
		"file", cfg.File)

	opts, err := installerOptions(cmd, cfg, flags, logger)
	if err != nil {
		return err
	}

	inst, err := installer.New(opts)
	if err != nil {
		return err
	}

	report, err := inst.Run(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case report.UpToDate:
		fmt.Fprintln(out, "Latest version of Cano is installed.")
	case len(report.Conflicts) > 0:
		fmt.Fprintf(out, "Cano installed; the mirror at %s has merge conflicts in: %v\n", cfg.Repo.Dir, report.Conflicts)
	default:
		fmt.Fprintln(out, "Cano installed.")
	}
	return nil
}

func installerOptions(cmd *cobra.Command, cfg *config.Config, flags *globalFlags, logger *slog.Logger) (installer.Options, error) {
	creds, err := resolveCredentials(cmd.Context(), cfg)
	if err != nil {
		return installer.Options{}, err
	}

	src := installer.Source{
		URL:    cfg.Repo.URL,
		Dir:    cfg.Repo.Dir,
		Remote: cfg.Repo.Remote,
		Branch: cfg.Repo.Branch,
		Identity: git.Signature{
			Name:  cfg.Git.UserName,
			Email: cfg.Git.UserEmail,
		},
		Credentials: creds,
		Logger:      logger,
	}

	pipeline := installer.NewPipeline(installer.PipelineOptions{
		Dir:        cfg.Repo.Dir,
		Build:      installer.Command{Program: cfg.Build.Command, Args: cfg.Build.Args},
		BuildEnv:   cfg.Build.Env,
		Artifact:   cfg.Build.Artifact,
		Install:    installer.Command{Program: cfg.Install.Command, Args: cfg.Install.Args},
		InstallDir: cfg.Install.Dir,
		Output:     cmd.OutOrStdout(),
		Logger:     logger,
	})

	return installer.Options{
		Open:                installer.OpenOrClone(src),
		Pipeline:            pipeline,
		Remote:              cfg.Repo.Remote,
		Branch:              cfg.Repo.Branch,
		MarkerFS:            fsb.NewBaseOSFS(),
		MarkerPath:          cfg.Install.Marker,
		LockPath:            cfg.LockPath,
		Force:               flags.force,
		TolerateFetchErrors: cfg.TolerateFetchErrors,
		Logger:              logger,
	}, nil
}

// resolveCredentials expands env: and file: references in the secret
// auth settings.
func resolveCredentials(ctx context.Context, cfg *config.Config) (git.Credentials, error) {
	manager, err := secrets.NewManager(
		&secrets.EnvProvider{},
		&secrets.FileProvider{FS: fsb.NewBaseOSFS(), Home: xdg.Home},
	)
	if err != nil {
		return git.Credentials{}, errors.Wrap(err, errors.CodeInternal, "failed to set up secret providers")
	}

	token, err := manager.ResolveValue(ctx, cfg.Auth.Token)
	if err != nil {
		return git.Credentials{}, errors.Wrapf(err, errors.CodeInvalidConfig, "failed to resolve %s", config.KeyAuthToken)
	}
	passphrase, err := manager.ResolveValue(ctx, cfg.Auth.SSHPassphrase)
	if err != nil {
		return git.Credentials{}, errors.Wrapf(err, errors.CodeInvalidConfig, "failed to resolve %s", config.KeyAuthSSHPassphrase)
	}

	return git.Credentials{
		Username:         cfg.Auth.Username,
		Token:            token,
		SSHKeyPath:       cfg.Auth.SSHKey,
		SSHKeyPassphrase: passphrase,
		SSHAgent:         cfg.Auth.SSHAgent,
		Hosts:            cfg.Auth.Hosts,
	}, nil
}
