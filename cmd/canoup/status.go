package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/canoup/canoup/errors"
	"github.com/canoup/canoup/executor"
	fsb "github.com/canoup/canoup/fs/billy"
	"github.com/canoup/canoup/git"
	"github.com/canoup/canoup/installer"
	"github.com/canoup/canoup/internal/config"
)

const statusLogLimit = 5

func newStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state of the local mirror and the installed binary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			return printStatus(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
}

func printStatus(ctx context.Context, w io.Writer, cfg *config.Config) error {
	installed, err := installer.MarkerExists(fsb.NewBaseOSFS(), cfg.Install.Marker)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "upstream:  %s (%s/%s)\n", cfg.Repo.URL, cfg.Repo.Remote, cfg.Repo.Branch)
	fmt.Fprintf(w, "mirror:    %s\n", cfg.Repo.Dir)
	fmt.Fprintf(w, "installed: %s\n", yesNo(installed, cfg.Install.Marker))
	if path, err := executor.LookPath(cfg.Build.Command); err == nil {
		fmt.Fprintf(w, "build:     %s (%s)\n", cfg.Build.Command, path)
	} else {
		fmt.Fprintf(w, "build:     %s not found on PATH\n", cfg.Build.Command)
	}

	repo, err := git.Open(ctx, &git.Options{FS: fsb.NewOSFS(cfg.Repo.Dir)})
	if stderrors.Is(err, git.ErrRepositoryMissing) {
		fmt.Fprintln(w, "\nThe mirror has not been cloned yet; run `canoup update`.")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, errors.CodeRepository, "failed to open mirror")
	}

	branch, err := repo.CurrentBranch(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CodeRepository, "failed to read branch")
	}
	fmt.Fprintf(w, "branch:    %s\n", branch)

	head, err := repo.Head(ctx)
	if stderrors.Is(err, git.ErrBranchMissing) {
		fmt.Fprintln(w, "tip:       (no commits)")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, errors.CodeRepository, "failed to resolve HEAD")
	}
	fmt.Fprintf(w, "tip:       %s\n", head)

	tag, err := repo.LatestTag(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CodeRepository, "failed to list tags")
	}
	if tag != "" {
		fmt.Fprintf(w, "release:   %s\n", tag)
	}

	merging, mergeHead, err := repo.MergeInProgress()
	if err != nil {
		return errors.Wrap(err, errors.CodeRepository, "failed to read merge state")
	}
	if merging {
		fmt.Fprintf(w, "merge:     conflicted merge of %s awaits resolution\n", mergeHead)
	}

	commits, err := repo.Log(ctx, head, statusLogLimit)
	if err != nil {
		return errors.Wrap(err, errors.CodeRepository, "failed to read history")
	}
	fmt.Fprintln(w, "\nrecent commits:")
	for _, c := range commits {
		fmt.Fprintf(w, "  %s %s (%s, %s)\n", c.Hash[:7], c.Summary, c.Author, c.When.Format("2006-01-02"))
	}
	return nil
}

func yesNo(ok bool, path string) string {
	if ok {
		return "yes (" + path + ")"
	}
	return "no (" + path + " missing)"
}
