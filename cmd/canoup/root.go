package main

import (
	"io"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/canoup/canoup/errors"
	"github.com/canoup/canoup/fs"
	"github.com/canoup/canoup/internal/config"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	verbose    bool
	force      bool
	branch     string
	repoDir    string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "canoup",
		Short: "Keep the Cano editor up to date",
		Long: `canoup mirrors the Cano repository, merges upstream changes into the
local mirror, and rebuilds and reinstalls the editor when anything changed or
the installed binary is missing.

Running canoup without a subcommand performs an update.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUpdate(cmd, flags)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configFile, "config", "c", "", "config file (default "+config.DefaultUserConfigPath()+")")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	pf.StringVar(&flags.branch, "branch", "", "upstream branch to follow")
	pf.StringVar(&flags.repoDir, "dir", "", "location of the local mirror")
	root.Flags().BoolVarP(&flags.force, "force", "f", false, "rebuild and reinstall even when up to date")

	root.AddCommand(
		newUpdateCmd(flags),
		newStatusCmd(flags),
		newVersionCmd(),
	)
	return root
}

// loadConfig resolves configuration with CLI flags as the highest layer.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	overrides := map[string]any{}
	if flags.branch != "" {
		overrides[config.KeyRepoBranch] = flags.branch
	}
	if flags.repoDir != "" {
		dir, err := fs.GetAbs(flags.repoDir)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidConfig, "invalid --dir")
		}
		overrides[config.KeyRepoDir] = dir
	}
	if flags.verbose {
		overrides[config.KeyLogLevel] = "debug"
	}

	return config.Load(
		config.WithConfigFile(flags.configFile),
		config.WithOverrides(overrides),
	)
}

// newLogger builds the run's logger. Every record carries the run id so
// interleaved runs can be told apart in a shared log.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler).With("run_id", ulid.Make().String())
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
