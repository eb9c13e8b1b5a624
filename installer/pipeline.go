package installer

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/canoup/canoup/errors"
	"github.com/canoup/canoup/executor"
)

// Builder builds the mirror and installs the result.
type Builder interface {
	Build(ctx context.Context) error
	Install(ctx context.Context) error
}

// Command is a program and its leading arguments.
type Command struct {
	Program string
	Args    []string
}

func (c Command) String() string {
	return executor.New(c.Program, c.Args...).String()
}

// CommandFactory creates the executor for one command line.
type CommandFactory func(program string, args ...string) executor.Executor

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	// Dir is the mirror's working tree; the build runs there.
	Dir string

	// Build is run as is, e.g. make -B.
	Build Command

	// BuildEnv holds NAME=value entries added to the build's environment.
	BuildEnv []string

	// Artifact is the build output relative to Dir.
	Artifact string

	// Install receives the artifact path and InstallDir as trailing
	// arguments, e.g. sudo install -v <artifact> /usr/bin/.
	Install    Command
	InstallDir string

	// Output receives each command's combined output once it has finished.
	// Defaults to io.Discard.
	Output io.Writer

	// NewCommand defaults to executor.New.
	NewCommand CommandFactory

	Logger *slog.Logger
}

// Pipeline runs the build tool and the privileged install command.
type Pipeline struct {
	opts PipelineOptions
}

var _ Builder = (*Pipeline)(nil)

// NewPipeline creates a Pipeline, filling unset options with defaults.
func NewPipeline(opts PipelineOptions) *Pipeline {
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	if opts.NewCommand == nil {
		opts.NewCommand = func(program string, args ...string) executor.Executor {
			return executor.New(program, args...)
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{opts: opts}
}

// ArtifactPath is the absolute path of the build output.
func (p *Pipeline) ArtifactPath() string {
	return filepath.Join(p.opts.Dir, p.opts.Artifact)
}

// Build runs the build command in the mirror. Its combined output is
// written to Output once the command finishes.
func (p *Pipeline) Build(ctx context.Context) error {
	build := p.opts.Build
	p.opts.Logger.InfoContext(ctx, "building", "command", build.String(), "dir", p.opts.Dir)

	opts := []executor.Option{executor.WithWorkingDir(p.opts.Dir)}
	for _, kv := range p.opts.BuildEnv {
		name, value, _ := strings.Cut(kv, "=")
		opts = append(opts, executor.WithEnvVar(name, value))
	}

	result, err := p.run(ctx, build, opts...)
	if err != nil {
		if launchFailed(result) {
			return errors.Wrapf(err, errors.CodeExecutionFailed, "failed to run %s", build.Program)
		}
		return errors.Wrapf(err, errors.CodeBuildFailed, "build failed (exit code %d)", exitCode(result))
	}

	p.opts.Logger.InfoContext(ctx, "build finished", "artifact", p.ArtifactPath())
	return nil
}

// Install copies the artifact into InstallDir. sudo prompts on the
// terminal, not on the captured streams.
func (p *Pipeline) Install(ctx context.Context) error {
	install := p.opts.Install
	args := append(append([]string{}, install.Args...), p.ArtifactPath(), p.opts.InstallDir)
	cmdline := Command{Program: install.Program, Args: args}

	p.opts.Logger.InfoContext(ctx, "installing", "command", cmdline.String(), "dir", p.opts.InstallDir)

	result, err := p.run(ctx, cmdline)
	if err != nil {
		if launchFailed(result) {
			return errors.Wrapf(err, errors.CodeExecutionFailed, "failed to run %s", install.Program)
		}
		return errors.Wrapf(err, errors.CodeInstallFailed,
			"installing to %s failed (exit code %d); it needs root permissions", p.opts.InstallDir, exitCode(result))
	}

	p.opts.Logger.InfoContext(ctx, "installed", "dir", p.opts.InstallDir)
	return nil
}

// run executes c with combined capture and echoes the output to Output
// after the command has finished, whether or not it succeeded.
func (p *Pipeline) run(ctx context.Context, c Command, opts ...executor.Option) (*executor.Result, error) {
	opts = append(opts, executor.WithCapture(false, false, true))
	result, err := p.opts.NewCommand(c.Program, c.Args...).Execute(ctx, opts...)
	if result != nil && result.Combined != "" {
		_, _ = io.WriteString(p.opts.Output, result.Combined)
	}
	return result, err
}

// launchFailed reports whether the process never started.
func launchFailed(r *executor.Result) bool {
	return r == nil || r.ExitCode < 0
}

func exitCode(r *executor.Result) int {
	if r == nil {
		return -1
	}
	return r.ExitCode
}
