// Package config loads canoup's settings.
//
// Precedence: defaults < user config file < explicit config file <
// CANOUP_* environment variables < overrides (CLI flags).
package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/canoup/canoup/errors"
)

const (
	KeyRepoURL    = "repo.url"
	KeyRepoRemote = "repo.remote"
	KeyRepoBranch = "repo.branch"
	KeyRepoDir    = "repo.dir"

	KeyInstallMarker  = "install.marker"
	KeyInstallDir     = "install.dir"
	KeyInstallCommand = "install.command"
	KeyInstallArgs    = "install.args"

	KeyBuildCommand  = "build.command"
	KeyBuildArgs     = "build.args"
	KeyBuildArtifact = "build.artifact"
	KeyBuildEnv      = "build.env"

	KeyTolerateFetchErrors = "sync.tolerate-fetch-errors"

	KeyGitUserName  = "git.user-name"
	KeyGitUserEmail = "git.user-email"

	KeyAuthToken         = "auth.token"
	KeyAuthUsername      = "auth.username"
	KeyAuthSSHKey        = "auth.ssh-key"
	KeyAuthSSHPassphrase = "auth.ssh-passphrase"
	KeyAuthSSHAgent      = "auth.ssh-agent"
	KeyAuthHosts         = "auth.hosts"

	KeyLockPath  = "lock.path"
	KeyLogLevel  = "log.level"
	KeyLogFormat = "log.format"
)

const (
	DefaultRepoURL    = "https://github.com/CobbCoding1/Cano"
	DefaultRepoRemote = "origin"
	DefaultRepoBranch = "main"

	DefaultInstallMarker  = "/usr/bin/cano"
	DefaultInstallDir     = "/usr/bin/"
	DefaultInstallCommand = "sudo"

	DefaultBuildCommand  = "make"
	DefaultBuildArtifact = "build/cano"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	envPrefix = "CANOUP"
	appName   = "canoup"
)

var (
	defaultInstallArgs = []string{"install", "-v"}
	defaultBuildArgs   = []string{"-B"}
)

// Config is the resolved configuration for one run.
type Config struct {
	Repo    RepoConfig
	Build   BuildConfig
	Install InstallConfig
	Auth    AuthConfig
	Git     GitConfig

	// TolerateFetchErrors treats a failed fetch as "nothing new" instead of
	// aborting the run.
	TolerateFetchErrors bool

	LockPath  string
	LogLevel  string
	LogFormat string

	// File is the explicit config file that was loaded, if any.
	File string
}

// RepoConfig locates the upstream repository and its local mirror.
type RepoConfig struct {
	URL    string
	Remote string
	Branch string
	Dir    string
}

// BuildConfig describes the build step, run inside the mirror.
type BuildConfig struct {
	Command  string
	Args     []string
	Artifact string

	// Env holds extra NAME=value entries for the build, e.g. CC=clang.
	Env []string
}

// InstallConfig describes the privileged install step. The artifact and
// Dir are appended to Args.
type InstallConfig struct {
	Command string
	Args    []string
	Dir     string
	Marker  string
}

// AuthConfig holds optional credentials for private mirrors.
type AuthConfig struct {
	Username      string
	Token         string
	SSHKey        string
	SSHPassphrase string
	SSHAgent      bool
	Hosts         []string
}

// GitConfig overrides the identity recorded on merge commits.
type GitConfig struct {
	UserName  string
	UserEmail string
}

type loadSettings struct {
	userConfigPath string
	configFile     string
	overrides      map[string]any
}

// Option configures Load. Useful for tests to override paths.
type Option func(*loadSettings)

// WithConfigFile loads path on top of the user config. A missing explicit
// file is an error.
func WithConfigFile(path string) Option {
	return func(s *loadSettings) {
		s.configFile = path
	}
}

// WithUserConfig overrides the default user config path.
func WithUserConfig(path string) Option {
	return func(s *loadSettings) {
		s.userConfigPath = path
	}
}

// WithOverrides injects values typically coming from CLI flags.
func WithOverrides(overrides map[string]any) Option {
	return func(s *loadSettings) {
		if s.overrides == nil {
			s.overrides = make(map[string]any, len(overrides))
		}
		for k, v := range overrides {
			s.overrides[k] = v
		}
	}
}

// DefaultUserConfigPath returns $XDG_CONFIG_HOME/canoup/config.yaml.
func DefaultUserConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.yaml")
}

// DefaultRepoDir returns the mirror location, ~/cano.
func DefaultRepoDir() string {
	return filepath.Join(xdg.Home, "cano")
}

// DefaultLockPath returns the lock file under $XDG_STATE_HOME.
func DefaultLockPath() string {
	return filepath.Join(xdg.StateHome, appName, "update.lock")
}

// Load resolves the configuration and validates it.
func Load(opts ...Option) (*Config, error) {
	settings := loadSettings{}
	for _, opt := range opts {
		opt(&settings)
	}

	if xdg.Home == "" {
		return nil, errors.New(errors.CodeInvalidConfig, "cannot determine home directory")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	userConfigPath := strings.TrimSpace(settings.userConfigPath)
	if userConfigPath == "" {
		userConfigPath = DefaultUserConfigPath()
	}
	if err := mergeConfigFile(v, userConfigPath, false); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "load user config")
	}
	if err := mergeConfigFile(v, settings.configFile, true); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "load config file")
	}

	for k, val := range settings.overrides {
		v.Set(k, val)
	}

	cfg := fromViper(v)
	cfg.File = settings.configFile

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Repo: RepoConfig{
			URL:    strings.TrimSpace(v.GetString(KeyRepoURL)),
			Remote: strings.TrimSpace(v.GetString(KeyRepoRemote)),
			Branch: strings.TrimSpace(v.GetString(KeyRepoBranch)),
			Dir:    expandHome(strings.TrimSpace(v.GetString(KeyRepoDir))),
		},
		Build: BuildConfig{
			Command:  v.GetString(KeyBuildCommand),
			Args:     v.GetStringSlice(KeyBuildArgs),
			Artifact: v.GetString(KeyBuildArtifact),
			Env:      v.GetStringSlice(KeyBuildEnv),
		},
		Install: InstallConfig{
			Command: v.GetString(KeyInstallCommand),
			Args:    v.GetStringSlice(KeyInstallArgs),
			Dir:     v.GetString(KeyInstallDir),
			Marker:  v.GetString(KeyInstallMarker),
		},
		Auth: AuthConfig{
			Username:      v.GetString(KeyAuthUsername),
			Token:         v.GetString(KeyAuthToken),
			SSHKey:        expandHome(v.GetString(KeyAuthSSHKey)),
			SSHPassphrase: v.GetString(KeyAuthSSHPassphrase),
			SSHAgent:      v.GetBool(KeyAuthSSHAgent),
			Hosts:         v.GetStringSlice(KeyAuthHosts),
		},
		Git: GitConfig{
			UserName:  v.GetString(KeyGitUserName),
			UserEmail: v.GetString(KeyGitUserEmail),
		},
		TolerateFetchErrors: v.GetBool(KeyTolerateFetchErrors),
		LockPath:            expandHome(v.GetString(KeyLockPath)),
		LogLevel:            strings.ToLower(v.GetString(KeyLogLevel)),
		LogFormat:           strings.ToLower(v.GetString(KeyLogFormat)),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyRepoURL, DefaultRepoURL)
	v.SetDefault(KeyRepoRemote, DefaultRepoRemote)
	v.SetDefault(KeyRepoBranch, DefaultRepoBranch)
	v.SetDefault(KeyRepoDir, DefaultRepoDir())

	v.SetDefault(KeyInstallMarker, DefaultInstallMarker)
	v.SetDefault(KeyInstallDir, DefaultInstallDir)
	v.SetDefault(KeyInstallCommand, DefaultInstallCommand)
	v.SetDefault(KeyInstallArgs, defaultInstallArgs)

	v.SetDefault(KeyBuildCommand, DefaultBuildCommand)
	v.SetDefault(KeyBuildArgs, defaultBuildArgs)
	v.SetDefault(KeyBuildArtifact, DefaultBuildArtifact)

	v.SetDefault(KeyTolerateFetchErrors, false)
	v.SetDefault(KeyGitUserName, "")
	v.SetDefault(KeyGitUserEmail, "")

	v.SetDefault(KeyAuthToken, "")
	v.SetDefault(KeyAuthUsername, "")
	v.SetDefault(KeyAuthSSHKey, "")
	v.SetDefault(KeyAuthSSHPassphrase, "")
	v.SetDefault(KeyAuthSSHAgent, false)
	v.SetDefault(KeyAuthHosts, []string{})

	v.SetDefault(KeyLockPath, DefaultLockPath())
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyLogFormat, DefaultLogFormat)
}

func mergeConfigFile(v *viper.Viper, path string, required bool) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	info, err := os.Stat(path)
	if stderrors.Is(err, iofs.ErrNotExist) && !required {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory", path)
	}
	//nolint:gosec // G304: the loader reads the user's own config files
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(path string) string {
	if path == "~" {
		return xdg.Home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(xdg.Home, path[2:])
	}
	return path
}
