package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canoup/canoup/errors"
)

// isolate points the user config at an empty temp file location and clears
// CANOUP_* variables set by the developer's shell.
func isolate(t *testing.T) string {
	t.Helper()

	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, "CANOUP_") {
			t.Setenv(name, "")
			require.NoError(t, os.Unsetenv(name))
		}
	}
	return filepath.Join(t.TempDir(), "config.yaml")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad_Defaults(t *testing.T) {
	userCfg := isolate(t)

	cfg, err := Load(WithUserConfig(userCfg))
	require.NoError(t, err)

	assert.Equal(t, DefaultRepoURL, cfg.Repo.URL)
	assert.Equal(t, DefaultRepoRemote, cfg.Repo.Remote)
	assert.Equal(t, DefaultRepoBranch, cfg.Repo.Branch)
	assert.Equal(t, DefaultRepoDir(), cfg.Repo.Dir)
	assert.Equal(t, "make", cfg.Build.Command)
	assert.Equal(t, []string{"-B"}, cfg.Build.Args)
	assert.Equal(t, "build/cano", cfg.Build.Artifact)
	assert.Equal(t, "sudo", cfg.Install.Command)
	assert.Equal(t, []string{"install", "-v"}, cfg.Install.Args)
	assert.Equal(t, "/usr/bin/", cfg.Install.Dir)
	assert.Equal(t, "/usr/bin/cano", cfg.Install.Marker)
	assert.False(t, cfg.TolerateFetchErrors)
	assert.Equal(t, DefaultLockPath(), cfg.LockPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Empty(t, cfg.Auth.Token)
}

func TestLoad_Precedence(t *testing.T) {
	userCfg := isolate(t)
	writeFile(t, userCfg, `
repo:
  branch: user-branch
  url: https://example.com/user/cano.git
build:
  args: ["-B", "-j4"]
log:
  level: debug
`)

	explicit := filepath.Join(t.TempDir(), "explicit.yaml")
	writeFile(t, explicit, `
repo:
  branch: explicit-branch
sync:
  tolerate-fetch-errors: true
`)

	t.Setenv("CANOUP_LOG_LEVEL", "warn")
	t.Setenv("CANOUP_AUTH_TOKEN", "from-env")

	cfg, err := Load(
		WithUserConfig(userCfg),
		WithConfigFile(explicit),
		WithOverrides(map[string]any{KeyRepoURL: "https://example.com/flag/cano.git"}),
	)
	require.NoError(t, err)

	assert.Equal(t, "explicit-branch", cfg.Repo.Branch)
	assert.Equal(t, "https://example.com/flag/cano.git", cfg.Repo.URL)
	assert.Equal(t, []string{"-B", "-j4"}, cfg.Build.Args)
	assert.True(t, cfg.TolerateFetchErrors)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "from-env", cfg.Auth.Token)
	assert.Equal(t, explicit, cfg.File)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing explicit file", func(t *testing.T) {
		userCfg := isolate(t)
		_, err := Load(WithUserConfig(userCfg), WithConfigFile(filepath.Join(t.TempDir(), "nope.yaml")))
		require.Error(t, err)
		assert.Equal(t, errors.CodeInvalidConfig, errors.CodeOf(err))
	})

	t.Run("malformed yaml", func(t *testing.T) {
		userCfg := isolate(t)
		writeFile(t, userCfg, "repo: [unterminated\n")
		_, err := Load(WithUserConfig(userCfg))
		require.Error(t, err)
		assert.Equal(t, errors.CodeInvalidConfig, errors.CodeOf(err))
	})

	t.Run("config path is a directory", func(t *testing.T) {
		isolate(t)
		_, err := Load(WithUserConfig(t.TempDir()))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "is a directory")
	})

	t.Run("invalid values", func(t *testing.T) {
		userCfg := isolate(t)
		_, err := Load(WithUserConfig(userCfg), WithOverrides(map[string]any{
			KeyInstallMarker: "relative/cano",
			KeyLogFormat:     "xml",
		}))
		require.Error(t, err)
		assert.Equal(t, errors.CodeInvalidConfig, errors.CodeOf(err))
		assert.Contains(t, err.Error(), KeyInstallMarker)
		assert.Contains(t, err.Error(), KeyLogFormat)
	})

	t.Run("empty file is ignored", func(t *testing.T) {
		userCfg := isolate(t)
		writeFile(t, userCfg, "\n")
		_, err := Load(WithUserConfig(userCfg))
		assert.NoError(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Repo:      RepoConfig{URL: "u", Remote: "origin", Branch: "main", Dir: "/home/me/cano"},
			Build:     BuildConfig{Command: "make", Artifact: "build/cano"},
			Install:   InstallConfig{Command: "sudo", Dir: "/usr/bin/", Marker: "/usr/bin/cano"},
			LockPath:  "/tmp/canoup.lock",
			LogLevel:  "info",
			LogFormat: "text",
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"valid", func(c *Config) {}, ""},
		{"empty url", func(c *Config) { c.Repo.URL = "" }, KeyRepoURL},
		{"empty branch", func(c *Config) { c.Repo.Branch = " " }, KeyRepoBranch},
		{"empty remote", func(c *Config) { c.Repo.Remote = "" }, KeyRepoRemote},
		{"relative dir", func(c *Config) { c.Repo.Dir = "cano" }, KeyRepoDir},
		{"relative install dir", func(c *Config) { c.Install.Dir = "bin" }, KeyInstallDir},
		{"empty marker", func(c *Config) { c.Install.Marker = "" }, KeyInstallMarker},
		{"build env", func(c *Config) { c.Build.Env = []string{"CC=clang", "CFLAGS="} }, ""},
		{"malformed build env", func(c *Config) { c.Build.Env = []string{"clang"} }, KeyBuildEnv},
		{"absolute artifact", func(c *Config) { c.Build.Artifact = "/tmp/cano" }, KeyBuildArtifact},
		{"ssh key and agent", func(c *Config) { c.Auth.SSHKey = "/k"; c.Auth.SSHAgent = true }, KeyAuthSSHAgent},
		{"bad level", func(c *Config) { c.LogLevel = "trace" }, KeyLogLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.True(t, errors.HasCode(err, errors.CodeInvalidConfig))
		})
	}
}

func TestExpandHome(t *testing.T) {
	assert.Equal(t, "/abs/path", expandHome("/abs/path"))
	assert.Equal(t, filepath.Join(DefaultRepoDir(), "x"), expandHome("~/cano/x"))
	assert.Equal(t, filepath.Dir(DefaultRepoDir()), expandHome("~"))
}
