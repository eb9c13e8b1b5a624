package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/canoup/canoup/errors"
)

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
)

// Validate checks the configuration for values a run cannot work with.
// All problems are reported together.
func (c *Config) Validate() error {
	var problems []string

	required := []struct {
		key   string
		value string
	}{
		{KeyRepoURL, c.Repo.URL},
		{KeyRepoRemote, c.Repo.Remote},
		{KeyRepoBranch, c.Repo.Branch},
		{KeyRepoDir, c.Repo.Dir},
		{KeyBuildCommand, c.Build.Command},
		{KeyBuildArtifact, c.Build.Artifact},
		{KeyInstallCommand, c.Install.Command},
		{KeyLockPath, c.LockPath},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			problems = append(problems, r.key+" must not be empty")
		}
	}

	absolute := []struct {
		key   string
		value string
	}{
		{KeyRepoDir, c.Repo.Dir},
		{KeyInstallMarker, c.Install.Marker},
		{KeyInstallDir, c.Install.Dir},
	}
	for _, a := range absolute {
		if a.value != "" && !filepath.IsAbs(a.value) {
			problems = append(problems, fmt.Sprintf("%s must be an absolute path, got %q", a.key, a.value))
		}
	}
	if c.Install.Marker == "" {
		problems = append(problems, KeyInstallMarker+" must not be empty")
	}
	if c.Install.Dir == "" {
		problems = append(problems, KeyInstallDir+" must not be empty")
	}

	if filepath.IsAbs(c.Build.Artifact) {
		problems = append(problems, fmt.Sprintf("%s must be relative to the mirror, got %q", KeyBuildArtifact, c.Build.Artifact))
	}

	for _, kv := range c.Build.Env {
		if name, _, ok := strings.Cut(kv, "="); !ok || strings.TrimSpace(name) == "" {
			problems = append(problems, fmt.Sprintf("%s entries must look like NAME=value, got %q", KeyBuildEnv, kv))
		}
	}

	if c.Auth.SSHKey != "" && c.Auth.SSHAgent {
		problems = append(problems, KeyAuthSSHKey+" and "+KeyAuthSSHAgent+" are mutually exclusive")
	}

	if !oneOf(c.LogLevel, validLogLevels) {
		problems = append(problems, fmt.Sprintf("%s must be one of %s, got %q",
			KeyLogLevel, strings.Join(validLogLevels, ", "), c.LogLevel))
	}
	if !oneOf(c.LogFormat, validLogFormats) {
		problems = append(problems, fmt.Sprintf("%s must be one of %s, got %q",
			KeyLogFormat, strings.Join(validLogFormats, ", "), c.LogFormat))
	}

	if len(problems) > 0 {
		return errors.New(
			errors.CodeInvalidConfig,
			fmt.Sprintf("configuration validation failed: %s", strings.Join(problems, "; ")),
		)
	}
	return nil
}

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
