package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canoup/canoup/fs"
	fsb "github.com/canoup/canoup/fs/billy"
)

// plainFS satisfies fs.Filesystem without being backed by billy.
type plainFS struct {
	fs.Filesystem
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"valid", Options{FS: fsb.NewInMemoryFS()}, false},
		{"missing FS", Options{}, true},
		{"negative cache", Options{FS: fsb.NewInMemoryFS(), StorerCacheSize: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOptions_ApplyDefaults(t *testing.T) {
	opts := Options{FS: fsb.NewInMemoryFS()}
	opts.applyDefaults()

	assert.Equal(t, DefaultWorkdir, opts.Workdir)
	assert.Equal(t, DefaultStorerCacheSize, opts.StorerCacheSize)
	assert.Equal(t, DefaultRemoteName, opts.RemoteName)
	assert.Equal(t, DefaultIdentityName, opts.Identity.Name)
	assert.Equal(t, DefaultIdentityEmail, opts.Identity.Email)
	assert.NotNil(t, opts.Logger)

	custom := Options{FS: fsb.NewInMemoryFS(), RemoteName: "upstream", Workdir: "mirror"}
	custom.applyDefaults()
	assert.Equal(t, "upstream", custom.RemoteName)
	assert.Equal(t, "mirror", custom.Workdir)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("missing repository", func(t *testing.T) {
		_, err := Open(ctx, &Options{FS: fsb.NewInMemoryFS()})
		assert.ErrorIs(t, err, ErrRepositoryMissing)
	})

	t.Run("after init", func(t *testing.T) {
		memFS := fsb.NewInMemoryFS()
		_, err := Init(ctx, &Options{FS: memFS, Workdir: "Cano"})
		require.NoError(t, err)

		repo, err := Open(ctx, &Options{FS: memFS, Workdir: "Cano"})
		require.NoError(t, err)
		assert.NotNil(t, repo.worktree)

		ok, err := memFS.Exists("Cano/.git/HEAD")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("bare", func(t *testing.T) {
		memFS := fsb.NewInMemoryFS()
		_, err := Init(ctx, &Options{FS: memFS, Bare: true})
		require.NoError(t, err)

		repo, err := Open(ctx, &Options{FS: memFS, Bare: true})
		require.NoError(t, err)
		assert.Nil(t, repo.worktree)
	})

	t.Run("filesystem not backed by billy", func(t *testing.T) {
		_, err := Open(ctx, &Options{FS: plainFS{}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "filesystem conversion failed")
	})

	t.Run("on disk", func(t *testing.T) {
		dir := t.TempDir()
		_, err := Init(ctx, &Options{FS: fsb.NewOSFS(dir), ExclusiveAccess: true})
		require.NoError(t, err)

		_, err = os.Stat(filepath.Join(dir, ".git", "HEAD"))
		require.NoError(t, err)

		_, err = Open(ctx, &Options{FS: fsb.NewOSFS(dir)})
		assert.NoError(t, err)
	})
}

func TestClone_Validation(t *testing.T) {
	_, err := Clone(context.Background(), "", &Options{FS: fsb.NewInMemoryFS()})
	assert.ErrorIs(t, err, ErrInvalidRef)

	_, err = Clone(context.Background(), "https://github.com/CobbCoding1/Cano", &Options{})
	assert.Error(t, err)
}

func TestSignature(t *testing.T) {
	t.Run("identity from options", func(t *testing.T) {
		tr := setupTestRepo(t)
		sig := tr.repo.signature()
		assert.Equal(t, testIdentity.Name, sig.Name)
		assert.Equal(t, testIdentity.Email, sig.Email)
		assert.Equal(t, testIdentity.When, sig.When)
	})

	t.Run("repository config wins", func(t *testing.T) {
		tr := setupTestRepo(t)
		cfg, err := tr.repo.repo.Config()
		require.NoError(t, err)
		cfg.User.Name = "Mirror Owner"
		cfg.User.Email = "owner@example.com"
		require.NoError(t, tr.repo.repo.SetConfig(cfg))

		sig := tr.repo.signature()
		assert.Equal(t, "Mirror Owner", sig.Name)
		assert.Equal(t, "owner@example.com", sig.Email)
	})

	t.Run("zero time means now", func(t *testing.T) {
		t.Setenv("HOME", t.TempDir())
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())

		repo, err := Init(context.Background(), &Options{FS: fsb.NewInMemoryFS()})
		require.NoError(t, err)

		sig := repo.signature()
		assert.Equal(t, DefaultIdentityName, sig.Name)
		assert.WithinDuration(t, time.Now(), sig.When, time.Minute)
	})
}

func TestNewAuthProvider(t *testing.T) {
	assert.Nil(t, NewAuthProvider(Credentials{}))
	assert.True(t, Credentials{Username: "only-a-name"}.IsZero())

	t.Run("token for https", func(t *testing.T) {
		p := NewAuthProvider(Credentials{Token: "s3cret"})
		require.NotNil(t, p)

		method, err := p.Method("https://github.com/CobbCoding1/Cano.git")
		require.NoError(t, err)
		assert.NotNil(t, method)

		method, err = p.Method("git@github.com:CobbCoding1/Cano.git")
		require.NoError(t, err)
		assert.Nil(t, method)
	})

	t.Run("host restriction", func(t *testing.T) {
		p := NewAuthProvider(Credentials{Token: "s3cret", Hosts: []string{"gitlab.com"}})
		method, err := p.Method("https://github.com/CobbCoding1/Cano.git")
		require.NoError(t, err)
		assert.Nil(t, method)
	})

	t.Run("missing ssh key", func(t *testing.T) {
		p := NewAuthProvider(Credentials{SSHKeyPath: filepath.Join(t.TempDir(), "id_ed25519")})
		_, err := p.Method("ssh://git@github.com/CobbCoding1/Cano.git")
		assert.Error(t, err)
	})
}
