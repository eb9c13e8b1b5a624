package secrets

import (
	"context"
	stderrors "errors"
	iofs "io/fs"
	"os"
	"strings"

	"github.com/canoup/canoup/fs"
)

// EnvProvider reads secrets from environment variables.
type EnvProvider struct {
	// Lookup defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
}

func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) Resolve(_ context.Context, ref SecretRef) (*Secret, error) {
	lookup := p.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	v, ok := lookup(ref.Path)
	if !ok || v == "" {
		return nil, ErrSecretNotFound
	}
	return &Secret{Value: []byte(v)}, nil
}

// FileProvider reads a secret from the first line of a file. A leading "~/"
// is expanded against Home.
type FileProvider struct {
	FS   fs.Filesystem
	Home string
}

func (p *FileProvider) Name() string { return "file" }

func (p *FileProvider) Resolve(_ context.Context, ref SecretRef) (*Secret, error) {
	path := ref.Path
	if rest, ok := strings.CutPrefix(path, "~/"); ok && p.Home != "" {
		path = strings.TrimSuffix(p.Home, "/") + "/" + rest
	}

	data, err := p.FS.ReadFile(path)
	if stderrors.Is(err, iofs.ErrNotExist) {
		return nil, ErrSecretNotFound
	}
	if err != nil {
		return nil, err
	}

	line, _, _ := strings.Cut(string(data), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, ErrSecretNotFound
	}
	return &Secret{Value: []byte(line)}, nil
}
