package git

import (
	"github.com/canoup/canoup/git/internal/auth"
)

// Credentials describes how to authenticate against the upstream remote.
// The zero value means anonymous access, which is enough for public mirrors.
type Credentials struct {
	// Username and Token are sent as HTTP basic auth to https remotes.
	Username string
	Token    string

	// SSHKeyPath names a private key used for ssh remotes.
	SSHKeyPath       string
	SSHKeyPassphrase string

	// SSHAgent uses the running ssh-agent for ssh remotes. It takes
	// precedence over SSHKeyPath.
	SSHAgent bool

	// Hosts restricts every credential to matching hosts, e.g. "github.com"
	// or "*.example.com". Empty means any host.
	Hosts []string
}

// IsZero reports whether no credential is configured.
func (c Credentials) IsZero() bool {
	return c.Token == "" && c.SSHKeyPath == "" && !c.SSHAgent
}

// NewAuthProvider builds an AuthProvider from c. It returns nil when c holds
// no credential so that go-git falls back to anonymous transport.
//
//nolint:ireturn // callers store the provider in Options.Auth
func NewAuthProvider(c Credentials) AuthProvider {
	if c.IsZero() {
		return nil
	}

	var chain auth.Chain
	if c.Token != "" {
		chain = append(chain, auth.NewTokenProvider(c.Username, c.Token).WithHosts(c.Hosts...))
	}

	switch {
	case c.SSHAgent:
		p := auth.NewSSHAgentProvider()
		p.Hosts = c.Hosts
		chain = append(chain, p)
	case c.SSHKeyPath != "":
		p := auth.NewSSHKeyProvider(c.SSHKeyPath, c.SSHKeyPassphrase)
		p.Hosts = c.Hosts
		chain = append(chain, p)
	}

	return chain
}
