package auth

import (
	"fmt"
	"os"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	gossh "golang.org/x/crypto/ssh"
)

// defaultSSHUser is the account git hosting services expect.
const defaultSSHUser = "git"

// SSHProvider authenticates ssh remotes with a private key file or the
// running ssh-agent. Host keys are checked against known_hosts unless a
// callback is set.
type SSHProvider struct {
	KeyPath    string
	Passphrase string
	UseAgent   bool
	User       string

	// HostKeyCallback overrides known_hosts verification.
	HostKeyCallback gossh.HostKeyCallback

	// Hosts restricts the provider to matching hosts. Empty means any host.
	Hosts []string
}

// NewSSHKeyProvider creates a provider using the private key at path.
func NewSSHKeyProvider(path, passphrase string) *SSHProvider {
	return &SSHProvider{KeyPath: path, Passphrase: passphrase, User: defaultSSHUser}
}

// NewSSHAgentProvider creates a provider using the ssh-agent.
func NewSSHAgentProvider() *SSHProvider {
	return &SSHProvider{UseAgent: true, User: defaultSSHUser}
}

// Method implements Provider.
//
//nolint:ireturn // go-git requires returning transport.AuthMethod interface
func (p *SSHProvider) Method(remoteURL string) (transport.AuthMethod, error) {
	ep, err := parseEndpoint(remoteURL)
	if err != nil {
		return nil, err
	}
	if ep.scheme != "ssh" && ep.scheme != "git+ssh" {
		return nil, nil
	}
	if !hostAllowed(ep.host, p.Hosts) {
		return nil, nil
	}

	if p.UseAgent {
		auth, err := ssh.NewSSHAgentAuth(p.User)
		if err != nil {
			return nil, fmt.Errorf("failed to create SSH agent auth: %w", err)
		}
		if p.HostKeyCallback != nil {
			auth.HostKeyCallback = p.HostKeyCallback
		}
		return auth, nil
	}

	if p.KeyPath == "" {
		return nil, fmt.Errorf("no SSH credentials configured")
	}
	if _, err := os.Stat(p.KeyPath); err != nil {
		return nil, fmt.Errorf("SSH private key %s: %w", p.KeyPath, err)
	}

	auth, err := ssh.NewPublicKeysFromFile(p.User, p.KeyPath, p.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to load SSH key from file: %w", err)
	}
	if p.HostKeyCallback != nil {
		auth.HostKeyCallback = p.HostKeyCallback
	}
	return auth, nil
}
