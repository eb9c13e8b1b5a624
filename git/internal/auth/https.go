package auth

import (
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// defaultTokenUser is sent with a token when no username is configured.
// GitHub, GitLab and Gitea ignore the name and check the token.
const defaultTokenUser = "token"

// TokenProvider authenticates https remotes with HTTP basic auth, usually a
// personal access token as the password.
type TokenProvider struct {
	auth *http.BasicAuth

	// Hosts restricts the provider to matching hosts. Empty means any host.
	Hosts []string
}

// NewTokenProvider creates a provider sending token as the password.
func NewTokenProvider(username, token string) *TokenProvider {
	if username == "" {
		username = defaultTokenUser
	}
	return &TokenProvider{auth: &http.BasicAuth{Username: username, Password: token}}
}

// WithHosts restricts the provider to the given host patterns.
func (p *TokenProvider) WithHosts(hosts ...string) *TokenProvider {
	p.Hosts = hosts
	return p
}

// Method implements Provider.
//
//nolint:ireturn // go-git requires returning transport.AuthMethod interface
func (p *TokenProvider) Method(remoteURL string) (transport.AuthMethod, error) {
	ep, err := parseEndpoint(remoteURL)
	if err != nil {
		return nil, err
	}
	if ep.scheme != "https" && ep.scheme != "http" {
		return nil, nil
	}
	if !hostAllowed(ep.host, p.Hosts) {
		return nil, nil
	}
	return p.auth, nil
}
