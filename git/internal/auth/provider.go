// Package auth resolves go-git credentials for the mirror's remote URL.
// Each provider serves one URL family and declines (nil, nil) the rest, so
// providers can be chained.
package auth

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Provider returns go-git's transport.AuthMethod for a remote URL.
type Provider interface {
	// Method returns nil when the provider does not handle remoteURL.
	Method(remoteURL string) (transport.AuthMethod, error)
}

// endpoint is the scheme and host of a remote URL. scp-like addresses
// (git@host:path) are reported as ssh.
type endpoint struct {
	scheme string
	host   string
}

func parseEndpoint(remoteURL string) (endpoint, error) {
	if !strings.Contains(remoteURL, "://") {
		if at := strings.Index(remoteURL, "@"); at >= 0 {
			hostPath := remoteURL[at+1:]
			if colon := strings.Index(hostPath, ":"); colon > 0 {
				return endpoint{scheme: "ssh", host: hostPath[:colon]}, nil
			}
		}
	}

	u, err := url.Parse(remoteURL)
	if err != nil {
		return endpoint{}, fmt.Errorf("invalid URL: %w", err)
	}
	return endpoint{scheme: u.Scheme, host: u.Hostname()}, nil
}

// hostAllowed reports whether host matches one of patterns. An empty
// pattern list allows every host.
func hostAllowed(host string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if matchHost(host, p) {
			return true
		}
	}
	return false
}

// matchHost supports exact names, "*.example.com" and "example.*".
func matchHost(host, pattern string) bool {
	switch {
	case host == pattern:
		return true
	case strings.HasPrefix(pattern, "*."):
		suffix := strings.TrimPrefix(pattern, "*.")
		return host == suffix || strings.HasSuffix(host, "."+suffix)
	case strings.HasSuffix(pattern, ".*"):
		return strings.HasPrefix(host, strings.TrimSuffix(pattern, "*"))
	default:
		return false
	}
}
