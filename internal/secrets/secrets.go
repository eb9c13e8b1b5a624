// Package secrets resolves credential values that are given by reference
// rather than inline.
//
// A reference has the form "<provider>:<path>", for example
// "env:GITHUB_TOKEN" or "file:~/.config/canoup/token". Values without a
// registered provider prefix are returned unchanged, so plain tokens keep
// working.
package secrets

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrSecretNotFound indicates that the referenced secret does not exist.
	ErrSecretNotFound = stderrors.New("secret not found")

	// ErrInvalidRef indicates a malformed reference, such as an empty path.
	ErrInvalidRef = stderrors.New("invalid secret reference")
)

// SecretRef points at a secret held by a provider.
type SecretRef struct {
	Provider string
	Path     string
}

func (r SecretRef) String() string {
	return r.Provider + ":" + r.Path
}

// Secret is a resolved value. Callers should Clear it once copied out.
type Secret struct {
	Value []byte
}

// String returns the value as a string.
func (s *Secret) String() string {
	return string(s.Value)
}

// Clear zeroes the value.
func (s *Secret) Clear() {
	for i := range s.Value {
		s.Value[i] = 0
	}
	s.Value = nil
}

// Provider resolves references in its own namespace.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, ref SecretRef) (*Secret, error)
}

// ProviderError wraps a provider failure with the reference that caused it.
type ProviderError struct {
	Provider string
	Ref      SecretRef
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %q error for secret %q: %v", e.Provider, e.Ref.Path, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Manager holds the registered providers.
type Manager struct {
	providers map[string]Provider
	mu        sync.RWMutex
}

// NewManager creates a Manager with the given providers registered.
func NewManager(providers ...Provider) (*Manager, error) {
	m := &Manager{providers: make(map[string]Provider)}
	for _, p := range providers {
		if err := m.RegisterProvider(p); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RegisterProvider adds a provider under its Name.
func (m *Manager) RegisterProvider(p Provider) error {
	if p == nil {
		return fmt.Errorf("provider cannot be nil")
	}
	name := p.Name()
	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.providers[name]; exists {
		return fmt.Errorf("provider with name %q already registered", name)
	}
	m.providers[name] = p
	return nil
}

// ParseRef splits raw into a reference. ok is false when raw does not start
// with the prefix of a registered provider.
func (m *Manager) ParseRef(raw string) (SecretRef, bool) {
	name, path, found := strings.Cut(raw, ":")
	if !found {
		return SecretRef{}, false
	}

	m.mu.RLock()
	_, registered := m.providers[name]
	m.mu.RUnlock()
	if !registered {
		return SecretRef{}, false
	}
	return SecretRef{Provider: name, Path: path}, true
}

// Resolve fetches the secret behind ref.
func (m *Manager) Resolve(ctx context.Context, ref SecretRef) (*Secret, error) {
	if ref.Path == "" {
		return nil, fmt.Errorf("%w: empty path for provider %q", ErrInvalidRef, ref.Provider)
	}

	m.mu.RLock()
	p, ok := m.providers[ref.Provider]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidRef, ref.Provider)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	secret, err := p.Resolve(ctx, ref)
	if err != nil {
		return nil, &ProviderError{Provider: ref.Provider, Ref: ref, Err: err}
	}
	return secret, nil
}

// ResolveValue returns raw itself when it is not a reference, and the
// resolved secret otherwise. An empty raw stays empty.
func (m *Manager) ResolveValue(ctx context.Context, raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	ref, ok := m.ParseRef(raw)
	if !ok {
		return raw, nil
	}

	secret, err := m.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	defer secret.Clear()
	return secret.String(), nil
}
