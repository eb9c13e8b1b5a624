package auth

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Chain tries providers in order and returns the first method offered.
// Provider errors are collected and only reported when no provider succeeds.
type Chain []Provider

// Method implements Provider.
//
//nolint:ireturn // transport.AuthMethod is an interface required by go-git
func (c Chain) Method(remoteURL string) (transport.AuthMethod, error) {
	var errs []error
	for i, p := range c {
		method, err := p.Method(remoteURL)
		if err != nil {
			errs = append(errs, fmt.Errorf("provider %d: %w", i, err))
			continue
		}
		if method != nil {
			return method, nil
		}
	}
	return nil, errors.Join(errs...)
}
