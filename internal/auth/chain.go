// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/tomtom215/menuvault/internal/logging"
)

// Chain tries authenticators in order. A request may carry more than one
// credential (a user token alongside the automation secret); the first
// privileged identity wins, otherwise the first verified one.
type Chain struct {
	authenticators []Authenticator
}

// NewChain creates a chain over the given authenticators.
func NewChain(authenticators ...Authenticator) *Chain {
	return &Chain{authenticators: authenticators}
}

// Authenticate tries each authenticator in order.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) (*Identity, error) {
	var first *Identity
	var lastErr error = ErrNoCredentials
	for _, a := range c.authenticators {
		id, err := a.Authenticate(ctx, r)
		if err != nil {
			if !errors.Is(err, ErrNoCredentials) {
				lastErr = err
			}
			continue
		}
		if id.HasRole(RoleAdmin) || id.HasRole(RoleAutomation) {
			return id, nil
		}
		if first == nil {
			first = id
		}
	}
	if first != nil {
		return first, nil
	}
	return nil, lastErr
}

// Name returns the authenticator name.
func (c *Chain) Name() string {
	return "chain"
}

// Middleware attaches the caller's identity to the request context when
// credentials verify. Requests without valid credentials pass through
// anonymously; authorization is enforced downstream.
func Middleware(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := a.Authenticate(r.Context(), r)
			if err != nil {
				if !errors.Is(err, ErrNoCredentials) {
					logging.Ctx(r.Context()).Warn().
						Err(err).
						Str("path", r.URL.Path).
						Str("remote_addr", r.RemoteAddr).
						Msg("Authentication failed")
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
