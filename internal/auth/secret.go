// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
)

// SecretHeader carries the shared automation secret.
const SecretHeader = "X-Backup-Secret"

// SecretAuthenticator accepts the shared automation secret. An empty
// configured secret disables this path entirely.
type SecretAuthenticator struct {
	secret []byte
}

// NewSecretAuthenticator creates a secret authenticator.
func NewSecretAuthenticator(secret string) *SecretAuthenticator {
	return &SecretAuthenticator{secret: []byte(secret)}
}

// Authenticate compares the header value in constant time.
func (a *SecretAuthenticator) Authenticate(_ context.Context, r *http.Request) (*Identity, error) {
	provided := r.Header.Get(SecretHeader)
	if provided == "" {
		return nil, ErrNoCredentials
	}
	if len(a.secret) == 0 {
		return nil, ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(provided), a.secret) != 1 {
		return nil, ErrInvalidCredentials
	}
	return &Identity{Subject: "backup-secret", Roles: []string{RoleAutomation}, Method: MethodSecret}, nil
}

// Name returns the authenticator name.
func (a *SecretAuthenticator) Name() string {
	return string(MethodSecret)
}
