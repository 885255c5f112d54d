// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

// Package auth resolves the caller's identity.
//
// Two credential types are accepted:
//   - a Bearer JWT (HS256) whose "admin" claim marks administrators
//   - the shared automation secret in the X-Backup-Secret header
//
// Background jobs run under a service identity created with ServiceIdentity.
// Authorization decisions (who may manage backups) live in package authz.
package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
)

// Method records how an identity was established.
type Method string

const (
	// MethodJWT is a verified Bearer token
	MethodJWT Method = "jwt"
	// MethodSecret is the shared automation secret
	MethodSecret Method = "secret"
	// MethodService is an in-process background job
	MethodService Method = "service"
)

// Roles assigned by the authenticators.
const (
	RoleAdmin      = "admin"
	RoleAutomation = "automation"
	RoleService    = "service"
	RoleUser       = "user"
)

// Standard authentication errors
var (
	// ErrNoCredentials indicates no credentials were provided.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrInvalidCredentials indicates credentials were invalid.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrExpiredCredentials indicates credentials have expired.
	ErrExpiredCredentials = errors.New("credentials expired")
)

// Identity is an authenticated caller.
type Identity struct {
	// Subject is the stable identifier recorded as performedBy.
	Subject string   `json:"subject"`
	Roles   []string `json:"roles,omitempty"`
	Method  Method   `json:"method"`
}

// HasRole checks if the identity has a specific role.
func (i *Identity) HasRole(role string) bool {
	if i == nil || role == "" {
		return false
	}
	return slices.Contains(i.Roles, role)
}

// ServiceIdentity returns the identity background jobs act under.
func ServiceIdentity(name string) *Identity {
	return &Identity{Subject: name, Roles: []string{RoleService}, Method: MethodService}
}

// Authenticator extracts an identity from a request.
type Authenticator interface {
	// Authenticate returns ErrNoCredentials when the request carries no
	// credentials of this authenticator's kind.
	Authenticate(ctx context.Context, r *http.Request) (*Identity, error)

	// Name returns the authenticator's name for logging.
	Name() string
}

type contextKey string

const identityContextKey contextKey = "identity"

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext returns the identity stored in ctx, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey).(*Identity)
	return id
}

// SubjectFromContext returns the identity subject or "anonymous".
func SubjectFromContext(ctx context.Context) string {
	if id := IdentityFromContext(ctx); id != nil && id.Subject != "" {
		return id.Subject
	}
	return "anonymous"
}
