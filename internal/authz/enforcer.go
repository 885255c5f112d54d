// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

// Package authz decides whether an identity may manage backups. It uses
// Casbin RBAC with an embedded model and policy; a policy file on disk can
// replace the embedded policy.
package authz

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/tomtom215/menuvault/internal/auth"
	"github.com/tomtom215/menuvault/internal/logging"
	"github.com/tomtom215/menuvault/internal/models"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Resources and actions checked by the enforcer.
const (
	ObjectBackups = "backups"
	ObjectOutbox  = "outbox"
	ActionManage  = "manage"
)

// Authorizer gates admin-only operations.
type Authorizer interface {
	// RequireAdmin returns the caller's identity when it may manage backups,
	// and an error wrapping models.ErrPermissionDenied otherwise.
	RequireAdmin(ctx context.Context) (*auth.Identity, error)
}

// Enforcer wraps the Casbin enforcer.
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer creates an enforcer. An empty policyPath uses the embedded
// policy.
func NewEnforcer(policyPath string) (*Enforcer, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if policyPath != "" && fileExists(policyPath) {
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(policyPath))
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadEmbeddedPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}
	return &Enforcer{enforcer: enforcer}, nil
}

// loadEmbeddedPolicy parses and loads the embedded policy CSV.
func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch ptype, rule := parts[0], parts[1:]; ptype {
		case "p":
			if len(rule) >= 3 {
				if _, err := enforcer.AddPolicy(rule[0], rule[1], rule[2]); err != nil {
					return fmt.Errorf("failed to add policy %v: %w", rule, err)
				}
			}
		case "g":
			if len(rule) >= 2 {
				if _, err := enforcer.AddGroupingPolicy(rule[0], rule[1]); err != nil {
					return fmt.Errorf("failed to add grouping policy %v: %w", rule, err)
				}
			}
		}
	}
	return nil
}

// Allowed reports whether any of the identity's roles permit action on object.
func (e *Enforcer) Allowed(id *auth.Identity, object, action string) (bool, error) {
	if id == nil {
		return false, nil
	}
	for _, role := range id.Roles {
		ok, err := e.enforcer.Enforce(role, object, action)
		if err != nil {
			return false, fmt.Errorf("enforcement failed: %w", err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// RequireAdmin implements Authorizer.
func (e *Enforcer) RequireAdmin(ctx context.Context) (*auth.Identity, error) {
	id := auth.IdentityFromContext(ctx)
	ok, err := e.Allowed(id, ObjectBackups, ActionManage)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPermissionDenied, err)
	}
	if !ok {
		logging.Ctx(ctx).Debug().
			Str("subject", auth.SubjectFromContext(ctx)).
			Msg("Admin check denied")
		return nil, fmt.Errorf("%w: %s is not an administrator", models.ErrPermissionDenied, auth.SubjectFromContext(ctx))
	}
	return id, nil
}

// Middleware returns middleware that calls deny unless the request identity
// passes RequireAdmin.
func Middleware(a Authorizer, deny http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := a.RequireAdmin(r.Context()); err != nil {
				deny(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
