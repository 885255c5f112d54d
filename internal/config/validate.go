// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tomtom215/menuvault/internal/validation"
)

// minSecretLength is the minimum length of JWT and signing secrets.
const minSecretLength = 32

// placeholderPatterns are values copied from example files that must never
// reach a production deployment.
var placeholderPatterns = []string{
	"CHANGEME",
	"CHANGE_ME",
	"REPLACE_ME",
	"YOUR_SECRET",
	"PLACEHOLDER",
	"EXAMPLE",
}

// Validate checks struct tags first, then the rules that span fields.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}

	validators := []func() error{
		c.validateSecurity,
		c.validateBackup,
		c.validateTransport,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateSecurity() error {
	s := c.Security
	if s.BackupSecret == "" && s.JWTSecret == "" {
		return fmt.Errorf("at least one of BACKUP_SECRET or JWT_SECRET must be set")
	}
	if s.JWTSecret != "" && len(s.JWTSecret) < minSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", minSecretLength)
	}
	if c.IsProduction() {
		for name, v := range map[string]string{
			"BACKUP_SECRET":       s.BackupSecret,
			"JWT_SECRET":          s.JWTSecret,
			"BLOB_SIGNING_SECRET": c.Blob.SigningSecret,
		} {
			if v != "" && containsPlaceholder(v) {
				return fmt.Errorf("%s contains a placeholder value", name)
			}
		}
		if c.Blob.SigningSecret == "" {
			return fmt.Errorf("BLOB_SIGNING_SECRET is required when ENVIRONMENT=production")
		}
	}
	if c.Blob.SigningSecret != "" && len(c.Blob.SigningSecret) < minSecretLength {
		return fmt.Errorf("BLOB_SIGNING_SECRET must be at least %d characters", minSecretLength)
	}
	return nil
}

func (c *Config) validateBackup() error {
	if c.Backup.CatalogPolicy == "fallback" && c.Backup.LocalDir == "" {
		return fmt.Errorf("BACKUP_LOCAL_DIR is required when CATALOG_POLICY=fallback")
	}
	return nil
}

func (c *Config) validateTransport() error {
	t := c.Transport
	if t.LocalSyncURL == "" {
		return nil
	}
	if err := validateHTTPURL(t.LocalSyncURL); err != nil {
		return fmt.Errorf("LOCAL_SYNC_URL: %w", err)
	}
	if t.LocalSyncSecret == "" {
		return fmt.Errorf("LOCAL_SYNC_SECRET is required when LOCAL_SYNC_URL is set")
	}
	return nil
}

// validateHTTPURL checks that raw is an absolute http or https URL with a host.
func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must include a host")
	}
	return nil
}

// containsPlaceholder reports whether value looks like an example value.
func containsPlaceholder(value string) bool {
	upper := strings.ToUpper(value)
	for _, p := range placeholderPatterns {
		if strings.Contains(upper, p) {
			return true
		}
	}
	return false
}
