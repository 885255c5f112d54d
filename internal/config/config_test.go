// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// validConfig returns the defaults plus the minimum needed to pass validation.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.BackupSecret = "automation-secret"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Server.Port != 8787 {
		t.Errorf("Server.Port = %d, want 8787", cfg.Server.Port)
	}
	if cfg.Backup.Schedule.Cron != "0 3 * * *" {
		t.Errorf("Backup.Schedule.Cron = %q, want daily at 03:00", cfg.Backup.Schedule.Cron)
	}
	if cfg.Backup.Schedule.TimeZone != "UTC" {
		t.Errorf("Backup.Schedule.TimeZone = %q, want UTC", cfg.Backup.Schedule.TimeZone)
	}
	if cfg.Backup.CatalogPolicy != "strict" {
		t.Errorf("Backup.CatalogPolicy = %q, want strict", cfg.Backup.CatalogPolicy)
	}
	if cfg.Backup.Autosave.Debounce != 5*time.Second {
		t.Errorf("Backup.Autosave.Debounce = %v, want 5s", cfg.Backup.Autosave.Debounce)
	}
	if cfg.Store.MaxBatchSize != 500 {
		t.Errorf("Store.MaxBatchSize = %d, want 500", cfg.Store.MaxBatchSize)
	}
	if cfg.Backup.BatchSize != 400 {
		t.Errorf("Backup.BatchSize = %d, want 400", cfg.Backup.BatchSize)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestDefaultConfigValidatesWithSecret(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

// isolate points the loader at an empty directory so no stray config file
// is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(ConfigPathEnvVar, filepath.Join(dir, "missing.yaml"))
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	saved := DefaultConfigPaths
	DefaultConfigPaths = []string{"config.yaml"}
	t.Cleanup(func() { DefaultConfigPaths = saved })
	return dir
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("BACKUP_SECRET", "automation-secret")
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("BACKUP_CRON", "30 2 * * 1-5")
	t.Setenv("TIME_ZONE", "Europe/Berlin")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("AUTOSAVE_DEBOUNCE", "2s")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("BACKUP_BATCH_SIZE", "250")
	t.Setenv("LOG_COMPONENTS", "outbox=debug, reconcile=warn")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Backup.Schedule.Cron != "30 2 * * 1-5" {
		t.Errorf("Cron = %q", cfg.Backup.Schedule.Cron)
	}
	if cfg.Backup.Schedule.TimeZone != "Europe/Berlin" {
		t.Errorf("TimeZone = %q", cfg.Backup.Schedule.TimeZone)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Backup.Autosave.Debounce != 2*time.Second {
		t.Errorf("Debounce = %v, want 2s", cfg.Backup.Autosave.Debounce)
	}
	if got := cfg.Security.CORSOrigins; len(got) != 2 || got[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", got)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
	if cfg.Backup.BatchSize != 250 {
		t.Errorf("Backup.BatchSize = %d, want 250", cfg.Backup.BatchSize)
	}
	if got := cfg.Logging.Components; len(got) != 2 || got["outbox"] != "debug" || got["reconcile"] != "warn" {
		t.Errorf("Logging.Components = %v", got)
	}
}

func TestLoad_MalformedLogComponents(t *testing.T) {
	isolate(t)
	t.Setenv("BACKUP_SECRET", "automation-secret")
	t.Setenv("LOG_COMPONENTS", "outbox")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() succeeded with a malformed LOG_COMPONENTS")
	}
	if !strings.Contains(err.Error(), "logging.components") {
		t.Errorf("error %q does not name the field", err)
	}
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "menuvault.yaml")
	yaml := `
security:
  backup_secret: from-file
backup:
  catalog_policy: fallback
  local_dir: /var/lib/menuvault
  schedule:
    enabled: true
    cron: "15 4 * * *"
transport:
  retry_attempts: 7
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("RETRY_ATTEMPTS", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Security.BackupSecret != "from-file" {
		t.Errorf("BackupSecret = %q", cfg.Security.BackupSecret)
	}
	if cfg.Backup.CatalogPolicy != "fallback" || cfg.Backup.LocalDir != "/var/lib/menuvault" {
		t.Errorf("Backup = %+v", cfg.Backup)
	}
	if !cfg.Backup.Schedule.Enabled || cfg.Backup.Schedule.Cron != "15 4 * * *" {
		t.Errorf("Schedule = %+v", cfg.Backup.Schedule)
	}
	if cfg.Transport.RetryAttempts != 4 {
		t.Errorf("RetryAttempts = %d, env should win over file", cfg.Transport.RetryAttempts)
	}
	// Untouched values keep their defaults.
	if cfg.Backup.Schedule.TimeZone != "UTC" {
		t.Errorf("TimeZone = %q, want default UTC", cfg.Backup.Schedule.TimeZone)
	}
}

func TestLoad_InvalidCron(t *testing.T) {
	isolate(t)
	t.Setenv("BACKUP_SECRET", "automation-secret")
	t.Setenv("BACKUP_CRON", "every day")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() succeeded with an invalid cron expression")
	}
	if !strings.Contains(err.Error(), "backup.schedule.cron") {
		t.Errorf("error %q does not name the field", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "no secrets",
			mutate:  func(c *Config) { c.Security.BackupSecret = "" },
			wantErr: "BACKUP_SECRET or JWT_SECRET",
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.Security.JWTSecret = "short" },
			wantErr: "JWT_SECRET must be at least 32",
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port",
		},
		{
			name:    "unknown catalog policy",
			mutate:  func(c *Config) { c.Backup.CatalogPolicy = "lenient" },
			wantErr: "backup.catalog_policy",
		},
		{
			name: "fallback without local dir",
			mutate: func(c *Config) {
				c.Backup.CatalogPolicy = "fallback"
				c.Backup.LocalDir = ""
			},
			wantErr: "BACKUP_LOCAL_DIR",
		},
		{
			name:    "unknown time zone",
			mutate:  func(c *Config) { c.Backup.Schedule.TimeZone = "Mars/Olympus" },
			wantErr: "backup.schedule.time_zone",
		},
		{
			name:    "retry max below base",
			mutate:  func(c *Config) { c.Transport.RetryMaxDelay = time.Millisecond },
			wantErr: "transport.retry_max_delay",
		},
		{
			name:    "local sync url scheme",
			mutate:  func(c *Config) { c.Transport.LocalSyncURL = "ftp://sync.local" },
			wantErr: "LOCAL_SYNC_URL",
		},
		{
			name:    "local sync without secret",
			mutate:  func(c *Config) { c.Transport.LocalSyncURL = "http://sync.local:8080" },
			wantErr: "LOCAL_SYNC_SECRET",
		},
		{
			name: "production placeholder secret",
			mutate: func(c *Config) {
				c.Server.Environment = "production"
				c.Security.BackupSecret = "changeme"
				c.Blob.SigningSecret = testSecret
			},
			wantErr: "placeholder",
		},
		{
			name:    "production without signing secret",
			mutate:  func(c *Config) { c.Server.Environment = "production" },
			wantErr: "BLOB_SIGNING_SECRET",
		},
		{
			name:    "unknown component log level",
			mutate:  func(c *Config) { c.Logging.Components = map[string]string{"outbox": "chatty"} },
			wantErr: "logging.components",
		},
		{
			name:    "in-memory store needs no path",
			mutate:  func(c *Config) { c.Store.InMemory = true; c.Store.Path = "" },
			wantErr: "",
		},
		{
			name:    "on-disk store needs a path",
			mutate:  func(c *Config) { c.Store.Path = "" },
			wantErr: "store.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := map[string]string{
		"BACKUP_CRON":    "backup.schedule.cron",
		"backup_secret":  "security.backup_secret",
		"LOG_LEVEL":      "logging.level",
		"LOG_COMPONENTS": "logging.components",
		"HOME":           "",
		"PATH":           "",
	}
	for in, want := range tests {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestServerAddr(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 8787}
	if got := s.Addr(); got != "127.0.0.1:8787" {
		t.Errorf("Addr() = %q", got)
	}
}
