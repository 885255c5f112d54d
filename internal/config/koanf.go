// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/menuvault/config.yaml",
	"/etc/menuvault/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8787,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			Environment:     "development",
			MaxRequestBytes: 32 << 20, // 32MB
		},
		Security: SecurityConfig{
			SessionTimeout:  24 * time.Hour,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: 1 * time.Minute,
		},
		Store: StoreConfig{
			Path:         "/data/menu",
			MaxBatchSize: 500,
		},
		Blob: BlobConfig{
			Dir:     "/data/blobs",
			BaseURL: "http://localhost:8787",
			URLTTL:  7 * 24 * time.Hour,
		},
		Backup: BackupConfig{
			CatalogPolicy: "strict",
			LocalDir:      "/data/backups",
			SchemaVersion: 1,
			BatchSize:     400,
			Schedule: ScheduleConfig{
				Enabled:  false,
				Cron:     "0 3 * * *",
				TimeZone: "UTC",
			},
			Autosave: AutosaveConfig{
				Enabled:  false,
				Upload:   true,
				Debounce: 5 * time.Second,
			},
		},
		Transport: TransportConfig{
			RetryAttempts:   3,
			RetryBaseDelay:  500 * time.Millisecond,
			RetryMaxDelay:   10 * time.Second,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
			DownloadTimeout: 60 * time.Second,
			MaxPackageBytes: 64 << 20, // 64MB
			PayloadCache:    4,
			PayloadCacheTTL: 10 * time.Minute,
		},
		Outbox: OutboxConfig{
			Path:          "/data/outbox",
			FlushInterval: 30 * time.Second,
			MaxAttempts:   10,
			RatePerSecond: 2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf with layered sources.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables
//  2. Config file (config.yaml, or the path in CONFIG_PATH)
//  3. Built-in defaults
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}
	if err := processMapFields(k); err != nil {
		return nil, fmt.Errorf("failed to process map fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are koanf paths that accept comma-separated env values.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields splits comma-separated strings into slices. Values
// already loaded as slices (from YAML) are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// mapConfigPaths are koanf paths that accept "name=value,name=value" env values.
var mapConfigPaths = []string{
	"logging.components",
}

// processMapFields splits "name=value" lists into maps. Values already
// loaded as maps (from YAML) are left alone.
func processMapFields(k *koanf.Koanf) error {
	for _, path := range mapConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		m := make(map[string]any)
		for _, pair := range strings.Split(strVal, ",") {
			name, value, found := strings.Cut(pair, "=")
			name = strings.TrimSpace(name)
			if !found || name == "" {
				return fmt.Errorf("%s: malformed entry %q, want name=value", path, strings.TrimSpace(pair))
			}
			m[name] = strings.TrimSpace(value)
		}
		k.Delete(path)
		if err := k.Set(path, m); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lowercased environment variable names to koanf paths.
var envMappings = map[string]string{
	// Server
	"http_host":         "server.host",
	"http_port":         "server.port",
	"http_timeout":      "server.timeout",
	"shutdown_timeout":  "server.shutdown_timeout",
	"environment":       "server.environment",
	"max_request_bytes": "server.max_request_bytes",

	// Security
	"backup_secret":       "security.backup_secret",
	"jwt_secret":          "security.jwt_secret",
	"session_timeout":     "security.session_timeout",
	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_requests",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"casbin_policy_path":  "security.policy_path",

	// Store
	"store_path":           "store.path",
	"store_in_memory":      "store.in_memory",
	"store_sync_writes":    "store.sync_writes",
	"store_max_batch_size": "store.max_batch_size",

	// Blob
	"blob_dir":            "blob.dir",
	"public_base_url":     "blob.base_url",
	"blob_signing_secret": "blob.signing_secret",
	"blob_url_ttl":        "blob.url_ttl",

	// Backup
	"catalog_policy":          "backup.catalog_policy",
	"backup_local_dir":        "backup.local_dir",
	"schema_version":          "backup.schema_version",
	"backup_batch_size":       "backup.batch_size",
	"backup_schedule_enabled": "backup.schedule.enabled",
	"backup_cron":             "backup.schedule.cron",
	"time_zone":               "backup.schedule.time_zone",
	"autosave_enabled":        "backup.autosave.enabled",
	"autosave_upload":         "backup.autosave.upload",
	"autosave_debounce":       "backup.autosave.debounce",

	// Transport
	"local_sync_url":    "transport.local_sync_url",
	"local_sync_secret": "transport.local_sync_secret",
	"retry_attempts":    "transport.retry_attempts",
	"retry_base_delay":  "transport.retry_base_delay",
	"retry_max_delay":   "transport.retry_max_delay",
	"breaker_failures":  "transport.breaker_failures",
	"breaker_timeout":   "transport.breaker_timeout",
	"download_timeout":  "transport.download_timeout",
	"max_package_bytes": "transport.max_package_bytes",
	"payload_cache":     "transport.payload_cache",
	"payload_cache_ttl": "transport.payload_cache_ttl",

	// Outbox
	"outbox_path":            "outbox.path",
	"outbox_in_memory":       "outbox.in_memory",
	"outbox_flush_interval":  "outbox.flush_interval",
	"outbox_max_attempts":    "outbox.max_attempts",
	"outbox_rate_per_second": "outbox.rate_per_second",

	// Logging
	"log_level":      "logging.level",
	"log_format":     "logging.format",
	"log_caller":     "logging.caller",
	"log_components": "logging.components",
}

// envTransformFunc maps environment variable names to koanf paths.
// Unmapped variables return "" and are skipped, so unrelated environment
// variables never leak into the configuration.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
