// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package config

import (
	"net"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Security  SecurityConfig  `koanf:"security"`
	Store     StoreConfig     `koanf:"store"`
	Blob      BlobConfig      `koanf:"blob"`
	Backup    BackupConfig    `koanf:"backup"`
	Transport TransportConfig `koanf:"transport"`
	Outbox    OutboxConfig    `koanf:"outbox"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"gte=1,lte=65535"`
	Timeout         time.Duration `koanf:"timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	Environment     string        `koanf:"environment" validate:"oneof=development production prod test"`

	// MaxRequestBytes caps request bodies, which bounds restore payloads.
	MaxRequestBytes int64 `koanf:"max_request_bytes" validate:"gt=0"`
}

// SecurityConfig configures authentication, authorization and rate limits.
type SecurityConfig struct {
	// BackupSecret is the shared secret automation sends in X-Backup-Secret.
	BackupSecret string `koanf:"backup_secret"`

	JWTSecret      string        `koanf:"jwt_secret"`
	SessionTimeout time.Duration `koanf:"session_timeout" validate:"gt=0"`

	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_requests" validate:"gte=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	// PolicyPath is an optional Casbin policy CSV. Empty uses the built-in policy.
	PolicyPath string `koanf:"policy_path"`
}

// StoreConfig configures the live document store.
type StoreConfig struct {
	Path         string `koanf:"path" validate:"required_if=InMemory false"`
	InMemory     bool   `koanf:"in_memory"`
	SyncWrites   bool   `koanf:"sync_writes"`
	MaxBatchSize int    `koanf:"max_batch_size" validate:"gte=1,lte=10000"`
}

// BlobConfig configures the blob store backups are uploaded to.
type BlobConfig struct {
	Dir           string        `koanf:"dir" validate:"required"`
	BaseURL       string        `koanf:"base_url" validate:"required,http_url"`
	SigningSecret string        `koanf:"signing_secret"`
	URLTTL        time.Duration `koanf:"url_ttl" validate:"gt=0"`
}

// BackupConfig configures the catalog, the scheduler and autosave.
type BackupConfig struct {
	CatalogPolicy string         `koanf:"catalog_policy" validate:"oneof=strict fallback"`
	LocalDir      string         `koanf:"local_dir"`
	SchemaVersion int            `koanf:"schema_version" validate:"gte=1"`
	Schedule      ScheduleConfig `koanf:"schedule"`
	Autosave      AutosaveConfig `koanf:"autosave"`

	// BatchSize caps the ops per commit during replace. The store's own
	// MaxBatchSize still applies when it is lower.
	BatchSize int `koanf:"batch_size" validate:"gte=1,lte=10000"`
}

// ScheduleConfig configures scheduled backups.
type ScheduleConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Cron     string `koanf:"cron" validate:"required,cron5"`
	TimeZone string `koanf:"time_zone" validate:"required,timezone"`
}

// AutosaveConfig configures debounced backups after data changes.
type AutosaveConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Upload   bool          `koanf:"upload"`
	Debounce time.Duration `koanf:"debounce" validate:"gt=0"`
}

// TransportConfig configures uploads, downloads and their retry behavior.
type TransportConfig struct {
	// LocalSyncURL is an optional local sync server. Empty disables the strategy.
	LocalSyncURL    string `koanf:"local_sync_url"`
	LocalSyncSecret string `koanf:"local_sync_secret"`

	RetryAttempts  int           `koanf:"retry_attempts" validate:"gte=1,lte=20"`
	RetryBaseDelay time.Duration `koanf:"retry_base_delay" validate:"gt=0"`
	RetryMaxDelay  time.Duration `koanf:"retry_max_delay" validate:"gtefield=RetryBaseDelay"`

	BreakerFailures int           `koanf:"breaker_failures" validate:"gte=1"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout" validate:"gt=0"`

	DownloadTimeout time.Duration `koanf:"download_timeout" validate:"gt=0"`
	MaxPackageBytes int64         `koanf:"max_package_bytes" validate:"gt=0"`

	// PayloadCache is the number of downloaded backup documents kept in
	// memory. Zero disables the cache.
	PayloadCache    int           `koanf:"payload_cache" validate:"gte=0,lte=64"`
	PayloadCacheTTL time.Duration `koanf:"payload_cache_ttl" validate:"gte=0"`
}

// OutboxConfig configures the offline outbox and its flusher.
type OutboxConfig struct {
	Path          string        `koanf:"path" validate:"required_if=InMemory false"`
	InMemory      bool          `koanf:"in_memory"`
	FlushInterval time.Duration `koanf:"flush_interval" validate:"gt=0"`
	MaxAttempts   int           `koanf:"max_attempts" validate:"gte=1"`
	RatePerSecond float64       `koanf:"rate_per_second" validate:"gte=0"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`

	// Components overrides Level per component, e.g. outbox: debug.
	Components map[string]string `koanf:"components" validate:"dive,keys,required,endkeys,oneof=trace debug info warn error fatal panic disabled"`
}

// IsProduction returns true if the application is running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Server.Environment)
	return env == "production" || env == "prod"
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
