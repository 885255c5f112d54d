// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

// Package config loads and validates the application configuration.
//
// Configuration is layered with Koanf. Later layers override earlier ones:
//
//  1. Built-in defaults (defaultConfig)
//  2. YAML file: CONFIG_PATH, else config.yaml, config.yml,
//     /etc/menuvault/config.yaml or /etc/menuvault/config.yml
//  3. Environment variables
//
// Only environment variables listed in the mapping table are read, so
// unrelated variables never leak into the configuration.
//
// # Environment Variables
//
// Server:
//   - HTTP_HOST, HTTP_PORT, HTTP_TIMEOUT, SHUTDOWN_TIMEOUT
//   - ENVIRONMENT: development (default) or production
//   - MAX_REQUEST_BYTES: request body limit
//
// Security:
//   - BACKUP_SECRET: shared secret for automation (X-Backup-Secret header)
//   - JWT_SECRET: HS256 signing secret, at least 32 characters
//   - CORS_ORIGINS: comma-separated list
//   - RATE_LIMIT_REQUESTS, RATE_LIMIT_WINDOW, DISABLE_RATE_LIMIT
//   - CASBIN_POLICY_PATH: optional policy CSV
//
// Backups:
//   - CATALOG_POLICY: strict (default) or fallback
//   - BACKUP_LOCAL_DIR: metadata.json directory for the fallback catalog
//   - BACKUP_SCHEDULE_ENABLED, BACKUP_CRON (default "0 3 * * *"), TIME_ZONE
//   - AUTOSAVE_ENABLED, AUTOSAVE_UPLOAD, AUTOSAVE_DEBOUNCE
//   - BACKUP_BATCH_SIZE: ops per replace commit (default 400)
//
// Storage and transport:
//   - STORE_PATH, STORE_IN_MEMORY, STORE_MAX_BATCH_SIZE
//   - BLOB_DIR, PUBLIC_BASE_URL, BLOB_SIGNING_SECRET, BLOB_URL_TTL
//   - LOCAL_SYNC_URL, LOCAL_SYNC_SECRET
//   - RETRY_ATTEMPTS, RETRY_BASE_DELAY, RETRY_MAX_DELAY
//   - BREAKER_FAILURES, BREAKER_TIMEOUT, DOWNLOAD_TIMEOUT, MAX_PACKAGE_BYTES
//   - PAYLOAD_CACHE, PAYLOAD_CACHE_TTL
//   - OUTBOX_PATH, OUTBOX_FLUSH_INTERVAL, OUTBOX_MAX_ATTEMPTS, OUTBOX_RATE_PER_SECOND
//
// Logging:
//   - LOG_LEVEL, LOG_FORMAT (json or console), LOG_CALLER
//   - LOG_COMPONENTS: per-component levels, e.g. "outbox=debug,reconcile=warn"
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal().Err(err).Msg("Failed to load configuration")
//	}
package config
