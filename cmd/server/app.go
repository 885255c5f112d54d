// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/menuvault/internal/api"
	"github.com/tomtom215/menuvault/internal/auth"
	"github.com/tomtom215/menuvault/internal/authz"
	"github.com/tomtom215/menuvault/internal/backup"
	"github.com/tomtom215/menuvault/internal/blobstore"
	"github.com/tomtom215/menuvault/internal/catalog"
	"github.com/tomtom215/menuvault/internal/config"
	"github.com/tomtom215/menuvault/internal/docstore"
	"github.com/tomtom215/menuvault/internal/logging"
	"github.com/tomtom215/menuvault/internal/models"
	"github.com/tomtom215/menuvault/internal/outbox"
	"github.com/tomtom215/menuvault/internal/reconcile"
	"github.com/tomtom215/menuvault/internal/retry"
	"github.com/tomtom215/menuvault/internal/snapshot"
	"github.com/tomtom215/menuvault/internal/supervisor"
	"github.com/tomtom215/menuvault/internal/supervisor/services"
	"github.com/tomtom215/menuvault/internal/transport"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// app holds the wired components. close releases the stores in reverse
// order of opening.
type app struct {
	tree    *supervisor.SupervisorTree
	server  *http.Server
	closers []func() error
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newEngine builds the reconciliation engine. Replace commits are sized by
// backup.batch_size; the engine further caps them at the store's limit.
func newEngine(cfg *config.Config, store docstore.Store, authorizer authz.Authorizer, exporter reconcile.Exporter, saver reconcile.RecordSaver) *reconcile.Engine {
	return reconcile.NewEngine(store, authorizer, exporter, saver, reconcile.WithBatchSize(cfg.Backup.BatchSize))
}

//nolint:gocyclo // Sequential wiring of every component
func buildApp(cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.close() //nolint:errcheck // already failing
		}
	}()

	// === STORAGE ===
	store, err := docstore.Open(docstore.Config{
		Path:         cfg.Store.Path,
		InMemory:     cfg.Store.InMemory,
		SyncWrites:   cfg.Store.SyncWrites,
		MaxBatchSize: cfg.Store.MaxBatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("document store: %w", err)
	}
	a.closers = append(a.closers, store.Close)

	ob, err := outbox.Open(outbox.Config{
		Path:       cfg.Outbox.Path,
		InMemory:   cfg.Outbox.InMemory,
		SyncWrites: cfg.Store.SyncWrites,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox: %w", err)
	}
	a.closers = append(a.closers, ob.Close)

	blobs, err := blobstore.NewFileStore(blobstore.Config{
		Root:          cfg.Blob.Dir,
		BaseURL:       cfg.Blob.BaseURL,
		SigningSecret: cfg.Blob.SigningSecret,
		URLTTL:        cfg.Blob.URLTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}

	// === AUTHENTICATION AND AUTHORIZATION ===
	enforcer, err := authz.NewEnforcer(cfg.Security.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("authorization policy: %w", err)
	}

	var authenticators []auth.Authenticator
	if cfg.Security.JWTSecret != "" {
		tokens, err := auth.NewTokenManager(cfg.Security.JWTSecret, cfg.Security.SessionTimeout)
		if err != nil {
			return nil, fmt.Errorf("jwt: %w", err)
		}
		authenticators = append(authenticators, auth.NewJWTAuthenticator(tokens))
		logging.Info().Msg("JWT authentication enabled")
	}
	if cfg.Security.BackupSecret != "" {
		authenticators = append(authenticators, auth.NewSecretAuthenticator(cfg.Security.BackupSecret))
		logging.Info().Str("header", auth.SecretHeader).Msg("Shared secret authentication enabled")
	}
	authenticator := auth.NewChain(authenticators...)

	// === BACKUP PIPELINE ===
	cat, err := catalog.New(store, enforcer, catalog.Config{
		Policy:   catalog.Policy(cfg.Backup.CatalogPolicy),
		LocalDir: cfg.Backup.LocalDir,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	exporter := snapshot.NewExporter(store, snapshot.WithSchemaVersion(fmt.Sprintf("%d.0.0", cfg.Backup.SchemaVersion)))

	uploadRetry := retry.Policy{
		MaxAttempts: cfg.Transport.RetryAttempts,
		Backoff:     retry.Exponential(cfg.Transport.RetryBaseDelay, cfg.Transport.RetryMaxDelay),
	}
	httpClient := &http.Client{Timeout: cfg.Transport.DownloadTimeout}

	uploaderOpts := []transport.UploaderOption{
		transport.WithStrategy(transport.NewBlobStrategy(blobs, transport.BreakerConfig{
			Name:                "blob-store",
			ConsecutiveFailures: uint32(cfg.Transport.BreakerFailures), //nolint:gosec // validated positive
			OpenTimeout:         cfg.Transport.BreakerTimeout,
		}), uploadRetry),
	}
	if cfg.Transport.LocalSyncURL != "" {
		uploaderOpts = append(uploaderOpts, transport.WithStrategy(
			transport.NewLocalSyncStrategy(cfg.Transport.LocalSyncURL, cfg.Transport.LocalSyncSecret, httpClient),
			retry.Policy{MaxAttempts: 1},
		))
	}
	uploaderOpts = append(uploaderOpts, transport.WithStrategy(transport.NewOutboxStrategy(ob), retry.Policy{MaxAttempts: 1}))
	uploader := transport.NewUploader(enforcer, uploaderOpts...)
	logging.Info().Strs("strategies", uploader.Strategies()).Msg("Upload chain configured")

	downloader := transport.NewDownloader(cat, blobs, httpClient)
	downloader.SetMaxPackageBytes(cfg.Transport.MaxPackageBytes)
	downloader.EnableCache(cfg.Transport.PayloadCache, cfg.Transport.PayloadCacheTTL)

	engine := newEngine(cfg, store, enforcer, exporter, cat)
	backups := backup.NewService(exporter, uploader, cat)

	scheduler, err := backup.NewScheduler(backups, backup.ScheduleConfig{
		Enabled:  cfg.Backup.Schedule.Enabled,
		Cron:     cfg.Backup.Schedule.Cron,
		TimeZone: cfg.Backup.Schedule.TimeZone,
		Retry:    uploadRetry,
	})
	if err != nil {
		return nil, fmt.Errorf("backup schedule: %w", err)
	}

	autosaver := backup.NewAutosaver(backup.AutosaveConfig{
		Enabled:  cfg.Backup.Autosave.Enabled,
		Upload:   cfg.Backup.Autosave.Upload,
		Debounce: cfg.Backup.Autosave.Debounce,
	}, backups)
	engine.SetOnChange(func(mode string) {
		logging.Debug().Str("mode", mode).Msg("Live data changed, scheduling autosave")
		autosaver.Notify()
	})

	flusher := outbox.NewFlusher(ob, map[string]outbox.Handler{
		transport.OutboxKindBackupFile: transport.NewBackupFileHandler(blobs),
	}, outbox.FlusherConfig{
		Interval: cfg.Outbox.FlushInterval,
		Policy: retry.Policy{
			MaxAttempts: cfg.Outbox.MaxAttempts,
			Backoff:     retry.Exponential(cfg.Transport.RetryBaseDelay, retry.DefaultMaxBackoff),
		},
		RatePerSecond: cfg.Outbox.RatePerSecond,
		Burst:         1,
	})

	// === HTTP ===
	handler := api.NewHandler(api.Dependencies{
		Engine:   engine,
		Catalog:  cat,
		Backups:  backups,
		Payloads: downloader,
		Exporter: exporter,
		Outbox:   ob,
		Flusher:  flusher,
		Autosave: autosaver,
		Schedule: scheduler,
		Blobs:    blobs,
		Version:  version,
	})
	router := api.NewRouter(handler, authenticator, enforcer, api.RouterConfig{
		Middleware: &api.ChiMiddlewareConfig{
			CORSAllowedOrigins: cfg.Security.CORSOrigins,
			RateLimitRequests:  cfg.Security.RateLimitReqs,
			RateLimitWindow:    cfg.Security.RateLimitWindow,
			RateLimitDisabled:  cfg.Security.RateLimitDisabled,
		},
		MaxRequestBytes: cfg.Server.MaxRequestBytes,
	})
	addr := cfg.Server.Addr()
	a.server = &http.Server{
		Addr:              addr,
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}

	// === SUPERVISOR TREE ===
	a.tree = supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if scheduler.Enabled() {
		a.tree.AddJob(scheduler)
		logging.Info().
			Str("cron", cfg.Backup.Schedule.Cron).
			Str("time_zone", cfg.Backup.Schedule.TimeZone).
			Time("next_run", scheduler.NextRun()).
			Msg("Scheduled export enabled")
	}
	a.tree.AddJob(autosaver)
	a.tree.AddJob(flusher)
	a.tree.AddJob(services.NewStoreGCService(map[string]services.GarbageCollector{
		"documents": store,
		"outbox":    ob,
	}, services.DefaultGCInterval))
	a.tree.AddAPIService(services.NewHTTPServerService(a.server, addr, cfg.Server.ShutdownTimeout))

	a.closers = append(a.closers, func() error {
		autosaver.Dispose()
		return nil
	})

	logging.Info().
		Str("catalog_policy", string(cat.Policy())).
		Str("store", cfg.Store.Path).
		Bool("store_in_memory", cfg.Store.InMemory).
		Int("collections", len(models.Collections)).
		Msg("Menuvault components wired")
	return a, nil
}
