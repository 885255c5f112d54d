// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/menuvault/internal/auth"
	"github.com/tomtom215/menuvault/internal/authz"
	"github.com/tomtom215/menuvault/internal/middleware"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Middleware *ChiMiddlewareConfig

	// MaxRequestBytes caps request bodies. Zero leaves them unbounded.
	MaxRequestBytes int64
}

// Router wires the handlers into a chi mux.
type Router struct {
	handler       *Handler
	authenticator auth.Authenticator
	authorizer    authz.Authorizer
	chiMiddleware *ChiMiddleware
	maxBody       int64
}

// NewRouter creates a router.
func NewRouter(handler *Handler, authenticator auth.Authenticator, authorizer authz.Authorizer, cfg RouterConfig) *Router {
	return &Router{
		handler:       handler,
		authenticator: authenticator,
		authorizer:    authorizer,
		chiMiddleware: NewChiMiddleware(cfg.Middleware),
		maxBody:       cfg.MaxRequestBytes,
	}
}

// denyBare answers the remote trigger endpoints.
func denyBare(w http.ResponseWriter, _ *http.Request) {
	writeBareError(w, http.StatusForbidden, msgForbidden)
}

// denyEnvelope answers the /api/v1 endpoints.
func denyEnvelope(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Forbidden("administrator access required")
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	r.Use(router.chiMiddleware.CORS()) // CORS must be global to handle OPTIONS preflight

	// ========================
	// Probes
	// ========================
	r.Get("/health", router.handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	// Signed blob downloads carry their own authorization in the URL.
	r.Get("/blobs/*", router.handler.ServeBlob)

	// ========================
	// Remote Trigger Mirror
	// ========================
	r.Group(func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitRestore())
		r.Use(APISecurityHeaders())
		r.Use(limitBody(router.maxBody))
		r.Use(auth.Middleware(router.authenticator))
		r.Use(authz.Middleware(router.authorizer, denyBare))

		r.Post("/restore", router.handler.Restore)
	})

	r.Group(func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitSync())
		r.Use(limitBody(router.maxBody))
		r.Use(auth.Middleware(router.authenticator))
		r.Use(authz.Middleware(router.authorizer, denyBare))

		r.Post("/sync/backup", router.handler.SyncBackup)
	})

	// ========================
	// Admin API
	// ========================
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(limitBody(router.maxBody))
		r.Use(auth.Middleware(router.authenticator))
		r.Use(authz.Middleware(router.authorizer, denyEnvelope))

		r.Route("/backups", func(r chi.Router) {
			r.Get("/", router.handler.ListBackups)
			r.Post("/", router.handler.CreateBackup)
			r.Get("/stats", router.handler.BackupStats)
			r.Get("/{id}", router.handler.GetBackup)
			r.Delete("/{id}", router.handler.DeleteBackup)
			r.Get("/{id}/payload", router.handler.GetBackupPayload)
			r.Post("/{id}/restore", router.handler.RestoreBackup)
		})

		r.Get("/export", router.handler.Export)
		r.Post("/import/preview", router.handler.ImportPreview)

		r.Route("/outbox", func(r chi.Router) {
			r.Get("/", router.handler.ListOutbox)
			r.Post("/flush", router.handler.FlushOutbox)
			r.Delete("/", router.handler.ClearOutbox)
			r.Delete("/{id}", router.handler.RemoveOutboxItem)
		})

		r.Get("/autosave", router.handler.AutosaveState)
		r.Post("/autosave/trigger", router.handler.TriggerAutosave)
		r.Get("/schedule", router.handler.ScheduleState)
	})

	return r
}
