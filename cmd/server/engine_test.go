// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/tomtom215/menuvault/internal/auth"
	"github.com/tomtom215/menuvault/internal/authz"
	"github.com/tomtom215/menuvault/internal/config"
	"github.com/tomtom215/menuvault/internal/docstore"
	"github.com/tomtom215/menuvault/internal/models"
	"github.com/tomtom215/menuvault/internal/reconcile"
	"github.com/tomtom215/menuvault/internal/snapshot"
)

// commitCounter records the size of every Commit per collection.
type commitCounter struct {
	docstore.Store
	mu    sync.Mutex
	sizes map[string][]int
}

func (s *commitCounter) Collection(name string) docstore.Collection {
	return &countedCollection{Collection: s.Store.Collection(name), name: name, store: s}
}

type countedCollection struct {
	docstore.Collection
	name  string
	store *commitCounter
}

func (c *countedCollection) Commit(ctx context.Context, ops []docstore.Op) error {
	if len(ops) > 0 {
		c.store.mu.Lock()
		c.store.sizes[c.name] = append(c.store.sizes[c.name], len(ops))
		c.store.mu.Unlock()
	}
	return c.Collection.Commit(ctx, ops)
}

type discardSaver struct{}

func (discardSaver) SaveBackupRecord(context.Context, *models.BackupRecord) (string, error) {
	return "pre-1", nil
}

// loadDefaults loads the configuration with no file and only the secret set.
func loadDefaults(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv(config.ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	saved := config.DefaultConfigPaths
	config.DefaultConfigPaths = nil
	t.Cleanup(func() { config.DefaultConfigPaths = saved })
	t.Setenv("BACKUP_SECRET", testSecret)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load() = %v", err)
	}
	return cfg
}

func TestNewEngine_DefaultConfigCommitsInChunksOf400(t *testing.T) {
	cfg := loadDefaults(t)

	base, err := docstore.Open(docstore.Config{InMemory: true, MaxBatchSize: cfg.Store.MaxBatchSize})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = base.Close() })
	store := &commitCounter{Store: base, sizes: make(map[string][]int)}

	enforcer, err := authz.NewEnforcer("")
	if err != nil {
		t.Fatal(err)
	}
	engine := newEngine(cfg, store, enforcer, snapshot.NewExporter(store), discardSaver{})

	items := make([]models.Record, 450)
	for i := range items {
		items[i] = models.Record{"id": fmt.Sprintf("item-%03d", i), "name": "Dish", "price": i}
	}
	pkg := &models.ExportPackage{
		Meta:       &models.Meta{Version: models.DefaultSchemaVersion, CreatedAt: 1700000000000},
		Items:      items,
		Categories: []models.Record{},
		Sections:   []models.Record{},
	}

	ctx := auth.WithIdentity(context.Background(), auth.ServiceIdentity("replace-test"))
	res, err := engine.ReplaceFromExport(ctx, pkg, reconcile.ReplaceOptions{})
	if err != nil {
		t.Fatalf("ReplaceFromExport() error = %v", err)
	}
	if res.Report.Added["items"] != 450 {
		t.Errorf("added = %d, want 450", res.Report.Added["items"])
	}

	got := store.sizes["menuItems"]
	if len(got) != 2 || got[0] != 400 || got[1] != 50 {
		t.Errorf("menuItems commit sizes = %v, want [400 50]", got)
	}
}
