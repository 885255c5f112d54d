// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/menuvault/internal/auth"
	"github.com/tomtom215/menuvault/internal/docstore"
	"github.com/tomtom215/menuvault/internal/models"
)

// mockAuthorizer grants admin rights based on a flag.
type mockAuthorizer struct {
	admin bool
}

func (m *mockAuthorizer) RequireAdmin(ctx context.Context) (*auth.Identity, error) {
	if !m.admin {
		return nil, models.ErrPermissionDenied
	}
	return auth.IdentityFromContext(ctx), nil
}

func openTestStore(t *testing.T) *docstore.BadgerStore {
	t.Helper()
	store, err := docstore.Open(docstore.Config{InMemory: true})
	if err != nil {
		t.Fatalf("docstore.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func adminCtx() context.Context {
	return auth.WithIdentity(context.Background(), &auth.Identity{Subject: "alice", Roles: []string{auth.RoleAdmin}})
}

func samplePackage() *models.ExportPackage {
	return &models.ExportPackage{
		Meta:       &models.Meta{Version: "1.0.0", CreatedAt: 1700000000000, Checksum: "abc"},
		Items:      []models.Record{{"id": "i1", "name": "Soup", "price": json.Number("9.50")}},
		Categories: []models.Record{},
		Sections:   []models.Record{},
		Profiles:   []models.Record{},
		Roles:      []models.Record{},
	}
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	ctx := adminCtx()
	c, err := New(openTestStore(t), &mockAuthorizer{admin: true}, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if c.Policy() != PolicyStrict {
		t.Errorf("default policy = %s, want strict", c.Policy())
	}

	id, err := c.SaveBackupRecord(ctx, &models.BackupRecord{
		Meta:    *samplePackage().Meta,
		Trigger: models.TriggerPreRestore,
		Payload: samplePackage(),
	})
	if err != nil {
		t.Fatalf("SaveBackupRecord() error = %v", err)
	}
	if id == "" || strings.HasPrefix(id, LocalIDPrefix) {
		t.Errorf("id = %q, want a primary UUID", id)
	}

	got, err := c.GetBackup(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.PerformedBy != "alice" {
		t.Errorf("performedBy = %q, want alice", got.PerformedBy)
	}
	if !got.HasPayload() || len(got.Payload.Items) != 1 {
		t.Fatalf("payload = %+v", got.Payload)
	}
	if price, ok := got.Payload.Items[0]["price"].(json.Number); !ok || price.String() != "9.50" {
		t.Errorf("price = %#v, want json.Number 9.50", got.Payload.Items[0]["price"])
	}
	if got.CreatedAt.IsZero() {
		t.Error("createdAt not stamped")
	}
}

func TestStrictPolicyDeniesNonAdmin(t *testing.T) {
	store := openTestStore(t)
	c, _ := New(store, &mockAuthorizer{admin: false}, Config{Policy: PolicyStrict})
	ctx := context.Background()

	if _, err := c.SaveBackupRecord(ctx, &models.BackupRecord{Trigger: models.TriggerManual}); !errors.Is(err, models.ErrPermissionDenied) {
		t.Errorf("SaveBackupRecord() error = %v, want ErrPermissionDenied", err)
	}
	if _, err := c.ListBackups(ctx, ListOptions{}); !errors.Is(err, models.ErrPermissionDenied) {
		t.Errorf("ListBackups() error = %v, want ErrPermissionDenied", err)
	}

	docs, _ := store.Collection(models.BackupsCollection).ReadAll(context.Background())
	if len(docs) != 0 {
		t.Errorf("strict denial wrote %d documents", len(docs))
	}
}

func TestFallbackPolicyUsesLocalStore(t *testing.T) {
	dir := t.TempDir()
	c, err := New(openTestStore(t), &mockAuthorizer{admin: false}, Config{Policy: PolicyFallback, LocalDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	fixed := time.UnixMilli(1700000000123)
	c.now = func() time.Time { return fixed }
	ctx := context.Background()

	first, err := c.SaveBackupRecord(ctx, &models.BackupRecord{Trigger: models.TriggerAutosave, Payload: samplePackage()})
	if err != nil {
		t.Fatalf("SaveBackupRecord() error = %v", err)
	}
	if first != "local_1700000000123" {
		t.Errorf("id = %q", first)
	}
	second, _ := c.SaveBackupRecord(ctx, &models.BackupRecord{Trigger: models.TriggerAutosave})
	if second == first {
		t.Error("local ids collided within the same millisecond")
	}

	list, err := c.ListBackups(ctx, ListOptions{})
	if err != nil || len(list) != 2 {
		t.Fatalf("ListBackups() = %d, %v", len(list), err)
	}
	if list[0].Payload != nil {
		t.Error("listing should strip payloads")
	}

	got, err := c.GetBackup(ctx, first)
	if err != nil || !got.HasPayload() {
		t.Fatalf("GetBackup(local) = %+v, %v", got, err)
	}
	if got.PerformedBy != "anonymous" {
		t.Errorf("performedBy = %q", got.PerformedBy)
	}

	info, err := os.Stat(filepath.Join(dir, metadataFileName))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("metadata.json mode = %v, want 0600", info.Mode().Perm())
	}

	reopened, err := New(openTestStore(t), &mockAuthorizer{}, Config{Policy: PolicyFallback, LocalDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	if list, _ := reopened.ListBackups(ctx, ListOptions{}); len(list) != 2 {
		t.Errorf("records after reopen = %d, want 2", len(list))
	}
}

func TestListFilteringAndPagination(t *testing.T) {
	ctx := adminCtx()
	c, _ := New(openTestStore(t), &mockAuthorizer{admin: true}, Config{})

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	triggers := []models.BackupTrigger{
		models.TriggerManual, models.TriggerScheduled, models.TriggerScheduled, models.TriggerManual,
	}
	for i, trig := range triggers {
		at := base.Add(time.Duration(i) * time.Hour)
		c.now = func() time.Time { return at }
		if _, err := c.SaveBackupRecord(ctx, &models.BackupRecord{Trigger: trig, SizeBytes: 10}); err != nil {
			t.Fatal(err)
		}
	}

	scheduled := models.TriggerScheduled
	since := base.Add(90 * time.Minute)

	tests := []struct {
		name  string
		opts  ListOptions
		count int
		first time.Time
	}{
		{"all newest first", ListOptions{}, 4, base.Add(3 * time.Hour)},
		{"ascending", ListOptions{SortAsc: true}, 4, base},
		{"by trigger", ListOptions{Trigger: &scheduled}, 2, base.Add(2 * time.Hour)},
		{"since", ListOptions{Since: &since}, 2, base.Add(3 * time.Hour)},
		{"limit", ListOptions{Limit: 1}, 1, base.Add(3 * time.Hour)},
		{"offset", ListOptions{Offset: 3}, 1, base},
		{"offset past end", ListOptions{Offset: 10}, 0, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.ListBackups(ctx, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.count {
				t.Fatalf("count = %d, want %d", len(got), tt.count)
			}
			if tt.count > 0 && !got[0].CreatedAt.Equal(tt.first) {
				t.Errorf("first createdAt = %v, want %v", got[0].CreatedAt, tt.first)
			}
		})
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalBackups != 4 || stats.TotalSizeBytes != 40 || stats.ByTrigger[models.TriggerScheduled] != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if !stats.Oldest.Equal(base) || !stats.Newest.Equal(base.Add(3*time.Hour)) {
		t.Errorf("range = %v..%v", stats.Oldest, stats.Newest)
	}
}

func TestDeleteBackup(t *testing.T) {
	ctx := adminCtx()
	authz := &mockAuthorizer{admin: true}
	c, _ := New(openTestStore(t), authz, Config{})

	id, _ := c.SaveBackupRecord(ctx, &models.BackupRecord{Trigger: models.TriggerManual})
	if err := c.DeleteBackup(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetBackup(ctx, id); !errors.Is(err, ErrBackupNotFound) {
		t.Errorf("GetBackup after delete = %v", err)
	}
	if err := c.DeleteBackup(ctx, id); !errors.Is(err, ErrBackupNotFound) {
		t.Errorf("second delete = %v", err)
	}

	authz.admin = false
	if err := c.DeleteBackup(ctx, "whatever"); !errors.Is(err, models.ErrPermissionDenied) {
		t.Errorf("non-admin delete = %v", err)
	}
}

func TestNewRejectsUnknownPolicy(t *testing.T) {
	if _, err := New(openTestStore(t), &mockAuthorizer{}, Config{Policy: "lenient"}); err == nil {
		t.Error("expected error for unknown policy")
	}
}
