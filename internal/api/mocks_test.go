// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/menuvault/internal/auth"
	"github.com/tomtom215/menuvault/internal/authz"
	"github.com/tomtom215/menuvault/internal/backup"
	"github.com/tomtom215/menuvault/internal/catalog"
	"github.com/tomtom215/menuvault/internal/models"
	"github.com/tomtom215/menuvault/internal/outbox"
	"github.com/tomtom215/menuvault/internal/reconcile"
)

const testSecret = "test-backup-secret"

// mockEngine records calls and returns canned results.
type mockEngine struct {
	mu sync.Mutex

	preID  string
	preErr error

	mergeReport *models.MergeReport
	mergeErr    error
	mergeOpts   []reconcile.MergeOptions

	replaceResult *models.ReplaceResult
	replaceErr    error
	replaceCalls  int
}

func (m *mockEngine) PreRestoreBackup(_ context.Context) (string, *models.ExportPackage, error) {
	if m.preErr != nil {
		return "", nil, m.preErr
	}
	return m.preID, &models.ExportPackage{}, nil
}

func (m *mockEngine) RestoreFromExport(_ context.Context, _ *models.ExportPackage, opts reconcile.MergeOptions) (*models.MergeReport, error) {
	m.mu.Lock()
	m.mergeOpts = append(m.mergeOpts, opts)
	m.mu.Unlock()
	if m.mergeErr != nil {
		return nil, m.mergeErr
	}
	if m.mergeReport != nil {
		return m.mergeReport, nil
	}
	r := models.NewMergeReport()
	r.DryRun = opts.DryRun
	return r, nil
}

func (m *mockEngine) ReplaceFromExport(_ context.Context, _ *models.ExportPackage, _ reconcile.ReplaceOptions) (*models.ReplaceResult, error) {
	m.mu.Lock()
	m.replaceCalls++
	m.mu.Unlock()
	return m.replaceResult, m.replaceErr
}

func (m *mockEngine) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.mergeOpts) + m.replaceCalls
}

type mockCatalog struct {
	records map[string]*models.BackupRecord
	listErr error
	lastOpt catalog.ListOptions
}

func (m *mockCatalog) ListBackups(_ context.Context, opts catalog.ListOptions) ([]*models.BackupRecord, error) {
	m.lastOpt = opts
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]*models.BackupRecord, 0, len(m.records))
	for _, id := range []string{"b1", "b2", "b3"} {
		if rec, ok := m.records[id]; ok {
			out = append(out, rec)
		}
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *mockCatalog) GetBackup(_ context.Context, id string) (*models.BackupRecord, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, catalog.ErrBackupNotFound
	}
	return rec, nil
}

func (m *mockCatalog) DeleteBackup(_ context.Context, id string) error {
	if _, ok := m.records[id]; !ok {
		return catalog.ErrBackupNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *mockCatalog) Stats(_ context.Context) (*catalog.Stats, error) {
	return &catalog.Stats{TotalBackups: len(m.records)}, nil
}

type mockCreator struct {
	err     error
	trigger models.BackupTrigger
	note    string
}

func (m *mockCreator) CreateBackup(_ context.Context, trigger models.BackupTrigger, note string) (*models.BackupRecord, error) {
	m.trigger, m.note = trigger, note
	if m.err != nil {
		return nil, m.err
	}
	return &models.BackupRecord{ID: "new-backup", Trigger: trigger, Meta: models.Meta{Note: note}}, nil
}

type mockPayloads struct {
	pkg *models.ExportPackage
	err error
}

func (m *mockPayloads) GetBackupPayload(_ context.Context, _ string, _ func(int)) (*models.ExportPackage, error) {
	return m.pkg, m.err
}

type mockExporter struct {
	pkg *models.ExportPackage
	err error
}

func (m *mockExporter) Export(_ context.Context) (*models.ExportPackage, error) {
	return m.pkg, m.err
}

type mockOutbox struct {
	mu      sync.Mutex
	nextID  uint64
	items   []*outbox.Item
	addErr  error
	removed []uint64
}

func (m *mockOutbox) Add(_ context.Context, kind string, payload any) (uint64, error) {
	if m.addErr != nil {
		return 0, m.addErr
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.items = append(m.items, &outbox.Item{ID: m.nextID, Kind: kind, Payload: data, CreatedAt: time.Now()})
	return m.nextID, nil
}

func (m *mockOutbox) Items(_ context.Context) ([]*outbox.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*outbox.Item(nil), m.items...), nil
}

func (m *mockOutbox) Remove(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, it := range m.items {
		if it.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			m.removed = append(m.removed, id)
			return nil
		}
	}
	return outbox.ErrNotFound
}

func (m *mockOutbox) Clear(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.items)
	m.items = nil
	return n, nil
}

type mockFlusher struct {
	res outbox.ProcessResult
}

func (m *mockFlusher) FlushNow(_ context.Context) (outbox.ProcessResult, error) {
	return m.res, nil
}

type mockAutosave struct {
	cfg   backup.AutosaveConfig
	state backup.AutosaveState
	runs  int
}

func (m *mockAutosave) State() backup.AutosaveState   { return m.state }
func (m *mockAutosave) Config() backup.AutosaveConfig { return m.cfg }
func (m *mockAutosave) Trigger(_ context.Context) (*models.BackupRecord, error) {
	m.runs++
	return &models.BackupRecord{ID: "auto-1", Trigger: models.TriggerAutosave}, nil
}

type mockSchedule struct {
	enabled bool
	next    time.Time
	last    time.Time
	lastErr error
}

func (m *mockSchedule) Enabled() bool               { return m.enabled }
func (m *mockSchedule) NextRun() time.Time          { return m.next }
func (m *mockSchedule) LastRun() (time.Time, error) { return m.last, m.lastErr }

// newTestServer serves deps behind the production router, with rate
// limiting disabled and the shared secret set to testSecret.
func newTestServer(t *testing.T, deps Dependencies) *httptest.Server {
	t.Helper()
	enforcer, err := authz.NewEnforcer("")
	if err != nil {
		t.Fatalf("NewEnforcer: %v", err)
	}
	router := NewRouter(
		NewHandler(deps),
		auth.NewChain(auth.NewSecretAuthenticator(testSecret)),
		enforcer,
		RouterConfig{
			Middleware:      &ChiMiddlewareConfig{RateLimitDisabled: true},
			MaxRequestBytes: 1 << 20,
		},
	)
	srv := httptest.NewServer(router.SetupChi())
	t.Cleanup(srv.Close)
	return srv
}

// doRequest sends body (marshaled unless it is already []byte) with the
// given secret header; an empty secret sends none.
func doRequest(t *testing.T, srv *httptest.Server, method, path, secret string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(auth.SecretHeader, secret)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// validPackageJSON is a minimal package that passes validation.
const validPackageJSON = `{"meta":{"version":"1.0.0","createdAt":1700000000000},` +
	`"items":[{"id":"i1","name":"Soup","price":5}],"categories":[{"id":"c1","name":"Starters"}]}`
