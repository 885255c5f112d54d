// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/menuvault/internal/auth"
	"github.com/tomtom215/menuvault/internal/blobstore"
	"github.com/tomtom215/menuvault/internal/models"
	"github.com/tomtom215/menuvault/internal/outbox"
	"github.com/tomtom215/menuvault/internal/retry"
)

type mockAuthorizer struct {
	admin bool
}

func (m *mockAuthorizer) RequireAdmin(ctx context.Context) (*auth.Identity, error) {
	if !m.admin {
		return nil, models.ErrPermissionDenied
	}
	return auth.IdentityFromContext(ctx), nil
}

// failingBlob fails every upload.
type failingBlob struct {
	calls int
	err   error
}

func (f *failingBlob) Upload(context.Context, string, io.Reader, int64, func(int)) (*blobstore.Object, error) {
	f.calls++
	return nil, f.err
}

func (f *failingBlob) DownloadURL(context.Context, string) (string, error) {
	return "", blobstore.ErrNotFound
}

// mockStrategy returns scripted outcomes.
type mockStrategy struct {
	name     string
	outcomes []Outcome
	calls    int
}

func (m *mockStrategy) Name() string { return m.name }

func (m *mockStrategy) Attempt(_ context.Context, u *Upload) Attempt {
	o := m.outcomes[len(m.outcomes)-1]
	if m.calls < len(m.outcomes) {
		o = m.outcomes[m.calls]
	}
	m.calls++
	if o == Success {
		return Attempt{Outcome: Success, Result: &UploadResult{Path: u.Path}}
	}
	return Attempt{Outcome: o, Err: errors.New(m.name + " failed")}
}

func testPackage() *models.ExportPackage {
	return &models.ExportPackage{
		Meta:       &models.Meta{Version: "1.0.0", CreatedAt: 1700000000000, Checksum: "1a2b3c"},
		Items:      []models.Record{{"id": "i1", "name": "Burger", "price": json.Number("90")}},
		Categories: []models.Record{{"id": "c1", "name": "Mains"}},
		Sections:   []models.Record{},
		Profiles:   []models.Record{},
		Roles:      []models.Record{},
	}
}

// newBlobServer starts a file store whose signed URLs point at an httptest
// server serving it.
func newBlobServer(t *testing.T) (*blobstore.FileStore, *httptest.Server) {
	t.Helper()
	var store *blobstore.FileStore
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store.ServeBlob(w, r, strings.TrimPrefix(r.URL.Path, "/blobs/"))
	}))
	t.Cleanup(srv.Close)

	var err error
	store, err = blobstore.NewFileStore(blobstore.Config{
		Root:          t.TempDir(),
		BaseURL:       srv.URL,
		SigningSecret: "transport-test-secret",
		URLTTL:        time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}
	return store, srv
}

func openOutbox(t *testing.T) *outbox.BadgerOutbox {
	t.Helper()
	ob, err := outbox.Open(outbox.Config{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ob.Close() })
	return ob
}

func TestSaveBackupFileRequiresAdmin(t *testing.T) {
	s := &mockStrategy{name: "blob", outcomes: []Outcome{Success}}
	u := NewUploader(&mockAuthorizer{admin: false}, WithStrategy(s, retry.None))

	_, err := u.SaveBackupFile(context.Background(), testPackage(), nil)
	if !errors.Is(err, models.ErrPermissionDenied) {
		t.Fatalf("error = %v, want ErrPermissionDenied", err)
	}
	if s.calls != 0 {
		t.Error("a denied caller must not reach any strategy")
	}
}

func TestSaveBackupFileToBlobStore(t *testing.T) {
	store, srv := newBlobServer(t)
	u := NewUploader(&mockAuthorizer{admin: true},
		WithStrategy(NewBlobStrategy(store, BreakerConfig{Name: "test-blob-ok"}), retry.None),
	)

	var progress []int
	res, err := u.SaveBackupFile(context.Background(), testPackage(), func(p int) { progress = append(progress, p) })
	if err != nil {
		t.Fatalf("SaveBackupFile() error = %v", err)
	}
	if res.Path != "backups/backup_1700000000000_1a2b3c.json" {
		t.Errorf("path = %s", res.Path)
	}
	if res.Queued || res.Strategy != StrategyBlob || res.SizeBytes == 0 {
		t.Errorf("result = %+v", res)
	}
	if !strings.HasPrefix(res.URL, srv.URL+"/blobs/backups/") {
		t.Errorf("url = %s", res.URL)
	}
	if len(progress) == 0 || progress[len(progress)-1] != 100 {
		t.Errorf("progress = %v, want to end at 100", progress)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] <= progress[i-1] {
			t.Fatalf("progress not monotonic: %v", progress)
		}
	}

	d := NewDownloader(nil, nil, srv.Client())
	pkg, err := d.FetchPackage(context.Background(), res.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(pkg.Items) != 1 || pkg.Meta.Checksum != "1a2b3c" {
		t.Errorf("fetched package = %+v", pkg.Meta)
	}
}

func TestSaveBackupFileFallsBackToLocalSync(t *testing.T) {
	var gotHeader, gotSecret string
	var body map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get(BackgroundSyncHeader)
		gotSecret = r.Header.Get(auth.SecretHeader)
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"queued":true,"outboxId":7}`))
	}))
	defer srv.Close()

	blob := &failingBlob{err: errors.New("storage offline")}
	u := NewUploader(&mockAuthorizer{admin: true},
		WithStrategy(NewBlobStrategy(blob, BreakerConfig{Name: "test-blob-local"}), retry.Policy{MaxAttempts: 2}),
		WithStrategy(NewLocalSyncStrategy(srv.URL, "s3cret", srv.Client()), retry.None),
	)

	res, err := u.SaveBackupFile(context.Background(), testPackage(), nil)
	if err != nil {
		t.Fatalf("SaveBackupFile() error = %v", err)
	}
	if blob.calls != 2 {
		t.Errorf("blob attempts = %d, want 2", blob.calls)
	}
	if !res.Queued || res.QueuedBy != StrategyLocalSync || res.OutboxID != 7 {
		t.Errorf("result = %+v", res)
	}
	if gotHeader != "1" || gotSecret != "s3cret" {
		t.Errorf("headers = %q %q", gotHeader, gotSecret)
	}
	if _, ok := body["payload"]; !ok {
		t.Error("local sync body missing payload")
	}
	if _, ok := body["meta"]; !ok {
		t.Error("local sync body missing meta")
	}
}

func TestSaveBackupFileFallsBackToOutbox(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ob := openOutbox(t)
	u := NewUploader(&mockAuthorizer{admin: true},
		WithStrategy(NewBlobStrategy(&failingBlob{err: errors.New("offline")}, BreakerConfig{Name: "test-blob-outbox"}), retry.None),
		WithStrategy(NewLocalSyncStrategy(srv.URL, "", srv.Client()), retry.None),
		WithStrategy(NewOutboxStrategy(ob), retry.None),
	)
	if got := strings.Join(u.Strategies(), ","); got != "blob,local-sync,outbox" {
		t.Errorf("strategies = %s", got)
	}

	ctx := context.Background()
	res, err := u.SaveBackupFile(ctx, testPackage(), nil)
	if err != nil {
		t.Fatalf("SaveBackupFile() error = %v", err)
	}
	if !res.Queued || res.QueuedBy != StrategyOutbox || res.OutboxID == 0 {
		t.Fatalf("result = %+v", res)
	}

	items, _ := ob.Items(ctx)
	if len(items) != 1 || items[0].Kind != OutboxKindBackupFile {
		t.Fatalf("outbox items = %+v", items)
	}

	// Replaying the item uploads the file once the blob store is back.
	store, _ := newBlobServer(t)
	pr, err := ob.Process(ctx, map[string]outbox.Handler{OutboxKindBackupFile: NewBackupFileHandler(store)})
	if err != nil || pr.Succeeded != 1 {
		t.Fatalf("Process() = %+v, %v", pr, err)
	}
	rc, _, err := store.Open(ctx, res.Path)
	if err != nil {
		t.Fatalf("replayed blob missing: %v", err)
	}
	defer rc.Close()
	pkg, err := models.ParsePackage(rc)
	if err != nil || pkg.Meta.CreatedAt != 1700000000000 {
		t.Errorf("replayed package = %+v, %v", pkg, err)
	}
}

func TestBackupFileHandlerAcceptsLocalSyncShape(t *testing.T) {
	store, _ := newBlobServer(t)
	pkgBytes, _ := testPackage().Marshal()
	raw, _ := json.Marshal(BackupFilePayload{Payload: pkgBytes, Meta: testPackage().Meta})

	ok, err := NewBackupFileHandler(store)(context.Background(), raw)
	if !ok || err != nil {
		t.Fatalf("handler = %v, %v", ok, err)
	}
	if _, _, err := store.Open(context.Background(), "backups/backup_1700000000000_1a2b3c.json"); err != nil {
		t.Errorf("uploaded blob missing: %v", err)
	}

	ok, err = NewBackupFileHandler(store)(context.Background(), json.RawMessage(`{"path":"backups/x.json"}`))
	if ok || err == nil {
		t.Error("payload without a package must stay queued")
	}
}

func TestFatalOutcomeStopsChain(t *testing.T) {
	first := &mockStrategy{name: "first", outcomes: []Outcome{Fatal}}
	second := &mockStrategy{name: "second", outcomes: []Outcome{Success}}
	u := NewUploader(&mockAuthorizer{admin: true},
		WithStrategy(first, retry.Policy{MaxAttempts: 3}),
		WithStrategy(second, retry.None),
	)

	_, err := u.SaveBackupFile(context.Background(), testPackage(), nil)
	if !errors.Is(err, models.ErrTransportFailed) {
		t.Fatalf("error = %v, want ErrTransportFailed", err)
	}
	if first.calls != 1 {
		t.Errorf("fatal strategy attempts = %d, want 1", first.calls)
	}
	if second.calls != 0 {
		t.Error("chain continued after a fatal outcome")
	}
}

func TestRetryableRetriedThenNext(t *testing.T) {
	first := &mockStrategy{name: "first", outcomes: []Outcome{Retryable, Retryable, Success}}
	u := NewUploader(&mockAuthorizer{admin: true},
		WithStrategy(first, retry.Policy{MaxAttempts: 3, Backoff: retry.Constant(time.Millisecond)}),
	)
	res, err := u.SaveBackupFile(context.Background(), testPackage(), nil)
	if err != nil || res.Strategy != "first" {
		t.Fatalf("SaveBackupFile() = %+v, %v", res, err)
	}
	if first.calls != 3 {
		t.Errorf("attempts = %d, want 3", first.calls)
	}

	exhausted := &mockStrategy{name: "a", outcomes: []Outcome{Retryable}}
	alsoExhausted := &mockStrategy{name: "b", outcomes: []Outcome{Retryable}}
	u = NewUploader(&mockAuthorizer{admin: true},
		WithStrategy(exhausted, retry.Policy{MaxAttempts: 2}),
		WithStrategy(alsoExhausted, retry.None),
	)
	if _, err := u.SaveBackupFile(context.Background(), testPackage(), nil); !errors.Is(err, models.ErrTransportFailed) {
		t.Errorf("error = %v, want ErrTransportFailed", err)
	}
	if exhausted.calls != 2 || alsoExhausted.calls != 1 {
		t.Errorf("calls = %d, %d", exhausted.calls, alsoExhausted.calls)
	}
}

func TestBlobBreakerOpens(t *testing.T) {
	blob := &failingBlob{err: errors.New("storage offline")}
	s := NewBlobStrategy(blob, BreakerConfig{Name: "test-blob-breaker", ConsecutiveFailures: 2, OpenTimeout: time.Hour})
	up := &Upload{Path: "backups/a.json", Data: []byte("{}"), Package: testPackage(), OnProgress: func(int) {}}

	for i := 0; i < 2; i++ {
		if a := s.Attempt(context.Background(), up); a.Outcome != Retryable {
			t.Fatalf("attempt %d outcome = %v", i, a.Outcome)
		}
	}
	if s.State() != gobreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", s.State())
	}
	a := s.Attempt(context.Background(), up)
	if a.Outcome != Retryable || !errors.Is(a.Err, gobreaker.ErrOpenState) {
		t.Errorf("open breaker attempt = %+v", a)
	}
	if blob.calls != 2 {
		t.Errorf("blob calls = %d, want 2 (open breaker must not call through)", blob.calls)
	}
}

func TestBlobInvalidPathIsFatal(t *testing.T) {
	store, _ := newBlobServer(t)
	s := NewBlobStrategy(store, BreakerConfig{Name: "test-blob-fatal"})
	a := s.Attempt(context.Background(), &Upload{Path: "../escape.json", Data: []byte("{}"), Package: testPackage(), OnProgress: func(int) {}})
	if a.Outcome != Fatal || !errors.Is(a.Err, blobstore.ErrInvalidPath) {
		t.Errorf("attempt = %+v", a)
	}
}

// mockRecords serves catalog records from a map.
type mockRecords map[string]*models.BackupRecord

func (m mockRecords) GetBackup(_ context.Context, id string) (*models.BackupRecord, error) {
	if rec, ok := m[id]; ok {
		return rec, nil
	}
	return nil, errors.New("backup not found")
}

func TestGetBackupPayloadResolution(t *testing.T) {
	ctx := context.Background()
	store, srv := newBlobServer(t)
	data, _ := testPackage().Marshal()
	if _, err := store.Upload(ctx, "backups/stored.json", strings.NewReader(string(data)), int64(len(data)), nil); err != nil {
		t.Fatal(err)
	}
	fileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ok.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	}))
	defer fileSrv.Close()

	records := mockRecords{
		"inline":   {ID: "inline", Payload: testPackage()},
		"file":     {ID: "file", FileURL: fileSrv.URL + "/ok.json"},
		"storage":  {ID: "storage", StoragePath: "backups/stored.json"},
		"fallback": {ID: "fallback", FileURL: fileSrv.URL + "/gone.json", StoragePath: "backups/stored.json"},
		"empty":    {ID: "empty"},
		"dangling": {ID: "dangling", StoragePath: "backups/missing.json"},
	}
	d := NewDownloader(records, store, srv.Client())

	for _, id := range []string{"inline", "file", "storage", "fallback"} {
		t.Run(id, func(t *testing.T) {
			var progress []int
			pkg, err := d.GetBackupPayload(ctx, id, func(p int) { progress = append(progress, p) })
			if err != nil {
				t.Fatalf("GetBackupPayload() error = %v", err)
			}
			if len(pkg.Items) != 1 {
				t.Errorf("items = %d", len(pkg.Items))
			}
			if price, _ := pkg.Items[0]["price"].(json.Number); price.String() != "90" {
				t.Errorf("price = %#v", pkg.Items[0]["price"])
			}
			if len(progress) == 0 || progress[len(progress)-1] != 100 {
				t.Errorf("progress = %v", progress)
			}
		})
	}

	for _, id := range []string{"empty", "dangling"} {
		if _, err := d.GetBackupPayload(ctx, id, nil); !errors.Is(err, ErrPayloadUnavailable) || !errors.Is(err, models.ErrTransportFailed) {
			t.Errorf("GetBackupPayload(%s) error = %v", id, err)
		}
	}
	if _, err := d.GetBackupPayload(ctx, "unknown", nil); err == nil || errors.Is(err, ErrPayloadUnavailable) {
		t.Errorf("unknown id error = %v", err)
	}
}

func TestFetchPackageRejectsNonPackage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hello":"world"}`))
	}))
	defer srv.Close()

	d := NewDownloader(nil, nil, srv.Client())
	if _, err := d.FetchPackage(context.Background(), srv.URL, nil); !errors.Is(err, models.ErrInvalidPackage) {
		t.Errorf("error = %v, want ErrInvalidPackage", err)
	}
}

func TestGetBackupPayloadCachesFetchedDocuments(t *testing.T) {
	ctx := context.Background()
	data, _ := testPackage().Marshal()
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	rec := &models.BackupRecord{ID: "b1", FileURL: srv.URL, Meta: models.Meta{Checksum: "1a2b3c"}}
	d := NewDownloader(mockRecords{"b1": rec}, nil, srv.Client())
	d.EnableCache(2, time.Minute)

	first, err := d.GetBackupPayload(ctx, "b1", nil)
	if err != nil {
		t.Fatal(err)
	}
	// Callers may mutate what they get back; the cache must not share it.
	first.Items[0]["name"] = "changed"

	var progress []int
	second, err := d.GetBackupPayload(ctx, "b1", func(p int) { progress = append(progress, p) })
	if err != nil {
		t.Fatal(err)
	}
	if hits != 1 {
		t.Errorf("server hits = %d, want 1", hits)
	}
	if second.Items[0]["name"] != "Burger" {
		t.Errorf("cached package was shared: name = %v", second.Items[0]["name"])
	}
	if len(progress) != 1 || progress[0] != 100 {
		t.Errorf("progress = %v", progress)
	}

	// A new checksum under the same ID is a different document.
	rec.Meta.Checksum = "4d5e6f"
	if _, err := d.GetBackupPayload(ctx, "b1", nil); err != nil {
		t.Fatal(err)
	}
	if hits != 2 {
		t.Errorf("server hits = %d, want 2 after checksum change", hits)
	}
}
