// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

// Package blobstore stores backup package files on the local filesystem and
// hands out time-limited signed download URLs for them.
//
// Signed URLs have the form
//
//	<base_url>/blobs/<path>?expires=<unix>&sig=<hex hmac-sha256>
//
// The signing key is derived from the configured secret with HKDF so the
// raw secret is never used directly as a MAC key.
package blobstore

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/tomtom215/menuvault/internal/logging"
	"github.com/tomtom215/menuvault/internal/metrics"
)

// Blob store errors
var (
	ErrNotFound         = errors.New("blob not found")
	ErrInvalidPath      = errors.New("invalid blob path")
	ErrInvalidSignature = errors.New("invalid blob signature")
	ErrURLExpired       = errors.New("signed URL expired")
)

// DefaultURLTTL is how long signed URLs stay valid when no TTL is configured.
const DefaultURLTTL = 7 * 24 * time.Hour

const (
	hkdfInfo    = "menuvault blob url signing v1"
	copyBufSize = 32 * 1024
)

// Config configures a FileStore.
type Config struct {
	// Root is the directory blobs are written under.
	Root string

	// BaseURL is the externally reachable server URL used in signed URLs.
	BaseURL string

	// SigningSecret seeds the URL signing key.
	SigningSecret string

	// URLTTL is the validity of signed URLs.
	URLTTL time.Duration
}

// Object describes a stored blob.
type Object struct {
	Path string
	Size int64
}

// FileStore is a filesystem-backed blob store.
type FileStore struct {
	root    string
	baseURL string
	key     []byte
	ttl     time.Duration
	now     func() time.Time
}

// NewFileStore creates the root directory if needed and derives the signing key.
func NewFileStore(cfg Config) (*FileStore, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("blob store root is required")
	}
	if cfg.SigningSecret == "" {
		return nil, fmt.Errorf("blob signing secret is required")
	}
	if err := os.MkdirAll(cfg.Root, 0o750); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(cfg.SigningSecret), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}

	ttl := cfg.URLTTL
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}

	return &FileStore{
		root:    cfg.Root,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		key:     key,
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

// resolve maps a blob path to a filesystem path inside root.
func (s *FileStore) resolve(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", ErrInvalidPath
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// Upload writes r to p, reporting whole-percent progress when size is
// known. Progress values never decrease and end at 100. The blob becomes
// visible only once fully written.
func (s *FileStore) Upload(ctx context.Context, p string, r io.Reader, size int64, onProgress func(int)) (*Object, error) {
	dest, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp blob: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	report := progressFunc(onProgress)
	report(0)

	buf := make([]byte, copyBufSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			cleanup()
			return nil, err
		}
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := tmp.Write(buf[:n]); werr != nil {
				cleanup()
				return nil, fmt.Errorf("write blob: %w", werr)
			}
			written += int64(n)
			if size > 0 {
				report(int(written * 100 / size))
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			cleanup()
			return nil, fmt.Errorf("read upload: %w", rerr)
		}
	}

	if err := tmp.Sync(); err != nil {
		cleanup()
		return nil, fmt.Errorf("sync blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("commit blob: %w", err)
	}
	report(100)

	metrics.UploadBytes.Add(float64(written))
	logging.Ctx(ctx).Debug().Str("path", p).Int64("size_bytes", written).Msg("Blob stored")
	return &Object{Path: p, Size: written}, nil
}

// progressFunc wraps onProgress so that reported values are clamped to
// 0..100 and never repeat or decrease.
func progressFunc(onProgress func(int)) func(int) {
	last := -1
	return func(pct int) {
		if onProgress == nil {
			return
		}
		if pct > 100 {
			pct = 100
		}
		if pct <= last {
			return
		}
		last = pct
		onProgress(pct)
	}
}

// Open returns a reader for the blob at p and its size.
func (s *FileStore) Open(_ context.Context, p string) (io.ReadCloser, int64, error) {
	full, err := s.resolve(p)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(full) //nolint:gosec // path is confined to root by resolve
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, 0, ErrNotFound
	}
	return f, info.Size(), nil
}

// Delete removes the blob at p. Missing blobs are not an error.
func (s *FileStore) Delete(_ context.Context, p string) error {
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// DownloadURL returns a signed URL for the blob at p.
func (s *FileStore) DownloadURL(_ context.Context, p string) (string, error) {
	full, err := s.resolve(p)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(full); errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	} else if err != nil {
		return "", err
	}

	expires := s.now().Add(s.ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", s.sign(p, expires))
	return s.baseURL + "/blobs/" + escapePath(p) + "?" + q.Encode(), nil
}

// Verify checks a signature produced by DownloadURL.
func (s *FileStore) Verify(p, expiresParam, sig string) error {
	expires, err := strconv.ParseInt(expiresParam, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	want, err := hex.DecodeString(sig)
	if err != nil {
		return ErrInvalidSignature
	}
	got, _ := hex.DecodeString(s.sign(p, expires))
	if !hmac.Equal(got, want) {
		return ErrInvalidSignature
	}
	if s.now().Unix() > expires {
		return ErrURLExpired
	}
	return nil
}

func (s *FileStore) sign(p string, expires int64) string {
	mac := hmac.New(sha256.New, s.key)
	_, _ = mac.Write([]byte(p))
	_, _ = mac.Write([]byte{0})
	_, _ = mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
