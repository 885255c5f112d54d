// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/menuvault/internal/models"
)

// LocalIDPrefix marks ids issued by the local store.
const LocalIDPrefix = "local_"

const metadataFileName = "metadata.json"

// localFile is the on-disk layout of metadata.json.
type localFile struct {
	Version string                 `json:"version"`
	Backups []*models.BackupRecord `json:"backups"`
}

// localStore keeps backup records in a JSON file next to the process. It
// is the fallback used when the primary catalog cannot be written.
type localStore struct {
	path string // empty keeps records in memory only

	mu      sync.RWMutex
	records []*models.BackupRecord
	lastID  int64
}

func openLocalStore(dir string) (*localStore, error) {
	s := &localStore{records: make([]*models.BackupRecord, 0)}
	if dir == "" {
		return s, nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create local catalog directory: %w", err)
	}
	s.path = filepath.Join(dir, metadataFileName)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read local catalog: %w", err)
	}
	var f localFile
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse local catalog: %w", err)
	}
	if f.Backups != nil {
		s.records = f.Backups
	}
	for _, r := range s.records {
		if ms, err := strconv.ParseInt(strings.TrimPrefix(r.ID, LocalIDPrefix), 10, 64); err == nil && ms > s.lastID {
			s.lastID = ms
		}
	}
	return s, nil
}

// nextIDLocked issues local_<unix millis>, bumped by one when two saves land
// in the same millisecond.
func (s *localStore) nextIDLocked(now time.Time) string {
	ms := now.UnixMilli()
	if ms <= s.lastID {
		ms = s.lastID + 1
	}
	s.lastID = ms
	return LocalIDPrefix + strconv.FormatInt(ms, 10)
}

func (s *localStore) save(rec *models.BackupRecord, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *rec
	stored.ID = s.nextIDLocked(now)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	s.records = append(s.records, &stored)
	if err := s.persistLocked(); err != nil {
		s.records = s.records[:len(s.records)-1]
		return "", err
	}
	return stored.ID, nil
}

func (s *localStore) list() []*models.BackupRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.BackupRecord, len(s.records))
	copy(out, s.records)
	return out
}

func (s *localStore) get(id string) (*models.BackupRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

func (s *localStore) delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		if r.ID != id {
			continue
		}
		s.records = append(s.records[:i], s.records[i+1:]...)
		return true, s.persistLocked()
	}
	return false, nil
}

// persistLocked writes metadata.json (must be called with lock held)
func (s *localStore) persistLocked() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(localFile{Version: models.DefaultSchemaVersion, Backups: s.records}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal local catalog: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write local catalog: %w", err)
	}
	return os.Rename(tmp, s.path)
}
