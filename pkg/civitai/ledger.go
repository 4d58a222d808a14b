// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package civitai

import (
	"encoding/json"
	"os"
	"strconv"
)

// FileRecord is one downloaded file remembered by the ledger. ID is reserved
// and currently always null on write.
type FileRecord struct {
	ID          *int64 `json:"id"`
	Name        string `json:"name"`
	DownloadURL string `json:"downloadUrl"`
}

// VersionRecord groups the files downloaded for one model version. ID is
// null for entries produced by degraded resolution, where the registry never
// confirmed the version.
type VersionRecord struct {
	ID    *int64       `json:"id"`
	Files []FileRecord `json:"files"`
}

// Ledger maps model ids (as decimal string keys) to their version records.
// The backing JSON file is the single source of truth; the ledger is
// re-read from disk on every lookup and rewritten after every insert, so it
// can be inspected or edited between runs. Unknown fields in the file are
// ignored on read and not round-tripped.
type Ledger map[string][]*VersionRecord

// LedgerStore reads and writes a ledger file.
//
// Access is strictly single-process: the load-mutate-save cycle takes no
// lock, and concurrent writers can lose updates.
type LedgerStore struct {
	path string
}

// NewLedgerStore returns a store backed by the given file path. The file
// need not exist yet.
func NewLedgerStore(path string) *LedgerStore {
	return &LedgerStore{path: path}
}

// Path returns the backing file path.
func (s *LedgerStore) Path() string {
	return s.path
}

// Load reads the ledger from disk. A missing, unreadable, or malformed file
// yields an empty ledger: corrupt history is treated as no history, never as
// a fatal error.
func (s *LedgerStore) Load() Ledger {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Ledger{}
	}
	var l Ledger
	if err := json.Unmarshal(data, &l); err != nil || l == nil {
		return Ledger{}
	}
	return l
}

// Save rewrites the backing file with the full ledger contents. Persistence
// is best-effort; callers must treat a returned error as a diagnostic, not a
// reason to fail the download that produced it.
func (s *LedgerStore) Save(l Ledger) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

// FindCached returns the file name of a previous download for the model (and
// version, when given) that still exists in one of the search paths.
// Version records with a null id are skipped when a specific version is
// requested, since degraded-resolution entries cannot be matched to one.
// Returns "" on a miss; ledger entries whose files have been deleted from
// disk are not a hit.
func (l Ledger) FindCached(modelID int64, versionID *int64, searchPaths []string) string {
	for _, rec := range l[strconv.FormatInt(modelID, 10)] {
		if versionID != nil && (rec.ID == nil || *rec.ID != *versionID) {
			continue
		}
		for _, f := range rec.Files {
			if f.Name == "" {
				continue
			}
			if FindExistingFile(f.Name, searchPaths) != "" {
				return f.Name
			}
		}
	}
	return ""
}

// Record adds a file to the version record for (modelID, versionID),
// creating the record if needed. Inserts are idempotent by file name.
// Returns true when the ledger actually changed and needs saving.
func (l Ledger) Record(modelID int64, versionID *int64, fileName, downloadURL string) bool {
	key := strconv.FormatInt(modelID, 10)

	var rec *VersionRecord
	for _, existing := range l[key] {
		if sameVersionID(existing.ID, versionID) {
			rec = existing
			break
		}
	}
	if rec == nil {
		rec = &VersionRecord{ID: versionID}
		l[key] = append(l[key], rec)
	}

	for _, f := range rec.Files {
		if f.Name == fileName {
			return false
		}
	}
	rec.Files = append(rec.Files, FileRecord{Name: fileName, DownloadURL: downloadURL})
	return true
}

func sameVersionID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
