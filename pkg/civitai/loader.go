// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package civitai

import (
	"context"
	"fmt"
	"path/filepath"
)

// Loader is the top-level pipeline: parse the identifier, check the ledger,
// resolve against the registry, fetch, record. One Load call at a time per
// process; the ledger's load-mutate-save cycle is not safe under concurrent
// invocations.
type Loader struct {
	cfg      Settings
	store    *LedgerStore
	progress ProgressFunc
}

// NewLoader builds a loader. progress may be nil.
func NewLoader(cfg Settings, store *LedgerStore, progress ProgressFunc) *Loader {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	return &Loader{cfg: cfg, store: store, progress: wrapProgress(progress)}
}

// Load resolves the request to a local file name.
//
// An explicit ExistingFile override wins unconditionally and triggers no
// network activity, as does a ledger cache hit whose file is still on disk.
// Otherwise the artifact is resolved, fetched into the selected download
// directory, and recorded in the ledger (best-effort) before the file name
// is returned.
func (l *Loader) Load(ctx context.Context, req Request) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if req.ExistingFile != "" && req.ExistingFile != "none" {
		l.progress(ProgressEvent{Event: "done", Path: req.ExistingFile, Message: "using existing file"})
		return req.ExistingFile, nil
	}

	id, err := ParseIdentifier(req.Identifier)
	if err != nil {
		return "", err
	}

	ledger := l.store.Load()
	if name := ledger.FindCached(id.ModelID, id.VersionID, l.cfg.SearchPaths); name != "" {
		l.progress(ProgressEvent{Event: "cache_hit", Model: id.String(), Path: name})
		return name, nil
	}

	downloadDir := ResolveDownloadDir(req.PathLabel, l.cfg.SearchPaths)
	if downloadDir == "" {
		return "", &ValidationError{Msg: "no model directories configured"}
	}

	cfg := l.cfg
	if req.APIKey != "" {
		cfg.Token = req.APIKey
	}

	l.progress(ProgressEvent{Event: "resolve_start", Model: id.String()})
	client := NewClient(cfg.Endpoint, cfg.Token, cfg.timeout())
	resolved, err := client.ResolveDownload(ctx, id.ModelID, id.VersionID)
	if err != nil {
		return "", err
	}
	if resolved.VersionID == nil {
		l.progress(ProgressEvent{
			Level:   "warn",
			Event:   "degraded",
			Model:   id.String(),
			Path:    resolved.FileName,
			Message: "metadata lookup failed, using direct download URL",
		})
	}
	l.progress(ProgressEvent{Event: "resolved", Model: id.String(), Path: resolved.FileName})

	dst := filepath.Join(downloadDir, resolved.FileName)
	fetcher := NewFetcher(cfg, l.progress)
	if err := fetcher.Fetch(ctx, resolved.DownloadURL, dst); err != nil {
		return "", err
	}
	l.progress(ProgressEvent{Event: "fetch_done", Model: id.String(), Path: resolved.FileName})

	// Best-effort: losing cache history must never fail a finished download.
	if ledger.Record(resolved.ModelID, resolved.VersionID, resolved.FileName, resolved.DownloadURL) {
		if err := l.store.Save(ledger); err != nil {
			l.progress(ProgressEvent{
				Level:   "warn",
				Event:   "ledger_warn",
				Path:    resolved.FileName,
				Message: fmt.Sprintf("could not persist download history: %v", err),
			})
		}
	}

	l.progress(ProgressEvent{Event: "done", Model: id.String(), Path: resolved.FileName})
	return resolved.FileName, nil
}
