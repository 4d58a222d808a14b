// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package civitai resolves model identifiers against the CivitAI registry,
// downloads the resolved artifact to local storage, and keeps a persistent
// ledger of everything downloaded so repeated requests are served from disk.
//
// The typical entry point is Loader.Load, which runs the full
// resolve-fetch-record pipeline:
//
//	cfg := civitai.DefaultSettings()
//	cfg.SearchPaths = []string{"/models/loras"}
//	store := civitai.NewLedgerStore("download_history.json")
//	loader := civitai.NewLoader(cfg, store, nil)
//	name, err := loader.Load(ctx, civitai.Request{Identifier: "12345@67890"})
//
// The individual stages (ParseIdentifier, Client.ResolveDownload,
// Fetcher.Fetch, LedgerStore) are exported for callers that need finer
// control.
package civitai
