// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package civitai

import "time"

// Fallback strategy names accepted by Settings.Fallback.
//
// "auto" tries every recognized external tool in order; a tool name restricts
// the chain to that single tool; "direct-only" disables external tools
// entirely and relies on the in-process HTTP client.
const (
	FallbackAuto       = "auto"
	FallbackAria2c     = "aria2c"
	FallbackWget       = "wget"
	FallbackCurl       = "curl"
	FallbackDirectOnly = "direct-only"
)

// Settings configures the resolve-fetch-cache pipeline.
//
// All fields have usable defaults except SearchPaths, which must name at
// least one model directory. The first entry is the default download target.
//
// Example:
//
//	cfg := civitai.DefaultSettings()
//	cfg.SearchPaths = []string{"/models/loras"}
//	cfg.Token = os.Getenv("CIVITAI_API_TOKEN")
type Settings struct {
	// Endpoint is the registry API base URL. If empty, DefaultEndpoint is
	// used. Override for mirrors or tests.
	Endpoint string

	// Token is the CivitAI API token for authenticated downloads. Optional;
	// without it gated models will fail with a registry error.
	Token string

	// SearchPaths are the configured model directories. Cache lookups scan
	// all of them; downloads land in the first entry unless a path label
	// selects another.
	SearchPaths []string

	// TimeoutSeconds bounds each individual HTTP call, clamped to 5..300.
	// For direct streaming it bounds the connect and response-header phases
	// only, never the body transfer. External tool subprocesses are not
	// bounded by this timeout.
	TimeoutSeconds int

	// Fallback selects the external tool chain: "auto", a single tool name,
	// or "direct-only". Empty means "auto".
	Fallback string

	// Connections is the parallel connection count passed to
	// multi-connection tools (aria2c -x/-s). Clamped to 1..64; zero means 16.
	Connections int

	// ChunkSize is the copy buffer size for direct streaming, as a
	// human-readable size ("1MiB", "256KiB"). Empty means "1MiB".
	ChunkSize string

	// PreferTools inverts the strategy ordering: external tools are tried
	// first and the in-process client becomes the fallback.
	PreferTools bool
}

// DefaultSettings returns Settings with defaults filled in. SearchPaths is
// left empty and must be provided by the caller.
func DefaultSettings() Settings {
	return Settings{
		Endpoint:       DefaultEndpoint,
		TimeoutSeconds: 20,
		Fallback:       FallbackAuto,
		Connections:    16,
		ChunkSize:      "1MiB",
	}
}

// timeout returns the effective per-request timeout, clamped to 5..300
// seconds.
func (s Settings) timeout() time.Duration {
	secs := s.TimeoutSeconds
	if secs < 5 {
		secs = 5
	}
	if secs > 300 {
		secs = 300
	}
	return time.Duration(secs) * time.Second
}

// connections returns the effective parallel connection count.
func (s Settings) connections() int {
	n := s.Connections
	if n <= 0 {
		n = 16
	}
	if n > 64 {
		n = 64
	}
	return n
}

// Request describes one Loader.Load invocation. Identifier is required;
// everything else is optional.
type Request struct {
	// Identifier is the compact "model@version" string.
	Identifier string

	// ExistingFile short-circuits the whole pipeline when set to a known
	// local file name. The sentinel "none" (or empty) means no override.
	ExistingFile string

	// APIKey overrides Settings.Token for this request.
	APIKey string

	// PathLabel selects the download directory by its short label. Unknown
	// or empty labels fall back to the first configured search path.
	PathLabel string
}

// ResolvedDownload is the ephemeral result of registry resolution. It is not
// persisted until the download succeeds. VersionID is nil when the degraded
// resolution path was taken and the registry never confirmed the version.
type ResolvedDownload struct {
	ModelID     int64
	VersionID   *int64
	FileName    string
	DownloadURL string
}

// ProgressEvent is a progress or diagnostic update emitted while the
// pipeline runs.
//
// Event values:
//   - "cache_hit": the ledger satisfied the request, no network activity
//   - "resolve_start": registry resolution has begun
//   - "resolved": a download URL and file name were determined
//   - "degraded": metadata lookup failed, direct URL was synthesized
//   - "fetch_start": a transfer strategy is starting
//   - "file_progress": periodic byte progress during direct streaming
//   - "tool_failed": an external tool attempt failed, moving on
//   - "fetch_done": the artifact is on disk
//   - "ledger_warn": recording the download failed (non-fatal)
//   - "done": pipeline finished
type ProgressEvent struct {
	// Time is when the event occurred (UTC).
	Time time.Time `json:"time"`

	// Level is the log level: "info", "warn", "error". Empty means "info".
	Level string `json:"level,omitempty"`

	// Event is the event type identifier.
	Event string `json:"event"`

	// Model is the identifier being processed, e.g. "12345@67890".
	Model string `json:"model,omitempty"`

	// Path is the local file name involved, when known.
	Path string `json:"path,omitempty"`

	// Downloaded is the cumulative bytes transferred so far.
	Downloaded int64 `json:"downloaded,omitempty"`

	// Total is the expected size in bytes, zero when unknown.
	Total int64 `json:"total,omitempty"`

	// Tool names the external downloader involved in tool events.
	Tool string `json:"tool,omitempty"`

	// Message carries additional context or error details.
	Message string `json:"message,omitempty"`
}

// ProgressFunc receives progress events. Callbacks must be fast; they are
// invoked inline from the download loop.
type ProgressFunc func(ProgressEvent)
