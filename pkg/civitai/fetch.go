// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package civitai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Fetcher transfers a resolved URL to a local destination. Two strategies
// are available: an in-process streaming HTTP client and delegation to
// external downloader tools. Strategy ordering follows
// Settings.PreferTools; on return the destination either exists complete or
// has been cleaned up.
type Fetcher struct {
	cfg   Settings
	httpc *http.Client
	tools []Tool
	emit  ProgressFunc
}

// NewFetcher builds a fetcher. progress may be nil.
func NewFetcher(cfg Settings, progress ProgressFunc) *Fetcher {
	return &Fetcher{
		cfg:   cfg,
		httpc: buildStreamingClient(cfg.timeout()),
		tools: defaultTools(),
		emit:  wrapProgress(progress),
	}
}

// buildStreamingClient creates an HTTP client for body streaming. The timeout
// bounds the connect and response-header phases only; the body copy runs on
// the caller's context, so a transfer in flight is never cut off for taking
// longer than the configured timeout.
func buildStreamingClient(headerTimeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
	}
	return &http.Client{Transport: tr}
}

// wrapProgress normalizes a possibly-nil callback and stamps event times.
func wrapProgress(progress ProgressFunc) ProgressFunc {
	return func(ev ProgressEvent) {
		if progress == nil {
			return
		}
		if ev.Time.IsZero() {
			ev.Time = time.Now().UTC()
		}
		progress(ev)
	}
}

// Fetch downloads url to dst, walking the configured strategy chain. On
// failure every attempted strategy's error is aggregated into the returned
// *TransferError and no partial file is left behind.
func (f *Fetcher) Fetch(ctx context.Context, url, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	if f.cfg.Fallback == FallbackDirectOnly {
		f.emit(ProgressEvent{Event: "fetch_start", Path: filepath.Base(dst)})
		if err := f.fetchDirect(ctx, url, dst); err != nil {
			return &TransferError{URL: url, Err: err}
		}
		return nil
	}

	primary, secondary := f.fetchDirect, f.fetchWithTools
	if f.cfg.PreferTools {
		primary, secondary = f.fetchWithTools, f.fetchDirect
	}

	f.emit(ProgressEvent{Event: "fetch_start", Path: filepath.Base(dst)})
	perr := primary(ctx, url, dst)
	if perr == nil {
		return nil
	}

	f.emit(ProgressEvent{
		Level:   "warn",
		Event:   "fetch_start",
		Path:    filepath.Base(dst),
		Message: fmt.Sprintf("primary strategy failed, falling back: %v", perr),
	})
	serr := secondary(ctx, url, dst)
	if serr == nil {
		return nil
	}

	return &TransferError{URL: url, Err: multierror.Append(perr, serr)}
}

// fetchDirect streams the URL to dst with the in-process HTTP client.
// Any failure mid-stream removes the partial destination before returning.
func (f *Fetcher) fetchDirect(ctx context.Context, url, dst string) (err error) {
	chunk, perr := parseSizeString(f.cfg.ChunkSize, 1<<20)
	if perr != nil {
		return fmt.Errorf("invalid chunk-size: %w", perr)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if f.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.cfg.Token)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("direct download: unexpected status %s", resp.Status)
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		out.Close()
		if err != nil {
			os.Remove(dst)
		}
	}()

	pr := newProgressReader(resp.Body, resp.ContentLength, filepath.Base(dst), f.emit)
	if _, err = io.CopyBuffer(out, pr, make([]byte, chunk)); err != nil {
		return err
	}
	return out.Close()
}

// fetchWithTools walks the external tool chain in preference order. Tools
// not installed are skipped; a failed attempt cleans up the destination and
// is recorded before trying the next tool. The returned error aggregates
// every attempt.
func (f *Fetcher) fetchWithTools(ctx context.Context, url, dst string) error {
	var errs *multierror.Error

	for _, tool := range f.chainFor(f.cfg.Fallback) {
		if !tool.Available() {
			continue
		}

		cmd := tool.Command(ctx, url, dst, f.cfg)
		f.emit(ProgressEvent{Event: "fetch_start", Path: filepath.Base(dst), Tool: tool.Name()})

		if out, err := cmd.CombinedOutput(); err != nil {
			os.Remove(dst)
			msg := fmt.Sprintf("%s: %v", tool.Name(), err)
			if len(out) > 0 {
				msg = fmt.Sprintf("%s: %v: %s", tool.Name(), err, lastLine(out))
			}
			f.emit(ProgressEvent{Level: "warn", Event: "tool_failed", Tool: tool.Name(), Message: msg})
			errs = multierror.Append(errs, errors.New(msg))
			continue
		}
		return nil
	}

	if errs == nil {
		return errors.New("no external downloader available")
	}
	return errs.ErrorOrNil()
}

// chainFor maps a fallback strategy to the tool chain it allows.
func (f *Fetcher) chainFor(strategy string) []Tool {
	switch strategy {
	case "", FallbackAuto:
		return f.tools
	case FallbackDirectOnly:
		return nil
	default:
		for _, t := range f.tools {
			if t.Name() == strategy {
				return []Tool{t}
			}
		}
		return nil
	}
}

// lastLine returns the last non-empty line of subprocess output, which for
// the recognized tools carries the actual failure reason.
func lastLine(out []byte) string {
	lines := splitLines(string(out))
	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i] != "" {
			return lines[i]
		}
	}
	return ""
}

// progressReader wraps an io.Reader and emits throttled progress events.
type progressReader struct {
	reader     io.Reader
	total      int64
	downloaded int64
	path       string
	emit       ProgressFunc
	lastEmit   time.Time
	interval   time.Duration
}

func newProgressReader(r io.Reader, total int64, path string, emit ProgressFunc) *progressReader {
	return &progressReader{
		reader:   r,
		total:    total,
		path:     path,
		emit:     emit,
		lastEmit: time.Now(),
		interval: 200 * time.Millisecond,
	}
}

func (pr *progressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	if n > 0 {
		pr.downloaded += int64(n)
		if time.Since(pr.lastEmit) >= pr.interval || err == io.EOF {
			pr.emit(ProgressEvent{
				Event:      "file_progress",
				Path:       pr.path,
				Downloaded: pr.downloaded,
				Total:      pr.total,
			})
			pr.lastEmit = time.Now()
		}
	}
	return n, err
}
