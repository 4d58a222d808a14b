// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package civitai

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// DefaultEndpoint is the CivitAI API base URL. Can be overridden via
// Settings.Endpoint for mirrors or tests; both the v1 metadata routes and
// the direct-download route hang off this base.
const DefaultEndpoint = "https://civitai.com/api"

const userAgent = "civitaifetch/1"

// Client issues authenticated requests against the model registry.
type Client struct {
	base    string
	token   string
	httpc   *http.Client
	timeout time.Duration
}

// NewClient builds a registry client. An empty endpoint means
// DefaultEndpoint; an empty token disables authentication.
func NewClient(endpoint, token string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		base:    strings.TrimSuffix(endpoint, "/"),
		token:   strings.TrimSpace(token),
		httpc:   buildHTTPClient(),
		timeout: timeout,
	}
}

// buildHTTPClient creates an HTTP client with sensible defaults.
func buildHTTPClient() *http.Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: tr}
}

// addAuth adds authentication and user-agent headers to a request.
func (c *Client) addAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("User-Agent", userAgent)
}

// Registry metadata shapes. Only the fields the pipeline needs are decoded;
// everything else the API returns is ignored.

type versionFile struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Primary     bool   `json:"primary"`
	DownloadURL string `json:"downloadUrl"`
}

type modelVersion struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Files       []versionFile `json:"files"`
	DownloadURL string        `json:"downloadUrl"`
}

type modelDetails struct {
	ID            int64          `json:"id"`
	Name          string         `json:"name"`
	ModelVersions []modelVersion `json:"modelVersions"`
}

// FetchJSON issues an authenticated GET against the given API path (e.g.
// "v1/models/12345") and decodes the JSON response into out. Non-success
// statuses yield a *RegistryError carrying the status code; transport
// failures yield a *RegistryError with StatusCode zero.
func (c *Client) FetchJSON(ctx context.Context, apiPath string, out any) error {
	reqURL := c.base + "/" + strings.TrimPrefix(apiPath, "/")

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return &RegistryError{URL: reqURL, Err: err}
	}
	c.addAuth(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &RegistryError{URL: reqURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &RegistryError{StatusCode: resp.StatusCode, URL: reqURL}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RegistryError{URL: reqURL, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// ResolveDownload determines the file name and download URL for a model.
//
// With a version id, the version metadata is fetched directly; if that
// fails, resolution degrades to a synthesized direct-download URL (see
// resolveDegraded) instead of raising. Without a version id, the model
// metadata is fetched and its first (most recent) version is used.
//
// File selection is deterministic: the file flagged primary wins, else the
// first file in the registry's returned order.
func (c *Client) ResolveDownload(ctx context.Context, modelID int64, versionID *int64) (*ResolvedDownload, error) {
	var version modelVersion

	if versionID != nil {
		if err := c.FetchJSON(ctx, fmt.Sprintf("v1/model-versions/%d", *versionID), &version); err != nil {
			return c.resolveDegraded(ctx, modelID, *versionID), nil
		}
	} else {
		var model modelDetails
		if err := c.FetchJSON(ctx, fmt.Sprintf("v1/models/%d", modelID), &model); err != nil {
			return nil, err
		}
		if len(model.ModelVersions) == 0 {
			return nil, &RegistryError{Err: ErrNoVersions}
		}
		version = model.ModelVersions[0]
	}

	if len(version.Files) == 0 {
		return nil, &RegistryError{Err: ErrNoFiles}
	}
	file := version.Files[0]
	for _, f := range version.Files {
		if f.Primary {
			file = f
			break
		}
	}

	downloadURL := file.DownloadURL
	if downloadURL == "" {
		downloadURL = version.DownloadURL
	}
	if downloadURL == "" {
		return nil, &RegistryError{Err: ErrNoDownloadURL}
	}

	fileName := file.Name
	if fileName == "" {
		fileName = path.Base(downloadURL)
	}

	resolvedID := version.ID
	return &ResolvedDownload{
		ModelID:     modelID,
		VersionID:   &resolvedID,
		FileName:    fileName,
		DownloadURL: c.withToken(downloadURL),
	}, nil
}

// resolveDegraded synthesizes the direct-download URL for a version when
// metadata lookup fails, probing it with a HEAD request to recover the file
// name. Probe failures never propagate; the worst case is a placeholder
// name. The result carries a nil VersionID since the registry never
// confirmed the version.
func (c *Client) resolveDegraded(ctx context.Context, modelID, versionID int64) *ResolvedDownload {
	downloadURL := fmt.Sprintf("%s/download/models/%d", c.base, versionID)

	name := c.probeFilename(ctx, downloadURL)
	if name == "" {
		name = fmt.Sprintf("civitai_model_%d.safetensors", versionID)
	}

	return &ResolvedDownload{
		ModelID:     modelID,
		FileName:    name,
		DownloadURL: c.withToken(downloadURL),
	}
}

// probeFilename issues a metadata-only HEAD request and extracts a file name
// from the Content-Disposition header, falling back to the basename of the
// final redirected URL. Returns "" when nothing usable is found.
func (c *Client) probeFilename(ctx context.Context, urlStr string) string {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, urlStr, nil)
	if err != nil {
		return ""
	}
	c.addAuth(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := params["filename"]; name != "" {
				return path.Base(name)
			}
		}
	}

	// Final URL after redirects often ends in the real file name.
	if resp.Request != nil && resp.Request.URL != nil {
		base := path.Base(resp.Request.URL.Path)
		if strings.Contains(base, ".") {
			return base
		}
	}
	return ""
}

// withToken appends the API token as a query parameter unless the URL
// already carries one or no token is configured. CivitAI's CDN accepts the
// token this way for tools that cannot send headers.
func (c *Client) withToken(urlStr string) string {
	if c.token == "" || strings.Contains(urlStr, "token=") {
		return urlStr
	}
	sep := "?"
	if strings.Contains(urlStr, "?") {
		sep = "&"
	}
	return urlStr + sep + "token=" + url.QueryEscape(c.token)
}
