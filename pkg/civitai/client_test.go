// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package civitai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testClient(ts *httptest.Server, token string) *Client {
	return NewClient(ts.URL, token, 5*time.Second)
}

func TestResolveDownload_PrimaryFileSelection(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/model-versions/67890" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{
			"id": 67890,
			"files": [
				{"name": "A", "primary": false, "downloadUrl": "https://cdn.example/a"},
				{"name": "B", "primary": true, "downloadUrl": "https://cdn.example/b"}
			]
		}`))
	}))
	defer ts.Close()

	version := int64(67890)
	resolved, err := testClient(ts, "").ResolveDownload(context.Background(), 12345, &version)
	if err != nil {
		t.Fatalf("ResolveDownload failed: %v", err)
	}
	if resolved.FileName != "B" {
		t.Errorf("file name = %q, want primary file B", resolved.FileName)
	}
	if resolved.DownloadURL != "https://cdn.example/b" {
		t.Errorf("download URL = %q", resolved.DownloadURL)
	}
	if resolved.VersionID == nil || *resolved.VersionID != 67890 {
		t.Errorf("version id = %v, want 67890", resolved.VersionID)
	}
}

func TestResolveDownload_FirstFileWhenNoPrimary(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": 1, "files": [{"name": "A", "primary": false, "downloadUrl": "https://cdn.example/a"}]}`))
	}))
	defer ts.Close()

	version := int64(1)
	resolved, err := testClient(ts, "").ResolveDownload(context.Background(), 5, &version)
	if err != nil {
		t.Fatalf("ResolveDownload failed: %v", err)
	}
	if resolved.FileName != "A" {
		t.Errorf("file name = %q, want first file A", resolved.FileName)
	}
}

func TestResolveDownload_LatestVersion(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models/12345" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{
			"id": 12345,
			"modelVersions": [
				{"id": 999, "files": [{"name": "new.safetensors", "downloadUrl": "https://cdn.example/new"}]},
				{"id": 888, "files": [{"name": "old.safetensors", "downloadUrl": "https://cdn.example/old"}]}
			]
		}`))
	}))
	defer ts.Close()

	resolved, err := testClient(ts, "").ResolveDownload(context.Background(), 12345, nil)
	if err != nil {
		t.Fatalf("ResolveDownload failed: %v", err)
	}
	if resolved.VersionID == nil || *resolved.VersionID != 999 {
		t.Errorf("version id = %v, want most recent 999", resolved.VersionID)
	}
	if resolved.FileName != "new.safetensors" {
		t.Errorf("file name = %q", resolved.FileName)
	}
}

func TestResolveDownload_RegistryErrors(t *testing.T) {
	t.Run("no versions", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"id": 12345, "modelVersions": []}`))
		}))
		defer ts.Close()

		_, err := testClient(ts, "").ResolveDownload(context.Background(), 12345, nil)
		if !errors.Is(err, ErrNoVersions) {
			t.Errorf("error = %v, want ErrNoVersions", err)
		}
	})

	t.Run("no files", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"id": 12345, "modelVersions": [{"id": 1, "files": []}]}`))
		}))
		defer ts.Close()

		_, err := testClient(ts, "").ResolveDownload(context.Background(), 12345, nil)
		if !errors.Is(err, ErrNoFiles) {
			t.Errorf("error = %v, want ErrNoFiles", err)
		}
	})

	t.Run("no download URL", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"id": 12345, "modelVersions": [{"id": 1, "files": [{"name": "a"}]}]}`))
		}))
		defer ts.Close()

		_, err := testClient(ts, "").ResolveDownload(context.Background(), 12345, nil)
		if !errors.Is(err, ErrNoDownloadURL) {
			t.Errorf("error = %v, want ErrNoDownloadURL", err)
		}
	})

	t.Run("model lookup failure surfaces status", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer ts.Close()

		_, err := testClient(ts, "").ResolveDownload(context.Background(), 12345, nil)
		var rerr *RegistryError
		if !errors.As(err, &rerr) {
			t.Fatalf("error type = %T, want *RegistryError", err)
		}
		if rerr.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rerr.StatusCode)
		}
	})
}

func TestResolveDownload_Degraded(t *testing.T) {
	t.Run("filename from content-disposition", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case strings.HasPrefix(r.URL.Path, "/v1/"):
				w.WriteHeader(http.StatusInternalServerError)
			case r.URL.Path == "/download/models/67890":
				w.Header().Set("Content-Disposition", `attachment; filename="probed.safetensors"`)
			default:
				http.NotFound(w, r)
			}
		}))
		defer ts.Close()

		version := int64(67890)
		resolved, err := testClient(ts, "").ResolveDownload(context.Background(), 12345, &version)
		if err != nil {
			t.Fatalf("degraded resolution should not fail: %v", err)
		}
		if resolved.FileName != "probed.safetensors" {
			t.Errorf("file name = %q, want probed.safetensors", resolved.FileName)
		}
		if resolved.VersionID != nil {
			t.Errorf("version id = %d, want nil on degraded path", *resolved.VersionID)
		}
		if want := ts.URL + "/download/models/67890"; resolved.DownloadURL != want {
			t.Errorf("download URL = %q, want %q", resolved.DownloadURL, want)
		}
	})

	t.Run("filename from redirect target", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/download/models/42":
				http.Redirect(w, r, "/blobs/redirected.safetensors", http.StatusFound)
			case "/blobs/redirected.safetensors":
				// ok
			default:
				w.WriteHeader(http.StatusInternalServerError)
			}
		}))
		defer ts.Close()

		version := int64(42)
		resolved, err := testClient(ts, "").ResolveDownload(context.Background(), 1, &version)
		if err != nil {
			t.Fatalf("ResolveDownload failed: %v", err)
		}
		if resolved.FileName != "redirected.safetensors" {
			t.Errorf("file name = %q, want redirected.safetensors", resolved.FileName)
		}
	})

	t.Run("placeholder when probe finds nothing", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer ts.Close()

		version := int64(67890)
		resolved, err := testClient(ts, "").ResolveDownload(context.Background(), 12345, &version)
		if err != nil {
			t.Fatalf("ResolveDownload failed: %v", err)
		}
		if resolved.FileName != "civitai_model_67890.safetensors" {
			t.Errorf("file name = %q, want placeholder", resolved.FileName)
		}
	})
}

func TestClient_WithToken(t *testing.T) {
	c := NewClient("", "secret", time.Second)

	if got := c.withToken("https://cdn.example/file"); got != "https://cdn.example/file?token=secret" {
		t.Errorf("withToken = %q", got)
	}
	if got := c.withToken("https://cdn.example/file?type=Model"); got != "https://cdn.example/file?type=Model&token=secret" {
		t.Errorf("withToken = %q", got)
	}
	if got := c.withToken("https://cdn.example/file?token=other"); got != "https://cdn.example/file?token=other" {
		t.Errorf("token already present, got %q", got)
	}

	plain := NewClient("", "", time.Second)
	if got := plain.withToken("https://cdn.example/file"); got != "https://cdn.example/file" {
		t.Errorf("no token configured, got %q", got)
	}
}

func TestResolveDownload_TokenAppendedToURL(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer header on %s", r.URL.Path)
		}
		w.Write([]byte(`{"id": 1, "files": [{"name": "a", "downloadUrl": "https://cdn.example/a"}]}`))
	}))
	defer ts.Close()

	version := int64(1)
	resolved, err := testClient(ts, "secret").ResolveDownload(context.Background(), 5, &version)
	if err != nil {
		t.Fatalf("ResolveDownload failed: %v", err)
	}
	if resolved.DownloadURL != "https://cdn.example/a?token=secret" {
		t.Errorf("download URL = %q, want token query appended", resolved.DownloadURL)
	}
}
