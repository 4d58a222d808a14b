// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package civitai

import (
	"os"
	"path/filepath"
	"testing"
)

func TestShortLabels(t *testing.T) {
	t.Run("unique basenames", func(t *testing.T) {
		labels := ShortLabels([]string{"/data/loras", "/mnt/checkpoints"})
		if labels["loras"] != "/data/loras" {
			t.Errorf("loras -> %q, want /data/loras", labels["loras"])
		}
		if labels["checkpoints"] != "/mnt/checkpoints" {
			t.Errorf("checkpoints -> %q, want /mnt/checkpoints", labels["checkpoints"])
		}
	})

	t.Run("colliding basenames get parent prefix", func(t *testing.T) {
		labels := ShortLabels([]string{"/fast/loras", "/slow/loras"})
		if labels["fast/loras"] != "/fast/loras" {
			t.Errorf("fast/loras -> %q", labels["fast/loras"])
		}
		if labels["slow/loras"] != "/slow/loras" {
			t.Errorf("slow/loras -> %q", labels["slow/loras"])
		}
	})
}

func TestResolveDownloadDir(t *testing.T) {
	paths := []string{"/data/loras", "/mnt/extra"}

	if got := ResolveDownloadDir("extra", paths); got != "/mnt/extra" {
		t.Errorf("matched label -> %q, want /mnt/extra", got)
	}
	if got := ResolveDownloadDir("nope", paths); got != "/data/loras" {
		t.Errorf("unknown label -> %q, want first path", got)
	}
	if got := ResolveDownloadDir("", paths); got != "/data/loras" {
		t.Errorf("empty label -> %q, want first path", got)
	}
	if got := ResolveDownloadDir("x", nil); got != "" {
		t.Errorf("no paths -> %q, want empty", got)
	}
}

func TestFindExistingFile(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	paths := []string{first, second}

	if got := FindExistingFile("missing.safetensors", paths); got != "" {
		t.Errorf("missing file -> %q, want empty", got)
	}

	if err := os.WriteFile(filepath.Join(second, "style.safetensors"), []byte("w"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := FindExistingFile("style.safetensors", paths); got != filepath.Join(second, "style.safetensors") {
		t.Errorf("FindExistingFile = %q", got)
	}

	// Present in both roots: first-configured root wins.
	if err := os.WriteFile(filepath.Join(first, "style.safetensors"), []byte("w"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := FindExistingFile("style.safetensors", paths); got != filepath.Join(first, "style.safetensors") {
		t.Errorf("tie break = %q, want first root", got)
	}

	// Directories with a matching name are not files.
	if err := os.Mkdir(filepath.Join(first, "dir.safetensors"), 0o755); err != nil {
		t.Fatal(err)
	}
	if got := FindExistingFile("dir.safetensors", paths); got != "" {
		t.Errorf("directory matched as file: %q", got)
	}
}
