// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package civitai

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
)

// Tool abstracts an external command-line downloader so the fetch chain can
// be exercised in tests with fake implementations.
type Tool interface {
	// Name is the executable name, used in error aggregation and logs.
	Name() string

	// Available reports whether the tool can be invoked on this system.
	Available() bool

	// Command builds the invocation that transfers url to dst. The bearer
	// token is passed as an authorization header argument when configured.
	Command(ctx context.Context, url, dst string, cfg Settings) *exec.Cmd
}

// defaultTools is the recognized tool chain in "auto" preference order:
// multi-connection first, then the single-stream tools.
func defaultTools() []Tool {
	return []Tool{aria2cTool{}, wgetTool{}, curlTool{}}
}

func toolInstalled(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// aria2cTool downloads with parallel connections.
type aria2cTool struct{}

func (aria2cTool) Name() string    { return "aria2c" }
func (aria2cTool) Available() bool { return toolInstalled("aria2c") }

func (aria2cTool) Command(ctx context.Context, url, dst string, cfg Settings) *exec.Cmd {
	conns := fmt.Sprint(cfg.connections())
	args := []string{
		"--allow-overwrite=true",
		"--auto-file-renaming=false",
		"-x", conns,
		"-s", conns,
		"-d", filepath.Dir(dst),
		"-o", filepath.Base(dst),
	}
	if cfg.Token != "" {
		args = append(args, "--header", "Authorization: Bearer "+cfg.Token)
	}
	args = append(args, url)
	return exec.CommandContext(ctx, "aria2c", args...)
}

// wgetTool is a single-stream downloader that follows content-disposition.
type wgetTool struct{}

func (wgetTool) Name() string    { return "wget" }
func (wgetTool) Available() bool { return toolInstalled("wget") }

func (wgetTool) Command(ctx context.Context, url, dst string, cfg Settings) *exec.Cmd {
	args := []string{"-O", dst, "--content-disposition"}
	if cfg.Token != "" {
		args = append(args, "--header", "Authorization: Bearer "+cfg.Token)
	}
	args = append(args, url)
	return exec.CommandContext(ctx, "wget", args...)
}

// curlTool is a single-stream downloader following redirects.
type curlTool struct{}

func (curlTool) Name() string    { return "curl" }
func (curlTool) Available() bool { return toolInstalled("curl") }

func (curlTool) Command(ctx context.Context, url, dst string, cfg Settings) *exec.Cmd {
	args := []string{"-L", url, "-o", dst}
	if cfg.Token != "" {
		args = append(args, "-H", "Authorization: Bearer "+cfg.Token)
	}
	return exec.CommandContext(ctx, "curl", args...)
}
