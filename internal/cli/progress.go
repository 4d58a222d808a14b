// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/cheggaaa/pb/v3"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/comfydodi/civitaifetch/pkg/civitai"
)

var (
	msgPrefix = color.New(color.Bold, color.FgBlue).Sprint("[CivitAI]") + " "
	errPrefix = color.New(color.Bold, color.FgRed).Sprint("[CivitAI]") + color.New(color.Bold).Sprint(" Error: ")
)

// progressRenderer turns pipeline events into terminal output: prefixed
// status lines, a byte progress bar for direct streaming, or JSON lines in
// --json mode.
type progressRenderer struct {
	ro  *RootOpts
	log *logrus.Logger
	enc *json.Encoder

	mu  sync.Mutex
	bar *pb.ProgressBar
}

func newProgressRenderer(ro *RootOpts, log *logrus.Logger) *progressRenderer {
	r := &progressRenderer{ro: ro, log: log}
	if ro.JSONOut {
		r.enc = json.NewEncoder(os.Stdout)
		r.enc.SetEscapeHTML(false)
	}
	return r
}

// Handler returns the ProgressFunc to hand to the loader.
func (r *progressRenderer) Handler() civitai.ProgressFunc {
	return func(ev civitai.ProgressEvent) {
		r.mu.Lock()
		defer r.mu.Unlock()

		if r.enc != nil {
			_ = r.enc.Encode(ev)
			return
		}

		switch ev.Event {
		case "cache_hit":
			fmt.Printf("%sFound cached `%s` for %s\n", msgPrefix, ev.Path, ev.Model)
		case "resolve_start":
			if !r.ro.Quiet {
				fmt.Printf("%sResolving %s ...\n", msgPrefix, ev.Model)
			}
		case "degraded":
			r.log.Warnf("%s: %s", ev.Model, ev.Message)
		case "resolved":
			if !r.ro.Quiet {
				fmt.Printf("%sResolved `%s`\n", msgPrefix, ev.Path)
			}
		case "fetch_start":
			if ev.Level == "warn" {
				r.log.Warn(ev.Message)
				break
			}
			if !r.ro.Quiet && ev.Tool != "" {
				fmt.Printf("%sDownloading `%s` via %s\n", msgPrefix, ev.Path, ev.Tool)
			}
		case "file_progress":
			r.updateBar(ev)
		case "tool_failed":
			r.log.Warn(ev.Message)
		case "fetch_done":
			r.finishBar()
			if !r.ro.Quiet {
				fmt.Printf("%sDownloaded `%s`\n", msgPrefix, ev.Path)
			}
		case "ledger_warn":
			r.log.Warn(ev.Message)
		case "error":
			fmt.Fprintf(os.Stderr, "%s%s\n", errPrefix, ev.Message)
		}
	}
}

// updateBar lazily starts a byte progress bar once direct streaming reports
// a known total, then tracks it. Caller holds the mutex.
func (r *progressRenderer) updateBar(ev civitai.ProgressEvent) {
	if r.ro.Quiet || ev.Total <= 0 {
		return
	}
	if r.bar == nil {
		r.bar = pb.Full.Start64(ev.Total)
		r.bar.Set(pb.Bytes, true)
	}
	r.bar.SetCurrent(ev.Downloaded)
}

func (r *progressRenderer) finishBar() {
	if r.bar != nil {
		r.bar.SetCurrent(r.bar.Total())
		r.bar.Finish()
		r.bar = nil
	}
}

// Close tears down any live progress bar.
func (r *progressRenderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishBar()
}
