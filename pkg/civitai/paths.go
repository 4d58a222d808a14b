// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package civitai

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ShortLabels derives a stable, human-readable short label for each
// configured model directory. Labels are the directory basename; when two
// paths share a basename the parent directory is prepended, and remaining
// collisions get a numeric suffix.
func ShortLabels(paths []string) map[string]string {
	byBase := make(map[string][]string)
	for _, p := range paths {
		base := filepath.Base(filepath.Clean(p))
		byBase[base] = append(byBase[base], p)
	}

	labels := make(map[string]string, len(paths))
	for base, group := range byBase {
		if len(group) == 1 {
			labels[base] = group[0]
			continue
		}
		sort.Strings(group)
		for i, p := range group {
			parent := filepath.Base(filepath.Dir(filepath.Clean(p)))
			label := parent + "/" + base
			if _, taken := labels[label]; taken {
				label = fmt.Sprintf("%s (%d)", label, i+1)
			}
			labels[label] = p
		}
	}
	return labels
}

// SortedLabels returns the short labels for paths in deterministic order,
// for presentation in CLI enums and API responses.
func SortedLabels(paths []string) []string {
	m := ShortLabels(paths)
	out := make([]string, 0, len(m))
	for label := range m {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// ResolveDownloadDir maps a selected short label to its directory. Unknown
// or empty labels resolve to the first configured path; an empty path set
// resolves to "".
func ResolveDownloadDir(label string, paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	if label != "" {
		if p, ok := ShortLabels(paths)[label]; ok {
			return p
		}
	}
	return paths[0]
}

// FindExistingFile scans the configured directories for a file with the
// given name and returns the first match, honoring the configured order.
// Returns "" when the file exists nowhere.
func FindExistingFile(name string, paths []string) string {
	if name == "" {
		return ""
	}
	for _, dir := range paths {
		candidate := filepath.Join(dir, name)
		if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
			return candidate
		}
	}
	return ""
}
