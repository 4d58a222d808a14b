// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// BuildInfo holds version and build information.
type BuildInfo struct {
	Version   string
	GoVersion string
	OS        string
	Arch      string
	Commit    string
	BuildTime string
}

// GetBuildInfo returns the current build information.
func GetBuildInfo(version string) BuildInfo {
	info := BuildInfo{
		Version:   version,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		Commit:    "unknown",
		BuildTime: "unknown",
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range bi.Settings {
			switch setting.Key {
			case "vcs.revision":
				if len(setting.Value) >= 7 {
					info.Commit = setting.Value[:7]
				}
			case "vcs.time":
				info.BuildTime = setting.Value
			}
		}
	}
	return info
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Run: func(cmd *cobra.Command, args []string) {
			info := GetBuildInfo(version)
			fmt.Printf("civitaifetch %s\n", info.Version)
			fmt.Printf("  go:     %s\n", info.GoVersion)
			fmt.Printf("  os:     %s/%s\n", info.OS, info.Arch)
			fmt.Printf("  commit: %s\n", info.Commit)
			fmt.Printf("  built:  %s\n", info.BuildTime)
		},
	}
}
