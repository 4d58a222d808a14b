// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package civitai

import (
	"testing"
	"time"
)

func TestSettingsTimeoutClamp(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{0, 5},
		{-1, 5},
		{3, 5},
		{5, 5},
		{20, 20},
		{300, 300},
		{999, 300},
	}
	for _, c := range cases {
		s := Settings{TimeoutSeconds: c.in}
		if got := s.timeout(); got != time.Duration(c.want)*time.Second {
			t.Errorf("timeout(%d) = %v, want %ds", c.in, got, c.want)
		}
	}
}

func TestSettingsConnectionsClamp(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{0, 16},
		{-2, 16},
		{1, 1},
		{32, 32},
		{64, 64},
		{100, 64},
	}
	for _, c := range cases {
		s := Settings{Connections: c.in}
		if got := s.connections(); got != c.want {
			t.Errorf("connections(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}
