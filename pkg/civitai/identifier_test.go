// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package civitai

import (
	"errors"
	"testing"
)

func TestParseIdentifier(t *testing.T) {
	v := func(n int64) *int64 { return &n }

	cases := []struct {
		in      string
		model   int64
		version *int64
	}{
		{"12345", 12345, nil},
		{"12345@67890", 12345, v(67890)},
		{"  12345@67890  ", 12345, v(67890)},
		{"7@", 7, nil},
		{"0@1", 0, v(1)},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			id, err := ParseIdentifier(tc.in)
			if err != nil {
				t.Fatalf("ParseIdentifier(%q) failed: %v", tc.in, err)
			}
			if id.ModelID != tc.model {
				t.Errorf("model id = %d, want %d", id.ModelID, tc.model)
			}
			switch {
			case tc.version == nil && id.VersionID != nil:
				t.Errorf("version id = %d, want nil", *id.VersionID)
			case tc.version != nil && id.VersionID == nil:
				t.Errorf("version id = nil, want %d", *tc.version)
			case tc.version != nil && *id.VersionID != *tc.version:
				t.Errorf("version id = %d, want %d", *id.VersionID, *tc.version)
			}
		})
	}
}

func TestParseIdentifier_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "abc", "abc@123", "123@abc", "@123", "12.5@1"} {
		t.Run("input "+in, func(t *testing.T) {
			_, err := ParseIdentifier(in)
			if err == nil {
				t.Fatalf("ParseIdentifier(%q) succeeded, want error", in)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("error type = %T, want *ValidationError", err)
			}
		})
	}
}

func TestModelIdentifier_String(t *testing.T) {
	id, _ := ParseIdentifier("12345@67890")
	if got := id.String(); got != "12345@67890" {
		t.Errorf("String() = %q, want 12345@67890", got)
	}
	id, _ = ParseIdentifier("12345")
	if got := id.String(); got != "12345@latest" {
		t.Errorf("String() = %q, want 12345@latest", got)
	}
}
