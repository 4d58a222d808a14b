// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package civitai

import (
	"fmt"
	"strconv"
	"strings"
)

// ModelIdentifier is a parsed "model@version" pair. A nil VersionID means
// "latest published version".
type ModelIdentifier struct {
	ModelID   int64
	VersionID *int64
}

// String renders the identifier in the same compact form it is parsed from.
func (id ModelIdentifier) String() string {
	if id.VersionID == nil {
		return fmt.Sprintf("%d@latest", id.ModelID)
	}
	return fmt.Sprintf("%d@%d", id.ModelID, *id.VersionID)
}

// ParseIdentifier parses a compact model identifier of the form "<id>" or
// "<id>@<version>", e.g. "12345@67890". The version segment is optional; an
// empty segment after "@" is treated as absent.
func ParseIdentifier(text string) (ModelIdentifier, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ModelIdentifier{}, &ValidationError{Msg: "model identifier required (ex: 12345@67890)"}
	}

	left, right, _ := strings.Cut(text, "@")
	modelID, err := strconv.ParseInt(left, 10, 64)
	if err != nil {
		return ModelIdentifier{}, &ValidationError{Msg: fmt.Sprintf("invalid model id %q", left)}
	}

	id := ModelIdentifier{ModelID: modelID}
	if right != "" {
		versionID, err := strconv.ParseInt(right, 10, 64)
		if err != nil {
			return ModelIdentifier{}, &ValidationError{Msg: fmt.Sprintf("invalid version id %q", right)}
		}
		id.VersionID = &versionID
	}
	return id, nil
}
