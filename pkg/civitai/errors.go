// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package civitai

import (
	"errors"
	"fmt"
)

// Common errors returned during registry resolution.
var (
	// ErrNoVersions is returned when a model has no published versions.
	ErrNoVersions = errors.New("model has no versions available")

	// ErrNoFiles is returned when a model version lists no downloadable files.
	ErrNoFiles = errors.New("model version has no downloadable files")

	// ErrNoDownloadURL is returned when neither the selected file nor the
	// version carries a download URL.
	ErrNoDownloadURL = errors.New("no download URL returned by the registry")
)

// ValidationError reports a malformed model identifier. It is always
// surfaced to the caller and never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// RegistryError represents a failed metadata fetch or resolution against the
// registry API. StatusCode is zero when the request never produced a
// response (transport failure).
type RegistryError struct {
	StatusCode int
	URL        string
	Err        error
}

func (e *RegistryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("registry request failed with status %d (%s)", e.StatusCode, e.URL)
	}
	if e.Err != nil {
		return fmt.Sprintf("registry request failed: %v", e.Err)
	}
	return "registry request failed"
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}

// TransferError is returned when every configured download strategy has been
// exhausted. Err aggregates the per-strategy failures.
type TransferError struct {
	URL string
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("all download strategies failed: %v", e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
