// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package archive

import (
	"regexp"
	"strings"
	"time"
)

const (
	// Extension is the file extension of every bundle archive.
	Extension = ".zip"

	// DefaultLabel is used when no label, or nothing usable, is given.
	DefaultLabel = "bundle"

	timestampLayout = "20060102-150405"
)

var unsafeLabelChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeLabel reduces a free-form label to characters that are safe in
// a file name on every supported platform.
func SanitizeLabel(label string) string {
	label = unsafeLabelChars.ReplaceAllString(label, "-")
	label = strings.Trim(label, "-.")
	if label == "" {
		return DefaultLabel
	}
	return label
}

// Name returns the archive file name for a bundle built at t, for example
// manuals-rag-prod-20250101-120000.zip.
func Name(prefix, label string, t time.Time) string {
	return prefix + "-" + SanitizeLabel(label) + "-" + t.Format(timestampLayout) + Extension
}
