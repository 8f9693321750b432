// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package archive

import (
	"os"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/utils/v4"

	bundleerrors "github.com/manuals-rag/ragbundle/bundle/errors"
)

// SidecarSuffix is appended to an archive path to name its checksum file.
const SidecarSuffix = ".sha256"

// SidecarPath returns the checksum side-car path for an archive.
func SidecarPath(archivePath string) string {
	return archivePath + SidecarSuffix
}

// WriteSidecar atomically records digest next to the archive.
func WriteSidecar(archivePath, digest string) error {
	err := utils.AtomicWriteFile(SidecarPath(archivePath), []byte(digest), 0644)
	return errors.Annotatef(err, "writing checksum for %q", archivePath)
}

// ReadSidecar returns the digest recorded for an archive. A missing
// side-car is reported as NotFound.
func ReadSidecar(archivePath string) (string, error) {
	data, err := os.ReadFile(SidecarPath(archivePath))
	if os.IsNotExist(err) {
		return "", errors.NotFoundf("checksum for %q", archivePath)
	} else if err != nil {
		return "", errors.Trace(err)
	}
	// Tolerate the "<digest>  <name>" layout of sha256sum output.
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return "", errors.NotValidf("empty checksum file for %q", archivePath)
	}
	return strings.ToLower(fields[0]), nil
}

// Checksum returns the hex SHA-256 digest and size of a file.
func Checksum(path string) (string, int64, error) {
	digest, size, err := utils.ReadFileSHA256(path)
	if err != nil {
		return "", 0, errors.Annotatef(err, "hashing %q", path)
	}
	return digest, size, nil
}

// Verify recomputes the digest of the archive and compares it with the
// side-car. The archive is never repaired; a mismatch is reported as
// ChecksumMismatch.
func Verify(archivePath string) (string, error) {
	expected, err := ReadSidecar(archivePath)
	if err != nil {
		return "", errors.Trace(err)
	}
	actual, _, err := Checksum(archivePath)
	if err != nil {
		return "", errors.Trace(err)
	}
	if actual != expected {
		return actual, errors.Annotatef(bundleerrors.ChecksumMismatch,
			"%q: recorded %s, computed %s", archivePath, expected, actual)
	}
	return actual, nil
}
