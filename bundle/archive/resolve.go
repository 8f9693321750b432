// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package archive

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/juju/naturalsort"

	bundleerrors "github.com/manuals-rag/ragbundle/bundle/errors"
)

// ChecksumState is the outcome of verifying an archive against its
// side-car.
type ChecksumState string

const (
	ChecksumOK       ChecksumState = "ok"
	ChecksumMismatch ChecksumState = "mismatch"
	ChecksumMissing  ChecksumState = "missing"
	ChecksumError    ChecksumState = "error"
)

// Info describes an archive found in an output directory.
type Info struct {
	Name     string        `json:"name" yaml:"name"`
	Path     string        `json:"path" yaml:"path"`
	Size     int64         `json:"size" yaml:"size"`
	ModTime  time.Time     `json:"modified" yaml:"modified"`
	SHA256   string        `json:"sha256,omitempty" yaml:"sha256,omitempty"`
	Checksum ChecksumState `json:"checksum" yaml:"checksum"`
}

func archives(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	var found []Info
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, Extension) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, errors.Trace(err)
		}
		found = append(found, Info{
			Name:    name,
			Path:    filepath.Join(dir, name),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	// Newest first. Names embed the build time, so equal modification
	// times fall back to the natural order of the names, reversed.
	names := make([]string, len(found))
	for i, info := range found {
		names[i] = info.Name
	}
	naturalsort.Sort(names)
	rank := make(map[string]int, len(names))
	for i, name := range names {
		rank[name] = i
	}
	sort.Slice(found, func(i, j int) bool {
		if !found[i].ModTime.Equal(found[j].ModTime) {
			return found[i].ModTime.After(found[j].ModTime)
		}
		return rank[found[i].Name] > rank[found[j].Name]
	})
	return found, nil
}

// Latest returns the most recently modified archive in dir.
func Latest(dir string) (string, error) {
	found, err := archives(dir)
	if err != nil {
		return "", errors.Trace(err)
	}
	if len(found) == 0 {
		return "", errors.Annotatef(bundleerrors.NoArchiveFound, "in %q", dir)
	}
	return found[0].Path, nil
}

// List returns the archives in dir, newest first, each verified against
// its side-car.
func List(dir string) ([]Info, error) {
	found, err := archives(dir)
	if err != nil {
		return nil, errors.Trace(err)
	}
	for i := range found {
		digest, err := Verify(found[i].Path)
		found[i].SHA256 = digest
		switch {
		case err == nil:
			found[i].Checksum = ChecksumOK
		case errors.Is(err, bundleerrors.ChecksumMismatch):
			found[i].Checksum = ChecksumMismatch
		case errors.Is(err, errors.NotFound):
			found[i].Checksum = ChecksumMissing
		default:
			logger.Warningf("verifying %q: %v", found[i].Path, err)
			found[i].Checksum = ChecksumError
		}
	}
	return found, nil
}
