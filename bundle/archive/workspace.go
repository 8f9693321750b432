// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package archive

import (
	"archive/zip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	ziputil "github.com/juju/utils/v3/zip"
	"github.com/klauspost/compress/flate"

	bundleerrors "github.com/manuals-rag/ragbundle/bundle/errors"
	"github.com/manuals-rag/ragbundle/bundle/stage"
)

// WorkspacePrefix names the extraction directories created by
// NewWorkspace, so stale ones can be recognised.
const WorkspacePrefix = ".ragbundle-import-"

// Workspace is an archive unpacked into a private directory. The
// directory is deleted when the workspace is closed.
type Workspace struct {
	ArchivePath string
	RootDir     string
}

// NewWorkspace unpacks archivePath into a new directory below parentDir.
// Placing the workspace on the same filesystem as the live data lets its
// trees be renamed into place. Archives with members that would land
// outside the workspace are rejected before anything is written.
func NewWorkspace(parentDir, archivePath string) (_ *Workspace, err error) {
	if archivePath == "" {
		return nil, errors.Errorf("missing archive path")
	}
	if err := os.MkdirAll(parentDir, 0755); err != nil {
		return nil, errors.Trace(err)
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		if zr != nil {
			_ = zr.Close()
		}
		return nil, errors.Annotatef(bundleerrors.ArchiveValidationFailure, "opening %q: %v", archivePath, err)
	}
	defer zr.Close()
	zr.RegisterDecompressor(zip.Deflate, func(in io.Reader) io.ReadCloser {
		return flate.NewReader(in)
	})

	for _, f := range zr.File {
		name := strings.TrimSuffix(f.Name, "/")
		if err := stage.ValidRelPath(name); err != nil {
			return nil, errors.Annotatef(bundleerrors.ArchiveValidationFailure, "%q: %v", archivePath, err)
		}
	}

	rootDir, err := os.MkdirTemp(parentDir, WorkspacePrefix)
	if err != nil {
		return nil, errors.Annotate(err, "creating workspace dir")
	}
	ws := &Workspace{
		ArchivePath: archivePath,
		RootDir:     rootDir,
	}
	defer func() {
		if err != nil {
			_ = ws.Close()
		}
	}()

	if err := ziputil.ExtractAll(&zr.Reader, rootDir); err != nil {
		return nil, errors.Annotatef(bundleerrors.ArchiveValidationFailure, "extracting %q: %v", archivePath, err)
	}
	logger.Debugf("unpacked %q into %q", archivePath, rootDir)
	return ws, nil
}

// Path returns the location of a slash separated member.
func (ws *Workspace) Path(member string) string {
	return filepath.Join(ws.RootDir, filepath.FromSlash(member))
}

// Validate checks that every named member was extracted as a regular file.
func (ws *Workspace) Validate(required ...string) error {
	var missing []string
	for _, member := range required {
		info, err := os.Stat(ws.Path(member))
		if err != nil || !info.Mode().IsRegular() {
			missing = append(missing, member)
		}
	}
	if len(missing) > 0 {
		return errors.Annotatef(bundleerrors.ArchiveValidationFailure,
			"%q missing %s", ws.ArchivePath, strings.Join(missing, ", "))
	}
	return nil
}

// ReadJSON decodes a JSON member into v.
func (ws *Workspace) ReadJSON(member string, v any) error {
	f, err := os.Open(ws.Path(member))
	if os.IsNotExist(err) {
		return errors.NotFoundf("archive member %q", member)
	} else if err != nil {
		return errors.Trace(err)
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(v); err != nil {
		return errors.NotValidf("archive member %q: %v", member, err)
	}
	return nil
}

// Remove deletes a member from the unpacked tree.
func (ws *Workspace) Remove(member string) error {
	err := os.RemoveAll(ws.Path(member))
	return errors.Trace(err)
}

// Close removes the workspace directory and everything in it.
func (ws *Workspace) Close() error {
	if ws.RootDir == "" {
		return nil
	}
	err := os.RemoveAll(ws.RootDir)
	return errors.Trace(err)
}
