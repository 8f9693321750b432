// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package archive writes, verifies and unpacks bundle archives: zip files
// accompanied by a SHA-256 side-car.
package archive

import (
	"archive/zip"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/klauspost/compress/flate"
)

var logger = loggo.GetLogger("ragbundle.archive")

// Result summarises a written archive.
type Result struct {
	Path    string
	SHA256  string
	Size    int64
	Members []string
}

// Write packs every file and directory below stageRoot into a zip at
// archivePath and records its checksum in the side-car. Any existing
// archive and side-car at that path are replaced. The archive only
// appears under its final name once it is complete.
func Write(stageRoot, archivePath string) (*Result, error) {
	if err := os.MkdirAll(filepath.Dir(archivePath), 0755); err != nil {
		return nil, errors.Annotate(err, "creating output directory")
	}
	for _, stale := range []string{archivePath, SidecarPath(archivePath)} {
		if err := os.Remove(stale); err != nil && !os.IsNotExist(err) {
			return nil, errors.Annotatef(err, "removing previous %q", stale)
		}
	}

	w, err := newWriter(archivePath)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer w.cleanUp()

	if err := w.addTree(stageRoot); err != nil {
		return nil, errors.Annotatef(err, "archiving %q", stageRoot)
	}
	if err := w.commit(); err != nil {
		return nil, errors.Trace(err)
	}

	digest, size, err := Checksum(archivePath)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := WriteSidecar(archivePath, digest); err != nil {
		return nil, errors.Trace(err)
	}
	logger.Infof("wrote %q (%d bytes, sha256 %s)", archivePath, size, digest)
	return &Result{
		Path:    archivePath,
		SHA256:  digest,
		Size:    size,
		Members: w.members,
	}, nil
}

// writer assembles a zip in a temporary file next to its destination.
type writer struct {
	target  string
	file    *os.File
	zip     *zip.Writer
	members []string
}

func newWriter(target string) (*writer, error) {
	file, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return nil, errors.Annotate(err, "creating temporary archive")
	}
	zw := zip.NewWriter(file)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})
	return &writer{
		target: target,
		file:   file,
		zip:    zw,
	}, nil
}

func (w *writer) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.Trace(err)
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return errors.Trace(err)
		}
		if rel == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return errors.Trace(err)
		}
		if !d.IsDir() && !info.Mode().IsRegular() {
			logger.Debugf("not archiving %q: not a regular file", path)
			return nil
		}
		return errors.Trace(w.add(path, filepath.ToSlash(rel), info))
	})
}

func (w *writer) add(path, name string, info fs.FileInfo) error {
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return errors.Trace(err)
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
		hdr.Method = zip.Store
		_, err := w.zip.CreateHeader(hdr)
		return errors.Trace(err)
	}
	hdr.Method = zip.Deflate

	out, err := w.zip.CreateHeader(hdr)
	if err != nil {
		return errors.Trace(err)
	}
	in, err := os.Open(path)
	if err != nil {
		return errors.Trace(err)
	}
	defer in.Close()
	if _, err := io.Copy(out, in); err != nil {
		return errors.Annotatef(err, "adding %q", name)
	}
	w.members = append(w.members, name)
	return nil
}

// commit finishes the zip, flushes it to disk and renames it into place.
func (w *writer) commit() error {
	if err := w.zip.Close(); err != nil {
		return errors.Annotate(err, "finishing archive")
	}
	if err := w.file.Sync(); err != nil {
		return errors.Annotate(err, "syncing archive")
	}
	if err := w.file.Close(); err != nil {
		return errors.Annotate(err, "closing archive")
	}
	tmp := w.file.Name()
	w.file = nil
	if err := os.Rename(tmp, w.target); err != nil {
		_ = os.Remove(tmp)
		return errors.Annotatef(err, "moving archive into %q", w.target)
	}
	return nil
}

// cleanUp removes the temporary file if the archive was not committed.
func (w *writer) cleanUp() {
	if w.file == nil {
		return
	}
	name := w.file.Name()
	_ = w.file.Close()
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		logger.Errorf("removing temporary archive %q: %v", name, err)
	}
	w.file = nil
}
