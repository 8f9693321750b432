// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package bundle

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/spf13/afero"

	"github.com/manuals-rag/ragbundle/bundle/archive"
	"github.com/manuals-rag/ragbundle/bundle/stage"
	"github.com/manuals-rag/ragbundle/config"
	"github.com/manuals-rag/ragbundle/internal/lockprobe"
)

// ExporterParams holds what an Exporter needs. Only Config is required.
type ExporterParams struct {
	Config *config.Config

	Probe        lockprobe.ProbeFunc
	OnlineBackup stage.BackupFunc
	Clock        clock.Clock
}

// Exporter packs the live data into archives.
type Exporter struct {
	cfg    *config.Config
	stager *stage.Stager
	clock  clock.Clock
	fs     afero.Fs
}

// NewExporter returns an Exporter for the configured data.
func NewExporter(p ExporterParams) (*Exporter, error) {
	if p.Config == nil {
		return nil, errors.NotValidf("nil Config")
	}
	if p.Clock == nil {
		p.Clock = clock.WallClock
	}
	fsys := afero.NewOsFs()
	scfg := StagerConfig(p.Config)
	scfg.FS = fsys
	scfg.Clock = p.Clock
	scfg.Probe = p.Probe
	scfg.OnlineBackup = p.OnlineBackup
	stager, err := stage.NewStager(scfg)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Exporter{
		cfg:    p.Config,
		stager: stager,
		clock:  p.Clock,
		fs:     fsys,
	}, nil
}

// ExportArgs holds the per-run options of an export.
type ExportArgs struct {
	// Label is sanitized into the archive name.
	Label string
}

// ExportResult describes a written archive.
type ExportResult struct {
	Archive     string            `json:"archive" yaml:"archive"`
	SHA256      string            `json:"sha256" yaml:"sha256"`
	Size        int64             `json:"size" yaml:"size"`
	StoreMethod stage.StoreMethod `json:"store-method" yaml:"store-method"`
	RawFiles    int               `json:"raw-files" yaml:"raw-files"`
	Members     []string          `json:"members" yaml:"members"`
	Manifest    Manifest          `json:"manifest" yaml:"manifest"`
}

// Export snapshots the index and raw tree into a new archive in the
// output directory.
func (e *Exporter) Export(ctx context.Context, args ExportArgs) (_ *ExportResult, err error) {
	started := e.clock.Now()
	var size int64
	defer func() {
		e.report(started, err == nil, size)
	}()

	stageRoot, err := os.MkdirTemp("", "ragbundle-stage-")
	if err != nil {
		return nil, errors.Annotate(err, "creating staging directory")
	}
	defer func() {
		if err := os.RemoveAll(stageRoot); err != nil {
			logger.Warningf("cannot remove staging directory %q: %v", stageRoot, err)
		}
	}()

	staged, err := e.stager.Stage(ctx, stageRoot)
	if err != nil {
		return nil, errors.Annotate(err, "staging")
	}

	metaPath := filepath.Join(stageRoot, filepath.FromSlash(stage.IndexRoot), e.cfg.MetaFile())
	manifest := NewManifest(ManifestParams{
		App:           e.cfg.AppPrefix(),
		ConsumerModel: e.cfg.ConsumerModel(),
		EmbedModel:    e.cfg.EmbedModel(),
	}, ReadIndexMeta(e.fs, metaPath), started)
	if err := WriteManifest(e.fs, stageRoot, manifest); err != nil {
		return nil, errors.Annotate(err, "building manifest")
	}

	archivePath := filepath.Join(e.cfg.OutputDir(), archive.Name(e.cfg.AppPrefix(), args.Label, started))
	written, err := archive.Write(stageRoot, archivePath)
	if err != nil {
		return nil, errors.Annotatef(err, "writing archive %q", archivePath)
	}
	size = written.Size
	logger.Infof("exported %s (%d bytes, store %s)", written.Path, written.Size, staged.StoreMethod)

	return &ExportResult{
		Archive:     written.Path,
		SHA256:      written.SHA256,
		Size:        written.Size,
		StoreMethod: staged.StoreMethod,
		RawFiles:    staged.RawFiles,
		Members:     written.Members,
		Manifest:    manifest,
	}, nil
}

func (e *Exporter) report(started time.Time, ok bool, size int64) {
	writeReport(e.cfg, RunReport{
		Operation:   OperationExport,
		Started:     started,
		Finished:    e.clock.Now(),
		Success:     ok,
		ArchiveSize: size,
	})
}

func writeReport(cfg *config.Config, r RunReport) {
	path := cfg.MetricsFile()
	if path == "" {
		return
	}
	if err := WriteMetrics(path, r); err != nil {
		logger.Warningf("cannot record %s metrics: %v", r.Operation, err)
	}
}
