// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package bundle

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/manuals-rag/ragbundle/bundle/archive"
	bundleerrors "github.com/manuals-rag/ragbundle/bundle/errors"
	"github.com/manuals-rag/ragbundle/bundle/stage"
	"github.com/manuals-rag/ragbundle/config"
	"github.com/manuals-rag/ragbundle/internal/sqlitebackup"
	"github.com/manuals-rag/ragbundle/service"
)

// ImportState is a step of an import.
type ImportState string

const (
	StateIdle            ImportState = "idle"
	StateResolveArchive  ImportState = "resolve-archive"
	StateServiceStopping ImportState = "service-stopping"
	StateExtracting      ImportState = "extracting"
	StateValidating      ImportState = "validating"
	StateSwapping        ImportState = "swapping"
	StateRestarting      ImportState = "restarting"
	StateDone            ImportState = "done"
)

// ServiceController stops and starts the service that reads the live data.
type ServiceController interface {
	Running() (service.Handle, error)
	Stop(ctx context.Context, h service.Handle) error
	Start(ctx context.Context) (string, error)
}

// beforeSwap runs once the unpacked tree is validated and the live roots
// are about to be replaced.
var beforeSwap = func() error { return nil }

// ImporterParams holds what an Importer needs.
type ImporterParams struct {
	Config  *config.Config
	Service ServiceController
	Clock   clock.Clock
}

// Importer restores archives over the live data.
type Importer struct {
	cfg     *config.Config
	service ServiceController
	clock   clock.Clock
}

// NewImporter returns an Importer for the configured data.
func NewImporter(p ImporterParams) (*Importer, error) {
	if p.Config == nil {
		return nil, errors.NotValidf("nil Config")
	}
	if p.Service == nil {
		return nil, errors.NotValidf("nil Service")
	}
	if p.Clock == nil {
		p.Clock = clock.WallClock
	}
	return &Importer{cfg: p.Config, service: p.Service, clock: p.Clock}, nil
}

// ImportArgs holds the per-run options of an import.
type ImportArgs struct {
	// Archive names the archive to restore; the newest archive in the
	// output directory is used when empty.
	Archive string
	// Autostart starts the service afterwards even if it was not
	// running before.
	Autostart bool
}

// ImportResult describes an import, including a failed one.
type ImportResult struct {
	State      ImportState `json:"state" yaml:"state"`
	Archive    string      `json:"archive" yaml:"archive"`
	SHA256     string      `json:"sha256,omitempty" yaml:"sha256,omitempty"`
	Size       int64       `json:"size" yaml:"size"`
	Manifest   *Manifest   `json:"manifest,omitempty" yaml:"manifest,omitempty"`
	Restored   []string    `json:"restored" yaml:"restored"`
	WasRunning bool        `json:"was-running" yaml:"was-running"`
	Endpoint   string      `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	StartError string      `json:"start-error,omitempty" yaml:"start-error,omitempty"`
}

// ResolveArchive returns the archive to import: explicit when given,
// otherwise the newest archive in outputDir.
func ResolveArchive(outputDir, explicit string) (string, error) {
	if explicit == "" {
		latest, err := archive.Latest(outputDir)
		return latest, errors.Trace(err)
	}
	archivePath, err := filepath.Abs(explicit)
	if err != nil {
		return "", errors.Trace(err)
	}
	info, err := os.Stat(archivePath)
	if os.IsNotExist(err) {
		return "", errors.Annotatef(bundleerrors.NoArchiveFound, "%q", archivePath)
	} else if err != nil {
		return "", errors.Trace(err)
	}
	if info.IsDir() {
		return "", errors.NotValidf("archive %q (a directory)", archivePath)
	}
	return archivePath, nil
}

// Import replaces the live index and raw roots with the contents of an
// archive. The result is returned even on failure and records the state
// the import reached. Nothing in the live roots changes unless the
// swapping state completes.
func (im *Importer) Import(ctx context.Context, args ImportArgs) (_ *ImportResult, err error) {
	result := &ImportResult{State: StateIdle}
	started := im.clock.Now()
	stopped := false
	defer func() {
		writeReport(im.cfg, RunReport{
			Operation:   OperationImport,
			Started:     started,
			Finished:    im.clock.Now(),
			Success:     err == nil,
			ArchiveSize: result.Size,
		})
	}()
	defer func() {
		if err == nil || !stopped || errors.Is(err, bundleerrors.PortStillOccupied) {
			return
		}
		logger.Warningf("import failed while %s; restarting the service", result.State)
		if _, serr := im.service.Start(context.WithoutCancel(ctx)); serr != nil {
			logger.Errorf("cannot restart service: %v", serr)
		}
	}()
	fail := func(err error) (*ImportResult, error) {
		return result, errors.Annotate(err, string(result.State))
	}

	result.State = StateResolveArchive
	archivePath, err := ResolveArchive(im.cfg.OutputDir(), args.Archive)
	if err != nil {
		return fail(err)
	}
	result.Archive = archivePath

	handle, err := im.service.Running()
	if err != nil {
		return fail(err)
	}
	result.WasRunning = handle.Running()
	if result.WasRunning {
		result.State = StateServiceStopping
		stopped = true
		logger.Infof("stopping service on %s (pids %v)", handle.Address, handle.PIDs)
		if err := im.service.Stop(ctx, handle); err != nil {
			return fail(err)
		}
	}

	result.State = StateExtracting
	ws, err := im.extract(archivePath, result)
	if err != nil {
		return fail(err)
	}
	defer func() {
		if err := ws.Close(); err != nil {
			logger.Warningf("cannot remove import workspace %q: %v", ws.RootDir, err)
		}
	}()

	result.State = StateValidating
	if result.Manifest, err = im.validate(ctx, ws); err != nil {
		return fail(err)
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if err := beforeSwap(); err != nil {
		return fail(err)
	}

	result.State = StateSwapping
	swaps := []rootSwap{
		{staged: ws.Path(stage.IndexRoot), live: im.cfg.IndexDir()},
		{staged: ws.Path(stage.RawRoot), live: im.cfg.RawDir()},
	}
	if err := swapRoots(swaps); err != nil {
		return fail(err)
	}
	for _, s := range swaps {
		result.Restored = append(result.Restored, s.live)
	}
	logger.Infof("restored %s from %s", im.cfg.DataDir(), archivePath)

	if result.WasRunning || args.Autostart {
		result.State = StateRestarting
		stopped = false
		endpoint, err := im.service.Start(ctx)
		if err != nil {
			logger.Errorf("data restored but the service did not start: %v", err)
			result.StartError = err.Error()
		}
		result.Endpoint = endpoint
	}
	result.State = StateDone
	return result, nil
}

// extract verifies the side-car, when there is one, and unpacks the
// archive next to the live roots.
func (im *Importer) extract(archivePath string, result *ImportResult) (*archive.Workspace, error) {
	digest, err := archive.Verify(archivePath)
	switch {
	case errors.Is(err, errors.NotFound):
		logger.Warningf("no checksum recorded for %q, not verifying", archivePath)
		if digest, result.Size, err = archive.Checksum(archivePath); err != nil {
			return nil, errors.Trace(err)
		}
	case err != nil:
		return nil, errors.Trace(err)
	default:
		if info, err := os.Stat(archivePath); err == nil {
			result.Size = info.Size()
		}
	}
	result.SHA256 = digest

	if err := os.MkdirAll(im.cfg.DataDir(), 0755); err != nil {
		return nil, errors.Trace(err)
	}
	ws, err := archive.NewWorkspace(im.cfg.DataDir(), archivePath)
	return ws, errors.Trace(err)
}

// validate checks the unpacked tree can serve as live data and detaches
// the manifest from it.
func (im *Importer) validate(ctx context.Context, ws *archive.Workspace) (*Manifest, error) {
	storeMember := path.Join(stage.IndexRoot, im.cfg.StoreFile())
	if err := ws.Validate(path.Join(stage.IndexRoot, im.cfg.IndexFile()), storeMember); err != nil {
		return nil, errors.Trace(err)
	}
	if err := sqlitebackup.Check(ctx, ws.Path(storeMember)); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Trace(ctx.Err())
		}
		return nil, errors.Annotatef(bundleerrors.ArchiveValidationFailure, "%s: %v", storeMember, err)
	}
	if err := os.MkdirAll(ws.Path(stage.RawRoot), 0755); err != nil {
		return nil, errors.Trace(err)
	}

	var manifest *Manifest
	var m Manifest
	switch err := ws.ReadJSON(ManifestFile, &m); {
	case errors.Is(err, errors.NotFound):
		logger.Warningf("archive %q has no manifest", ws.ArchivePath)
	case err != nil:
		return nil, errors.Annotatef(bundleerrors.ArchiveValidationFailure, "%v", err)
	default:
		manifest = &m
	}
	if err := ws.Remove(ManifestFile); err != nil {
		return nil, errors.Trace(err)
	}
	return manifest, nil
}
