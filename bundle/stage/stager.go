// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package stage assembles a consistent copy of the live index and raw
// document trees into a staging directory ready to be archived.
package stage

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/retry"
	"github.com/spf13/afero"

	bundleerrors "github.com/manuals-rag/ragbundle/bundle/errors"
	"github.com/manuals-rag/ragbundle/internal/lockprobe"
	"github.com/manuals-rag/ragbundle/internal/sqlitebackup"
)

var logger = loggo.GetLogger("ragbundle.stage")

const (
	// IndexRoot and RawRoot are the logical roots of the two data trees,
	// relative to a staging or extraction root.
	IndexRoot = "data/index"
	RawRoot   = "data/raw"

	// DefaultLockWait is how long a locked chunk store is polled before
	// falling back to an online backup.
	DefaultLockWait = 2 * time.Second

	lockPollInterval = 200 * time.Millisecond
)

// StoreMethod records how the chunk store made it into the stage.
type StoreMethod string

const (
	StoreCopied       StoreMethod = "copy"
	StoreOnlineBackup StoreMethod = "online-backup"
)

// BackupFunc matches sqlitebackup.Backup.
type BackupFunc func(ctx context.Context, src, dest string, opts sqlitebackup.Options) error

// Config holds the locations and timings a Stager needs.
type Config struct {
	// IndexDir holds the vector index, chunk store and index metadata.
	IndexDir string
	// RawDir holds the converted documents.
	RawDir string

	IndexFile string
	StoreFile string
	MetaFile  string

	LockWait time.Duration
	Backup   sqlitebackup.Options

	// Optional collaborators; defaults are used when nil.
	FS           afero.Fs
	Clock        clock.Clock
	Probe        lockprobe.ProbeFunc
	OnlineBackup BackupFunc
}

// Validate checks the configuration for missing values.
func (c Config) Validate() error {
	if c.IndexDir == "" {
		return errors.NotValidf("empty IndexDir")
	}
	if c.RawDir == "" {
		return errors.NotValidf("empty RawDir")
	}
	if c.IndexFile == "" || c.StoreFile == "" {
		return errors.NotValidf("empty index or store file name")
	}
	return nil
}

// Result describes what was staged.
type Result struct {
	StoreMethod StoreMethod
	// Members lists the staged index members, slash separated and
	// relative to the staging root.
	Members []string
	// RawFiles counts the regular files mirrored from the raw tree.
	RawFiles int
}

// Stager copies live data into a staging root.
type Stager struct {
	cfg Config
}

// NewStager returns a Stager, filling in default collaborators.
func NewStager(cfg Config) (*Stager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.FS == nil {
		cfg.FS = afero.NewOsFs()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Probe == nil {
		cfg.Probe = lockprobe.Probe
	}
	if cfg.OnlineBackup == nil {
		cfg.OnlineBackup = sqlitebackup.Backup
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = DefaultLockWait
	}
	return &Stager{cfg: cfg}, nil
}

// Stage fills root with data/index and data/raw. The required index and
// store files must exist; a missing raw tree stages as an empty one.
func (s *Stager) Stage(ctx context.Context, root string) (Result, error) {
	var result Result
	fsys := s.cfg.FS

	indexPath := filepath.Join(s.cfg.IndexDir, s.cfg.IndexFile)
	storePath := filepath.Join(s.cfg.IndexDir, s.cfg.StoreFile)
	for _, required := range []string{indexPath, storePath} {
		if _, err := fsys.Stat(required); os.IsNotExist(err) {
			return result, errors.Annotatef(bundleerrors.MissingPrerequisite, "%q", required)
		} else if err != nil {
			return result, errors.Trace(err)
		}
	}

	indexDst := filepath.Join(root, filepath.FromSlash(IndexRoot))
	rawDst := filepath.Join(root, filepath.FromSlash(RawRoot))
	for _, dir := range []string{indexDst, rawDst} {
		if err := fsys.MkdirAll(dir, 0755); err != nil {
			return result, errors.Trace(err)
		}
	}

	n, err := s.mirrorRaw(rawDst)
	if err != nil {
		return result, errors.Annotatef(err, "staging %q", s.cfg.RawDir)
	}
	result.RawFiles = n

	if err := CopyFile(fsys, indexPath, filepath.Join(indexDst, s.cfg.IndexFile)); err != nil {
		return result, errors.Annotatef(err, "staging %q", indexPath)
	}
	result.Members = append(result.Members, path.Join(IndexRoot, s.cfg.IndexFile))

	if s.cfg.MetaFile != "" {
		metaPath := filepath.Join(s.cfg.IndexDir, s.cfg.MetaFile)
		if _, err := fsys.Stat(metaPath); err == nil {
			if err := CopyFile(fsys, metaPath, filepath.Join(indexDst, s.cfg.MetaFile)); err != nil {
				return result, errors.Annotatef(err, "staging %q", metaPath)
			}
			result.Members = append(result.Members, path.Join(IndexRoot, s.cfg.MetaFile))
		} else {
			logger.Debugf("no index metadata at %q", metaPath)
		}
	}

	method, members, err := s.stageStore(ctx, storePath, indexDst)
	if err != nil {
		return result, errors.Trace(err)
	}
	result.StoreMethod = method
	result.Members = append(result.Members, members...)
	return result, nil
}

func (s *Stager) mirrorRaw(dst string) (int, error) {
	src, err := ScanTree(s.cfg.FS, s.cfg.RawDir)
	if err != nil {
		return 0, errors.Trace(err)
	}
	existing, err := ScanTree(s.cfg.FS, dst)
	if err != nil {
		return 0, errors.Trace(err)
	}
	plan := PlanMirror(src, existing)
	logger.Debugf("mirroring %q: %d operations", s.cfg.RawDir, len(plan))
	if err := plan.Apply(s.cfg.FS, s.cfg.RawDir, dst); err != nil {
		return 0, errors.Trace(err)
	}
	files := 0
	for _, e := range src {
		if !e.Dir {
			files++
		}
	}
	return files, nil
}

var errStillLocked = errors.ConstError("chunk store still locked")

// stageStore copies the chunk store directly once it is free, or takes an
// online backup when the lock does not clear within the lock wait.
func (s *Stager) stageStore(ctx context.Context, storePath, indexDst string) (StoreMethod, []string, error) {
	dst := filepath.Join(indexDst, s.cfg.StoreFile)

	if s.waitForUnlock(ctx, storePath) {
		members := []string{path.Join(IndexRoot, s.cfg.StoreFile)}
		if err := CopyFile(s.cfg.FS, storePath, dst); err != nil {
			return "", nil, errors.Annotatef(err, "staging %q", storePath)
		}
		for _, suffix := range []string{"-wal", "-shm"} {
			companion := storePath + suffix
			if _, err := s.cfg.FS.Stat(companion); err != nil {
				continue
			}
			if err := CopyFile(s.cfg.FS, companion, dst+suffix); err != nil {
				return "", nil, errors.Annotatef(err, "staging %q", companion)
			}
			members = append(members, path.Join(IndexRoot, s.cfg.StoreFile+suffix))
		}
		return StoreCopied, members, nil
	}

	if err := ctx.Err(); err != nil {
		return "", nil, errors.Trace(err)
	}
	logger.Infof("%q still locked after %v, taking an online backup", storePath, s.cfg.LockWait)
	if err := s.cfg.OnlineBackup(ctx, storePath, dst, s.cfg.Backup); err != nil {
		return "", nil, errors.Annotatef(bundleerrors.LockTimeout, "%q: %v", storePath, err)
	}
	return StoreOnlineBackup, []string{path.Join(IndexRoot, s.cfg.StoreFile)}, nil
}

// waitForUnlock polls the lock state of storePath until it reads free or the
// lock wait expires. A probe error counts as locked.
func (s *Stager) waitForUnlock(ctx context.Context, storePath string) bool {
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			state, err := s.cfg.Probe(storePath)
			if err != nil {
				logger.Warningf("probing %q: %v; treating as locked", storePath, err)
				return errStillLocked
			}
			if state != lockprobe.Free {
				return errStillLocked
			}
			return nil
		},
		NotifyFunc: func(lastError error, attempt int) {
			if attempt == 1 {
				logger.Infof("%q is locked, waiting up to %v", storePath, s.cfg.LockWait)
			}
		},
		Delay:       lockPollInterval,
		MaxDuration: s.cfg.LockWait,
		Clock:       s.cfg.Clock,
		Stop:        ctx.Done(),
	})
	return err == nil
}
