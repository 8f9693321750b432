// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package sqlitebackup copies a live SQLite database through the online
// backup API, so a consistent snapshot can be taken while another process
// holds the database open.
package sqlitebackup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/retry"
	"github.com/mattn/go-sqlite3"
)

var logger = loggo.GetLogger("ragbundle.sqlitebackup")

const (
	// DefaultConnectTimeout is the busy timeout applied when opening the
	// source database.
	DefaultConnectTimeout = 15 * time.Second

	// DefaultTimeout bounds the whole copy.
	DefaultTimeout = 60 * time.Second

	// DefaultStepPages is the number of pages copied per backup step.
	DefaultStepPages = 256

	// DefaultRetryDelay is how long to wait after a step made no progress.
	DefaultRetryDelay = 100 * time.Millisecond

	partialSuffix = ".partial"
)

// Options tunes a backup run. Zero values select the defaults.
type Options struct {
	ConnectTimeout time.Duration
	Timeout        time.Duration
	StepPages      int
	RetryDelay     time.Duration
	Clock          clock.Clock
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.StepPages == 0 {
		o.StepPages = DefaultStepPages
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.Clock == nil {
		o.Clock = clock.WallClock
	}
	return o
}

// Backup copies the database at src into dest. The copy is assembled in
// dest.partial and only renamed to dest once it passes a quick check, so
// dest never holds a torn database. On failure nothing is left behind.
//
// A source held busy by another process is retried every RetryDelay, both
// while connecting and while stepping, until Timeout elapses; the error then
// satisfies errors.Is(err, context.DeadlineExceeded).
func Backup(ctx context.Context, src, dest string, opts Options) (err error) {
	opts = opts.withDefaults()
	if _, err := os.Stat(src); err != nil {
		return errors.Annotatef(err, "source database %q", src)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	partial := dest + partialSuffix
	removeDatabase(partial)
	defer func() {
		if err != nil {
			removeDatabase(partial)
		}
	}()

	logger.Debugf("online backup of %q into %q", src, partial)
	if err := copyOnline(ctx, src, partial, opts); err != nil {
		return errors.Annotatef(err, "backing up %q", src)
	}
	if err := Check(ctx, partial); err != nil {
		return errors.Annotatef(err, "verifying backup of %q", src)
	}
	// The journal companions of the partial file must not be renamed
	// alongside it: the backup handle is finished and the file is
	// self-contained.
	removeCompanions(partial)
	if err := os.Rename(partial, dest); err != nil {
		return errors.Annotatef(err, "moving backup into %q", dest)
	}
	return nil
}

func copyOnline(ctx context.Context, src, dest string, opts Options) error {
	srcDB, err := sql.Open("sqlite3", readOnlyDSN(src, opts.ConnectTimeout))
	if err != nil {
		return errors.Trace(err)
	}
	defer srcDB.Close()

	destDB, err := sql.Open("sqlite3", dest)
	if err != nil {
		return errors.Trace(err)
	}
	defer destDB.Close()

	srcConn, err := connectSource(ctx, srcDB, opts)
	if err != nil {
		return errors.Annotate(err, "connecting to source")
	}
	defer srcConn.Close()

	destConn, err := destDB.Conn(ctx)
	if err != nil {
		return errors.Annotate(err, "connecting to destination")
	}
	defer destConn.Close()

	return destConn.Raw(func(destRaw any) error {
		return srcConn.Raw(func(srcRaw any) error {
			d, ok := destRaw.(*sqlite3.SQLiteConn)
			if !ok {
				return errors.Errorf("unexpected destination driver connection %T", destRaw)
			}
			s, ok := srcRaw.(*sqlite3.SQLiteConn)
			if !ok {
				return errors.Errorf("unexpected source driver connection %T", srcRaw)
			}
			return runSteps(ctx, d, s, opts)
		})
	})
}

// connectSource opens a connection to the source, retrying while another
// process keeps it busy. Giving up because of the overall timeout reports
// context.DeadlineExceeded.
func connectSource(ctx context.Context, db *sql.DB, opts Options) (*sql.Conn, error) {
	var conn *sql.Conn
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			var err error
			conn, err = db.Conn(ctx)
			return err
		},
		IsFatalError: func(err error) bool {
			return !IsBusy(err)
		},
		NotifyFunc: func(lastError error, attempt int) {
			logger.Tracef("source busy on connect attempt %d: %v", attempt, lastError)
		},
		Delay:       opts.RetryDelay,
		MaxDuration: opts.Timeout,
		Clock:       opts.Clock,
		Stop:        ctx.Done(),
	})
	if retry.IsRetryStopped(err) || retry.IsDurationExceeded(err) {
		cause := ctx.Err()
		if cause == nil {
			cause = context.DeadlineExceeded
		}
		return nil, errors.Annotatef(cause, "source stayed busy (%v)", retry.LastError(err))
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	return conn, nil
}

func runSteps(ctx context.Context, dest, src *sqlite3.SQLiteConn, opts Options) (err error) {
	bk, err := dest.Backup("main", src, "main")
	if err != nil {
		return errors.Annotate(err, "starting backup")
	}
	defer func() {
		if finishErr := bk.Finish(); finishErr != nil && err == nil {
			err = errors.Annotate(finishErr, "finishing backup")
		}
	}()

	remaining := -1
	for {
		// A busy or locked source reports no progress rather than an error.
		done, err := bk.Step(opts.StepPages)
		if err != nil {
			if !IsBusy(err) {
				return errors.Annotate(err, "backup step")
			}
		}
		if done {
			logger.Debugf("backup complete, %d pages", bk.PageCount())
			return nil
		}

		now := bk.Remaining()
		progressed := err == nil && now != remaining
		remaining = now
		if progressed {
			if err := ctx.Err(); err != nil {
				return errors.Trace(err)
			}
			continue
		}

		logger.Tracef("backup step made no progress, %d pages remaining", now)
		select {
		case <-ctx.Done():
			return errors.Annotatef(ctx.Err(), "source stayed busy with %d pages remaining", now)
		case <-opts.Clock.After(opts.RetryDelay):
		}
	}
}

var uriEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

// readOnlyDSN builds a SQLite URI filename opening path read-only.
func readOnlyDSN(path string, busyTimeout time.Duration) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	path = filepath.ToSlash(path)
	if !strings.HasPrefix(path, "/") {
		// Windows drive letters.
		path = "/" + path
	}
	return fmt.Sprintf("file:%s?mode=ro&_busy_timeout=%d",
		uriEscaper.Replace(path), busyTimeout.Milliseconds())
}

var companionSuffixes = []string{"-journal", "-wal", "-shm"}

func removeCompanions(path string) {
	for _, suffix := range companionSuffixes {
		_ = os.Remove(path + suffix)
	}
}

func removeDatabase(path string) {
	_ = os.Remove(path)
	removeCompanions(path)
}
