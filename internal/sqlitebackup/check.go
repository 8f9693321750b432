// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlitebackup

import (
	"context"
	"database/sql"
	"strings"

	"github.com/juju/errors"
	"github.com/mattn/go-sqlite3"
)

// IntegrityFailure is returned by Check when SQLite reports problems.
const IntegrityFailure = errors.ConstError("integrity check failed")

// Check runs PRAGMA quick_check against the database at path without
// modifying it.
func Check(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite3", readOnlyDSN(path, DefaultConnectTimeout))
	if err != nil {
		return errors.Trace(err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "PRAGMA quick_check")
	if err != nil {
		return errors.Annotatef(err, "checking %q", path)
	}
	defer rows.Close()

	var problems []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return errors.Trace(err)
		}
		if line != "ok" {
			problems = append(problems, line)
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Annotatef(err, "checking %q", path)
	}
	if len(problems) > 0 {
		return errors.Annotatef(IntegrityFailure, "%q: %s", path, strings.Join(problems, "; "))
	}
	return nil
}

// IsBusy reports whether err means the database was busy or locked by
// another connection.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	var errNo sqlite3.ErrNo
	if errors.As(err, &errNo) {
		return errNo == sqlite3.ErrBusy || errNo == sqlite3.ErrLocked
	}

	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "database is busy")
}
