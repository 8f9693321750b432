// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package stage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/juju/errors"
	"github.com/spf13/afero"
)

// OpKind identifies what an Op does to the destination.
type OpKind int

const (
	OpRemove OpKind = iota
	OpMkdir
	OpCopy
)

func (k OpKind) String() string {
	switch k {
	case OpRemove:
		return "remove"
	case OpMkdir:
		return "mkdir"
	case OpCopy:
		return "copy"
	}
	return fmt.Sprintf("op(%d)", int(k))
}

// Op is a single step of a mirror plan.
type Op struct {
	Kind OpKind
	// Entry is the source entry for mkdir and copy, the destination
	// entry for remove.
	Entry Entry
}

func (op Op) String() string {
	return op.Kind.String() + " " + op.Entry.Path
}

// Plan is an ordered list of operations: removals deepest first, then
// directories parents first, then file copies.
type Plan []Op

// PlanMirror computes the operations that make dst identical to src.
// Files are copied when missing or when their size, mode or mtime
// differ. Members of dst absent from src are removed, as is anything
// whose type differs between the trees.
func PlanMirror(src, dst Tree) Plan {
	var removes, mkdirs, copies []Op

	for _, p := range dst.Paths() {
		d := dst[p]
		s, ok := src[p]
		if !ok || s.Dir != d.Dir {
			removes = append(removes, Op{Kind: OpRemove, Entry: d})
		}
	}
	for _, p := range src.Paths() {
		s := src[p]
		d, ok := dst[p]
		switch {
		case s.Dir && (!ok || !d.Dir):
			mkdirs = append(mkdirs, Op{Kind: OpMkdir, Entry: s})
		case !s.Dir && (!ok || !s.sameContent(d)):
			copies = append(copies, Op{Kind: OpCopy, Entry: s})
		}
	}

	sort.SliceStable(removes, func(i, j int) bool {
		di, dj := depth(removes[i].Entry.Path), depth(removes[j].Entry.Path)
		if di != dj {
			return di > dj
		}
		return removes[i].Entry.Path < removes[j].Entry.Path
	})

	plan := make(Plan, 0, len(removes)+len(mkdirs)+len(copies))
	plan = append(plan, removes...)
	plan = append(plan, mkdirs...)
	return append(plan, copies...)
}

func depth(p string) int {
	return strings.Count(p, "/")
}

// Empty reports whether the plan has nothing to do.
func (p Plan) Empty() bool {
	return len(p) == 0
}

// Apply executes the plan, reading from srcRoot and writing below
// dstRoot, which is created if needed.
func (p Plan) Apply(fsys afero.Fs, srcRoot, dstRoot string) error {
	if err := fsys.MkdirAll(dstRoot, 0755); err != nil {
		return errors.Trace(err)
	}
	for _, op := range p {
		if err := ValidRelPath(op.Entry.Path); err != nil {
			return errors.Trace(err)
		}
		rel := filepath.FromSlash(op.Entry.Path)
		dst := filepath.Join(dstRoot, rel)
		var err error
		switch op.Kind {
		case OpRemove:
			err = fsys.RemoveAll(dst)
		case OpMkdir:
			err = fsys.MkdirAll(dst, op.Entry.Mode.Perm()|0700)
		case OpCopy:
			err = CopyFile(fsys, filepath.Join(srcRoot, rel), dst)
		default:
			err = errors.NotSupportedf("plan operation %v", op.Kind)
		}
		if err != nil {
			return errors.Annotatef(err, "%s", op)
		}
	}
	return nil
}

// CopyFile copies a regular file, preserving its permission bits and
// modification time. An existing destination is replaced.
func CopyFile(fsys afero.Fs, src, dst string) error {
	in, err := fsys.Open(src)
	if err != nil {
		return errors.Trace(err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return errors.Trace(err)
	}
	if !info.Mode().IsRegular() {
		return errors.NotValidf("copy source %q (not a regular file)", src)
	}

	out, err := fsys.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return errors.Trace(err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return errors.Annotatef(err, "copying %q", src)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return errors.Trace(err)
	}
	if err := out.Close(); err != nil {
		return errors.Trace(err)
	}
	if err := fsys.Chmod(dst, info.Mode().Perm()); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(fsys.Chtimes(dst, info.ModTime(), info.ModTime()))
}
