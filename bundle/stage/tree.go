// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package stage

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/spf13/afero"
)

// Entry describes one member of a tree.
type Entry struct {
	// Path is slash separated and relative to the tree root.
	Path    string
	Dir     bool
	Size    int64
	Mode    fs.FileMode
	ModTime time.Time
}

func (e Entry) sameContent(other Entry) bool {
	return e.Dir == other.Dir &&
		e.Size == other.Size &&
		e.Mode.Perm() == other.Mode.Perm() &&
		e.ModTime.Equal(other.ModTime)
}

// Tree is the set of entries below a root, keyed by relative path.
type Tree map[string]Entry

// Paths returns the member paths in lexical order.
func (t Tree) Paths() []string {
	paths := make([]string, 0, len(t))
	for p := range t {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// ValidRelPath returns an error unless name is a relative, slash
// separated path that stays below its root.
func ValidRelPath(name string) error {
	switch {
	case name == "":
		return errors.NotValidf("empty path")
	case strings.Contains(name, `\`):
		return errors.NotValidf("path %q with backslash", name)
	case path.IsAbs(name) || filepath.IsAbs(name) || filepath.VolumeName(name) != "":
		return errors.NotValidf("absolute path %q", name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return errors.NotValidf("path %q escaping its root", name)
		}
	}
	return nil
}

// ScanTree lists every directory and regular file below root, following
// symbolic links, including a linked root. A missing root yields an empty
// tree. Dangling links, link cycles and members that are neither files nor
// directories are errors naming the member.
func ScanTree(fsys afero.Fs, root string) (Tree, error) {
	tree := make(Tree)
	info, err := fsys.Stat(root)
	if os.IsNotExist(err) {
		return tree, nil
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	if !info.IsDir() {
		return nil, errors.NotValidf("tree root %q (not a directory)", root)
	}
	ancestors := set.NewStrings(realPath(fsys, root))
	if err := scanDir(fsys, root, "", ancestors, tree); err != nil {
		return nil, errors.Annotatef(err, "scanning %q", root)
	}
	return tree, nil
}

func scanDir(fsys afero.Fs, dir, rel string, ancestors set.Strings, tree Tree) error {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return errors.Trace(err)
	}
	for _, info := range entries {
		p := filepath.Join(dir, info.Name())
		member := path.Join(rel, info.Name())
		if err := ValidRelPath(member); err != nil {
			return errors.Trace(err)
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			if info, err = fsys.Stat(p); err != nil {
				return errors.Annotatef(err, "following link %q", p)
			}
		}
		switch {
		case info.IsDir():
			resolved := realPath(fsys, p)
			if ancestors.Contains(resolved) {
				return errors.NotValidf("link cycle at %q", p)
			}
			tree[member] = newEntry(member, info)
			ancestors.Add(resolved)
			err := scanDir(fsys, p, member, ancestors, tree)
			ancestors.Remove(resolved)
			if err != nil {
				return errors.Trace(err)
			}
		case info.Mode().IsRegular():
			tree[member] = newEntry(member, info)
		default:
			return errors.NotSupportedf("member %q of type %v", p, info.Mode().Type())
		}
	}
	return nil
}

func newEntry(rel string, info fs.FileInfo) Entry {
	return Entry{
		Path:    rel,
		Dir:     info.IsDir(),
		Size:    info.Size(),
		Mode:    info.Mode(),
		ModTime: info.ModTime(),
	}
}

// realPath identifies a directory for cycle detection. Only the OS
// filesystem has links to resolve.
func realPath(fsys afero.Fs, p string) string {
	if _, ok := fsys.(*afero.OsFs); ok {
		if resolved, err := filepath.EvalSymlinks(p); err == nil {
			return resolved
		}
	}
	return filepath.Clean(p)
}
