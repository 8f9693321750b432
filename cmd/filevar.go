// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package cmd

// FileVar represents a path to a file given on the command line.
type FileVar struct {
	Path string
}

// Set stores the path.
func (f *FileVar) Set(v string) error {
	f.Path = v
	return nil
}

// String returns the path to the file.
func (f *FileVar) String() string {
	return f.Path
}

// AbsPath returns the path relative to the context, or "" when unset.
func (f *FileVar) AbsPath(ctx *Context) string {
	if f.Path == "" {
		return ""
	}
	return ctx.AbsPath(f.Path)
}
