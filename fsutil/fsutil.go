// Copyright (C) 2021-2025 Chronicle Labs, Inc.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package fsutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"path"
	"strings"
	"time"

	"github.com/chronicleprotocol/go-vfs/uri"
)

// Protocol defines a file system protocol. It provides a file system instance
// and a path within that file system for a given URL.
//
// The returned file system always points to the highest possible level
// directory.
type Protocol interface {
	FileSystem(u uri.URL) (fs fs.FS, path string, err error)
}

// RangeFS is implemented by file systems that can open a byte range of a
// file without transferring the preceding bytes. A length of zero means up
// to the end of the file.
type RangeFS interface {
	fs.FS
	OpenRange(name string, offset, length int64) (fs.File, error)
}

// NewFSProto creates a new file system protocol that uses the provided
// file system for every URL.
func NewFSProto(f fs.FS) Protocol {
	return &fsProto{fs: f}
}

type fsProto struct{ fs fs.FS }

// FileSystem implements the Protocol interface.
func (m *fsProto) FileSystem(u uri.URL) (fs fs.FS, path string, err error) {
	if !u.IsValid() {
		return nil, "", errInvalidURLFn("fsutil.fsProto", u)
	}
	return m.fs, uriPath(u, true), nil
}

// fileInfo implements the fs.FileInfo interface.
type fileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	isDir   bool
	sys     any
}

func (i *fileInfo) Name() string       { return i.name }
func (i *fileInfo) Size() int64        { return i.size }
func (i *fileInfo) Mode() fs.FileMode  { return i.mode }
func (i *fileInfo) ModTime() time.Time { return i.modTime }
func (i *fileInfo) IsDir() bool        { return i.isDir }
func (i *fileInfo) Sys() any           { return i.sys }

// file implements the fs.File interface.
type file struct {
	reader io.ReadCloser
	info   fs.FileInfo
}

func (f *file) Stat() (fs.FileInfo, error)       { return f.info, nil }
func (f *file) Read(p []byte) (n int, err error) { return f.reader.Read(p) }
func (f *file) Close() error                     { return f.reader.Close() }

// uriPath returns the path of u relative to the root of its file system,
// optionally followed by the query and fragment. An empty path is
// returned as ".".
func uriPath(u uri.URL, inclQueryAndFragment bool) string {
	p := strings.TrimPrefix(u.Path(), "/")
	if p == "" {
		p = "."
	}
	p = path.Clean(p)
	if inclQueryAndFragment {
		if u.Query() != "" {
			p += "?" + u.Query()
		}
		if u.Fragment() != "" {
			p += "#" + u.Fragment()
		}
	}
	return p
}

// splitQuery splits a file system path produced by uriPath into the path
// and the raw query.
func splitQuery(name string) (string, string) {
	if i := strings.IndexByte(name, '#'); i >= 0 {
		name = name[:i]
	}
	if i := strings.IndexByte(name, '?'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return name, ""
}

func isPathError(err error) bool {
	var e *fs.PathError
	return errors.As(err, &e)
}

// rangeEnd returns the index of the last byte of the range. It returns
// false if the range extends to the end of the file, either because length
// is zero or because the index would not fit in an int64.
func rangeEnd(offset, length int64) (int64, bool) {
	if length <= 0 || length > math.MaxInt64-offset {
		return 0, false
	}
	return offset + length - 1, true
}

func validPath(operation, path string) error {
	if !fs.ValidPath(path) {
		return errInvalidPathFn(operation, path)
	}
	return nil
}

func errInvalidPathFn(operation string, path string) error {
	return &fs.PathError{Op: operation, Path: path, Err: fs.ErrInvalid}
}

func errInvalidURLFn(op string, u uri.URL) error {
	return fmt.Errorf("%s: invalid URL: %q", op, u.Raw())
}

func errUnexpectedSchemeFn(op, scheme string) error {
	return fmt.Errorf("%s: unexpected scheme: %s", op, scheme)
}
