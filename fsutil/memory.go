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
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/chronicleprotocol/go-vfs/uri"
)

// MemoryFS is an in-memory file system backed by go-billy's memfs. It is
// safe for concurrent use.
type MemoryFS struct {
	bfs billy.Filesystem
}

// NewMemoryFS creates an empty in-memory file system.
func NewMemoryFS() *MemoryFS {
	return &MemoryFS{bfs: memfs.New()}
}

// Unwrap returns the underlying billy.Filesystem.
func (m *MemoryFS) Unwrap() billy.Filesystem {
	return m.bfs
}

// WriteFile creates or replaces the named file, creating parent
// directories as needed.
func (m *MemoryFS) WriteFile(name string, data []byte) error {
	name = normalize(name)
	if dir := path.Dir(name); dir != "." {
		if err := m.bfs.MkdirAll(dir, 0o755); err != nil {
			return errMemoryFSFn(err)
		}
	}
	if err := util.WriteFile(m.bfs, name, data, 0o644); err != nil {
		return errMemoryFSFn(err)
	}
	return nil
}

// Open implements the fs.FS interface. The returned file implements
// io.Seeker.
func (m *MemoryFS) Open(name string) (fs.File, error) {
	if err := validPath("open", name); err != nil {
		return nil, errMemoryFSFn(err)
	}
	info, err := m.bfs.Stat(normalize(name))
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	if info.IsDir() {
		return nil, &fs.PathError{Op: "open", Path: name, Err: errMemoryFSIsDir}
	}
	f, err := m.bfs.Open(normalize(name))
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &memoryFile{File: f, info: info}, nil
}

// Stat implements the fs.StatFS interface.
func (m *MemoryFS) Stat(name string) (fs.FileInfo, error) {
	if err := validPath("stat", name); err != nil {
		return nil, errMemoryFSFn(err)
	}
	return m.bfs.Stat(normalize(name))
}

type memoryFile struct {
	billy.File
	info os.FileInfo
}

func (f *memoryFile) Stat() (fs.FileInfo, error) { return f.info, nil }

// NewMemoryProto creates a protocol that serves every URL from m. The host
// of the URL is ignored.
func NewMemoryProto(m *MemoryFS) Protocol {
	return &memoryProto{fs: m}
}

type memoryProto struct {
	fs *MemoryFS
}

// FileSystem implements the Protocol interface.
func (p *memoryProto) FileSystem(u uri.URL) (fs fs.FS, path string, err error) {
	if !u.IsValid() {
		return nil, "", errInvalidURLFn("fsutil.memoryProto", u)
	}
	return p.fs, uriPath(u, false), nil
}

func normalize(name string) string {
	return filepath.ToSlash(filepath.Clean(name))
}

var errMemoryFSIsDir = errors.New("is a directory")

func errMemoryFSFn(err error) error {
	return fmt.Errorf("fsutil.memoryFS: %w", err)
}
