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
	"fmt"
	"io/fs"
	"os"

	"github.com/chronicleprotocol/go-vfs/uri"
)

type FileOption func(*fileProto)

// WithFileRoot sets the directory that file URLs are resolved against.
// The default is "/".
func WithFileRoot(root string) FileOption {
	return func(f *fileProto) {
		f.root = root
	}
}

// NewFileProto creates a new file protocol that uses the local filesystem.
// The host must be empty or "localhost".
func NewFileProto(opts ...FileOption) Protocol {
	f := &fileProto{}
	for _, opt := range opts {
		opt(f)
	}
	if f.root == "" {
		f.root = "/"
	}
	return f
}

type fileProto struct {
	root string
}

// FileSystem implements the Protocol interface.
func (m *fileProto) FileSystem(u uri.URL) (fs fs.FS, path string, err error) {
	if !u.IsValid() {
		return nil, "", errInvalidURLFn("fsutil.fileProto", u)
	}
	if u.Host() != "" && u.Host() != "localhost" {
		return nil, "", errFileUnexpectedHostFn(u.Host())
	}
	return os.DirFS(m.root), uriPath(u, false), nil
}

func errFileUnexpectedHostFn(host string) error {
	return fmt.Errorf("fsutil.fileProto: unexpected host: %s, must be empty or 'localhost'", host)
}
