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
	"math/rand/v2"

	"github.com/chronicleprotocol/go-vfs/errutil"
	"github.com/chronicleprotocol/go-vfs/uri"
)

type ChainFSOption func(*chainFS)

// WithChainFilesystems appends file systems to the chain.
func WithChainFilesystems(fs ...fs.FS) ChainFSOption {
	return func(c *chainFS) {
		c.fs = append(c.fs, fs...)
	}
}

// WithChainRandOrder makes the chain try its file systems in random order.
func WithChainRandOrder() ChainFSOption {
	return func(c *chainFS) {
		c.rand = true
	}
}

// NewChainProto creates a protocol that serves every URL from a chain file
// system.
func NewChainProto(opts ...ChainFSOption) Protocol {
	return &chainProto{opts: opts}
}

type chainProto struct {
	opts []ChainFSOption
}

// FileSystem implements the Protocol interface.
func (c *chainProto) FileSystem(u uri.URL) (fs fs.FS, path string, err error) {
	if !u.IsValid() {
		return nil, "", errInvalidURLFn("fsutil.chainProto", u)
	}
	return NewChainFS(c.opts...), uriPath(u, true), nil
}

// NewChainFS creates a file system that tries each of its file systems in
// turn and returns the first successful result. If all of them fail, the
// errors are combined.
func NewChainFS(opts ...ChainFSOption) fs.FS {
	f := &chainFS{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type chainFS struct {
	fs   []fs.FS
	rand bool
}

// Open implements the fs.FS interface.
func (c *chainFS) Open(name string) (fs.File, error) {
	return c.OpenRange(name, 0, 0)
}

// OpenRange implements the RangeFS interface.
func (c *chainFS) OpenRange(name string, offset, length int64) (fs.File, error) {
	if len(c.fs) == 0 {
		return nil, errChainFSFn(errChainFSEmpty)
	}
	var err error
	for _, i := range c.order() {
		f, fErr := openRange(c.fs[i], name, offset, length)
		if fErr == nil {
			return f, nil
		}
		err = errutil.Append(err, fErr)
	}
	return nil, errChainFSFn(err)
}

// Stat implements the fs.StatFS interface.
func (c *chainFS) Stat(name string) (fs.FileInfo, error) {
	if len(c.fs) == 0 {
		return nil, errChainFSFn(errChainFSEmpty)
	}
	var err error
	for _, i := range c.order() {
		f, fErr := fs.Stat(c.fs[i], name)
		if fErr == nil {
			return f, nil
		}
		err = errutil.Append(err, fErr)
	}
	return nil, errChainFSFn(err)
}

func (c *chainFS) order() []int {
	if c.rand {
		return rand.Perm(len(c.fs))
	}
	i := make([]int, len(c.fs))
	for n := range c.fs {
		i[n] = n
	}
	return i
}

var errChainFSEmpty = errors.New("no file systems")

func errChainFSFn(err error) error {
	return fmt.Errorf("fsutil.chainFS: %w", err)
}
