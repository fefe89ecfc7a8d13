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
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"time"

	"github.com/chronicleprotocol/go-vfs/retry"
	"github.com/chronicleprotocol/go-vfs/uri"
)

// NewRetryProto wraps the file systems returned by proto with NewRetryFS.
func NewRetryProto(ctx context.Context, proto Protocol, attempts int, delay time.Duration) Protocol {
	return &retryProto{ctx: ctx, proto: proto, attempts: attempts, delay: delay}
}

type retryProto struct {
	ctx      context.Context
	proto    Protocol
	attempts int
	delay    time.Duration
}

// FileSystem implements the Protocol interface.
func (m *retryProto) FileSystem(u uri.URL) (fs fs.FS, path string, err error) {
	fs, path, err = m.proto.FileSystem(u)
	if err != nil {
		return nil, "", errRetryProtoFn(err)
	}
	return NewRetryFS(m.ctx, fs, m.attempts, m.delay), path, nil
}

// NewRetryFS creates a file system that retries failed operations on fs.
// Errors reporting a missing file, a permission problem or an invalid path
// are not retried. The returned file system implements RangeFS.
func NewRetryFS(ctx context.Context, fs fs.FS, attempts int, delay time.Duration) fs.FS {
	return &retryFS{ctx: ctx, fs: fs, attempts: attempts, delay: delay}
}

type retryFS struct {
	ctx      context.Context
	fs       fs.FS
	attempts int
	delay    time.Duration
}

// Open implements the fs.FS interface.
func (r *retryFS) Open(name string) (fs.File, error) {
	return retry.Do1(r.ctx, r.attempts, r.delay, func(context.Context) (fs.File, error) {
		f, err := r.fs.Open(name)
		return f, retryable(err)
	})
}

// OpenRange implements the RangeFS interface.
func (r *retryFS) OpenRange(name string, offset, length int64) (fs.File, error) {
	return retry.Do1(r.ctx, r.attempts, r.delay, func(context.Context) (fs.File, error) {
		f, err := openRange(r.fs, name, offset, length)
		return f, retryable(err)
	})
}

// Stat implements the fs.StatFS interface.
func (r *retryFS) Stat(name string) (fs.FileInfo, error) {
	return retry.Do1(r.ctx, r.attempts, r.delay, func(context.Context) (fs.FileInfo, error) {
		i, err := fs.Stat(r.fs, name)
		return i, retryable(err)
	})
}

// retryable wraps err and marks it as permanent if retrying it is
// pointless.
func retryable(err error) error {
	if err == nil {
		return nil
	}
	err = errRetryFSFn(err)
	if !isRetryable(err) {
		return retry.Permanent(err)
	}
	return err
}

func isRetryable(err error) bool {
	return !errors.Is(err, fs.ErrNotExist) &&
		!errors.Is(err, fs.ErrPermission) &&
		!errors.Is(err, path.ErrBadPattern) &&
		!isPathError(err)
}

func errRetryProtoFn(err error) error {
	return fmt.Errorf("fsutil.retryProto: %w", err)
}

func errRetryFSFn(err error) error {
	return fmt.Errorf("fsutil.retryFS: %w", err)
}
