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
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/chronicleprotocol/go-vfs/errutil"
	"github.com/chronicleprotocol/go-vfs/ioproto"
	"github.com/chronicleprotocol/go-vfs/stream"
	"github.com/chronicleprotocol/go-vfs/uri"
)

// ProtoFunc creates the protocol served by a Filesystem. The context is
// cancelled when the Filesystem is closed.
type ProtoFunc func(ctx context.Context) (Protocol, error)

// Static returns a ProtoFunc that always returns p.
func Static(p Protocol) ProtoFunc {
	return func(context.Context) (Protocol, error) { return p, nil }
}

type FilesystemOption func(*Filesystem)

// WithWorkers sets the number of goroutines that serve requests. With zero
// workers, the default, requests are served synchronously by the handler
// call.
func WithWorkers(n int) FilesystemOption {
	return func(f *Filesystem) {
		f.workers = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) FilesystemOption {
	return func(f *Filesystem) {
		f.log = logger
	}
}

// Filesystem adapts a Protocol to the ioproto.Filesystem contract. It
// handles Get and GetRange messages by reading the addressed file and
// completing the message with an in-memory stream of its content.
//
// Errors are reported through the message status: fs.ErrNotExist becomes
// StatusNotFound, cancellation becomes StatusCancelled and everything else
// StatusFailed.
type Filesystem struct {
	name    string
	proto   Protocol
	log     *slog.Logger
	workers int

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	closed atomic.Bool

	mu    sync.Mutex
	queue []job
	wake  chan struct{}
}

type job struct {
	msg            ioproto.Message
	offset, length int64
}

// NewFilesystem creates a Filesystem named name that serves the protocol
// created by newProto.
func NewFilesystem(ctx context.Context, name string, newProto ProtoFunc, opts ...FilesystemOption) (*Filesystem, error) {
	f := &Filesystem{name: name, wake: make(chan struct{}, 1)}
	for _, opt := range opts {
		opt(f)
	}
	if f.log == nil {
		f.log = slog.New(slog.DiscardHandler)
	}
	if f.workers < 0 {
		return nil, errFilesystemFn(name, fmt.Errorf("invalid number of workers: %d", f.workers))
	}
	f.ctx, f.cancel = context.WithCancel(ctx)
	proto, err := newProto(f.ctx)
	if err != nil {
		f.cancel()
		return nil, errFilesystemFn(name, err)
	}
	f.proto = proto
	f.group, f.ctx = errgroup.WithContext(f.ctx)
	for range f.workers {
		f.group.Go(f.worker)
	}
	return f, nil
}

// Factory returns an ioproto.Factory that creates a new Filesystem on
// every call.
func Factory(ctx context.Context, name string, newProto ProtoFunc, opts ...FilesystemOption) ioproto.Factory {
	return func() (ioproto.Filesystem, error) {
		return NewFilesystem(ctx, name, newProto, opts...)
	}
}

// Name implements the ioproto.Filesystem interface.
func (f *Filesystem) Name() string {
	return f.name
}

// HandleGet implements the ioproto.GetHandler interface.
func (f *Filesystem) HandleGet(msg *ioproto.Get) {
	f.submit(job{msg: msg})
}

// HandleGetRange implements the ioproto.GetRangeHandler interface.
func (f *Filesystem) HandleGetRange(msg *ioproto.GetRange) {
	f.submit(job{msg: msg, offset: msg.Offset(), length: msg.Length()})
}

// Close cancels pending and running requests and waits for the workers to
// exit. Messages that were not served are completed with StatusCancelled.
func (f *Filesystem) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	f.cancel()
	err := f.group.Wait()
	f.mu.Lock()
	queue := f.queue
	f.queue = nil
	f.mu.Unlock()
	for _, j := range queue {
		f.complete(j.msg, nil, errFilesystemFn(f.name, context.Canceled))
	}
	return err
}

func (f *Filesystem) submit(j job) {
	if f.workers == 0 {
		if f.closed.Load() {
			f.complete(j.msg, nil, errFilesystemFn(f.name, errFilesystemClosed))
			return
		}
		f.handle(j)
		return
	}
	f.mu.Lock()
	if f.closed.Load() {
		f.mu.Unlock()
		f.complete(j.msg, nil, errFilesystemFn(f.name, errFilesystemClosed))
		return
	}
	f.queue = append(f.queue, j)
	f.mu.Unlock()
	f.signal()
}

func (f *Filesystem) signal() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *Filesystem) worker() error {
	for {
		j, ok := f.next()
		if !ok {
			return nil
		}
		f.handle(j)
	}
}

// next blocks until a job is queued or the context is cancelled.
func (f *Filesystem) next() (job, bool) {
	for {
		if f.ctx.Err() != nil {
			return job{}, false
		}
		f.mu.Lock()
		if len(f.queue) > 0 {
			j := f.queue[0]
			f.queue = f.queue[1:]
			more := len(f.queue) > 0
			f.mu.Unlock()
			if more {
				f.signal()
			}
			return j, true
		}
		f.mu.Unlock()
		select {
		case <-f.ctx.Done():
			return job{}, false
		case <-f.wake:
		}
	}
}

func (f *Filesystem) handle(j job) {
	b, err := f.read(j.msg.URL(), j.offset, j.length)
	if err != nil {
		err = errFilesystemFn(f.name, err)
	}
	f.complete(j.msg, b, err)
}

func (f *Filesystem) complete(msg ioproto.Message, b []byte, err error) {
	var s stream.Stream
	status := statusOf(f.ctx, err)
	if status == ioproto.StatusOK {
		s = stream.NewMemory(b)
	}
	if cErr := msg.Complete(status, s, err); cErr != nil {
		f.log.Debug("Message not completed",
			"filesystem", f.name,
			"id", msg.ID(),
			"error", cErr)
		return
	}
	attrs := []any{
		"filesystem", f.name,
		"id", msg.ID(),
		"url", msg.URL().String(),
		"status", status,
		"size", len(b),
	}
	if err != nil {
		attrs = append(attrs, "error", err)
		if pErr, ok := errutil.As[*fs.PathError](err); ok {
			attrs = append(attrs, "path", pErr.Path)
		}
	}
	f.log.Debug("Message completed", attrs...)
}

func (f *Filesystem) read(u uri.URL, offset, length int64) ([]byte, error) {
	if err := f.ctx.Err(); err != nil {
		return nil, err
	}
	fsys, name, err := f.proto.FileSystem(u)
	if err != nil {
		return nil, err
	}
	fh, err := openRange(fsys, name, offset, length)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	var r io.Reader = fh
	if length > 0 {
		r = io.LimitReader(fh, length)
	}
	return io.ReadAll(r)
}

// openRange opens a byte range of the named file. It uses RangeFS when
// fsys implements it, otherwise it seeks or skips to offset. The returned
// file may extend past offset+length.
func openRange(fsys fs.FS, name string, offset, length int64) (fs.File, error) {
	if offset == 0 && length == 0 {
		return fsys.Open(name)
	}
	if r, ok := fsys.(RangeFS); ok {
		return r.OpenRange(name, offset, length)
	}
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	if offset == 0 {
		return f, nil
	}
	if s, ok := f.(io.Seeker); ok {
		if info, err := f.Stat(); err == nil && info.Mode().IsRegular() && offset >= info.Size() {
			f.Close()
			return &file{reader: io.NopCloser(strings.NewReader("")), info: info}, nil
		}
		if _, err := s.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
		return f, nil
	}
	if _, err := io.CopyN(io.Discard, f, offset); err != nil && !errors.Is(err, io.EOF) {
		f.Close()
		return nil, err
	}
	return f, nil
}

// statusOf maps a read error to a message status.
func statusOf(ctx context.Context, err error) ioproto.Status {
	switch {
	case err == nil:
		return ioproto.StatusOK
	case errors.Is(err, fs.ErrNotExist):
		return ioproto.StatusNotFound
	case errors.Is(err, context.Canceled), ctx.Err() != nil:
		return ioproto.StatusCancelled
	default:
		return ioproto.StatusFailed
	}
}

var errFilesystemClosed = errors.New("filesystem closed")

func errFilesystemFn(name string, err error) error {
	return fmt.Errorf("fsutil.Filesystem(%s): %w", name, err)
}
