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
	"net/http"
	netURL "net/url"
	"strings"
	"time"

	"github.com/chronicleprotocol/go-vfs/uri"
)

type HTTPFSOption func(*httpFS)

// WithHTTPClient sets the HTTP client used to perform HTTP requests.
func WithHTTPClient(client *http.Client) HTTPFSOption {
	return func(f *httpFS) {
		f.client = client
	}
}

// NewHTTPProto creates a new HTTP protocol.
//
// The HTTP protocol is used to create an HTTP file system. Requests are
// bound to ctx.
func NewHTTPProto(ctx context.Context, opts ...HTTPFSOption) Protocol {
	return &httpProto{ctx: ctx, opts: opts}
}

type httpProto struct {
	ctx  context.Context
	opts []HTTPFSOption
}

// FileSystem implements the Protocol interface.
func (m *httpProto) FileSystem(u uri.URL) (fs fs.FS, path string, err error) {
	if err := validHTTPURL(u); err != nil {
		return nil, "", errHTTPProtoFn(err)
	}
	fs, err = NewHTTPFS(m.ctx, &netURL.URL{Scheme: u.Scheme(), Host: u.Host()}, m.opts...)
	if err != nil {
		return nil, "", errHTTPProtoFn(err)
	}
	return fs, uriPath(u, true), nil
}

// NewHTTPFS creates a new HTTP file system rooted at baseURL. The returned
// file system implements RangeFS.
func NewHTTPFS(ctx context.Context, baseURL *netURL.URL, opts ...HTTPFSOption) (fs.FS, error) {
	if baseURL == nil {
		return nil, errHTTPFSFn(errors.New("nil URL"))
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, errHTTPFSFn(fmt.Errorf("unknown scheme: %s", baseURL.Scheme))
	}
	if baseURL.Host == "" {
		return nil, errHTTPFSFn(errors.New("empty host"))
	}
	f := &httpFS{ctx: ctx, baseURL: baseURL}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = http.DefaultClient
	}
	return f, nil
}

type httpFS struct {
	ctx     context.Context
	client  *http.Client
	baseURL *netURL.URL

	// parseFn allows to define a custom name parsing function.
	parseFn func(f *httpFS, name string) (*netURL.URL, error)
}

// Open implements the fs.FS interface.
func (f *httpFS) Open(name string) (fs.File, error) {
	return f.OpenRange(name, 0, 0)
}

// OpenRange implements the RangeFS interface. If the server ignores the
// Range header, the skipped bytes are discarded on the client side.
func (f *httpFS) OpenRange(name string, offset, length int64) (fs.File, error) {
	p, _ := splitQuery(name)
	if !fs.ValidPath(p) {
		return nil, errHTTPFSInvalidPathFn(name, nil)
	}
	url, err := f.parse(name)
	if err != nil {
		return nil, errHTTPFSInvalidPathFn(name, err)
	}
	req, err := http.NewRequestWithContext(f.ctx, http.MethodGet, url.String(), nil)
	if err != nil {
		return nil, errHTTPFSRequestErrorFn(url, err)
	}
	ranged := offset > 0 || length > 0
	if ranged {
		req.Header.Set("Range", rangeHeader(offset, length))
	}
	res, err := f.client.Do(req)
	if err != nil {
		return nil, errHTTPFSRequestErrorFn(url, err)
	}
	info := &fileInfo{
		name:    name,
		size:    res.ContentLength,
		modTime: lastModTime(res.Header),
	}
	switch res.StatusCode {
	case http.StatusOK:
		if !ranged {
			return &file{reader: res.Body, info: info}, nil
		}
		if _, err := io.CopyN(io.Discard, res.Body, offset); err != nil && !errors.Is(err, io.EOF) {
			res.Body.Close()
			return nil, errHTTPFSRequestErrorFn(url, err)
		}
		return &file{reader: limitReadCloser(res.Body, length), info: info}, nil
	case http.StatusPartialContent:
		if !ranged {
			break
		}
		return &file{reader: limitReadCloser(res.Body, length), info: info}, nil
	case http.StatusRequestedRangeNotSatisfiable:
		// The offset is past the end of the resource.
		res.Body.Close()
		info.size = 0
		return &file{reader: io.NopCloser(strings.NewReader("")), info: info}, nil
	}
	res.Body.Close()
	// Use fs package errors when possible to increase compatibility.
	switch res.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		return nil, errHTTPFSRequestErrorFn(url, fs.ErrNotExist)
	case http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusForbidden:
		return nil, errHTTPFSRequestErrorFn(url, fs.ErrPermission)
	}
	return nil, errHTTPFSRequestErrorCodeFn(url, res.StatusCode)
}

func (f *httpFS) parse(name string) (*netURL.URL, error) {
	if f.parseFn != nil {
		return f.parseFn(f, name)
	}
	p, q := splitQuery(name)
	url := f.baseURL.JoinPath(p)
	url.RawQuery = q
	return url, nil
}

func rangeHeader(offset, length int64) string {
	end, ok := rangeEnd(offset, length)
	if !ok {
		return fmt.Sprintf("bytes=%d-", offset)
	}
	return fmt.Sprintf("bytes=%d-%d", offset, end)
}

type readCloser struct {
	io.Reader
	io.Closer
}

func limitReadCloser(rc io.ReadCloser, n int64) io.ReadCloser {
	if n <= 0 {
		return rc
	}
	return readCloser{Reader: io.LimitReader(rc, n), Closer: rc}
}

func lastModTime(headers http.Header) time.Time {
	if t, err := time.Parse(time.RFC1123, headers.Get("Last-Modified")); err == nil {
		return t
	}
	return time.Now()
}

func validHTTPURL(u uri.URL) error {
	if !u.IsValid() {
		return fmt.Errorf("invalid URL: %q", u.Raw())
	}
	if u.Scheme() != "http" && u.Scheme() != "https" {
		return fmt.Errorf("unknown scheme: %s", u.Scheme())
	}
	if u.Host() == "" {
		return errors.New("empty host")
	}
	if u.Fragment() != "" {
		return errors.New("fragment not allowed")
	}
	return nil
}

func errHTTPProtoFn(err error) error {
	return fmt.Errorf("fsutil.httpProto: %w", err)
}

func errHTTPFSFn(err error) error {
	return fmt.Errorf("fsutil.httpFS: %w", err)
}

func errHTTPFSInvalidPathFn(path string, err error) error {
	if err == nil {
		return fmt.Errorf("fsutil.httpFS: invalid path: %w", errInvalidPathFn("open", path))
	}
	return fmt.Errorf("fsutil.httpFS: invalid path: %w: %w", errInvalidPathFn("open", path), err)
}

func errHTTPFSRequestErrorFn(url *netURL.URL, err error) error {
	return fmt.Errorf("fsutil.httpFS: %s: %w", url.String(), err)
}

func errHTTPFSRequestErrorCodeFn(url *netURL.URL, code int) error {
	return fmt.Errorf("fsutil.httpFS: %s: unexpected status code: %d %s", url.String(), code, http.StatusText(code))
}
