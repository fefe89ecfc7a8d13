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
	"bytes"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	netURL "net/url"

	"github.com/defiweb/go-eth/types"
	"golang.org/x/crypto/sha3"

	"github.com/chronicleprotocol/go-vfs/uri"
)

type ChecksumFSVerifyMode int

const (
	// ChecksumFSVerifyAfterRead verifies the checksum after reading the file
	// contents.
	ChecksumFSVerifyAfterRead ChecksumFSVerifyMode = iota

	// ChecksumFSVerifyAfterOpen verifies the checksum immediately after
	// opening the file.
	ChecksumFSVerifyAfterOpen
)

type ChecksumFSOption func(*checksumFS)

// WithChecksumParamName sets the name of the query parameter holding the
// expected checksum. The default is "checksum".
func WithChecksumParamName(name string) ChecksumFSOption {
	return func(c *checksumFS) {
		c.param = name
	}
}

// WithChecksumHash sets the hash function. The default is Keccak-256.
func WithChecksumHash(hash func() hash.Hash) ChecksumFSOption {
	return func(c *checksumFS) {
		c.hash = hash
	}
}

func WithChecksumVerifyMode(mode ChecksumFSVerifyMode) ChecksumFSOption {
	return func(c *checksumFS) {
		c.mode = mode
	}
}

// NewChecksumProto wraps the file systems returned by proto with
// NewChecksumFS.
func NewChecksumProto(proto Protocol, opts ...ChecksumFSOption) Protocol {
	return &checksumProto{proto: proto, opts: opts}
}

type checksumProto struct {
	proto Protocol
	opts  []ChecksumFSOption
}

// FileSystem implements the Protocol interface.
func (c *checksumProto) FileSystem(u uri.URL) (fs fs.FS, path string, err error) {
	fs, path, err = c.proto.FileSystem(u)
	if err != nil {
		return nil, "", errChecksumProtoFn(err)
	}
	fs, err = NewChecksumFS(fs, c.opts...)
	if err != nil {
		return nil, "", errChecksumProtoFn(err)
	}
	return fs, path, nil
}

// NewChecksumFS creates a file system that verifies file contents against
// a checksum passed as a query parameter of the file name, for example
// "data.json?checksum=0x...". The parameter is removed before the name is
// passed to fs. Files without the parameter are not verified.
func NewChecksumFS(fs fs.FS, opts ...ChecksumFSOption) (fs.FS, error) {
	c := &checksumFS{fs: fs}
	for _, opt := range opts {
		opt(c)
	}
	if c.param == "" {
		c.param = "checksum"
	}
	if c.hash == nil {
		c.hash = sha3.NewLegacyKeccak256
	}
	if c.mode < 0 || c.mode > ChecksumFSVerifyAfterOpen {
		return nil, errChecksumFSUnsupportedMode
	}
	return c, nil
}

type checksumFS struct {
	fs    fs.FS
	hash  func() hash.Hash
	param string
	mode  ChecksumFSVerifyMode
}

// Open implements the fs.FS interface.
func (c *checksumFS) Open(n string) (fs.File, error) {
	n, h := c.checksumParam(n)
	f, err := c.fs.Open(n)
	if err != nil {
		return nil, errChecksumFSFn(err)
	}
	if h == types.ZeroHash {
		return f, nil
	}
	switch c.mode {
	case ChecksumFSVerifyAfterRead:
		return checksumFile{file: f, checksum: h, hash: c.hash()}, nil
	case ChecksumFSVerifyAfterOpen:
		data, info, err := c.readVerified(f, h)
		if err != nil {
			return nil, err
		}
		return &file{reader: io.NopCloser(bytes.NewReader(data)), info: info}, nil
	default:
		return nil, errChecksumFSUnsupportedMode
	}
}

// OpenRange implements the RangeFS interface. A file with a checksum is
// read and verified as a whole before the range is returned.
func (c *checksumFS) OpenRange(n string, offset, length int64) (fs.File, error) {
	n, h := c.checksumParam(n)
	if h == types.ZeroHash {
		f, err := openRange(c.fs, n, offset, length)
		if err != nil {
			return nil, errChecksumFSFn(err)
		}
		return f, nil
	}
	f, err := c.fs.Open(n)
	if err != nil {
		return nil, errChecksumFSFn(err)
	}
	data, info, err := c.readVerified(f, h)
	if err != nil {
		return nil, err
	}
	data = data[min(offset, int64(len(data))):]
	if length > 0 {
		data = data[:min(length, int64(len(data)))]
	}
	return &file{reader: io.NopCloser(bytes.NewReader(data)), info: info}, nil
}

// Stat implements the fs.StatFS interface.
func (c *checksumFS) Stat(name string) (fs.FileInfo, error) {
	name, _ = c.checksumParam(name)
	return fs.Stat(c.fs, name)
}

func (c *checksumFS) readVerified(f fs.File, h types.Hash) ([]byte, fs.FileInfo, error) {
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, nil, errChecksumFSFn(err)
	}
	data, err := io.ReadAll(checksumFile{file: f, checksum: h, hash: c.hash()})
	if err != nil {
		return nil, nil, errChecksumFSFn(err)
	}
	return data, info, nil
}

func (c *checksumFS) checksumParam(name string) (string, types.Hash) {
	p, q := splitQuery(name)
	if q == "" {
		return name, types.ZeroHash
	}
	v, err := netURL.ParseQuery(q)
	if err != nil {
		return name, types.ZeroHash
	}
	h, err := types.HashFromHex(v.Get(c.param), types.PadNone)
	if err != nil {
		return name, types.ZeroHash
	}
	v.Del(c.param)
	if len(v) == 0 {
		return p, h
	}
	return p + "?" + v.Encode(), h
}

type checksumFile struct {
	file     fs.File
	hash     hash.Hash
	checksum types.Hash
}

func (c checksumFile) Stat() (fs.FileInfo, error) {
	return c.file.Stat()
}

func (c checksumFile) Read(b []byte) (int, error) {
	n, err := c.file.Read(b)
	c.hash.Write(b[:n])
	if errors.Is(err, io.EOF) {
		if c.checksum != types.Hash(c.hash.Sum(nil)) {
			return n, errChecksumFSMismatch
		}
		return n, io.EOF
	}
	return n, err
}

func (c checksumFile) Close() error {
	return c.file.Close()
}

var (
	errChecksumFSUnsupportedMode = errors.New("fsutil.checksumFS: unsupported verify mode")
	errChecksumFSMismatch        = errors.New("fsutil.checksumFS: checksum mismatch")
)

func errChecksumProtoFn(err error) error {
	return fmt.Errorf("fsutil.checksumProto: %w", err)
}

func errChecksumFSFn(err error) error {
	return fmt.Errorf("fsutil.checksumFS: %w", err)
}
