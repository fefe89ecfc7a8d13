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
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/chronicleprotocol/go-vfs/uri"
)

// S3Config configures the S3 protocol.
type S3Config struct {
	// Endpoint is the S3 server address, e.g. "localhost:9000".
	Endpoint string

	// AccessKey and SecretKey are static credentials.
	AccessKey string
	SecretKey string

	// UseSSL enables HTTPS connections.
	UseSSL bool

	// Bucket, if set, is used for every URL and the URL host becomes the
	// first path segment of the object key. Otherwise the URL host names
	// the bucket.
	Bucket string

	// Prefix is prepended to every object key.
	Prefix string

	// Client is an optional pre-configured client. If set, Endpoint,
	// AccessKey, SecretKey and UseSSL are ignored.
	Client *minio.Client
}

func (c *S3Config) validate() error {
	if c.Client != nil {
		return nil
	}
	if c.Endpoint == "" {
		return errors.New("endpoint is required when client is not provided")
	}
	if c.AccessKey == "" {
		return errors.New("access key is required when client is not provided")
	}
	if c.SecretKey == "" {
		return errors.New("secret key is required when client is not provided")
	}
	return nil
}

// NewS3Proto creates a protocol for S3-compatible object storage. URLs take
// the form "s3://<bucket>/<key>".
func NewS3Proto(ctx context.Context, cfg S3Config) (Protocol, error) {
	if err := cfg.validate(); err != nil {
		return nil, errS3ProtoFn(err)
	}
	client := cfg.Client
	if client == nil {
		var err error
		client, err = minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
		})
		if err != nil {
			return nil, errS3ProtoFn(err)
		}
	}
	return &s3Proto{
		ctx:    ctx,
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

type s3Proto struct {
	ctx    context.Context
	client *minio.Client
	bucket string
	prefix string
}

// FileSystem implements the Protocol interface.
func (p *s3Proto) FileSystem(u uri.URL) (fs fs.FS, name string, err error) {
	if !u.IsValid() {
		return nil, "", errInvalidURLFn("fsutil.s3Proto", u)
	}
	bucket, prefix := p.bucket, p.prefix
	if bucket == "" {
		if u.Host() == "" {
			return nil, "", errS3ProtoFn(errS3EmptyBucket)
		}
		bucket = u.Host()
	} else if u.Host() != "" {
		prefix = path.Join(prefix, u.Host())
	}
	return &s3FS{ctx: p.ctx, client: p.client, bucket: bucket, prefix: prefix}, uriPath(u, false), nil
}

// s3FS exposes the objects of a bucket as files. It implements RangeFS.
type s3FS struct {
	ctx    context.Context
	client *minio.Client
	bucket string
	prefix string
}

// Open implements the fs.FS interface.
func (f *s3FS) Open(name string) (fs.File, error) {
	return f.OpenRange(name, 0, 0)
}

// OpenRange implements the RangeFS interface.
func (f *s3FS) OpenRange(name string, offset, length int64) (fs.File, error) {
	if err := validPath("open", name); err != nil {
		return nil, errS3FSFn(err)
	}
	opts := minio.GetObjectOptions{}
	if offset > 0 || length > 0 {
		end, _ := rangeEnd(offset, length)
		if err := opts.SetRange(offset, end); err != nil {
			return nil, errS3FSFn(err)
		}
	}
	obj, err := f.client.GetObject(f.ctx, f.bucket, f.key(name), opts)
	if err != nil {
		return nil, errS3FSPathFn("open", name, err)
	}
	// GetObject is lazy, Stat performs the request.
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "InvalidRange" {
			return &file{reader: io.NopCloser(strings.NewReader("")), info: &fileInfo{name: path.Base(name)}}, nil
		}
		return nil, errS3FSPathFn("open", name, err)
	}
	return &file{reader: obj, info: s3FileInfo(name, info)}, nil
}

// Stat implements the fs.StatFS interface.
func (f *s3FS) Stat(name string) (fs.FileInfo, error) {
	if err := validPath("stat", name); err != nil {
		return nil, errS3FSFn(err)
	}
	info, err := f.client.StatObject(f.ctx, f.bucket, f.key(name), minio.StatObjectOptions{})
	if err != nil {
		return nil, errS3FSPathFn("stat", name, err)
	}
	return s3FileInfo(name, info), nil
}

func (f *s3FS) key(name string) string {
	if f.prefix == "" {
		return name
	}
	return path.Join(f.prefix, name)
}

func s3FileInfo(name string, info minio.ObjectInfo) fs.FileInfo {
	return &fileInfo{
		name:    path.Base(name),
		size:    info.Size,
		mode:    0o444,
		modTime: info.LastModified,
		sys:     info,
	}
}

// translateS3Error maps S3 error codes to fs errors.
func translateS3Error(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %w", fs.ErrNotExist, err)
	case "AccessDenied":
		return fmt.Errorf("%w: %w", fs.ErrPermission, err)
	}
	return err
}

var errS3EmptyBucket = errors.New("empty bucket")

func errS3ProtoFn(err error) error {
	return fmt.Errorf("fsutil.s3Proto: %w", err)
}

func errS3FSFn(err error) error {
	return fmt.Errorf("fsutil.s3FS: %w", err)
}

func errS3FSPathFn(op, name string, err error) error {
	return errS3FSFn(fmt.Errorf("%s %s: %w", op, name, translateS3Error(err)))
}
