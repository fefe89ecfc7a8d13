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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronicleprotocol/go-vfs/uri"
)

func TestS3ConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     S3Config
		wantErr bool
	}{
		{name: "complete", cfg: S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s"}},
		{name: "missing endpoint", cfg: S3Config{AccessKey: "a", SecretKey: "s"}, wantErr: true},
		{name: "missing access key", cfg: S3Config{Endpoint: "localhost:9000", SecretKey: "s"}, wantErr: true},
		{name: "missing secret key", cfg: S3Config{Endpoint: "localhost:9000", AccessKey: "a"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewS3Proto(context.Background(), tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestS3ProtoMapping(t *testing.T) {
	tests := []struct {
		name       string
		cfg        S3Config
		url        string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{
			name:       "host is bucket",
			url:        "s3://assets/dir/file.txt",
			wantBucket: "assets",
			wantKey:    "dir/file.txt",
		},
		{
			name:       "host is bucket with prefix",
			cfg:        S3Config{Prefix: "/env/"},
			url:        "s3://assets/file.txt",
			wantBucket: "assets",
			wantKey:    "env/file.txt",
		},
		{
			name:       "fixed bucket",
			cfg:        S3Config{Bucket: "fixed"},
			url:        "s3://dir/file.txt",
			wantBucket: "fixed",
			wantKey:    "dir/file.txt",
		},
		{
			name:       "fixed bucket without host",
			cfg:        S3Config{Bucket: "fixed"},
			url:        "res:file.txt",
			wantBucket: "fixed",
			wantKey:    "file.txt",
		},
		{
			name:    "no bucket",
			url:     "res:file.txt",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.Endpoint, cfg.AccessKey, cfg.SecretKey = "localhost:9000", "a", "s"
			proto, err := NewS3Proto(context.Background(), cfg)
			require.NoError(t, err)

			fsys, name, err := proto.FileSystem(uri.Parse(tt.url))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			s3 := fsys.(*s3FS)
			assert.Equal(t, tt.wantBucket, s3.bucket)
			assert.Equal(t, tt.wantKey, s3.key(name))
		})
	}
}
