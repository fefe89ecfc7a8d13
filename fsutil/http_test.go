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
	"context"
	"io"
	"io/fs"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronicleprotocol/go-vfs/uri"
)

const httpTestContent = "0123456789"

func newHTTPTestServer(t *testing.T, honorRange bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/file.txt", "/dir/file.txt":
			if r.URL.Query().Get("q") != "" {
				w.Header().Set("X-Query", r.URL.Query().Get("q"))
			}
			if honorRange {
				http.ServeContent(w, r, "file.txt", time.Time{}, bytes.NewReader([]byte(httpTestContent)))
				return
			}
			_, _ = w.Write([]byte(httpTestContent))
		case "/secret":
			w.WriteHeader(http.StatusForbidden)
		case "/error":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPProto(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		url      string
		wantPath string
		wantErr  bool
	}{
		{name: "invalid URL", url: "", wantErr: true},
		{name: "unexpected scheme", url: "file://localhost", wantErr: true},
		{name: "empty host", url: "http:///x", wantErr: true},
		{name: "valid URL", url: "http://localhost", wantPath: "."},
		{name: "path", url: "http://localhost/test", wantPath: "test"},
		{name: "query", url: "https://localhost/test?query", wantPath: "test?query"},
		{name: "fragment", url: "http://localhost/test#fragment", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys, path, err := NewHTTPProto(ctx).FileSystem(uri.Parse(tt.url))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, fsys)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}

func TestHTTPFS(t *testing.T) {
	srv := newHTTPTestServer(t, true)
	base, err := url.Parse(srv.URL)
	require.NoError(t, err)
	fsys, err := NewHTTPFS(context.Background(), base, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	tests := []struct {
		name     string
		path     string
		wantData string
		wantErr  error
		wantAny  bool
	}{
		{name: "file", path: "file.txt", wantData: httpTestContent},
		{name: "nested", path: "dir/file.txt", wantData: httpTestContent},
		{name: "query", path: "file.txt?q=1", wantData: httpTestContent},
		{name: "not found", path: "missing", wantErr: fs.ErrNotExist},
		{name: "forbidden", path: "secret", wantErr: fs.ErrPermission},
		{name: "server error", path: "error", wantAny: true},
		{name: "invalid path", path: "../x", wantErr: fs.ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := fsys.Open(tt.path)
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
				return
			case tt.wantAny:
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer f.Close()
			b, err := io.ReadAll(f)
			require.NoError(t, err)
			assert.Equal(t, tt.wantData, string(b))
		})
	}
}

func TestHTTPFSOpenRange(t *testing.T) {
	tests := []struct {
		name           string
		offset, length int64
		want           string
	}{
		{name: "middle", offset: 2, length: 3, want: "234"},
		{name: "to end", offset: 6, want: "6789"},
		{name: "from start", length: 2, want: "01"},
		{name: "past end", offset: 50, length: 2, want: ""},
		{name: "huge length", offset: 4, length: math.MaxInt64, want: "456789"},
	}
	for _, honor := range []bool{true, false} {
		srv := newHTTPTestServer(t, honor)
		base, err := url.Parse(srv.URL)
		require.NoError(t, err)
		fsys, err := NewHTTPFS(context.Background(), base, WithHTTPClient(srv.Client()))
		require.NoError(t, err)
		rfs, ok := fsys.(RangeFS)
		require.True(t, ok)
		for _, tt := range tests {
			name := tt.name
			if !honor {
				name += " without range support"
			}
			t.Run(name, func(t *testing.T) {
				f, err := rfs.OpenRange("file.txt", tt.offset, tt.length)
				require.NoError(t, err)
				defer f.Close()
				b, err := io.ReadAll(f)
				require.NoError(t, err)
				assert.Equal(t, tt.want, string(b))
			})
		}
	}
}

func TestRangeHeader(t *testing.T) {
	assert.Equal(t, "bytes=5-", rangeHeader(5, 0))
	assert.Equal(t, "bytes=0-9", rangeHeader(0, 10))
	assert.Equal(t, "bytes=3-4", rangeHeader(3, 2))
	assert.Equal(t, "bytes=10-", rangeHeader(10, math.MaxInt64))
	assert.Equal(t, "bytes=1-9223372036854775806", rangeHeader(1, math.MaxInt64-1))
}
