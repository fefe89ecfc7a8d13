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

package uri

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		valid    bool
		scheme   string
		host     string
		hasHost  bool
		path     string
		query    string
		fragment string
	}{
		{name: "empty", text: ""},
		{name: "no scheme", text: "blob.txt"},
		{name: "leading colon", text: ":blob.txt"},
		{name: "non alphanumeric scheme", text: "ipfs+gw://cid/file"},
		{name: "space", text: "test://host/a file.txt"},
		{name: "control character", text: "test://host/a\nb"},
		{
			name:    "full",
			text:    "test://blub.com/dir/blob.txt?a=1&b=2#frag",
			valid:   true,
			scheme:  "test",
			host:    "blub.com",
			hasHost: true,
			path:    "/dir/blob.txt", query: "a=1&b=2", fragment: "frag",
		},
		{
			name:   "no host",
			text:   "bla:blob.txt",
			valid:  true,
			scheme: "bla",
			path:   "blob.txt",
		},
		{
			name:   "no host absolute path",
			text:   "bla:/textures/a.png",
			valid:  true,
			scheme: "bla",
			path:   "/textures/a.png",
		},
		{
			name:    "host only",
			text:    "nope://x",
			valid:   true,
			scheme:  "nope",
			host:    "x",
			hasHost: true,
		},
		{
			name:    "empty host",
			text:    "file:///etc/hosts",
			valid:   true,
			scheme:  "file",
			hasHost: true,
			path:    "/etc/hosts",
		},
		{
			name:    "upper case scheme",
			text:    "HTTP://Example.com/A",
			valid:   true,
			scheme:  "http",
			host:    "Example.com",
			hasHost: true,
			path:    "/A",
		},
		{
			name:    "host with port and query",
			text:    "http://localhost:8080?x",
			valid:   true,
			scheme:  "http",
			host:    "localhost:8080",
			hasHost: true,
			query:   "x",
		},
		{
			name:   "scheme only",
			text:   "res:",
			valid:  true,
			scheme: "res",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := Parse(tt.text)
			assert.Equal(t, tt.text, u.Raw())
			require.Equal(t, tt.valid, u.IsValid())
			if !tt.valid {
				return
			}
			assert.Equal(t, tt.scheme, u.Scheme())
			assert.Equal(t, tt.host, u.Host())
			assert.Equal(t, tt.hasHost, u.HasHost())
			assert.Equal(t, tt.path, u.Path())
			assert.Equal(t, tt.query, u.Query())
			assert.Equal(t, tt.fragment, u.Fragment())
			assert.NotContains(t, u.Path(), tt.scheme+":")
		})
	}
}

func TestRoundTrip(t *testing.T) {
	texts := []string{
		"test://blub.com/blob.txt",
		"bla:blob.txt",
		"file:///etc/hosts",
		"http://localhost:8080/a/b?c=d#e",
		"nope://x",
		"res:",
		"ipfs://bafy/dir/file.json?checksum=0x00",
	}
	for _, text := range texts {
		t.Run(text, func(t *testing.T) {
			u := Parse(text)
			require.True(t, u.IsValid())
			v := Parse(u.String())
			assert.True(t, u.Equal(v), "%q != %q", u.String(), v.String())
			assert.Equal(t, text, u.String())
		})
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Parse("TEST://host/a").Equal(Parse("test://host/a")))
	assert.False(t, Parse("test://host/a").Equal(Parse("test://host/b")))
	assert.False(t, Parse("test:/a").Equal(Parse("test:///a")))
	assert.True(t, Parse("").Equal(URL{}))
}

func TestSegments(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c.txt"}, Parse("x://h/a//b/c.txt").Segments())
	assert.Equal(t, []string{"blob.txt"}, Parse("bla:blob.txt").Segments())
	assert.Nil(t, Parse("nope://x").Segments())
}

func TestRemainder(t *testing.T) {
	assert.Equal(t, "blob.txt", Parse("bla:blob.txt").Remainder())
	assert.Equal(t, "//host/a?b", Parse("BLA://host/a?b").Remainder())
	assert.Equal(t, "", Parse("").Remainder())
}

func TestValidScheme(t *testing.T) {
	assert.True(t, ValidScheme("http"))
	assert.True(t, ValidScheme("S3"))
	assert.False(t, ValidScheme(""))
	assert.False(t, ValidScheme("ipfs+gateway"))
	assert.False(t, ValidScheme("bla:"))
}
