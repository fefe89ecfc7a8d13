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

package assign

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronicleprotocol/go-vfs/uri"
)

func TestSet(t *testing.T) {
	tests := []struct {
		alias   string
		wantErr bool
	}{
		{alias: "bla:"},
		{alias: "Res:"},
		{alias: "bla", wantErr: true},
		{alias: ":", wantErr: true},
		{alias: "a+b:", wantErr: true},
		{alias: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.alias, func(t *testing.T) {
			err := New().Set(tt.alias, "test://blub.com/")
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidAlias)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestLookupAndRemove(t *testing.T) {
	tab := New()
	require.NoError(t, tab.Set("bla:", "test://one/"))
	require.NoError(t, tab.Set("BLA:", "test://two/"))
	assert.Equal(t, 1, tab.Len())

	p, ok := tab.Lookup("bla:")
	require.True(t, ok)
	assert.Equal(t, "test://two/", p)

	assert.True(t, tab.Remove("bla:"))
	assert.False(t, tab.Remove("bla:"))
	_, ok = tab.Lookup("bla:")
	assert.False(t, ok)
	assert.Equal(t, 0, tab.Len())
}

func TestResolve(t *testing.T) {
	tab := New()
	require.NoError(t, tab.Set("bla:", "test://blub.com/"))
	require.NoError(t, tab.Set("res:", "bla:data/"))
	require.NoError(t, tab.Set("bad:", "::"))

	tests := []struct {
		name  string
		url   string
		want  string
		valid bool
	}{
		{name: "alias", url: "bla:blob.txt", want: "test://blub.com/blob.txt", valid: true},
		{name: "alias nested path", url: "bla:dir/blob.txt?x=1", want: "test://blub.com/dir/blob.txt?x=1", valid: true},
		{name: "case insensitive", url: "BLA:blob.txt", want: "test://blub.com/blob.txt", valid: true},
		{name: "no chaining", url: "res:x.txt", want: "bla:data/x.txt", valid: true},
		{name: "no alias", url: "test://other/x", want: "test://other/x", valid: true},
		{name: "invalid prefix", url: "bad:x", want: "::x", valid: false},
		{name: "invalid url", url: "", want: "", valid: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tab.Resolve(uri.Parse(tt.url))
			assert.Equal(t, tt.valid, got.IsValid())
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestResolvePreservesPrefixComponents(t *testing.T) {
	prefixes := []string{"test://blub.com/", "http://localhost:8080/base/", "file:///srv/"}
	paths := []string{"a.txt", "dir/b.bin", "c"}
	for _, prefix := range prefixes {
		tab := New()
		require.NoError(t, tab.Set("x:", prefix))
		p := uri.Parse(prefix)
		for _, path := range paths {
			got := tab.Resolve(uri.Parse("x:" + path))
			require.True(t, got.IsValid())
			assert.Equal(t, p.Scheme(), got.Scheme())
			assert.Equal(t, p.Host(), got.Host())
			assert.Equal(t, p.Path()+path, got.Path())
		}
	}
}
