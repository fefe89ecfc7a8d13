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
	"io"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/defiweb/go-eth/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/sha3"
)

func TestChecksumFS(t *testing.T) {
	data := []byte("checksummed content")
	sum := calculateKeccak256(data).String()
	mem := fstest.MapFS{
		"file.txt": &fstest.MapFile{Data: data},
	}
	tests := []struct {
		name     string
		mode     ChecksumFSVerifyMode
		file     string
		wantData string
		wantErr  error
	}{
		{name: "no checksum", file: "file.txt", wantData: string(data)},
		{name: "valid after read", file: "file.txt?checksum=" + sum, wantData: string(data)},
		{name: "valid after open", mode: ChecksumFSVerifyAfterOpen, file: "file.txt?checksum=" + sum, wantData: string(data)},
		{name: "mismatch after read", file: "file.txt?checksum=0x" + zeros(64), wantErr: errChecksumFSMismatch},
		{name: "mismatch after open", mode: ChecksumFSVerifyAfterOpen, file: "file.txt?checksum=0x" + zeros(64), wantErr: errChecksumFSMismatch},
		{name: "not found", file: "missing.txt?checksum=" + sum, wantErr: fs.ErrNotExist},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfs, err := NewChecksumFS(mem, WithChecksumVerifyMode(tt.mode))
			require.NoError(t, err)
			f, err := cfs.Open(tt.file)
			if err == nil {
				defer f.Close()
				var b []byte
				b, err = io.ReadAll(f)
				if tt.wantErr == nil {
					require.NoError(t, err)
					assert.Equal(t, tt.wantData, string(b))
					return
				}
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestChecksumFSOpenRange(t *testing.T) {
	data := []byte("0123456789")
	sum := calculateKeccak256(data).String()
	cfs, err := NewChecksumFS(fstest.MapFS{"file.txt": &fstest.MapFile{Data: data}})
	require.NoError(t, err)
	rfs := cfs.(RangeFS)

	f, err := rfs.OpenRange("file.txt?checksum="+sum, 3, 4)
	require.NoError(t, err)
	b, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "3456", string(b))

	_, err = rfs.OpenRange("file.txt?checksum=0x"+zeros(64), 3, 4)
	assert.ErrorIs(t, err, errChecksumFSMismatch)
}

func TestChecksumParam(t *testing.T) {
	c := &checksumFS{param: "checksum"}
	name, h := c.checksumParam("file.txt?checksum=0x" + zeros(63) + "1&v=2")
	assert.Equal(t, "file.txt?v=2", name)
	assert.Equal(t, byte(1), h[31])

	name, h = c.checksumParam("file.txt?v=2")
	assert.Equal(t, "file.txt?v=2", name)
	assert.Equal(t, types.ZeroHash, h)
}

func TestChecksumFSUnsupportedMode(t *testing.T) {
	_, err := NewChecksumFS(fstest.MapFS{}, WithChecksumVerifyMode(ChecksumFSVerifyMode(5)))
	assert.ErrorIs(t, err, errChecksumFSUnsupportedMode)
}

func zeros(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '0'
	}
	return string(b)
}

func calculateKeccak256(data []byte) types.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return types.Hash(h.Sum(nil))
}
