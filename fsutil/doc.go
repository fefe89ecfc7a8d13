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

// Package fsutil provides filesystem providers for the IO facade, built on
// implementations of the fs.FS interface, primarily for working with
// remote files.
//
// To support URL schemes, the package defines the Protocol interface, which
// takes a URL and returns an appropriate fs.FS implementation and the path to
// the file within that file system. Protocols can be layered: retry, chain,
// checksum and gzip wrap other protocols or file systems.
//
// A Protocol is turned into a provider with NewFilesystem, which serves
// Get and GetRange messages either synchronously or from a worker pool.
//
// Example:
//
//	io.RegisterFileSystem("https", fsutil.Factory(ctx, "https",
//		func(ctx context.Context) (fsutil.Protocol, error) {
//			return fsutil.NewRetryProto(ctx, fsutil.NewHTTPProto(ctx), 3, time.Second), nil
//		},
//		fsutil.WithWorkers(4),
//	))
//
//	msg := io.LoadFile(uri.Parse("https://example.com/file.json"))
package fsutil
