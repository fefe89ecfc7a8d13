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

// Package ioproto defines the request messages routed by the IO facade and
// the contract filesystem providers implement to service them.
//
// A message is created by the facade, handed to the caller and completed
// exactly once by the provider that services it, possibly from another
// goroutine. Completion publishes the status, the result stream and the
// handled flag in that order: once Handled returns true, Status, Stream and
// Err are stable.
package ioproto

// Status is the outcome of a request.
type Status int

const (
	// StatusNone is reported by messages that are not handled yet.
	StatusNone Status = iota
	// StatusOK means the request succeeded and the stream is present.
	StatusOK
	// StatusInvalidURL means the URL, or the URL it resolved to, is malformed.
	StatusInvalidURL
	// StatusNoFileSystem means no filesystem is registered for the scheme.
	StatusNoFileSystem
	// StatusNotFound means the resource does not exist.
	StatusNotFound
	// StatusFailed is a generic provider or I/O failure.
	StatusFailed
	// StatusCancelled means the provider gave up on the request, usually
	// because it was shut down.
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusOK:
		return "ok"
	case StatusInvalidURL:
		return "invalid url"
	case StatusNoFileSystem:
		return "no filesystem"
	case StatusNotFound:
		return "not found"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Kind identifies the message type.
type Kind int

const (
	KindGet Kind = iota
	KindGetRange
)

func (k Kind) String() string {
	switch k {
	case KindGet:
		return "get"
	case KindGetRange:
		return "get-range"
	default:
		return "unknown"
	}
}
