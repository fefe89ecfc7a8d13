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

// Package stream provides the byte container that carries resource data
// between filesystem providers and callers.
package stream

import (
	"errors"
	"io"
	"sync"
)

// Mode is the access mode of an open stream.
type Mode int

const (
	ReadOnly Mode = iota
	WriteOnly
	ReadWrite
)

func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "read-only"
	case WriteOnly:
		return "write-only"
	case ReadWrite:
		return "read-write"
	default:
		return "unknown"
	}
}

// Stream is a byte container with an explicit open/close lifecycle.
//
// A stream must be closed before it can be opened again in another mode.
type Stream interface {
	io.Reader
	io.Writer
	Open(mode Mode) error
	Close() error
	IsOpen() bool
	Mode() Mode
	Size() int
}

// Memory is an in-memory Stream. It is safe for concurrent use, but readers
// and writers share a single position.
type Memory struct {
	mu   sync.Mutex
	buf  []byte
	pos  int
	mode Mode
	open bool
}

// NewMemory returns a closed stream holding a copy of b.
func NewMemory(b []byte) *Memory {
	return &Memory{buf: append([]byte(nil), b...)}
}

// Open opens the stream. Opening in WriteOnly mode truncates the content.
// The position is reset to the start.
func (m *Memory) Open(mode Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open {
		return ErrAlreadyOpen
	}
	if mode < ReadOnly || mode > ReadWrite {
		return ErrInvalidMode
	}
	if mode == WriteOnly {
		m.buf = m.buf[:0]
	}
	m.mode = mode
	m.pos = 0
	m.open = true
	return nil
}

// Close closes the stream.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return ErrNotOpen
	}
	m.open = false
	return nil
}

// IsOpen reports whether the stream is open.
func (m *Memory) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Mode returns the mode of the last Open call.
func (m *Memory) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Size returns the number of bytes in the stream.
func (m *Memory) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buf)
}

// Read implements the io.Reader interface.
func (m *Memory) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return 0, ErrNotOpen
	}
	if m.mode == WriteOnly {
		return 0, ErrNotReadable
	}
	if m.pos >= len(m.buf) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[m.pos:])
	m.pos += n
	return n, nil
}

// Write implements the io.Writer interface. Data is written at the current
// position, growing the buffer as needed.
func (m *Memory) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return 0, ErrNotOpen
	}
	if m.mode == ReadOnly {
		return 0, ErrNotWritable
	}
	end := m.pos + len(p)
	if end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

// Bytes returns a copy of the stream content. It does not require the stream
// to be open.
func (m *Memory) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.buf...)
}

// ReadAll opens s for reading, reads the whole content and closes it again.
func ReadAll(s Stream) ([]byte, error) {
	if err := s.Open(ReadOnly); err != nil {
		return nil, err
	}
	b, err := io.ReadAll(s)
	if cErr := s.Close(); err == nil {
		err = cErr
	}
	return b, err
}

var (
	ErrAlreadyOpen = errors.New("stream: already open")
	ErrNotOpen     = errors.New("stream: not open")
	ErrInvalidMode = errors.New("stream: invalid mode")
	ErrNotReadable = errors.New("stream: not open for reading")
	ErrNotWritable = errors.New("stream: not open for writing")
)
