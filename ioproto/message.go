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

package ioproto

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/chronicleprotocol/go-vfs/stream"
	"github.com/chronicleprotocol/go-vfs/uri"
)

// Message is the caller-facing view of a request.
type Message interface {
	// ID identifies the message in logs.
	ID() uuid.UUID
	Kind() Kind
	// URL returns the URL the request was routed with, after assign
	// resolution.
	URL() uri.URL
	// Status returns StatusNone until the message is handled.
	Status() Status
	// Stream returns the result. It is nil unless the status is StatusOK.
	Stream() stream.Stream
	// Err returns the error reported by the provider, if any.
	Err() error
	// Handled reports whether the message is complete. It may be polled
	// from any goroutine.
	Handled() bool

	// Complete sets the outcome and marks the message as handled. Only the
	// first call has an effect; later calls return ErrAlreadyHandled.
	Complete(status Status, s stream.Stream, err error) error
	// OnComplete registers fn to be called on the goroutine that drives the
	// scheduling loop once the completion is observed. If the completion
	// was already observed, fn is called immediately.
	OnComplete(fn func(Message))
	// Notify calls the callbacks registered with OnComplete. It is called
	// by the owner of the message after Handled returns true.
	Notify()
	// Abandon permanently marks a pending message as never to be handled.
	// It returns false if the message is already complete.
	Abandon() bool
}

const (
	statePending int32 = iota
	stateCompleting
	stateHandled
	stateAbandoned
)

type message struct {
	self  Message
	id    uuid.UUID
	kind  Kind
	url   uri.URL
	state atomic.Int32

	// Written once, before state becomes stateHandled.
	status Status
	stream stream.Stream
	err    error

	mu        sync.Mutex
	callbacks []func(Message)
	notified  bool
}

func (m *message) init(self Message, kind Kind, u uri.URL) {
	m.self = self
	m.id = uuid.New()
	m.kind = kind
	m.url = u
}

func (m *message) ID() uuid.UUID { return m.id }
func (m *message) Kind() Kind    { return m.kind }
func (m *message) URL() uri.URL  { return m.url }
func (m *message) Handled() bool { return m.state.Load() == stateHandled }

func (m *message) Status() Status {
	if !m.Handled() {
		return StatusNone
	}
	return m.status
}

func (m *message) Stream() stream.Stream {
	if !m.Handled() {
		return nil
	}
	return m.stream
}

func (m *message) Err() error {
	if !m.Handled() {
		return nil
	}
	return m.err
}

func (m *message) Complete(status Status, s stream.Stream, err error) error {
	if !m.state.CompareAndSwap(statePending, stateCompleting) {
		if m.state.Load() == stateAbandoned {
			return ErrAbandoned
		}
		return ErrAlreadyHandled
	}
	switch {
	case status == StatusNone:
		status = StatusFailed
		err = errors.Join(ErrNoStatus, err)
	case status == StatusOK && s == nil:
		status = StatusFailed
		err = ErrMissingStream
	}
	if status != StatusOK {
		s = nil
	}
	m.status, m.stream, m.err = status, s, err
	m.state.Store(stateHandled)
	return nil
}

func (m *message) Abandon() bool {
	return m.state.CompareAndSwap(statePending, stateAbandoned)
}

func (m *message) OnComplete(fn func(Message)) {
	m.mu.Lock()
	if !m.notified {
		m.callbacks = append(m.callbacks, fn)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	fn(m.self)
}

func (m *message) Notify() {
	m.mu.Lock()
	if m.notified || !m.Handled() {
		m.mu.Unlock()
		return
	}
	m.notified = true
	cbs := m.callbacks
	m.callbacks = nil
	m.mu.Unlock()
	for _, fn := range cbs {
		fn(m.self)
	}
}

// Get requests the whole content of a resource.
type Get struct {
	message
}

// NewGet creates a pending Get message.
func NewGet(u uri.URL) *Get {
	g := &Get{}
	g.init(g, KindGet, u)
	return g
}

// GetRange requests a byte range of a resource.
type GetRange struct {
	message
	offset int64
	length int64
}

// NewGetRange creates a pending GetRange message. A length of zero requests
// everything from offset to the end of the resource.
func NewGetRange(u uri.URL, offset, length int64) *GetRange {
	g := &GetRange{offset: offset, length: length}
	g.init(g, KindGetRange, u)
	return g
}

// Offset returns the first requested byte.
func (g *GetRange) Offset() int64 { return g.offset }

// Length returns the number of requested bytes, zero meaning "until the end".
func (g *GetRange) Length() int64 { return g.length }

var (
	ErrAlreadyHandled = errors.New("ioproto: message already handled")
	ErrAbandoned      = errors.New("ioproto: message abandoned")
	ErrNoStatus       = errors.New("ioproto: completed without status")
	ErrMissingStream  = errors.New("ioproto: completed with status ok but without stream")
)
