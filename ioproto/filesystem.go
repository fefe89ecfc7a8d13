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
	"fmt"
)

// Filesystem is a provider instance created by a Factory.
//
// A filesystem services message kinds by implementing GetHandler,
// GetRangeHandler or both. Every handler must complete the message exactly
// once on every path, including failures. It may do so before returning or
// later from another goroutine.
//
// If a filesystem implements io.Closer, Close is called when the facade
// tears the instance down.
type Filesystem interface {
	// Name is used in logs.
	Name() string
}

// GetHandler services Get messages.
type GetHandler interface {
	HandleGet(msg *Get)
}

// GetRangeHandler services GetRange messages.
type GetRangeHandler interface {
	HandleGetRange(msg *GetRange)
}

// Transient is implemented by filesystems that want a fresh instance for
// every request instead of one shared instance per scheme.
type Transient interface {
	Transient() bool
}

// Factory creates filesystem instances.
type Factory func() (Filesystem, error)

// Supports reports whether f can service messages of kind k.
func Supports(f Filesystem, k Kind) bool {
	switch k {
	case KindGet:
		_, ok := f.(GetHandler)
		return ok
	case KindGetRange:
		_, ok := f.(GetRangeHandler)
		return ok
	default:
		return false
	}
}

// IsTransient reports whether f asks for per-request instances.
func IsTransient(f Filesystem) bool {
	t, ok := f.(Transient)
	return ok && t.Transient()
}

// Dispatch hands msg to the matching handler of f.
//
// If the handler panics before completing the message, the message is
// completed with StatusFailed. If f does not support the message kind,
// ErrUnsupported is returned and the message is left untouched.
func Dispatch(f Filesystem, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errHandlerPanicFn(f, r)
			_ = msg.Complete(StatusFailed, nil, err)
		}
	}()
	switch m := msg.(type) {
	case *Get:
		h, ok := f.(GetHandler)
		if !ok {
			return errUnsupportedFn(f, m.Kind())
		}
		h.HandleGet(m)
	case *GetRange:
		h, ok := f.(GetRangeHandler)
		if !ok {
			return errUnsupportedFn(f, m.Kind())
		}
		h.HandleGetRange(m)
	default:
		return errUnsupportedFn(f, msg.Kind())
	}
	return nil
}

// ErrUnsupported is returned by Dispatch for message kinds a filesystem does
// not handle.
var ErrUnsupported = errors.New("ioproto: unsupported message")

func errUnsupportedFn(f Filesystem, k Kind) error {
	return fmt.Errorf("%w: %s does not handle %s", ErrUnsupported, f.Name(), k)
}

func errHandlerPanicFn(f Filesystem, r any) error {
	return fmt.Errorf("ioproto: %s handler panicked: %v", f.Name(), r)
}
