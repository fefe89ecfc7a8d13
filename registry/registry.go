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

// Package registry maps URL schemes to filesystem factories.
package registry

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/chronicleprotocol/go-vfs/ioproto"
	"github.com/chronicleprotocol/go-vfs/uri"
)

// Registry maps lower-case schemes to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ioproto.Factory
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{factories: make(map[string]ioproto.Factory)}
}

// Register registers the factory for the scheme, replacing any existing
// registration. The scheme is matched case-insensitively.
func (r *Registry) Register(scheme string, factory ioproto.Factory) error {
	if !uri.ValidScheme(scheme) {
		return errInvalidSchemeFn(scheme)
	}
	if factory == nil {
		return errNilFactoryFn(scheme)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(scheme)] = factory
	return nil
}

// Unregister removes the scheme and reports whether it was registered.
func (r *Registry) Unregister(scheme string) bool {
	key := strings.ToLower(scheme)
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.factories[key]
	delete(r.factories, key)
	return ok
}

// Lookup returns the factory registered for the scheme. If there is none,
// the error wraps ErrNotFound.
func (r *Registry) Lookup(scheme string) (ioproto.Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[strings.ToLower(scheme)]
	if !ok {
		return nil, errNotFoundFn(scheme)
	}
	return f, nil
}

// Schemes returns the registered schemes in sorted order.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}

// Len returns the number of registered schemes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories)
}

var (
	ErrNotFound      = errors.New("registry: no filesystem registered")
	ErrInvalidScheme = errors.New("registry: invalid scheme")
)

func errNotFoundFn(scheme string) error {
	return fmt.Errorf("%w for scheme %q", ErrNotFound, scheme)
}

func errInvalidSchemeFn(scheme string) error {
	return fmt.Errorf("%w: %q", ErrInvalidScheme, scheme)
}

func errNilFactoryFn(scheme string) error {
	return fmt.Errorf("registry: nil factory for scheme %q", scheme)
}
