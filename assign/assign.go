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

// Package assign implements the alias table used to resolve URLs before they
// are routed to a filesystem.
//
// An assign maps an alias token such as "res:" to a URL prefix such as
// "file:///srv/data/". A URL whose scheme equals the alias is resolved by
// replacing the alias with the prefix. Resolution performs at most one
// substitution, so assigns never chain and cannot form cycles.
package assign

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/chronicleprotocol/go-vfs/uri"
)

// Table maps alias tokens to URL prefixes.
type Table struct {
	mu      sync.RWMutex
	assigns map[string]string
}

// New returns an empty table.
func New() *Table {
	return &Table{assigns: make(map[string]string)}
}

// Set registers an alias. The alias must be a scheme token followed by a
// colon, e.g. "res:". An existing alias is overwritten.
//
// The prefix is not validated. If it is malformed, URLs resolved through the
// alias are invalid.
func (t *Table) Set(alias, prefix string) error {
	key, err := normalize(alias)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.assigns[key] = prefix
	return nil
}

// Lookup returns the prefix registered for the alias.
func (t *Table) Lookup(alias string) (string, bool) {
	key, err := normalize(alias)
	if err != nil {
		return "", false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.assigns[key]
	return p, ok
}

// Remove deletes the alias and reports whether it was present.
func (t *Table) Remove(alias string) bool {
	key, err := normalize(alias)
	if err != nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.assigns[key]
	delete(t.assigns, key)
	return ok
}

// Len returns the number of registered aliases.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.assigns)
}

// Resolve substitutes the alias matching the URL scheme, if any.
//
// The remainder of the original text after "scheme:" is appended to the
// prefix and the result is parsed again. The returned URL is not resolved
// any further. Invalid URLs are returned unchanged.
func (t *Table) Resolve(u uri.URL) uri.URL {
	if !u.IsValid() {
		return u
	}
	t.mu.RLock()
	prefix, ok := t.assigns[u.Scheme()+":"]
	t.mu.RUnlock()
	if !ok {
		return u
	}
	return uri.Parse(prefix + u.Remainder())
}

func normalize(alias string) (string, error) {
	name, ok := strings.CutSuffix(alias, ":")
	if !ok || !uri.ValidScheme(name) {
		return "", errInvalidAliasFn(alias)
	}
	return strings.ToLower(name) + ":", nil
}

// ErrInvalidAlias is returned by Set for an alias that is not a scheme token
// followed by a colon.
var ErrInvalidAlias = errors.New("assign: invalid alias")

func errInvalidAliasFn(alias string) error {
	return fmt.Errorf("%w: %q", ErrInvalidAlias, alias)
}
