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

// Package errutil contains helpers for combining and inspecting errors.
package errutil

import (
	"errors"
	"strings"
)

// Append combines err with errs into a MultiError. Nil errors are skipped,
// and MultiErrors are flattened. If only one error remains it is returned
// as is; if none remain, Append returns nil.
func Append(err error, errs ...error) error {
	var mErr MultiError
	for _, e := range append([]error{err}, errs...) {
		if e == nil {
			continue
		}
		// Type assertion instead of errors.As, so wrapped MultiErrors stay
		// wrapped.
		if m, ok := e.(MultiError); ok {
			mErr = append(mErr, m...)
			continue
		}
		mErr = append(mErr, e)
	}
	switch len(mErr) {
	case 0:
		return nil
	case 1:
		return mErr[0]
	default:
		return mErr
	}
}

// MultiError is a collection of errors.
type MultiError []error

// Error implements the error interface.
func (m MultiError) Error() string {
	if len(m) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("following errors occurred: [")
	for i, err := range m {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(err.Error())
	}
	b.WriteString("]")
	return b.String()
}

// Unwrap returns the collected errors, so errors.Is and errors.As inspect
// all of them.
func (m MultiError) Unwrap() []error {
	return m
}

// As extracts the first error of type T from err's tree.
func As[T error](err error) (target T, ok bool) {
	ok = errors.As(err, &target)
	return
}
