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

// Package retry implements a context-aware retry loop.
package retry

import (
	"context"
	"errors"
	"time"
)

// Do calls f until it returns nil, returns an error marked with Permanent,
// has been called attempts times, or ctx is done. Between calls it waits for
// delay. If attempts is negative, Do tries until ctx is done; zero is
// treated as one.
//
// The returned error is the last error returned by f, unwrapped from
// Permanent, or ctx.Err() if the context ended first.
func Do(ctx context.Context, attempts int, delay time.Duration, f func(context.Context) error) error {
	_, err := Do1(ctx, attempts, delay, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, f(ctx)
	})
	return err
}

// Do1 is like Do for functions that return a value. The value of the last
// call is returned.
func Do1[T any](ctx context.Context, attempts int, delay time.Duration, f func(context.Context) (T, error)) (res T, err error) {
	if attempts == 0 {
		attempts = 1
	}
	for i := 0; attempts < 0 || i < attempts; i++ {
		if i > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
			case <-t.C:
			}
			t.Stop()
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res, err = f(ctx)
		if err == nil {
			return res, nil
		}
		var p *permanent
		if errors.As(err, &p) {
			return res, p.err
		}
	}
	return res, err
}

// Permanent wraps err so that Do stops retrying. Permanent(nil) is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

type permanent struct{ err error }

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }
