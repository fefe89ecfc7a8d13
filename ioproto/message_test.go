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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronicleprotocol/go-vfs/stream"
	"github.com/chronicleprotocol/go-vfs/uri"
)

func TestMessageComplete(t *testing.T) {
	u := uri.Parse("test://host/file.txt")
	msg := NewGet(u)
	assert.Equal(t, KindGet, msg.Kind())
	assert.True(t, u.Equal(msg.URL()))
	assert.False(t, msg.Handled())
	assert.Equal(t, StatusNone, msg.Status())
	assert.Nil(t, msg.Stream())

	s := stream.NewMemory([]byte("data"))
	require.NoError(t, msg.Complete(StatusOK, s, nil))
	assert.True(t, msg.Handled())
	assert.Equal(t, StatusOK, msg.Status())
	assert.Same(t, s, msg.Stream())
	assert.NoError(t, msg.Err())

	// Later completions are rejected and change nothing.
	require.ErrorIs(t, msg.Complete(StatusNotFound, nil, nil), ErrAlreadyHandled)
	assert.Equal(t, StatusOK, msg.Status())
	assert.Same(t, s, msg.Stream())
}

func TestMessageCompleteNormalization(t *testing.T) {
	tests := []struct {
		name       string
		status     Status
		stream     stream.Stream
		wantStatus Status
		wantStream bool
		wantErr    error
	}{
		{name: "ok with stream", status: StatusOK, stream: stream.NewMemory(nil), wantStatus: StatusOK, wantStream: true},
		{name: "ok without stream", status: StatusOK, wantStatus: StatusFailed, wantErr: ErrMissingStream},
		{name: "none", status: StatusNone, wantStatus: StatusFailed, wantErr: ErrNoStatus},
		{name: "failure drops stream", status: StatusNotFound, stream: stream.NewMemory(nil), wantStatus: StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := NewGetRange(uri.Parse("test://host/x"), 10, 20)
			require.NoError(t, msg.Complete(tt.status, tt.stream, nil))
			assert.Equal(t, tt.wantStatus, msg.Status())
			assert.Equal(t, tt.wantStream, msg.Stream() != nil)
			if tt.wantErr != nil {
				assert.ErrorIs(t, msg.Err(), tt.wantErr)
			}
			assert.Equal(t, int64(10), msg.Offset())
			assert.Equal(t, int64(20), msg.Length())
		})
	}
}

func TestMessageCompleteOnce(t *testing.T) {
	msg := NewGet(uri.Parse("test://host/x"))
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if msg.Complete(StatusOK, stream.NewMemory(nil), nil) == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
	assert.True(t, msg.Handled())
}

func TestMessageAbandon(t *testing.T) {
	msg := NewGet(uri.Parse("test://host/x"))
	require.True(t, msg.Abandon())
	require.ErrorIs(t, msg.Complete(StatusOK, stream.NewMemory(nil), nil), ErrAbandoned)
	assert.False(t, msg.Handled())

	done := NewGet(uri.Parse("test://host/y"))
	require.NoError(t, done.Complete(StatusFailed, nil, nil))
	assert.False(t, done.Abandon())
	assert.True(t, done.Handled())
}

func TestMessageOnComplete(t *testing.T) {
	msg := NewGet(uri.Parse("test://host/x"))
	var calls []string
	msg.OnComplete(func(m Message) {
		assert.Same(t, msg, m)
		calls = append(calls, "first")
	})

	// Not handled yet, nothing happens.
	msg.Notify()
	assert.Empty(t, calls)

	require.NoError(t, msg.Complete(StatusFailed, nil, nil))
	msg.Notify()
	msg.Notify()
	assert.Equal(t, []string{"first"}, calls)

	msg.OnComplete(func(Message) { calls = append(calls, "late") })
	assert.Equal(t, []string{"first", "late"}, calls)
}

type getOnlyFS struct{ panic bool }

func (f *getOnlyFS) Name() string { return "get-only" }

func (f *getOnlyFS) HandleGet(msg *Get) {
	if f.panic {
		panic("boom")
	}
	_ = msg.Complete(StatusOK, stream.NewMemory([]byte(msg.URL().String())), nil)
}

type transientFS struct{ getOnlyFS }

func (transientFS) Transient() bool { return true }

func TestDispatch(t *testing.T) {
	f := &getOnlyFS{}
	assert.True(t, Supports(f, KindGet))
	assert.False(t, Supports(f, KindGetRange))

	get := NewGet(uri.Parse("test://host/x"))
	require.NoError(t, Dispatch(f, get))
	assert.Equal(t, StatusOK, get.Status())

	rng := NewGetRange(uri.Parse("test://host/x"), 0, 1)
	require.ErrorIs(t, Dispatch(f, rng), ErrUnsupported)
	assert.False(t, rng.Handled())
}

func TestDispatchPanic(t *testing.T) {
	get := NewGet(uri.Parse("test://host/x"))
	err := Dispatch(&getOnlyFS{panic: true}, get)
	require.Error(t, err)
	assert.True(t, get.Handled())
	assert.Equal(t, StatusFailed, get.Status())
	assert.Contains(t, get.Err().Error(), "boom")
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(&getOnlyFS{}))
	assert.True(t, IsTransient(&transientFS{}))
}
