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

// Package runloop implements a single-threaded, cooperative scheduling loop.
//
// The loop has no goroutines of its own. The owner advances it by calling
// Tick, typically once per frame or iteration of its main loop. Each tick
// dispatches the tasks queued before the tick started, polls every
// dispatched task for completion, completes the finished ones and finally
// runs the per-tick callbacks.
//
// Tasks may finish on other goroutines; Done is polled on the owner's
// goroutine and must be safe for that. Tick itself must not be called
// concurrently or from within a task or callback.
package runloop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Task is a unit of work driven by the loop.
type Task interface {
	// Dispatch starts the task. It is called once, on the first tick after
	// the task was enqueued.
	Dispatch()
	// Done reports whether the task finished. It is polled on every tick
	// after Dispatch, including the tick that dispatched it.
	Done() bool
	// Complete is called once, on the tick that first observed Done.
	Complete()
}

type Option func(*Loop)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.log = logger
	}
}

// Loop is a cooperative scheduling loop.
type Loop struct {
	log *slog.Logger

	mu        sync.Mutex
	queue     []Task
	inflight  []Task
	callbacks []callback
	nextID    int

	ticking atomic.Bool
	ticks   atomic.Uint64
}

type callback struct {
	id int
	fn func()
}

// New creates an empty loop.
func New(opts ...Option) *Loop {
	l := &Loop{}
	for _, opt := range opts {
		opt(l)
	}
	if l.log == nil {
		l.log = slog.New(slog.DiscardHandler)
	}
	return l
}

// Enqueue adds a task. It is dispatched on the next tick. Tasks enqueued
// while a tick is running are dispatched on the tick after it.
func (l *Loop) Enqueue(t Task) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queue = append(l.queue, t)
}

// Add registers fn to be called at the end of every tick and returns an id
// for Remove.
func (l *Loop) Add(fn func()) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	l.callbacks = append(l.callbacks, callback{id: l.nextID, fn: fn})
	return l.nextID
}

// Remove unregisters a per-tick callback.
func (l *Loop) Remove(id int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, cb := range l.callbacks {
		if cb.id == id {
			l.callbacks = append(l.callbacks[:i:i], l.callbacks[i+1:]...)
			return true
		}
	}
	return false
}

// Pending returns the number of tasks that are queued or dispatched but not
// completed.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue) + len(l.inflight)
}

// Ticks returns the number of ticks run so far.
func (l *Loop) Ticks() uint64 {
	return l.ticks.Load()
}

// Tick advances the loop once and returns the number of tasks completed.
func (l *Loop) Tick() int {
	if !l.ticking.CompareAndSwap(false, true) {
		panic(errReentrantTick)
	}
	defer l.ticking.Store(false)
	l.ticks.Inc()

	l.mu.Lock()
	batch := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, t := range batch {
		t.Dispatch()
	}

	l.mu.Lock()
	polled := make([]Task, 0, len(l.inflight)+len(batch))
	polled = append(polled, l.inflight...)
	polled = append(polled, batch...)
	l.mu.Unlock()

	var (
		done      []Task
		remaining = make([]Task, 0, len(polled))
	)
	for _, t := range polled {
		if t.Done() {
			done = append(done, t)
		} else {
			remaining = append(remaining, t)
		}
	}

	l.mu.Lock()
	l.inflight = remaining
	l.mu.Unlock()

	for _, t := range done {
		t.Complete()
	}

	l.mu.Lock()
	cbs := append([]callback(nil), l.callbacks...)
	l.mu.Unlock()
	for _, cb := range cbs {
		cb.fn()
	}

	if len(batch) > 0 || len(done) > 0 {
		l.log.Debug("Tick",
			"tick", l.ticks.Load(),
			"dispatched", len(batch),
			"completed", len(done),
			"inflight", len(remaining))
	}
	return len(done)
}

// RunUntil ticks the loop on the calling goroutine until cond returns true
// or ctx is done. When a tick completes no task, RunUntil waits for interval
// before ticking again.
func (l *Loop) RunUntil(ctx context.Context, cond func() bool, interval time.Duration) error {
	for {
		if cond() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if l.Tick() > 0 || interval <= 0 || cond() {
			continue
		}
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
		case <-t.C:
		}
		t.Stop()
	}
}

// Abandon removes the queued and dispatched tasks for which match returns
// true, without completing them, and returns them. A nil match removes all
// tasks.
func (l *Loop) Abandon(match func(Task) bool) []Task {
	if l.ticking.Load() {
		panic(errAbandonDuringTick)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var removed []Task
	keep := func(ts []Task) []Task {
		var kept []Task
		for _, t := range ts {
			if match == nil || match(t) {
				removed = append(removed, t)
			} else {
				kept = append(kept, t)
			}
		}
		return kept
	}
	l.inflight = keep(l.inflight)
	l.queue = keep(l.queue)
	return removed
}

var (
	errReentrantTick     = errors.New("runloop: Tick called concurrently or from within a tick")
	errAbandonDuringTick = errors.New("runloop: Abandon called from within a tick")
)
