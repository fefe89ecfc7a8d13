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

// Package iofacade implements the IO facade: the entry point that resolves
// resource URLs through assigns, routes requests to filesystem providers by
// URL scheme and completes them through a cooperative scheduling loop.
//
// Typical use:
//
//	io := iofacade.New()
//	if err := io.Setup(iofacade.Config{}); err != nil {
//		...
//	}
//	defer io.Discard()
//	io.RegisterFileSystem("file", fsutil.Factory(ctx, "file", fsutil.Static(fsutil.NewFileProto())))
//	io.SetAssign("res:", "file:///srv/data/")
//	msg := io.LoadFile(uri.Parse("res:config.json"))
//	for !msg.Handled() {
//		io.Tick()
//	}
//
// LoadFile and LoadFileRange never block. The caller learns about the
// outcome by polling the message while ticking the loop, by calling Wait, or
// through callbacks registered with OnComplete.
package iofacade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chronicleprotocol/go-vfs/assign"
	"github.com/chronicleprotocol/go-vfs/ioproto"
	"github.com/chronicleprotocol/go-vfs/registry"
	"github.com/chronicleprotocol/go-vfs/runloop"
	"github.com/chronicleprotocol/go-vfs/uri"
)

const (
	defaultDrainTimeout = 5 * time.Second
	defaultPollInterval = time.Millisecond
)

// Config is passed to Setup.
type Config struct {
	// Assigns are registered during Setup, keyed by alias.
	Assigns map[string]string

	// FileSystems are registered during Setup, keyed by scheme.
	FileSystems map[string]ioproto.Factory

	// DrainTimeout limits how long Discard waits for pending requests
	// before abandoning them. Default: 5s.
	DrainTimeout time.Duration

	// PollInterval is how long Wait and Discard sleep after a tick that
	// completed nothing. Default: 1ms.
	PollInterval time.Duration
}

type Option func(*IO)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *IO) {
		f.log = logger
	}
}

// WithLoop makes the facade queue its requests on an existing loop, so that
// one loop can drive several facades or other work. By default every facade
// owns a private loop.
func WithLoop(loop *runloop.Loop) Option {
	return func(f *IO) {
		f.loop = loop
	}
}

// IO is the facade. All methods other than New panic if called outside a
// Setup/Discard bracket.
type IO struct {
	log  *slog.Logger
	loop *runloop.Loop

	mu       sync.Mutex
	valid    bool
	cfg      Config
	assigns  *assign.Table
	registry *registry.Registry
	mounts   map[string]*mount
	retired  []*mount
	pending  int
	reaperID int
}

// mount is a filesystem instance owned by the facade.
type mount struct {
	scheme    string
	fs        ioproto.Filesystem
	transient bool
	pending   int
}

// New creates a facade. It must be set up before use.
func New(opts ...Option) *IO {
	f := &IO{}
	for _, opt := range opts {
		opt(f)
	}
	if f.log == nil {
		f.log = slog.New(slog.DiscardHandler)
	}
	if f.loop == nil {
		f.loop = runloop.New(runloop.WithLogger(f.log))
	}
	return f
}

// Setup initializes empty assign and filesystem tables and registers the
// ones listed in cfg. Calling Setup on a facade that is already set up
// panics. If cfg contains an invalid entry, an error is returned and the
// facade stays uninitialized.
func (f *IO) Setup(cfg Config) error {
	if f.IsValid() {
		panic(errAlreadySetup)
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	assigns := assign.New()
	for alias, prefix := range cfg.Assigns {
		if err := assigns.Set(alias, prefix); err != nil {
			return errSetupFn(err)
		}
	}
	reg := registry.New()
	for scheme, factory := range cfg.FileSystems {
		if err := reg.Register(scheme, factory); err != nil {
			return errSetupFn(err)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.valid {
		panic(errAlreadySetup)
	}
	f.valid = true
	f.cfg = cfg
	f.assigns = assigns
	f.registry = reg
	f.mounts = make(map[string]*mount)
	f.retired = nil
	f.pending = 0
	f.reaperID = f.loop.Add(f.reap)
	f.log.Debug("IO setup",
		"assigns", assigns.Len(),
		"filesystems", reg.Schemes())
	return nil
}

// IsValid reports whether the facade is set up.
func (f *IO) IsValid() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.valid
}

// Discard tears the facade down. It ticks the loop until all pending
// requests are handled or the drain timeout expires, abandons whatever is
// left, closes every filesystem instance and drops all assigns and
// registrations.
//
// Discard must not be called from within a tick, e.g. from an OnComplete
// callback.
func (f *IO) Discard() {
	f.mustBeValid("Discard")

	ctx, cancel := context.WithTimeout(context.Background(), f.cfg.DrainTimeout)
	err := f.loop.RunUntil(ctx, func() bool { return f.Pending() == 0 }, f.cfg.PollInterval)
	cancel()
	if err != nil {
		f.abandon()
	}

	f.mu.Lock()
	f.loop.Remove(f.reaperID)
	closing := f.retired
	for _, m := range f.mounts {
		closing = append(closing, m)
	}
	f.valid = false
	f.assigns = nil
	f.registry = nil
	f.mounts = nil
	f.retired = nil
	f.mu.Unlock()

	f.close(closing...)
	f.log.Debug("IO discarded")
}

// RegisterFileSystem registers a factory for the scheme, replacing any
// previous registration. An instance created by a replaced factory is
// closed once its pending requests are handled.
func (f *IO) RegisterFileSystem(scheme string, factory ioproto.Factory) error {
	f.mustBeValid("RegisterFileSystem")
	if err := f.registry.Register(scheme, factory); err != nil {
		return err
	}
	f.retire(scheme)
	return nil
}

// UnregisterFileSystem removes the scheme. Requests already queued for it
// still run; the instance serving them is closed afterwards.
func (f *IO) UnregisterFileSystem(scheme string) bool {
	f.mustBeValid("UnregisterFileSystem")
	ok := f.registry.Unregister(scheme)
	f.retire(scheme)
	return ok
}

// Schemes returns the registered schemes.
func (f *IO) Schemes() []string {
	f.mustBeValid("Schemes")
	return f.registry.Schemes()
}

// SetAssign registers an alias, e.g. SetAssign("res:", "file:///srv/").
func (f *IO) SetAssign(alias, prefix string) error {
	f.mustBeValid("SetAssign")
	return f.assigns.Set(alias, prefix)
}

// LookupAssign returns the prefix registered for the alias.
func (f *IO) LookupAssign(alias string) (string, bool) {
	f.mustBeValid("LookupAssign")
	return f.assigns.Lookup(alias)
}

// ResolveAssigns returns u with its alias, if any, substituted.
func (f *IO) ResolveAssigns(u uri.URL) uri.URL {
	f.mustBeValid("ResolveAssigns")
	return f.assigns.Resolve(u)
}

// LoadFile requests the whole content of the resource at u.
//
// If the request cannot be routed, the returned message is already handled
// with StatusInvalidURL, StatusNoFileSystem or StatusFailed. Otherwise it is
// queued and handled during a later tick.
func (f *IO) LoadFile(u uri.URL) *ioproto.Get {
	f.mustBeValid("LoadFile")
	msg := ioproto.NewGet(f.assigns.Resolve(u))
	f.submit(u, msg)
	return msg
}

// LoadFileRange requests length bytes starting at offset from the resource
// at u. A length of zero requests everything up to the end. Negative values
// fail the request immediately.
func (f *IO) LoadFileRange(u uri.URL, offset, length int64) *ioproto.GetRange {
	f.mustBeValid("LoadFileRange")
	msg := ioproto.NewGetRange(f.assigns.Resolve(u), offset, length)
	if offset < 0 || length < 0 {
		f.fail(msg, ioproto.StatusFailed, errInvalidRangeFn(offset, length))
		return msg
	}
	f.submit(u, msg)
	return msg
}

// Tick advances the scheduling loop once and returns the number of tasks it
// completed.
func (f *IO) Tick() int {
	f.mustBeValid("Tick")
	return f.loop.Tick()
}

// Wait ticks the loop on the calling goroutine until the completion of msg
// has been observed by the loop, or until ctx is done. It returns ctx.Err()
// in the latter case; a provider that never completes a message is detected
// this way.
func (f *IO) Wait(ctx context.Context, msg ioproto.Message) error {
	f.mustBeValid("Wait")
	observed := false
	msg.OnComplete(func(ioproto.Message) { observed = true })
	return f.loop.RunUntil(ctx, func() bool { return observed }, f.cfg.PollInterval)
}

// Pending returns the number of queued requests whose completion has not
// been observed yet.
func (f *IO) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

func (f *IO) submit(orig uri.URL, msg ioproto.Message) {
	u := msg.URL()
	if !u.IsValid() {
		f.fail(msg, ioproto.StatusInvalidURL, errInvalidURLFn(orig, u))
		return
	}
	m, err := f.acquire(u.Scheme(), msg.Kind())
	if err != nil {
		status := ioproto.StatusFailed
		if errors.Is(err, registry.ErrNotFound) {
			status = ioproto.StatusNoFileSystem
		}
		f.fail(msg, status, err)
		return
	}
	f.log.Debug("Request queued",
		"id", msg.ID(),
		"kind", msg.Kind(),
		"url", u.String(),
		"filesystem", m.fs.Name())
	f.loop.Enqueue(&request{io: f, msg: msg, mount: m})
}

// fail completes msg without dispatching it.
func (f *IO) fail(msg ioproto.Message, status ioproto.Status, err error) {
	_ = msg.Complete(status, nil, err)
	msg.Notify()
	f.log.Debug("Request failed",
		"id", msg.ID(),
		"url", msg.URL().String(),
		"status", status,
		"err", err)
}

// acquire returns the filesystem instance serving the scheme, creating it if
// needed, and counts one more pending request on it.
func (f *IO) acquire(scheme string, kind ioproto.Kind) (*mount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.mounts[scheme]
	if !ok {
		factory, err := f.registry.Lookup(scheme)
		if err != nil {
			return nil, err
		}
		fs, err := factory()
		if err != nil {
			return nil, errFactoryFn(scheme, err)
		}
		if fs == nil {
			return nil, errFactoryFn(scheme, errNilFilesystem)
		}
		m = &mount{scheme: scheme, fs: fs, transient: ioproto.IsTransient(fs)}
		if !m.transient {
			f.mounts[scheme] = m
		}
	}
	if !ioproto.Supports(m.fs, kind) {
		if m.transient {
			f.close(m)
		}
		return nil, errUnsupportedFn(m.fs, kind)
	}
	m.pending++
	f.pending++
	return m, nil
}

// release is called on the loop goroutine when a request completes.
func (f *IO) release(m *mount) {
	f.mu.Lock()
	m.pending--
	f.pending--
	f.mu.Unlock()
	if m.transient {
		f.close(m)
	}
}

// retire detaches the cached instance of the scheme. It is closed by reap
// once it has no pending requests.
func (f *IO) retire(scheme string) {
	key := strings.ToLower(scheme)
	f.mu.Lock()
	if m, ok := f.mounts[key]; ok {
		delete(f.mounts, key)
		f.retired = append(f.retired, m)
	}
	f.mu.Unlock()
	f.reap()
}

// reap closes retired instances without pending requests. It runs at the
// end of every tick.
func (f *IO) reap() {
	f.mu.Lock()
	var idle []*mount
	retired := f.retired[:0]
	for _, m := range f.retired {
		if m.pending == 0 {
			idle = append(idle, m)
		} else {
			retired = append(retired, m)
		}
	}
	f.retired = retired
	f.mu.Unlock()
	f.close(idle...)
}

// abandon drops this facade's requests from the loop. Their messages stay
// unhandled forever, unless they were completed after the last tick, in
// which case they are completed normally. Transient instances serving
// abandoned requests are closed.
func (f *IO) abandon() {
	tasks := f.loop.Abandon(func(t runloop.Task) bool {
		r, ok := t.(*request)
		return ok && r.io == f
	})
	for _, t := range tasks {
		r := t.(*request)
		if !r.msg.Abandon() {
			// Completed after the last drain tick. Complete may still be
			// publishing the outcome.
			for !r.msg.Handled() {
				runtime.Gosched()
			}
			r.Complete()
			continue
		}
		f.mu.Lock()
		r.mount.pending--
		f.pending--
		f.mu.Unlock()
		if r.mount.transient {
			f.close(r.mount)
		}
		f.log.Warn("Request abandoned",
			"id", r.msg.ID(),
			"url", r.msg.URL().String(),
			"filesystem", r.mount.fs.Name())
	}
}

func (f *IO) close(ms ...*mount) {
	if err := closeMounts(ms...); err != nil {
		f.log.Error("Failed to close filesystem", "err", err)
	}
}

func (f *IO) mustBeValid(op string) {
	f.mu.Lock()
	valid := f.valid
	f.mu.Unlock()
	if !valid {
		panic(errNotSetupFn(op))
	}
}

var (
	errAlreadySetup  = errors.New("iofacade: Setup called twice")
	errNilFilesystem = errors.New("factory returned nil filesystem")

	// ErrInvalidURL is wrapped by the error of messages failed with
	// StatusInvalidURL.
	ErrInvalidURL = errors.New("iofacade: invalid url")

	// ErrInvalidRange is wrapped by the error of GetRange messages with a
	// negative offset or length.
	ErrInvalidRange = errors.New("iofacade: invalid range")
)

func errNotSetupFn(op string) error {
	return fmt.Errorf("iofacade: %s called before Setup", op)
}

func errSetupFn(err error) error {
	return fmt.Errorf("iofacade: setup: %w", err)
}

func errInvalidURLFn(orig, resolved uri.URL) error {
	if orig.Raw() == resolved.Raw() {
		return fmt.Errorf("%w: %q", ErrInvalidURL, orig.Raw())
	}
	return fmt.Errorf("%w: %q resolved to %q", ErrInvalidURL, orig.Raw(), resolved.Raw())
}

func errInvalidRangeFn(offset, length int64) error {
	return fmt.Errorf("%w: offset %d, length %d", ErrInvalidRange, offset, length)
}

func errFactoryFn(scheme string, err error) error {
	return fmt.Errorf("iofacade: creating filesystem for scheme %q: %w", scheme, err)
}

func errUnsupportedFn(fs ioproto.Filesystem, kind ioproto.Kind) error {
	return fmt.Errorf("%w: %s does not handle %s", ioproto.ErrUnsupported, fs.Name(), kind)
}
