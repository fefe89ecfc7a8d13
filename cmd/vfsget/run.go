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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/chronicleprotocol/go-vfs/config"
	"github.com/chronicleprotocol/go-vfs/iofacade"
	"github.com/chronicleprotocol/go-vfs/ioproto"
	"github.com/chronicleprotocol/go-vfs/stream"
	"github.com/chronicleprotocol/go-vfs/uri"
)

// defaultConfig is used when no configuration file is given.
const defaultConfig = `
filesystem "file" {
  type = "file"
}

filesystem "http" {
  type     = "http"
  attempts = 3
}

filesystem "https" {
  type     = "http"
  attempts = 3
}

filesystem "ipfs" {
  type = "ipfs"
}
`

func run(cCtx *cli.Context) error {
	if cCtx.NArg() == 0 {
		return errors.New("at least one URL is required")
	}
	logger := newLogger(cCtx.Bool(logJSONFlag.Name), cCtx.Bool(logDebugFlag.Name))

	var (
		cfg *config.Config
		err error
	)
	if path := cCtx.String(configFlag.Name); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.Parse([]byte(defaultConfig), "default.hcl")
	}
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cCtx.Context)
	defer cancel()

	fcfg, err := cfg.Build(ctx, logger)
	if err != nil {
		return err
	}
	for _, a := range cCtx.StringSlice(assignFlag.Name) {
		alias, prefix, ok := strings.Cut(a, "=")
		if !ok {
			return fmt.Errorf("invalid assign %q, expected alias=prefix", a)
		}
		fcfg.Assigns[alias] = prefix
	}

	f := iofacade.New(iofacade.WithLogger(logger))
	if err := f.Setup(fcfg); err != nil {
		return err
	}
	defer f.Discard()

	return fetch(ctx, f, os.Stdout, cCtx.Args().Slice(), request{
		offset:  cCtx.Int64(offsetFlag.Name),
		length:  cCtx.Int64(lengthFlag.Name),
		timeout: cCtx.Duration(timeoutFlag.Name),
	})
}

type request struct {
	offset  int64
	length  int64
	timeout time.Duration
}

// fetch submits all URLs at once, then writes the results to w in the
// order the URLs were given. It stops at the first failed request.
func fetch(ctx context.Context, f *iofacade.IO, w io.Writer, urls []string, req request) error {
	msgs := make([]ioproto.Message, len(urls))
	for i, s := range urls {
		u := uri.Parse(s)
		if req.offset == 0 && req.length == 0 {
			msgs[i] = f.LoadFile(u)
		} else {
			msgs[i] = f.LoadFileRange(u, req.offset, req.length)
		}
	}
	for i, msg := range msgs {
		if err := wait(ctx, f, msg, req.timeout); err != nil {
			return fmt.Errorf("%s: %w", urls[i], err)
		}
		if msg.Status() != ioproto.StatusOK {
			if msg.Err() != nil {
				return fmt.Errorf("%s: %s: %w", urls[i], msg.Status(), msg.Err())
			}
			return fmt.Errorf("%s: %s", urls[i], msg.Status())
		}
		b, err := stream.ReadAll(msg.Stream())
		if err != nil {
			return fmt.Errorf("%s: %w", urls[i], err)
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	return nil
}

func wait(ctx context.Context, f *iofacade.IO, msg ioproto.Message, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return f.Wait(ctx, msg)
}

func newLogger(json, debug bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelWarn}
	if debug {
		opts.Level = slog.LevelDebug
	}
	if json {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
