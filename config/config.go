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

// Package config loads the IO facade configuration from HCL files.
//
// Example:
//
//	variables {
//	  root = env("DATA_ROOT")
//	}
//
//	io {
//	  drain_timeout = "5s"
//	}
//
//	assign "res:" {
//	  prefix = "file://${var.root}/"
//	}
//
//	filesystem "file" {
//	  type = "file"
//	}
//
//	filesystem "https" {
//	  type     = "http"
//	  workers  = 4
//	  attempts = 3
//	}
//
// Expressions can use the functions env, semver, lower, upper and format.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/chronicleprotocol/go-vfs/fsutil"
	"github.com/chronicleprotocol/go-vfs/iofacade"
	"github.com/chronicleprotocol/go-vfs/ioproto"
	"github.com/chronicleprotocol/go-vfs/uri"
)

// Filesystem types.
const (
	TypeFile   = "file"
	TypeMemory = "memory"
	TypeHTTP   = "http"
	TypeIPFS   = "ipfs"
	TypeS3     = "s3"
)

// Config is the root of the configuration file.
type Config struct {
	IO          *IO          `hcl:"io,block"`
	Assigns     []Assign     `hcl:"assign,block"`
	FileSystems []FileSystem `hcl:"filesystem,block"`
}

// IO configures the facade.
type IO struct {
	DrainTimeout string `hcl:"drain_timeout,optional"`
	PollInterval string `hcl:"poll_interval,optional"`
}

// Assign maps an alias such as "res:" to a URL prefix.
type Assign struct {
	Alias  string `hcl:"alias,label"`
	Prefix string `hcl:"prefix"`
}

// FileSystem configures the provider registered for a scheme. Which
// attributes apply depends on Type.
type FileSystem struct {
	Scheme string `hcl:"scheme,label"`
	Type   string `hcl:"type"`

	// Common.
	Workers        int    `hcl:"workers,optional"`
	Decompress     bool   `hcl:"decompress,optional"`
	VerifyChecksum bool   `hcl:"verify_checksum,optional"`
	Attempts       int    `hcl:"attempts,optional"`
	RetryDelay     string `hcl:"retry_delay,optional"`

	// file
	Root string `hcl:"root,optional"`

	// memory
	Files map[string]string `hcl:"files,optional"`

	// http, ipfs
	Timeout  string   `hcl:"timeout,optional"`
	Gateways []string `hcl:"gateways,optional"`

	// s3
	Endpoint  string `hcl:"endpoint,optional"`
	Bucket    string `hcl:"bucket,optional"`
	Prefix    string `hcl:"prefix,optional"`
	AccessKey string `hcl:"access_key,optional"`
	SecretKey string `hcl:"secret_key,optional"`
	UseSSL    bool   `hcl:"use_ssl,optional"`
}

// Load reads and decodes the configuration file at path.
func Load(path string) (*Config, error) {
	file, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, errConfigFn(diags)
	}
	return decode(file.Body)
}

// Parse decodes configuration from src. The filename is used in
// diagnostics.
func Parse(src []byte, filename string) (*Config, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, errConfigFn(diags)
	}
	return decode(file.Body)
}

func decode(body hcl.Body) (*Config, error) {
	ctx := &hcl.EvalContext{Functions: functions()}
	body, diags := variables(ctx, body)
	if diags.HasErrors() {
		return nil, errConfigFn(diags)
	}
	var cfg Config
	if diags := gohcl.DecodeBody(body, ctx, &cfg); diags.HasErrors() {
		return nil, errConfigFn(diags)
	}
	return &cfg, nil
}

// Build validates the configuration and converts it to a facade
// configuration. Network requests made by the providers are bound to ctx.
func (c *Config) Build(ctx context.Context, logger *slog.Logger) (iofacade.Config, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var (
		res iofacade.Config
		err error
	)
	if c.IO != nil {
		if res.DrainTimeout, err = duration("io.drain_timeout", c.IO.DrainTimeout); err != nil {
			return res, errConfigFn(err)
		}
		if res.PollInterval, err = duration("io.poll_interval", c.IO.PollInterval); err != nil {
			return res, errConfigFn(err)
		}
	}
	res.Assigns = make(map[string]string, len(c.Assigns))
	for _, a := range c.Assigns {
		alias := strings.ToLower(a.Alias)
		if _, ok := res.Assigns[alias]; ok {
			return res, errConfigFn(fmt.Errorf("duplicate assign %q", a.Alias))
		}
		res.Assigns[alias] = a.Prefix
	}
	res.FileSystems = make(map[string]ioproto.Factory, len(c.FileSystems))
	for i := range c.FileSystems {
		fs := &c.FileSystems[i]
		if !uri.ValidScheme(fs.Scheme) {
			return res, errConfigFn(fmt.Errorf("invalid scheme %q", fs.Scheme))
		}
		scheme := strings.ToLower(fs.Scheme)
		if _, ok := res.FileSystems[scheme]; ok {
			return res, errConfigFn(fmt.Errorf("duplicate filesystem %q", fs.Scheme))
		}
		factory, err := fs.factory(ctx, logger.With("filesystem", scheme))
		if err != nil {
			return res, errConfigFn(fmt.Errorf("filesystem %q: %w", fs.Scheme, err))
		}
		res.FileSystems[scheme] = factory
	}
	return res, nil
}

func (fs *FileSystem) factory(ctx context.Context, logger *slog.Logger) (ioproto.Factory, error) {
	if fs.Workers < 0 {
		return nil, fmt.Errorf("invalid number of workers: %d", fs.Workers)
	}
	retryDelay, err := duration("retry_delay", fs.RetryDelay)
	if err != nil {
		return nil, err
	}
	if retryDelay == 0 {
		retryDelay = time.Second
	}
	newProto, err := fs.protoFunc()
	if err != nil {
		return nil, err
	}
	wrapped := func(ctx context.Context) (fsutil.Protocol, error) {
		p, err := newProto(ctx)
		if err != nil {
			return nil, err
		}
		if fs.VerifyChecksum {
			p = fsutil.NewChecksumProto(p)
		}
		if fs.Decompress {
			p = fsutil.NewGzipProto(p)
		}
		if fs.Attempts > 1 {
			p = fsutil.NewRetryProto(ctx, p, fs.Attempts, retryDelay)
		}
		return p, nil
	}
	return fsutil.Factory(ctx, fs.Scheme, wrapped,
		fsutil.WithWorkers(fs.Workers),
		fsutil.WithLogger(logger),
	), nil
}

// protoFunc returns the base protocol of the file system type.
func (fs *FileSystem) protoFunc() (fsutil.ProtoFunc, error) {
	switch fs.Type {
	case TypeFile:
		return fsutil.Static(fsutil.NewFileProto(fsutil.WithFileRoot(fs.Root))), nil
	case TypeMemory:
		m := fsutil.NewMemoryFS()
		for name, data := range fs.Files {
			if err := m.WriteFile(name, []byte(data)); err != nil {
				return nil, err
			}
		}
		return fsutil.Static(fsutil.NewMemoryProto(m)), nil
	case TypeHTTP:
		client, err := fs.httpClient()
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (fsutil.Protocol, error) {
			return fsutil.NewHTTPProto(ctx, fsutil.WithHTTPClient(client)), nil
		}, nil
	case TypeIPFS:
		client, err := fs.httpClient()
		if err != nil {
			return nil, err
		}
		opts := []fsutil.IPFSOption{fsutil.WithIPFSHTTPClient(client)}
		if len(fs.Gateways) > 0 {
			gateways := make([]*fsutil.IPFSGateway, 0, len(fs.Gateways))
			for _, g := range fs.Gateways {
				gw, err := fsutil.ParseIPFSGateway(g)
				if err != nil {
					return nil, err
				}
				gateways = append(gateways, gw)
			}
			opts = append(opts, fsutil.WithIPFSGateways(gateways...))
		}
		return func(ctx context.Context) (fsutil.Protocol, error) {
			return fsutil.NewIPFSProto(ctx, opts...), nil
		}, nil
	case TypeS3:
		s3 := fsutil.S3Config{
			Endpoint:  fs.Endpoint,
			AccessKey: fs.AccessKey,
			SecretKey: fs.SecretKey,
			UseSSL:    fs.UseSSL,
			Bucket:    fs.Bucket,
			Prefix:    fs.Prefix,
		}
		// Validate eagerly, so that configuration errors are reported by
		// Build rather than by the first request.
		if _, err := fsutil.NewS3Proto(context.Background(), s3); err != nil {
			return nil, err
		}
		return func(ctx context.Context) (fsutil.Protocol, error) {
			return fsutil.NewS3Proto(ctx, s3)
		}, nil
	case "":
		return nil, errors.New("missing type")
	default:
		return nil, fmt.Errorf("unknown type %q", fs.Type)
	}
}

func (fs *FileSystem) httpClient() (*http.Client, error) {
	timeout, err := duration("timeout", fs.Timeout)
	if err != nil {
		return nil, err
	}
	return &http.Client{Timeout: timeout}, nil
}

// duration parses s, an empty string yields zero.
func duration(name, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: negative duration", name)
	}
	return d, nil
}

func errConfigFn(err error) error {
	return fmt.Errorf("config: %w", err)
}
