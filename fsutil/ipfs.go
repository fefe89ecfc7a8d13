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

package fsutil

import (
	"context"
	"errors"
	"fmt"
	"hash"
	"io/fs"
	"net/http"
	netURL "net/url"

	"golang.org/x/crypto/sha3"

	"github.com/chronicleprotocol/go-vfs/uri"
)

type IPFSOption func(*ipfsFS)

// IPFSGateway describes an HTTP gateway. ResolveFn maps a CID to a
// function that builds the gateway URL of a path within that CID.
type IPFSGateway struct {
	Scheme    string
	Host      string
	ResolveFn func(cid string) func(f *httpFS, name string) (*netURL.URL, error)
}

// WithIPFSHTTPClient sets the HTTP client used to perform HTTP requests.
func WithIPFSHTTPClient(client *http.Client) IPFSOption {
	return func(c *ipfsFS) {
		c.client = client
	}
}

// WithIPFSGateways sets the IPFS gateways used to resolve IPFS paths.
func WithIPFSGateways(gateways ...*IPFSGateway) IPFSOption {
	return func(c *ipfsFS) {
		c.gateways = gateways
	}
}

// WithIPFSChecksumHash sets the hash function used to compute the checksum.
func WithIPFSChecksumHash(hash func() hash.Hash) IPFSOption {
	return func(c *ipfsFS) {
		c.checksumHash = hash
	}
}

// ParseIPFSGateway parses a gateway URL such as "https://ipfs.io". Gateways
// are addressed using path resolution.
func ParseIPFSGateway(s string) (*IPFSGateway, error) {
	u := uri.Parse(s)
	if err := validHTTPURL(u); err != nil {
		return nil, fmt.Errorf("fsutil: invalid IPFS gateway %q: %w", s, err)
	}
	return &IPFSGateway{Scheme: u.Scheme(), Host: u.Host(), ResolveFn: IPFSPathResolution}, nil
}

// NewIPFSProto creates a new IPFS protocol. URLs take the form
// "ipfs://<cid>/<path>".
func NewIPFSProto(ctx context.Context, opts ...IPFSOption) Protocol {
	return &ipfsProto{ctx: ctx, opts: opts}
}

type ipfsProto struct {
	ctx  context.Context
	opts []IPFSOption
}

// FileSystem implements the Protocol interface.
func (m *ipfsProto) FileSystem(u uri.URL) (fs fs.FS, path string, err error) {
	if err := validIPFSURL(u); err != nil {
		return nil, "", err
	}
	fs, err = NewIPFSFS(m.ctx, u.Host(), m.opts...)
	if err != nil {
		return nil, "", errIPFSProtoFn(err)
	}
	return fs, uriPath(u, true), nil
}

// NewIPFSFS creates a new IPFS filesystem.
//
// The IPFS filesystem uses IPFS gateways to resolve IPFS paths. To verify
// the integrity of the file contents and ensure that returned data is valid,
// an optional checksum hash can be provided as a "checksum" parameter in the URL.
//
// It is important to provide a checksum, as there is no guarantee that
// the data returned from IPFS gateways is valid. A misconfigured or malicious
// gateway could return a different or corrupted file.
func NewIPFSFS(ctx context.Context, cid string, opts ...IPFSOption) (fs.FS, error) {
	if cid == "" {
		return nil, errIPFSFSEmptyCID
	}
	i := &ipfsFS{}
	for _, opt := range opts {
		opt(i)
	}
	if i.client == nil {
		i.client = http.DefaultClient
	}
	if len(i.gateways) == 0 {
		i.gateways = ipfsGateways
	}
	if i.checksumHash == nil {
		i.checksumHash = sha3.NewLegacyKeccak256
	}
	cfs := &chainFS{rand: true}
	for _, gw := range i.gateways {
		cfs.fs = append(cfs.fs, &checksumFS{
			fs: &httpFS{
				ctx:     ctx,
				client:  i.client,
				baseURL: &netURL.URL{Scheme: gw.Scheme, Host: gw.Host},
				parseFn: gw.ResolveFn(cid),
			},
			hash:  i.checksumHash,
			param: "checksum",
			mode:  ChecksumFSVerifyAfterOpen,
		})
	}
	i.cfs = cfs
	return i, nil
}

type ipfsFS struct {
	client       *http.Client
	gateways     []*IPFSGateway
	checksumHash func() hash.Hash
	cfs          *chainFS
}

// Open implements the fs.FS interface.
func (h *ipfsFS) Open(name string) (fs.File, error) {
	return h.OpenRange(name, 0, 0)
}

// OpenRange implements the RangeFS interface.
func (h *ipfsFS) OpenRange(name string, offset, length int64) (fs.File, error) {
	p, _ := splitQuery(name)
	if err := validPath("open", p); err != nil {
		return nil, errIPFSFSFn(err)
	}
	return h.cfs.OpenRange(name, offset, length)
}

// IPFSPathResolution addresses files as "<gateway>/ipfs/<cid>/<path>".
func IPFSPathResolution(cid string) func(f *httpFS, name string) (*netURL.URL, error) {
	return func(f *httpFS, name string) (*netURL.URL, error) {
		p, q := splitQuery(name)
		httpPath := "/ipfs/" + cid
		if p != "" && p != "." {
			httpPath += "/" + p
		}
		return &netURL.URL{
			Scheme:   f.baseURL.Scheme,
			User:     f.baseURL.User,
			Host:     f.baseURL.Host,
			Path:     httpPath,
			RawQuery: q,
		}, nil
	}
}

// IPFSSubdomainResolution addresses files as "<cid>.<gateway>/<path>".
func IPFSSubdomainResolution(cid string) func(f *httpFS, name string) (*netURL.URL, error) {
	return func(f *httpFS, name string) (*netURL.URL, error) {
		p, q := splitQuery(name)
		if p == "." {
			p = ""
		}
		return &netURL.URL{
			Scheme:   f.baseURL.Scheme,
			User:     f.baseURL.User,
			Host:     fmt.Sprintf("%s.%s", cid, f.baseURL.Host),
			Path:     "/" + p,
			RawQuery: q,
		}, nil
	}
}

var ipfsGateways = []*IPFSGateway{
	{Scheme: "https", Host: "ipfs.io", ResolveFn: IPFSPathResolution},
	{Scheme: "https", Host: "gateway.pinata.cloud", ResolveFn: IPFSPathResolution},
	{Scheme: "https", Host: "trustless-gateway.link", ResolveFn: IPFSPathResolution},
	{Scheme: "https", Host: "dweb.link", ResolveFn: IPFSSubdomainResolution},
	{Scheme: "https", Host: "w3s.link", ResolveFn: IPFSPathResolution},
	{Scheme: "https", Host: "4everland.io", ResolveFn: IPFSPathResolution},
	{Scheme: "https", Host: "nftstorage.link", ResolveFn: IPFSPathResolution},
}

func validIPFSURL(u uri.URL) error {
	if !u.IsValid() {
		return errInvalidURLFn("fsutil.ipfsProto", u)
	}
	if u.Host() == "" {
		return errIPFSProtoEmptyHost
	}
	if u.Fragment() != "" {
		return errIPFSProtoFragmentNotAllowed
	}
	return nil
}

var (
	errIPFSProtoEmptyHost          = errors.New("fsutil.ipfsProto: empty host")
	errIPFSProtoFragmentNotAllowed = errors.New("fsutil.ipfsProto: fragment not allowed")
	errIPFSFSEmptyCID              = errors.New("fsutil.ipfsFS: empty CID")
)

func errIPFSProtoFn(err error) error {
	return fmt.Errorf("fsutil.ipfsProto: %w", err)
}

func errIPFSFSFn(err error) error {
	return fmt.Errorf("fsutil.ipfsFS: %w", err)
}
