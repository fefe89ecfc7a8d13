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

// Package uri implements the resource locators used by the IO facade.
//
// The accepted grammar is:
//
//	scheme:[//host]/path[?query][#fragment]
//
// The scheme is an ASCII alphanumeric token and is lower-cased during
// parsing. The "//host" part is optional, so "res:textures/a.png" is a valid
// URL without a host. Parsing never fails: malformed text produces a URL for
// which IsValid returns false.
package uri

import (
	"strings"
)

// URL is an immutable, parsed resource locator.
//
// The zero value is an invalid URL.
type URL struct {
	raw      string
	scheme   string
	host     string
	path     string
	query    string
	fragment string
	hasHost  bool
	valid    bool
}

// Parse parses text into a URL. If text does not match the URL grammar, the
// returned URL is invalid, but Raw still returns the original text.
func Parse(text string) URL {
	u := URL{raw: text}
	if text == "" || !printable(text) {
		return u
	}
	i := strings.IndexByte(text, ':')
	if i <= 0 || !ValidScheme(text[:i]) {
		return u
	}
	u.scheme = strings.ToLower(text[:i])
	rest := text[i+1:]
	if j := strings.IndexByte(rest, '#'); j >= 0 {
		u.fragment = rest[j+1:]
		rest = rest[:j]
	}
	if j := strings.IndexByte(rest, '?'); j >= 0 {
		u.query = rest[j+1:]
		rest = rest[:j]
	}
	if strings.HasPrefix(rest, "//") {
		rest = rest[2:]
		u.hasHost = true
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			u.host, rest = rest[:j], rest[j:]
		} else {
			u.host, rest = rest, ""
		}
	}
	u.path = rest
	u.valid = true
	return u
}

// ValidScheme reports whether s is a valid scheme token.
func ValidScheme(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z':
		case 'A' <= c && c <= 'Z':
		case '0' <= c && c <= '9':
		default:
			return false
		}
	}
	return true
}

// IsValid reports whether the URL was parsed successfully.
func (u URL) IsValid() bool { return u.valid }

// Raw returns the text the URL was parsed from.
func (u URL) Raw() string { return u.raw }

// Scheme returns the lower-cased scheme, without the trailing colon.
func (u URL) Scheme() string { return u.scheme }

// Host returns the host part. It may be empty even if HasHost is true, as in
// "file:///etc/hosts".
func (u URL) Host() string { return u.host }

// HasHost reports whether the URL contains the "//host" part.
func (u URL) HasHost() bool { return u.hasHost }

// Path returns the path exactly as written, including a leading slash if
// there is one.
func (u URL) Path() string { return u.path }

// Query returns the query without the leading "?".
func (u URL) Query() string { return u.query }

// Fragment returns the fragment without the leading "#".
func (u URL) Fragment() string { return u.fragment }

// Segments returns the non-empty path segments.
func (u URL) Segments() []string {
	var s []string
	for _, p := range strings.Split(u.path, "/") {
		if p != "" {
			s = append(s, p)
		}
	}
	return s
}

// Remainder returns everything following "scheme:" in the original text.
// It is used to substitute assigns.
func (u URL) Remainder() string {
	if !u.valid {
		return ""
	}
	return u.raw[len(u.scheme)+1:]
}

// Equal reports whether both URLs have the same components. The original
// text is not compared.
func (u URL) Equal(v URL) bool {
	return u.valid == v.valid &&
		u.scheme == v.scheme &&
		u.hasHost == v.hasHost &&
		u.host == v.host &&
		u.path == v.path &&
		u.query == v.query &&
		u.fragment == v.fragment
}

// String assembles the URL from its components. For an invalid URL it
// returns the original text.
func (u URL) String() string {
	if !u.valid {
		return u.raw
	}
	var b strings.Builder
	b.WriteString(u.scheme)
	b.WriteByte(':')
	if u.hasHost {
		b.WriteString("//")
		b.WriteString(u.host)
	}
	b.WriteString(u.path)
	if u.query != "" {
		b.WriteByte('?')
		b.WriteString(u.query)
	}
	if u.fragment != "" {
		b.WriteByte('#')
		b.WriteString(u.fragment)
	}
	return b.String()
}

// printable reports whether s contains no spaces or ASCII control characters.
func printable(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] <= ' ' || s[i] == 0x7f {
			return false
		}
	}
	return true
}
