// Copyright (C) 2025 SAGE-X Project
//
// This file is part of webbotauth.
//
// webbotauth is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// webbotauth is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with webbotauth.  If not, see <https://www.gnu.org/licenses/>.

package verifier

import (
	"net/url"
	"strings"
)

// matchTrustedDirectory reports whether jwksURL is served by one of the
// configured trusted directories. Matching is exact-host or dot-boundary
// subdomain, never substring: entry "example.com" accepts example.com and
// api.example.com but rejects notexample.com and example.com.attacker.com.
// A scheme-pinned entry ("https://example.com", optionally with a port)
// additionally requires that exact scheme and effective port.
func matchTrustedDirectory(jwksURL string, entries []string) bool {
	u, err := url.Parse(jwksURL)
	if err != nil || u.Hostname() == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())

	for _, entry := range entries {
		if strings.Contains(entry, "://") {
			e, err := url.Parse(entry)
			if err != nil || e.Hostname() == "" {
				continue
			}
			if !strings.EqualFold(e.Scheme, u.Scheme) {
				continue
			}
			if effectivePort(u) != effectivePort(e) {
				continue
			}
			if hostMatches(host, strings.ToLower(e.Hostname())) {
				return true
			}
			continue
		}
		if hostMatches(host, strings.ToLower(strings.TrimSpace(entry))) {
			return true
		}
	}
	return false
}

func hostMatches(host, entry string) bool {
	if entry == "" {
		return false
	}
	return host == entry || strings.HasSuffix(host, "."+entry)
}

// effectivePort resolves an explicit port or the scheme default.
func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return "443"
	case "http":
		return "80"
	}
	return ""
}
