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

package httpsig

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/dunglas/httpsfv"
)

// BuildSignatureBase reconstructs the canonical RFC 9421 signature base for
// the request described by method, rawURL and headers (lowercase keys
// expected; lookup is case-insensitive regardless).
//
// Each covered component becomes one line `"name": value`. The final line is
// always `"@signature-params": ` followed by the verbatim raw parameters
// captured at parse time.
func BuildSignatureBase(method, rawURL string, headers map[string]string, sc *SignatureComponents) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid request url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid request url: %q is not absolute", rawURL)
	}

	var b strings.Builder
	for _, comp := range sc.Covered {
		id, err := comp.Identifier()
		if err != nil {
			return "", fmt.Errorf("serialize component %q: %w", comp.Name, err)
		}

		var value string
		switch comp.Name {
		case "@method":
			value = strings.ToUpper(method)
		case "@path":
			value = requestPath(u)
		case "@authority":
			value = authority(u)
		case "@target-uri":
			value = rawURL
		case "@request-target":
			value = strings.ToLower(method) + " " + requestPath(u)
			if u.RawQuery != "" {
				value += "?" + u.RawQuery
			}
		default:
			if strings.HasPrefix(comp.Name, "@") {
				return "", fmt.Errorf("unsupported derived component %q", comp.Name)
			}
			raw, ok := headerValue(headers, comp.Name)
			if !ok {
				return "", fmt.Errorf("%w: %q", ErrMissingCoveredHeader, comp.Name)
			}
			if comp.Key != "" {
				value, err = dictionaryMember(raw, comp.Key)
				if err != nil {
					return "", fmt.Errorf("component %q: %w", comp.Name, err)
				}
			} else {
				value = strings.TrimSpace(raw)
			}
		}

		b.WriteString(id)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteByte('\n')
	}

	b.WriteString(`"@signature-params": `)
	b.WriteString(sc.RawSignatureParams)
	return b.String(), nil
}

func requestPath(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

// authority returns the lowercased host, keeping the port only when it is not
// the default for the scheme.
func authority(u *url.URL) string {
	host := strings.ToLower(u.Host)
	switch u.Scheme {
	case "https":
		host = strings.TrimSuffix(host, ":443")
	case "http":
		host = strings.TrimSuffix(host, ":80")
	}
	return host
}

func headerValue(headers map[string]string, name string) (string, bool) {
	if v, ok := headers[name]; ok {
		return v, true
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// dictionaryMember extracts and re-serializes a single member of a
// dictionary-valued header, for components carrying a ;key= selector.
func dictionaryMember(raw, key string) (string, error) {
	dict, err := httpsfv.UnmarshalDictionary([]string{raw})
	if err != nil {
		return "", fmt.Errorf("header is not a structured dictionary: %w", err)
	}
	member, ok := dict.Get(key)
	if !ok {
		return "", fmt.Errorf("dictionary member %q not present", key)
	}
	switch m := member.(type) {
	case httpsfv.Item:
		return httpsfv.Marshal(m)
	case httpsfv.InnerList:
		return httpsfv.Marshal(m)
	default:
		return "", fmt.Errorf("dictionary member %q has unsupported type", key)
	}
}
