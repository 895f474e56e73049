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

// Package agentresolver turns a Signature-Agent header into a key-set URL.
//
// The header has two accepted forms: an RFC 8941 dictionary keyed by
// signature label (sig1="https://bot.example.com") and a legacy bare URL,
// optionally wrapped in quotes or angle brackets. A resolved URL whose path
// already looks like a key set (ends in .json or contains /jwks/) is used
// directly; anything else is an identity URL that requires well-known
// discovery.
package agentresolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/dunglas/httpsfv"
	"go.uber.org/zap"

	"github.com/sage-x-project/webbotauth/pkg/safefetch"
)

// ErrMalformedAgent indicates the Signature-Agent header could not be parsed
// in either form.
var ErrMalformedAgent = errors.New("malformed Signature-Agent header")

// DefaultDiscoveryPaths are the well-known paths tried, in order, when an
// identity URL needs JWKS discovery.
var DefaultDiscoveryPaths = []string{
	"/.well-known/http-message-signatures-directory",
	"/.well-known/jwks.json",
	"/.well-known/openbotauth/jwks.json",
}

// ResolvedAgent is the outcome of parsing Signature-Agent. IsJWKS reports
// whether the URL is already a key-set endpoint; false means discovery is
// required.
type ResolvedAgent struct {
	URL    string
	IsJWKS bool
}

// ParseSignatureAgent parses the Signature-Agent header value and selects the
// member matching the signature label. When no member matches, the first
// member is used; this legacy fallback is a known ambiguity for multi-agent
// headers and is kept for compatibility with single-agent senders.
func ParseSignatureAgent(value, label string) (*ResolvedAgent, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty value", ErrMalformedAgent)
	}

	if dict, err := httpsfv.UnmarshalDictionary([]string{trimmed}); err == nil && len(dict.Names()) > 0 {
		names := dict.Names()
		selected := names[0]
		if label != "" {
			for _, name := range names {
				if name == label {
					selected = name
					break
				}
			}
		}
		member, _ := dict.Get(selected)
		item, ok := member.(httpsfv.Item)
		if !ok {
			return nil, fmt.Errorf("%w: member %q is not an item", ErrMalformedAgent, selected)
		}
		s, ok := item.Value.(string)
		if !ok {
			if tok, isTok := item.Value.(httpsfv.Token); isTok {
				s = string(tok)
			} else {
				return nil, fmt.Errorf("%w: member %q is not a string", ErrMalformedAgent, selected)
			}
		}
		return newResolvedAgent(s)
	}

	// Legacy bare value, optionally wrapped in quotes or angle brackets.
	return newResolvedAgent(stripWrapping(trimmed))
}

func newResolvedAgent(rawURL string) (*ResolvedAgent, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("%w: empty url", ErrMalformedAgent)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAgent, err)
	}
	return &ResolvedAgent{URL: rawURL, IsJWKS: looksLikeJWKS(u)}, nil
}

func looksLikeJWKS(u *url.URL) bool {
	path := strings.ToLower(u.Path)
	return strings.HasSuffix(path, ".json") || strings.Contains(path, "/jwks/")
}

func stripWrapping(s string) string {
	for len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		switch {
		case first == '"' && last == '"',
			first == '\'' && last == '\'',
			first == '<' && last == '>':
			s = strings.TrimSpace(s[1 : len(s)-1])
		default:
			return s
		}
	}
	return s
}

// Resolver performs well-known JWKS discovery against identity URLs.
type Resolver struct {
	// Fetcher carries the SSRF-hardened fetch discipline. Required.
	Fetcher *safefetch.Client

	// Paths overrides DefaultDiscoveryPaths.
	Paths []string

	// Logger defaults to a nop logger.
	Logger *zap.Logger
}

// ResolveJWKSURL tries each candidate path against the identity URL's origin
// and returns the first one that yields a structurally valid JWKS document.
// An empty string with a nil error means discovery simply found nothing;
// that is a normal outcome, not an infrastructure failure.
func (r *Resolver) ResolveJWKSURL(ctx context.Context, identityURL string) (string, error) {
	u, err := url.Parse(identityURL)
	if err != nil {
		return "", fmt.Errorf("parse identity url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("identity url %q is not absolute", identityURL)
	}

	log := r.Logger
	if log == nil {
		log = zap.NewNop()
	}

	paths := r.Paths
	if len(paths) == 0 {
		paths = DefaultDiscoveryPaths
	}

	origin := u.Scheme + "://" + u.Host
	for _, path := range paths {
		candidate := origin + path
		body, err := r.Fetcher.Fetch(ctx, candidate)
		if err != nil {
			log.Debug("discovery candidate failed",
				zap.String("candidate", candidate), zap.Error(err))
			continue
		}
		var doc struct {
			Keys []json.RawMessage `json:"keys"`
		}
		if err := json.Unmarshal(body, &doc); err != nil || doc.Keys == nil {
			log.Debug("discovery candidate is not a jwks document",
				zap.String("candidate", candidate))
			continue
		}
		return candidate, nil
	}
	return "", nil
}
