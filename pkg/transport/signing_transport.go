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

// Package transport provides an http.RoundTripper that signs every outbound
// request with web-bot-auth message signatures, so a bot can authenticate
// itself by swapping the transport on an ordinary http.Client.
package transport

import (
	"fmt"
	"net/http"

	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/sage-x-project/webbotauth/pkg/signer"
)

// SigningTransport signs each request as it passes through. Freshness
// parameters (created, expires, nonce) are generated per request; the rest
// of the signing options act as a template.
type SigningTransport struct {
	key      jwk.Key
	template signer.SigningOptions
	signer   signer.Signer
	base     http.RoundTripper
}

// NewSigningTransport creates a signing transport.
//
// Parameters:
//   - key: the agent's Ed25519 private JWK
//   - opts: signing template (components, label, agent URL); nil for defaults
//   - base: inner round tripper (nil to use http.DefaultTransport)
func NewSigningTransport(key jwk.Key, opts *signer.SigningOptions, base http.RoundTripper) *SigningTransport {
	t := &SigningTransport{
		key:    key,
		signer: signer.NewDefaultSigner(),
		base:   base,
	}
	if opts != nil {
		t.template = *opts
	}
	if t.base == nil {
		t.base = http.DefaultTransport
	}
	return t
}

// RoundTrip signs a clone of the request and forwards it. The caller's
// request is never mutated, per the http.RoundTripper contract.
func (t *SigningTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	opts := t.template
	opts.Created = 0
	opts.Expires = 0
	opts.Nonce = ""

	if err := t.signer.SignRequestWithOptions(req.Context(), clone, t.key, &opts); err != nil {
		return nil, fmt.Errorf("sign outbound request: %w", err)
	}
	return t.base.RoundTrip(clone)
}

// NewClient wraps an http.Client so every request it sends is signed.
// If client is nil, a new one is created.
func NewClient(key jwk.Key, opts *signer.SigningOptions, client *http.Client) *http.Client {
	if client == nil {
		client = &http.Client{}
	}
	wrapped := *client
	wrapped.Transport = NewSigningTransport(key, opts, client.Transport)
	return &wrapped
}
