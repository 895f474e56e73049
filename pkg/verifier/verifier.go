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
	"context"
	"time"
)

// RequiredTag is the signature tag value the policy demands on inbound
// web-bot-auth signatures.
const RequiredTag = "web-bot-auth"

// CryptoFailureMessage is the single generic message returned for any
// cryptographic mismatch. Wrong key, tampered base, and corrupt signature
// bytes all collapse to this string so a forger learns nothing from it.
const CryptoFailureMessage = "signature verification failed"

// Request is the snapshot of an inbound HTTP request handed to Verify.
// Header keys are matched case-insensitively; callers conventionally pass
// them lowercase.
type Request struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`

	// JWKSURL, when set, is an out-of-band trust override: agent parsing and
	// discovery are skipped and keys are looked up directly at this URL.
	JWKSURL string `json:"jwksUrl,omitempty"`
}

// Agent identifies the signer of a successfully verified request.
type Agent struct {
	JWKSURL    string `json:"jwks_url"`
	KID        string `json:"kid"`
	ClientName string `json:"client_name,omitempty"`
}

// VerificationResult is the outcome of one Verify call. Agent is populated
// only on success. Error is a short machine-oriented string.
type VerificationResult struct {
	Verified bool   `json:"verified"`
	Agent    *Agent `json:"agent,omitempty"`
	Error    string `json:"error,omitempty"`
	Created  int64  `json:"created,omitempty"`
	Expires  int64  `json:"expires,omitempty"`
}

// Verifier runs the web-bot-auth verification pipeline.
type Verifier interface {
	Verify(ctx context.Context, req Request) VerificationResult
}

// Config holds the policy values the pipeline consumes. The zero value is
// usable but permissive; DefaultConfig returns the documented defaults.
type Config struct {
	// TrustedDirectories restricts which hosts may serve key material. Each
	// entry is a bare hostname (matches the host and its subdomains) or a
	// scheme-pinned URL such as "https://directory.example.com". Empty means
	// any JWKS URL that survives the SSRF gate is acceptable.
	TrustedDirectories []string

	// MaxClockSkew bounds how far created may sit from the wall clock.
	// Defaults to 5 minutes.
	MaxClockSkew time.Duration

	// NonceTTL bounds how long a claimed nonce is remembered. Defaults to
	// 10 minutes.
	NonceTTL time.Duration

	// JWKSCacheTTL is the key-directory cache lifetime. Defaults to 1 hour.
	JWKSCacheTTL time.Duration

	// RequireTag demands tag="web-bot-auth" on the signature parameters.
	// DefaultConfig enables it; early deployments that signed without a tag
	// can turn it off.
	RequireTag bool

	// RequireNonce demands a nonce parameter on the signature. Without a
	// nonce the replay guard has nothing to claim and only the created and
	// expires window limits resubmission. Off by default since nonce is
	// optional on the wire.
	RequireNonce bool

	// DiscoveryPaths overrides the well-known JWKS discovery path list.
	DiscoveryPaths []string

	// AllowPrivateNetworks disables the SSRF gate on outbound fetches.
	// Local development only.
	AllowPrivateNetworks bool
}

// DefaultConfig returns the documented default policy: 5 minute clock skew,
// 10 minute nonce TTL, 1 hour JWKS cache, tag required.
func DefaultConfig() Config {
	return Config{
		MaxClockSkew: 5 * time.Minute,
		NonceTTL:     10 * time.Minute,
		JWKSCacheTTL: time.Hour,
		RequireTag:   true,
	}
}
