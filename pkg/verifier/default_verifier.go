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
	"crypto/ed25519"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"go.uber.org/zap"

	"github.com/sage-x-project/webbotauth/pkg/agentresolver"
	"github.com/sage-x-project/webbotauth/pkg/delegation"
	"github.com/sage-x-project/webbotauth/pkg/httpsig"
	"github.com/sage-x-project/webbotauth/pkg/keydirectory"
	"github.com/sage-x-project/webbotauth/pkg/replay"
	"github.com/sage-x-project/webbotauth/pkg/safefetch"
)

// DefaultVerifier wires the pipeline stages together. All collaborators are
// injected so tests can substitute in-memory fakes with controllable clocks;
// New fills in working defaults for any left nil.
type DefaultVerifier struct {
	config     Config
	keys       *keydirectory.Cache
	nonces     *replay.Guard
	resolver   *agentresolver.Resolver
	delegation *delegation.Validator
	log        *zap.Logger
	now        func() time.Time
}

// Options configures a DefaultVerifier.
type Options struct {
	Config Config

	// Keys is the JWKS cache. Built from Config when nil.
	Keys *keydirectory.Cache

	// Nonces is the replay guard. Built from Config when nil.
	Nonces *replay.Guard

	// Resolver performs well-known discovery. Built from Config when nil.
	Resolver *agentresolver.Resolver

	// Delegation enables X.509 chain validation on keys that carry x5c/x5u
	// material. Nil leaves the X.509 stage disabled.
	Delegation *delegation.Validator

	// Logger defaults to a nop logger.
	Logger *zap.Logger

	// Now substitutes the clock, for tests.
	Now func() time.Time
}

// New creates a DefaultVerifier with the pipeline collaborators from opts.
func New(opts Options) *DefaultVerifier {
	cfg := opts.Config
	if cfg.MaxClockSkew == 0 {
		cfg.MaxClockSkew = replay.DefaultMaxSkew
	}
	if cfg.NonceTTL == 0 {
		cfg.NonceTTL = replay.DefaultNonceTTL
	}
	if cfg.JWKSCacheTTL == 0 {
		cfg.JWKSCacheTTL = keydirectory.DefaultTTL
	}

	v := &DefaultVerifier{
		config:     cfg,
		keys:       opts.Keys,
		nonces:     opts.Nonces,
		resolver:   opts.Resolver,
		delegation: opts.Delegation,
		log:        opts.Logger,
		now:        opts.Now,
	}
	if v.log == nil {
		v.log = zap.NewNop()
	}
	if v.now == nil {
		v.now = time.Now
	}

	fetcher := &safefetch.Client{
		Accept:       "application/json",
		AllowPrivate: cfg.AllowPrivateNetworks,
		Logger:       v.log,
	}
	if v.keys == nil {
		v.keys = keydirectory.NewCache(keydirectory.CacheOptions{
			Fetcher: fetcher,
			TTL:     cfg.JWKSCacheTTL,
			Logger:  v.log,
			Now:     v.now,
		})
	}
	if v.nonces == nil {
		v.nonces = replay.NewGuard(replay.NewMemoryStore(), cfg.NonceTTL)
	}
	if v.resolver == nil {
		v.resolver = &agentresolver.Resolver{
			Fetcher: fetcher,
			Paths:   cfg.DiscoveryPaths,
			Logger:  v.log,
		}
	}
	return v
}

// Verify runs the pipeline against one request snapshot. It never panics and
// never returns an error out of band; every failure is a
// VerificationResult{Verified: false, Error: ...}.
func (v *DefaultVerifier) Verify(ctx context.Context, req Request) VerificationResult {
	sigInput := headerValue(req.Headers, "signature-input")
	sigHeader := headerValue(req.Headers, "signature")
	agentHeader := headerValue(req.Headers, "signature-agent")

	if sigInput == "" {
		return fail("missing signature-input header")
	}
	if sigHeader == "" {
		return fail("missing signature header")
	}
	if agentHeader == "" && req.JWKSURL == "" {
		return fail("missing signature-agent header and no jwks url supplied")
	}

	sc, err := v.selectSignature(sigInput)
	if err != nil {
		return fail(err.Error())
	}

	jwksURL, usedAgentHeader, err := v.resolveKeySource(ctx, req, sc, agentHeader)
	if err != nil {
		return fail(err.Error())
	}

	if len(v.config.TrustedDirectories) > 0 {
		if !matchTrustedDirectory(jwksURL, v.config.TrustedDirectories) {
			return fail(fmt.Sprintf("jwks url %q is not in a trusted directory", jwksURL))
		}
	}

	sig, err := httpsig.ParseSignature(sigHeader, sc.Label)
	if err != nil {
		return fail(fmt.Sprintf("parse signature header: %v", err))
	}
	sc.Signature = sig

	if sc.Created == nil || sc.Expires == nil {
		return fail("signature parameters must carry both created and expires")
	}
	if err := replay.CheckTimestamp(*sc.Created, *sc.Expires, v.config.MaxClockSkew, v.now()); err != nil {
		return fail(fmt.Sprintf("freshness check failed: %v", err))
	}
	if sc.Nonce == "" {
		if v.config.RequireNonce {
			return fail("signature parameters must carry a nonce")
		}
		v.log.Debug("no nonce parameter, replay guard skipped",
			zap.String("jwks_url", jwksURL), zap.String("kid", sc.KeyID))
	} else if !v.nonces.CheckNonce(sc.Nonce, jwksURL, sc.KeyID) {
		return fail("nonce replay detected")
	}

	if v.config.RequireTag && sc.Tag != RequiredTag {
		return fail(fmt.Sprintf("signature tag %q is not %q", sc.Tag, RequiredTag))
	}

	if usedAgentHeader && !sc.Covers("signature-agent") {
		return fail("covered components must include signature-agent")
	}
	if !sc.Covers("@authority") && !sc.Covers("@target-uri") {
		return fail("covered components must include @authority or @target-uri")
	}

	key, err := v.keys.GetKey(ctx, jwksURL, sc.KeyID)
	if err != nil {
		return fail(fmt.Sprintf("key lookup failed: %v", err))
	}
	pub, err := ed25519PublicKey(key, sc.Algorithm)
	if err != nil {
		return fail(err.Error())
	}

	if v.delegation != nil {
		if err := v.delegation.ValidateKey(ctx, key); err != nil {
			return fail(fmt.Sprintf("delegation check failed: %v", err))
		}
	}

	base, err := httpsig.BuildSignatureBase(req.Method, req.URL, req.Headers, sc)
	if err != nil {
		return fail(fmt.Sprintf("build signature base: %v", err))
	}

	if len(sc.Signature) != ed25519.SignatureSize || !ed25519.Verify(pub, []byte(base), sc.Signature) {
		v.log.Debug("signature mismatch",
			zap.String("jwks_url", jwksURL), zap.String("kid", sc.KeyID))
		return fail(CryptoFailureMessage)
	}

	agent := &Agent{
		JWKSURL:    jwksURL,
		KID:        sc.KeyID,
		ClientName: v.keys.ClientName(ctx, jwksURL, sc.KeyID),
	}
	v.log.Debug("request verified",
		zap.String("jwks_url", jwksURL), zap.String("kid", sc.KeyID))

	return VerificationResult{
		Verified: true,
		Agent:    agent,
		Created:  *sc.Created,
		Expires:  *sc.Expires,
	}
}

// selectSignature picks one labeled signature from a Signature-Input header:
// the one tagged web-bot-auth when several are present, else the first.
func (v *DefaultVerifier) selectSignature(sigInput string) (*httpsig.SignatureComponents, error) {
	all, err := httpsig.ParseSignatureInputAll(sigInput)
	if err != nil {
		return nil, fmt.Errorf("parse signature-input: %w", err)
	}
	for _, sc := range all {
		if sc.Tag == RequiredTag {
			return sc, nil
		}
	}
	return all[0], nil
}

// resolveKeySource determines the JWKS URL to trust for this signature. The
// second return reports whether the Signature-Agent header was consulted, in
// which case signature-agent coverage becomes mandatory.
func (v *DefaultVerifier) resolveKeySource(ctx context.Context, req Request, sc *httpsig.SignatureComponents, agentHeader string) (string, bool, error) {
	if req.JWKSURL != "" {
		return req.JWKSURL, false, nil
	}

	// A signature-agent;key="label" selector names the dictionary member
	// explicitly; otherwise the signature label selects it.
	label := sc.Label
	for _, c := range sc.Covered {
		if c.Name == "signature-agent" && c.Key != "" {
			label = c.Key
			break
		}
	}

	agent, err := agentresolver.ParseSignatureAgent(agentHeader, label)
	if err != nil {
		return "", true, fmt.Errorf("parse signature-agent: %w", err)
	}
	if agent.IsJWKS {
		return agent.URL, true, nil
	}

	jwksURL, err := v.resolver.ResolveJWKSURL(ctx, agent.URL)
	if err != nil {
		return "", true, fmt.Errorf("jwks discovery for %q: %w", agent.URL, err)
	}
	if jwksURL == "" {
		return "", true, fmt.Errorf("no jwks endpoint discovered for agent %q", agent.URL)
	}
	return jwksURL, true, nil
}

// ed25519PublicKey extracts the raw Ed25519 public key, rejecting any other
// key type or declared algorithm.
func ed25519PublicKey(key jwk.Key, alg string) (ed25519.PublicKey, error) {
	if key.KeyType() != jwa.OKP {
		return nil, fmt.Errorf("unsupported key type %q, want OKP", key.KeyType())
	}
	okp, ok := key.(jwk.OKPPublicKey)
	if !ok || okp.Crv() != jwa.Ed25519 {
		return nil, fmt.Errorf("unsupported curve, want Ed25519")
	}
	if !strings.EqualFold(alg, httpsig.DefaultAlgorithm) {
		return nil, fmt.Errorf("unsupported algorithm %q, want %q", alg, httpsig.DefaultAlgorithm)
	}

	var pub ed25519.PublicKey
	if err := key.Raw(&pub); err != nil {
		return nil, fmt.Errorf("extract public key: %w", err)
	}
	return pub, nil
}

func fail(msg string) VerificationResult {
	return VerificationResult{Verified: false, Error: msg}
}

// headerValue does a case-insensitive header lookup in the request snapshot.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
