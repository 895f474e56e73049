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
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/webbotauth/pkg/delegation"
	"github.com/sage-x-project/webbotauth/pkg/httpsig"
)

type env struct {
	pub     ed25519.PublicKey
	priv    ed25519.PrivateKey
	srv     *httptest.Server
	jwksURL string
}

// newEnv publishes a fresh Ed25519 key under kid "k1" on a local directory
// server that answers both a direct JWKS path and the well-known discovery
// path.
func newEnv(t *testing.T) *env {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	key, err := jwk.FromRaw(pub)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, "k1"))
	keyJSON, err := json.Marshal(key)
	require.NoError(t, err)

	doc := fmt.Sprintf(`{"keys":[%s],"client_name":"Test Crawler"}`, keyJSON)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/jwks.json", "/.well-known/http-message-signatures-directory":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, doc)
		default:
			fmt.Fprint(w, "<html>agent homepage</html>")
		}
	}))
	t.Cleanup(srv.Close)

	return &env{pub: pub, priv: priv, srv: srv, jwksURL: srv.URL + "/jwks.json"}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AllowPrivateNetworks = true
	return cfg
}

// sigParams assembles a Signature-Input value under label sig1.
func sigParams(covered string, keyID string, created, expires int64, nonce, tag string) string {
	s := fmt.Sprintf("sig1=(%s);created=%d;expires=%d;keyid=%q", covered, created, expires, keyID)
	if nonce != "" {
		s += fmt.Sprintf(";nonce=%q", nonce)
	}
	if tag != "" {
		s += fmt.Sprintf(";tag=%q", tag)
	}
	return s
}

// signRequest builds the signature base for params against req and attaches
// the resulting signature-input and signature headers.
func signRequest(t *testing.T, priv ed25519.PrivateKey, req *Request, params string) {
	t.Helper()

	sc, err := httpsig.ParseSignatureInput(params, "")
	require.NoError(t, err)
	base, err := httpsig.BuildSignatureBase(req.Method, req.URL, req.Headers, sc)
	require.NoError(t, err)

	sig := ed25519.Sign(priv, []byte(base))
	req.Headers["signature-input"] = params
	req.Headers["signature"] = sc.Label + "=:" + base64.StdEncoding.EncodeToString(sig) + ":"
}

func signedAgentRequest(t *testing.T, e *env, nonce string) Request {
	t.Helper()

	req := Request{
		Method: "GET",
		URL:    "https://example.com/res",
		Headers: map[string]string{
			"signature-agent": fmt.Sprintf("sig1=%q", e.jwksURL),
		},
	}
	now := time.Now().Unix()
	params := sigParams(`"@method" "@path" "@authority" "signature-agent"`,
		"k1", now, now+300, nonce, RequiredTag)
	signRequest(t, e.priv, &req, params)
	return req
}

func TestVerify_EndToEnd(t *testing.T) {
	e := newEnv(t)
	v := New(Options{Config: testConfig()})

	req := signedAgentRequest(t, e, "nonce-e2e")
	result := v.Verify(context.Background(), req)

	require.True(t, result.Verified, "unexpected failure: %s", result.Error)
	require.NotNil(t, result.Agent)
	assert.Equal(t, e.jwksURL, result.Agent.JWKSURL)
	assert.Equal(t, "k1", result.Agent.KID)
	assert.Equal(t, "Test Crawler", result.Agent.ClientName)
	assert.NotZero(t, result.Created)
	assert.Equal(t, result.Created+300, result.Expires)
}

func TestVerify_MissingHeaders(t *testing.T) {
	e := newEnv(t)
	v := New(Options{Config: testConfig()})

	base := signedAgentRequest(t, e, "nonce-missing")

	tests := []struct {
		name   string
		mutate func(r *Request)
	}{
		{"no signature-input", func(r *Request) { delete(r.Headers, "signature-input") }},
		{"no signature", func(r *Request) { delete(r.Headers, "signature") }},
		{"no signature-agent and no jwks url", func(r *Request) { delete(r.Headers, "signature-agent") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			req.Headers = map[string]string{}
			for k, v := range base.Headers {
				req.Headers[k] = v
			}
			tt.mutate(&req)

			result := v.Verify(context.Background(), req)
			assert.False(t, result.Verified)
			assert.Contains(t, result.Error, "missing")
		})
	}
}

func TestVerify_TamperedRequest(t *testing.T) {
	e := newEnv(t)
	v := New(Options{Config: testConfig()})

	req := signedAgentRequest(t, e, "nonce-tamper")
	req.URL = "https://example.com/other"

	result := v.Verify(context.Background(), req)
	assert.False(t, result.Verified)
	assert.Equal(t, CryptoFailureMessage, result.Error)
	assert.Nil(t, result.Agent)
}

func TestVerify_CorruptSignatureBytes(t *testing.T) {
	e := newEnv(t)
	v := New(Options{Config: testConfig()})

	req := signedAgentRequest(t, e, "nonce-corrupt")
	req.Headers["signature"] = "sig1=:" + base64.StdEncoding.EncodeToString(make([]byte, 64)) + ":"

	result := v.Verify(context.Background(), req)
	assert.False(t, result.Verified)
	assert.Equal(t, CryptoFailureMessage, result.Error)
}

func TestVerify_Replay(t *testing.T) {
	e := newEnv(t)
	v := New(Options{Config: testConfig()})

	req := signedAgentRequest(t, e, "nonce-replay")

	first := v.Verify(context.Background(), req)
	require.True(t, first.Verified, "unexpected failure: %s", first.Error)

	second := v.Verify(context.Background(), req)
	assert.False(t, second.Verified)
	assert.Contains(t, second.Error, "replay")
}

func TestVerify_DuplicateLabelDoesNotReviveExpiredSignature(t *testing.T) {
	e := newEnv(t)
	v := New(Options{Config: testConfig()})

	req := Request{
		Method: "GET",
		URL:    "https://example.com/res",
		Headers: map[string]string{
			"signature-agent": fmt.Sprintf("sig1=%q", e.jwksURL),
		},
	}
	created := time.Now().Unix() - 7200
	staleParams := sigParams(`"@method" "@path" "@authority" "signature-agent"`,
		"k1", created, created+300, "nonce-dup", RequiredTag)
	signRequest(t, e.priv, &req, staleParams)

	// The captured signature is long past its window.
	stale := v.Verify(context.Background(), req)
	assert.False(t, stale.Verified)
	assert.Contains(t, stale.Error, "freshness")

	// Appending a second sig1 member with fresh parameters and a new nonce
	// must not resurrect it: dictionary parsing keeps the later member while
	// the signed bytes are the earlier one.
	now := time.Now().Unix()
	freshParams := sigParams(`"@method" "@path" "@authority" "signature-agent"`,
		"k1", now, now+300, "nonce-dup-fresh", RequiredTag)
	req.Headers["signature-input"] = staleParams + ", " + freshParams

	result := v.Verify(context.Background(), req)
	assert.False(t, result.Verified)
	assert.Contains(t, result.Error, "signature-input")
}

func TestVerify_NonceOptionalUnlessRequired(t *testing.T) {
	e := newEnv(t)

	// Without a nonce the signature still verifies, and the replay guard has
	// nothing to claim: the same bytes pass again inside the expiry window.
	v := New(Options{Config: testConfig()})
	req := signedAgentRequest(t, e, "")
	first := v.Verify(context.Background(), req)
	require.True(t, first.Verified, "unexpected failure: %s", first.Error)
	second := v.Verify(context.Background(), req)
	assert.True(t, second.Verified, "unexpected failure: %s", second.Error)

	// Strict deployments demand one.
	cfg := testConfig()
	cfg.RequireNonce = true
	strict := New(Options{Config: cfg})
	result := strict.Verify(context.Background(), signedAgentRequest(t, e, ""))
	assert.False(t, result.Verified)
	assert.Contains(t, result.Error, "nonce")
}

func TestVerify_TagRequired(t *testing.T) {
	e := newEnv(t)

	req := Request{
		Method: "GET",
		URL:    "https://example.com/res",
		Headers: map[string]string{
			"signature-agent": fmt.Sprintf("sig1=%q", e.jwksURL),
		},
	}
	now := time.Now().Unix()
	params := sigParams(`"@method" "@authority" "signature-agent"`, "k1", now, now+300, "nonce-tag", "")
	signRequest(t, e.priv, &req, params)

	v := New(Options{Config: testConfig()})
	result := v.Verify(context.Background(), req)
	assert.False(t, result.Verified)
	assert.Contains(t, result.Error, "tag")

	// The same untagged signature is acceptable when the policy is relaxed.
	cfg := testConfig()
	cfg.RequireTag = false
	relaxed := New(Options{Config: cfg})
	result = relaxed.Verify(context.Background(), req)
	assert.True(t, result.Verified, "unexpected failure: %s", result.Error)
}

func TestVerify_CoverageRequirements(t *testing.T) {
	e := newEnv(t)
	now := time.Now().Unix()

	t.Run("signature-agent must be covered", func(t *testing.T) {
		req := Request{
			Method: "GET",
			URL:    "https://example.com/res",
			Headers: map[string]string{
				"signature-agent": fmt.Sprintf("sig1=%q", e.jwksURL),
			},
		}
		params := sigParams(`"@method" "@authority"`, "k1", now, now+300, "nonce-cov1", RequiredTag)
		signRequest(t, e.priv, &req, params)

		result := New(Options{Config: testConfig()}).Verify(context.Background(), req)
		assert.False(t, result.Verified)
		assert.Contains(t, result.Error, "signature-agent")
	})

	t.Run("origin binding required", func(t *testing.T) {
		req := Request{
			Method: "GET",
			URL:    "https://example.com/res",
			Headers: map[string]string{
				"signature-agent": fmt.Sprintf("sig1=%q", e.jwksURL),
			},
		}
		params := sigParams(`"@method" "signature-agent"`, "k1", now, now+300, "nonce-cov2", RequiredTag)
		signRequest(t, e.priv, &req, params)

		result := New(Options{Config: testConfig()}).Verify(context.Background(), req)
		assert.False(t, result.Verified)
		assert.Contains(t, result.Error, "@authority")
	})
}

func TestVerify_MissingFreshnessParams(t *testing.T) {
	e := newEnv(t)

	req := Request{
		Method: "GET",
		URL:    "https://example.com/res",
		Headers: map[string]string{
			"signature-agent": fmt.Sprintf("sig1=%q", e.jwksURL),
		},
	}
	params := fmt.Sprintf(`sig1=("@method" "@authority" "signature-agent");keyid=%q;tag=%q`,
		"k1", RequiredTag)
	signRequest(t, e.priv, &req, params)

	result := New(Options{Config: testConfig()}).Verify(context.Background(), req)
	assert.False(t, result.Verified)
	assert.Contains(t, result.Error, "created")
}

func TestVerify_ExpiredSignature(t *testing.T) {
	e := newEnv(t)

	req := Request{
		Method: "GET",
		URL:    "https://example.com/res",
		Headers: map[string]string{
			"signature-agent": fmt.Sprintf("sig1=%q", e.jwksURL),
		},
	}
	created := time.Now().Unix() - 120
	params := sigParams(`"@method" "@authority" "signature-agent"`, "k1", created, created+60, "nonce-exp", RequiredTag)
	signRequest(t, e.priv, &req, params)

	result := New(Options{Config: testConfig()}).Verify(context.Background(), req)
	assert.False(t, result.Verified)
	assert.Contains(t, result.Error, "freshness")
}

func TestVerify_OutOfBandJWKSURL(t *testing.T) {
	e := newEnv(t)

	req := Request{
		Method:  "GET",
		URL:     "https://example.com/res",
		Headers: map[string]string{},
		JWKSURL: e.jwksURL,
	}
	now := time.Now().Unix()
	params := sigParams(`"@method" "@path" "@authority"`, "k1", now, now+300, "nonce-oob", RequiredTag)
	signRequest(t, e.priv, &req, params)

	result := New(Options{Config: testConfig()}).Verify(context.Background(), req)
	require.True(t, result.Verified, "unexpected failure: %s", result.Error)
	assert.Equal(t, e.jwksURL, result.Agent.JWKSURL)
}

func TestVerify_TrustedDirectories(t *testing.T) {
	e := newEnv(t)

	cfg := testConfig()
	cfg.TrustedDirectories = []string{"example.com"}
	v := New(Options{Config: cfg})

	req := signedAgentRequest(t, e, "nonce-trust")
	result := v.Verify(context.Background(), req)
	assert.False(t, result.Verified)
	assert.Contains(t, result.Error, "trusted directory")

	cfg.TrustedDirectories = []string{"127.0.0.1"}
	trusted := New(Options{Config: cfg})
	req = signedAgentRequest(t, e, "nonce-trust-2")
	result = trusted.Verify(context.Background(), req)
	assert.True(t, result.Verified, "unexpected failure: %s", result.Error)
}

func TestVerify_UnknownKid(t *testing.T) {
	e := newEnv(t)

	req := Request{
		Method: "GET",
		URL:    "https://example.com/res",
		Headers: map[string]string{
			"signature-agent": fmt.Sprintf("sig1=%q", e.jwksURL),
		},
	}
	now := time.Now().Unix()
	params := sigParams(`"@method" "@authority" "signature-agent"`, "missing", now, now+300, "nonce-kid", RequiredTag)
	signRequest(t, e.priv, &req, params)

	result := New(Options{Config: testConfig()}).Verify(context.Background(), req)
	assert.False(t, result.Verified)
	assert.Contains(t, result.Error, "key lookup failed")
}

func TestVerify_UnsupportedKeyType(t *testing.T) {
	ecPriv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	ecKey, err := jwk.FromRaw(&ecPriv.PublicKey)
	require.NoError(t, err)
	require.NoError(t, ecKey.Set(jwk.KeyIDKey, "k1"))
	keyJSON, err := json.Marshal(ecKey)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"keys":[%s]}`, keyJSON)
	}))
	defer srv.Close()

	_, edPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	req := Request{
		Method:  "GET",
		URL:     "https://example.com/res",
		Headers: map[string]string{},
		JWKSURL: srv.URL + "/jwks.json",
	}
	now := time.Now().Unix()
	params := sigParams(`"@method" "@authority"`, "k1", now, now+300, "nonce-ec", RequiredTag)
	signRequest(t, edPriv, &req, params)

	result := New(Options{Config: testConfig()}).Verify(context.Background(), req)
	assert.False(t, result.Verified)
	assert.Contains(t, result.Error, "unsupported key type")
}

func TestVerify_DiscoversJWKSFromIdentityURL(t *testing.T) {
	e := newEnv(t)

	// The agent announces its homepage; the verifier must discover the
	// well-known directory behind it.
	req := Request{
		Method: "GET",
		URL:    "https://example.com/res",
		Headers: map[string]string{
			"signature-agent": fmt.Sprintf("sig1=%q", e.srv.URL+"/"),
		},
	}
	now := time.Now().Unix()
	params := sigParams(`"@method" "@authority" "signature-agent"`, "k1", now, now+300, "nonce-disc", RequiredTag)
	signRequest(t, e.priv, &req, params)

	result := New(Options{Config: testConfig()}).Verify(context.Background(), req)
	require.True(t, result.Verified, "unexpected failure: %s", result.Error)
	assert.Equal(t, e.srv.URL+"/.well-known/http-message-signatures-directory", result.Agent.JWKSURL)
}

func TestVerify_DelegationFailurePropagates(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	// Key with undecodable x5c material.
	keyJSON := fmt.Sprintf(`{"kty":"OKP","crv":"Ed25519","kid":"k1","x":%q,"x5c":["!!!"]}`,
		base64.RawURLEncoding.EncodeToString(pub))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"keys":[%s]}`, keyJSON)
	}))
	defer srv.Close()

	req := Request{
		Method:  "GET",
		URL:     "https://example.com/res",
		Headers: map[string]string{},
		JWKSURL: srv.URL + "/jwks.json",
	}
	now := time.Now().Unix()
	params := sigParams(`"@method" "@authority"`, "k1", now, now+300, "nonce-del", RequiredTag)
	signRequest(t, priv, &req, params)

	v := New(Options{
		Config:     testConfig(),
		Delegation: delegation.New(delegation.Options{}),
	})
	result := v.Verify(context.Background(), req)
	assert.False(t, result.Verified)
	assert.Contains(t, result.Error, "delegation")
}
