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

package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/webbotauth/pkg/verifier"
)

func TestVerify_PostsSnapshotAndParsesResult(t *testing.T) {
	var received verifier.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/verify", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		json.NewEncoder(w).Encode(verifier.VerificationResult{
			Verified: true,
			Agent:    &verifier.Agent{JWKSURL: "https://crawler.example.com/jwks.json", KID: "k1"},
			Created:  100,
			Expires:  400,
		})
	}))
	defer srv.Close()

	c := NewVerifierClient(srv.URL, nil)
	result, err := c.Verify(context.Background(), verifier.Request{
		Method:  "GET",
		URL:     "https://origin.example.com/page",
		Headers: map[string]string{"signature-input": "sig1=..."},
	})
	require.NoError(t, err)

	assert.True(t, result.Verified)
	require.NotNil(t, result.Agent)
	assert.Equal(t, "k1", result.Agent.KID)
	assert.Equal(t, "https://origin.example.com/page", received.URL)
}

func TestVerify_ServiceOutageIsSoftFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	result, err := NewVerifierClient(srv.URL, nil).Verify(context.Background(), verifier.Request{})
	require.NoError(t, err, "5xx must not surface as a transport error")
	assert.False(t, result.Verified)
	assert.Contains(t, result.Error, "unavailable")
}

func TestVerify_UnexpectedStatusIsHardError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewVerifierClient(srv.URL, nil).Verify(context.Background(), verifier.Request{})
	assert.Error(t, err)
}

func TestVerifyHTTPRequest_AppliesPrivacyFilter(t *testing.T) {
	var received verifier.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		json.NewEncoder(w).Encode(verifier.VerificationResult{Verified: true})
	}))
	defer srv.Close()

	inbound := httptest.NewRequest(http.MethodGet, "https://origin.example.com/res?q=1", nil)
	inbound.Header.Set("Signature-Input", `sig1=("@method" "@authority" "signature-agent");created=1;expires=2;keyid="k1"`)
	inbound.Header.Set("Signature", "sig1=:AAAA:")
	inbound.Header.Set("Signature-Agent", `sig1="https://crawler.example.com/jwks.json"`)
	inbound.Header.Set("Cookie", "session=secret")

	result, err := NewVerifierClient(srv.URL, nil).VerifyHTTPRequest(context.Background(), inbound)
	require.NoError(t, err)
	assert.True(t, result.Verified)

	assert.Equal(t, "https://origin.example.com/res?q=1", received.URL)
	assert.Contains(t, received.Headers, "signature-agent")
	assert.NotContains(t, received.Headers, "cookie", "credentials must not be forwarded")
}

func TestExtractForwardedHeaders(t *testing.T) {
	t.Run("covered headers ride along", func(t *testing.T) {
		h := http.Header{}
		h.Set("Signature-Input", `sig1=("@method" "content-type" "signature-agent");created=1;expires=2;keyid="k1"`)
		h.Set("Signature", "sig1=:AAAA:")
		h.Set("Signature-Agent", `sig1="https://crawler.example.com/jwks.json"`)
		h.Set("Content-Type", "application/json")
		h.Set("Accept", "text/html")

		out, err := ExtractForwardedHeaders(h)
		require.NoError(t, err)
		assert.Contains(t, out, "content-type")
		assert.NotContains(t, out, "accept", "uncovered headers stay home")
	})

	t.Run("covered credential header is a hard error", func(t *testing.T) {
		h := http.Header{}
		h.Set("Signature-Input", `sig1=("@method" "authorization");created=1;expires=2;keyid="k1"`)
		h.Set("Signature", "sig1=:AAAA:")
		h.Set("Authorization", "Bearer token")

		_, err := ExtractForwardedHeaders(h)
		assert.ErrorIs(t, err, ErrSensitiveHeaderCovered)
	})

	t.Run("unsigned request forwards nothing extra", func(t *testing.T) {
		h := http.Header{}
		h.Set("Cookie", "session=secret")

		out, err := ExtractForwardedHeaders(h)
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}
