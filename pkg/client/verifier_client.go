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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sage-x-project/webbotauth/pkg/verifier"
)

// DefaultTimeout bounds one verification round trip to the remote service.
const DefaultTimeout = 5 * time.Second

// VerifierClient talks to a hosted verifier service: it POSTs the request
// snapshot to the service's /verify endpoint and returns the parsed result.
type VerifierClient struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

// NewVerifierClient creates a client for the verifier service at baseURL.
// If httpClient is nil, a client with DefaultTimeout is used.
func NewVerifierClient(baseURL string, httpClient *http.Client) *VerifierClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &VerifierClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		log:        zap.NewNop(),
	}
}

// SetLogger sets the client logger.
func (c *VerifierClient) SetLogger(log *zap.Logger) {
	c.log = log
}

// Verify submits one request snapshot for verification. A 5xx from the
// service is reported as an unverified result rather than an error, so an
// outage degrades to deny instead of breaking the caller.
func (c *VerifierClient) Verify(ctx context.Context, req verifier.Request) (verifier.VerificationResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return verifier.VerificationResult{}, fmt.Errorf("encode verify request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return verifier.VerificationResult{}, fmt.Errorf("create verify request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return verifier.VerificationResult{}, fmt.Errorf("verify request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		c.log.Warn("verifier service unavailable", zap.Int("status", resp.StatusCode))
		return verifier.VerificationResult{
			Verified: false,
			Error:    fmt.Sprintf("verifier service unavailable: status %d", resp.StatusCode),
		}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return verifier.VerificationResult{}, fmt.Errorf("verifier service returned status %d", resp.StatusCode)
	}

	var result verifier.VerificationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return verifier.VerificationResult{}, fmt.Errorf("decode verify response: %w", err)
	}
	return result, nil
}

// VerifyHTTPRequest snapshots an inbound request, applies the privacy filter
// to its headers, and submits it for verification.
func (c *VerifierClient) VerifyHTTPRequest(ctx context.Context, r *http.Request) (verifier.VerificationResult, error) {
	headers, err := ExtractForwardedHeaders(r.Header)
	if err != nil {
		return verifier.VerificationResult{}, err
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	return c.Verify(ctx, verifier.Request{
		Method:  r.Method,
		URL:     scheme + "://" + r.Host + r.URL.RequestURI(),
		Headers: headers,
	})
}
