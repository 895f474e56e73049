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

// Package safefetch retrieves key material and discovery documents over HTTP
// with the fetch discipline every outbound request in the verification path
// must follow: SSRF validation before the request, re-validation of resolved
// addresses at dial time, a hard timeout, a byte-size cap and an absolute
// refusal to follow redirects.
package safefetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds a single fetch.
	DefaultTimeout = 3 * time.Second

	// DefaultMaxBytes caps the response body size.
	DefaultMaxBytes = 1 << 20
)

var (
	// ErrUnsafeURL indicates the target failed SSRF validation.
	ErrUnsafeURL = errors.New("url failed safety validation")

	// ErrRedirectRefused indicates the target answered with a 3xx. Redirects
	// are never followed: following one would bypass the SSRF gate.
	ErrRedirectRefused = errors.New("redirect refused")

	// ErrResponseTooLarge indicates the response exceeded the size cap.
	ErrResponseTooLarge = errors.New("response exceeds size limit")

	// ErrUnexpectedStatus indicates a non-2xx response.
	ErrUnexpectedStatus = errors.New("unexpected response status")
)

// Client fetches small JSON or certificate documents safely. The zero value
// is usable; fields customize limits.
type Client struct {
	// HTTPClient overrides the built-in guarded client. Overriding also
	// disables the dial-time address check, so only do this in tests.
	HTTPClient *http.Client

	// Timeout per fetch. Defaults to DefaultTimeout.
	Timeout time.Duration

	// MaxBytes caps the response body. Defaults to DefaultMaxBytes.
	MaxBytes int64

	// Accept is sent as the Accept header. Defaults to "application/json".
	Accept string

	// AllowPrivate skips the SSRF gate entirely. Intended for local
	// development and tests against loopback servers, never production.
	AllowPrivate bool

	// Logger defaults to a nop logger.
	Logger *zap.Logger

	once    sync.Once
	guarded *http.Client
}

// Fetch retrieves the URL and returns the response body. Every failure mode
// (validation, timeout, redirect, oversize, non-2xx) is an error; the caller
// decides whether that is soft or fatal.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if !c.AllowPrivate {
		if err := ValidateSafeURL(rawURL); err != nil {
			return nil, err
		}
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	accept := c.Accept
	if accept == "" {
		accept = "application/json"
	}
	req.Header.Set("Accept", accept)

	resp, err := c.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		c.logger().Warn("redirect refused during fetch",
			zap.String("url", rawURL), zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: %s answered %d", ErrRedirectRefused, rawURL, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %d from %s", ErrUnexpectedStatus, resp.StatusCode, rawURL)
	}

	maxBytes := c.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if resp.ContentLength > maxBytes {
		return nil, fmt.Errorf("%w: content-length %d", ErrResponseTooLarge, resp.ContentLength)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body from %s: %w", rawURL, err)
	}
	if int64(len(body)) > maxBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrResponseTooLarge, maxBytes)
	}
	return body, nil
}

func (c *Client) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	c.once.Do(func() {
		dialer := &net.Dialer{
			Timeout: DefaultTimeout,
			Control: func(network, address string, _ syscall.RawConn) error {
				if c.AllowPrivate {
					return nil
				}
				host, _, err := net.SplitHostPort(address)
				if err != nil {
					return fmt.Errorf("%w: %v", ErrUnsafeURL, err)
				}
				ip := net.ParseIP(host)
				if ip == nil {
					return fmt.Errorf("%w: unresolved address %q", ErrUnsafeURL, host)
				}
				return checkIP(ip)
			},
		}
		c.guarded = &http.Client{
			Transport: &http.Transport{
				DialContext:       dialer.DialContext,
				ForceAttemptHTTP2: true,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	})
	return c.guarded
}

func (c *Client) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}
