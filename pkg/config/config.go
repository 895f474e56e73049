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

// Package config loads the verifier service configuration from YAML.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sage-x-project/webbotauth/pkg/delegation"
	"github.com/sage-x-project/webbotauth/pkg/verifier"
)

// X509Config controls the optional delegation-validation stage.
type X509Config struct {
	Enabled bool `yaml:"enabled"`

	// TrustAnchorsFile points at a PEM bundle of acceptable terminal
	// certificates. Required when Enabled.
	TrustAnchorsFile string `yaml:"trust_anchors_file"`

	RequireClientAuthEKU bool   `yaml:"require_client_auth_eku"`
	ExpectedSANURI       string `yaml:"expected_san_uri"`
}

// Config is the YAML configuration document for a verifier deployment.
type Config struct {
	TrustedDirectories   []string   `yaml:"trusted_directories"`
	MaxClockSkewSeconds  int        `yaml:"max_clock_skew_seconds"`
	NonceTTLSeconds      int        `yaml:"nonce_ttl_seconds"`
	JWKSCacheTTLSeconds  int        `yaml:"jwks_cache_ttl_seconds"`
	RequireTag           bool       `yaml:"require_tag"`
	RequireNonce         bool       `yaml:"require_nonce"`
	DiscoveryPaths       []string   `yaml:"discovery_paths"`
	AllowPrivateNetworks bool       `yaml:"allow_private_networks"`
	X509                 X509Config `yaml:"x509"`
}

// Default returns the documented defaults: 300s clock skew, 600s nonce TTL,
// 3600s JWKS cache, tag required.
func Default() Config {
	return Config{
		MaxClockSkewSeconds: 300,
		NonceTTLSeconds:     600,
		JWKSCacheTTLSeconds: 3600,
		RequireTag:          true,
	}
}

// Load reads and validates a config file. Absent fields keep their defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is coherent.
func (c Config) Validate() error {
	if c.MaxClockSkewSeconds <= 0 {
		return fmt.Errorf("invalid max_clock_skew_seconds: must be > 0")
	}
	if c.NonceTTLSeconds <= 0 {
		return fmt.Errorf("invalid nonce_ttl_seconds: must be > 0")
	}
	if c.JWKSCacheTTLSeconds <= 0 {
		return fmt.Errorf("invalid jwks_cache_ttl_seconds: must be > 0")
	}
	for _, p := range c.DiscoveryPaths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("invalid discovery path %q: must start with /", p)
		}
	}
	for _, entry := range c.TrustedDirectories {
		if strings.TrimSpace(entry) == "" {
			return fmt.Errorf("invalid trusted_directories: empty entry")
		}
	}
	if c.X509.Enabled && c.X509.TrustAnchorsFile == "" {
		return fmt.Errorf("invalid x509: trust_anchors_file required when enabled")
	}
	return nil
}

// VerifierConfig converts the document into the verifier's policy struct.
func (c Config) VerifierConfig() verifier.Config {
	return verifier.Config{
		TrustedDirectories:   c.TrustedDirectories,
		MaxClockSkew:         time.Duration(c.MaxClockSkewSeconds) * time.Second,
		NonceTTL:             time.Duration(c.NonceTTLSeconds) * time.Second,
		JWKSCacheTTL:         time.Duration(c.JWKSCacheTTLSeconds) * time.Second,
		RequireTag:           c.RequireTag,
		RequireNonce:         c.RequireNonce,
		DiscoveryPaths:       c.DiscoveryPaths,
		AllowPrivateNetworks: c.AllowPrivateNetworks,
	}
}

// DelegationValidator builds the X.509 validator from the x509 block, or nil
// when the stage is disabled.
func (c Config) DelegationValidator() (*delegation.Validator, error) {
	if !c.X509.Enabled {
		return nil, nil
	}
	pemData, err := os.ReadFile(c.X509.TrustAnchorsFile)
	if err != nil {
		return nil, fmt.Errorf("read trust anchors %q: %w", c.X509.TrustAnchorsFile, err)
	}
	anchors, err := delegation.ParseAnchorsPEM(pemData)
	if err != nil {
		return nil, err
	}
	return delegation.New(delegation.Options{
		Anchors:              anchors,
		RequireClientAuthEKU: c.X509.RequireClientAuthEKU,
		ExpectedSANURI:       c.X509.ExpectedSANURI,
	}), nil
}
