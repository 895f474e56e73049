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

// Package delegation validates the optional X.509 material (x5c/x5u) a
// published JWK may carry, binding the key to a certificate chain that must
// terminate at a configured trust anchor. A key without such material
// trivially validates; delegation is additive per key, never mandatory.
package delegation

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/sage-x-project/webbotauth/pkg/safefetch"
)

var (
	// ErrNoTrustAnchors indicates delegation material was presented but no
	// trust anchors are configured. That is a failure, not a pass.
	ErrNoTrustAnchors = errors.New("trust anchors not configured")

	// ErrInvalidDelegation indicates the x5c/x5u material could not be
	// decoded into certificates.
	ErrInvalidDelegation = errors.New("invalid delegation material")

	// ErrKeyMismatch indicates the JWK public key does not byte-equal the
	// leaf certificate's public key.
	ErrKeyMismatch = errors.New("jwk does not match leaf certificate key")

	// ErrCertificateExpired indicates a chain certificate is outside its
	// validity window.
	ErrCertificateExpired = errors.New("certificate outside validity window")

	// ErrNotAuthorizedCA indicates a certificate that issued another in the
	// chain does not carry BasicConstraints cA=true.
	ErrNotAuthorizedCA = errors.New("issuer certificate is not a CA")

	// ErrBrokenChain indicates a chain signature does not verify.
	ErrBrokenChain = errors.New("certificate chain signature invalid")

	// ErrUntrustedChain indicates the chain does not terminate at any
	// configured trust anchor.
	ErrUntrustedChain = errors.New("certificate chain does not terminate at a trust anchor")

	// ErrMissingClientAuthEKU indicates the leaf declares extended key
	// usages without clientAuth.
	ErrMissingClientAuthEKU = errors.New("leaf certificate lacks clientAuth extended key usage")

	// ErrSANMismatch indicates the leaf SAN URI does not match the expected
	// agent identifier.
	ErrSANMismatch = errors.New("leaf certificate SAN does not match expected agent identifier")
)

// Validator checks delegation chains against configured trust anchors.
type Validator struct {
	anchors              []*x509.Certificate
	requireClientAuthEKU bool
	expectedSANURI       string
	fetcher              *safefetch.Client
	now                  func() time.Time
}

// Options configures a Validator.
type Options struct {
	// Anchors are the acceptable terminal certificates.
	Anchors []*x509.Certificate

	// RequireClientAuthEKU makes a leaf with an EKU extension that lacks
	// clientAuth fail. A leaf with no EKU extension at all is unconstrained
	// and passes.
	RequireClientAuthEKU bool

	// ExpectedSANURI, when set, must equal the leaf's SAN URI entry.
	ExpectedSANURI string

	// Fetcher retrieves x5u certificates. Defaults to a safefetch client.
	Fetcher *safefetch.Client

	// Now substitutes the clock, for tests.
	Now func() time.Time
}

// New creates a Validator.
func New(opts Options) *Validator {
	v := &Validator{
		anchors:              opts.Anchors,
		requireClientAuthEKU: opts.RequireClientAuthEKU,
		expectedSANURI:       opts.ExpectedSANURI,
		fetcher:              opts.Fetcher,
		now:                  opts.Now,
	}
	if v.fetcher == nil {
		v.fetcher = &safefetch.Client{Accept: "*/*"}
	}
	if v.now == nil {
		v.now = time.Now
	}
	return v
}

// ParseAnchorsPEM decodes one or more PEM certificate blocks into trust
// anchors.
func ParseAnchorsPEM(data []byte) ([]*x509.Certificate, error) {
	var anchors []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse trust anchor: %w", err)
		}
		anchors = append(anchors, cert)
	}
	if len(anchors) == 0 {
		return nil, errors.New("no certificates in trust anchor PEM")
	}
	return anchors, nil
}

// ValidateKey validates the delegation material on key. A nil return means
// the key either carries no material or carries a chain that binds the key
// and terminates at a trust anchor.
func (v *Validator) ValidateKey(ctx context.Context, key jwk.Key) error {
	certs, err := v.certificates(ctx, key)
	if err != nil {
		return err
	}
	if len(certs) == 0 {
		return nil
	}
	if len(v.anchors) == 0 {
		return ErrNoTrustAnchors
	}

	leaf := certs[0]
	if err := v.bindKey(key, leaf); err != nil {
		return err
	}

	now := v.now()
	for _, cert := range certs {
		if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
			return fmt.Errorf("%w: %q", ErrCertificateExpired, cert.Subject.CommonName)
		}
	}

	// Walk leaf -> root: every issuer inside the chain must be an authorized
	// CA, except a terminal certificate that IS a configured anchor.
	for i := 0; i < len(certs)-1; i++ {
		issuer := certs[i+1]
		terminalAnchor := i+1 == len(certs)-1 && v.isAnchorFingerprint(issuer)
		if !terminalAnchor && !(issuer.BasicConstraintsValid && issuer.IsCA) {
			return fmt.Errorf("%w: %q", ErrNotAuthorizedCA, issuer.Subject.CommonName)
		}
		if err := certs[i].CheckSignatureFrom(issuer); err != nil {
			return fmt.Errorf("%w: %v", ErrBrokenChain, err)
		}
	}

	terminal := certs[len(certs)-1]
	if v.isAnchorFingerprint(terminal) {
		return v.checkLeafPolicy(leaf)
	}
	for _, anchor := range v.anchors {
		if terminal.CheckSignatureFrom(anchor) == nil {
			return v.checkLeafPolicy(leaf)
		}
	}
	return ErrUntrustedChain
}

func (v *Validator) checkLeafPolicy(leaf *x509.Certificate) error {
	if v.requireClientAuthEKU && len(leaf.ExtKeyUsage) > 0 {
		found := false
		for _, eku := range leaf.ExtKeyUsage {
			if eku == x509.ExtKeyUsageClientAuth {
				found = true
				break
			}
		}
		if !found {
			return ErrMissingClientAuthEKU
		}
	}

	if v.expectedSANURI != "" {
		if len(leaf.URIs) == 0 {
			return fmt.Errorf("%w: no SAN URI present", ErrSANMismatch)
		}
		for _, uri := range leaf.URIs {
			if uri.String() == v.expectedSANURI {
				return nil
			}
		}
		return fmt.Errorf("%w: got %q", ErrSANMismatch, leaf.URIs[0].String())
	}
	return nil
}

// bindKey checks that the JWK and the leaf certificate hold the same public
// key, comparing re-encoded SubjectPublicKeyInfo bytes.
func (v *Validator) bindKey(key jwk.Key, leaf *x509.Certificate) error {
	var raw interface{}
	if err := key.Raw(&raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDelegation, err)
	}
	jwkDER, err := x509.MarshalPKIXPublicKey(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDelegation, err)
	}
	leafDER, err := x509.MarshalPKIXPublicKey(leaf.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDelegation, err)
	}
	if !bytes.Equal(jwkDER, leafDER) {
		return ErrKeyMismatch
	}
	return nil
}

func (v *Validator) isAnchorFingerprint(cert *x509.Certificate) bool {
	fp := sha256.Sum256(cert.Raw)
	for _, anchor := range v.anchors {
		if sha256.Sum256(anchor.Raw) == fp {
			return true
		}
	}
	return false
}

// certificates assembles the chain, leaf first, from x5c entries or a
// fetched x5u document.
func (v *Validator) certificates(ctx context.Context, key jwk.Key) ([]*x509.Certificate, error) {
	if chain := key.X509CertChain(); chain != nil && chain.Len() > 0 {
		var certs []*x509.Certificate
		for i := 0; i < chain.Len(); i++ {
			entry, _ := chain.Get(i)
			der, err := base64.StdEncoding.DecodeString(string(entry))
			if err != nil {
				return nil, fmt.Errorf("%w: x5c[%d]: %v", ErrInvalidDelegation, i, err)
			}
			cert, err := x509.ParseCertificate(der)
			if err != nil {
				return nil, fmt.Errorf("%w: x5c[%d]: %v", ErrInvalidDelegation, i, err)
			}
			certs = append(certs, cert)
		}
		return certs, nil
	}

	if u := key.X509URL(); u != "" {
		body, err := v.fetcher.Fetch(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("%w: x5u: %v", ErrInvalidDelegation, err)
		}
		return parseCertData(body)
	}

	return nil, nil
}

// parseCertData accepts PEM or raw DER.
func parseCertData(data []byte) ([]*x509.Certificate, error) {
	if bytes.Contains(data, []byte("-----BEGIN")) {
		var certs []*x509.Certificate
		rest := data
		for {
			var block *pem.Block
			block, rest = pem.Decode(rest)
			if block == nil {
				break
			}
			if block.Type != "CERTIFICATE" {
				continue
			}
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidDelegation, err)
			}
			certs = append(certs, cert)
		}
		if len(certs) == 0 {
			return nil, fmt.Errorf("%w: no certificates in PEM", ErrInvalidDelegation)
		}
		return certs, nil
	}

	certs, err := x509.ParseCertificates(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDelegation, err)
	}
	return certs, nil
}
