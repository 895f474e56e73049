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

// Package verifier orchestrates end-to-end verification of web-bot-auth
// signed requests.
//
// This package sequences RFC 9421 HTTP Message Signature verification bound
// to an agent's published JWKS: header parsing, Signature-Agent resolution,
// trusted-directory checks, freshness and replay protection, key lookup,
// optional X.509 delegation, and final Ed25519 verification.
//
// # Verification
//
// The DefaultVerifier runs the whole pipeline from a plain request snapshot:
//
//	v := verifier.New(verifier.Options{
//	    Config: verifier.DefaultConfig(),
//	})
//
//	result := v.Verify(ctx, verifier.Request{
//	    Method:  "GET",
//	    URL:     "https://example.com/res",
//	    Headers: headers, // lowercase keys, including signature-input etc.
//	})
//	if !result.Verified {
//	    log.Println("rejected:", result.Error)
//	}
//
// On success the result carries the agent identity that signed the request:
//
//	result.Agent.JWKSURL    // key directory the signature verified against
//	result.Agent.KID        // key id within that directory
//	result.Agent.ClientName // optional operator-published display name
//
// # Pipeline
//
// Each stage short-circuits with an explicit error string; nothing panics and
// no error escapes Verify:
//
//  1. Required headers present (signature-input, signature, and either
//     signature-agent or an out-of-band Request.JWKSURL).
//  2. Signature-Input parsed, one labeled signature selected.
//  3. Agent resolved to a JWKS URL, via well-known discovery if needed.
//  4. JWKS URL checked against configured trusted directories.
//  5. Signature bytes attached from the Signature header.
//  6. created/expires freshness and nonce replay checks.
//  7. tag="web-bot-auth" policy check.
//  8. Coverage checks (signature-agent binding, origin binding).
//  9. Key fetched from the JWKS cache; must be Ed25519.
// 10. Optional X.509 delegation validation.
// 11. Signature base reconstruction.
// 12. Ed25519 verification over the base bytes.
// 13. client_name surfaced from the key directory.
//
// # Security Considerations
//
//   - Every stage fails closed; ambiguity is never resolved in the
//     requester's favor.
//   - The cryptographic failure message is deliberately generic so a forger
//     cannot distinguish which sub-check failed.
//   - All outbound fetches go through the SSRF-hardened safefetch discipline
//     and never follow redirects.
package verifier
