// Package signer produces web-bot-auth request signatures.
//
// This package implements the signing side of RFC 9421 HTTP Message
// Signatures as consumed by the verifier package: an Ed25519 signature over
// a canonical signature base, announced through the Signature-Input,
// Signature, and Signature-Agent headers.
//
// # Signing HTTP Requests
//
// Use Signer to sign outgoing HTTP requests with your agent's JWK:
//
//	s := signer.NewDefaultSigner()
//	req, _ := http.NewRequest("GET", "https://origin.example.com/page", nil)
//
//	err := s.SignRequest(ctx, req, key)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// This adds Signature and Signature-Input headers to the request, plus a
// Signature-Agent header when an agent URL is configured.
//
// # Custom Signing Options
//
//	opts := &signer.SigningOptions{
//	    Components: []string{"@method", "@path", "@authority", "signature-agent"},
//	    Agent:      "https://crawler.example.com/jwks.json",
//	    Created:    time.Now().Unix(),
//	    Expires:    time.Now().Add(5 * time.Minute).Unix(),
//	    Nonce:      "random-nonce-value",
//	}
//
//	err := s.SignRequestWithOptions(ctx, req, key, opts)
//
// # Signature Components
//
// Common components to cover:
//
//   - @method - HTTP method (GET, POST, etc.)
//   - @path - URL path
//   - @authority - host (binds the signature to the origin)
//   - @target-uri - full request URL
//   - signature-agent - the agent's own key-directory announcement
//
// Covering @authority or @target-uri is mandatory for the verifier to
// accept the signature; covering signature-agent is mandatory whenever a
// Signature-Agent header is sent.
//
// # Round Trip
//
// The signer serializes the Signature-Input header first and then derives
// the signature base by parsing its own output, so the base the signature is
// computed over is byte-identical to the one any verifier reconstructs from
// the wire.
package signer
