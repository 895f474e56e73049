// Package client talks to a hosted verifier service.
//
// The client package lets an origin that does not embed the verification
// pipeline delegate it to a remote service: it snapshots an inbound request,
// strips credential headers, POSTs the snapshot to the service's /verify
// endpoint, and parses the verification result.
//
// # Basic Usage
//
//	c := client.NewVerifierClient("https://verifier.internal.example.com", nil)
//
//	result, err := c.VerifyHTTPRequest(ctx, r)
//	if err != nil {
//	    // infrastructure failure, not a verdict
//	}
//	if !result.Verified {
//	    // deny, result.Error says why
//	}
//
// # Privacy
//
// Credential headers (Cookie, Authorization, Proxy-Authorization,
// WWW-Authenticate) are never forwarded. A signature that covers one of them
// cannot be verified remotely without shipping the credential along, so
// ExtractForwardedHeaders refuses such requests with
// ErrSensitiveHeaderCovered instead of quietly leaking.
//
// # Degradation
//
// A 5xx from the verifier service comes back as an unverified result rather
// than an error: an outage of the verification tier degrades to deny.
package client
