// Package server provides HTTP middleware for web-bot-auth request
// verification.
//
// The server package wraps any http.Handler with verification of RFC 9421
// HTTP Message Signatures bound to an agent's published key directory, and
// reports the outcome through X-OBAuth-* response headers.
//
// # Features
//
//   - Automatic signature verification for inbound HTTP requests
//   - 401 rejection with machine-readable X-OBAuth-Error header
//   - Verified agent identity propagated through the request context
//   - Optional verification mode (unsigned requests pass through)
//   - CORS preflight support (OPTIONS requests)
//   - Custom error handler support
//
// # Basic Usage
//
//	v := verifier.New(verifier.Options{Config: verifier.DefaultConfig()})
//	middleware := server.NewAuthMiddleware(v)
//
//	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	    agent, ok := server.AgentFromContext(r.Context())
//	    if !ok {
//	        http.Error(w, "Unauthorized", http.StatusUnauthorized)
//	        return
//	    }
//	    fmt.Fprintf(w, "Authenticated agent: %s", agent.JWKSURL)
//	})
//
//	http.Handle("/", middleware.Wrap(handler))
//
// # Response Headers
//
// Every handled request carries the verification outcome:
//
//	X-OBAuth-Signed:   whether signature headers were present
//	X-OBAuth-Verified: whether the signature verified
//	X-OBAuth-Agent:    the agent's client_name (or JWKS URL) on success
//	X-OBAuth-Error:    the failure reason on rejection
//
// # Optional Verification
//
//	// Let unsigned requests through; signed-but-invalid ones are still
//	// rejected.
//	middleware.SetOptional(true)
//
// # Custom Error Handler
//
//	middleware.SetErrorHandler(func(w http.ResponseWriter, r *http.Request, result verifier.VerificationResult) {
//	    log.Printf("rejected %s: %s", r.RemoteAddr, result.Error)
//	    http.Error(w, "Forbidden", http.StatusForbidden)
//	})
//
// # Thread Safety
//
// The middleware is safe for concurrent use by multiple goroutines and can
// be shared across multiple HTTP servers.
package server
