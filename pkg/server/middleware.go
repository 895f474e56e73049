package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sage-x-project/webbotauth/pkg/verifier"
)

type contextKey string

const agentContextKey contextKey = "webbotauth_agent"

// Response headers announcing the verification outcome to downstream
// handlers and clients.
const (
	HeaderSigned   = "X-OBAuth-Signed"
	HeaderVerified = "X-OBAuth-Verified"
	HeaderAgent    = "X-OBAuth-Agent"
	HeaderError    = "X-OBAuth-Error"
)

// ErrorHandler handles rejected requests.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, result verifier.VerificationResult)

// AuthMiddleware provides HTTP middleware for web-bot-auth signature
// verification.
type AuthMiddleware struct {
	verifier     verifier.Verifier
	errorHandler ErrorHandler
	optional     bool
	log          *zap.Logger
}

// NewAuthMiddleware creates middleware around a verifier.
func NewAuthMiddleware(v verifier.Verifier) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:     v,
		errorHandler: defaultErrorHandler,
		optional:     false,
		log:          zap.NewNop(),
	}
}

// SetErrorHandler sets a custom error handler.
func (m *AuthMiddleware) SetErrorHandler(handler ErrorHandler) {
	m.errorHandler = handler
}

// SetOptional sets whether signature verification is optional.
// If true, unsigned requests pass through with X-OBAuth-Signed: false;
// signed-but-invalid requests are still rejected.
func (m *AuthMiddleware) SetOptional(optional bool) {
	m.optional = optional
}

// SetLogger sets the middleware logger.
func (m *AuthMiddleware) SetLogger(log *zap.Logger) {
	m.log = log
}

// Wrap wraps an HTTP handler with web-bot-auth verification.
func (m *AuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip verification for OPTIONS requests (CORS preflight)
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		signed := r.Header.Get("Signature-Input") != "" && r.Header.Get("Signature") != ""
		w.Header().Set(HeaderSigned, strconv.FormatBool(signed))

		if !signed {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			result := verifier.VerificationResult{Error: "missing signature headers"}
			w.Header().Set(HeaderVerified, "false")
			w.Header().Set(HeaderError, result.Error)
			m.errorHandler(w, r, result)
			return
		}

		result := m.verifier.Verify(r.Context(), snapshotRequest(r))
		w.Header().Set(HeaderVerified, strconv.FormatBool(result.Verified))

		if !result.Verified {
			w.Header().Set(HeaderError, result.Error)
			m.log.Debug("request rejected", zap.String("error", result.Error))
			m.errorHandler(w, r, result)
			return
		}

		if name := agentDisplay(result.Agent); name != "" {
			w.Header().Set(HeaderAgent, name)
		}

		ctx := context.WithValue(r.Context(), agentContextKey, result.Agent)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AgentFromContext extracts the verified agent from the request context.
func AgentFromContext(ctx context.Context) (*verifier.Agent, bool) {
	agent, ok := ctx.Value(agentContextKey).(*verifier.Agent)
	return agent, ok && agent != nil
}

// snapshotRequest converts an inbound http.Request into the verifier's
// request contract: full URL and lowercased single-valued headers.
func snapshotRequest(r *http.Request) verifier.Request {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	headers := make(map[string]string, len(r.Header))
	for k, vals := range r.Header {
		if len(vals) > 0 {
			headers[strings.ToLower(k)] = vals[0]
		}
	}

	return verifier.Request{
		Method:  r.Method,
		URL:     scheme + "://" + r.Host + r.URL.RequestURI(),
		Headers: headers,
	}
}

func agentDisplay(agent *verifier.Agent) string {
	if agent == nil {
		return ""
	}
	if agent.ClientName != "" {
		return agent.ClientName
	}
	return agent.JWKSURL
}

// defaultErrorHandler rejects the request with 401.
func defaultErrorHandler(w http.ResponseWriter, r *http.Request, result verifier.VerificationResult) {
	http.Error(w, "Unauthorized: "+result.Error, http.StatusUnauthorized)
}
