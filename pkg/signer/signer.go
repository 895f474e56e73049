package signer

import (
	"context"
	"net/http"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// Signer signs HTTP requests with web-bot-auth message signatures.
type Signer interface {
	// SignRequest signs an HTTP request with the agent's Ed25519 key using
	// default options.
	SignRequest(ctx context.Context, req *http.Request, key jwk.Key) error

	// SignRequestWithOptions signs an HTTP request with custom options.
	SignRequestWithOptions(ctx context.Context, req *http.Request, key jwk.Key, opts *SigningOptions) error
}

// SigningOptions contains options for signing HTTP requests.
type SigningOptions struct {
	// Components are the covered components (e.g. "@method", "@authority").
	// Defaults to "@method", "@path", "@authority", plus "signature-agent"
	// when Agent is set.
	Components []string

	// Label is the signature label. Defaults to "sig1".
	Label string

	// KeyID overrides the keyid parameter. Defaults to the key's kid, or its
	// RFC 7638 thumbprint when the key carries none.
	KeyID string

	// Agent is the agent's key-directory or identity URL. When set, a
	// Signature-Agent header is written before signing so it can be covered.
	Agent string

	// Created is the signature timestamp (unix seconds). If 0, current time
	// is used.
	Created int64

	// Expires is the expiry timestamp (unix seconds). If 0, Created plus
	// five minutes is used.
	Expires int64

	// Nonce prevents replay. If empty, a random one is generated.
	Nonce string

	// Tag is the signature tag. Defaults to "web-bot-auth".
	Tag string
}
