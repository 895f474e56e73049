package signer

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dunglas/httpsfv"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/sage-x-project/webbotauth/pkg/httpsig"
	"github.com/sage-x-project/webbotauth/pkg/keydirectory"
)

// DefaultExpiryWindow is how long a signature stays valid when the caller
// does not pick an expiry.
const DefaultExpiryWindow = 5 * time.Minute

// DefaultSigner implements Signer with Ed25519 over an RFC 9421 signature
// base.
type DefaultSigner struct {
	now func() time.Time
}

// NewDefaultSigner creates a new DefaultSigner.
func NewDefaultSigner() *DefaultSigner {
	return &DefaultSigner{now: time.Now}
}

// SignRequest signs an HTTP request using default options.
func (s *DefaultSigner) SignRequest(ctx context.Context, req *http.Request, key jwk.Key) error {
	return s.SignRequestWithOptions(ctx, req, key, nil)
}

// SignRequestWithOptions signs an HTTP request with custom options. The
// Signature-Input header is serialized first and the signature base is
// derived by parsing it back, so the signed bytes are exactly what a
// verifier will reconstruct from the wire.
func (s *DefaultSigner) SignRequestWithOptions(ctx context.Context, req *http.Request, key jwk.Key, opts *SigningOptions) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	if req == nil {
		return fmt.Errorf("request cannot be nil")
	}
	if key == nil {
		return fmt.Errorf("key cannot be nil")
	}
	if opts == nil {
		opts = &SigningOptions{}
	}

	var priv ed25519.PrivateKey
	if err := key.Raw(&priv); err != nil {
		return fmt.Errorf("key is not an Ed25519 private key: %w", err)
	}

	label := opts.Label
	if label == "" {
		label = "sig1"
	}

	keyID := opts.KeyID
	if keyID == "" {
		keyID = key.KeyID()
	}
	if keyID == "" {
		tp, err := keydirectory.Thumbprint(key)
		if err != nil {
			return fmt.Errorf("derive keyid: %w", err)
		}
		keyID = tp
	}

	created := opts.Created
	if created == 0 {
		created = s.now().Unix()
	}
	expires := opts.Expires
	if expires == 0 {
		expires = created + int64(DefaultExpiryWindow/time.Second)
	}
	nonce := opts.Nonce
	if nonce == "" {
		nonce = uuid.NewString()
	}
	tag := opts.Tag
	if tag == "" {
		tag = "web-bot-auth"
	}

	components := opts.Components
	if len(components) == 0 {
		components = []string{"@method", "@path", "@authority"}
		if opts.Agent != "" {
			components = append(components, "signature-agent")
		}
	}

	// Signature-Agent must be on the request before the base is built so it
	// can be covered.
	if opts.Agent != "" {
		agentHeader, err := serializeAgent(label, opts.Agent)
		if err != nil {
			return fmt.Errorf("serialize signature-agent: %w", err)
		}
		req.Header.Set("Signature-Agent", agentHeader)
	}

	signatureInput, err := serializeSignatureInput(label, components, keyID, created, expires, nonce, tag)
	if err != nil {
		return fmt.Errorf("serialize signature-input: %w", err)
	}

	sc, err := httpsig.ParseSignatureInput(signatureInput, label)
	if err != nil {
		return fmt.Errorf("round-trip signature-input: %w", err)
	}
	base, err := httpsig.BuildSignatureBase(req.Method, req.URL.String(), lowercaseHeaders(req.Header), sc)
	if err != nil {
		return fmt.Errorf("build signature base: %w", err)
	}

	signature := ed25519.Sign(priv, []byte(base))

	signatureHeader, err := serializeSignature(label, signature)
	if err != nil {
		return fmt.Errorf("serialize signature: %w", err)
	}

	req.Header.Set("Signature-Input", signatureInput)
	req.Header.Set("Signature", signatureHeader)
	return nil
}

// serializeSignatureInput builds the Signature-Input dictionary member for
// one label.
func serializeSignatureInput(label string, components []string, keyID string, created, expires int64, nonce, tag string) (string, error) {
	list := httpsfv.InnerList{Params: httpsfv.NewParams()}
	for _, comp := range components {
		list.Items = append(list.Items, httpsfv.NewItem(strings.ToLower(comp)))
	}
	list.Params.Add("created", created)
	list.Params.Add("expires", expires)
	list.Params.Add("keyid", keyID)
	if nonce != "" {
		list.Params.Add("nonce", nonce)
	}
	if tag != "" {
		list.Params.Add("tag", tag)
	}

	dict := httpsfv.NewDictionary()
	dict.Add(label, list)
	return httpsfv.Marshal(dict)
}

func serializeSignature(label string, signature []byte) (string, error) {
	dict := httpsfv.NewDictionary()
	dict.Add(label, httpsfv.NewItem(signature))
	return httpsfv.Marshal(dict)
}

func serializeAgent(label, agentURL string) (string, error) {
	dict := httpsfv.NewDictionary()
	dict.Add(label, httpsfv.NewItem(agentURL))
	return httpsfv.Marshal(dict)
}

func lowercaseHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vals := range h {
		if len(vals) > 0 {
			out[strings.ToLower(k)] = vals[0]
		}
	}
	return out
}
