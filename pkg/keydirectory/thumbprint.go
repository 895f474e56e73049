package keydirectory

import (
	"crypto"
	"encoding/base64"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// legacyThumbprintLen is the length early key directories truncated
// thumbprint-derived kids to.
const legacyThumbprintLen = 16

// Thumbprint returns the base64url-encoded RFC 7638 SHA-256 thumbprint of a
// key, the canonical kid for published agent keys.
func Thumbprint(key jwk.Key) (string, error) {
	tp, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("compute thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(tp), nil
}

func legacyThumbprint(full string) string {
	if len(full) <= legacyThumbprintLen {
		return full
	}
	return full[:legacyThumbprintLen]
}
