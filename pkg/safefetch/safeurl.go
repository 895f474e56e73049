package safefetch

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidateSafeURL rejects URLs that must never be fetched on behalf of
// agent-supplied or JWK-supplied input: non-HTTP schemes, loopback,
// unspecified, link-local and private addresses, and the literal localhost.
// Malformed URLs fail closed.
func ValidateSafeURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrUnsafeURL, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrUnsafeURL)
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("%w: localhost", ErrUnsafeURL)
	}
	if ip := net.ParseIP(host); ip != nil {
		if err := checkIP(ip); err != nil {
			return err
		}
	}
	return nil
}

// checkIP classifies a single address against the blocked ranges. It is also
// applied at dial time so a hostname cannot resolve around the gate.
func checkIP(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("%w: loopback address %s", ErrUnsafeURL, ip)
	case ip.IsUnspecified():
		return fmt.Errorf("%w: unspecified address %s", ErrUnsafeURL, ip)
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return fmt.Errorf("%w: link-local address %s", ErrUnsafeURL, ip)
	case ip.IsPrivate():
		return fmt.Errorf("%w: private address %s", ErrUnsafeURL, ip)
	}
	return nil
}
