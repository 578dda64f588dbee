// CLAUDE:SUMMARY URL safety checks for navigation targets and service endpoints, plus bounded body reads.
// Package horosafe guards the two places where formfill follows a URL it
// did not choose: pages the browser is asked to open and the endpoints of
// remote services (Oracle, answer store).
package horosafe

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
)

// MaxResponseBody is the default cap for HTTP response bodies (4 MiB).
const MaxResponseBody int64 = 4 << 20

var (
	// ErrSSRF is returned when a URL targets a private or loopback address.
	ErrSSRF = errors.New("horosafe: URL targets a private or loopback address")
	// ErrUnsafeScheme is returned for schemes other than http and https.
	ErrUnsafeScheme = errors.New("horosafe: only http and https schemes are allowed")
)

type urlConfig struct {
	allowPrivate bool
	lookup       func(host string) ([]string, error)
}

// URLOption tunes ValidateURL.
type URLOption func(*urlConfig)

// AllowPrivate accepts loopback and private addresses. Used for locally
// hosted services and tests.
func AllowPrivate(ok bool) URLOption { return func(c *urlConfig) { c.allowPrivate = ok } }

// WithLookup replaces DNS resolution.
func WithLookup(fn func(host string) ([]string, error)) URLOption {
	return func(c *urlConfig) { c.lookup = fn }
}

// ValidateURL checks that rawURL is http(s) with a host and, unless
// AllowPrivate is set, that neither the literal host nor any address it
// resolves to is private. Hosts that fail to resolve are let through; the
// connection attempt reports the failure.
func ValidateURL(rawURL string, opts ...URLOption) error {
	cfg := urlConfig{lookup: net.LookupHost}
	for _, o := range opts {
		o(&cfg)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("horosafe: invalid URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return errors.New("horosafe: URL has no host")
	}
	if cfg.allowPrivate {
		return nil
	}
	if strings.EqualFold(host, "localhost") {
		return ErrSSRF
	}
	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return ErrSSRF
		}
		return nil
	}
	addrs, err := cfg.lookup(host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && isPrivateIP(ip) {
			return ErrSSRF
		}
	}
	return nil
}

// LimitedReadAll reads r fully, failing when it holds more than maxBytes.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("horosafe: body exceeds %d bytes", maxBytes)
	}
	return data, nil
}

var privateNets = func() []*net.IPNet {
	var out []*net.IPNet
	for _, cidr := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "100.64.0.0/10", "fc00::/7"} {
		_, n, _ := net.ParseCIDR(cidr)
		out = append(out, n)
	}
	return out
}()

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	for _, n := range privateNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
