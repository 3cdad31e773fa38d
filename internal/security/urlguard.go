package security

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrNonPublicURL is returned for URLs that point into private networks
var ErrNonPublicURL = errors.New("non-public URL")

var privateRanges = mustParseCIDRs(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10", // carrier-grade NAT
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

var blockedHosts = []string{
	"localhost",
	"localhost.localdomain",
	"ip6-localhost",
	"ip6-loopback",
	"metadata.google.internal",
	"kubernetes.default",
	"kubernetes.default.svc",
}

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

// IsPrivateIP reports whether ip is loopback, link-local or in a private range.
// A nil IP counts as private.
func IsPrivateIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	for _, n := range privateRanges {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func isBlockedHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, b := range blockedHosts {
		if host == b || strings.HasSuffix(host, "."+b) {
			return true
		}
	}
	return false
}

// PublicURL parses rawURL and rejects anything that is not an http(s) URL on a
// public host. Hostnames are not resolved; with a resolver, every address
// returned must be public too.
func PublicURL(rawURL string, resolve func(host string) ([]net.IP, error)) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("only HTTP/HTTPS URLs are supported, got: %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("URL must have a hostname")
	}
	if isBlockedHost(host) {
		return nil, fmt.Errorf("%w: internal host %s", ErrNonPublicURL, host)
	}

	if ip := net.ParseIP(host); ip != nil {
		if IsPrivateIP(ip) {
			return nil, fmt.Errorf("%w: private address %s", ErrNonPublicURL, host)
		}
		return u, nil
	}
	if resolve == nil {
		return u, nil
	}

	// Resolution failures are left to the HTTP request itself
	ips, err := resolve(host)
	if err != nil {
		return u, nil
	}
	for _, ip := range ips {
		if IsPrivateIP(ip) {
			return nil, fmt.Errorf("%w: %s resolves to %s", ErrNonPublicURL, host, ip)
		}
	}
	return u, nil
}
