package sdk

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// localSuffixes are host suffixes reserved for development machines.
var localSuffixes = []string{".local", ".localhost", ".test", ".internal"}

// IsLocalHost reports whether host names a loopback or development endpoint.
func IsLocalHost(host string) bool {
	host = strings.ToLower(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate()
	}
	for _, suffix := range localSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// resolveHost validates the collector base URL and normalizes it to end
// with a slash. Plain http, and insecure mode in general, are only
// accepted for local hosts.
func resolveHost(raw string, insecure bool) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse collector host: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("collector host %q has no hostname", raw)
	}

	switch u.Scheme {
	case "https":
	case "http":
		if !insecure {
			return "", fmt.Errorf("%w: %s", ErrInsecureHost, raw)
		}
	default:
		return "", fmt.Errorf("unsupported collector scheme %q", u.Scheme)
	}
	if insecure && !IsLocalHost(u.Host) {
		return "", fmt.Errorf("%w: insecure mode is only allowed for local hosts, got %s", ErrInsecureHost, u.Host)
	}

	u.RawQuery, u.Fragment = "", ""
	host := u.String()
	if !strings.HasSuffix(host, "/") {
		host += "/"
	}
	return host, nil
}
