package fetch

import (
	"fmt"
	"net"
	"net/url"
)

var lookupIP = net.LookupIP

// checkPublicURL rejects non-http(s) URLs and hosts that resolve to private,
// loopback or link-local addresses.
func checkPublicURL(rawURL string) error {
	parsed, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("scheme %q not allowed", parsed.Scheme)
	}

	host := parsed.Hostname()
	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		resolved, err := lookupIP(host)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", host, err)
		}
		ips = resolved
	}
	if len(ips) == 0 {
		return fmt.Errorf("no addresses for %s", host)
	}

	for _, ip := range ips {
		if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return fmt.Errorf("address %s is not publicly routable", ip)
		}
	}
	return nil
}
