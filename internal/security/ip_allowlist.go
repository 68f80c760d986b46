package security

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// ParseCIDRAllowlist accepts a mix of CIDR blocks and bare addresses, so an
// allowlist can name a single back-office host without the /32 suffix.
func ParseCIDRAllowlist(entries []string) ([]*net.IPNet, error) {
	var out []*net.IPNet
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("allowlist entry %q is not an address or CIDR block", entry)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// IPAllowlist restricts dispute operations to the configured networks. An
// empty allowlist admits everyone. Denials are logged with the correlation id
// so a blocked back-office request can be traced to its caller.
func IPAllowlist(allow []*net.IPNet, l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(allow) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			ip := net.ParseIP(host)
			if ip == nil || !allowed(allow, ip) {
				if l != nil {
					l.Warn("request outside allowlist",
						"cid", CorrelationIDFromContext(r.Context()),
						"remote", r.RemoteAddr,
						"path", r.URL.Path,
					)
				}
				WriteJSONError(w, r, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func allowed(allow []*net.IPNet, ip net.IP) bool {
	for _, n := range allow {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
