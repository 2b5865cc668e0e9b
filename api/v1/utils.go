package v1

import (
	"net"
	"net/netip"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// unknownClientIP is hashed when no address can be determined, so such
// visitors share one identity per article and day.
const unknownClientIP = "unknown"

// proxyHeaders are consulted in order after X-Forwarded-For.
var proxyHeaders = []string{
	"X-Real-IP",
	"CF-Connecting-IP",
	"True-Client-IP",
	"X-Client-IP",
}

// IPResolver returns the address views are deduplicated and rate limited by.
type IPResolver func(c *fiber.Ctx) string

// ClientIPResolver picks how the visitor address is read. Forwarding headers
// are set by the client unless a proxy in front of the app overwrites them,
// so without such a proxy only the socket peer can be trusted.
func ClientIPResolver(trustProxyHeaders bool) IPResolver {
	if trustProxyHeaders {
		return getClientIP
	}
	return getPeerIP
}

// getClientIP resolves the visitor address: the first X-Forwarded-For entry,
// then the other proxy headers, then the Forwarded header and finally the
// socket peer.
func getClientIP(c *fiber.Ctx) string {
	if forwardedFor := c.Get("X-Forwarded-For"); forwardedFor != "" {
		first := strings.Split(forwardedFor, ",")[0]
		if ip, _ := normalizeIP(first); ip != "" {
			return ip
		}
	}

	for _, header := range proxyHeaders {
		if value := c.Get(header); value != "" {
			if ip, _ := normalizeIP(value); ip != "" {
				return ip
			}
		}
	}

	if forwarded := c.Get("Forwarded"); forwarded != "" {
		if ip := firstValidIP(parseForwardedHeader(forwarded)); ip != "" {
			return ip
		}
	}

	return getPeerIP(c)
}

// getPeerIP ignores every header and uses the socket address.
func getPeerIP(c *fiber.Ctx) string {
	if ip, parsed := normalizeIP(c.IP()); ip != "" && !parsed.IsUnspecified() {
		return ip
	}
	return unknownClientIP
}

func firstValidIP(values []string) string {
	for _, raw := range values {
		if ip, _ := normalizeIP(raw); ip != "" {
			return ip
		}
	}
	return ""
}

func normalizeIP(raw string) (string, net.IP) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"")
	if clean == "" {
		return "", nil
	}

	// Remove zone identifier if present (e.g. fe80::1%eth0)
	if percent := strings.Index(clean, "%"); percent != -1 {
		clean = clean[:percent]
	}

	// Try parsing addr:port (handles both IPv4:port and [IPv6]:port)
	if addrPort, err := netip.ParseAddrPort(clean); err == nil {
		addr := addrPort.Addr()
		if addr.Is4In6() {
			addr = addr.Unmap()
		}
		ipStr := addr.String()
		return ipStr, net.ParseIP(ipStr)
	}

	trimmed := clean
	if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
		trimmed = strings.TrimPrefix(trimmed, "[")
		trimmed = strings.TrimSuffix(trimmed, "]")
	}

	if addr, err := netip.ParseAddr(trimmed); err == nil {
		if addr.Is4In6() {
			addr = addr.Unmap()
		}
		ipStr := addr.String()
		return ipStr, net.ParseIP(ipStr)
	}

	if host, _, err := net.SplitHostPort(clean); err == nil {
		return normalizeIP(host)
	}

	return "", nil
}

func parseForwardedHeader(header string) []string {
	var candidates []string

	entries := strings.Split(header, ",")
	for _, entry := range entries {
		parts := strings.Split(entry, ";")
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if strings.HasPrefix(strings.ToLower(part), "for=") {
				candidates = append(candidates, part[len("for="):])
			}
		}
	}

	return candidates
}
