// Package egress gates every outbound request the pipeline makes. A URL must
// pass the guard before any component contacts it; this is the SSRF boundary
// between untrusted page content and the network the service runs in.
package egress

import (
	"context"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"time"
)

// Result reports whether a URL may be contacted and, when it may not, why.
type Result struct {
	Valid  bool
	Reason string
}

// Resolver is the subset of net.Resolver the guard needs. Injectable so tests
// can simulate DNS answers without touching real resolution.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Config contains guard configuration.
type Config struct {
	// BlockedHosts are rejected by name before any resolution.
	BlockedHosts []string
	// AllowedHosts bypass address classification entirely. For development
	// and tests only (local fixture servers); empty in production.
	AllowedHosts []string
	// ResolveTimeout bounds the DNS lookup in CheckResolved.
	ResolveTimeout time.Duration
}

// DefaultConfig returns default guard configuration.
func DefaultConfig() Config {
	return Config{
		BlockedHosts: []string{
			"localhost",
			"metadata.google.internal",
			"instance-data",
		},
		ResolveTimeout: 3 * time.Second,
	}
}

// Guard validates outbound URLs against the private/reserved address policy.
type Guard struct {
	config   Config
	blocked  map[string]struct{}
	allowed  map[string]struct{}
	resolver Resolver
}

// New creates a Guard. resolver can be nil to use the system resolver.
func New(config Config, resolver Resolver) *Guard {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	blocked := make(map[string]struct{}, len(config.BlockedHosts))
	for _, h := range config.BlockedHosts {
		blocked[strings.ToLower(h)] = struct{}{}
	}
	allowed := make(map[string]struct{}, len(config.AllowedHosts))
	for _, h := range config.AllowedHosts {
		allowed[strings.ToLower(h)] = struct{}{}
	}
	return &Guard{config: config, blocked: blocked, allowed: allowed, resolver: resolver}
}

// Check validates scheme, hostname blocklist, and literal IP addresses. It
// performs no network I/O and is safe on every request path.
func (g *Guard) Check(rawURL string) Result {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Result{Reason: "unparseable URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Result{Reason: "scheme must be http or https"}
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Result{Reason: "empty host"}
	}
	if _, ok := g.allowed[host]; ok {
		return Result{Valid: true}
	}
	if _, ok := g.blocked[host]; ok {
		return Result{Reason: "blocked hostname: " + host}
	}
	// ".localhost" and friends resolve locally regardless of DNS.
	if strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
		return Result{Reason: "blocked hostname suffix: " + host}
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if reason := classifyAddr(addr); reason != "" {
			return Result{Reason: reason}
		}
	}

	return Result{Valid: true}
}

// CheckResolved runs Check and then additionally resolves hostnames, rejecting
// the URL if any resolved address falls in a private or reserved range.
// Resolution failure is inconclusive: the URL is allowed to proceed so natural
// DNS failures surface as ordinary fetch errors rather than security
// rejections.
func (g *Guard) CheckResolved(ctx context.Context, rawURL string) Result {
	if res := g.Check(rawURL); !res.Valid {
		return res
	}

	u, _ := url.Parse(rawURL)
	host := strings.ToLower(u.Hostname())
	if _, ok := g.allowed[host]; ok {
		return Result{Valid: true}
	}
	if _, err := netip.ParseAddr(host); err == nil {
		// Literal IP, already classified by Check.
		return Result{Valid: true}
	}

	if g.config.ResolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.ResolveTimeout)
		defer cancel()
	}

	addrs, err := g.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return Result{Valid: true}
	}
	for _, addr := range addrs {
		if reason := classifyAddr(addr.Unmap()); reason != "" {
			return Result{Reason: "resolved to " + addr.String() + ": " + reason}
		}
	}
	return Result{Valid: true}
}

// classifyAddr returns a non-empty reason when the address must not be
// contacted from this service.
func classifyAddr(addr netip.Addr) string {
	addr = addr.Unmap()
	switch {
	case addr.IsLoopback():
		return "loopback address"
	case addr.IsPrivate():
		return "private address"
	case addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast():
		return "link-local address"
	case addr.IsUnspecified():
		return "unspecified address"
	case addr.IsMulticast():
		return "multicast address"
	}
	for _, p := range reservedPrefixes {
		if p.Contains(addr) {
			return "reserved address"
		}
	}
	return ""
}

// Ranges not covered by the netip predicates: CGNAT, benchmarking, IPv6
// unique-local and documentation space.
var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("2001:db8::/32"),
	netip.MustParsePrefix("::ffff:0:0/96"),
}
