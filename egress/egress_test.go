package egress

import (
	"context"
	"errors"
	"net/netip"
	"testing"
)

func TestCheckSchemes(t *testing.T) {
	g := New(DefaultConfig(), nil)

	tests := []struct {
		url   string
		valid bool
	}{
		{"https://example.com/image.jpg", true},
		{"http://example.com/image.jpg", true},
		{"ftp://example.com/image.jpg", false},
		{"file:///etc/passwd", false},
		{"gopher://example.com/", false},
		{"javascript:alert(1)", false},
		{"data:image/png;base64,iVBOR", false},
		{"://broken", false},
	}

	for _, tt := range tests {
		res := g.Check(tt.url)
		if res.Valid != tt.valid {
			t.Errorf("Check(%q) valid = %v, want %v (reason: %s)", tt.url, res.Valid, tt.valid, res.Reason)
		}
	}
}

func TestCheckLiteralAddresses(t *testing.T) {
	g := New(DefaultConfig(), nil)

	rejected := []string{
		"http://127.0.0.1/secret.png",
		"http://127.0.0.53:8080/x.jpg",
		"http://10.0.0.5/internal.jpg",
		"http://172.16.4.2/a.png",
		"http://192.168.1.1/router.png",
		"http://169.254.169.254/latest/meta-data/",
		"http://100.64.1.1/cgnat.jpg",
		"http://0.0.0.0/x",
		"http://[::1]/x.jpg",
		"http://[fe80::1]/x.jpg",
		"http://[fd00::1]/x.jpg",
		"http://[::ffff:127.0.0.1]/x.jpg",
		"http://240.1.2.3/x.jpg",
	}
	for _, u := range rejected {
		if res := g.Check(u); res.Valid {
			t.Errorf("Check(%q) should reject", u)
		}
	}

	allowed := []string{
		"http://93.184.216.34/x.jpg",
		"http://[2606:2800:220:1:248:1893:25c8:1946]/x.jpg",
	}
	for _, u := range allowed {
		if res := g.Check(u); !res.Valid {
			t.Errorf("Check(%q) should allow, got reason %q", u, res.Reason)
		}
	}
}

func TestCheckBlockedHostnames(t *testing.T) {
	g := New(DefaultConfig(), nil)

	for _, u := range []string{
		"http://localhost/x.jpg",
		"http://LOCALHOST:8080/x.jpg",
		"http://metadata.google.internal/computeMetadata/v1/",
		"http://foo.localhost/x.jpg",
		"http://db.cluster.internal/x.jpg",
	} {
		if res := g.Check(u); res.Valid {
			t.Errorf("Check(%q) should reject blocked hostname", u)
		}
	}
}

type fakeResolver struct {
	addrs map[string][]netip.Addr
	err   error
}

func (f *fakeResolver) LookupNetIP(_ context.Context, _ string, host string) ([]netip.Addr, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.addrs[host], nil
}

func TestCheckResolvedRejectsPrivateAnswer(t *testing.T) {
	r := &fakeResolver{addrs: map[string][]netip.Addr{
		"evil.example.com": {
			netip.MustParseAddr("93.184.216.34"),
			netip.MustParseAddr("10.0.0.8"), // any private answer rejects
		},
		"good.example.com": {
			netip.MustParseAddr("93.184.216.34"),
		},
	}}
	g := New(DefaultConfig(), r)

	if res := g.CheckResolved(context.Background(), "https://evil.example.com/a.jpg"); res.Valid {
		t.Error("expected rejection when any resolved address is private")
	}
	if res := g.CheckResolved(context.Background(), "https://good.example.com/a.jpg"); !res.Valid {
		t.Errorf("expected acceptance, got %q", res.Reason)
	}
}

func TestCheckResolvedDNSFailureIsInconclusive(t *testing.T) {
	g := New(DefaultConfig(), &fakeResolver{err: errors.New("no such host")})

	// DNS failure must not look like a security rejection; the fetch layer
	// will surface the real error.
	if res := g.CheckResolved(context.Background(), "https://nxdomain.example.com/a.jpg"); !res.Valid {
		t.Errorf("DNS failure should be allowed through, got %q", res.Reason)
	}
}

func TestCheckResolvedLiteralSkipsLookup(t *testing.T) {
	r := &fakeResolver{err: errors.New("resolver should not be called")}
	g := New(DefaultConfig(), r)

	if res := g.CheckResolved(context.Background(), "http://127.0.0.1/x.jpg"); res.Valid {
		t.Error("literal loopback must be rejected")
	}
	if res := g.CheckResolved(context.Background(), "http://93.184.216.34/x.jpg"); !res.Valid {
		t.Errorf("public literal should pass without lookup, got %q", res.Reason)
	}
}
