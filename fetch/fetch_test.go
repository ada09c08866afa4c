package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/zombar/imagefinder/egress"
)

// testGuard exempts the loopback hosts httptest binds to.
func testGuard() *egress.Guard {
	cfg := egress.DefaultConfig()
	cfg.AllowedHosts = []string{"127.0.0.1", "::1"}
	return egress.New(cfg, nil)
}

func TestGetPage(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	c := New(DefaultConfig(), testGuard())
	body, err := c.GetPage(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if !strings.Contains(string(body), "hello") {
		t.Errorf("unexpected body: %s", body)
	}
	if !strings.Contains(gotUA, "imagefinder") {
		t.Errorf("expected identifying User-Agent, got %q", gotUA)
	}
}

func TestGetPageBodyCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 1000)))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.MaxPageBytes = 100
	c := New(cfg, testGuard())
	body, err := c.GetPage(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if len(body) != 100 {
		t.Errorf("expected capped body of 100 bytes, got %d", len(body))
	}
}

func TestGetPageBlockedByGuard(t *testing.T) {
	// Default guard: loopback is rejected and no request is issued.
	c := New(DefaultConfig(), egress.New(egress.DefaultConfig(), nil))
	_, err := c.GetPage(context.Background(), "http://127.0.0.1:9/x")
	var se *SecurityError
	if !errors.As(err, &se) {
		t.Fatalf("expected SecurityError, got %v", err)
	}
}

func TestProbeHead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "image/jpeg; charset=binary")
		w.Header().Set("Content-Length", "204800")
	}))
	defer srv.Close()

	c := New(DefaultConfig(), testGuard())
	res, err := c.Probe(context.Background(), srv.URL+"/a.jpg")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if res.ContentType != "image/jpeg" {
		t.Errorf("ContentType = %q, want image/jpeg", res.ContentType)
	}
	if res.Size != 204800 {
		t.Errorf("Size = %d, want 204800", res.Size)
	}
}

func TestProbeFallsBackToRangeGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.Header.Get("Range") != "bytes=0-0" {
			t.Errorf("expected byte-range GET, got Range=%q", r.Header.Get("Range"))
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Range", "bytes 0-0/48213")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte{0x89})
	}))
	defer srv.Close()

	c := New(DefaultConfig(), testGuard())
	res, err := c.Probe(context.Background(), srv.URL+"/a.png")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if res.ContentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", res.ContentType)
	}
	if res.Size != 48213 {
		t.Errorf("Size = %d, want 48213 from Content-Range", res.Size)
	}
}

func TestDownloadSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte(strings.Repeat("j", 2048)))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.MaxImageBytes = 1024
	c := New(cfg, testGuard())
	_, _, err := c.Download(context.Background(), srv.URL+"/big.jpg")
	if err == nil {
		t.Error("expected size-limit error")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&StatusError{Code: 503}, true},
		{&StatusError{Code: 429}, true},
		{&StatusError{Code: 404}, false},
		{&StatusError{Code: 403}, false},
		{&SecurityError{URL: "http://10.0.0.1/x", Reason: "private"}, false},
		{context.DeadlineExceeded, true},
		{&url.Error{Op: "Get", URL: "http://x", Err: context.DeadlineExceeded}, true},
	}
	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.want {
			t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
