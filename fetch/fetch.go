// Package fetch owns the pipeline's only outbound HTTP client. Every request
// is validated by the egress guard first; no other component constructs its
// own client, so nothing can bypass the guard.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/zombar/imagefinder/egress"
)

// Honest about being a bot, shaped like a browser so image CDNs serve the
// real asset instead of a challenge page.
const defaultUserAgent = "Mozilla/5.0 (compatible; imagefinder/1.0; +https://github.com/zombar/imagefinder)"

// Config contains fetcher configuration.
type Config struct {
	UserAgent      string
	RequestTimeout time.Duration // per-request ceiling
	MaxPageBytes   int64         // page body read cap
	MaxImageBytes  int64         // image download cap
}

// DefaultConfig returns default fetcher configuration.
func DefaultConfig() Config {
	return Config{
		UserAgent:      defaultUserAgent,
		RequestTimeout: 8 * time.Second,
		MaxPageBytes:   4 * 1024 * 1024,
		MaxImageBytes:  10 * 1024 * 1024,
	}
}

// SecurityError marks an egress-guard rejection. Routine and expected; never
// retried and never cached as a content outcome.
type SecurityError struct {
	URL    string
	Reason string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("egress guard rejected %s: %s", e.URL, e.Reason)
}

// StatusError reports a non-success HTTP status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s", e.Code, http.StatusText(e.Code))
}

// IsTransient reports whether an error is a network-level or server-side
// failure worth retrying later. Transient failures are never cached.
func IsTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	var sec *SecurityError
	if errors.As(err, &sec) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// Connection resets and refused connections come through as *url.Error
	// wrapping syscall errors; treat any remaining transport error as
	// transient rather than caching a possibly momentary failure.
	return errors.Is(err, io.ErrUnexpectedEOF)
}

// ProbeResult carries the lightweight metadata for a candidate image.
type ProbeResult struct {
	ContentType string
	Size        int64 // -1 when the server did not say
}

// Client is the guarded HTTP client.
type Client struct {
	config Config
	guard  *egress.Guard
	http   *http.Client
}

// New creates a Client around the given guard.
func New(config Config, guard *egress.Guard) *Client {
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	return &Client{
		config: config,
		guard:  guard,
		http: &http.Client{
			Timeout:   config.RequestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// GetPage fetches an HTML page body, capped at MaxPageBytes.
func (c *Client) GetPage(ctx context.Context, pageURL string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read page body: %w", err)
	}
	return body, nil
}

// Probe obtains content-type and size for a URL without downloading the body.
// HEAD first; servers that reject HEAD get a byte-range GET instead.
func (c *Client) Probe(ctx context.Context, imageURL string) (*ProbeResult, error) {
	resp, err := c.do(ctx, http.MethodHead, imageURL, nil)
	if err == nil {
		defer resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusOK:
			return &ProbeResult{
				ContentType: cleanContentType(resp.Header.Get("Content-Type")),
				Size:        resp.ContentLength,
			}, nil
		case resp.StatusCode == http.StatusMethodNotAllowed,
			resp.StatusCode == http.StatusNotImplemented,
			resp.StatusCode == http.StatusForbidden:
			// fall through to the range GET
		default:
			return nil, &StatusError{Code: resp.StatusCode}
		}
	} else if _, ok := securityErr(err); ok {
		return nil, err
	}

	resp, err = c.do(ctx, http.MethodGet, imageURL, map[string]string{"Range": "bytes=0-0"})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	size := resp.ContentLength
	if resp.StatusCode == http.StatusPartialContent {
		size = totalFromContentRange(resp.Header.Get("Content-Range"))
	}
	return &ProbeResult{
		ContentType: cleanContentType(resp.Header.Get("Content-Type")),
		Size:        size,
	}, nil
}

// Download fetches image bytes, enforcing MaxImageBytes both from the
// advertised length and from the actual read.
func (c *Client) Download(ctx context.Context, imageURL string) ([]byte, string, error) {
	resp, err := c.do(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &StatusError{Code: resp.StatusCode}
	}
	if resp.ContentLength > c.config.MaxImageBytes {
		return nil, "", fmt.Errorf("image too large: %d bytes (max %d)", resp.ContentLength, c.config.MaxImageBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image data: %w", err)
	}
	if int64(len(data)) > c.config.MaxImageBytes {
		return nil, "", fmt.Errorf("image too large: exceeds %d bytes", c.config.MaxImageBytes)
	}

	return data, cleanContentType(resp.Header.Get("Content-Type")), nil
}

// do builds and issues one request after the egress check.
func (c *Client) do(ctx context.Context, method, rawURL string, headers map[string]string) (*http.Response, error) {
	if res := c.guard.CheckResolved(ctx, rawURL); !res.Valid {
		return nil, &SecurityError{URL: rawURL, Reason: res.Reason}
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/*,text/html,*/*;q=0.8")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func securityErr(err error) (*SecurityError, bool) {
	var se *SecurityError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func cleanContentType(ct string) string {
	if idx := strings.Index(ct, ";"); idx != -1 {
		ct = ct[:idx]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// totalFromContentRange parses the total length out of a Content-Range header
// like "bytes 0-0/48213". Returns -1 when absent or unparseable.
func totalFromContentRange(header string) int64 {
	idx := strings.LastIndex(header, "/")
	if idx == -1 {
		return -1
	}
	total := header[idx+1:]
	if total == "*" {
		return -1
	}
	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return -1
	}
	return n
}
