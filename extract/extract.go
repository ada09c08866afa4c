// Package extract turns fetched page content into scored image candidates.
// Each evidence source (page metadata, structured data, DOM heuristics, embed
// metadata, syndication fields) is one Strategy; strategies are independent,
// run concurrently, and fail in isolation.
package extract

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/zombar/imagefinder/models"
)

// Page is the already-fetched content all strategies inspect. Strategies only
// read it, so the shared trees are safe under concurrent extraction.
type Page struct {
	URL   *url.URL
	Doc   *html.Node
	Query *goquery.Document
	Hints *models.FeedHints
}

// NewPage parses the body once for both the x/net/html walkers and the
// goquery selectors. html.Parse tolerates arbitrarily malformed markup.
func NewPage(pageURL string, body []byte, hints *models.FeedHints) (*Page, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	query := goquery.NewDocumentFromNode(doc)
	query.Url = base
	return &Page{URL: base, Doc: doc, Query: query, Hints: hints}, nil
}

// Strategy is one candidate source. Implementations must tolerate malformed
// input and return partial results rather than failing the article.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, page *Page) ([]models.ImageCandidate, error)
}

// Config controls the strategy run.
type Config struct {
	StrategyTimeout time.Duration // per-strategy budget
	MaxParallel     int           // bounded fan-out
	Disabled        []string      // strategy names switched off

	// URLKey is the dedup key for the merged candidate list, typically a
	// URL normalizer so tracking-param variants of one image merge before
	// any network work. Nil keys by raw URL.
	URLKey func(string) string
}

// DefaultConfig returns default extraction configuration.
func DefaultConfig() Config {
	return Config{
		StrategyTimeout: 5 * time.Second,
		MaxParallel:     4,
	}
}

// Registry holds the ordered strategy list. New strategies are added by
// registration, not by branching.
type Registry struct {
	config     Config
	strategies []Strategy
	disabled   map[string]struct{}
}

// NewRegistry creates a Registry with the given strategies in order.
func NewRegistry(config Config, strategies ...Strategy) *Registry {
	disabled := make(map[string]struct{}, len(config.Disabled))
	for _, name := range config.Disabled {
		disabled[name] = struct{}{}
	}
	return &Registry{config: config, strategies: strategies, disabled: disabled}
}

// Register appends a strategy to the list.
func (r *Registry) Register(s Strategy) {
	r.strategies = append(r.strategies, s)
}

// RunAll executes every enabled strategy concurrently against the page and
// returns the merged candidate list, deduplicated by normalized URL and
// sorted by prior score descending (strategy priority breaks ties). A slow or
// failing strategy contributes nothing; it never aborts its siblings.
func (r *Registry) RunAll(ctx context.Context, page *Page) []models.ImageCandidate {
	var (
		mu  sync.Mutex
		all []models.ImageCandidate
	)

	g, gctx := errgroup.WithContext(ctx)
	if r.config.MaxParallel > 0 {
		g.SetLimit(r.config.MaxParallel)
	}

	for _, s := range r.strategies {
		if _, off := r.disabled[s.Name()]; off {
			continue
		}
		s := s
		g.Go(func() error {
			sctx := gctx
			if r.config.StrategyTimeout > 0 {
				var cancel context.CancelFunc
				sctx, cancel = context.WithTimeout(gctx, r.config.StrategyTimeout)
				defer cancel()
			}

			cands, err := runIsolated(sctx, s, page)
			if err != nil {
				slog.Debug("extraction strategy failed", "strategy", s.Name(), "error", err)
				return nil
			}
			mu.Lock()
			all = append(all, cands...)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return RankBy(r.config.URLKey, all)
}

// runIsolated keeps a panicking or hung strategy from taking the article down
// with it. The worker goroutine owns its result until the caller receives it,
// so an abandoned strategy finishing late never touches the caller's frame.
func runIsolated(ctx context.Context, s Strategy, page *Page) ([]models.ImageCandidate, error) {
	type result struct {
		cands []models.ImageCandidate
		err   error
	}
	// Buffered so the worker's send never blocks after abandonment.
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Warn("extraction strategy panicked", "strategy", s.Name(), "panic", rec)
				ch <- result{}
			}
		}()
		cands, err := s.Extract(ctx, page)
		ch <- result{cands: cands, err: err}
	}()
	select {
	case res := <-ch:
		return res.cands, res.err
	case <-ctx.Done():
		// Abandon the hung strategy; its buffered result is discarded.
		return nil, ctx.Err()
	}
}

// Rank deduplicates candidates by raw URL (the best-scored occurrence wins)
// and sorts by score descending with strategy priority as tie-break. Given a
// fixed input the output order is deterministic.
func Rank(cands []models.ImageCandidate) []models.ImageCandidate {
	return RankBy(nil, cands)
}

// RankBy is Rank with a caller-supplied dedup key over the candidate URL, so
// variant URLs of the same image collapse to the best-scored one. A nil key
// falls back to the raw URL.
func RankBy(key func(string) string, cands []models.ImageCandidate) []models.ImageCandidate {
	if key == nil {
		key = func(u string) string { return u }
	}
	best := make(map[string]models.ImageCandidate, len(cands))
	for _, c := range cands {
		k := key(c.URL)
		prev, seen := best[k]
		if !seen || c.Score > prev.Score ||
			(c.Score == prev.Score && c.Source.Priority() < prev.Source.Priority()) {
			// Carry dimensions forward when the winner lacks them.
			if seen {
				if c.Width == 0 {
					c.Width, c.Height = prev.Width, prev.Height
				}
			}
			best[k] = c
		} else if seen && prev.Width == 0 && c.Width > 0 {
			prev.Width, prev.Height = c.Width, c.Height
			best[k] = prev
		}
	}

	out := make([]models.ImageCandidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if pi, pj := out[i].Source.Priority(), out[j].Source.Priority(); pi != pj {
			return pi < pj
		}
		return out[i].URL < out[j].URL
	})
	return out
}

// resolveImageURL resolves href against base, upgrades protocol-relative URLs
// to https, and refuses data-embedded (non-fetchable) URLs.
func resolveImageURL(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(strings.ToLower(href), "data:") {
		return "", false
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(parsed)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	return resolved.String(), true
}

// attrVal returns the value of the named attribute on an element node.
func attrVal(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

// walk runs fn over every node in the tree.
func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}
