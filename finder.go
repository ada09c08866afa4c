// Package imagefinder selects at most one policy-compliant, non-duplicate,
// well-composed featured image for an article. Candidates come from
// concurrent extraction strategies over the article page and its syndication
// metadata; validation is sequential over the ranked list and stops at the
// first acceptance.
package imagefinder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zombar/imagefinder/cache"
	"github.com/zombar/imagefinder/dedup"
	"github.com/zombar/imagefinder/egress"
	"github.com/zombar/imagefinder/extract"
	"github.com/zombar/imagefinder/fetch"
	"github.com/zombar/imagefinder/metrics"
	"github.com/zombar/imagefinder/models"
	"github.com/zombar/imagefinder/storage"
	"github.com/zombar/imagefinder/urlnorm"
	"github.com/zombar/imagefinder/vision"
)

// Config contains pipeline configuration.
type Config struct {
	MinImageBytes    int64 // placeholder heuristic floor
	MaxImageBytes    int64
	HammingThreshold int // near-duplicate distance; below rejects
	RecentScanLimit  int // fingerprints scanned per near-dup check
	CompositionFloor int // minimum acceptable composition score

	OverallTimeout time.Duration // per-article deadline
	MaxRetries     int           // whole-pipeline retries on transient page-fetch failure
	RetryBackoff   time.Duration

	EnableBrowser bool // headless-render fallback when static strategies yield nothing
	EnableVision  bool // advisory model plausibility check

	Egress  egress.Config
	Fetch   fetch.Config
	Extract extract.Config
	Cache   cache.Config
	Vision  vision.Config

	// URLRules extends the per-domain normalization table.
	URLRules []urlnorm.Rule

	// Metrics to record into. Nil gets an unregistered collector set, so
	// tests never collide on the default registry.
	Metrics *metrics.Metrics
}

// DefaultConfig returns default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		MinImageBytes:    5 * 1024,
		MaxImageBytes:    10 * 1024 * 1024,
		HammingThreshold: 10,
		RecentScanLimit:  1000,
		CompositionFloor: 30,
		OverallTimeout:   45 * time.Second,
		MaxRetries:       2,
		RetryBackoff:     2 * time.Second,
		EnableBrowser:    false,
		EnableVision:     false,
		Egress:           egress.DefaultConfig(),
		Fetch:            fetch.DefaultConfig(),
		Extract:          extract.DefaultConfig(),
		Cache:            cache.DefaultConfig(),
		Vision:           vision.DefaultConfig(),
	}
}

// Finder is the selection orchestrator. Safe for concurrent use across
// articles; validation within one article is sequential.
type Finder struct {
	config   Config
	guard    *egress.Guard
	fetcher  *fetch.Client
	registry *extract.Registry
	browser  extract.Strategy
	cache    *cache.ResultCache
	store    dedup.Store
	norm     *urlnorm.Normalizer
	archive  storage.Archiver
	vision   *vision.Checker
	metrics  *metrics.Metrics

	// Accepted results memoized per article, so revalidating the same
	// article within the TTL issues no network requests at all.
	mu      sync.Mutex
	results map[string]articleResult
}

type articleResult struct {
	result  models.AcquireResult
	expires time.Time
}

// New creates a Finder around the given dedup store and optional archive.
func New(config Config, store dedup.Store, archive storage.Archiver) *Finder {
	guard := egress.New(config.Egress, nil)
	fetcher := fetch.New(config.Fetch, guard)
	norm := urlnorm.New(config.URLRules)

	// Candidates merge on the normalized URL, so tracking-param variants of
	// one image cost a single probe.
	extractConfig := config.Extract
	if extractConfig.URLKey == nil {
		extractConfig.URLKey = norm.Normalize
	}
	registry := extract.NewRegistry(extractConfig,
		extract.FeedStrategy{},
		extract.MetaStrategy{},
		extract.JSONLDStrategy{},
		extract.OEmbedStrategy{Fetcher: fetcher},
		extract.AMPStrategy{},
		extract.DOMStrategy{},
		extract.CSSStrategy{},
		extract.FallbackStrategy{},
	)

	m := config.Metrics
	if m == nil {
		m = metrics.New("imagefinder", prometheus.NewRegistry())
	}

	f := &Finder{
		config:   config,
		guard:    guard,
		fetcher:  fetcher,
		registry: registry,
		cache:    cache.New(config.Cache, nil),
		store:    store,
		norm:     norm,
		archive:  archive,
		metrics:  m,
		results:  make(map[string]articleResult),
	}
	if config.EnableBrowser {
		f.browser = extract.BrowserStrategy{}
	}
	if config.EnableVision {
		f.vision = vision.New(config.Vision)
	}
	return f
}

// ErrInvalidArticleURL marks a caller error: a missing, unparseable, or
// policy-rejected article URL.
var ErrInvalidArticleURL = errors.New("invalid article url")

// AcquireImage finds a featured image for the article. Exhaustion is a valid
// result, not an error; only egress rejection of the article URL itself,
// invalid input, or a dedup store fault produce errors.
func (f *Finder) AcquireImage(ctx context.Context, articleURL string, hints *models.FeedHints) (*models.AcquireResult, error) {
	if articleURL == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidArticleURL)
	}
	base, err := url.Parse(articleURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArticleURL, err)
	}
	if res := f.guard.Check(articleURL); !res.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidArticleURL, res.Reason)
	}

	if cached, ok := f.cachedResult(articleURL); ok {
		f.metrics.CacheHitsTotal.Inc()
		f.metrics.AcquisitionsTotal.WithLabelValues(string(cached.Outcome)).Inc()
		return cached, nil
	}
	f.metrics.CacheMissesTotal.Inc()

	ctx, cancel := context.WithTimeout(ctx, f.config.OverallTimeout)
	defer cancel()

	ctx, span := otel.Tracer("imagefinder").Start(ctx, "acquire_image",
		trace.WithAttributes(attribute.String("article.url", articleURL)))
	defer span.End()

	start := time.Now()
	result, err := f.acquire(ctx, base, articleURL, hints)
	if err == nil && result.Outcome == models.OutcomeAccepted {
		f.storeResult(articleURL, result)
	}

	outcome := "error"
	if err == nil {
		outcome = string(result.Outcome)
	}
	span.SetAttributes(attribute.String("acquire.outcome", outcome))
	f.metrics.AcquisitionsTotal.WithLabelValues(outcome).Inc()
	f.metrics.AcquisitionDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return result, err
}

func (f *Finder) acquire(ctx context.Context, base *url.URL, articleURL string, hints *models.FeedHints) (*models.AcquireResult, error) {
	// Syndication fields are the cheapest source: validate them before any
	// page fetch, short-circuiting when one passes.
	if hints != nil {
		feedCands := extract.RankBy(f.norm.Normalize, extract.CandidatesFromHints(base, hints))
		result, err := f.validateAll(ctx, feedCands, articleURL)
		if err != nil || result != nil {
			return result, err
		}
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		result, retryable, err := f.pass(ctx, base, articleURL, hints)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryable || attempt >= f.config.MaxRetries || ctx.Err() != nil {
			break
		}
		slog.Info("retrying acquisition after transient failure",
			"article", articleURL, "attempt", attempt+1, "error", err)
		select {
		case <-time.After(f.config.RetryBackoff * time.Duration(attempt+1)):
		case <-ctx.Done():
		}
	}

	// The deadline or a dead origin page ends in exhaustion, not an error:
	// the caller's fallback policy takes over.
	var verr *validationError
	if errors.As(lastErr, &verr) && verr.fatal {
		return nil, lastErr
	}
	slog.Warn("acquisition exhausted without a page", "article", articleURL, "error", lastErr)
	return &models.AcquireResult{Outcome: models.OutcomeExhausted}, nil
}

// pass runs one full extract-rank-validate sweep. retryable reports whether
// a failure was transient enough to justify another attempt.
func (f *Finder) pass(ctx context.Context, base *url.URL, articleURL string, hints *models.FeedHints) (*models.AcquireResult, bool, error) {
	body, err := f.fetcher.GetPage(ctx, articleURL)
	if err != nil {
		return nil, fetch.IsTransient(err), fmt.Errorf("page fetch failed: %w", err)
	}
	f.metrics.CountDomainVisit(base.Hostname())

	page, err := extract.NewPage(articleURL, body, hints)
	if err != nil {
		return nil, false, fmt.Errorf("page parse failed: %w", err)
	}

	cands := f.registry.RunAll(ctx, page)
	for _, c := range cands {
		f.metrics.CandidatesExtracted.WithLabelValues(string(c.Source)).Inc()
	}

	// The render fallback only runs when every static strategy came back
	// empty; it is too expensive to run routinely.
	if len(cands) == 0 && f.browser != nil && ctx.Err() == nil {
		rendered, err := f.browser.Extract(ctx, page)
		if err != nil {
			slog.Warn("browser strategy failed", "article", articleURL, "error", err)
		}
		cands = extract.RankBy(f.norm.Normalize, rendered)
		for _, c := range cands {
			f.metrics.CandidatesExtracted.WithLabelValues(string(c.Source)).Inc()
		}
	}

	result, err := f.validateAll(ctx, cands, articleURL)
	if err != nil {
		return nil, false, err
	}
	if result != nil {
		return result, false, nil
	}
	return &models.AcquireResult{Outcome: models.OutcomeExhausted}, false, nil
}

// validateAll walks the ranked list sequentially and returns the first
// acceptance, or nil when every candidate failed. Sequential on purpose: the
// point is to stop fetching the moment one candidate passes.
func (f *Finder) validateAll(ctx context.Context, cands []models.ImageCandidate, articleURL string) (*models.AcquireResult, error) {
	for _, cand := range cands {
		if ctx.Err() != nil {
			// Deadline exceeded mid-walk: abort to exhaustion rather
			// than hanging the caller.
			return nil, nil
		}

		outcome, err := f.validate(ctx, cand, articleURL)
		if err != nil {
			var verr *validationError
			if errors.As(err, &verr) && verr.fatal {
				return nil, err
			}
			slog.Debug("candidate skipped on transient failure", "url", cand.URL, "error", err)
			continue
		}
		if !outcome.Accepted {
			slog.Debug("candidate rejected", "url", cand.URL, "reason", outcome.Reason)
			continue
		}

		return &models.AcquireResult{
			Outcome:  models.OutcomeAccepted,
			ImageURL: cand.URL,
			Source:   cand.Source,
			Width:    outcome.Width,
			Height:   outcome.Height,
		}, nil
	}
	return nil, nil
}

// cachedResult returns a fresh memoized result for the article, if any.
// Only acceptances are memoized: exhaustion may have been transient.
func (f *Finder) cachedResult(articleURL string) (*models.AcquireResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.results[articleURL]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expires) {
		delete(f.results, articleURL)
		return nil, false
	}
	result := e.result
	return &result, true
}

func (f *Finder) storeResult(articleURL string, result *models.AcquireResult) {
	f.mu.Lock()
	f.results[articleURL] = articleResult{result: *result, expires: time.Now().Add(f.config.Cache.TTL)}
	f.mu.Unlock()
}

// PurgeCache drops expired result-cache entries and returns how many were
// removed. Intended for a periodic maintenance ticker.
func (f *Finder) PurgeCache() int {
	f.mu.Lock()
	now := time.Now()
	for k, e := range f.results {
		if now.After(e.expires) {
			delete(f.results, k)
		}
	}
	f.mu.Unlock()
	return f.cache.Purge()
}

// DedupCount reports the number of stored dedup records.
func (f *Finder) DedupCount(ctx context.Context) (int, error) {
	return f.store.Count(ctx)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
