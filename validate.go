package imagefinder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zombar/imagefinder/compose"
	"github.com/zombar/imagefinder/dedup"
	"github.com/zombar/imagefinder/fetch"
	"github.com/zombar/imagefinder/imagemeta"
	"github.com/zombar/imagefinder/metrics"
	"github.com/zombar/imagefinder/models"
	"github.com/zombar/imagefinder/phash"
	"github.com/zombar/imagefinder/slug"
)

// rejection is a permanent, cacheable refusal of one candidate.
func rejection(reason string) models.ValidationOutcome {
	return models.ValidationOutcome{Accepted: false, Reason: reason}
}

// validationError covers transient failures and store faults. Transient
// failures skip the candidate without caching; store faults abort the whole
// acquisition.
type validationError struct {
	err   error
	fatal bool
}

func (e *validationError) Error() string { return e.err.Error() }
func (e *validationError) Unwrap() error { return e.err }

// validate runs one candidate through the full chain. The outcome is cached
// for permanent results (both acceptances and refusals); transient network
// failures return an error instead so a later pass may retry the URL.
func (f *Finder) validate(ctx context.Context, cand models.ImageCandidate, articleURL string) (models.ValidationOutcome, error) {
	// Egress policy first: a rejected URL is routine, never an incident.
	if res := f.guard.Check(cand.URL); !res.Valid {
		f.metrics.RejectionsTotal.WithLabelValues("egress_blocked").Inc()
		return rejection("blocked by egress policy: " + res.Reason), nil
	}

	// URL-pattern junk filter, before any cache or network work.
	if pattern, bad := blacklisted(cand.URL); bad {
		f.metrics.RejectionsTotal.WithLabelValues("blacklisted").Inc()
		outcome := rejection("blacklisted pattern: " + pattern)
		f.cache.Put(cand.URL, outcome)
		return outcome, nil
	}

	// A fresh cached outcome skips the network checks entirely. Cached
	// refusals stand as-is; cached acceptances still rerun the duplicate
	// checks, because the store may have gained records since.
	if cached, ok := f.cache.Get(cand.URL); ok {
		if !cached.Accepted {
			return cached, nil
		}
		return f.finishCached(ctx, cand, cached, articleURL)
	}

	// Lightweight metadata probe. HEAD, falling back to a byte-range GET.
	probeStart := time.Now()
	probe, err := f.fetcher.Probe(ctx, cand.URL)
	f.metrics.ProbeDuration.Observe(time.Since(probeStart).Seconds())
	if err != nil {
		return f.fetchFailure(cand.URL, "probe", err)
	}
	f.metrics.CountDomainVisit(hostOf(cand.URL))

	if !imagemeta.IsImageType(probe.ContentType) {
		return f.reject(cand.URL, "unsupported content type: "+probe.ContentType), nil
	}
	if probe.Size >= 0 && probe.Size < f.config.MinImageBytes {
		return f.reject(cand.URL, fmt.Sprintf("too small: %d bytes", probe.Size)), nil
	}
	if probe.Size > f.config.MaxImageBytes {
		return f.reject(cand.URL, fmt.Sprintf("too large: %d bytes", probe.Size)), nil
	}

	// Dimensions may already be known from markup or the URL itself; the
	// decoded image supersedes both later.
	width, height := cand.Width, cand.Height
	if width == 0 || height == 0 {
		width, height = imagemeta.DimensionsFromURL(cand.URL)
	}

	// Exact-duplicate check on the normalized URL, before the download.
	urlHash := f.norm.Hash(cand.URL)
	if existing, err := f.store.FindByURLHash(ctx, urlHash); err != nil {
		return models.ValidationOutcome{}, &validationError{err: fmt.Errorf("dedup store lookup failed: %w", err), fatal: true}
	} else if existing != nil {
		return f.reject(cand.URL, "duplicate: url already accepted"), nil
	}

	downloadStart := time.Now()
	data, contentType, err := f.fetcher.Download(ctx, cand.URL)
	f.metrics.DownloadDuration.Observe(time.Since(downloadStart).Seconds())
	if err != nil {
		return f.fetchFailure(cand.URL, "download", err)
	}
	if int64(len(data)) < f.config.MinImageBytes {
		return f.reject(cand.URL, fmt.Sprintf("too small: %d bytes", len(data))), nil
	}
	if contentType == "" {
		contentType = probe.ContentType
	}

	sum := sha256.Sum256(data)
	contentHash := hex.EncodeToString(sum[:])

	if existing, err := f.store.FindByContentHash(ctx, contentHash); err != nil {
		return models.ValidationOutcome{}, &validationError{err: fmt.Errorf("dedup store lookup failed: %w", err), fatal: true}
	} else if existing != nil {
		return f.reject(cand.URL, "duplicate: identical content"), nil
	}

	if w, h, ok := imagemeta.Dimensions(data); ok {
		width, height = w, h
	}

	// Near-duplicate check over recent fingerprints. An undecodable image
	// (unsupported codec) keeps a zero fingerprint and skips the scan.
	var fingerprint uint64
	if fp, err := phash.FromBytes(data); err == nil {
		fingerprint = fp
		near, err := f.nearDuplicate(ctx, fp)
		if err != nil {
			return models.ValidationOutcome{}, &validationError{err: err, fatal: true}
		}
		if near {
			return f.reject(cand.URL, "duplicate: near-identical image"), nil
		}
	} else {
		slog.Debug("perceptual hash unavailable", "url", cand.URL, "error", err)
	}

	if score := compose.Score(width, height); score < f.config.CompositionFloor {
		return f.reject(cand.URL, fmt.Sprintf("composition score %d below floor", score)), nil
	}

	// Advisory vision check. A model failure passes; a real negative
	// verdict rejects.
	if f.vision != nil {
		verdict, err := f.vision.Check(ctx, data)
		if err != nil {
			slog.Debug("vision check unavailable", "url", cand.URL, "error", err)
		}
		if !verdict.Plausible {
			return f.reject(cand.URL, "implausible content: "+verdict.Reason), nil
		}
	}

	// Archive before recording, so the record can carry the key. Archive
	// failure is logged, not fatal: the image URL is still usable.
	var archiveKey string
	if f.archive != nil {
		key, err := f.archive.SaveImage(ctx, data, slug.FromImageURL(cand.URL), contentHash, contentType)
		if err != nil {
			slog.Warn("failed to archive image", "url", cand.URL, "error", err)
		} else {
			archiveKey = key
		}
	}

	// The record write is the atomic arbiter: when two workers race on the
	// same bytes, the store's uniqueness constraint lets exactly one win.
	rec := &models.DedupRecord{
		ID:             uuid.New().String(),
		ContentHash:    contentHash,
		URLHash:        urlHash,
		PerceptualHash: fingerprint,
		SourceURL:      cand.URL,
		ArticleURL:     articleURL,
		ArchiveKey:     archiveKey,
		AcceptedAt:     time.Now().UTC(),
	}
	if err := f.store.Insert(ctx, rec); err != nil {
		if dedup.IsDuplicate(err) {
			return f.reject(cand.URL, "duplicate: identical content"), nil
		}
		return models.ValidationOutcome{}, &validationError{err: fmt.Errorf("dedup store insert failed: %w", err), fatal: true}
	}
	f.metrics.DedupRecordsInserted.Inc()

	outcome := models.ValidationOutcome{
		Accepted:       true,
		ContentHash:    contentHash,
		PerceptualHash: fingerprint,
		ContentType:    contentType,
		ByteSize:       int64(len(data)),
		Width:          width,
		Height:         height,
	}
	f.cache.Put(cand.URL, outcome)
	return outcome, nil
}

// finishCached reruns only the duplicate checks for a previously accepted
// URL, with the hashes the cache already holds. No network call is issued.
func (f *Finder) finishCached(ctx context.Context, cand models.ImageCandidate, cached models.ValidationOutcome, articleURL string) (models.ValidationOutcome, error) {
	urlHash := f.norm.Hash(cand.URL)
	existing, err := f.store.FindByURLHash(ctx, urlHash)
	if err != nil {
		return models.ValidationOutcome{}, &validationError{err: fmt.Errorf("dedup store lookup failed: %w", err), fatal: true}
	}
	if existing != nil {
		// The common revalidation case: this exact image was accepted
		// for this same article within the TTL window.
		if existing.ArticleURL == articleURL {
			return cached, nil
		}
		return f.reject(cand.URL, "duplicate: url already accepted"), nil
	}

	if cached.ContentHash != "" {
		if existing, err := f.store.FindByContentHash(ctx, cached.ContentHash); err != nil {
			return models.ValidationOutcome{}, &validationError{err: fmt.Errorf("dedup store lookup failed: %w", err), fatal: true}
		} else if existing != nil {
			return f.reject(cand.URL, "duplicate: identical content"), nil
		}
	}
	if cached.PerceptualHash != 0 {
		near, err := f.nearDuplicate(ctx, cached.PerceptualHash)
		if err != nil {
			return models.ValidationOutcome{}, &validationError{err: err, fatal: true}
		}
		if near {
			return f.reject(cand.URL, "duplicate: near-identical image"), nil
		}
	}

	rec := &models.DedupRecord{
		ID:             uuid.New().String(),
		ContentHash:    cached.ContentHash,
		URLHash:        urlHash,
		PerceptualHash: cached.PerceptualHash,
		SourceURL:      cand.URL,
		ArticleURL:     articleURL,
		AcceptedAt:     time.Now().UTC(),
	}
	if err := f.store.Insert(ctx, rec); err != nil {
		if dedup.IsDuplicate(err) {
			return f.reject(cand.URL, "duplicate: identical content"), nil
		}
		return models.ValidationOutcome{}, &validationError{err: fmt.Errorf("dedup store insert failed: %w", err), fatal: true}
	}
	f.metrics.DedupRecordsInserted.Inc()
	return cached, nil
}

// nearDuplicate scans the most recent fingerprints for one within the
// Hamming threshold.
func (f *Finder) nearDuplicate(ctx context.Context, fp uint64) (bool, error) {
	prints, err := f.store.RecentFingerprints(ctx, f.config.RecentScanLimit)
	if err != nil {
		return false, fmt.Errorf("dedup fingerprint scan failed: %w", err)
	}
	for _, p := range prints {
		if phash.Distance(fp, p.PerceptualHash) < f.config.HammingThreshold {
			return true, nil
		}
	}
	return false, nil
}

// reject caches a permanent refusal and counts it.
func (f *Finder) reject(url, reason string) models.ValidationOutcome {
	f.metrics.RejectionsTotal.WithLabelValues(metrics.RejectionReason(reason)).Inc()
	outcome := rejection(reason)
	f.cache.Put(url, outcome)
	return outcome
}

// fetchFailure decides whether a probe/download error is a transient skip
// (not cached) or a permanent refusal (cached).
func (f *Finder) fetchFailure(url, stage string, err error) (models.ValidationOutcome, error) {
	if fetch.IsTransient(err) {
		f.metrics.RejectionsTotal.WithLabelValues("fetch_failed").Inc()
		return models.ValidationOutcome{}, &validationError{err: fmt.Errorf("%s %s: %w", stage, url, err)}
	}
	return f.reject(url, stage+" failed: "+err.Error()), nil
}
