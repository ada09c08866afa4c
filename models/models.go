package models

import "time"

// SourceStrategy identifies which extraction strategy produced a candidate.
type SourceStrategy string

const (
	StrategyFeed     SourceStrategy = "feed"
	StrategyMeta     SourceStrategy = "meta"
	StrategyJSONLD   SourceStrategy = "jsonld"
	StrategyOEmbed   SourceStrategy = "oembed"
	StrategyAMP      SourceStrategy = "amp"
	StrategyDOM      SourceStrategy = "dom"
	StrategyCSS      SourceStrategy = "css"
	StrategyFallback SourceStrategy = "fallback"
	StrategyBrowser  SourceStrategy = "browser"
)

// strategyPriority orders strategies for tie-breaking when two candidates
// carry the same prior score. Lower is better. Metadata sources outrank DOM
// heuristics, which outrank generic fallbacks.
var strategyPriority = map[SourceStrategy]int{
	StrategyFeed:     0,
	StrategyMeta:     1,
	StrategyJSONLD:   2,
	StrategyOEmbed:   3,
	StrategyAMP:      4,
	StrategyDOM:      5,
	StrategyCSS:      6,
	StrategyFallback: 7,
	StrategyBrowser:  8,
}

// Priority returns the tie-break rank for the strategy (lower wins).
func (s SourceStrategy) Priority() int {
	if p, ok := strategyPriority[s]; ok {
		return p
	}
	return 99
}

// ImageCandidate is a single image URL proposed by one extraction strategy.
// Candidates are immutable after creation and live only for one article pass.
type ImageCandidate struct {
	URL    string         `json:"url"`
	Source SourceStrategy `json:"source_strategy"`
	Score  int            `json:"prior_score"`
	Width  int            `json:"measured_width,omitempty"`
	Height int            `json:"measured_height,omitempty"`
}

// ValidationOutcome is the result of running one candidate through the
// validation chain. Outcomes are cached by URL so repeated candidates across
// articles in the same processing window skip re-validation.
type ValidationOutcome struct {
	Accepted       bool   `json:"accepted"`
	Reason         string `json:"reason,omitempty"`
	ContentHash    string `json:"content_hash,omitempty"`
	PerceptualHash uint64 `json:"perceptual_hash,omitempty"`
	ContentType    string `json:"content_type,omitempty"`
	ByteSize       int64  `json:"byte_size,omitempty"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
}

// DedupRecord is one accepted image, persisted durably so dedup holds across
// restarts and across concurrent workers. ContentHash is the SHA-256 of the
// image bytes; URLHash is the SHA-256 of the normalized candidate URL, checked
// before any download so repeat URLs are rejected without a fetch.
type DedupRecord struct {
	ID             string    `json:"id"`
	ContentHash    string    `json:"content_hash"`
	URLHash        string    `json:"url_hash"`
	PerceptualHash uint64    `json:"perceptual_hash"`
	SourceURL      string    `json:"source_url"`
	ArticleURL     string    `json:"article_url,omitempty"`
	ArchiveKey     string    `json:"archive_key,omitempty"`
	AcceptedAt     time.Time `json:"accepted_at"`
}

// FeedHints carries syndication metadata already known for an article, so the
// cheapest candidate source can run before any page fetch.
type FeedHints struct {
	EnclosureURL    string `json:"enclosure_url,omitempty"`
	MediaContentURL string `json:"media_content_url,omitempty"`
	RawContentHTML  string `json:"raw_content_html,omitempty"`
}

// Outcome labels the terminal state of one acquisition.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeExhausted Outcome = "exhausted"
)

// AcquireResult is what the pipeline hands back to callers. Exhaustion is a
// valid terminal outcome, not an error.
type AcquireResult struct {
	Outcome  Outcome        `json:"outcome"`
	ImageURL string         `json:"image_url,omitempty"`
	Source   SourceStrategy `json:"source_strategy,omitempty"`
	Width    int            `json:"width,omitempty"`
	Height   int            `json:"height,omitempty"`
}

// AcquireRequest is the inbound API payload for one article.
type AcquireRequest struct {
	URL             string `json:"url"`
	EnclosureURL    string `json:"enclosure_url,omitempty"`
	MediaContentURL string `json:"media_content_url,omitempty"`
	RawContentHTML  string `json:"raw_content_html,omitempty"`
}
