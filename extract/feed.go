package extract

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/zombar/imagefinder/models"
)

// FeedStrategy consumes syndication hints already known for the article: the
// cheapest possible source, tried before any page fetch. Enclosure fields
// beat media:content, which beat images scraped out of the item's own HTML.
type FeedStrategy struct{}

func (FeedStrategy) Name() string { return string(models.StrategyFeed) }

func (FeedStrategy) Extract(_ context.Context, page *Page) ([]models.ImageCandidate, error) {
	if page.Hints == nil {
		return nil, nil
	}
	return CandidatesFromHints(page.URL, page.Hints), nil
}

// CandidatesFromHints turns feed hints into candidates. Exposed so the
// orchestrator can short-circuit before fetching the article page at all.
func CandidatesFromHints(base *url.URL, hints *models.FeedHints) []models.ImageCandidate {
	if hints == nil {
		return nil
	}
	var cands []models.ImageCandidate

	if hints.EnclosureURL != "" {
		if resolved, ok := resolveImageURL(base, hints.EnclosureURL); ok {
			cands = append(cands, models.ImageCandidate{
				URL: resolved, Source: models.StrategyFeed, Score: 100,
			})
		}
	}
	if hints.MediaContentURL != "" && hints.MediaContentURL != hints.EnclosureURL {
		if resolved, ok := resolveImageURL(base, hints.MediaContentURL); ok {
			cands = append(cands, models.ImageCandidate{
				URL: resolved, Source: models.StrategyFeed, Score: 95,
			})
		}
	}

	// Feeds often inline the lead image in the item body.
	if hints.RawContentHTML != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(hints.RawContentHTML)); err == nil {
			doc.Find("img").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
				src := sel.AttrOr("src", sel.AttrOr("data-src", ""))
				if resolved, ok := resolveImageURL(base, src); ok {
					cands = append(cands, models.ImageCandidate{
						URL: resolved, Source: models.StrategyFeed, Score: 80,
					})
					return false
				}
				return true
			})
		}
	}

	return cands
}

// HintsFromFeedItem builds FeedHints from a parsed feed item. Priority:
// item image, then media:content (medium=image), then media:thumbnail, then
// image enclosures. Callers ingesting feeds use this to populate the
// acquisition request.
func HintsFromFeedItem(item *gofeed.Item) *models.FeedHints {
	if item == nil {
		return nil
	}
	hints := &models.FeedHints{RawContentHTML: item.Content}

	if item.Image != nil && item.Image.URL != "" {
		hints.EnclosureURL = item.Image.URL
	}
	if hints.EnclosureURL == "" {
		for _, enc := range item.Enclosures {
			if strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
				hints.EnclosureURL = enc.URL
				break
			}
		}
	}

	if media, ok := item.Extensions["media"]; ok {
		if contents, ok := media["content"]; ok {
			for _, c := range contents {
				medium := c.Attrs["medium"]
				u := c.Attrs["url"]
				if u == "" {
					continue
				}
				if medium == "image" || medium == "" && looksLikeImageURL(u) {
					hints.MediaContentURL = u
					break
				}
			}
		}
		if hints.MediaContentURL == "" {
			if thumbs, ok := media["thumbnail"]; ok {
				for _, th := range thumbs {
					if u := th.Attrs["url"]; u != "" {
						hints.MediaContentURL = u
						break
					}
				}
			}
		}
	}

	if hints.EnclosureURL == "" && hints.MediaContentURL == "" && hints.RawContentHTML == "" {
		return nil
	}
	return hints
}

func looksLikeImageURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".webp", ".gif", ".avif"} {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	return false
}
