package extract

import (
	"context"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/zombar/imagefinder/models"
)

// Selector allow-list for the DOM heuristic, most article-specific first.
// The score reflects how reliably each container holds the lead image.
var domSelectors = []struct {
	selector string
	score    int
}{
	{"figure.featured img", 70},
	{".featured-image img", 70},
	{".post-thumbnail img", 68},
	{".article-hero img, .hero-image img", 68},
	{"article figure img", 65},
	{"article img", 60},
	{".post-content img, .entry-content img, .article-content img, .article-body img", 58},
	{"main figure img", 55},
	{"main img", 50},
	{".content img", 45},
}

// DOMStrategy is the largest and most failure-prone source: class/id
// heuristics over arbitrarily malformed markup, with responsive-set
// resolution and a size-attribute bonus.
type DOMStrategy struct{}

func (DOMStrategy) Name() string { return string(models.StrategyDOM) }

func (DOMStrategy) Extract(_ context.Context, page *Page) ([]models.ImageCandidate, error) {
	seen := make(map[string]struct{})
	var cands []models.ImageCandidate

	for _, entry := range domSelectors {
		page.Query.Find(entry.selector).Each(func(_ int, sel *goquery.Selection) {
			cand, ok := candidateFromImg(page, sel, entry.score)
			if !ok {
				return
			}
			if _, dup := seen[cand.URL]; dup {
				return
			}
			seen[cand.URL] = struct{}{}
			cands = append(cands, cand)
		})
	}
	return cands, nil
}

// FallbackStrategy is the last DOM-derived resort: the first plausible image
// anywhere in the content area, scored low so it only wins when nothing
// better validated.
type FallbackStrategy struct{}

func (FallbackStrategy) Name() string { return string(models.StrategyFallback) }

func (FallbackStrategy) Extract(_ context.Context, page *Page) ([]models.ImageCandidate, error) {
	var cands []models.ImageCandidate
	seen := make(map[string]struct{})

	// Prefer the tightest content scope available; body is the last resort
	// and drags in header/footer chrome.
	var scope *goquery.Selection
	for _, s := range []string{"article", "main", "#content", ".content", "body"} {
		if scope = page.Query.Find(s).First(); scope.Length() > 0 {
			break
		}
	}
	scope.Find("img").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if len(cands) >= 3 {
			return false
		}
		score := 65 - 10*len(cands) // first image is the most likely lead
		cand, ok := candidateFromImg(page, sel, score)
		if !ok {
			return true
		}
		if _, dup := seen[cand.URL]; dup {
			return true
		}
		seen[cand.URL] = struct{}{}
		cand.Source = models.StrategyFallback
		cands = append(cands, cand)
		return true
	})
	return cands, nil
}

// candidateFromImg builds a candidate from an <img>, preferring the best
// srcset member over src, tolerating lazy-load attribute conventions, and
// granting a bonus for large explicit size attributes.
func candidateFromImg(page *Page, sel *goquery.Selection, baseScore int) (models.ImageCandidate, bool) {
	src := bestSrcsetURL(sel.AttrOr("srcset", ""))
	if src == "" {
		src = bestSrcsetURL(sel.AttrOr("data-srcset", ""))
	}
	if src == "" {
		for _, attr := range []string{"src", "data-src", "data-lazy-src", "data-original"} {
			if v := strings.TrimSpace(sel.AttrOr(attr, "")); v != "" {
				src = v
				break
			}
		}
	}
	if src == "" {
		return models.ImageCandidate{}, false
	}

	resolved, ok := resolveImageURL(page.URL, src)
	if !ok {
		return models.ImageCandidate{}, false
	}

	width := intAttr(sel, "width")
	height := intAttr(sel, "height")
	score := baseScore
	if width >= 600 && height >= 300 {
		score += 5
	}
	if width > 0 && width < 100 {
		score -= 15 // explicit tiny images are chrome, not content
	}
	if score < 0 {
		score = 0
	}

	return models.ImageCandidate{
		URL:    resolved,
		Source: models.StrategyDOM,
		Score:  score,
		Width:  width,
		Height: height,
	}, true
}

// bestSrcsetURL picks the highest width/density member of a srcset. Never a
// data: URL; malformed members are skipped.
func bestSrcsetURL(srcset string) string {
	if strings.TrimSpace(srcset) == "" {
		return ""
	}

	bestURL := ""
	bestWeight := -1.0
	for _, part := range strings.Split(srcset, ",") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) == 0 {
			continue
		}
		candURL := fields[0]
		if strings.HasPrefix(strings.ToLower(candURL), "data:") {
			continue
		}

		weight := 1.0 // bare URL counts as 1x
		if len(fields) > 1 {
			desc := strings.ToLower(fields[1])
			switch {
			case strings.HasSuffix(desc, "w"):
				if n, err := strconv.ParseFloat(strings.TrimSuffix(desc, "w"), 64); err == nil {
					weight = n
				}
			case strings.HasSuffix(desc, "x"):
				if n, err := strconv.ParseFloat(strings.TrimSuffix(desc, "x"), 64); err == nil {
					// Density descriptors compete below width descriptors;
					// a 2x variant still beats a bare 1x.
					weight = n
				}
			}
		}
		if weight > bestWeight {
			bestWeight = weight
			bestURL = candURL
		}
	}
	return bestURL
}

func intAttr(sel *goquery.Selection, name string) int {
	v := strings.TrimSpace(sel.AttrOr(name, ""))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSuffix(v, "px"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
