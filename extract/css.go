package extract

import (
	"context"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/zombar/imagefinder/models"
)

// background-image: url(...) with optional quotes, first occurrence only.
var cssURLRe = regexp.MustCompile(`background(?:-image)?\s*:\s*[^;]*url\(\s*['"]?([^'")]+)['"]?\s*\)`)

// CSSStrategy pulls background images out of inline style attributes. External
// stylesheets are never fetched; only what the page itself carries counts.
type CSSStrategy struct{}

func (CSSStrategy) Name() string { return string(models.StrategyCSS) }

func (CSSStrategy) Extract(_ context.Context, page *Page) ([]models.ImageCandidate, error) {
	var cands []models.ImageCandidate
	seen := make(map[string]struct{})

	walk(page.Doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		style := attrVal(n, "style")
		if style == "" || !strings.Contains(style, "url(") {
			return
		}
		m := cssURLRe.FindStringSubmatch(style)
		if m == nil {
			return
		}
		resolved, ok := resolveImageURL(page.URL, m[1])
		if !ok {
			return
		}
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}
		cands = append(cands, models.ImageCandidate{
			URL:    resolved,
			Source: models.StrategyCSS,
			Score:  55,
		})
	})
	return cands, nil
}
