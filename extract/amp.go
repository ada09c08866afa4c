package extract

import (
	"context"
	"strconv"

	"golang.org/x/net/html"

	"github.com/zombar/imagefinder/models"
)

// AMPStrategy reads <amp-img> elements, but only on AMP-flavored pages; the
// element carries mandatory width/height, which makes these candidates
// unusually well-measured.
type AMPStrategy struct{}

func (AMPStrategy) Name() string { return string(models.StrategyAMP) }

func (AMPStrategy) Extract(_ context.Context, page *Page) ([]models.ImageCandidate, error) {
	if !isAMPPage(page.Doc) {
		return nil, nil
	}

	var cands []models.ImageCandidate
	seen := make(map[string]struct{})
	walk(page.Doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "amp-img" {
			return
		}
		src := attrVal(n, "src")
		if src == "" {
			src = bestSrcsetURL(attrVal(n, "srcset"))
		}
		resolved, ok := resolveImageURL(page.URL, src)
		if !ok {
			return
		}
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}

		width, _ := strconv.Atoi(attrVal(n, "width"))
		height, _ := strconv.Atoi(attrVal(n, "height"))
		cands = append(cands, models.ImageCandidate{
			URL:    resolved,
			Source: models.StrategyAMP,
			Score:  75,
			Width:  width,
			Height: height,
		})
	})
	return cands, nil
}

// isAMPPage checks the html element for the amp or ⚡ marker attribute.
func isAMPPage(doc *html.Node) bool {
	amp := false
	walk(doc, func(n *html.Node) {
		if amp || n.Type != html.ElementNode || n.Data != "html" {
			return
		}
		for _, a := range n.Attr {
			if a.Key == "amp" || a.Key == "⚡" {
				amp = true
				return
			}
		}
	})
	return amp
}
