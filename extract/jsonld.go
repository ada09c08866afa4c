package extract

import (
	"context"
	"encoding/json"
	"strings"

	"golang.org/x/net/html"

	"github.com/zombar/imagefinder/models"
)

// JSONLDStrategy collects image URLs from schema.org structured data.
// Publishers nest Article/NewsArticle/ImageObject shapes arbitrarily (single
// object, arrays, @graph), so the collector recurses the whole value.
type JSONLDStrategy struct{}

func (JSONLDStrategy) Name() string { return string(models.StrategyJSONLD) }

func (JSONLDStrategy) Extract(_ context.Context, page *Page) ([]models.ImageCandidate, error) {
	var blocks []string
	walk(page.Doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "script" {
			return
		}
		if !strings.EqualFold(attrVal(n, "type"), "application/ld+json") {
			return
		}
		if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			blocks = append(blocks, n.FirstChild.Data)
		}
	})

	seen := make(map[string]models.ImageCandidate)
	for _, block := range blocks {
		var doc any
		// One malformed block must not hide the others.
		if err := json.Unmarshal([]byte(block), &doc); err != nil {
			continue
		}
		collectImages(doc, page, seen)
	}

	cands := make([]models.ImageCandidate, 0, len(seen))
	for _, c := range seen {
		cands = append(cands, c)
	}
	return cands, nil
}

// collectImages walks arbitrary decoded JSON, gathering every image-bearing
// field it can find.
func collectImages(v any, page *Page, out map[string]models.ImageCandidate) {
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			collectImages(item, page, out)
		}
	case map[string]any:
		if t, _ := val["@type"].(string); strings.EqualFold(t, "ImageObject") {
			addImageObject(val, page, out)
		}
		for key, child := range val {
			switch strings.ToLower(key) {
			case "image", "thumbnailurl", "primaryimageofpage":
				addImageValue(child, page, out)
			case "@graph", "mainentity", "mainentityofpage", "itemlistelement", "item":
				collectImages(child, page, out)
			}
		}
	}
}

// addImageValue handles the three shapes image fields come in: a bare URL
// string, an ImageObject, or an array of either.
func addImageValue(v any, page *Page, out map[string]models.ImageCandidate) {
	switch val := v.(type) {
	case string:
		addImageURL(val, 0, 0, page, out)
	case []any:
		for _, item := range val {
			addImageValue(item, page, out)
		}
	case map[string]any:
		addImageObject(val, page, out)
	}
}

func addImageObject(obj map[string]any, page *Page, out map[string]models.ImageCandidate) {
	rawURL, _ := obj["url"].(string)
	if rawURL == "" {
		rawURL, _ = obj["contentUrl"].(string)
	}
	if rawURL == "" {
		return
	}
	addImageURL(rawURL, jsonInt(obj["width"]), jsonInt(obj["height"]), page, out)
}

func addImageURL(rawURL string, width, height int, page *Page, out map[string]models.ImageCandidate) {
	resolved, ok := resolveImageURL(page.URL, rawURL)
	if !ok {
		return
	}
	if prev, exists := out[resolved]; exists && prev.Width > 0 {
		return
	}
	out[resolved] = models.ImageCandidate{
		URL:    resolved,
		Source: models.StrategyJSONLD,
		Score:  85,
		Width:  width,
		Height: height,
	}
}

// jsonInt accepts the number, string, and QuantitativeValue shapes schema.org
// dimensions appear in.
func jsonInt(v any) int {
	switch val := v.(type) {
	case float64:
		return int(val)
	case string:
		n := 0
		for _, r := range val {
			if r < '0' || r > '9' {
				break
			}
			n = n*10 + int(r-'0')
		}
		return n
	case map[string]any:
		return jsonInt(val["value"])
	}
	return 0
}
