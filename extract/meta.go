package extract

import (
	"context"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/zombar/imagefinder/models"
)

// MetaStrategy reads social preview metadata: og:image and twitter:image.
// Highest trust of all sources because the publisher chose the image
// explicitly for link previews.
type MetaStrategy struct{}

func (MetaStrategy) Name() string { return string(models.StrategyMeta) }

func (MetaStrategy) Extract(_ context.Context, page *Page) ([]models.ImageCandidate, error) {
	type metaImage struct {
		url           string
		width, height int
		score         int
	}
	var (
		images  []metaImage
		current = -1 // og:image:width/height bind to the preceding og:image
	)

	walk(page.Doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "meta" {
			return
		}
		var property, name, content string
		for _, attr := range n.Attr {
			switch strings.ToLower(attr.Key) {
			case "property":
				property = strings.ToLower(attr.Val)
			case "name":
				name = strings.ToLower(attr.Val)
			case "content":
				content = attr.Val
			}
		}
		if content == "" {
			return
		}

		key := property
		if key == "" {
			key = name
		}
		switch key {
		case "og:image", "og:image:url", "og:image:secure_url":
			images = append(images, metaImage{url: content, score: 100})
			current = len(images) - 1
		case "og:image:width":
			if current >= 0 {
				images[current].width, _ = strconv.Atoi(content)
			}
		case "og:image:height":
			if current >= 0 {
				images[current].height, _ = strconv.Atoi(content)
			}
		case "twitter:image", "twitter:image:src":
			images = append(images, metaImage{url: content, score: 95})
		case "thumbnail", "msapplication-tileimage":
			images = append(images, metaImage{url: content, score: 90})
		}
	})

	var cands []models.ImageCandidate
	for _, img := range images {
		resolved, ok := resolveImageURL(page.URL, img.url)
		if !ok {
			continue
		}
		cands = append(cands, models.ImageCandidate{
			URL:    resolved,
			Source: models.StrategyMeta,
			Score:  img.score,
			Width:  img.width,
			Height: img.height,
		})
	}
	return cands, nil
}
