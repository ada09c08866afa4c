package extract

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/zombar/imagefinder/models"
)

// PageGetter is the slice of the guarded fetcher the oEmbed strategy needs.
type PageGetter interface {
	GetPage(ctx context.Context, pageURL string) ([]byte, error)
}

// oembedProvider maps an article-URL pattern to its oEmbed endpoint. The
// strategy only fires when the article itself lives on an embed platform;
// for ordinary pages it contributes nothing and costs nothing.
type oembedProvider struct {
	name     string
	match    *regexp.Regexp
	endpoint string
	score    int
}

var oembedProviders = []oembedProvider{
	{
		name:     "youtube",
		match:    regexp.MustCompile(`(?i)^https?://(www\.)?(youtube\.com/watch|youtu\.be/)`),
		endpoint: "https://www.youtube.com/oembed",
		score:    90,
	},
	{
		name:     "vimeo",
		match:    regexp.MustCompile(`(?i)^https?://(www\.)?vimeo\.com/\d+`),
		endpoint: "https://vimeo.com/api/oembed.json",
		score:    85,
	},
	{
		name:     "flickr",
		match:    regexp.MustCompile(`(?i)^https?://(www\.)?flickr\.com/photos/`),
		endpoint: "https://www.flickr.com/services/oembed",
		score:    85,
	},
	{
		name:     "dailymotion",
		match:    regexp.MustCompile(`(?i)^https?://(www\.)?dailymotion\.com/video/`),
		endpoint: "https://www.dailymotion.com/services/oembed",
		score:    75,
	},
}

type oembedResponse struct {
	ThumbnailURL    string `json:"thumbnail_url"`
	ThumbnailWidth  int    `json:"thumbnail_width"`
	ThumbnailHeight int    `json:"thumbnail_height"`
}

// OEmbedStrategy asks a known embed platform for its own thumbnail metadata.
type OEmbedStrategy struct {
	Fetcher PageGetter
	// EndpointOverride replaces every provider endpoint; tests point it at a
	// fixture server.
	EndpointOverride string
}

func (OEmbedStrategy) Name() string { return string(models.StrategyOEmbed) }

func (s OEmbedStrategy) Extract(ctx context.Context, page *Page) ([]models.ImageCandidate, error) {
	articleURL := page.URL.String()

	for _, p := range oembedProviders {
		if !p.match.MatchString(articleURL) {
			continue
		}

		endpoint := p.endpoint
		if s.EndpointOverride != "" {
			endpoint = s.EndpointOverride
		}
		reqURL := endpoint + "?format=json&url=" + url.QueryEscape(articleURL)

		body, err := s.Fetcher.GetPage(ctx, reqURL)
		if err != nil {
			return nil, err
		}
		var resp oembedResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, err
		}
		if resp.ThumbnailURL == "" {
			return nil, nil
		}

		thumb := upgradeThumbnail(p.name, resp.ThumbnailURL)
		resolved, ok := resolveImageURL(page.URL, thumb)
		if !ok {
			return nil, nil
		}
		return []models.ImageCandidate{{
			URL:    resolved,
			Source: models.StrategyOEmbed,
			Score:  p.score,
			Width:  resp.ThumbnailWidth,
			Height: resp.ThumbnailHeight,
		}}, nil
	}
	return nil, nil
}

// upgradeThumbnail swaps known low-res default thumbnails for the best
// variant the platform serves.
func upgradeThumbnail(provider, thumbURL string) string {
	if provider == "youtube" {
		return strings.Replace(thumbURL, "hqdefault", "maxresdefault", 1)
	}
	return thumbURL
}
