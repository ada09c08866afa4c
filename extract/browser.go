package extract

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/zombar/imagefinder/models"
)

// browserProbe runs in the rendered page and reports the largest visible
// images with their computed sizes, which static parsing cannot see for
// script-assembled galleries.
const browserProbe = `
(() => {
  const imgs = Array.from(document.images)
    .filter(i => i.currentSrc && !i.currentSrc.startsWith('data:'))
    .map(i => ({url: i.currentSrc, width: i.naturalWidth, height: i.naturalHeight}))
    .filter(i => i.width >= 100 && i.height >= 100)
    .sort((a, b) => b.width * b.height - a.width * a.height);
  return imgs.slice(0, 5);
})()
`

type renderedImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// BrowserStrategy renders the page in headless Chrome and reads the images
// the runtime actually produced. By far the most expensive source: the
// orchestrator only runs it when every static strategy came back empty. One
// browser context per invocation, always released.
type BrowserStrategy struct {
	// Timeout bounds the whole render. Zero means 20s.
	Timeout time.Duration
	// ExecAllocatorOptions lets callers adjust Chrome flags (e.g. a proxy
	// that enforces the same egress policy at the network layer).
	ExecAllocatorOptions []chromedp.ExecAllocatorOption
}

func (BrowserStrategy) Name() string { return string(models.StrategyBrowser) }

func (s BrowserStrategy) Extract(ctx context.Context, page *Page) ([]models.ImageCandidate, error) {
	timeout := s.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:], s.ExecAllocatorOptions...)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	var rendered []renderedImage
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(page.URL.String()),
		chromedp.Evaluate(browserProbe, &rendered),
	)
	if err != nil {
		return nil, err
	}

	var cands []models.ImageCandidate
	for i, img := range rendered {
		resolved, ok := resolveImageURL(page.URL, img.URL)
		if !ok {
			continue
		}
		score := 55 - 2*i // rendered order already sorts by area
		cands = append(cands, models.ImageCandidate{
			URL:    resolved,
			Source: models.StrategyBrowser,
			Score:  score,
			Width:  img.Width,
			Height: img.Height,
		})
	}
	return cands, nil
}
