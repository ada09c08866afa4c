// Package imagemeta derives measurable properties of a candidate image:
// dimensions from decoded bytes (EXIF-orientation aware) or, pre-download,
// from dimension patterns embedded in the URL itself.
package imagemeta

import (
	"bytes"
	"image"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// imageTypes lists content types the pipeline accepts.
var imageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/jpg":  {},
	"image/png":  {},
	"image/webp": {},
	"image/gif":  {},
	"image/avif": {},
	"image/bmp":  {},
}

// IsImageType reports whether a cleaned content type is an acceptable raster
// image type. Vector types are rejected upstream by the URL blacklist.
func IsImageType(contentType string) bool {
	_, ok := imageTypes[contentType]
	return ok
}

// Dimensions decodes just the image header for width/height. JPEGs carrying
// an EXIF orientation of 5-8 are stored rotated, so the reported axes swap.
func Dimensions(data []byte) (width, height int, ok bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, false
	}
	width, height = cfg.Width, cfg.Height

	if x, err := exif.Decode(bytes.NewReader(data)); err == nil {
		if tag, err := x.Get(exif.Orientation); err == nil {
			if o, err := tag.Int(0); err == nil && o >= 5 && o <= 8 {
				width, height = height, width
			}
		}
	}

	return width, height, true
}

// Patterns publishers embed in image URLs: "-1200x630.", "_800x600-",
// "/300x200/". The two numbers must both look like plausible pixel counts.
var urlDimsRe = regexp.MustCompile(`(?:^|[/_.-])(\d{2,5})x(\d{2,5})(?:[/_.-]|$)`)

// DimensionsFromURL extracts width/height hints from the URL path or from
// well-known query parameters (w/h, width/height). Zero values mean unknown.
func DimensionsFromURL(rawURL string) (width, height int) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, 0
	}

	q := u.Query()
	width = intParam(q, "w", "width")
	height = intParam(q, "h", "height")
	if width > 0 && height > 0 {
		return width, height
	}

	base := strings.ToLower(u.Path)
	if m := urlDimsRe.FindStringSubmatch(base); m != nil {
		w, _ := strconv.Atoi(m[1])
		h, _ := strconv.Atoi(m[2])
		if plausiblePixels(w) && plausiblePixels(h) {
			return w, h
		}
	}
	return width, height
}

func intParam(q url.Values, names ...string) int {
	for _, name := range names {
		if v := q.Get(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil && plausiblePixels(n) {
				return n
			}
		}
	}
	return 0
}

func plausiblePixels(n int) bool {
	return n >= 16 && n <= 20000
}
