package imagemeta

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func TestIsImageType(t *testing.T) {
	tests := []struct {
		ct   string
		want bool
	}{
		{"image/jpeg", true},
		{"image/png", true},
		{"image/webp", true},
		{"image/avif", true},
		{"image/svg+xml", false},
		{"text/html", false},
		{"application/octet-stream", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsImageType(tt.ct); got != tt.want {
			t.Errorf("IsImageType(%q) = %v, want %v", tt.ct, got, tt.want)
		}
	}
}

func TestDimensions(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 320, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}

	w, h, ok := Dimensions(buf.Bytes())
	if !ok {
		t.Fatal("expected decodable image")
	}
	if w != 320 || h != 200 {
		t.Errorf("got %dx%d, want 320x200", w, h)
	}

	if _, _, ok := Dimensions([]byte("garbage")); ok {
		t.Error("garbage should not decode")
	}
}

func TestDimensionsFromURL(t *testing.T) {
	tests := []struct {
		url  string
		w, h int
	}{
		{"https://cdn.example.com/photo-1200x630.jpg", 1200, 630},
		{"https://cdn.example.com/img_800x600-final.png", 800, 600},
		{"https://cdn.example.com/thumbs/300x200/photo.jpg", 300, 200},
		{"https://cdn.example.com/photo.jpg?w=1024&h=768", 1024, 768},
		{"https://cdn.example.com/photo.jpg?width=640&height=480", 640, 480},
		{"https://cdn.example.com/photo.jpg", 0, 0},
		// Numbers in a name that are not dimensions.
		{"https://cdn.example.com/iphone15.jpg", 0, 0},
		// Implausible pixel counts ignored.
		{"https://cdn.example.com/a-2x2.gif", 0, 0},
	}
	for _, tt := range tests {
		w, h := DimensionsFromURL(tt.url)
		if w != tt.w || h != tt.h {
			t.Errorf("DimensionsFromURL(%q) = %dx%d, want %dx%d", tt.url, w, h, tt.w, tt.h)
		}
	}
}
