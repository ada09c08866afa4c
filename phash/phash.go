// Package phash computes a 64-bit difference hash over image content. It is
// deliberately simple: good enough to reject exact and near-exact repeats,
// not a general perceptual-similarity engine.
package phash

import (
	"bytes"
	"fmt"
	"image"
	"math/bits"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// dhash works on a 9x8 grayscale grid: one bit per horizontal neighbor pair.
const (
	hashWidth  = 9
	hashHeight = 8
)

// FromBytes decodes image data and returns its difference hash.
func FromBytes(data []byte) (uint64, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to decode image: %w", err)
	}
	return FromImage(img), nil
}

// FromImage computes the difference hash of an already-decoded image.
func FromImage(img image.Image) uint64 {
	small := image.NewGray(image.Rect(0, 0, hashWidth, hashHeight))
	draw.BiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	var hash uint64
	for y := 0; y < hashHeight; y++ {
		for x := 0; x < hashWidth-1; x++ {
			hash <<= 1
			if small.GrayAt(x, y).Y > small.GrayAt(x+1, y).Y {
				hash |= 1
			}
		}
	}
	return hash
}

// Distance returns the Hamming distance between two hashes.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}
