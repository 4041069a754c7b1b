package vision

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"math"

	"github.com/corona10/goimagehash"
	"github.com/nfnt/resize"
)

// DecodeBase64PNG decodes a profile's embedded reference image.
func DecodeBase64PNG(data string) (image.Image, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	return img, nil
}

// Similarity scores how alike two images look, in [0, 1]. Dimensions are
// reconciled by resizing the live image to the reference, then both are
// compared by perceptual hash (1 - hamming/64). Mean pixel distance is the
// fallback when hashing cannot be applied.
func Similarity(ref, live image.Image) float64 {
	if ref == nil || live == nil {
		return 0
	}
	rb, lb := ref.Bounds(), live.Bounds()
	if rb.Empty() || lb.Empty() {
		return 0
	}
	if rb.Dx() != lb.Dx() || rb.Dy() != lb.Dy() {
		live = resize.Resize(uint(rb.Dx()), uint(rb.Dy()), live, resize.Bilinear)
	}

	refHash, errRef := goimagehash.PerceptionHash(ref)
	liveHash, errLive := goimagehash.PerceptionHash(live)
	if errRef == nil && errLive == nil {
		if dist, err := refHash.Distance(liveHash); err == nil {
			return 1 - float64(dist)/64
		}
	}
	return meanPixelSimilarity(ref, live)
}

// meanPixelSimilarity is 1 minus the mean per-channel absolute difference,
// normalized to [0, 1]. Both images must already share dimensions.
func meanPixelSimilarity(a, b image.Image) float64 {
	ab, bb := a.Bounds(), b.Bounds()
	w, h := ab.Dx(), ab.Dy()
	if w == 0 || h == 0 || w != bb.Dx() || h != bb.Dy() {
		return 0
	}
	var total float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			ar, ag, abl, _ := a.At(ab.Min.X+x, ab.Min.Y+y).RGBA()
			br, bg, bbl, _ := b.At(bb.Min.X+x, bb.Min.Y+y).RGBA()
			total += math.Abs(float64(ar>>8) - float64(br>>8))
			total += math.Abs(float64(ag>>8) - float64(bg>>8))
			total += math.Abs(float64(abl>>8) - float64(bbl>>8))
		}
	}
	mean := total / float64(w*h*3)
	return 1 - mean/255
}
