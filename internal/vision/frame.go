// Package vision holds the image math the condition engine is built on:
// HSV color distance, region sample grids, perceptual image similarity and
// captured-frame helpers. Everything here is a pure function of its inputs,
// which is what lets the engine memoize evaluations within a tick.
package vision

import (
	"image"
	"time"

	xdraw "golang.org/x/image/draw"
)

// Frame is one captured screen bitmap plus the instant it was taken. The
// instant doubles as the detection tick id for per-tick memoization.
type Frame struct {
	Image *image.RGBA
	Taken time.Time
}

// NewFrame wraps img with the current time.
func NewFrame(img *image.RGBA) *Frame {
	return &Frame{Image: img, Taken: time.Now()}
}

// Blank returns an all-black frame of the given size. Capture degrades to
// this when every backend fails, so downstream code never sees a nil bitmap.
func Blank(w, h int) *Frame {
	if w <= 0 || h <= 0 {
		w, h = 1920, 1080
	}
	return NewFrame(image.NewRGBA(image.Rect(0, 0, w, h)))
}

// TickID identifies the detection tick this frame belongs to.
func (f *Frame) TickID() int64 {
	if f == nil {
		return 0
	}
	return f.Taken.UnixNano()
}

// Bounds returns the frame's pixel bounds, or the zero rectangle for a nil
// or empty frame.
func (f *Frame) Bounds() image.Rectangle {
	if f == nil || f.Image == nil {
		return image.Rectangle{}
	}
	return f.Image.Bounds()
}

// PixelAt samples the pixel at (x, y). ok is false when the point lies
// outside the frame.
func (f *Frame) PixelAt(x, y int) (r, g, b uint8, ok bool) {
	if f == nil || f.Image == nil {
		return 0, 0, 0, false
	}
	if !(image.Point{X: x, Y: y}.In(f.Image.Bounds())) {
		return 0, 0, 0, false
	}
	c := f.Image.RGBAAt(x, y)
	return c.R, c.G, c.B, true
}

// Crop copies the part of the frame covered by r into a fresh image whose
// bounds start at the origin. ok is false when r misses the frame entirely.
func (f *Frame) Crop(r image.Rectangle) (*image.RGBA, bool) {
	if f == nil || f.Image == nil {
		return nil, false
	}
	r = r.Intersect(f.Image.Bounds())
	if r.Empty() {
		return nil, false
	}
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	xdraw.Copy(out, image.Point{}, f.Image, r, xdraw.Src, nil)
	return out, true
}
