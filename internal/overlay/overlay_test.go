package overlay

import (
	"image"
	"image/color"
	"testing"

	"github.com/menuvox/menuvox/internal/profile"
)

func blankFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	return img
}

// changedPixels counts pixels that differ between the source and the render.
func changedPixels(src, out image.Image) int {
	n := 0
	b := src.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if src.At(x, y) != color.RGBAModel.Convert(out.At(x, y)) {
				n++
			}
		}
	}
	return n
}

func TestRenderDrawsGeometry(t *testing.T) {
	src := blankFrame(200, 200)
	menu := &profile.Menu{
		Conditions: []profile.Condition{
			{Type: profile.CondPixelColor, X: 30, Y: 30},
			{Type: profile.CondPixelRegionColor, X1: 60, Y1: 60, X2: 120, Y2: 100},
		},
		Items: []profile.Element{
			{Coordinates: profile.Point{X: 150, Y: 150}, Name: "Play"},
			{
				Coordinates: profile.Point{X: 40, Y: 160},
				Name:        "Score",
				OcrRegions: []profile.OcrRegion{
					{Tag: "score", Rect: profile.Rect{X1: 10, Y1: 170, X2: 90, Y2: 190}},
				},
			},
		},
	}

	out := Render(src, menu, 0)

	if got, want := out.Bounds(), src.Bounds(); got != want {
		t.Fatalf("bounds = %v, want %v", got, want)
	}
	if n := changedPixels(src, out); n < 100 {
		t.Errorf("render changed only %d pixels, expected substantial drawing", n)
	}
}

func TestRenderNilMenuLeavesFrameAlone(t *testing.T) {
	src := blankFrame(50, 50)
	out := Render(src, nil, -1)

	if n := changedPixels(src, out); n != 0 {
		t.Errorf("nil menu changed %d pixels", n)
	}
}

func TestRenderClampsOutOfBoundsRegions(t *testing.T) {
	src := blankFrame(50, 50)
	menu := &profile.Menu{
		Conditions: []profile.Condition{
			{Type: profile.CondPixelRegionColor, X1: -20, Y1: -20, X2: 200, Y2: 200},
			{Type: profile.CondOcrTextMatch, X1: 400, Y1: 400, X2: 500, Y2: 500},
		},
	}

	// Must not panic; the second region is fully outside and skipped.
	out := Render(src, menu, -1)
	if out.Bounds() != src.Bounds() {
		t.Fatalf("bounds changed: %v", out.Bounds())
	}
}

func TestFocusedElementGetsRing(t *testing.T) {
	src := blankFrame(100, 100)
	menu := &profile.Menu{
		Items: []profile.Element{
			{Coordinates: profile.Point{X: 50, Y: 50}, Name: "Only"},
		},
	}

	plain := Render(src, menu, -1)
	focused := Render(src, menu, 0)

	if changedPixels(plain, focused) == 0 {
		t.Error("focus ring drew nothing")
	}
}
