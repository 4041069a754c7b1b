package capture

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// displayBackend captures through the platform display API. All active
// displays are unioned into one frame so profile coordinates stay valid on
// multi-monitor layouts.
type displayBackend struct{}

func newDisplayBackend() Backend { return displayBackend{} }

func (displayBackend) Name() string { return "display" }

func (displayBackend) Capture() (*image.RGBA, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, fmt.Errorf("no active displays")
	}
	bounds := screenshot.GetDisplayBounds(0)
	for i := 1; i < n; i++ {
		bounds = bounds.Union(screenshot.GetDisplayBounds(i))
	}
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, fmt.Errorf("capture rect %v: %w", bounds, err)
	}
	return img, nil
}

// primaryDisplaySize reports the primary display dimensions, for sizing
// blank substitute frames.
func primaryDisplaySize() (w, h int, ok bool) {
	if screenshot.NumActiveDisplays() == 0 {
		return 0, 0, false
	}
	b := screenshot.GetDisplayBounds(0)
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return 0, 0, false
	}
	return b.Dx(), b.Dy(), true
}
