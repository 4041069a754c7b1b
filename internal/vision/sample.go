package vision

import (
	"image"
	"math"
	"sync"
)

// Regions at or below this area are sampled at the four corners and center
// only. Larger regions get a cell-center grid so the sample count grows with
// area instead of scanning every pixel.
const smallRegionArea = 1000

const (
	minGridSide = 3
	maxGridSide = 8
)

var sampleCache sync.Map // image.Rectangle -> []image.Point

// SamplePoints returns the pixel coordinates a region color check samples
// for r. Results are cached per rectangle and shared between callers, so the
// returned slice must not be modified.
func SamplePoints(r image.Rectangle) []image.Point {
	if cached, ok := sampleCache.Load(r); ok {
		return cached.([]image.Point)
	}
	pts := buildSamplePoints(r)
	sampleCache.Store(r, pts)
	return pts
}

func buildSamplePoints(r image.Rectangle) []image.Point {
	w, h := r.Dx(), r.Dy()
	if w <= 0 || h <= 0 {
		return nil
	}
	area := w * h
	if area <= smallRegionArea {
		return []image.Point{
			{X: r.Min.X, Y: r.Min.Y},
			{X: r.Max.X - 1, Y: r.Min.Y},
			{X: r.Min.X, Y: r.Max.Y - 1},
			{X: r.Max.X - 1, Y: r.Max.Y - 1},
			{X: r.Min.X + w/2, Y: r.Min.Y + h/2},
		}
	}

	side := int(math.Sqrt(float64(area) / smallRegionArea))
	if side < minGridSide {
		side = minGridSide
	}
	if side > maxGridSide {
		side = maxGridSide
	}

	// Cell centers keep samples off the region border, where antialiased
	// edges routinely miss the expected color.
	pts := make([]image.Point, 0, side*side)
	for gy := 0; gy < side; gy++ {
		for gx := 0; gx < side; gx++ {
			pts = append(pts, image.Point{
				X: r.Min.X + (2*gx+1)*w/(2*side),
				Y: r.Min.Y + (2*gy+1)*h/(2*side),
			})
		}
	}
	return pts
}
