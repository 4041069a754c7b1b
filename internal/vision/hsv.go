package vision

import "math"

// HSV is a color in the OpenCV 8-bit convention: H in [0, 180), S and V in
// [0, 255]. Profile tolerances are authored against these ranges.
type HSV struct {
	H float64
	S float64
	V float64
}

// RGBToHSV converts an 8-bit RGB triple to HSV.
func RGBToHSV(r, g, b uint8) HSV {
	rf := float64(r) / 255
	gf := float64(g) / 255
	bf := float64(b) / 255

	max := math.Max(rf, math.Max(gf, bf))
	min := math.Min(rf, math.Min(gf, bf))
	d := max - min

	var h float64
	switch {
	case d == 0:
		h = 0
	case max == rf:
		h = 60 * math.Mod((gf-bf)/d, 6)
	case max == gf:
		h = 60 * ((bf-rf)/d + 2)
	default:
		h = 60 * ((rf-gf)/d + 4)
	}
	if h < 0 {
		h += 360
	}

	var s float64
	if max > 0 {
		s = d / max
	}
	return HSV{H: h / 2, S: s * 255, V: max * 255}
}

// Distance is the weighted color distance profile tolerances compare
// against. Hue is circular over [0, 180), so hue 179 and hue 1 are 2 apart,
// and hue differences dominate saturation and value differences.
func Distance(a, b HSV) float64 {
	dh := math.Abs(a.H - b.H)
	if wrap := 180 - dh; wrap < dh {
		dh = wrap
	}
	ds := math.Abs(a.S - b.S)
	dv := math.Abs(a.V - b.V)
	return 2*dh + 0.5*ds + 0.25*dv
}

// RGBDistance converts both triples and returns their Distance.
func RGBDistance(r1, g1, b1, r2, g2, b2 uint8) float64 {
	return Distance(RGBToHSV(r1, g1, b1), RGBToHSV(r2, g2, b2))
}
