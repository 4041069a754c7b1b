// Package overlay draws a profile's detection geometry onto a captured
// frame: condition regions and sample points, element markers, and OCR
// boxes. Profile authors use the result to see what the engine sees.
package overlay

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"

	"github.com/menuvox/menuvox/internal/profile"
)

// Annotation colors
var (
	conditionFill   = color.NRGBA{R: 51, G: 153, B: 255, A: 38}  // semi-transparent blue
	conditionBorder = color.NRGBA{R: 51, G: 153, B: 255, A: 200} // blue border
	ocrBorder       = color.NRGBA{R: 255, G: 170, B: 0, A: 200}  // amber
	elementFill     = color.NRGBA{R: 40, G: 200, B: 90, A: 220}  // green marker
	focusRing       = color.NRGBA{R: 235, G: 64, B: 52, A: 255}  // red ring
	pillBG          = color.NRGBA{R: 30, G: 30, B: 30, A: 220}   // dark background
	pillText        = color.White
)

const (
	borderWidth  = 2.0
	markerRadius = 6.0
	crossArm     = 8.0
	pillPadX     = 4.0
	pillPadY     = 2.0
	pillRadius   = 4.0
)

// Render draws the menu's conditions and elements over img. focused is the
// item index to highlight, or -1. The original image is not modified.
func Render(img image.Image, m *profile.Menu, focused int) image.Image {
	bounds := img.Bounds()
	dc := gg.NewContext(bounds.Dx(), bounds.Dy())
	dc.DrawImage(img, 0, 0)

	if m == nil {
		return dc.Image()
	}

	for i := range m.Conditions {
		drawCondition(dc, &m.Conditions[i])
	}
	for i := range m.Items {
		drawElement(dc, &m.Items[i], i == focused)
	}

	return dc.Image()
}

func drawCondition(dc *gg.Context, c *profile.Condition) {
	switch c.Type {
	case profile.CondPixelColor:
		drawCrosshair(dc, float64(c.X), float64(c.Y))
	case profile.CondPixelRegionColor, profile.CondPixelRegionImage, profile.CondOcrTextMatch:
		drawRegion(dc, c.Region(), kindLabel(c), conditionFill, conditionBorder)
	case profile.CondOr:
		for i := range c.Conditions {
			drawCondition(dc, &c.Conditions[i])
		}
	}
}

func kindLabel(c *profile.Condition) string {
	label := ""
	switch c.Type {
	case profile.CondPixelRegionColor:
		label = "region"
	case profile.CondPixelRegionImage:
		label = "image"
	case profile.CondOcrTextMatch:
		label = "ocr"
	}
	if c.Negate {
		label = "not " + label
	}
	return label
}

func drawElement(dc *gg.Context, el *profile.Element, focused bool) {
	x := float64(el.Coordinates.X)
	y := float64(el.Coordinates.Y)

	dc.SetColor(elementFill)
	dc.DrawCircle(x, y, markerRadius)
	dc.Fill()

	if focused {
		dc.SetColor(focusRing)
		dc.SetLineWidth(borderWidth + 1)
		dc.DrawCircle(x, y, markerRadius+4)
		dc.Stroke()
	}

	for i := range el.OcrRegions {
		drawRegion(dc, el.OcrRegions[i].Rect, el.OcrRegions[i].Tag, color.NRGBA{}, ocrBorder)
	}
	for i := range el.Conditions {
		drawCondition(dc, &el.Conditions[i])
	}

	drawLabelPill(dc, el.Name, x+markerRadius+2, y-markerRadius)
}

func drawCrosshair(dc *gg.Context, x, y float64) {
	dc.SetColor(conditionBorder)
	dc.SetLineWidth(borderWidth)
	dc.DrawLine(x-crossArm, y, x+crossArm, y)
	dc.DrawLine(x, y-crossArm, x, y+crossArm)
	dc.Stroke()
	dc.DrawCircle(x, y, crossArm/2)
	dc.Stroke()
}

func drawRegion(dc *gg.Context, r profile.Rect, label string, fill, border color.NRGBA) {
	imgW := float64(dc.Width())
	imgH := float64(dc.Height())

	x := float64(r.X1)
	y := float64(r.Y1)
	w := float64(r.X2 - r.X1)
	h := float64(r.Y2 - r.Y1)

	// Clamp to image bounds
	if x < 0 {
		w += x
		x = 0
	}
	if y < 0 {
		h += y
		y = 0
	}
	if x+w > imgW {
		w = imgW - x
	}
	if y+h > imgH {
		h = imgH - y
	}
	if w <= 0 || h <= 0 {
		return
	}

	if fill.A > 0 {
		dc.SetColor(fill)
		dc.DrawRectangle(x, y, w, h)
		dc.Fill()
	}

	dc.SetColor(border)
	dc.SetLineWidth(borderWidth)
	dc.DrawRectangle(x, y, w, h)
	dc.Stroke()

	if label != "" {
		drawLabelPill(dc, label, x, y-2)
	}
}

func drawLabelPill(dc *gg.Context, label string, x, y float64) {
	if label == "" {
		return
	}
	imgW := float64(dc.Width())
	imgH := float64(dc.Height())

	// Default font, no external font files needed.
	textW, textH := dc.MeasureString(label)
	pillW := textW + pillPadX*2
	pillH := textH + pillPadY*2

	// Place above the anchor, falling back inside the image.
	px := x
	py := y - pillH
	if px < 0 {
		px = 0
	}
	if py < 0 {
		py = y + 2
	}
	if px+pillW > imgW {
		px = imgW - pillW
	}
	if py+pillH > imgH {
		py = imgH - pillH
	}

	dc.SetColor(pillBG)
	dc.DrawRoundedRectangle(px, py, pillW, pillH, pillRadius)
	dc.Fill()

	dc.SetColor(pillText)
	dc.DrawString(label, px+pillPadX, py+pillPadY+textH*0.85)
}
