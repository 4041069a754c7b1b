package resolve

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menuvox/menuvox/internal/condition"
	"github.com/menuvox/menuvox/internal/profile"
	"github.com/menuvox/menuvox/internal/vision"
)

var red = profile.RGB{255, 0, 0}

// testFrame returns a black 100x100 frame with red painted at the given
// points.
func testFrame(tick int64, lit ...image.Point) *vision.Frame {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for _, pt := range lit {
		img.SetRGBA(pt.X, pt.Y, color.RGBA{R: 255, A: 255})
	}
	return &vision.Frame{Image: img, Taken: time.Unix(0, tick)}
}

// pixelCond matches when the pixel at (x, y) is red.
func pixelCond(x, y int) profile.Condition {
	return profile.Condition{
		Type:      profile.CondPixelColor,
		X:         x,
		Y:         y,
		Color:     red,
		Tolerance: 10,
	}
}

func menuWith(conds ...profile.Condition) *profile.Menu {
	return &profile.Menu{
		Conditions: conds,
		Items:      []profile.Element{{Name: "item", Coordinates: profile.Point{X: 1, Y: 1}}},
	}
}

func newResolver(t *testing.T) *Resolver {
	t.Helper()
	return New(condition.New())
}

func TestMostConditionsWins(t *testing.T) {
	p := profile.Profile{
		"alpha": menuWith(pixelCond(1, 1)),
		"beta":  menuWith(pixelCond(1, 1), pixelCond(2, 2), pixelCond(3, 3)),
	}
	frame := testFrame(1, image.Pt(1, 1), image.Pt(2, 2), image.Pt(3, 3))

	got := newResolver(t).Resolve(p, frame, "")
	assert.Equal(t, "beta", got)
}

func TestStickinessBeatsSpecificity(t *testing.T) {
	p := profile.Profile{
		"alpha": menuWith(pixelCond(1, 1)),
		"beta":  menuWith(pixelCond(1, 1), pixelCond(2, 2), pixelCond(3, 3)),
	}
	frame := testFrame(1, image.Pt(1, 1), image.Pt(2, 2), image.Pt(3, 3))

	// alpha is already active and still matches, so it wins even though
	// beta matches with more conditions.
	got := newResolver(t).Resolve(p, frame, "alpha")
	assert.Equal(t, "alpha", got)
}

func TestPreviousReplacedWhenItStopsMatching(t *testing.T) {
	p := profile.Profile{
		"alpha": menuWith(pixelCond(50, 50)),
		"beta":  menuWith(pixelCond(1, 1)),
	}
	frame := testFrame(1, image.Pt(1, 1)) // alpha's pixel is dark

	got := newResolver(t).Resolve(p, frame, "alpha")
	assert.Equal(t, "beta", got)
}

func TestNoMatchClearsToNone(t *testing.T) {
	p := profile.Profile{
		"alpha": menuWith(pixelCond(50, 50)),
		"beta":  menuWith(pixelCond(60, 60)),
	}
	frame := testFrame(1) // nothing lit

	got := newResolver(t).Resolve(p, frame, "alpha")
	assert.Equal(t, "", got)
}

func TestManualMenuSticksWithoutConditions(t *testing.T) {
	manual := menuWith()
	manual.IsManual = true
	p := profile.Profile{
		"beta":   menuWith(pixelCond(1, 1)),
		"manual": manual,
	}
	frame := testFrame(1, image.Pt(1, 1))

	// A manual menu stays active no matter what else matches.
	got := newResolver(t).Resolve(p, frame, "manual")
	assert.Equal(t, "manual", got)
}

func TestManualMenuNeverAutoDetected(t *testing.T) {
	manual := menuWith(pixelCond(1, 1))
	manual.IsManual = true
	p := profile.Profile{"manual": manual}
	frame := testFrame(1, image.Pt(1, 1))

	require.True(t, condition.New().EvaluateAll(manual.Conditions, frame))
	got := newResolver(t).Resolve(p, frame, "")
	assert.Equal(t, "", got)
}

func TestZeroConditionMenusNeverDetected(t *testing.T) {
	p := profile.Profile{
		"bare": menuWith(),
	}
	frame := testFrame(1, image.Pt(1, 1))

	got := newResolver(t).Resolve(p, frame, "")
	assert.Equal(t, "", got)

	// A bare menu is not sticky either once it is somehow active.
	got = newResolver(t).Resolve(p, frame, "bare")
	assert.Equal(t, "", got)
}

func TestTieBreakIsLexicographic(t *testing.T) {
	p := profile.Profile{
		"zeta":  menuWith(pixelCond(1, 1), pixelCond(2, 2)),
		"alpha": menuWith(pixelCond(1, 1), pixelCond(2, 2)),
	}
	frame := testFrame(1, image.Pt(1, 1), image.Pt(2, 2))

	got := newResolver(t).Resolve(p, frame, "")
	assert.Equal(t, "alpha", got)
}

func TestNilFrameKeepsPrevious(t *testing.T) {
	p := profile.Profile{
		"alpha": menuWith(pixelCond(1, 1)),
	}

	got := newResolver(t).Resolve(p, nil, "alpha")
	assert.Equal(t, "alpha", got)

	got = newResolver(t).Resolve(p, nil, "")
	assert.Equal(t, "", got)
}

func TestUnknownPreviousIgnored(t *testing.T) {
	p := profile.Profile{
		"alpha": menuWith(pixelCond(1, 1)),
	}
	frame := testFrame(1, image.Pt(1, 1))

	got := newResolver(t).Resolve(p, frame, "gone")
	assert.Equal(t, "alpha", got)
}

// countingEval reports true when the first condition probes x == 1 and
// counts how many menus were evaluated.
type countingEval struct {
	calls int
}

func (c *countingEval) EvaluateAll(conds []profile.Condition, _ *vision.Frame) bool {
	c.calls++
	return len(conds) > 0 && conds[0].X == 1
}

func TestMatchingPreviousShortCircuits(t *testing.T) {
	p := profile.Profile{
		"alpha": menuWith(pixelCond(1, 1)),
		"beta":  menuWith(pixelCond(1, 2), pixelCond(1, 3)),
		"gamma": menuWith(pixelCond(1, 4)),
	}
	eval := &countingEval{}
	r := New(eval)

	got := r.Resolve(p, testFrame(1), "alpha")
	assert.Equal(t, "alpha", got)
	assert.Equal(t, 1, eval.calls, "re-check of the active menu should settle detection")
}
