package condition

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menuvox/menuvox/internal/profile"
	"github.com/menuvox/menuvox/internal/vision"
)

func frameAt(w, h int, tick int64) *vision.Frame {
	return &vision.Frame{
		Image: image.NewRGBA(image.Rect(0, 0, w, h)),
		Taken: time.Unix(0, tick),
	}
}

func paint(f *vision.Frame, x, y int, c color.RGBA) {
	c.A = 255
	f.Image.SetRGBA(x, y, c)
}

type fakeReader struct {
	text  string
	calls atomic.Int32
}

func (f *fakeReader) ExtractText(_ *vision.Frame, _ image.Rectangle) string {
	f.calls.Add(1)
	return f.text
}

func TestPixelColor(t *testing.T) {
	f := frameAt(20, 20, 1)
	paint(f, 5, 5, color.RGBA{R: 100, G: 150, B: 200})
	e := New()

	match := &profile.Condition{Type: profile.CondPixelColor, X: 5, Y: 5, Color: profile.RGB{100, 150, 200}, Tolerance: 1}
	assert.True(t, e.Evaluate(match, f))

	miss := &profile.Condition{Type: profile.CondPixelColor, X: 5, Y: 5, Color: profile.RGB{200, 30, 30}, Tolerance: 5}
	assert.False(t, e.Evaluate(miss, f))

	outside := &profile.Condition{Type: profile.CondPixelColor, X: 99, Y: 5, Color: profile.RGB{0, 0, 0}, Tolerance: 255}
	assert.False(t, e.Evaluate(outside, f))
}

func TestNegationIdempotence(t *testing.T) {
	f := frameAt(300, 300, 1)
	paint(f, 10, 10, color.RGBA{R: 50, G: 60, B: 70})
	reader := &fakeReader{text: "hello"}
	e := New(WithTextReader(reader))

	conds := []profile.Condition{
		{Type: profile.CondPixelColor, X: 10, Y: 10, Color: profile.RGB{50, 60, 70}, Tolerance: 1},
		{Type: profile.CondPixelColor, X: 10, Y: 10, Color: profile.RGB{255, 0, 0}, Tolerance: 1},
		{Type: profile.CondPixelRegionColor, X1: 0, Y1: 0, X2: 10, Y2: 10, Color: profile.RGB{0, 0, 0}, Tolerance: 5, Threshold: 0.5},
		{Type: profile.CondOcrTextMatch, X1: 0, Y1: 0, X2: 50, Y2: 20, ExpectedText: "hello", MatchMode: profile.MatchContains},
		{Type: profile.CondOcrTextMatch, X1: 0, Y1: 0, X2: 50, Y2: 20, ExpectedText: "absent", MatchMode: profile.MatchContains},
		{Type: "bogus_kind"},
	}
	for i := range conds {
		plain := conds[i]
		negated := conds[i]
		negated.Negate = true
		got := e.Evaluate(&plain, f)
		assert.Equal(t, !got, e.Evaluate(&negated, f), "condition %d", i)
	}
}

func TestOrArity(t *testing.T) {
	f := frameAt(20, 20, 1)
	paint(f, 1, 1, color.RGBA{R: 9, G: 9, B: 9})
	e := New()

	child := profile.Condition{Type: profile.CondPixelColor, X: 1, Y: 1, Color: profile.RGB{9, 9, 9}, Tolerance: 1}
	require.True(t, e.Evaluate(&child, f), "sanity: child must hold on its own")

	one := &profile.Condition{Type: profile.CondOr, Conditions: []profile.Condition{child}}
	assert.False(t, e.Evaluate(one, f))

	three := &profile.Condition{Type: profile.CondOr, Conditions: []profile.Condition{child, child, child}}
	assert.False(t, e.Evaluate(three, f))

	miss := profile.Condition{Type: profile.CondPixelColor, X: 1, Y: 1, Color: profile.RGB{200, 0, 0}, Tolerance: 1}
	two := &profile.Condition{Type: profile.CondOr, Conditions: []profile.Condition{miss, child}}
	assert.True(t, e.Evaluate(two, f))

	bothMiss := &profile.Condition{Type: profile.CondOr, Conditions: []profile.Condition{miss, miss}}
	assert.False(t, e.Evaluate(bothMiss, f))
}

func TestOrChildNegate(t *testing.T) {
	f := frameAt(20, 20, 1)
	e := New()

	miss := profile.Condition{Type: profile.CondPixelColor, X: 1, Y: 1, Color: profile.RGB{200, 0, 0}, Tolerance: 1}
	negatedMiss := miss
	negatedMiss.Negate = true

	or := &profile.Condition{Type: profile.CondOr, Conditions: []profile.Condition{miss, negatedMiss}}
	assert.True(t, e.Evaluate(or, f), "negated child should flip before combining")
}

func TestRegionColorThreshold(t *testing.T) {
	// 200x200 region samples a 6x6 grid; painting exactly half the sample
	// points must satisfy threshold 0.5 and one fewer must not.
	target := color.RGBA{R: 10, G: 200, B: 30}
	pts := vision.SamplePoints(image.Rect(0, 0, 200, 200))
	require.Len(t, pts, 36)

	cond := &profile.Condition{
		Type: profile.CondPixelRegionColor,
		X1:   0, Y1: 0, X2: 200, Y2: 200,
		Color:     profile.RGB{10, 200, 30},
		Tolerance: 1,
		Threshold: 0.5,
	}

	half := frameAt(300, 300, 1)
	for _, p := range pts[:18] {
		paint(half, p.X, p.Y, target)
	}
	e := New()
	assert.True(t, e.Evaluate(cond, half))

	oneShort := frameAt(300, 300, 2)
	for _, p := range pts[:17] {
		paint(oneShort, p.X, p.Y, target)
	}
	assert.False(t, e.Evaluate(cond, oneShort))
}

func TestRegionColorBounds(t *testing.T) {
	e := New()
	f := frameAt(100, 100, 1)

	leavesFrame := &profile.Condition{
		Type: profile.CondPixelRegionColor,
		X1:   50, Y1: 50, X2: 150, Y2: 150,
		Color: profile.RGB{0, 0, 0}, Tolerance: 255, Threshold: 0,
	}
	assert.False(t, e.Evaluate(leavesFrame, f))

	degenerate := &profile.Condition{
		Type: profile.CondPixelRegionColor,
		X1:   50, Y1: 50, X2: 50, Y2: 150,
		Color: profile.RGB{0, 0, 0}, Tolerance: 255, Threshold: 0,
	}
	assert.False(t, e.Evaluate(degenerate, f))
}

func encodePNG(t *testing.T, img image.Image) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestRegionImage(t *testing.T) {
	f := frameAt(100, 100, 1)
	for y := 20; y < 40; y++ {
		for x := 20; x < 40; x++ {
			paint(f, x, y, color.RGBA{R: uint8(x * 6), G: uint8(y * 6), B: 128})
		}
	}
	ref, ok := f.Crop(image.Rect(20, 20, 40, 40))
	require.True(t, ok)

	e := New()
	cond := &profile.Condition{
		Type: profile.CondPixelRegionImage,
		X1:   20, Y1: 20, X2: 40, Y2: 40,
		ImageData:  encodePNG(t, ref),
		Confidence: 0.9,
	}
	assert.True(t, e.Evaluate(cond, f))

	garbage := &profile.Condition{
		Type: profile.CondPixelRegionImage,
		X1:   20, Y1: 20, X2: 40, Y2: 40,
		ImageData:  "@@not-base64@@",
		Confidence: 0.5,
	}
	assert.False(t, e.Evaluate(garbage, f))
}

func TestOcrContainsCaseInsensitive(t *testing.T) {
	reader := &fakeReader{text: "play now"}
	e := New(WithTextReader(reader))
	f := frameAt(200, 200, 1)

	cond := &profile.Condition{
		Type: profile.CondOcrTextMatch,
		X1:   0, Y1: 0, X2: 100, Y2: 50,
		ExpectedText: "Play",
		MatchMode:    profile.MatchContains,
	}
	assert.True(t, e.Evaluate(cond, f))
}

func TestOcrMatchModes(t *testing.T) {
	f := frameAt(200, 200, 1)
	region := profile.Condition{Type: profile.CondOcrTextMatch, X1: 0, Y1: 0, X2: 100, Y2: 50}

	tests := []struct {
		name          string
		text          string
		expected      string
		mode          string
		caseSensitive bool
		want          bool
	}{
		{"exact match", "Continue", "Continue", profile.MatchExact, true, true},
		{"exact case mismatch", "Continue", "continue", profile.MatchExact, true, false},
		{"exact folds case", "Continue", "continue", profile.MatchExact, false, true},
		{"contains case sensitive miss", "play now", "Play", profile.MatchContains, true, false},
		{"regex", "Score: 1540", `Score: \d+`, profile.MatchRegex, true, true},
		{"regex case insensitive", "SCORE: 2", `score: \d`, profile.MatchRegex, false, true},
		{"regex malformed", "anything", `([`, profile.MatchRegex, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := region
			cond.ExpectedText = tt.expected
			cond.MatchMode = tt.mode
			cond.CaseSensitive = tt.caseSensitive
			e := New(WithTextReader(&fakeReader{text: tt.text}))
			assert.Equal(t, tt.want, e.Evaluate(&cond, f))
		})
	}
}

func TestOcrWithoutReader(t *testing.T) {
	e := New()
	f := frameAt(200, 200, 1)
	cond := &profile.Condition{
		Type: profile.CondOcrTextMatch,
		X1:   0, Y1: 0, X2: 100, Y2: 50,
		ExpectedText: "anything",
		MatchMode:    profile.MatchContains,
	}
	assert.False(t, e.Evaluate(cond, f))
}

func TestMemoizationWithinTick(t *testing.T) {
	reader := &fakeReader{text: "menu"}
	e := New(WithTextReader(reader))
	cond := &profile.Condition{
		Type: profile.CondOcrTextMatch,
		X1:   0, Y1: 0, X2: 50, Y2: 20,
		ExpectedText: "menu",
		MatchMode:    profile.MatchContains,
	}

	f1 := frameAt(100, 100, 100)
	assert.True(t, e.Evaluate(cond, f1))
	assert.True(t, e.Evaluate(cond, f1))
	assert.Equal(t, int32(1), reader.calls.Load(), "second evaluation must hit the memo")

	f2 := frameAt(100, 100, 200)
	assert.True(t, e.Evaluate(cond, f2))
	assert.Equal(t, int32(2), reader.calls.Load(), "new tick must re-evaluate")
}

func TestMemoPrunesStaleTicks(t *testing.T) {
	e := New()
	cond := &profile.Condition{Type: profile.CondPixelColor, X: 1, Y: 1, Color: profile.RGB{1, 2, 3}, Tolerance: 5}

	e.Evaluate(cond, frameAt(10, 10, 100))
	e.Evaluate(cond, frameAt(10, 10, 200))

	e.mu.Lock()
	defer e.mu.Unlock()
	for k := range e.memo {
		assert.Equal(t, int64(200), k.tick, "stale tick entries should be pruned")
	}
	assert.Len(t, e.memo, 1)
}

func TestEvaluateAll(t *testing.T) {
	f := frameAt(20, 20, 1)
	paint(f, 2, 2, color.RGBA{R: 40, G: 40, B: 40})
	e := New()

	hold := profile.Condition{Type: profile.CondPixelColor, X: 2, Y: 2, Color: profile.RGB{40, 40, 40}, Tolerance: 1}
	miss := profile.Condition{Type: profile.CondPixelColor, X: 2, Y: 2, Color: profile.RGB{250, 0, 0}, Tolerance: 1}

	assert.True(t, e.EvaluateAll(nil, f))
	assert.True(t, e.EvaluateAll([]profile.Condition{hold}, f))
	assert.False(t, e.EvaluateAll([]profile.Condition{hold, miss}, f))
}

func TestNilInputs(t *testing.T) {
	e := New()
	assert.False(t, e.Evaluate(nil, frameAt(10, 10, 1)))
	cond := &profile.Condition{Type: profile.CondPixelColor}
	assert.False(t, e.Evaluate(cond, nil))
}
