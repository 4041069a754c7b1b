// Package condition evaluates profile conditions against captured frames.
// Evaluation is re-entrant (or-conditions recurse) and never lets a fault
// escape: malformed data, out-of-bounds coordinates and collaborator
// failures all evaluate to false.
package condition

import (
	"image"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/menuvox/menuvox/internal/profile"
	"github.com/menuvox/menuvox/internal/vision"
)

// TextReader recognizes text inside a frame region. Implemented by the OCR
// backend; nil is allowed and makes every ocr_text_match condition false.
type TextReader interface {
	ExtractText(frame *vision.Frame, region image.Rectangle) string
}

// Engine evaluates conditions with per-tick memoization. Safe for use from
// multiple goroutines.
type Engine struct {
	ocr    TextReader
	logger *slog.Logger

	mu   sync.Mutex
	memo map[memoKey]bool
	tick int64
	refs sync.Map // condition fingerprint -> decoded reference image
}

// memoKey identifies one condition evaluated against one detection tick.
type memoKey struct {
	fp   uint64
	tick int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithTextReader wires the OCR collaborator.
func WithTextReader(r TextReader) Option {
	return func(e *Engine) { e.ocr = r }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New returns an Engine ready for evaluation.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger: slog.Default().With("component", "condition"),
		memo:   make(map[memoKey]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate reports whether c holds on frame. The result honors the
// condition's negate flag and is memoized for the frame's tick, so repeated
// checks of the same condition within one tick cost one computation.
func (e *Engine) Evaluate(c *profile.Condition, frame *vision.Frame) bool {
	if c == nil || frame == nil {
		return false
	}

	key := memoKey{fp: c.Fingerprint(), tick: frame.TickID()}
	e.mu.Lock()
	if v, ok := e.memo[key]; ok {
		e.mu.Unlock()
		return v
	}
	e.mu.Unlock()

	raw := e.evaluateRaw(c, frame)
	result := raw != c.Negate

	e.mu.Lock()
	if key.tick > e.tick {
		// New tick: drop results from earlier frames.
		e.tick = key.tick
		for k := range e.memo {
			if k.tick < key.tick {
				delete(e.memo, k)
			}
		}
	}
	e.memo[key] = result
	e.mu.Unlock()
	return result
}

// EvaluateAll reports whether every condition holds. An empty list holds,
// which is how unconditioned elements stay always active.
func (e *Engine) EvaluateAll(conds []profile.Condition, frame *vision.Frame) bool {
	for i := range conds {
		if !e.Evaluate(&conds[i], frame) {
			return false
		}
	}
	return true
}

func (e *Engine) evaluateRaw(c *profile.Condition, frame *vision.Frame) bool {
	switch c.Type {
	case profile.CondPixelColor:
		return e.evalPixelColor(c, frame)
	case profile.CondPixelRegionColor:
		return e.evalRegionColor(c, frame)
	case profile.CondPixelRegionImage:
		return e.evalRegionImage(c, frame)
	case profile.CondOcrTextMatch:
		return e.evalOcrText(c, frame)
	case profile.CondOr:
		return e.evalOr(c, frame)
	default:
		e.logger.Warn("unknown condition type", "type", c.Type)
		return false
	}
}

func (e *Engine) evalPixelColor(c *profile.Condition, frame *vision.Frame) bool {
	r, g, b, ok := frame.PixelAt(c.X, c.Y)
	if !ok {
		return false
	}
	d := vision.RGBDistance(r, g, b, c.Color[0], c.Color[1], c.Color[2])
	return d <= c.Tolerance
}

func (e *Engine) evalRegionColor(c *profile.Condition, frame *vision.Frame) bool {
	rect, ok := e.regionInFrame(c, frame)
	if !ok {
		return false
	}
	pts := vision.SamplePoints(rect)
	if len(pts) == 0 {
		return false
	}
	want := vision.RGBToHSV(c.Color[0], c.Color[1], c.Color[2])
	matches := 0
	for _, p := range pts {
		r, g, b, inBounds := frame.PixelAt(p.X, p.Y)
		if !inBounds {
			continue
		}
		if vision.Distance(vision.RGBToHSV(r, g, b), want) <= c.Tolerance {
			matches++
		}
	}
	return float64(matches)/float64(len(pts)) >= c.Threshold
}

func (e *Engine) evalRegionImage(c *profile.Condition, frame *vision.Frame) bool {
	rect, ok := e.regionInFrame(c, frame)
	if !ok {
		return false
	}
	ref := e.referenceImage(c)
	if ref == nil {
		return false
	}
	live, ok := frame.Crop(rect)
	if !ok {
		return false
	}
	return vision.Similarity(ref, live) >= c.Confidence
}

// referenceImage returns the decoded embedded image for c, decoding at most
// once per condition content.
func (e *Engine) referenceImage(c *profile.Condition) image.Image {
	fp := c.Fingerprint()
	if cached, ok := e.refs.Load(fp); ok {
		img, _ := cached.(image.Image)
		return img
	}
	img, err := vision.DecodeBase64PNG(c.ImageData)
	if err != nil {
		e.logger.Debug("reference image decode failed", "error", err)
		img = nil
	}
	e.refs.Store(fp, img)
	return img
}

func (e *Engine) evalOcrText(c *profile.Condition, frame *vision.Frame) bool {
	rect, ok := e.regionInFrame(c, frame)
	if !ok {
		return false
	}
	if e.ocr == nil {
		return false
	}
	text := e.ocr.ExtractText(frame, rect)

	switch c.MatchMode {
	case profile.MatchExact:
		if c.CaseSensitive {
			return text == c.ExpectedText
		}
		return strings.EqualFold(text, c.ExpectedText)
	case profile.MatchRegex:
		pattern := c.ExpectedText
		if !c.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			e.logger.Warn("invalid ocr_text_match regex", "pattern", c.ExpectedText, "error", err)
			return false
		}
		return re.MatchString(text)
	default:
		if c.CaseSensitive {
			return strings.Contains(text, c.ExpectedText)
		}
		return strings.Contains(strings.ToLower(text), strings.ToLower(c.ExpectedText))
	}
}

func (e *Engine) evalOr(c *profile.Condition, frame *vision.Frame) bool {
	if len(c.Conditions) != 2 {
		e.logger.Warn("or condition requires exactly two children", "children", len(c.Conditions))
		return false
	}
	// Both children are evaluated so each lands in the tick memo.
	a := e.Evaluate(&c.Conditions[0], frame)
	b := e.Evaluate(&c.Conditions[1], frame)
	return a || b
}

// regionInFrame validates a region condition's rectangle: degenerate
// rectangles and rectangles that leave the frame fail the condition.
func (e *Engine) regionInFrame(c *profile.Condition, frame *vision.Frame) (image.Rectangle, bool) {
	r := c.Region()
	if r.Empty() {
		return image.Rectangle{}, false
	}
	rect := r.ImageRect()
	if !rect.In(frame.Bounds()) {
		return image.Rectangle{}, false
	}
	return rect, true
}
