package profile

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
)

// Condition kinds.
const (
	CondPixelColor       = "pixel_color"
	CondPixelRegionColor = "pixel_region_color"
	CondPixelRegionImage = "pixel_region_image"
	CondOcrTextMatch     = "ocr_text_match"
	CondOr               = "or"
)

// OCR match modes.
const (
	MatchContains = "contains"
	MatchExact    = "exact"
	MatchRegex    = "regex"
)

// RGB is a color triple in profile order.
type RGB [3]uint8

// Condition is the tagged union of screen predicates. Exactly one kind is
// meaningful per value, selected by Type; the engine treats malformed values
// (unknown type, wrong OR arity, bad regex, undecodable image) as false
// rather than failing, so loading never rejects them.
type Condition struct {
	Type   string
	Negate bool

	// pixel_color
	X int
	Y int

	// pixel_color and pixel_region_color
	Color     RGB
	Tolerance float64

	// region kinds
	X1 int
	Y1 int
	X2 int
	Y2 int

	// pixel_region_color
	Threshold float64

	// pixel_region_image
	ImageData  string // base64 PNG
	Confidence float64

	// ocr_text_match
	ExpectedText  string
	MatchMode     string
	CaseSensitive bool

	// or
	Conditions []Condition

	fp uint64 // lazily computed fingerprint
}

// Region returns the rectangle of a region-based condition.
func (c *Condition) Region() Rect {
	return Rect{X1: c.X1, Y1: c.Y1, X2: c.X2, Y2: c.Y2}
}

// Fingerprint returns a stable content hash of the condition, used as the
// per-tick memoization key. Two conditions with identical content share a
// fingerprint, which is harmless: they evaluate identically within a tick.
func (c *Condition) Fingerprint() uint64 {
	if c.fp != 0 {
		return c.fp
	}
	data, err := json.Marshal(c)
	if err != nil {
		data = []byte(fmt.Sprintf("%#v", c))
	}
	h := fnv.New64a()
	h.Write(data)
	c.fp = h.Sum64()
	if c.fp == 0 {
		c.fp = 1
	}
	return c.fp
}

// Validate reports structural problems. This is a lint surface for the
// profile CLI and editor; the evaluation engine never requires it to pass.
func (c *Condition) Validate() error {
	switch c.Type {
	case CondPixelColor:
		if c.Tolerance < 0 {
			return fmt.Errorf("pixel_color: negative tolerance")
		}
	case CondPixelRegionColor:
		if c.Region().Empty() {
			return fmt.Errorf("pixel_region_color: empty region")
		}
		if c.Threshold < 0 || c.Threshold > 1 {
			return fmt.Errorf("pixel_region_color: threshold %v outside [0,1]", c.Threshold)
		}
	case CondPixelRegionImage:
		if c.Region().Empty() {
			return fmt.Errorf("pixel_region_image: empty region")
		}
		if c.ImageData == "" {
			return fmt.Errorf("pixel_region_image: missing image data")
		}
		if c.Confidence < 0 || c.Confidence > 1 {
			return fmt.Errorf("pixel_region_image: confidence %v outside [0,1]", c.Confidence)
		}
	case CondOcrTextMatch:
		if c.Region().Empty() {
			return fmt.Errorf("ocr_text_match: empty region")
		}
		switch c.MatchMode {
		case MatchContains, MatchExact, MatchRegex, "":
		default:
			return fmt.Errorf("ocr_text_match: unknown match mode %q", c.MatchMode)
		}
		if c.MatchMode == MatchRegex {
			pattern := c.ExpectedText
			if !c.CaseSensitive {
				pattern = "(?i)" + pattern
			}
			if _, err := regexp.Compile(pattern); err != nil {
				return fmt.Errorf("ocr_text_match: invalid pattern: %w", err)
			}
		}
	case CondOr:
		if len(c.Conditions) != 2 {
			return fmt.Errorf("or: needs exactly 2 sub-conditions, has %d", len(c.Conditions))
		}
		for i := range c.Conditions {
			if err := c.Conditions[i].Validate(); err != nil {
				return fmt.Errorf("or[%d]: %w", i, err)
			}
		}
	case "":
		return fmt.Errorf("condition has no type")
	default:
		return fmt.Errorf("unknown condition type %q", c.Type)
	}
	return nil
}

// String returns a short human-readable form for logs.
func (c *Condition) String() string {
	var b strings.Builder
	if c.Negate {
		b.WriteString("not ")
	}
	switch c.Type {
	case CondPixelColor:
		fmt.Fprintf(&b, "pixel(%d,%d)~%v tol=%g", c.X, c.Y, c.Color, c.Tolerance)
	case CondPixelRegionColor:
		fmt.Fprintf(&b, "region(%d,%d,%d,%d)~%v tol=%g thr=%g", c.X1, c.Y1, c.X2, c.Y2, c.Color, c.Tolerance, c.Threshold)
	case CondPixelRegionImage:
		fmt.Fprintf(&b, "image(%d,%d,%d,%d) conf=%g", c.X1, c.Y1, c.X2, c.Y2, c.Confidence)
	case CondOcrTextMatch:
		fmt.Fprintf(&b, "ocr(%d,%d,%d,%d) %s %q", c.X1, c.Y1, c.X2, c.Y2, c.MatchMode, c.ExpectedText)
	case CondOr:
		fmt.Fprintf(&b, "or(%d)", len(c.Conditions))
	default:
		fmt.Fprintf(&b, "unknown(%q)", c.Type)
	}
	return b.String()
}

// Per-kind JSON shapes. The profile document is shared with the editor, so
// each kind writes exactly its own fields and nothing else.

type pixelColorJSON struct {
	Type      string  `json:"type"`
	X         int     `json:"x"`
	Y         int     `json:"y"`
	Color     RGB     `json:"color"`
	Tolerance float64 `json:"tolerance"`
	Negate    bool    `json:"negate,omitempty"`
}

type regionColorJSON struct {
	Type      string  `json:"type"`
	X1        int     `json:"x1"`
	Y1        int     `json:"y1"`
	X2        int     `json:"x2"`
	Y2        int     `json:"y2"`
	Color     RGB     `json:"color"`
	Tolerance float64 `json:"tolerance"`
	Threshold float64 `json:"threshold"`
	Negate    bool    `json:"negate,omitempty"`
}

type regionImageJSON struct {
	Type       string  `json:"type"`
	X1         int     `json:"x1"`
	Y1         int     `json:"y1"`
	X2         int     `json:"x2"`
	Y2         int     `json:"y2"`
	ImageData  string  `json:"image_data"`
	Confidence float64 `json:"confidence"`
	Negate     bool    `json:"negate,omitempty"`
}

type ocrTextJSON struct {
	Type          string `json:"type"`
	X1            int    `json:"x1"`
	Y1            int    `json:"y1"`
	X2            int    `json:"x2"`
	Y2            int    `json:"y2"`
	ExpectedText  string `json:"expected_text"`
	MatchMode     string `json:"match_mode"`
	CaseSensitive bool   `json:"case_sensitive,omitempty"`
	Negate        bool   `json:"negate,omitempty"`
}

type orJSON struct {
	Type       string      `json:"type"`
	Conditions []Condition `json:"conditions"`
	Negate     bool        `json:"negate,omitempty"`
}

func (c Condition) MarshalJSON() ([]byte, error) {
	switch c.Type {
	case CondPixelColor:
		return json.Marshal(pixelColorJSON{c.Type, c.X, c.Y, c.Color, c.Tolerance, c.Negate})
	case CondPixelRegionColor:
		return json.Marshal(regionColorJSON{c.Type, c.X1, c.Y1, c.X2, c.Y2, c.Color, c.Tolerance, c.Threshold, c.Negate})
	case CondPixelRegionImage:
		return json.Marshal(regionImageJSON{c.Type, c.X1, c.Y1, c.X2, c.Y2, c.ImageData, c.Confidence, c.Negate})
	case CondOcrTextMatch:
		mode := c.MatchMode
		if mode == "" {
			mode = MatchContains
		}
		return json.Marshal(ocrTextJSON{c.Type, c.X1, c.Y1, c.X2, c.Y2, c.ExpectedText, mode, c.CaseSensitive, c.Negate})
	case CondOr:
		children := c.Conditions
		if children == nil {
			children = []Condition{}
		}
		return json.Marshal(orJSON{c.Type, children, c.Negate})
	default:
		// Unknown kinds survive a load/save cycle as their tag alone.
		return json.Marshal(struct {
			Type   string `json:"type"`
			Negate bool   `json:"negate,omitempty"`
		}{c.Type, c.Negate})
	}
}

func (c *Condition) UnmarshalJSON(data []byte) error {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}
	*c = Condition{Type: tag.Type}
	switch tag.Type {
	case CondPixelColor:
		var v pixelColorJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		c.X, c.Y, c.Color, c.Tolerance, c.Negate = v.X, v.Y, v.Color, v.Tolerance, v.Negate
	case CondPixelRegionColor:
		var v regionColorJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		c.X1, c.Y1, c.X2, c.Y2 = v.X1, v.Y1, v.X2, v.Y2
		c.Color, c.Tolerance, c.Threshold, c.Negate = v.Color, v.Tolerance, v.Threshold, v.Negate
	case CondPixelRegionImage:
		var v regionImageJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		c.X1, c.Y1, c.X2, c.Y2 = v.X1, v.Y1, v.X2, v.Y2
		c.ImageData, c.Confidence, c.Negate = v.ImageData, v.Confidence, v.Negate
	case CondOcrTextMatch:
		var v ocrTextJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		c.X1, c.Y1, c.X2, c.Y2 = v.X1, v.Y1, v.X2, v.Y2
		c.ExpectedText, c.CaseSensitive, c.Negate = v.ExpectedText, v.CaseSensitive, v.Negate
		c.MatchMode = v.MatchMode
		if c.MatchMode == "" {
			c.MatchMode = MatchContains
		}
	case CondOr:
		var v orJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		c.Conditions, c.Negate = v.Conditions, v.Negate
	default:
		var v struct {
			Negate bool `json:"negate"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		c.Negate = v.Negate
	}
	return nil
}
