package profile

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleProfile() Profile {
	return Profile{
		"main": {
			Conditions: []Condition{
				{Type: CondPixelColor, X: 10, Y: 20, Color: RGB{255, 0, 0}, Tolerance: 30},
				{Type: CondOcrTextMatch, X1: 0, Y1: 0, X2: 100, Y2: 40, ExpectedText: "Main Menu", MatchMode: MatchContains},
			},
			Items: []Element{
				{
					Coordinates:  Point{X: 100, Y: 200},
					Name:         "Play",
					Type:         "button",
					Group:        DefaultGroup,
					DisplayIndex: 0,
					OcrRegions: []OcrRegion{
						{Tag: "tooltip", Rect: Rect{X1: 10, Y1: 10, X2: 60, Y2: 30}},
					},
				},
				{
					Coordinates:        Point{X: 100, Y: 260},
					Name:               "Options",
					Type:               "button",
					SubmenuID:          "options",
					Group:              DefaultGroup,
					DisplayIndex:       1,
					CustomAnnouncement: "{name}, opens settings",
					OcrDelayMs:         150,
					Conditions: []Condition{
						{Type: CondPixelColor, X: 5, Y: 5, Color: RGB{0, 255, 0}, Tolerance: 10, Negate: true},
					},
				},
			},
			ResetIndex:        true,
			GroupOrderIndices: map[string]int{DefaultGroup: 0},
		},
		"options": {
			Conditions: []Condition{
				{Type: CondOr, Conditions: []Condition{
					{Type: CondPixelColor, X: 1, Y: 1, Color: RGB{1, 2, 3}, Tolerance: 5},
					{Type: CondPixelColor, X: 2, Y: 2, Color: RGB{4, 5, 6}, Tolerance: 5, Negate: true},
				}},
			},
			Items: []Element{
				{Coordinates: Point{X: 50, Y: 50}, Name: "Back", Type: "button", Group: "controls"},
			},
			ResetIndex: false,
			ResetGroup: "controls",
		},
	}
}

func TestProfileRoundTrip(t *testing.T) {
	orig := sampleProfile()

	data, err := json.Marshal(orig)
	require.NoError(t, err)

	got, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, got, 2)

	main := got["main"]
	require.NotNil(t, main)
	assert.True(t, main.ResetIndex)
	require.Len(t, main.Conditions, 2)
	assert.Equal(t, CondPixelColor, main.Conditions[0].Type)
	assert.Equal(t, RGB{255, 0, 0}, main.Conditions[0].Color)
	assert.Equal(t, 30.0, main.Conditions[0].Tolerance)
	assert.Equal(t, "Main Menu", main.Conditions[1].ExpectedText)

	require.Len(t, main.Items, 2)
	play := main.Items[0]
	assert.Equal(t, Point{X: 100, Y: 200}, play.Coordinates)
	assert.Equal(t, "Play", play.Name)
	assert.Equal(t, "button", play.Type)
	require.Len(t, play.OcrRegions, 1)
	assert.Equal(t, "tooltip", play.OcrRegions[0].Tag)
	assert.Equal(t, Rect{X1: 10, Y1: 10, X2: 60, Y2: 30}, play.OcrRegions[0].Rect)

	options := main.Items[1]
	assert.Equal(t, "options", options.SubmenuID)
	assert.Equal(t, "{name}, opens settings", options.CustomAnnouncement)
	assert.Equal(t, 150, options.OcrDelayMs)
	assert.Equal(t, 1, options.DisplayIndex)
	require.Len(t, options.Conditions, 1)
	assert.True(t, options.Conditions[0].Negate)

	opts := got["options"]
	require.NotNil(t, opts)
	assert.False(t, opts.ResetIndex)
	assert.Equal(t, "controls", opts.ResetGroup)
	require.Len(t, opts.Conditions, 1)
	require.Len(t, opts.Conditions[0].Conditions, 2)
	assert.True(t, opts.Conditions[0].Conditions[1].Negate)
}

func TestElementEncodesElevenSlots(t *testing.T) {
	el := Element{Coordinates: Point{X: 1, Y: 2}, Name: "x"}
	data, err := json.Marshal(el)
	require.NoError(t, err)

	var slots []json.RawMessage
	require.NoError(t, json.Unmarshal(data, &slots))
	assert.Len(t, slots, 11)
}

func TestElementDecodeShortArray(t *testing.T) {
	// Legacy profiles carry fewer slots; trailing fields default.
	raw := `[[5, 6], "Start", "button"]`
	var el Element
	require.NoError(t, json.Unmarshal([]byte(raw), &el))

	assert.Equal(t, Point{X: 5, Y: 6}, el.Coordinates)
	assert.Equal(t, "Start", el.Name)
	assert.Equal(t, "button", el.Type)
	assert.Equal(t, DefaultGroup, el.Group)
	assert.False(t, el.SpeaksOnSelect)
	assert.Empty(t, el.SubmenuID)
	assert.Zero(t, el.DisplayIndex)
	assert.Zero(t, el.OcrDelayMs)
	assert.False(t, el.HasConditions())
	assert.False(t, el.HasOcrRegions())
}

func TestElementDecodeNullSlots(t *testing.T) {
	raw := `[[0, 0], "Item", "button", false, null, null, null, null, 3, null, 0]`
	var el Element
	require.NoError(t, json.Unmarshal([]byte(raw), &el))

	assert.Empty(t, el.SubmenuID)
	assert.Equal(t, DefaultGroup, el.Group)
	assert.Nil(t, el.OcrRegions)
	assert.Empty(t, el.CustomAnnouncement)
	assert.Equal(t, 3, el.DisplayIndex)
	assert.Nil(t, el.Conditions)
}

func TestElementDecodeRejectsBadShapes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"object", `{"name":"x"}`},
		{"one slot", `[[1,2]]`},
		{"too many slots", `[[1,2],"a","b",false,null,"g",[],null,0,[],0,"extra"]`},
		{"bad coordinates", `["nope","a"]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var el Element
			assert.Error(t, json.Unmarshal([]byte(tc.raw), &el))
		})
	}
}

func TestMenuResetIndexDefaultsTrue(t *testing.T) {
	raw := `{"conditions": [], "items": []}`
	var m Menu
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	assert.True(t, m.ResetIndex)

	raw = `{"conditions": [], "items": [], "reset_index": false}`
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	assert.False(t, m.ResetIndex)
}

func TestConditionCodecPerKind(t *testing.T) {
	cases := []struct {
		name string
		cond Condition
	}{
		{"pixel", Condition{Type: CondPixelColor, X: 3, Y: 4, Color: RGB{9, 8, 7}, Tolerance: 12.5, Negate: true}},
		{"region color", Condition{Type: CondPixelRegionColor, X1: 1, Y1: 2, X2: 30, Y2: 40, Color: RGB{0, 0, 255}, Tolerance: 20, Threshold: 0.75}},
		{"region image", Condition{Type: CondPixelRegionImage, X1: 5, Y1: 5, X2: 15, Y2: 15, ImageData: "aGVsbG8=", Confidence: 0.9}},
		{"ocr", Condition{Type: CondOcrTextMatch, X1: 0, Y1: 0, X2: 10, Y2: 10, ExpectedText: "Play", MatchMode: MatchRegex, CaseSensitive: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(tc.cond)
			require.NoError(t, err)
			var got Condition
			require.NoError(t, json.Unmarshal(data, &got))
			got.fp = 0
			assert.Equal(t, tc.cond, got)
		})
	}
}

func TestConditionMatchModeDefaultsContains(t *testing.T) {
	raw := `{"type":"ocr_text_match","x1":0,"y1":0,"x2":5,"y2":5,"expected_text":"hi"}`
	var c Condition
	require.NoError(t, json.Unmarshal([]byte(raw), &c))
	assert.Equal(t, MatchContains, c.MatchMode)
}

func TestConditionFingerprintStable(t *testing.T) {
	a := Condition{Type: CondPixelColor, X: 1, Y: 2, Color: RGB{3, 4, 5}, Tolerance: 6}
	b := Condition{Type: CondPixelColor, X: 1, Y: 2, Color: RGB{3, 4, 5}, Tolerance: 6}
	c := Condition{Type: CondPixelColor, X: 1, Y: 2, Color: RGB{3, 4, 5}, Tolerance: 7}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.NotZero(t, a.Fingerprint())
}

func TestConditionValidate(t *testing.T) {
	ok := Condition{Type: CondOr, Conditions: []Condition{
		{Type: CondPixelColor},
		{Type: CondPixelColor},
	}}
	assert.NoError(t, ok.Validate())

	badArity := Condition{Type: CondOr, Conditions: []Condition{{Type: CondPixelColor}}}
	assert.Error(t, badArity.Validate())

	badRegex := Condition{Type: CondOcrTextMatch, X2: 5, Y2: 5, ExpectedText: "(", MatchMode: MatchRegex}
	assert.Error(t, badRegex.Validate())

	unknown := Condition{Type: "mystery"}
	assert.Error(t, unknown.Validate())
}

func TestGroupsAndOrdering(t *testing.T) {
	m := &Menu{
		Items: []Element{
			{Name: "a", Group: "tabs", DisplayIndex: 2},
			{Name: "b", Group: DefaultGroup, DisplayIndex: 0},
			{Name: "c", Group: "tabs", DisplayIndex: 0},
			{Name: "d", Group: "sidebar", DisplayIndex: 1},
			{Name: "e", Group: "tabs", DisplayIndex: 0},
		},
		GroupOrderIndices: map[string]int{"sidebar": 1, "tabs": 0},
	}

	assert.Equal(t, []string{"tabs", DefaultGroup, "sidebar"}, m.Groups())
	// Ordered groups first by index, unordered ones after, alphabetically.
	assert.Equal(t, []string{"tabs", "sidebar", DefaultGroup}, m.SortedGroups())
	// DisplayIndex ascending; ties keep declaration order.
	assert.Equal(t, []int{2, 4, 0}, m.GroupItemIndices("tabs"))
}

func TestLoadSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.json")

	orig := sampleProfile()
	require.NoError(t, orig.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, got.Validate())

	reEncoded, err := json.Marshal(got)
	require.NoError(t, err)
	origEncoded, err := json.Marshal(orig)
	require.NoError(t, err)
	assert.JSONEq(t, string(origEncoded), string(reEncoded))
}

func TestParseRejectsEmptyAndInvalid(t *testing.T) {
	_, err := Parse([]byte(`{}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`not json`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"m": null}`))
	assert.Error(t, err)
}

func TestDefaultProfileIsManualAndNavigable(t *testing.T) {
	p := Default()
	require.NoError(t, p.Validate())

	m := p.Menu("default")
	require.NotNil(t, m)
	assert.True(t, m.IsManual)
	assert.Empty(t, m.Conditions)
	assert.NotEmpty(t, m.Items)
}
