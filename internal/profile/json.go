package profile

import (
	"encoding/json"
	"fmt"
)

// Point serializes as a two-element array [x, y].

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{p.X, p.Y})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var arr []json.Number
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("point must be an array: %w", err)
	}
	if len(arr) != 2 {
		return fmt.Errorf("point must have 2 entries, got %d", len(arr))
	}
	x, err := numToInt(arr[0])
	if err != nil {
		return err
	}
	y, err := numToInt(arr[1])
	if err != nil {
		return err
	}
	p.X, p.Y = x, y
	return nil
}

// Rect serializes as a four-element array [x1, y1, x2, y2].

func (r Rect) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{r.X1, r.Y1, r.X2, r.Y2})
}

func (r *Rect) UnmarshalJSON(data []byte) error {
	var arr []json.Number
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("rect must be an array: %w", err)
	}
	if len(arr) != 4 {
		return fmt.Errorf("rect must have 4 entries, got %d", len(arr))
	}
	vals := make([]int, 4)
	for i, n := range arr {
		v, err := numToInt(n)
		if err != nil {
			return err
		}
		vals[i] = v
	}
	r.X1, r.Y1, r.X2, r.Y2 = vals[0], vals[1], vals[2], vals[3]
	return nil
}

// numToInt truncates JSON numbers to int. Profiles written by hand sometimes
// carry coordinates as floats.
func numToInt(n json.Number) (int, error) {
	if i, err := n.Int64(); err == nil {
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", n.String())
	}
	return int(f), nil
}

// menuJSON is the on-disk menu shape.
type menuJSON struct {
	Conditions        []Condition    `json:"conditions"`
	Items             []Element      `json:"items"`
	ResetIndex        *bool          `json:"reset_index,omitempty"`
	ResetGroup        string         `json:"reset_group,omitempty"`
	IsManual          bool           `json:"is_manual,omitempty"`
	GroupOrderIndices map[string]int `json:"group_order_indices,omitempty"`
}

func (m Menu) MarshalJSON() ([]byte, error) {
	reset := m.ResetIndex
	out := menuJSON{
		Conditions:        m.Conditions,
		Items:             m.Items,
		ResetIndex:        &reset,
		ResetGroup:        m.ResetGroup,
		IsManual:          m.IsManual,
		GroupOrderIndices: m.GroupOrderIndices,
	}
	if out.Conditions == nil {
		out.Conditions = []Condition{}
	}
	if out.Items == nil {
		out.Items = []Element{}
	}
	return json.Marshal(out)
}

func (m *Menu) UnmarshalJSON(data []byte) error {
	var raw menuJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Conditions = raw.Conditions
	m.Items = raw.Items
	// reset_index defaults to true when absent.
	m.ResetIndex = raw.ResetIndex == nil || *raw.ResetIndex
	m.ResetGroup = raw.ResetGroup
	m.IsManual = raw.IsManual
	m.GroupOrderIndices = raw.GroupOrderIndices
	return nil
}
