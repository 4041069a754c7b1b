// Package profile defines the menu profile document: the menus the engine can
// detect, the elements inside them, and the visual conditions that gate both.
// The on-disk shape is JSON and is shared with the external profile editor
// (see element.go for the positional element form).
package profile

import (
	"fmt"
	"image"
	"sort"
)

// DefaultGroup is the group elements belong to when none is declared.
const DefaultGroup = "default"

// Point is a screen coordinate in pixels.
type Point struct {
	X int
	Y int
}

// Rect is a pixel rectangle. X2/Y2 are exclusive, matching image.Rectangle.
type Rect struct {
	X1 int
	Y1 int
	X2 int
	Y2 int
}

// Width returns the rectangle width in pixels.
func (r Rect) Width() int { return r.X2 - r.X1 }

// Height returns the rectangle height in pixels.
func (r Rect) Height() int { return r.Y2 - r.Y1 }

// Area returns the rectangle area in pixels.
func (r Rect) Area() int { return r.Width() * r.Height() }

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool { return r.X2 <= r.X1 || r.Y2 <= r.Y1 }

// ImageRect converts to the stdlib rectangle type.
func (r Rect) ImageRect() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2, r.Y2)
}

// OcrRegion is a named screen rectangle whose recognized text can be used in
// announcement templates. Conditions, when present, gate whether the region
// is read at all.
type OcrRegion struct {
	Tag        string      `json:"tag"`
	Rect       Rect        `json:"rect"`
	Conditions []Condition `json:"conditions,omitempty"`
}

// Element is one navigable item inside a menu.
type Element struct {
	Coordinates        Point
	Name               string
	Type               string
	SpeaksOnSelect     bool
	SubmenuID          string
	Group              string
	OcrRegions         []OcrRegion
	CustomAnnouncement string
	DisplayIndex       int
	Conditions         []Condition
	OcrDelayMs         int
}

// HasConditions reports whether the element is gated by activation conditions.
func (e *Element) HasConditions() bool { return len(e.Conditions) > 0 }

// HasOcrRegions reports whether the element declares OCR regions.
func (e *Element) HasOcrRegions() bool { return len(e.OcrRegions) > 0 }

// SameItem reports whether two elements refer to the same on-screen item.
// Used by the maintain-position policy when a menu transition keeps the slot.
func (e *Element) SameItem(o *Element) bool {
	if e == nil || o == nil {
		return e == o
	}
	return e.Name == o.Name && e.Coordinates == o.Coordinates
}

// Menu is one detectable screen state with its navigable elements.
type Menu struct {
	// Conditions must all hold for the menu to be auto-detected.
	// A menu with no conditions is never auto-detected.
	Conditions []Condition

	// Items is the ordered element list. Element order is the profile
	// author's order; navigation order within a group follows DisplayIndex.
	Items []Element

	// ResetIndex controls whether entering this menu via detection jumps to
	// the first item of the reset group (true, the default) or tries to keep
	// the previous group/position (false).
	ResetIndex bool

	// ResetGroup, when set, is the group preferred by the reset policy.
	ResetGroup string

	// IsManual marks a menu that detection never activates or deactivates;
	// once active it stays active until navigation replaces it.
	IsManual bool

	// GroupOrderIndices orders groups for cycling. Groups without an entry
	// sort after ordered ones, alphabetically.
	GroupOrderIndices map[string]int
}

// Groups returns the unique group names in first-appearance order.
func (m *Menu) Groups() []string {
	seen := make(map[string]bool, 4)
	var out []string
	for i := range m.Items {
		g := m.Items[i].Group
		if g == "" {
			g = DefaultGroup
		}
		if !seen[g] {
			seen[g] = true
			out = append(out, g)
		}
	}
	return out
}

// SortedGroups returns the unique group names ordered by
// (declared order index ascending, name ascending). Groups missing from
// GroupOrderIndices sort after all ordered groups.
func (m *Menu) SortedGroups() []string {
	groups := m.Groups()
	sort.SliceStable(groups, func(i, j int) bool {
		oi, iok := m.GroupOrderIndices[groups[i]]
		oj, jok := m.GroupOrderIndices[groups[j]]
		switch {
		case iok && jok && oi != oj:
			return oi < oj
		case iok != jok:
			return iok
		default:
			return groups[i] < groups[j]
		}
	})
	return groups
}

// GroupItemIndices returns the indices into Items of the elements belonging
// to group, ordered by DisplayIndex ascending with ties keeping declaration
// order.
func (m *Menu) GroupItemIndices(group string) []int {
	var out []int
	for i := range m.Items {
		g := m.Items[i].Group
		if g == "" {
			g = DefaultGroup
		}
		if g == group {
			out = append(out, i)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return m.Items[out[a]].DisplayIndex < m.Items[out[b]].DisplayIndex
	})
	return out
}

// Profile maps menu ids to menus. It is immutable once loaded; all runtime
// state lives in the navigation state machine.
type Profile map[string]*Menu

// MenuIDs returns the menu ids sorted lexicographically. Detection uses this
// for a deterministic evaluation and tie-break order.
func (p Profile) MenuIDs() []string {
	ids := make([]string, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Menu returns the menu for id, or nil.
func (p Profile) Menu(id string) *Menu {
	if id == "" {
		return nil
	}
	return p[id]
}

// Validate checks structural invariants the engine relies on.
func (p Profile) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("profile has no menus")
	}
	for id, m := range p {
		if m == nil {
			return fmt.Errorf("menu %q is null", id)
		}
		for i := range m.Conditions {
			if err := m.Conditions[i].Validate(); err != nil {
				return fmt.Errorf("menu %q condition %d: %w", id, i, err)
			}
		}
		for i := range m.Items {
			el := &m.Items[i]
			for j := range el.Conditions {
				if err := el.Conditions[j].Validate(); err != nil {
					return fmt.Errorf("menu %q item %d condition %d: %w", id, i, j, err)
				}
			}
			if el.SubmenuID != "" {
				if _, ok := p[el.SubmenuID]; !ok {
					return fmt.Errorf("menu %q item %d: submenu %q does not exist", id, i, el.SubmenuID)
				}
			}
		}
	}
	return nil
}
