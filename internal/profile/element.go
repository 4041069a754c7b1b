package profile

import (
	"encoding/json"
	"fmt"
)

// Elements are stored as fixed-arity JSON arrays for compatibility with the
// profile editor:
//
//	[coordinates, name, type, speaks_on_select, submenu_id, group,
//	 ocr_regions, custom_announcement, display_index, conditions,
//	 ocr_delay_ms]
//
// Older profiles may carry shorter arrays; missing trailing slots take their
// defaults. Writing always emits all 11 slots.
const elementSlots = 11

func (e Element) MarshalJSON() ([]byte, error) {
	var submenu any
	if e.SubmenuID != "" {
		submenu = e.SubmenuID
	}
	var custom any
	if e.CustomAnnouncement != "" {
		custom = e.CustomAnnouncement
	}
	group := e.Group
	if group == "" {
		group = DefaultGroup
	}
	regions := e.OcrRegions
	if regions == nil {
		regions = []OcrRegion{}
	}
	conds := e.Conditions
	if conds == nil {
		conds = []Condition{}
	}
	slots := [elementSlots]any{
		e.Coordinates,
		e.Name,
		e.Type,
		e.SpeaksOnSelect,
		submenu,
		group,
		regions,
		custom,
		e.DisplayIndex,
		conds,
		e.OcrDelayMs,
	}
	return json.Marshal(slots)
}

func (e *Element) UnmarshalJSON(data []byte) error {
	var slots []json.RawMessage
	if err := json.Unmarshal(data, &slots); err != nil {
		return fmt.Errorf("element must be an array: %w", err)
	}
	if len(slots) < 2 {
		return fmt.Errorf("element needs at least coordinates and name, got %d slots", len(slots))
	}
	if len(slots) > elementSlots {
		return fmt.Errorf("element has %d slots, max %d", len(slots), elementSlots)
	}

	*e = Element{Group: DefaultGroup}

	if err := json.Unmarshal(slots[0], &e.Coordinates); err != nil {
		return fmt.Errorf("element coordinates: %w", err)
	}
	if err := json.Unmarshal(slots[1], &e.Name); err != nil {
		return fmt.Errorf("element name: %w", err)
	}
	if len(slots) > 2 {
		if err := json.Unmarshal(slots[2], &e.Type); err != nil {
			return fmt.Errorf("element type: %w", err)
		}
	}
	if len(slots) > 3 {
		if err := json.Unmarshal(slots[3], &e.SpeaksOnSelect); err != nil {
			return fmt.Errorf("element speaks_on_select: %w", err)
		}
	}
	if len(slots) > 4 {
		if err := unmarshalNullable(slots[4], &e.SubmenuID); err != nil {
			return fmt.Errorf("element submenu: %w", err)
		}
	}
	if len(slots) > 5 {
		if err := unmarshalNullable(slots[5], &e.Group); err != nil {
			return fmt.Errorf("element group: %w", err)
		}
		if e.Group == "" {
			e.Group = DefaultGroup
		}
	}
	if len(slots) > 6 {
		if err := unmarshalNullableSlice(slots[6], &e.OcrRegions); err != nil {
			return fmt.Errorf("element ocr_regions: %w", err)
		}
	}
	if len(slots) > 7 {
		if err := unmarshalNullable(slots[7], &e.CustomAnnouncement); err != nil {
			return fmt.Errorf("element custom_announcement: %w", err)
		}
	}
	if len(slots) > 8 {
		var n json.Number
		if err := json.Unmarshal(slots[8], &n); err != nil {
			return fmt.Errorf("element display_index: %w", err)
		}
		v, err := numToInt(n)
		if err != nil {
			return fmt.Errorf("element display_index: %w", err)
		}
		e.DisplayIndex = v
	}
	if len(slots) > 9 {
		if err := unmarshalNullableSlice(slots[9], &e.Conditions); err != nil {
			return fmt.Errorf("element conditions: %w", err)
		}
	}
	if len(slots) > 10 {
		var n json.Number
		if err := json.Unmarshal(slots[10], &n); err != nil {
			return fmt.Errorf("element ocr_delay_ms: %w", err)
		}
		v, err := numToInt(n)
		if err != nil {
			return fmt.Errorf("element ocr_delay_ms: %w", err)
		}
		e.OcrDelayMs = v
	}
	return nil
}

// unmarshalNullable decodes a string slot that may be JSON null.
func unmarshalNullable(data json.RawMessage, dst *string) error {
	if string(data) == "null" {
		*dst = ""
		return nil
	}
	return json.Unmarshal(data, dst)
}

// unmarshalNullableSlice decodes a slice slot that may be JSON null.
func unmarshalNullableSlice[T any](data json.RawMessage, dst *[]T) error {
	if string(data) == "null" {
		*dst = nil
		return nil
	}
	return json.Unmarshal(data, dst)
}
