package nav

import "github.com/menuvox/menuvox/internal/profile"

// Outcome tells the command worker what to do after a state transition.
// The worker performs the parts in a fixed order: click, literal utterances,
// pointer move, then the group and focus announcements. Carrying plain data
// instead of callbacks keeps the queue inspectable and the state machine
// free of captured references.
type Outcome struct {
	// Click is the pointer click target for selections, nil when none.
	Click *profile.Point

	// Speak lists literal utterances such as selection confirmations and
	// "No menu active".
	Speak []string

	// Move is the pointer move target for the newly focused element.
	Move *profile.Point

	// GroupChange is the group name to announce before the focus
	// announcement, empty when the group did not change.
	GroupChange string

	// Focus describes the element to announce, nil when nothing gained
	// focus.
	Focus *Focus
}

// Empty reports whether the outcome carries no work at all.
func (o Outcome) Empty() bool {
	return o.Click == nil && o.Move == nil && len(o.Speak) == 0 &&
		o.GroupChange == "" && o.Focus == nil
}

// Focus identifies a focused element together with everything the
// announcement formatter needs about its place in the menu.
type Focus struct {
	MenuID     string
	Position   int             // index into the menu's Items
	Element    profile.Element // copy, safe to use off the machine's lock
	GroupIndex int             // 1-based index among the group's active items
	GroupSize  int             // number of active items in the group
	OcrDelayMs int
}

// State is a point-in-time copy of the navigation state for status surfaces.
type State struct {
	MenuStack          []string `json:"menu_stack"`
	ActiveMenu         string   `json:"active_menu"`
	RootMenu           string   `json:"root_menu"`
	CurrentGroup       string   `json:"current_group"`
	CurrentPosition    int      `json:"current_position"`
	LastAnnouncedGroup string   `json:"last_announced_group"`
}
