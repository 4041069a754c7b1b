package events

import "time"

// Topics published by the detection and navigation pipeline.
const (
	// TopicMenuChanged fires when the active menu changes, including when
	// detection clears it. Payload: MenuChanged.
	TopicMenuChanged = "menu.changed"

	// TopicFocusChanged fires when the focused element moves. Payload:
	// FocusChanged.
	TopicFocusChanged = "focus.changed"

	// TopicAnnouncement fires for every utterance handed to the speech
	// queue. Payload: Announcement.
	TopicAnnouncement = "announcement"

	// TopicProfileLoaded fires after a profile load or reload succeeds.
	// Payload: ProfileLoaded.
	TopicProfileLoaded = "profile.loaded"
)

// MenuChanged reports an active menu transition.
type MenuChanged struct {
	MenuID   string    `json:"menu_id"`
	Previous string    `json:"previous"`
	Manual   bool      `json:"manual"`
	At       time.Time `json:"at"`
}

// FocusChanged reports the element the navigator currently points at.
type FocusChanged struct {
	MenuID     string    `json:"menu_id"`
	Element    string    `json:"element"`
	Group      string    `json:"group"`
	GroupIndex int       `json:"group_index"`
	GroupSize  int       `json:"group_size"`
	Position   int       `json:"position"`
	At         time.Time `json:"at"`
}

// Announcement is a spoken utterance with its source menu and element, when
// it has them. Literal utterances like "No menu active" carry text only.
type Announcement struct {
	Text    string    `json:"text"`
	MenuID  string    `json:"menu_id,omitempty"`
	Element string    `json:"element,omitempty"`
	At      time.Time `json:"at"`
}

// ProfileLoaded reports a successful profile (re)load.
type ProfileLoaded struct {
	Path  string    `json:"path"`
	Menus int       `json:"menus"`
	At    time.Time `json:"at"`
}
