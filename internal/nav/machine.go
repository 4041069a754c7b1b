// Package nav owns the navigation state: which menus are open, which element
// has focus, and which group is being cycled. Methods mutate state under one
// lock and return an Outcome describing the side effects the caller should
// perform; the machine itself never touches the pointer or the speech queue.
package nav

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/menuvox/menuvox/internal/profile"
	"github.com/menuvox/menuvox/internal/vision"
)

// ErrUnknownMenu is returned when an operation names a menu the profile does
// not contain.
var ErrUnknownMenu = errors.New("menu not found")

// ConditionEvaluator is the slice of the condition engine the machine needs
// to filter elements by their activation conditions.
type ConditionEvaluator interface {
	EvaluateAll(conds []profile.Condition, frame *vision.Frame) bool
}

// Machine is the navigation state machine. All methods are safe for
// concurrent use; in practice mutations arrive serialized through the
// command queue while status reads come from the HTTP server.
type Machine struct {
	eval   ConditionEvaluator
	logger *slog.Logger

	mu    sync.Mutex
	prof  profile.Profile
	stack []string
	group string
	pos   int

	// groupPos remembers the last position per menu and group, lastPos the
	// last position per menu regardless of group. Entries are validated
	// against the current profile at restore time, so they survive reloads.
	groupPos           map[string]map[string]int
	lastPos            map[string]int
	lastAnnouncedGroup string
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the machine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// New returns an empty machine. eval filters conditioned elements; a nil
// eval treats every element as active.
func New(eval ConditionEvaluator, opts ...Option) *Machine {
	m := &Machine{
		eval:     eval,
		logger:   slog.Default().With("component", "nav"),
		prof:     profile.Profile{},
		group:    profile.DefaultGroup,
		groupPos: make(map[string]map[string]int),
		lastPos:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetProfile swaps the profile. The menu stack keeps its longest prefix that
// still exists; focus is clamped into the surviving menu. Remembered
// positions are kept because they are re-validated whenever they are used.
func (m *Machine) SetProfile(p profile.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prof = p

	valid := m.stack[:0]
	for _, id := range m.stack {
		if p.Menu(id) == nil {
			break
		}
		valid = append(valid, id)
	}
	m.stack = valid

	menu := m.prof.Menu(m.activeMenuLocked())
	if menu == nil {
		m.stack = nil
		m.pos = 0
		m.group = profile.DefaultGroup
		m.lastAnnouncedGroup = ""
		return
	}
	if m.pos < 0 || m.pos >= len(menu.Items) {
		m.pos = 0
	}
	if len(menu.Items) > 0 {
		m.group = groupOf(&menu.Items[m.pos])
	} else {
		m.group = profile.DefaultGroup
	}
}

// Profile returns the current profile. The map is treated as immutable.
func (m *Machine) Profile() profile.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prof
}

// RootMenu returns the bottom of the menu stack, the menu detection tracks.
func (m *Machine) RootMenu() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rootMenuLocked()
}

// ActiveMenu returns the top of the menu stack, the menu the user navigates.
func (m *Machine) ActiveMenu() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeMenuLocked()
}

// Snapshot returns a copy of the navigation state.
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		MenuStack:          append([]string(nil), m.stack...),
		ActiveMenu:         m.activeMenuLocked(),
		RootMenu:           m.rootMenuLocked(),
		CurrentGroup:       m.group,
		CurrentPosition:    m.pos,
		LastAnnouncedGroup: m.lastAnnouncedGroup,
	}
}

// ApplyDetection reacts to the resolver's verdict. menuID == "" clears the
// stack; a new menu id replaces the whole stack and applies the menu's
// reset or maintain entry policy. The same root id is a no-op, which is what
// keeps an open submenu chain alive while its root stays detected.
func (m *Machine) ApplyDetection(menuID string, frame *vision.Frame) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.rootMenuLocked()
	if menuID == current {
		return Outcome{}
	}
	if menuID == "" {
		m.stack = nil
		m.pos = 0
		m.group = profile.DefaultGroup
		m.lastAnnouncedGroup = ""
		m.logger.Info("menu cleared", "previous", current)
		return Outcome{Speak: []string{"No menu active"}}
	}
	menu := m.prof.Menu(menuID)
	if menu == nil {
		m.logger.Warn("detected menu missing from profile", "menu", menuID)
		return Outcome{}
	}
	m.logger.Info("menu changed", "menu", menuID, "previous", current)
	return m.activateLocked(menuID, menu, frame)
}

// ActivateManual makes menuID active regardless of its conditions. This is
// the only way a manual menu becomes active.
func (m *Machine) ActivateManual(menuID string, frame *vision.Frame) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	menu := m.prof.Menu(menuID)
	if menu == nil {
		return Outcome{}, fmt.Errorf("menu %q: %w", menuID, ErrUnknownMenu)
	}
	m.logger.Info("menu activated manually", "menu", menuID)
	return m.activateLocked(menuID, menu, frame), nil
}

// Navigate moves focus by delta within the current group, wrapping around.
// When the current group has no active items it fails over to the first
// group that has some.
func (m *Machine) Navigate(delta int, frame *vision.Frame) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	menuID := m.activeMenuLocked()
	menu := m.prof.Menu(menuID)
	if menu == nil {
		return Outcome{Speak: []string{"No menu active"}}
	}

	items := m.activeItemsLocked(menu, m.group, frame)
	if len(items) == 0 {
		for _, g := range menu.SortedGroups() {
			if g == m.group {
				continue
			}
			if alt := m.activeItemsLocked(menu, g, frame); len(alt) > 0 {
				m.group = g
				items = alt
				break
			}
		}
	}
	if len(items) == 0 {
		if len(menu.Items) == 0 {
			return Outcome{Speak: []string{"No items"}}
		}
		// No group has active items; park on the first item so the user
		// still hears where they are.
		m.pos = 0
		m.group = groupOf(&menu.Items[0])
		m.rememberLocked(menuID)
		return m.focusLocked(frame, true)
	}

	slot := slices.Index(items, m.pos)
	if slot < 0 {
		slot = 0
	}
	n := len(items)
	slot = ((slot+delta)%n + n) % n
	m.pos = items[slot]
	m.rememberLocked(menuID)
	return m.focusLocked(frame, true)
}

// Select clicks the focused element and, when it opens a submenu, pushes the
// submenu and focuses its entry position.
func (m *Machine) Select(frame *vision.Frame) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	menuID := m.activeMenuLocked()
	menu := m.prof.Menu(menuID)
	if menu == nil {
		return Outcome{Speak: []string{"No menu active"}}
	}
	if m.pos < 0 || m.pos >= len(menu.Items) {
		return Outcome{Speak: []string{"No items"}}
	}

	el := menu.Items[m.pos]
	pt := el.Coordinates
	out := Outcome{Click: &pt}
	if el.SpeaksOnSelect && el.Name != "" {
		out.Speak = append(out.Speak, el.Name+" selected")
	}
	m.logger.Info("element selected", "menu", menuID, "element", el.Name, "x", pt.X, "y", pt.Y)

	if el.SubmenuID == "" {
		return out
	}
	sub := m.prof.Menu(el.SubmenuID)
	if sub == nil {
		m.logger.Warn("submenu missing from profile", "menu", menuID, "submenu", el.SubmenuID)
		return out
	}
	m.stack = append(m.stack, el.SubmenuID)
	entry := m.enterSubmenuLocked(el.SubmenuID, sub, frame)
	out.Speak = append(out.Speak, entry.Speak...)
	out.Move = entry.Move
	out.GroupChange = entry.GroupChange
	out.Focus = entry.Focus
	return out
}

// Pop closes the innermost submenu and restores the parent's remembered
// position. It reports whether anything was popped; at the stack bottom it
// re-announces the current focus instead.
func (m *Machine) Pop(frame *vision.Frame) (Outcome, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.stack) == 0 {
		return Outcome{Speak: []string{"No menu active"}}, false
	}
	if len(m.stack) == 1 {
		return m.focusLocked(frame, false), false
	}

	m.stack = m.stack[:len(m.stack)-1]
	parentID := m.activeMenuLocked()
	parent := m.prof.Menu(parentID)
	if parent == nil {
		m.stack = nil
		m.pos = 0
		m.group = profile.DefaultGroup
		return Outcome{Speak: []string{"No menu active"}}, true
	}
	if len(parent.Items) == 0 {
		m.pos = 0
		m.group = profile.DefaultGroup
		return Outcome{Speak: []string{"No items"}}, true
	}
	saved, ok := m.lastPos[parentID]
	if !ok || saved < 0 || saved >= len(parent.Items) {
		saved = 0
	}
	m.pos = saved
	m.group = groupOf(&parent.Items[m.pos])
	m.rememberLocked(parentID)
	return m.focusLocked(frame, true), true
}

// NextGroup cycles to the next group with active items.
func (m *Machine) NextGroup(frame *vision.Frame) Outcome { return m.cycleGroup(1, frame) }

// PrevGroup cycles to the previous group with active items.
func (m *Machine) PrevGroup(frame *vision.Frame) Outcome { return m.cycleGroup(-1, frame) }

func (m *Machine) cycleGroup(dir int, frame *vision.Frame) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	menuID := m.activeMenuLocked()
	menu := m.prof.Menu(menuID)
	if menu == nil {
		return Outcome{Speak: []string{"No menu active"}}
	}
	groups := menu.SortedGroups()
	if len(groups) < 2 {
		return Outcome{Speak: []string{"No other groups"}}
	}
	start := slices.Index(groups, m.group)
	if start < 0 {
		start = 0
	}
	n := len(groups)
	for step := 1; step < n; step++ {
		idx := ((start+dir*step)%n + n) % n
		g := groups[idx]
		items := m.activeItemsLocked(menu, g, frame)
		if len(items) == 0 {
			continue
		}
		m.group = g
		if saved, ok := m.groupPos[menuID][g]; ok && slices.Contains(items, saved) {
			m.pos = saved
		} else {
			m.pos = items[0]
		}
		m.rememberLocked(menuID)
		return m.focusLocked(frame, true)
	}
	return Outcome{Speak: []string{"No other groups"}}
}

// activateLocked replaces the stack with menuID and applies the menu's entry
// policy. The menu id is prepended to whatever the entry announces.
func (m *Machine) activateLocked(menuID string, menu *profile.Menu, frame *vision.Frame) Outcome {
	var prevMenu *profile.Menu
	prevPos := -1
	prevGroup := ""
	if len(m.stack) > 0 {
		prevMenu = m.prof.Menu(m.activeMenuLocked())
		prevPos = m.pos
		prevGroup = m.group
	}
	m.stack = []string{menuID}

	var out Outcome
	if !menu.ResetIndex {
		out = m.maintainEntryLocked(menuID, menu, frame, prevMenu, prevPos, prevGroup)
	} else {
		out = m.resetEntryLocked(menuID, menu, frame)
	}
	out.Speak = append([]string{menuID}, out.Speak...)
	return out
}

// maintainEntryLocked tries to keep the previous group or slot when entering
// a menu with ResetIndex off, falling back to the reset policy.
func (m *Machine) maintainEntryLocked(menuID string, menu *profile.Menu, frame *vision.Frame, prevMenu *profile.Menu, prevPos int, prevGroup string) Outcome {
	if prevGroup != "" && len(menu.GroupItemIndices(prevGroup)) > 0 {
		m.group = prevGroup
		if saved, ok := m.groupPos[menuID][prevGroup]; ok && positionInGroup(menu, prevGroup, saved) {
			m.pos = saved
		} else {
			m.pos = m.firstItemLocked(menu, prevGroup, frame)
		}
		m.rememberLocked(menuID)
		return m.focusLocked(frame, true)
	}
	if prevMenu != nil && prevPos >= 0 && prevPos < len(prevMenu.Items) && prevPos < len(menu.Items) &&
		menu.Items[prevPos].SameItem(&prevMenu.Items[prevPos]) {
		m.pos = prevPos
		m.group = groupOf(&menu.Items[prevPos])
		m.rememberLocked(menuID)
		return m.focusLocked(frame, true)
	}
	return m.resetEntryLocked(menuID, menu, frame)
}

// resetEntryLocked jumps to the first active item of the menu's reset group.
func (m *Machine) resetEntryLocked(menuID string, menu *profile.Menu, frame *vision.Frame) Outcome {
	if len(menu.Items) == 0 {
		m.pos = 0
		m.group = profile.DefaultGroup
		return Outcome{Speak: []string{"No items"}}
	}
	m.group = m.findResetGroupLocked(menu, frame)
	m.pos = m.firstItemLocked(menu, m.group, frame)
	m.rememberLocked(menuID)
	return m.focusLocked(frame, true)
}

// enterSubmenuLocked focuses the submenu's remembered position if one exists
// for it, otherwise applies the reset policy.
func (m *Machine) enterSubmenuLocked(subID string, sub *profile.Menu, frame *vision.Frame) Outcome {
	if saved, ok := m.lastPos[subID]; ok && saved >= 0 && saved < len(sub.Items) {
		m.pos = saved
		m.group = groupOf(&sub.Items[saved])
		m.rememberLocked(subID)
		return m.focusLocked(frame, true)
	}
	return m.resetEntryLocked(subID, sub, frame)
}

// findResetGroupLocked picks the entry group: the first group with active
// items, preferring ResetGroup, then any group with items at all.
func (m *Machine) findResetGroupLocked(menu *profile.Menu, frame *vision.Frame) string {
	var order []string
	if menu.ResetGroup != "" {
		order = append(order, menu.ResetGroup)
	}
	order = append(order, menu.SortedGroups()...)
	for _, g := range order {
		if len(m.activeItemsLocked(menu, g, frame)) > 0 {
			return g
		}
	}
	for _, g := range order {
		if len(menu.GroupItemIndices(g)) > 0 {
			return g
		}
	}
	return profile.DefaultGroup
}

// firstItemLocked returns the first active item of group, or its first item
// when none are active, or 0.
func (m *Machine) firstItemLocked(menu *profile.Menu, group string, frame *vision.Frame) int {
	if items := m.activeItemsLocked(menu, group, frame); len(items) > 0 {
		return items[0]
	}
	if items := menu.GroupItemIndices(group); len(items) > 0 {
		return items[0]
	}
	return 0
}

// activeItemsLocked returns the indices of group's elements whose conditions
// hold on frame, in DisplayIndex order. Membership is recomputed on every
// call; the condition engine's per-tick memo keeps that cheap.
func (m *Machine) activeItemsLocked(menu *profile.Menu, group string, frame *vision.Frame) []int {
	indices := menu.GroupItemIndices(group)
	out := make([]int, 0, len(indices))
	for _, i := range indices {
		el := &menu.Items[i]
		if el.HasConditions() && m.eval != nil && !m.eval.EvaluateAll(el.Conditions, frame) {
			continue
		}
		out = append(out, i)
	}
	return out
}

// focusLocked builds the announcement outcome for the current focus and
// records a group change when the focused element's group differs from the
// last announced one.
func (m *Machine) focusLocked(frame *vision.Frame, withMove bool) Outcome {
	menuID := m.activeMenuLocked()
	menu := m.prof.Menu(menuID)
	if menu == nil || m.pos < 0 || m.pos >= len(menu.Items) {
		return Outcome{}
	}
	el := menu.Items[m.pos]
	g := groupOf(&el)

	items := m.activeItemsLocked(menu, g, frame)
	slot := slices.Index(items, m.pos)
	size := len(items)
	if slot < 0 {
		// The focused item itself is inactive right now; report its place
		// in the full group so the ordinal still means something.
		full := menu.GroupItemIndices(g)
		slot = slices.Index(full, m.pos)
		size = len(full)
	}

	var out Outcome
	if withMove {
		pt := el.Coordinates
		out.Move = &pt
	}
	if g != m.lastAnnouncedGroup {
		out.GroupChange = g
		m.lastAnnouncedGroup = g
	}
	out.Focus = &Focus{
		MenuID:     menuID,
		Position:   m.pos,
		Element:    el,
		GroupIndex: slot + 1,
		GroupSize:  size,
		OcrDelayMs: el.OcrDelayMs,
	}
	return out
}

// rememberLocked persists the current position for the menu and group.
func (m *Machine) rememberLocked(menuID string) {
	if menuID == "" {
		return
	}
	byGroup := m.groupPos[menuID]
	if byGroup == nil {
		byGroup = make(map[string]int)
		m.groupPos[menuID] = byGroup
	}
	byGroup[m.group] = m.pos
	m.lastPos[menuID] = m.pos
}

func (m *Machine) rootMenuLocked() string {
	if len(m.stack) == 0 {
		return ""
	}
	return m.stack[0]
}

func (m *Machine) activeMenuLocked() string {
	if len(m.stack) == 0 {
		return ""
	}
	return m.stack[len(m.stack)-1]
}

// positionInGroup reports whether pos is a valid item index belonging to
// group.
func positionInGroup(menu *profile.Menu, group string, pos int) bool {
	if pos < 0 || pos >= len(menu.Items) {
		return false
	}
	return groupOf(&menu.Items[pos]) == group
}

func groupOf(el *profile.Element) string {
	if el.Group == "" {
		return profile.DefaultGroup
	}
	return el.Group
}
