package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads a profile document from path. It fails only on unreadable files,
// invalid JSON, or an empty menu map; malformed conditions inside an otherwise
// well-formed document load fine and simply never match.
func Load(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	return Parse(data)
}

// Parse decodes a profile document from raw JSON.
func Parse(data []byte) (Profile, error) {
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if len(p) == 0 {
		return nil, fmt.Errorf("profile has no menus")
	}
	for id, m := range p {
		if m == nil {
			return nil, fmt.Errorf("menu %q is null", id)
		}
	}
	return p, nil
}

// Save writes the profile document to path, creating parent directories.
func (p Profile) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create profile directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}

// Default returns the built-in fallback profile used when no profile can be
// loaded. It is a manual menu, so it is never auto-detected; activating it
// gives the user a navigable hint instead of silence.
func Default() Profile {
	return Profile{
		"default": {
			ResetIndex: true,
			IsManual:   true,
			Items: []Element{
				{
					Coordinates:  Point{X: 0, Y: 0},
					Name:         "No profile loaded",
					Type:         "message",
					Group:        DefaultGroup,
					DisplayIndex: 0,
				},
				{
					Coordinates:  Point{X: 0, Y: 0},
					Name:         "Place a profile file and reload",
					Type:         "message",
					Group:        DefaultGroup,
					DisplayIndex: 1,
				},
			},
		},
	}
}
