// Package defaults provides embedded default configuration files.
// These are copied to the platform data directory on first run or when reset is requested.
//
// Platform paths:
//
//	macOS:   ~/Library/Application Support/Menuvox/
//	Windows: %AppData%\Menuvox\
//	Linux:   ~/.config/menuvox/
//
// Override with MENUVOX_DATA_DIR environment variable.
package defaults

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

//go:embed dotmenuvox/*
var defaultFiles embed.FS

// DataDir returns the platform-appropriate data directory.
//
//	macOS:   ~/Library/Application Support/Menuvox/
//	Windows: %AppData%\Menuvox\
//	Linux:   ~/.config/menuvox/
//
// Set MENUVOX_DATA_DIR to override.
func DataDir() (string, error) {
	if dir := os.Getenv("MENUVOX_DATA_DIR"); dir != "" {
		return dir, nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}

	// Linux: lowercase per XDG convention
	// macOS/Windows: title case per platform convention
	if runtime.GOOS == "linux" {
		return filepath.Join(configDir, "menuvox"), nil
	}
	return filepath.Join(configDir, "Menuvox"), nil
}

// EnsureDataDir creates the data directory if it doesn't exist
// and copies default files if they're missing.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}

	// Create directory tree if needed
	for _, sub := range []string{"", "profiles", "logs", "data"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return "", fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	// Copy default files if they don't exist
	if err := copyDefaults(dir, false); err != nil {
		return "", err
	}

	return dir, nil
}

// Reset removes existing config files and replaces them with defaults.
// The history database and logs are preserved.
func Reset(dir string) error {
	return copyDefaults(dir, true)
}

// copyDefaults copies embedded default files to the data directory.
// If overwrite is true, existing files are replaced.
func copyDefaults(dir string, overwrite bool) error {
	return fs.WalkDir(defaultFiles, "dotmenuvox", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// Skip the root directory
		if path == "dotmenuvox" {
			return nil
		}

		// Get relative path (strip "dotmenuvox/" prefix).
		// Use TrimPrefix instead of filepath.Rel because embed.FS always
		// uses forward slashes, but filepath.Rel produces backslashes on Windows.
		relPath := strings.TrimPrefix(path, "dotmenuvox/")
		destPath := filepath.Join(dir, relPath)

		if d.IsDir() {
			return os.MkdirAll(destPath, 0755)
		}

		// Skip if file exists and we're not overwriting
		if !overwrite {
			if _, err := os.Stat(destPath); err == nil {
				return nil
			}
		}

		// Read embedded file
		data, err := defaultFiles.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read embedded %s: %w", path, err)
		}

		// Write to destination
		if err := os.WriteFile(destPath, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", destPath, err)
		}

		return nil
	})
}

// GetDefault returns the content of a default file by name.
// Example: GetDefault("config.yaml")
func GetDefault(name string) ([]byte, error) {
	return defaultFiles.ReadFile("dotmenuvox/" + name)
}

// ListDefaults returns the names of all default files.
func ListDefaults() ([]string, error) {
	var files []string
	err := fs.WalkDir(defaultFiles, "dotmenuvox", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && path != "dotmenuvox" {
			// Use TrimPrefix to keep forward slashes (embed.FS convention).
			relPath := strings.TrimPrefix(path, "dotmenuvox/")
			files = append(files, relPath)
		}
		return nil
	})
	return files, err
}
