package defaults

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestListDefaults(t *testing.T) {
	files, err := ListDefaults()
	if err != nil {
		t.Fatalf("ListDefaults failed: %v", err)
	}

	expected := []string{"config.yaml", "profiles/default.json"}
	if len(files) != len(expected) {
		t.Errorf("Expected %d files, got %d: %v", len(expected), len(files), files)
	}

	for _, exp := range expected {
		if !slices.Contains(files, exp) {
			t.Errorf("Expected file %s not found in %v", exp, files)
		}
	}
}

func TestGetDefault(t *testing.T) {
	content, err := GetDefault("config.yaml")
	if err != nil {
		t.Fatalf("GetDefault failed: %v", err)
	}

	if len(content) == 0 {
		t.Error("config.yaml content is empty")
	}
}

func TestDataDirOverride(t *testing.T) {
	t.Setenv("MENUVOX_DATA_DIR", "/tmp/menuvox-override")

	dir, err := DataDir()
	if err != nil {
		t.Fatalf("DataDir failed: %v", err)
	}
	if dir != "/tmp/menuvox-override" {
		t.Errorf("Expected /tmp/menuvox-override, got %s", dir)
	}
}

func TestEnsureDataDir(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("MENUVOX_DATA_DIR", tmpDir)

	dir, err := EnsureDataDir()
	if err != nil {
		t.Fatalf("EnsureDataDir failed: %v", err)
	}

	// Check directory tree was created
	for _, sub := range []string{"profiles", "logs", "data"} {
		if _, err := os.Stat(filepath.Join(dir, sub)); os.IsNotExist(err) {
			t.Errorf("%s directory was not created", sub)
		}
	}

	// Check default files were copied
	configPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config.yaml was not copied")
	}

	profilePath := filepath.Join(dir, "profiles", "default.json")
	if _, err := os.Stat(profilePath); os.IsNotExist(err) {
		t.Error("profiles/default.json was not copied")
	}
}

func TestEnsureDataDirKeepsExistingFiles(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("MENUVOX_DATA_DIR", tmpDir)

	if _, err := EnsureDataDir(); err != nil {
		t.Fatalf("EnsureDataDir failed: %v", err)
	}

	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("# edited\n"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if _, err := EnsureDataDir(); err != nil {
		t.Fatalf("second EnsureDataDir failed: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "# edited\n" {
		t.Error("existing config.yaml was overwritten")
	}

	// Reset replaces edited files with the embedded defaults.
	if err := Reset(tmpDir); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	data, err = os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("read after reset failed: %v", err)
	}
	if string(data) == "# edited\n" {
		t.Error("Reset did not restore the default config.yaml")
	}
}
