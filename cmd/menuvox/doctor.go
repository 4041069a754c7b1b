package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/kbinani/screenshot"
	"github.com/spf13/cobra"

	"github.com/menuvox/menuvox/internal/capture"
	"github.com/menuvox/menuvox/internal/defaults"
	"github.com/menuvox/menuvox/internal/pointer"
	"github.com/menuvox/menuvox/internal/profile"
	"github.com/menuvox/menuvox/internal/speech"
)

// DoctorCmd creates the doctor command for health checks
func DoctorCmd() *cobra.Command {
	var fix bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system health and diagnose issues",
		Long: `Run diagnostics on your Menuvox installation.

Checks:
  - Data directory and configuration
  - Menu profile
  - Screen capture
  - OCR (tesseract)
  - Speech synthesizer
  - Pointer control
  - History database
  - Running daemon

Examples:
  menuvox doctor           # Run all diagnostics
  menuvox doctor --fix     # Attempt to fix issues`,
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor(fix)
		},
	}

	cmd.Flags().BoolVar(&fix, "fix", false, "Attempt to fix detected issues")

	return cmd
}

type checkResult struct {
	name    string
	status  string // "ok", "warn", "error"
	message string
}

func runDoctor(fix bool) {
	fmt.Println("\033[1mMenuvox Doctor\033[0m")
	fmt.Println("==============")
	fmt.Println()

	var results []checkResult

	results = append(results, checkDataDir()...)
	results = append(results, checkProfile()...)
	results = append(results, checkCapture()...)
	results = append(results, checkOCR()...)
	results = append(results, checkSpeech()...)
	results = append(results, checkPointer()...)
	results = append(results, checkHistory()...)
	results = append(results, checkDaemon()...)
	results = append(results, checkSystem()...)

	fmt.Println()
	okCount := 0
	warnCount := 0
	errorCount := 0

	for _, r := range results {
		switch r.status {
		case "ok":
			fmt.Printf("\033[32m✓\033[0m %s: %s\n", r.name, r.message)
			okCount++
		case "warn":
			fmt.Printf("\033[33m⚠\033[0m %s: %s\n", r.name, r.message)
			warnCount++
		case "error":
			fmt.Printf("\033[31m✗\033[0m %s: %s\n", r.name, r.message)
			errorCount++
		}
	}

	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("  \033[32m%d passed\033[0m", okCount)
	if warnCount > 0 {
		fmt.Printf("  \033[33m%d warnings\033[0m", warnCount)
	}
	if errorCount > 0 {
		fmt.Printf("  \033[31m%d errors\033[0m", errorCount)
	}
	fmt.Println()

	if errorCount > 0 && fix {
		fmt.Println()
		fmt.Println("Attempting fixes...")
		runFixes(results)
	}

	if errorCount > 0 {
		os.Exit(1)
	}
}

func checkDataDir() []checkResult {
	var results []checkResult

	c := DaemonConfig

	if _, err := os.Stat(c.DataDir); os.IsNotExist(err) {
		results = append(results, checkResult{
			name:    "Data Directory",
			status:  "error",
			message: fmt.Sprintf("%s not found. Run 'menuvox' once or 'menuvox doctor --fix' to create it.", c.DataDir),
		})
	} else {
		results = append(results, checkResult{
			name:    "Data Directory",
			status:  "ok",
			message: c.DataDir,
		})
	}

	configPath := filepath.Join(c.DataDir, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		results = append(results, checkResult{
			name:    "Config File",
			status:  "warn",
			message: "config.yaml not found, using built-in defaults",
		})
	} else {
		results = append(results, checkResult{
			name:    "Config File",
			status:  "ok",
			message: configPath,
		})
	}

	return results
}

func checkProfile() []checkResult {
	var results []checkResult

	path := DaemonConfig.ProfilePath()
	p, err := profile.Load(path)
	if err != nil {
		results = append(results, checkResult{
			name:    "Profile",
			status:  "error",
			message: fmt.Sprintf("%v (the daemon starts with a built-in fallback)", err),
		})
		return results
	}

	items := 0
	for _, m := range p {
		items += len(m.Items)
	}
	if err := p.Validate(); err != nil {
		results = append(results, checkResult{
			name:    "Profile",
			status:  "warn",
			message: fmt.Sprintf("%s loads but has issues: %v", path, err),
		})
		return results
	}

	results = append(results, checkResult{
		name:    "Profile",
		status:  "ok",
		message: fmt.Sprintf("%s (%d menus, %d items)", path, len(p), items),
	})
	return results
}

func checkCapture() []checkResult {
	var results []checkResult

	n := screenshot.NumActiveDisplays()
	if n == 0 {
		results = append(results, checkResult{
			name:    "Displays",
			status:  "error",
			message: "no active displays (is a session running?)",
		})
	} else {
		results = append(results, checkResult{
			name:    "Displays",
			status:  "ok",
			message: fmt.Sprintf("%d active", n),
		})
	}

	// Live probe through the real backend chain
	handle := capture.NewService().NewHandle()
	frame, err := handle.Frame()
	if err != nil {
		results = append(results, checkResult{
			name:    "Screen Capture",
			status:  "error",
			message: fmt.Sprintf("%v", err),
		})
		return results
	}

	b := frame.Image.Bounds()
	results = append(results, checkResult{
		name:    "Screen Capture",
		status:  "ok",
		message: fmt.Sprintf("%dx%d via %s", b.Dx(), b.Dy(), handle.ActiveBackend()),
	})
	return results
}

func checkOCR() []checkResult {
	var results []checkResult

	bin, err := exec.LookPath("tesseract")
	if err != nil {
		results = append(results, checkResult{
			name:    "OCR",
			status:  "warn",
			message: "tesseract not found in PATH (text conditions and regions read as empty)",
		})
		return results
	}

	results = append(results, checkResult{
		name:    "OCR",
		status:  "ok",
		message: fmt.Sprintf("%s (languages: %v)", bin, DaemonConfig.OCR.Languages),
	})
	return results
}

func checkSpeech() []checkResult {
	var results []checkResult

	if !DaemonConfig.Speech.Enabled {
		results = append(results, checkResult{
			name:    "Speech",
			status:  "warn",
			message: "disabled in config",
		})
		return results
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	voices, err := speech.ListVoices(ctx)
	if err != nil {
		results = append(results, checkResult{
			name:    "Speech",
			status:  "warn",
			message: fmt.Sprintf("%v", err),
		})
		return results
	}

	msg := fmt.Sprintf("%d voices available", len(voices))
	if v := DaemonConfig.Speech.Voice; v != "" {
		msg += fmt.Sprintf(" (configured: %s)", v)
	}
	results = append(results, checkResult{
		name:    "Speech",
		status:  "ok",
		message: msg,
	})
	return results
}

func checkPointer() []checkResult {
	var results []checkResult

	if !DaemonConfig.Pointer.Enabled {
		results = append(results, checkResult{
			name:    "Pointer",
			status:  "warn",
			message: "disabled in config",
		})
		return results
	}

	backend := pointer.New().Backend()
	if backend == "none" {
		results = append(results, checkResult{
			name:    "Pointer",
			status:  "warn",
			message: "no pointer tool installed (focus moves are skipped)",
		})
		return results
	}

	results = append(results, checkResult{
		name:    "Pointer",
		status:  "ok",
		message: backend,
	})
	return results
}

func checkHistory() []checkResult {
	var results []checkResult

	if !DaemonConfig.History.Enabled {
		results = append(results, checkResult{
			name:    "History",
			status:  "warn",
			message: "disabled in config",
		})
		return results
	}

	dbPath := DaemonConfig.DBPath()
	info, err := os.Stat(dbPath)
	if os.IsNotExist(err) {
		results = append(results, checkResult{
			name:    "History",
			status:  "warn",
			message: "database not found (created on first run)",
		})
		return results
	}

	results = append(results, checkResult{
		name:    "History",
		status:  "ok",
		message: fmt.Sprintf("%s (%d KB)", dbPath, info.Size()/1024),
	})
	return results
}

func checkDaemon() []checkResult {
	var results []checkResult

	url := fmt.Sprintf("http://%s/health", DaemonConfig.ListenAddr())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, "GET", url, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		results = append(results, checkResult{
			name:    "Daemon",
			status:  "warn",
			message: fmt.Sprintf("not running at %s (start with 'menuvox')", DaemonConfig.ListenAddr()),
		})
		return results
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		results = append(results, checkResult{
			name:    "Daemon",
			status:  "warn",
			message: fmt.Sprintf("unhealthy (status %d)", resp.StatusCode),
		})
		return results
	}

	var health struct {
		Version string `json:"version"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&health)

	results = append(results, checkResult{
		name:    "Daemon",
		status:  "ok",
		message: fmt.Sprintf("running at %s (version %s)", DaemonConfig.ListenAddr(), health.Version),
	})
	return results
}

func checkSystem() []checkResult {
	return []checkResult{{
		name:    "Platform",
		status:  "ok",
		message: fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}}
}

func runFixes(results []checkResult) {
	for _, r := range results {
		if r.status != "error" {
			continue
		}

		switch r.name {
		case "Data Directory", "Profile":
			dir, err := defaults.EnsureDataDir()
			if err != nil {
				fmt.Printf("  \033[31m✗\033[0m Could not initialize %s: %v\n", DaemonConfig.DataDir, err)
			} else {
				fmt.Printf("  \033[32m✓\033[0m Initialized %s with bundled defaults\n", dir)
			}
		case "Displays", "Screen Capture":
			fmt.Println("  Screen capture needs an active desktop session; on Wayland install grim")
		}
	}
}
