//go:build windows

package speech

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// newPlatformSynthesizer drives System.Speech through PowerShell.
func newPlatformSynthesizer(voice string) Synthesizer {
	bin, err := exec.LookPath("powershell")
	if err != nil {
		return unavailableSynth{hint: "powershell was not found on PATH"}
	}
	return &commandSynth{
		name: "powershell",
		bin:  bin,
		argv: func(text string) []string {
			var b strings.Builder
			b.WriteString("Add-Type -AssemblyName System.Speech; ")
			b.WriteString("$s = New-Object System.Speech.Synthesis.SpeechSynthesizer; ")
			if voice != "" {
				fmt.Fprintf(&b, "$s.SelectVoice('%s'); ", psQuote(voice))
			}
			fmt.Fprintf(&b, "$s.Speak('%s')", psQuote(text))
			return []string{"-NoProfile", "-Command", b.String()}
		},
	}
}

// ListVoices returns the installed System.Speech voices.
func ListVoices(ctx context.Context) ([]string, error) {
	script := "Add-Type -AssemblyName System.Speech; " +
		"(New-Object System.Speech.Synthesis.SpeechSynthesizer).GetInstalledVoices() | " +
		"ForEach-Object { $_.VoiceInfo.Name }"
	out, err := exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command", script).Output()
	if err != nil {
		return nil, fmt.Errorf("listing voices: %w", err)
	}
	var voices []string
	for _, line := range strings.Split(string(out), "\n") {
		if v := strings.TrimSpace(line); v != "" {
			voices = append(voices, v)
		}
	}
	return voices, nil
}

// psQuote escapes a string for a single-quoted PowerShell literal.
func psQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
