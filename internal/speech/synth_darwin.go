//go:build darwin

package speech

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// newPlatformSynthesizer uses the say command that ships with macOS.
func newPlatformSynthesizer(voice string) Synthesizer {
	bin, err := exec.LookPath("say")
	if err != nil {
		return unavailableSynth{hint: "the say command was not found on PATH"}
	}
	return &commandSynth{
		name: "say",
		bin:  bin,
		argv: func(text string) []string {
			if voice != "" {
				return []string{"-v", voice, text}
			}
			return []string{text}
		},
	}
}

// ListVoices returns the voices known to the say command.
func ListVoices(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, "say", "-v", "?").Output()
	if err != nil {
		return nil, fmt.Errorf("say -v ?: %w", err)
	}
	var voices []string
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 {
			voices = append(voices, fields[0])
		}
	}
	return voices, nil
}
