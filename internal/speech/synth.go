package speech

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// commandSynth speaks by running an external TTS command per utterance.
type commandSynth struct {
	name string
	bin  string
	argv func(text string) []string
}

func (s *commandSynth) Name() string { return s.name }

func (s *commandSynth) Speak(ctx context.Context, text string) error {
	cmd := exec.CommandContext(ctx, s.bin, s.argv(text)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", s.name, err, msg)
		}
		return fmt.Errorf("%s: %w", s.name, err)
	}
	return nil
}

// unavailableSynth stands in when no TTS command is installed. Every Speak
// fails with an install hint, which the queue logs and survives.
type unavailableSynth struct {
	hint string
}

func (s unavailableSynth) Name() string { return "none" }

func (s unavailableSynth) Speak(context.Context, string) error {
	return fmt.Errorf("no speech synthesizer available, %s", s.hint)
}

// parseVoiceColumn extracts one column from a table-shaped tool output,
// skipping the header line.
func parseVoiceColumn(out string, col int) []string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	var voices []string
	for i, line := range lines {
		if i == 0 {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) > col {
			voices = append(voices, fields[col])
		}
	}
	return voices
}
