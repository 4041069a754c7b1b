//go:build linux

package speech

import (
	"context"
	"fmt"
	"os/exec"
)

// newPlatformSynthesizer prefers speech-dispatcher and falls back to espeak.
func newPlatformSynthesizer(voice string) Synthesizer {
	if bin, err := exec.LookPath("spd-say"); err == nil {
		return &commandSynth{
			name: "spd-say",
			bin:  bin,
			argv: func(text string) []string {
				args := []string{"-w"}
				if voice != "" {
					args = append(args, "-t", voice)
				}
				return append(args, text)
			},
		}
	}
	if bin, err := exec.LookPath("espeak"); err == nil {
		return &commandSynth{
			name: "espeak",
			bin:  bin,
			argv: func(text string) []string {
				var args []string
				if voice != "" {
					args = append(args, "-v", voice)
				}
				return append(args, text)
			},
		}
	}
	return unavailableSynth{hint: "install speech-dispatcher (spd-say) or espeak"}
}

// ListVoices returns the voices of the installed synthesizer.
func ListVoices(ctx context.Context) ([]string, error) {
	if bin, err := exec.LookPath("spd-say"); err == nil {
		out, err := exec.CommandContext(ctx, bin, "-L").Output()
		if err != nil {
			return nil, fmt.Errorf("spd-say -L: %w", err)
		}
		return parseVoiceColumn(string(out), 0), nil
	}
	if bin, err := exec.LookPath("espeak"); err == nil {
		out, err := exec.CommandContext(ctx, bin, "--voices").Output()
		if err != nil {
			return nil, fmt.Errorf("espeak --voices: %w", err)
		}
		// espeak prints "Pty Language Age/Gender VoiceName ...".
		return parseVoiceColumn(string(out), 3), nil
	}
	return nil, fmt.Errorf("no speech synthesizer installed, install speech-dispatcher (spd-say) or espeak")
}
