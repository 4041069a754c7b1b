//go:build !linux && !darwin && !windows

package speech

import (
	"context"
	"fmt"
)

func newPlatformSynthesizer(string) Synthesizer {
	return unavailableSynth{hint: "speech is not supported on this platform"}
}

// ListVoices is unsupported on this platform.
func ListVoices(context.Context) ([]string, error) {
	return nil, fmt.Errorf("voice listing is not supported on this platform")
}
