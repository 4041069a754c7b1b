// Package pointer moves and clicks the mouse through the platform's input
// injection tool: xdotool or ydotool on Linux, cliclick with an AppleScript
// fallback on macOS, and PowerShell user32 calls on Windows.
package pointer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// ErrNoBackend is returned when no input injection tool is installed.
var ErrNoBackend = errors.New("no pointer backend available")

// Controller is the pointer device the command worker drives.
type Controller interface {
	// MoveTo warps the cursor to the absolute screen position.
	MoveTo(ctx context.Context, x, y int) error

	// ClickAt moves to the absolute screen position and left-clicks.
	ClickAt(ctx context.Context, x, y int) error

	// Backend names the tool in use, for status and diagnostics.
	Backend() string
}

// Option configures New.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the controller's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// New returns the controller for the current platform.
func New(opts ...Option) Controller {
	o := options{logger: slog.Default().With("component", "pointer")}
	for _, opt := range opts {
		opt(&o)
	}
	return newPlatformController(o.logger)
}

// run executes an injection command and folds its output into the error.
func run(ctx context.Context, bin string, args ...string) error {
	out, err := exec.CommandContext(ctx, bin, args...).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", bin, err, msg)
		}
		return fmt.Errorf("%s: %w", bin, err)
	}
	return nil
}
