//go:build darwin

package pointer

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
)

// darwinController prefers cliclick (brew install cliclick) and falls back
// to AppleScript for clicks. AppleScript cannot move the cursor on its own,
// so moves require cliclick.
type darwinController struct {
	logger      *slog.Logger
	useCliclick bool
}

func newPlatformController(logger *slog.Logger) Controller {
	_, err := exec.LookPath("cliclick")
	c := &darwinController{logger: logger, useCliclick: err == nil}
	if !c.useCliclick {
		logger.Warn("cliclick not found, pointer moves unavailable (brew install cliclick)")
	}
	return c
}

func (c *darwinController) Backend() string {
	if c.useCliclick {
		return "cliclick"
	}
	return "osascript"
}

func (c *darwinController) MoveTo(ctx context.Context, x, y int) error {
	if !c.useCliclick {
		return fmt.Errorf("%w: moves require cliclick", ErrNoBackend)
	}
	return run(ctx, "cliclick", fmt.Sprintf("m:%d,%d", x, y))
}

func (c *darwinController) ClickAt(ctx context.Context, x, y int) error {
	if c.useCliclick {
		return run(ctx, "cliclick", fmt.Sprintf("c:%d,%d", x, y))
	}
	script := fmt.Sprintf(`tell application "System Events" to click at {%d, %d}`, x, y)
	return run(ctx, "osascript", "-e", script)
}
