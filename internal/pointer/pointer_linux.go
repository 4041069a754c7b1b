//go:build linux

package pointer

import (
	"context"
	"log/slog"
	"os/exec"
	"strconv"
)

// linuxController drives xdotool on X11 or ydotool on Wayland.
type linuxController struct {
	logger  *slog.Logger
	backend string
}

func newPlatformController(logger *slog.Logger) Controller {
	c := &linuxController{logger: logger}
	if _, err := exec.LookPath("xdotool"); err == nil {
		c.backend = "xdotool"
	} else if _, err := exec.LookPath("ydotool"); err == nil {
		c.backend = "ydotool"
	}
	if c.backend == "" {
		logger.Warn("no pointer backend found, install xdotool (X11) or ydotool (Wayland)")
	} else {
		logger.Debug("pointer backend detected", "backend", c.backend)
	}
	return c
}

func (c *linuxController) Backend() string {
	if c.backend == "" {
		return "none"
	}
	return c.backend
}

func (c *linuxController) MoveTo(ctx context.Context, x, y int) error {
	switch c.backend {
	case "xdotool":
		return run(ctx, "xdotool", "mousemove", strconv.Itoa(x), strconv.Itoa(y))
	case "ydotool":
		return run(ctx, "ydotool", "mousemove", "--absolute", "-x", strconv.Itoa(x), "-y", strconv.Itoa(y))
	}
	return ErrNoBackend
}

func (c *linuxController) ClickAt(ctx context.Context, x, y int) error {
	switch c.backend {
	case "xdotool":
		return run(ctx, "xdotool", "mousemove", strconv.Itoa(x), strconv.Itoa(y),
			"click", "--repeat", "1", "1")
	case "ydotool":
		if err := c.MoveTo(ctx, x, y); err != nil {
			return err
		}
		// 0xC0 is press+release of the left button.
		return run(ctx, "ydotool", "click", "0xC0")
	}
	return ErrNoBackend
}
