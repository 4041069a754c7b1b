//go:build !linux && !darwin && !windows

package pointer

import (
	"context"
	"log/slog"
)

type stubController struct{}

func newPlatformController(logger *slog.Logger) Controller {
	logger.Warn("pointer control is not supported on this platform")
	return stubController{}
}

func (stubController) Backend() string { return "none" }

func (stubController) MoveTo(context.Context, int, int) error { return ErrNoBackend }

func (stubController) ClickAt(context.Context, int, int) error { return ErrNoBackend }
