//go:build windows

package pointer

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
)

// mouseOpsType exposes the user32 cursor calls to PowerShell.
const mouseOpsType = `
Add-Type -TypeDefinition @"
using System;
using System.Runtime.InteropServices;
public class MouseOps {
    [DllImport("user32.dll")]
    public static extern bool SetCursorPos(int X, int Y);
    [DllImport("user32.dll")]
    public static extern void mouse_event(uint dwFlags, int dx, int dy, uint dwData, int dwExtraInfo);
    public const uint MOUSEEVENTF_LEFTDOWN = 0x02;
    public const uint MOUSEEVENTF_LEFTUP = 0x04;
}
"@
`

type windowsController struct {
	logger *slog.Logger
}

func newPlatformController(logger *slog.Logger) Controller {
	if _, err := exec.LookPath("powershell"); err != nil {
		logger.Warn("powershell not found, pointer control unavailable")
	}
	return &windowsController{logger: logger}
}

func (c *windowsController) Backend() string { return "powershell" }

func (c *windowsController) MoveTo(ctx context.Context, x, y int) error {
	script := fmt.Sprintf("%s[MouseOps]::SetCursorPos(%d, %d)", mouseOpsType, x, y)
	return run(ctx, "powershell", "-NoProfile", "-Command", script)
}

func (c *windowsController) ClickAt(ctx context.Context, x, y int) error {
	script := fmt.Sprintf(`%s[MouseOps]::SetCursorPos(%d, %d)
Start-Sleep -Milliseconds 50
[MouseOps]::mouse_event([MouseOps]::MOUSEEVENTF_LEFTDOWN, 0, 0, 0, 0)
[MouseOps]::mouse_event([MouseOps]::MOUSEEVENTF_LEFTUP, 0, 0, 0, 0)`, mouseOpsType, x, y)
	return run(ctx, "powershell", "-NoProfile", "-Command", script)
}
