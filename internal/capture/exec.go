package capture

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
)

// execTimeout bounds one external screenshot tool invocation.
const execTimeout = 5 * time.Second

// execBackend shells out to an installed screenshot tool. It is the slow
// fallback when the display API cannot deliver (remote sessions, some
// Wayland compositors).
type execBackend struct {
	tool string // resolved executable, empty when none installed
}

func newExecBackend() Backend {
	b := &execBackend{}
	for _, candidate := range execTools() {
		if _, err := exec.LookPath(candidate); err == nil {
			b.tool = candidate
			break
		}
	}
	return b
}

// execTools lists tool candidates in preference order for this platform.
func execTools() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"screencapture"}
	case "windows":
		return []string{"powershell"}
	default:
		return []string{"grim", "maim", "import", "scrot"}
	}
}

func (b *execBackend) Name() string {
	if b.tool == "" {
		return "exec"
	}
	return "exec:" + b.tool
}

func (b *execBackend) Capture() (*image.RGBA, error) {
	if b.tool == "" {
		return nil, fmt.Errorf("no screenshot tool installed")
	}

	path := filepath.Join(os.TempDir(), "menuvox-"+uuid.New().String()[:8]+".png")
	defer os.Remove(path)

	ctx, cancel := context.WithTimeout(context.Background(), execTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.tool, b.args(path)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%s failed: %w (output: %s)", b.tool, err, out)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture output: %w", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode capture output: %w", err)
	}
	return toRGBA(img), nil
}

func (b *execBackend) args(path string) []string {
	switch b.tool {
	case "grim":
		return []string{path}
	case "maim":
		return []string{path}
	case "import":
		return []string{"-window", "root", "-silent", path}
	case "scrot":
		return []string{"-o", path}
	case "screencapture":
		return []string{"-x", "-t", "png", path}
	case "powershell":
		script := fmt.Sprintf(`
Add-Type -AssemblyName System.Windows.Forms
Add-Type -AssemblyName System.Drawing
$bounds = [System.Windows.Forms.SystemInformation]::VirtualScreen
$bmp = New-Object System.Drawing.Bitmap $bounds.Width, $bounds.Height
$g = [System.Drawing.Graphics]::FromImage($bmp)
$g.CopyFromScreen($bounds.Location, [System.Drawing.Point]::Empty, $bounds.Size)
$bmp.Save(%q, [System.Drawing.Imaging.ImageFormat]::Png)
`, path)
		return []string{"-NoProfile", "-Command", script}
	default:
		return []string{path}
	}
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
