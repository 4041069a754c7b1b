// Package notify mirrors menu activity as native desktop notifications. It is
// the visual counterpart to spoken announcements for users who run silent.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"

	"github.com/menuvox/menuvox/internal/events"
)

// runFunc executes the platform notification tool.
type runFunc func(ctx context.Context, bin string, args ...string) error

// Notifier sends desktop notifications through the platform tool. Failures
// are logged and swallowed; a missing tool must never break navigation.
type Notifier struct {
	logger *slog.Logger
	run    runFunc
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) {
		if l != nil {
			n.logger = l
		}
	}
}

// WithRunner replaces the process runner. Tests use this to capture the
// invocation instead of spawning a tool.
func WithRunner(run runFunc) Option {
	return func(n *Notifier) {
		if run != nil {
			n.run = run
		}
	}
}

// New builds a Notifier for the current platform.
func New(opts ...Option) *Notifier {
	n := &Notifier{
		logger: slog.Default().With("component", "notify"),
		run:    runCommand,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Send displays one native desktop notification.
func (n *Notifier) Send(ctx context.Context, title, body string) {
	title = sanitize(title)
	body = sanitize(body)

	var err error
	switch runtime.GOOS {
	case "darwin":
		script := fmt.Sprintf("display notification %q with title %q", body, title)
		err = n.run(ctx, "osascript", "-e", script)
	case "linux":
		err = n.run(ctx, "notify-send", "--app-name=Menuvox", title, body)
	case "windows":
		err = n.run(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", toastScript(title, body))
	default:
		return
	}
	if err != nil {
		n.logger.Debug("notification not delivered", "error", err)
	}
}

// Attach subscribes the notifier to menu changes and profile loads on bus.
// Focus changes are not mirrored. Returns an unsubscribe func.
func (n *Notifier) Attach(bus *events.Bus) func() {
	menuSub := events.Subscribe(bus, events.TopicMenuChanged,
		func(ctx context.Context, mc events.MenuChanged) error {
			switch {
			case mc.MenuID == "":
				n.Send(ctx, "Menuvox", "No menu active")
			case mc.Manual:
				n.Send(ctx, "Menuvox", "Menu activated: "+mc.MenuID)
			default:
				n.Send(ctx, "Menuvox", "Menu detected: "+mc.MenuID)
			}
			return nil
		})
	profSub := events.Subscribe(bus, events.TopicProfileLoaded,
		func(ctx context.Context, pl events.ProfileLoaded) error {
			n.Send(ctx, "Menuvox", fmt.Sprintf("Profile loaded: %d menus", pl.Menus))
			return nil
		})
	return func() {
		menuSub.Unsubscribe()
		profSub.Unsubscribe()
	}
}

func toastScript(title, body string) string {
	return fmt.Sprintf(`
[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] > $null
$template = [Windows.UI.Notifications.ToastNotificationManager]::GetTemplateContent([Windows.UI.Notifications.ToastTemplateType]::ToastText02)
$textNodes = $template.GetElementsByTagName('text')
$textNodes.Item(0).AppendChild($template.CreateTextNode('%s')) > $null
$textNodes.Item(1).AppendChild($template.CreateTextNode('%s')) > $null
$toast = [Windows.UI.Notifications.ToastNotification]::new($template)
[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier('Menuvox').Show($toast)
`, title, body)
}

// sanitize strips characters that would break shell quoting and truncates to
// notification length.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "'", "")
	s = strings.ReplaceAll(s, "\\", "")
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	return s
}

func runCommand(ctx context.Context, bin string, args ...string) error {
	path, err := exec.LookPath(bin)
	if err != nil {
		return fmt.Errorf("%s not installed", bin)
	}
	return exec.CommandContext(ctx, path, args...).Run()
}
