package ui

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"pixiedl/pkg/config"
)

// NotificationSender interface for platform-specific notification implementations
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", title, message).Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	return exec.Command("osascript", "-e", script).Run()
}

// WindowsNotificationSender sends notifications on Windows using PowerShell
type WindowsNotificationSender struct{}

func (w *WindowsNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`
		[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
		[Windows.Data.Xml.Dom.XmlDocument, Windows.Data.Xml.Dom.XmlDocument, ContentType = WindowsRuntime] | Out-Null
		$xml = @"
<toast>
	<visual>
		<binding template="ToastText02">
			<text id="1">%s</text>
			<text id="2">%s</text>
		</binding>
	</visual>
</toast>
"@
		$doc = [Windows.Data.Xml.Dom.XmlDocument]::new()
		$doc.LoadXml($xml)
		$toast = [Windows.UI.Notifications.ToastNotification]::new($doc)
		[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("pixiedl").Show($toast)
	`, xmlEscape(title), xmlEscape(message))

	return exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script).Run()
}

func xmlEscape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}

// PlatformSender returns the desktop sender for the running OS, or nil
func PlatformSender() NotificationSender {
	switch runtime.GOOS {
	case "linux":
		return &LinuxNotificationSender{}
	case "darwin":
		return &MacOSNotificationSender{}
	case "windows":
		return &WindowsNotificationSender{}
	default:
		return nil
	}
}

// Notifier announces the end of a run on the console and, for the
// "desktop" notification type, on the desktop
type Notifier struct {
	console *Console
	sender  NotificationSender
	cfg     config.NotificationConfig
}

// NewNotifier creates a notifier honouring cfg. A disabled config yields a
// notifier that does nothing.
func NewNotifier(console *Console, cfg config.NotificationConfig) *Notifier {
	n := &Notifier{console: console, cfg: cfg}
	if cfg.Enabled && cfg.NotificationType == "desktop" {
		n.sender = PlatformSender()
	}
	return n
}

// NewNotifierWithSender creates an enabled notifier with an explicit sender
func NewNotifierWithSender(console *Console, cfg config.NotificationConfig, sender NotificationSender) *Notifier {
	return &Notifier{console: console, cfg: cfg, sender: sender}
}

// Complete reports a finished run
func (n *Notifier) Complete(title, message string) {
	if !n.cfg.Enabled || !n.cfg.OnComplete {
		return
	}
	n.console.Println(fmt.Sprintf("\n%s: %s", n.console.paint(Cyan, title), n.console.paint(Green, message)))
	n.send(title, message)
}

// Error reports a failed run
func (n *Notifier) Error(title, message string) {
	if !n.cfg.Enabled || !n.cfg.OnError {
		return
	}
	n.console.Println(fmt.Sprintf("\n%s: %s", n.console.paint(Red, title), n.console.paint(Red, message)))
	n.send(title, message)
}

func (n *Notifier) send(title, message string) {
	if n.sender == nil {
		return
	}
	// notifications are best effort
	_ = n.sender.Send(title, message)
}
