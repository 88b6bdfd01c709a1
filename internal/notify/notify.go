// Package notify provides cross-platform desktop notifications for ClamUI.
// It uses github.com/gen2brain/beeep for cross-platform notification support.
package notify

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"
)

// Notifier handles desktop notifications. Sending is best effort; a desktop
// without a notification daemon just logs a warning.
type Notifier struct {
	log     zerolog.Logger
	mu      sync.RWMutex
	enabled bool
}

// New creates a notifier.
func New(log zerolog.Logger, enabled bool) *Notifier {
	return &Notifier{log: log, enabled: enabled}
}

// SetEnabled enables or disables notifications.
func (n *Notifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// IsEnabled returns whether notifications are enabled.
func (n *Notifier) IsEnabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled
}

// ThreatFound announces a quarantined threat. This one uses beeep.Alert for
// prominence; a detected threat must not scroll by unseen.
func (n *Notifier) ThreatFound(path, signature string) {
	if !n.IsEnabled() {
		return
	}

	title := "ClamUI: Threat Detected"
	message := fmt.Sprintf("%s\nFile: %s\nThe file has been quarantined.",
		truncate(signature, 60), shortenPath(path))

	if err := beeep.Alert(title, message, ""); err != nil {
		if err := n.send(title, message); err != nil {
			n.log.Warn().Err(err).Str("path", path).Msg("failed to send threat notification")
		}
	}
}

// ScanComplete announces a finished scan.
func (n *Notifier) ScanComplete(filesScanned, threatsFound int, duration time.Duration) {
	if !n.IsEnabled() {
		return
	}

	title := "ClamUI: Scan Complete"
	var message string
	if threatsFound == 0 {
		message = fmt.Sprintf("%d files scanned in %s. No threats found.",
			filesScanned, duration.Round(time.Second))
	} else {
		message = fmt.Sprintf("%d files scanned in %s. %d threat(s) quarantined.",
			filesScanned, duration.Round(time.Second), threatsFound)
	}

	if err := n.send(title, message); err != nil {
		n.log.Warn().Err(err).Msg("failed to send scan complete notification")
	}
}

// DefinitionsUpdated announces the outcome of a definitions update.
func (n *Notifier) DefinitionsUpdated(err error) {
	if !n.IsEnabled() {
		return
	}

	title := "ClamUI"
	message := "Virus definitions are up to date."
	if err != nil {
		message = "Definitions update failed: " + truncate(err.Error(), 100)
	}

	if err := n.send(title, message); err != nil {
		n.log.Warn().Err(err).Msg("failed to send definitions notification")
	}
}

// TrayUnavailable warns that the tray indicator is gone; the app keeps
// running without it.
func (n *Notifier) TrayUnavailable() {
	if !n.IsEnabled() {
		return
	}

	title := "ClamUI"
	message := "The tray indicator is unavailable. ClamUI keeps running; use the main window."

	if err := n.send(title, message); err != nil {
		n.log.Warn().Err(err).Msg("failed to send tray unavailable notification")
	}
}

func (n *Notifier) send(title, message string) error {
	// beeep.Notify is cross-platform: D-Bus on Linux, toast on Windows,
	// NSUserNotificationCenter on macOS.
	return beeep.Notify(title, message, "")
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// shortenPath abbreviates a long path for display in notifications.
func shortenPath(path string) string {
	const maxLen = 60

	if len(path) <= maxLen {
		return path
	}

	_, file := filepath.Split(path)
	parentDir := filepath.Base(filepath.Dir(path))
	short := filepath.Join("...", parentDir, file)

	if len(short) > maxLen {
		return "..." + path[len(path)-(maxLen-3):]
	}
	return short
}
