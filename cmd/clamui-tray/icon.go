package main

import (
	_ "embed"

	"github.com/slaythrax/clamui-sub000/internal/trayproto"
)

// Tray icons per protection state, 16x16 PNG. fyne.io/systray handles PNG on
// every supported platform.

//go:embed assets/icon_protected.png
var iconProtected []byte

//go:embed assets/icon_warning.png
var iconWarning []byte

//go:embed assets/icon_scanning.png
var iconScanning []byte

//go:embed assets/icon_threat.png
var iconThreat []byte

func iconFor(status trayproto.Status) []byte {
	switch status {
	case trayproto.StatusWarning:
		return iconWarning
	case trayproto.StatusScanning:
		return iconScanning
	case trayproto.StatusThreat:
		return iconThreat
	default:
		return iconProtected
	}
}
