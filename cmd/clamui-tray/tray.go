package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"fyne.io/systray"
	"github.com/rs/zerolog"

	"github.com/slaythrax/clamui-sub000/internal/logging"
	"github.com/slaythrax/clamui-sub000/internal/trayproto"
	"github.com/slaythrax/clamui-sub000/internal/trayservice"
	"github.com/slaythrax/clamui-sub000/internal/uiloop"
)

// maxProfileSlots bounds the scan-profile submenu. systray cannot remove
// menu items, so slots are pre-allocated and shown or hidden as profiles
// come and go.
const maxProfileSlots = 10

// trayUI drives the systray widget. It implements trayservice.UI; every
// method runs on the dispatch loop, so no locking is needed around the menu
// items themselves. Only the slot-to-profile mapping is shared with the
// click goroutines.
type trayUI struct {
	log  zerolog.Logger
	svc  *trayservice.Service
	loop *uiloop.Loop
	done chan struct{}

	mStatus       *systray.MenuItem
	mToggleWindow *systray.MenuItem
	mQuickScan    *systray.MenuItem
	mFullScan     *systray.MenuItem
	mProfilesRoot *systray.MenuItem
	mUpdate       *systray.MenuItem
	mQuit         *systray.MenuItem

	profileSlots [maxProfileSlots]*systray.MenuItem

	slotMu       sync.RWMutex
	slotProfiles [maxProfileSlots]string
}

var ui *trayUI

// announced flips once the ready event is on stdout. If systray.Run returns
// without it, the indicator never initialized (no D-Bus session, no display)
// and the supervisor must hear about it instead of waiting out its ready
// timeout.
var announced atomic.Bool

func runTray() {
	systray.Run(onReady, onExit)
	if !announced.Load() {
		reportStartupFailure(os.Stdout)
		os.Exit(1)
	}
}

// reportStartupFailure emits the error event in place of ready.
func reportStartupFailure(out io.Writer) {
	svc := trayservice.New(trayservice.Config{
		Out:    out,
		Logger: logging.New("tray"),
	})
	svc.FailStartup("tray indicator could not be initialized")
}

func onReady() {
	ui = &trayUI{
		log:  logging.New("tray"),
		loop: uiloop.New(),
		done: make(chan struct{}),
	}
	ui.svc = trayservice.New(trayservice.Config{
		In:         os.Stdin,
		Out:        os.Stdout,
		Logger:     logging.New("trayservice"),
		Dispatcher: ui.loop,
		UI:         ui,
	})

	systray.SetIcon(iconProtected)
	systray.SetTitle("ClamUI")
	systray.SetTooltip("ClamUI - Protected")

	ui.mStatus = systray.AddMenuItem("Protected", "Current protection state")
	ui.mStatus.Disable()

	systray.AddSeparator()

	ui.mToggleWindow = systray.AddMenuItem("Hide Window", "Show or hide the main window")

	systray.AddSeparator()

	ui.mQuickScan = systray.AddMenuItem("Quick Scan", "Scan common infection points")
	ui.mFullScan = systray.AddMenuItem("Full Scan", "Scan the whole home directory")

	ui.mProfilesRoot = systray.AddMenuItem("Scan Profiles", "Select the active scan profile")
	for i := range ui.profileSlots {
		ui.profileSlots[i] = ui.mProfilesRoot.AddSubMenuItemCheckbox("", "", false)
		ui.profileSlots[i].Hide()
	}
	ui.mProfilesRoot.Hide()

	systray.AddSeparator()

	ui.mUpdate = systray.AddMenuItem("Update Definitions", "Download the latest virus definitions")

	systray.AddSeparator()

	ui.mQuit = systray.AddMenuItem("Quit ClamUI", "Exit the application")

	go ui.loop.Run()
	go ui.handleClicks()
	go ui.watchProfileSlots()

	// The supervisor holds all commands until this line arrives.
	if err := ui.svc.Announce(); err != nil {
		ui.log.Error().Err(err).Msg("cannot announce on stdout, exiting")
		systray.Quit()
		return
	}
	announced.Store(true)

	go func() {
		if err := ui.svc.Run(); err != nil {
			ui.log.Error().Err(err).Msg("command loop failed")
		}
	}()
}

func onExit() {
	if ui != nil {
		close(ui.done)
		ui.loop.Stop()
	}
}

// SetStatus updates the icon, tooltip and status entry.
func (t *trayUI) SetStatus(status trayproto.Status) {
	systray.SetIcon(iconFor(status))
	label := statusLabel(status)
	systray.SetTooltip("ClamUI - " + label)
	t.mStatus.SetTitle(label)
}

// SetProgress folds scan progress into the status entry. Zero clears it.
func (t *trayUI) SetProgress(percentage int) {
	if percentage == 0 {
		t.mStatus.SetTitle(statusLabel(t.svc.Snapshot().Status))
		return
	}
	t.mStatus.SetTitle(fmt.Sprintf("Scanning - %d%%", percentage))
}

// SetWindowVisible relabels the toggle entry to match the window state.
func (t *trayUI) SetWindowVisible(visible bool) {
	if visible {
		t.mToggleWindow.SetTitle("Hide Window")
	} else {
		t.mToggleWindow.SetTitle("Show Window")
	}
}

// SetProfiles rebuilds the profile submenu in the pre-allocated slots.
func (t *trayUI) SetProfiles(profiles []trayproto.Profile, currentID string) {
	t.slotMu.Lock()
	for i := range t.slotProfiles {
		t.slotProfiles[i] = ""
	}
	for i, p := range profiles {
		if i >= maxProfileSlots {
			t.log.Warn().Int("count", len(profiles)).Msg("too many profiles, truncating submenu")
			break
		}
		t.slotProfiles[i] = p.ID
	}
	t.slotMu.Unlock()

	for i := range t.profileSlots {
		t.profileSlots[i].Hide()
	}
	if len(profiles) == 0 {
		t.mProfilesRoot.Hide()
		return
	}
	t.mProfilesRoot.Show()
	for i, p := range profiles {
		if i >= maxProfileSlots {
			break
		}
		slot := t.profileSlots[i]
		slot.SetTitle(p.Name)
		if p.ID == currentID {
			slot.Check()
		} else {
			slot.Uncheck()
		}
		slot.Show()
	}
}

// Quit tears down the widget; systray then invokes onExit.
func (t *trayUI) Quit() {
	systray.Quit()
}

func (t *trayUI) handleClicks() {
	for {
		select {
		case <-t.mToggleWindow.ClickedCh:
			t.svc.EmitMenuAction(trayproto.MenuToggleWindow, "")

		case <-t.mQuickScan.ClickedCh:
			t.svc.EmitMenuAction(trayproto.MenuQuickScan, "")

		case <-t.mFullScan.ClickedCh:
			t.svc.EmitMenuAction(trayproto.MenuFullScan, "")

		case <-t.mUpdate.ClickedCh:
			t.svc.EmitMenuAction(trayproto.MenuUpdate, "")

		case <-t.mQuit.ClickedCh:
			// The main process decides when to actually shut down; it
			// answers with a quit command.
			t.svc.EmitMenuAction(trayproto.MenuQuit, "")

		case <-t.done:
			return
		}
	}
}

// watchProfileSlots runs one goroutine per slot because select cases must be
// static.
func (t *trayUI) watchProfileSlots() {
	for i := range t.profileSlots {
		go func(slot int) {
			for {
				select {
				case <-t.profileSlots[slot].ClickedCh:
					t.profileClicked(slot)
				case <-t.done:
					return
				}
			}
		}(i)
	}
}

func (t *trayUI) profileClicked(slot int) {
	t.slotMu.RLock()
	profileID := t.slotProfiles[slot]
	t.slotMu.RUnlock()
	if profileID == "" {
		return
	}
	t.svc.EmitMenuAction(trayproto.MenuSelectProfile, profileID)
}

func statusLabel(status trayproto.Status) string {
	switch status {
	case trayproto.StatusWarning:
		return "Attention Needed"
	case trayproto.StatusScanning:
		return "Scanning"
	case trayproto.StatusThreat:
		return "Threat Detected"
	default:
		return "Protected"
	}
}
