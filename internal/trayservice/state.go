package trayservice

import (
	"github.com/slaythrax/clamui-sub000/internal/trayproto"
)

// MenuState is the tray service's view of what the indicator should show.
// It is pure bookkeeping: no widget calls, no I/O. Each setter reports
// whether anything actually changed so the caller can skip redundant widget
// updates.
type MenuState struct {
	Status           trayproto.Status
	Percentage       int
	WindowVisible    bool
	Profiles         []trayproto.Profile
	CurrentProfileID string
}

// NewMenuState returns the state shown before any command arrives.
func NewMenuState() *MenuState {
	return &MenuState{
		Status:        trayproto.StatusProtected,
		WindowVisible: true,
	}
}

// SetStatus records s. Values outside the protocol's status set are ignored
// so a misbehaving peer cannot blank the indicator.
func (m *MenuState) SetStatus(s trayproto.Status) bool {
	if !trayproto.ValidStatus(s) {
		return false
	}
	if m.Status == s {
		return false
	}
	m.Status = s
	return true
}

// SetProgress records a percentage, clamped to [0, 100].
func (m *MenuState) SetProgress(p int) bool {
	if p < 0 {
		p = 0
	} else if p > 100 {
		p = 100
	}
	if m.Percentage == p {
		return false
	}
	m.Percentage = p
	return true
}

// SetWindowVisible records whether the main window is currently shown.
func (m *MenuState) SetWindowVisible(v bool) bool {
	if m.WindowVisible == v {
		return false
	}
	m.WindowVisible = v
	return true
}

// SetProfiles replaces the profile list. A list identical to the current one
// (same entries, same order, same selection) reports no change, so repeated
// update_profiles commands do not rebuild the submenu.
func (m *MenuState) SetProfiles(profiles []trayproto.Profile, currentID string) bool {
	if currentID == m.CurrentProfileID && equalProfiles(profiles, m.Profiles) {
		return false
	}
	m.Profiles = make([]trayproto.Profile, len(profiles))
	copy(m.Profiles, profiles)
	m.CurrentProfileID = currentID
	return true
}

func equalProfiles(a, b []trayproto.Profile) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
