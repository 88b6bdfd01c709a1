package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Profile is one scan profile: a named set of paths the scanner walks.
type Profile struct {
	ID    string   `yaml:"id"`
	Name  string   `yaml:"name"`
	Paths []string `yaml:"paths"`
}

// SchedulerSettings controls periodic background scans.
type SchedulerSettings struct {
	Enabled         bool `yaml:"enabled"`
	IntervalMinutes int  `yaml:"interval_minutes"`
}

// UpdaterSettings controls signature database downloads.
type UpdaterSettings struct {
	Mirror string `yaml:"mirror"`
}

// NotificationSettings controls desktop notifications.
type NotificationSettings struct {
	Enabled bool `yaml:"enabled"`
}

// TraySettings controls the tray subprocess. BinPath overrides the default
// of a clamui-tray binary next to the main executable.
type TraySettings struct {
	Enabled bool   `yaml:"enabled"`
	BinPath string `yaml:"bin_path,omitempty"`
}

// Settings is the full on-disk configuration.
type Settings struct {
	Profiles       []Profile            `yaml:"profiles"`
	CurrentProfile string               `yaml:"current_profile"`
	Scanner        ScannerSettings      `yaml:"scanner"`
	Scheduler      SchedulerSettings    `yaml:"scheduler"`
	Updater        UpdaterSettings      `yaml:"updater"`
	Notifications  NotificationSettings `yaml:"notifications"`
	Tray           TraySettings         `yaml:"tray"`
}

// ScannerSettings controls how clamscan is invoked.
type ScannerSettings struct {
	BinPath string `yaml:"bin_path"`
}

// DefaultMirror serves the official ClamAV signature databases.
const DefaultMirror = "https://database.clamav.net"

// Default returns the settings used when no file exists yet.
func Default() *Settings {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Settings{
		Profiles: []Profile{
			{
				ID:   "quick",
				Name: "Quick Scan",
				Paths: []string{
					filepath.Join(home, "Downloads"),
					filepath.Join(home, "Desktop"),
				},
			},
			{
				ID:    "full",
				Name:  "Full Scan",
				Paths: []string{home},
			},
		},
		CurrentProfile: "quick",
		Scanner:        ScannerSettings{BinPath: "clamscan"},
		Scheduler:      SchedulerSettings{Enabled: false, IntervalMinutes: 24 * 60},
		Updater:        UpdaterSettings{Mirror: DefaultMirror},
		Notifications:  NotificationSettings{Enabled: true},
		Tray:           TraySettings{Enabled: true},
	}
}

// Load reads settings from path. A missing file yields the defaults; a
// present but unreadable or invalid file is an error.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}

	s := Default()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	s.normalize()
	return s, nil
}

// Save writes settings atomically: a temp file in the same directory is
// renamed over the destination, so a crash never leaves a half-written file.
func (s *Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close settings: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("install settings: %w", err)
	}
	return nil
}

// ProfileByID returns the profile with the given id.
func (s *Settings) ProfileByID(id string) (Profile, bool) {
	for _, p := range s.Profiles {
		if p.ID == id {
			return p, true
		}
	}
	return Profile{}, false
}

// Current returns the selected profile, falling back to the first one.
func (s *Settings) Current() (Profile, bool) {
	if p, ok := s.ProfileByID(s.CurrentProfile); ok {
		return p, true
	}
	if len(s.Profiles) > 0 {
		return s.Profiles[0], true
	}
	return Profile{}, false
}

// normalize repairs values a hand-edited file can break.
func (s *Settings) normalize() {
	if s.Scanner.BinPath == "" {
		s.Scanner.BinPath = "clamscan"
	}
	if s.Updater.Mirror == "" {
		s.Updater.Mirror = DefaultMirror
	}
	if s.Scheduler.IntervalMinutes <= 0 {
		s.Scheduler.IntervalMinutes = 24 * 60
	}

	// Drop profiles without an id; they cannot be selected or scanned.
	valid := s.Profiles[:0]
	for _, p := range s.Profiles {
		if p.ID == "" {
			continue
		}
		valid = append(valid, p)
	}
	s.Profiles = valid

	if _, ok := s.ProfileByID(s.CurrentProfile); !ok && len(s.Profiles) > 0 {
		s.CurrentProfile = s.Profiles[0].ID
	}
}
