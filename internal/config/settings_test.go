package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "settings.yaml"))
	require.NoError(t, err)

	require.Equal(t, "quick", s.CurrentProfile)
	require.Len(t, s.Profiles, 2)
	require.Equal(t, DefaultMirror, s.Updater.Mirror)
	require.True(t, s.Notifications.Enabled)
	require.True(t, s.Tray.Enabled)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	s := Default()
	s.CurrentProfile = "full"
	s.Scheduler.Enabled = true
	s.Scheduler.IntervalMinutes = 60
	s.Profiles = append(s.Profiles, Profile{
		ID:    "media",
		Name:  "Media Drive",
		Paths: []string{"/mnt/media"},
	})

	require.NoError(t, s.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "full", loaded.CurrentProfile)
	require.True(t, loaded.Scheduler.Enabled)
	require.Equal(t, 60, loaded.Scheduler.IntervalMinutes)
	require.Len(t, loaded.Profiles, 3)
	require.Equal(t, []string{"/mnt/media"}, loaded.Profiles[2].Paths)
}

func TestSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	require.NoError(t, Default().Save(path))

	// No temp files may survive the save.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "settings.yaml", entries[0].Name())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profiles: [unclosed"), 0600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestNormalizeRepairsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := `
profiles:
  - id: ""
    name: Nameless
  - id: docs
    name: Documents
    paths: [~/Documents]
current_profile: vanished
scheduler:
  enabled: true
  interval_minutes: -10
updater:
  mirror: ""
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	s, err := Load(path)
	require.NoError(t, err)

	// The id-less profile is dropped and the dangling selection repaired.
	require.Len(t, s.Profiles, 1)
	require.Equal(t, "docs", s.CurrentProfile)
	require.Equal(t, 24*60, s.Scheduler.IntervalMinutes)
	require.Equal(t, DefaultMirror, s.Updater.Mirror)
}

func TestCurrentFallsBackToFirstProfile(t *testing.T) {
	s := Default()
	s.CurrentProfile = "gone"

	p, ok := s.Current()
	require.True(t, ok)
	require.Equal(t, "quick", p.ID)

	s.Profiles = nil
	_, ok = s.Current()
	require.False(t, ok)
}
