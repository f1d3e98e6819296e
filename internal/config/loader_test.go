package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 50, cfg.Timeline.MaxEvents)
	require.Equal(t, 96.0, cfg.Timeline.ScrollTriggerPos)
	require.Equal(t, 16.0, cfg.Timeline.PinnedThreshold)
	require.Equal(t, 200*time.Millisecond, cfg.Timeline.ScrollThrottle)
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
timeline:
  max_events: 20
  page_limit: 10
  scroll_throttle: 50ms
store:
  path: ~/rooms.db
session:
  user_id: "@alice:example.org"
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, 20, cfg.Timeline.MaxEvents)
	require.Equal(t, 10, cfg.Timeline.PageLimit)
	require.Equal(t, 50*time.Millisecond, cfg.Timeline.ScrollThrottle)
	require.Equal(t, "@alice:example.org", cfg.Session.UserID)
	require.NotContains(t, cfg.DatabasePath(), "~")

	// untouched keys keep their defaults
	require.Equal(t, 96.0, cfg.Timeline.ScrollTriggerPos)
}

func TestLoadRejectsInvalidTimeline(t *testing.T) {
	path := writeConfig(t, `
timeline:
  page_limit: 0
`)
	_, err := LoadFromFile(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "timeline.page_limit")
}

func TestTimelinePageLimitBelowMaxEvents(t *testing.T) {
	tests := []struct {
		name      string
		maxEvents int
		pageLimit int
		wantErr   bool
	}{
		{"below cap", 20, 10, false},
		{"equal to cap", 20, 20, true},
		{"above cap", 20, 30, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultTimelineConfig()
			cfg.MaxEvents = tt.maxEvents
			cfg.PageLimit = tt.pageLimit
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), "timeline.max_events")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
timeline:
  max_events: 20
`)
	t.Setenv("ROOMVIEW_TIMELINE_MAX_EVENTS", "35")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, 35, cfg.Timeline.MaxEvents)
}

func TestSetOverridesAndReload(t *testing.T) {
	loader := NewLoader()
	loader.SetConfigFile(writeConfig(t, "logging:\n  level: warn\n"))
	cfg, err := loader.Load()
	require.NoError(t, err)
	require.Equal(t, "warn", cfg.Logging.Level)

	loader.Set("logging.level", "debug")
	cfg, err = loader.Reload()
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestDerivedPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Global.DataDir = "/data"
	require.Equal(t, "/data/roomview.db", cfg.DatabasePath())
	require.Equal(t, "/data/state.json", cfg.StatePath())

	cfg.Store.Path = "/elsewhere/x.db"
	require.Equal(t, "/elsewhere/x.db", cfg.DatabasePath())
}
