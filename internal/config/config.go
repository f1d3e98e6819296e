// Package config handles roomview configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tOgg1/roomview/internal/paginate"
	"github.com/tOgg1/roomview/internal/scroll"
	"github.com/tOgg1/roomview/internal/window"
)

// Config is the root configuration structure for roomview.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Store settings
	Store StoreConfig `yaml:"store" mapstructure:"store"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Session identifies the local user.
	Session SessionConfig `yaml:"session" mapstructure:"session"`

	// Timeline tunes windowing and pagination.
	Timeline TimelineConfig `yaml:"timeline" mapstructure:"timeline"`

	// TUI settings
	TUI TUIConfig `yaml:"tui" mapstructure:"tui"`
}

// GlobalConfig contains global settings.
type GlobalConfig struct {
	// DataDir is where roomview stores its data (default: ~/.local/share/roomview).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config files are stored (default: ~/.config/roomview).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`
}

// StoreConfig contains local timeline store settings.
type StoreConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" mapstructure:"path"`

	// BusyTimeoutMs is how long to wait for a locked database (milliseconds).
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`

	// StatePath is the read marker state file.
	StatePath string `yaml:"state_path" mapstructure:"state_path"`

	// PaginationDelay simulates server latency for store-backed pagination.
	PaginationDelay time.Duration `yaml:"pagination_delay" mapstructure:"pagination_delay"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// SessionConfig identifies the viewing user.
type SessionConfig struct {
	// UserID is the local Matrix user ID.
	UserID string `yaml:"user_id" mapstructure:"user_id"`

	// Guest hides loading placeholders and shows an empty-timeline notice.
	Guest bool `yaml:"guest" mapstructure:"guest"`
}

// TimelineConfig contains windowing and pagination tuning. The thresholds are
// UX smoothing values, not correctness requirements.
type TimelineConfig struct {
	// MaxEvents caps how many events are materialized at once.
	MaxEvents int `yaml:"max_events" mapstructure:"max_events"`

	// PageLimit is the number of events revealed or fetched per step.
	PageLimit int `yaml:"page_limit" mapstructure:"page_limit"`

	// ScrollTriggerPos is the edge distance that triggers pagination.
	ScrollTriggerPos float64 `yaml:"scroll_trigger_pos" mapstructure:"scroll_trigger_pos"`

	// PinnedThreshold is the bottom distance under which the view follows the live tail.
	PinnedThreshold float64 `yaml:"pinned_threshold" mapstructure:"pinned_threshold"`

	// ScrollThrottle coalesces scroll ticks.
	ScrollThrottle time.Duration `yaml:"scroll_throttle" mapstructure:"scroll_throttle"`

	// ApproxItemHeight is used to jump to a row before it has been measured.
	ApproxItemHeight float64 `yaml:"approx_item_height" mapstructure:"approx_item_height"`

	// PlaceholderCount is the number of loading rows shown at a paginatable edge.
	PlaceholderCount int `yaml:"placeholder_count" mapstructure:"placeholder_count"`

	// GroupWindow is the longest gap between two messages of one sender
	// that still renders the second one body-only.
	GroupWindow time.Duration `yaml:"group_window" mapstructure:"group_window"`
}

// TUIConfig contains terminal viewer settings.
type TUIConfig struct {
	// Theme is the color theme (default, high-contrast).
	Theme string `yaml:"theme" mapstructure:"theme"`

	// ShowTimestamps shows timestamps next to messages.
	ShowTimestamps bool `yaml:"show_timestamps" mapstructure:"show_timestamps"`
}

// DefaultTimelineConfig returns the stock windowing thresholds.
func DefaultTimelineConfig() TimelineConfig {
	return TimelineConfig{
		MaxEvents:        window.DefaultMaxEvents,
		PageLimit:        paginate.DefaultPageLimit,
		ScrollTriggerPos: paginate.DefaultTriggerPos,
		PinnedThreshold:  scroll.DefaultPinnedThreshold,
		ScrollThrottle:   200 * time.Millisecond,
		ApproxItemHeight: 80,
		PlaceholderCount: paginate.DefaultPlaceholderCount,
		GroupWindow:      5 * time.Minute,
	}
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(homeDir, ".local", "share", "roomview"),
			ConfigDir: filepath.Join(homeDir, ".config", "roomview"),
		},
		Store: StoreConfig{
			Path:          "", // Will be set to DataDir/roomview.db
			BusyTimeoutMs: 5000,
			StatePath:     "", // Will be set to DataDir/state.json
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Session: SessionConfig{
			UserID: "@viewer:localhost",
		},
		Timeline: DefaultTimelineConfig(),
		TUI: TUIConfig{
			Theme:          "default",
			ShowTimestamps: true,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Store.BusyTimeoutMs < 0 {
		return fmt.Errorf("store.busy_timeout_ms must not be negative")
	}
	if c.Store.PaginationDelay < 0 {
		return fmt.Errorf("store.pagination_delay must not be negative")
	}
	return c.Timeline.Validate()
}

// Validate checks the timeline thresholds.
func (t TimelineConfig) Validate() error {
	if t.MaxEvents < 1 {
		return fmt.Errorf("timeline.max_events must be at least 1")
	}
	if t.PageLimit < 1 {
		return fmt.Errorf("timeline.page_limit must be at least 1")
	}
	if t.PageLimit >= t.MaxEvents {
		// a step must keep part of the rendered window so the anchor survives
		return fmt.Errorf("timeline.page_limit (%d) must be less than timeline.max_events (%d)", t.PageLimit, t.MaxEvents)
	}
	if t.ScrollTriggerPos <= 0 {
		return fmt.Errorf("timeline.scroll_trigger_pos must be positive")
	}
	if t.PinnedThreshold <= 0 {
		return fmt.Errorf("timeline.pinned_threshold must be positive")
	}
	if t.ScrollThrottle < 0 {
		return fmt.Errorf("timeline.scroll_throttle must not be negative")
	}
	if t.ApproxItemHeight <= 0 {
		return fmt.Errorf("timeline.approx_item_height must be positive")
	}
	if t.PlaceholderCount < 0 {
		return fmt.Errorf("timeline.placeholder_count must not be negative")
	}
	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Global.DataDir,
		c.Global.ConfigDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// DatabasePath returns the full database path.
func (c *Config) DatabasePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(c.Global.DataDir, "roomview.db")
}

// StatePath returns the full read marker state path.
func (c *Config) StatePath() string {
	if c.Store.StatePath != "" {
		return c.Store.StatePath
	}
	return filepath.Join(c.Global.DataDir, "state.json")
}
