package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/tOgg1/roomview/internal/logging"
)

// Loader handles configuration loading with Viper.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v: viper.New(),
	}
}

// SetConfigFile sets an explicit config file path.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// Load loads configuration with proper precedence:
// defaults < config file < env vars < CLI flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	l.setupViper(cfg)

	if err := l.loadConfigFile(); err != nil {
		// Config file is optional, only error if explicitly specified
		if l.configFile != "" {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	return l.decode()
}

// Watch reloads the configuration whenever the loaded file changes and hands
// every valid result to fn. Invalid edits are logged and skipped.
func (l *Loader) Watch(fn func(*Config)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	logger := logging.Component("config")
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.decode()
		if err != nil {
			logger.Warn().Err(err).Str("file", e.Name).Msg("ignoring invalid config change")
			return
		}
		logger.Info().Str("file", e.Name).Msg("config reloaded")
		fn(cfg)
	})
	l.v.WatchConfig()
}

func (l *Loader) decode() (*Config, error) {
	cfg := DefaultConfig()
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	expandPaths(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// expandTilde expands ~ to the user's home directory.
func expandTilde(path string) string {
	if path == "" {
		return path
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// expandPaths expands ~ in all path-related config fields.
func expandPaths(cfg *Config) {
	cfg.Global.DataDir = expandTilde(cfg.Global.DataDir)
	cfg.Global.ConfigDir = expandTilde(cfg.Global.ConfigDir)
	cfg.Store.Path = expandTilde(cfg.Store.Path)
	cfg.Store.StatePath = expandTilde(cfg.Store.StatePath)
	cfg.Logging.File = expandTilde(cfg.Logging.File)
}

// setupViper configures Viper with defaults and environment bindings.
func (l *Loader) setupViper(cfg *Config) {
	v := l.v

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		v.AddConfigPath(filepath.Join(xdgConfig, "roomview"))
	}
	homeDir, _ := os.UserHomeDir()
	if homeDir != "" {
		v.AddConfigPath(filepath.Join(homeDir, ".config", "roomview"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("ROOMVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	l.setDefaults(cfg)

	// Viper's Unmarshal ignores env vars for nested keys unless they are bound.
	for _, key := range configKeys {
		_ = v.BindEnv(key, "ROOMVIEW_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	}

	v.AutomaticEnv()
}

// setDefaults sets all default values in Viper.
func (l *Loader) setDefaults(cfg *Config) {
	v := l.v

	v.SetDefault("global.data_dir", cfg.Global.DataDir)
	v.SetDefault("global.config_dir", cfg.Global.ConfigDir)

	v.SetDefault("store.path", cfg.Store.Path)
	v.SetDefault("store.busy_timeout_ms", cfg.Store.BusyTimeoutMs)
	v.SetDefault("store.state_path", cfg.Store.StatePath)
	v.SetDefault("store.pagination_delay", cfg.Store.PaginationDelay)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.enable_caller", cfg.Logging.EnableCaller)

	v.SetDefault("session.user_id", cfg.Session.UserID)
	v.SetDefault("session.guest", cfg.Session.Guest)

	v.SetDefault("timeline.max_events", cfg.Timeline.MaxEvents)
	v.SetDefault("timeline.page_limit", cfg.Timeline.PageLimit)
	v.SetDefault("timeline.scroll_trigger_pos", cfg.Timeline.ScrollTriggerPos)
	v.SetDefault("timeline.pinned_threshold", cfg.Timeline.PinnedThreshold)
	v.SetDefault("timeline.scroll_throttle", cfg.Timeline.ScrollThrottle)
	v.SetDefault("timeline.approx_item_height", cfg.Timeline.ApproxItemHeight)
	v.SetDefault("timeline.placeholder_count", cfg.Timeline.PlaceholderCount)
	v.SetDefault("timeline.group_window", cfg.Timeline.GroupWindow)

	v.SetDefault("tui.theme", cfg.TUI.Theme)
	v.SetDefault("tui.show_timestamps", cfg.TUI.ShowTimestamps)
}

// configKeys lists every key that supports a ROOMVIEW_* override.
var configKeys = []string{
	"global.data_dir",
	"global.config_dir",
	"store.path",
	"store.busy_timeout_ms",
	"store.state_path",
	"store.pagination_delay",
	"logging.level",
	"logging.format",
	"logging.file",
	"logging.enable_caller",
	"session.user_id",
	"session.guest",
	"timeline.max_events",
	"timeline.page_limit",
	"timeline.scroll_trigger_pos",
	"timeline.pinned_threshold",
	"timeline.scroll_throttle",
	"timeline.approx_item_height",
	"timeline.placeholder_count",
	"timeline.group_window",
	"tui.theme",
	"tui.show_timestamps",
}

// loadConfigFile attempts to load the configuration file.
func (l *Loader) loadConfigFile() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return err
	}

	return nil
}

// ConfigFileUsed returns the config file that was loaded.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Set sets a Viper value by key. Used for CLI flag overrides.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// Reload re-decodes the current Viper state, picking up Set overrides.
func (l *Loader) Reload() (*Config, error) {
	return l.decode()
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	loader := NewLoader()
	loader.SetConfigFile(path)
	return loader.Load()
}

// LoadDefault loads configuration with default search paths.
func LoadDefault() (*Config, error) {
	loader := NewLoader()
	return loader.Load()
}
