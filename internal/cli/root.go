// Package cli implements the roomview command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tOgg1/roomview/internal/config"
	"github.com/tOgg1/roomview/internal/db"
	"github.com/tOgg1/roomview/internal/logging"
)

// app carries the global flags and the loaded configuration shared by every
// command of one invocation.
type app struct {
	configFile     string
	dbPath         string
	logLevel       string
	logFormat      string
	jsonOutput     bool
	jsonlOutput    bool
	nonInteractive bool

	loader  *config.Loader
	cfg     *config.Config
	logFile *os.File
}

// PreflightError is returned when a command cannot run in the current
// environment.
type PreflightError struct {
	Message  string
	Hint     string
	NextStep string
}

func (e *PreflightError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Hint != "" {
		b.WriteString("\n  hint: " + e.Hint)
	}
	if e.NextStep != "" {
		b.WriteString("\n  try:  " + e.NextStep)
	}
	return b.String()
}

// Execute runs the roomview command line.
func Execute(version string) error {
	if hasRobotHelpFlag(os.Args[1:]) {
		printRobotHelp(os.Stdout)
		return nil
	}
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "roomview",
		Short:         "Matrix room timeline viewer",
		Long:          "roomview keeps a bounded window of a room timeline and pages history in and out around the scroll position.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default: ~/.config/roomview/config.yaml)")
	flags.StringVar(&a.dbPath, "db", "", "timeline database path")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "", "log format (console, json)")
	flags.BoolVar(&a.jsonOutput, "json", false, "JSON output")
	flags.BoolVar(&a.jsonlOutput, "jsonl", false, "JSON lines output")
	flags.BoolVar(&a.nonInteractive, "non-interactive", false, "never start the terminal UI")
	flags.Bool("robot-help", false, "Machine-readable help output")

	cmd.AddCommand(
		newSeedCmd(a),
		newSendCmd(a),
		newRedactCmd(a),
		newRoomsCmd(a),
		newWindowCmd(a),
		newTailCmd(a),
		newViewCmd(a),
		newUseCmd(a),
		newConfigCmd(a),
		newSurfaceCmd(),
	)
	return cmd
}

// init loads configuration with flag overrides and sets up logging.
func (a *app) init() error {
	a.loader = config.NewLoader()
	if a.configFile != "" {
		a.loader.SetConfigFile(a.configFile)
	}
	if _, err := a.loader.Load(); err != nil {
		return err
	}

	if a.dbPath != "" {
		a.loader.Set("store.path", a.dbPath)
	}
	if a.logLevel != "" {
		a.loader.Set("logging.level", a.logLevel)
	}
	if a.logFormat != "" {
		a.loader.Set("logging.format", a.logFormat)
	} else if !term.IsTerminal(int(os.Stderr.Fd())) {
		a.loader.Set("logging.format", "json")
	}
	cfg, err := a.loader.Reload()
	if err != nil {
		return err
	}
	a.cfg = cfg

	return a.initLogging(os.Stderr)
}

func (a *app) initLogging(fallback io.Writer) error {
	out := fallback
	if path := a.cfg.Logging.File; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		a.logFile = f
		out = f
	}
	logging.Init(logging.Config{
		Level:        a.cfg.Logging.Level,
		Format:       a.cfg.Logging.Format,
		Output:       out,
		EnableCaller: a.cfg.Logging.EnableCaller,
	})
	return nil
}

func (a *app) close() {
	if a.logFile != nil {
		_ = a.logFile.Close()
		a.logFile = nil
	}
}

// openDatabase opens the timeline store and brings its schema up to date.
func (a *app) openDatabase(ctx context.Context) (*db.DB, error) {
	database, err := db.Open(db.Config{
		Path:          a.cfg.DatabasePath(),
		BusyTimeoutMs: a.cfg.Store.BusyTimeoutMs,
	})
	if err != nil {
		return nil, err
	}
	if _, err := database.MigrateUp(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return database, nil
}

func (a *app) contextStore() *config.ContextStore {
	return config.NewContextStore(filepath.Join(a.cfg.Global.ConfigDir, "context.yaml"))
}

func (a *app) machineOutput() bool {
	return a.jsonOutput || a.jsonlOutput
}

var errNoRooms = errors.New("no rooms in the store")
