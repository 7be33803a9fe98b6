// Package internal provides the App struct that wires the task board
// components together and initializes the CLI layer.
package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/valter-silva-au/taskboard/internal/cli"
	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/internal/logging"
	"github.com/valter-silva-au/taskboard/internal/observability"
	"github.com/valter-silva-au/taskboard/internal/storage"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// HomeEnv overrides workspace discovery.
const HomeEnv = "TASKBOARD_HOME"

// App holds all service dependencies of the task board.
type App struct {
	BasePath  string
	Workspace core.Workspace
	Config    *models.GlobalConfig
	Logger    *slog.Logger

	// Configuration
	ConfigMgr core.ConfigurationManager

	// Storage layer
	Files        storage.FileStore
	Fingerprints *core.FingerprintTable

	// Core services
	Repo          core.TaskRepository
	Engine        core.StageTransitioner
	Migrator      core.Migrator
	WorkspaceInit core.WorkspaceInitializer

	// Observability
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
}

// NewApp creates and wires all components for the workspace under basePath.
// A missing workspace is not an error: commands report it when they touch
// the board, and init creates it.
func NewApp(basePath string) (*App, error) {
	app := &App{
		BasePath:     basePath,
		Workspace:    core.NewWorkspace(basePath),
		Files:        storage.NewOSFileStore(),
		Fingerprints: core.NewFingerprintTable(),
	}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.LoadGlobalConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := app.ConfigMgr.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	app.Config = cfg
	app.Logger = logging.NewLogger(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	// --- Observability ---
	// The event log lives inside the workspace, so it is only opened once
	// the workspace exists. Failing to open it disables metrics.
	if cfg.Events.Enabled && dirExists(app.Workspace.Root) {
		app.EventLog, err = observability.NewJSONLEventLog(app.Workspace.EventLogPath())
		if err != nil {
			app.Logger.Warn("event log disabled", "path", app.Workspace.EventLogPath(), "err", err)
			app.EventLog = nil
		}
	}
	if app.EventLog != nil {
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}
	if cfg.Alerts.WebhookURL != "" {
		app.Notifier = observability.NewSlackNotifier(cfg.Alerts.WebhookURL, filepath.Base(basePath))
	}

	app.wire()
	cli.ConfigureLogging = app.ConfigureLogging
	return app, nil
}

// wire builds the core services with the current logger and publishes
// them to the CLI layer.
func (a *App) wire() {
	var events core.EventLogger
	if a.EventLog != nil {
		events = &eventLogAdapter{log: a.EventLog}
	}

	a.Migrator = core.NewMigrator(a.Files, a.Workspace, a.Logger.With("component", "migrator"), events)
	a.Repo = core.NewTaskRepository(a.Files, a.Workspace, core.RepositoryOptions{
		DefaultStage:    a.Config.DefaultStage,
		DefaultTemplate: a.Config.DefaultTemplate,
		Logger:          a.Logger.With("component", "repository"),
		Events:          events,
		Migrator:        a.Migrator,
		Fingerprints:    a.Fingerprints,
	})
	a.Engine = core.NewTransitionEngine(a.Files, a.Workspace, core.EngineOptions{
		Logger:       a.Logger.With("component", "engine"),
		Events:       events,
		Fingerprints: a.Fingerprints,
	})
	a.WorkspaceInit = core.NewWorkspaceInitializer(a.Files)

	// Alerts work from the task list alone; the event log adds failed moves.
	a.AlertEngine = observability.NewAlertEngine(a.Repo, a.EventLog, alertThresholds(a.Config.Alerts))

	// --- Wire CLI package-level variables ---
	cli.BasePath = a.BasePath
	cli.Logger = a.Logger
	cli.Repo = a.Repo
	cli.Engine = a.Engine
	cli.Migrator = a.Migrator
	cli.WorkspaceInit = a.WorkspaceInit

	cli.EventLog = a.EventLog
	cli.AlertEngine = a.AlertEngine
	cli.MetricsCalc = a.MetricsCalc
	cli.Notifier = a.Notifier
}

// ConfigureLogging replaces the logger and rebuilds the services that hold
// it. Empty arguments keep the configured value.
func (a *App) ConfigureLogging(level, format string) error {
	if !logging.ValidLevel(level) {
		return fmt.Errorf("invalid log level %q", level)
	}
	if level == "" {
		level = a.Config.Log.Level
	}
	if format == "" {
		format = a.Config.Log.Format
	}
	a.Logger = logging.NewLogger(logging.Options{Level: level, Format: format})
	a.wire()
	return nil
}

// Close releases resources held by the App, such as the event log file handle.
// It is safe to call Close on an App whose EventLog is nil.
func (a *App) Close() error {
	if a.EventLog != nil {
		return a.EventLog.Close()
	}
	return nil
}

// ResolveBasePath determines the directory holding the .taskboard workspace.
// It checks TASKBOARD_HOME, then walks up from the current directory, then
// falls back to the current directory.
func ResolveBasePath() string {
	if home := os.Getenv(HomeEnv); home != "" {
		return home
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	for dir := cwd; ; {
		if dirExists(core.NewWorkspace(dir).Root) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return cwd
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func alertThresholds(cfg models.AlertsConfig) observability.AlertThresholds {
	thresholds := observability.DefaultAlertThresholds()
	thresholds.StaleDays = cfg.StaleDays
	thresholds.MaxQueue = cfg.MaxQueue
	for stage, limit := range cfg.WIPLimits {
		if limit > 0 {
			thresholds.WIPLimits[models.Stage(strings.ToLower(stage))] = limit
		}
	}
	return thresholds
}

// --- Adapters ---

// eventLogAdapter adapts observability.EventLog to core.EventLogger.
type eventLogAdapter struct {
	log observability.EventLog
}

func (a *eventLogAdapter) LogEvent(eventType string, data map[string]any) error {
	return a.log.Write(observability.Event{
		Time:    time.Now().UTC(),
		Level:   eventLevel(eventType),
		Type:    eventType,
		Message: eventType,
		Data:    data,
	})
}

func eventLevel(eventType string) string {
	switch eventType {
	case core.EventTaskMoveFailed:
		return "ERROR"
	case core.EventTaskConflict, core.EventTaskReverted:
		return "WARN"
	default:
		return "INFO"
	}
}
