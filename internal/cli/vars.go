package cli

import (
	"log/slog"

	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/internal/observability"
)

// Service instances, set during app initialization in app.go.
var (
	BasePath      string
	Repo          core.TaskRepository
	Engine        core.StageTransitioner
	Migrator      core.Migrator
	WorkspaceInit core.WorkspaceInitializer
	Logger        *slog.Logger
)

// Observability service instances. They stay nil when the event log is
// disabled, except AlertEngine which works from the task list alone.
var (
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
)

// ConfigureLogging rebuilds the services with a logger for the given level
// and format. Set by app.go; the root command calls it when --log-level or
// --log-format is passed.
var ConfigureLogging func(level, format string) error
