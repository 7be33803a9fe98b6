package core

import (
	"path/filepath"

	"github.com/valter-silva-au/taskboard/pkg/models"
)

const (
	// WorkspaceDirName is the directory that marks a task board root.
	WorkspaceDirName = ".taskboard"

	tasksDirName     = "tasks"
	contextDirName   = "context"
	templatesDirName = "templates"
	configFileName   = "config.yaml"
	eventLogFileName = ".events.jsonl"
	lockFileName     = ".lock"
)

// Context document kinds stored under the context directory.
const (
	ContextPhases = "phases"
	ContextAgents = "agents"
	ContextCustom = "custom"
	ContextStages = "stages"
)

// Workspace resolves the on-disk layout of a task board.
type Workspace struct {
	// Root is the .taskboard directory itself.
	Root string
}

// NewWorkspace returns the layout rooted at basePath/.taskboard.
func NewWorkspace(basePath string) Workspace {
	return Workspace{Root: filepath.Join(basePath, WorkspaceDirName)}
}

func (w Workspace) TasksRoot() string { return filepath.Join(w.Root, tasksDirName) }

// StageDir returns the folder for a canonical stage or a legacy alias name.
func (w Workspace) StageDir(name string) string {
	return filepath.Join(w.TasksRoot(), name)
}

// StageDirs returns the canonical folder for stage followed by its legacy
// alias folders.
func (w Workspace) StageDirs(stage models.Stage) []string {
	dirs := []string{w.StageDir(string(stage))}
	for _, alias := range AliasesFor(stage) {
		dirs = append(dirs, w.StageDir(alias))
	}
	return dirs
}

func (w Workspace) TaskPath(stage models.Stage, id string) string {
	return filepath.Join(w.StageDir(string(stage)), id+".md")
}

func (w Workspace) ContextDir(kind string) string {
	return filepath.Join(w.Root, contextDirName, kind)
}

// GuidanceDoc is the per-stage guidance document for a stage or alias name.
func (w Workspace) GuidanceDoc(name string) string {
	return filepath.Join(w.ContextDir(ContextStages), name+".md")
}

func (w Workspace) TemplatesDir() string { return filepath.Join(w.Root, templatesDirName) }
func (w Workspace) ConfigPath() string   { return filepath.Join(w.Root, configFileName) }
func (w Workspace) EventLogPath() string { return filepath.Join(w.Root, eventLogFileName) }
func (w Workspace) LockPath() string     { return filepath.Join(w.Root, lockFileName) }
