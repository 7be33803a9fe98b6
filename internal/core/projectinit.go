package core

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/valter-silva-au/taskboard/internal/storage"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// InitResult holds a summary of what was created vs. skipped.
type InitResult struct {
	Created []string
	Skipped []string
}

// WorkspaceInitializer creates the task board layout under a base path.
type WorkspaceInitializer interface {
	Init(basePath string) (*InitResult, error)
}

type workspaceInitializer struct {
	fs storage.FileStore
}

// NewWorkspaceInitializer creates a new WorkspaceInitializer.
func NewWorkspaceInitializer(fs storage.FileStore) WorkspaceInitializer {
	return &workspaceInitializer{fs: fs}
}

// Init creates the stage folders, context folders, templates and a default
// config. It is safe to run on an existing workspace: anything that already
// exists is skipped and not overwritten.
func (wi *workspaceInitializer) Init(basePath string) (*InitResult, error) {
	ws := NewWorkspace(basePath)
	result := &InitResult{}

	dirs := []string{ws.Root, ws.TasksRoot(), ws.TemplatesDir()}
	for _, st := range models.Stages() {
		dirs = append(dirs, ws.StageDir(string(st)))
	}
	for _, kind := range []string{ContextPhases, ContextAgents, ContextCustom, ContextStages} {
		dirs = append(dirs, ws.ContextDir(kind))
	}
	for _, dir := range dirs {
		created, err := wi.ensureDir(dir)
		if err != nil {
			return nil, fmt.Errorf("initializing workspace: creating directory %s: %w", dir, err)
		}
		if created {
			result.Created = append(result.Created, dir)
		} else {
			result.Skipped = append(result.Skipped, dir)
		}
	}

	files := map[string]string{
		ws.ConfigPath(): defaultConfigYAML,
		filepath.Join(ws.TemplatesDir(), DefaultTemplateName+markdownSuffix): builtinTemplates[DefaultTemplateName],
	}
	for _, st := range models.Stages() {
		files[ws.GuidanceDoc(string(st))] = guidanceDoc(st)
	}
	// Map iteration order is random; write in a stable order for the report.
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := wi.writeFileIfNotExists(p, files[p], result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (wi *workspaceInitializer) ensureDir(dir string) (bool, error) {
	info, err := wi.fs.Stat(dir)
	if err == nil {
		if !info.IsDir {
			return false, fmt.Errorf("%s exists and is not a directory", dir)
		}
		return false, nil
	}
	if !storage.IsNotFound(err) {
		return false, err
	}
	return true, wi.fs.Mkdir(dir, true)
}

func (wi *workspaceInitializer) writeFileIfNotExists(path, content string, result *InitResult) error {
	if _, err := wi.fs.Stat(path); err == nil {
		result.Skipped = append(result.Skipped, path)
		return nil
	} else if !storage.IsNotFound(err) {
		return fmt.Errorf("initializing workspace: checking %s: %w", path, err)
	}
	if err := wi.fs.WriteFile(path, []byte(content)); err != nil {
		return fmt.Errorf("initializing workspace: writing %s: %w", path, err)
	}
	result.Created = append(result.Created, path)
	return nil
}

func guidanceDoc(st models.Stage) string {
	name := string(st)
	title := strings.ToUpper(name[:1]) + name[1:]
	return fmt.Sprintf("# %s stage\n\nNotes for tasks in the %s stage.\n", title, name)
}

const defaultConfigYAML = `defaults:
  stage: queue
  template: default
log:
  level: info
  format: text
events:
  enabled: true
alerts:
  stale_days: 7
  max_queue: 25
  wip_limits:
    code: 5
    audit: 5
`
