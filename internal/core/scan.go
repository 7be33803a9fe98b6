package core

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/valter-silva-au/taskboard/internal/storage"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// scanner reads task folders. It is shared by the repository, the
// transition engine and the migrator so ordering and id rules stay in one
// place.
type scanner struct {
	fs  storage.FileStore
	ws  Workspace
	log *slog.Logger
}

// readTask loads and builds the task at path. A nil task with a nil error
// means the file could not be attributed to a stage.
func (s scanner) readTask(path string, fallback models.Stage) (*models.Task, error) {
	raw, err := s.fs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	info, err := s.fs.Stat(path)
	if err != nil {
		return nil, err
	}
	return BuildTask(path, string(raw), info, s.ws.TasksRoot(), fallback), nil
}

// loadFolder builds every task document in dir. Unreadable or unbuildable
// files are skipped with a warning; a missing folder is empty.
func (s scanner) loadFolder(dir string, stage models.Stage) ([]*models.Task, error) {
	entries, err := s.fs.ListDir(dir)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var tasks []*models.Task
	for _, e := range entries {
		if !isTaskFile(e) {
			continue
		}
		path := filepath.Join(dir, e.Name)
		task, err := s.readTask(path, stage)
		if err != nil {
			s.log.Warn("skipping unreadable task file", "path", path, "error", err)
			continue
		}
		if task == nil {
			s.log.Warn("skipping task file without a stage", "path", path)
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// loadStage builds the tasks of one stage from its canonical and alias
// folders, sorted by order then id.
func (s scanner) loadStage(stage models.Stage) ([]*models.Task, error) {
	var all []*models.Task
	for _, dir := range s.ws.StageDirs(stage) {
		tasks, err := s.loadFolder(dir, stage)
		if err != nil {
			return nil, err
		}
		all = append(all, tasks...)
	}
	sortTasks(all)
	return all, nil
}

// nextOrder is one past the highest explicit order in the stage's canonical
// folder, or the number of task files there when none has an order.
func (s scanner) nextOrder(stage models.Stage) (int, error) {
	tasks, err := s.loadFolder(s.ws.StageDir(string(stage)), stage)
	if err != nil {
		return 0, err
	}
	maxOrder, found := -1, false
	for _, t := range tasks {
		if t.Order != nil && (!found || *t.Order > maxOrder) {
			maxOrder, found = *t.Order, true
		}
	}
	if !found {
		return len(tasks), nil
	}
	return maxOrder + 1, nil
}

// allFolders returns every canonical and alias stage folder.
func (s scanner) allFolders() []string {
	var dirs []string
	for _, st := range models.Stages() {
		dirs = append(dirs, s.ws.StageDir(string(st)))
	}
	for _, a := range LegacyAliases() {
		dirs = append(dirs, s.ws.StageDir(a.Name))
	}
	return dirs
}

// idTaken reports whether <id>.md exists in any stage folder.
func (s scanner) idTaken(id string) (bool, error) {
	for _, dir := range s.allFolders() {
		_, err := s.fs.Stat(filepath.Join(dir, id+markdownSuffix))
		if err == nil {
			return true, nil
		}
		if !storage.IsNotFound(err) {
			return false, fmt.Errorf("checking id %s: %w", id, err)
		}
	}
	return false, nil
}

// uniqueID returns base, or base-2, base-3, ... whichever is first free
// across all stage folders.
func (s scanner) uniqueID(base string) (string, error) {
	candidate := base
	for n := 2; ; n++ {
		taken, err := s.idTaken(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(n)
	}
}

// findTask locates the task with id. When stage is set only that stage's
// folders are searched. <id>.md is tried before scanning.
func (s scanner) findTask(id string, stage models.Stage) (*models.Task, error) {
	stages := models.Stages()
	if stage != "" {
		stages = []models.Stage{stage}
	}

	for _, st := range stages {
		for _, dir := range s.ws.StageDirs(st) {
			path := filepath.Join(dir, id+markdownSuffix)
			task, err := s.readTask(path, st)
			if err == nil && task != nil && task.ID == id {
				return task, nil
			}
			if err != nil && !storage.IsNotFound(err) {
				return nil, fmt.Errorf("reading %s: %w", path, err)
			}
		}
	}

	for _, st := range stages {
		tasks, err := s.loadStage(st)
		if err != nil {
			return nil, err
		}
		for _, t := range tasks {
			if t.ID == id {
				return t, nil
			}
		}
	}
	return nil, fmt.Errorf("task %s: %w", id, ErrTaskNotFound)
}

// sortTasks orders by explicit order ascending, unordered last, then id.
func sortTasks(tasks []*models.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		switch {
		case a.Order != nil && b.Order != nil && *a.Order != *b.Order:
			return *a.Order < *b.Order
		case a.Order != nil && b.Order == nil:
			return true
		case a.Order == nil && b.Order != nil:
			return false
		}
		return a.ID < b.ID
	})
}
