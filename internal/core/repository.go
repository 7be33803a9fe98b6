package core

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/valter-silva-au/taskboard/internal/storage"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// CreateRequest holds the inputs for creating a task. Stage may be a legacy
// alias or empty, in which case the repository default applies.
type CreateRequest struct {
	Title    string
	Stage    string
	Phase    string
	Agent    string
	Contexts []string
	Tags     []string
	Content  string
	Template string
}

// TaskRepository lists, creates, duplicates and deletes task documents.
type TaskRepository interface {
	// List returns every task, grouped by canonical stage order. It returns
	// ErrNotInitialized when the tasks root does not exist.
	List() ([]*models.Task, error)
	Get(id string) (*models.Task, error)
	Create(req CreateRequest) (*models.Task, error)
	Duplicate(id string) (*models.Task, error)
	Delete(id string) error
}

// RepositoryOptions configures NewTaskRepository.
type RepositoryOptions struct {
	DefaultStage    models.Stage
	DefaultTemplate string
	Logger          *slog.Logger
	Events          EventLogger
	Templates       TemplateManager
	Migrator        Migrator
	// Fingerprints, when set, is cleared for deleted files.
	Fingerprints *FingerprintTable
	// Now overrides the clock, for tests.
	Now func() time.Time
}

type taskRepository struct {
	mu        sync.Mutex
	scan      scanner
	opts      RepositoryOptions
	templates TemplateManager
	migrator  Migrator
}

// NewTaskRepository creates a TaskRepository over ws.
func NewTaskRepository(fs storage.FileStore, ws Workspace, opts RepositoryOptions) TaskRepository {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DefaultStage == "" {
		opts.DefaultStage = models.StageQueue
	}
	r := &taskRepository{
		scan:      scanner{fs: fs, ws: ws, log: opts.Logger},
		opts:      opts,
		templates: opts.Templates,
		migrator:  opts.Migrator,
	}
	if r.templates == nil {
		r.templates = NewTemplateManager(fs, ws.TemplatesDir())
	}
	if r.migrator == nil {
		r.migrator = NewMigrator(fs, ws, opts.Logger, opts.Events)
	}
	return r
}

func (r *taskRepository) initialized() error {
	info, err := r.scan.fs.Stat(r.scan.ws.TasksRoot())
	if err != nil {
		if storage.IsNotFound(err) {
			return ErrNotInitialized
		}
		return fmt.Errorf("checking tasks root: %w", err)
	}
	if !info.IsDir {
		return fmt.Errorf("%s is not a directory: %w", r.scan.ws.TasksRoot(), ErrNotInitialized)
	}
	return nil
}

func (r *taskRepository) List() ([]*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.initialized(); err != nil {
		return nil, err
	}
	if _, err := r.migrator.Run(); err != nil {
		// Listing still works against whatever layout is on disk.
		r.scan.log.Warn("legacy migration failed", "error", err)
	}

	r.warnUnknownFolders()

	tasks := []*models.Task{}
	for _, stage := range models.Stages() {
		staged, err := r.scan.loadStage(stage)
		if err != nil {
			return nil, fmt.Errorf("listing %s tasks: %w", stage, err)
		}
		tasks = append(tasks, staged...)
	}
	return tasks, nil
}

func (r *taskRepository) warnUnknownFolders() {
	entries, err := r.scan.fs.ListDir(r.scan.ws.TasksRoot())
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir && NormalizeStage(e.Name, "") == "" {
			r.scan.log.Warn("skipping unknown stage folder", "folder", e.Name)
		}
	}
}

func (r *taskRepository) Get(id string) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.initialized(); err != nil {
		return nil, err
	}
	return r.scan.findTask(id, "")
}

func (r *taskRepository) Create(req CreateRequest) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("creating task: title is required: %w", ErrInvalidInput)
	}
	stage := r.opts.DefaultStage
	if strings.TrimSpace(req.Stage) != "" {
		stage = NormalizeStage(req.Stage, "")
		if stage == "" {
			return nil, fmt.Errorf("creating task: stage %q: %w", req.Stage, ErrInvalidStage)
		}
	}
	if err := r.initialized(); err != nil {
		return nil, err
	}

	tmplName := req.Template
	if tmplName == "" {
		tmplName = r.opts.DefaultTemplate
	}
	body, err := r.templates.Render(tmplName, TemplateData{
		Title:    title,
		Stage:    string(stage),
		Phase:    req.Phase,
		Agent:    req.Agent,
		Contexts: strings.Join(req.Contexts, ", "),
		Tags:     strings.Join(req.Tags, ", "),
		Content:  req.Content,
	})
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}

	task, err := r.write(newTaskFields{
		title:    title,
		stage:    stage,
		phase:    req.Phase,
		agent:    req.Agent,
		contexts: req.Contexts,
		tags:     req.Tags,
		body:     body,
	})
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}
	emitEvent(r.opts.Events, EventTaskCreated, map[string]any{
		"task_id": task.ID,
		"stage":   string(task.Stage),
	})
	return task, nil
}

func (r *taskRepository) Duplicate(id string) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.initialized(); err != nil {
		return nil, err
	}
	src, err := r.scan.findTask(id, "")
	if err != nil {
		return nil, fmt.Errorf("duplicating task %s: %w", id, err)
	}
	raw, err := r.scan.fs.ReadFile(src.FilePath)
	if err != nil {
		return nil, fmt.Errorf("duplicating task %s: %w", id, err)
	}
	doc := ParseDocument(string(raw))

	task, err := r.write(newTaskFields{
		title:    src.Title + " Copy",
		stage:    src.Stage,
		phase:    src.Phase,
		agent:    src.Agent,
		contexts: src.Contexts,
		tags:     src.Tags,
		body:     doc.Body,
	})
	if err != nil {
		return nil, fmt.Errorf("duplicating task %s: %w", id, err)
	}
	emitEvent(r.opts.Events, EventTaskDuplicated, map[string]any{
		"task_id":   task.ID,
		"source_id": src.ID,
		"stage":     string(task.Stage),
	})
	return task, nil
}

func (r *taskRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.initialized(); err != nil {
		return err
	}
	task, err := r.scan.findTask(id, "")
	if err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	// The engine keys fingerprints by resolved path, which only resolves
	// while the file exists.
	real, err := r.scan.fs.RealPath(task.FilePath)
	if err != nil {
		real = task.FilePath
	}
	if err := r.scan.fs.Delete(task.FilePath, false); err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	if r.opts.Fingerprints != nil {
		r.opts.Fingerprints.Forget(real)
		r.opts.Fingerprints.Forget(task.FilePath)
	}
	emitEvent(r.opts.Events, EventTaskDeleted, map[string]any{
		"task_id": task.ID,
		"stage":   string(task.Stage),
	})
	return nil
}

type newTaskFields struct {
	title    string
	stage    models.Stage
	phase    string
	agent    string
	contexts []string
	tags     []string
	body     string
}

// write mints an id and order for f, writes the document into the stage's
// canonical folder and returns the task as read back from disk.
func (r *taskRepository) write(f newTaskFields) (*models.Task, error) {
	op := uuid.NewString()
	fs, ws := r.scan.fs, r.scan.ws

	unlock, err := storage.LockFile(ws.LockPath())
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := fs.Mkdir(ws.StageDir(string(f.stage)), true); err != nil {
		return nil, fmt.Errorf("creating %s folder: %w", f.stage, err)
	}
	id, err := r.scan.uniqueID(Slugify(f.title))
	if err != nil {
		return nil, err
	}
	order, err := r.scan.nextOrder(f.stage)
	if err != nil {
		return nil, err
	}

	now := FormatTimestamp(r.opts.Now())
	meta := NewMetadata()
	meta.SetString(keyID, id)
	meta.SetString(keyTitle, f.title)
	meta.SetString(keyStage, string(f.stage))
	if f.phase != "" {
		meta.SetString(keyPhase, f.phase)
	}
	if f.agent != "" {
		meta.SetString(keyAgent, f.agent)
	}
	if len(f.contexts) > 0 {
		meta.SetList(keyContexts, f.contexts)
	}
	if len(f.tags) > 0 {
		meta.SetList(keyTags, f.tags)
	}
	meta.Set(keyCreated, TypedScalar(now, "!!timestamp"))
	meta.Set(keyUpdated, TypedScalar(now, "!!timestamp"))
	meta.SetInt(keyOrder, order)

	content, err := Serialize(meta, f.body)
	if err != nil {
		return nil, err
	}
	path := ws.TaskPath(f.stage, id)
	if err := fs.WriteFile(path, []byte(content)); err != nil {
		return nil, err
	}
	r.scan.log.Debug("wrote task", "op", op, "id", id, "stage", f.stage, "order", order)

	task, err := r.scan.readTask(path, f.stage)
	if err != nil {
		return nil, fmt.Errorf("reading back %s: %w", path, err)
	}
	return task, nil
}
