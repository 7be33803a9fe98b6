package core

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/valter-silva-au/taskboard/internal/storage"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

type fieldState int

const (
	fieldUnchanged fieldState = iota
	fieldCleared
	fieldSet
)

// Field is one entry of a metadata patch. The zero value leaves the field
// unchanged.
type Field[T any] struct {
	state fieldState
	value T
}

// Set returns a field that assigns v.
func Set[T any](v T) Field[T] { return Field[T]{state: fieldSet, value: v} }

// Clear returns a field that removes the key.
func Clear[T any]() Field[T] { return Field[T]{state: fieldCleared} }

func (f Field[T]) IsUnchanged() bool { return f.state == fieldUnchanged }
func (f Field[T]) IsCleared() bool   { return f.state == fieldCleared }

// Value returns the assigned value and whether the field is Set.
func (f Field[T]) Value() (T, bool) { return f.value, f.state == fieldSet }

// Patch overrides metadata in the content being saved. For phase, agent,
// contexts and tags an empty value behaves like Clear.
type Patch struct {
	Title    Field[string]
	Stage    Field[string]
	Phase    Field[string]
	Agent    Field[string]
	Contexts Field[[]string]
	Tags     Field[[]string]
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Title.IsUnchanged() && p.Stage.IsUnchanged() && p.Phase.IsUnchanged() &&
		p.Agent.IsUnchanged() && p.Contexts.IsUnchanged() && p.Tags.IsUnchanged()
}

// Apply writes the patch into meta.
func (p Patch) Apply(meta *Metadata) {
	applyString(meta, keyTitle, p.Title, false)
	applyString(meta, keyStage, p.Stage, false)
	applyString(meta, keyPhase, p.Phase, true)
	applyString(meta, keyAgent, p.Agent, true)
	if !p.Contexts.IsUnchanged() {
		meta.Delete(keyContext)
	}
	applyList(meta, keyContexts, p.Contexts)
	applyList(meta, keyTags, p.Tags)
}

func applyString(meta *Metadata, key string, f Field[string], emptyClears bool) {
	switch v, set := f.Value(); {
	case f.IsCleared(), set && emptyClears && strings.TrimSpace(v) == "":
		meta.Delete(key)
	case set:
		meta.SetString(key, v)
	}
}

func applyList(meta *Metadata, key string, f Field[[]string]) {
	switch v, set := f.Value(); {
	case f.IsCleared(), set && len(v) == 0:
		meta.Delete(key)
	case set:
		meta.SetList(key, v)
	}
}

// MoveRequest asks for a task to change stage. TargetOrder, when set, inserts
// the task at that position and shifts the destination's later siblings.
type MoveRequest struct {
	ID          string
	From        string
	To          string
	TargetOrder *int
}

// MoveResult describes a completed move. Moved is false for a no-op.
type MoveResult struct {
	Task    *models.Task
	OldPath string
	NewPath string
	Moved   bool
	Shifted []string
}

// SaveRequest carries edited document content for a task file.
// CloseAfterSave stops tracking the file's fingerprint once written.
type SaveRequest struct {
	Path           string
	Content        string
	CloseAfterSave bool
	Patch          Patch
}

// SaveResult describes a completed save. Path is where the file now lives.
type SaveResult struct {
	Task  *models.Task
	Path  string
	Moved bool
	From  models.Stage
	To    models.Stage
	Trace []SaveState
}

// LoadedTask is a task file opened for editing.
type LoadedTask struct {
	Task     *models.Task
	Path     string
	Content  string
	Modified time.Time
}

// StageTransitioner moves tasks between stage folders, either on request or
// when a saved document declares a different stage than its folder.
type StageTransitioner interface {
	// Load reads a task file and remembers its modification time.
	Load(path string) (*LoadedTask, error)
	Move(ctx context.Context, req MoveRequest) (*MoveResult, error)
	// Reorder assigns order within the task's current stage.
	Reorder(ctx context.Context, id, stage string, order int) (*MoveResult, error)
	Save(ctx context.Context, req SaveRequest) (*SaveResult, error)
	// ForceSave discards the stored fingerprint, then saves.
	ForceSave(ctx context.Context, req SaveRequest) (*SaveResult, error)
	// Close stops tracking path.
	Close(path string)
	Fingerprints() *FingerprintTable
}

// EngineOptions configures NewTransitionEngine.
type EngineOptions struct {
	Logger       *slog.Logger
	Events       EventLogger
	Fingerprints *FingerprintTable
	Now          func() time.Time
}

type engine struct {
	mu     sync.Mutex
	scan   scanner
	fs     storage.FileStore
	ws     Workspace
	fps    *FingerprintTable
	log    *slog.Logger
	events EventLogger
	now    func() time.Time
}

// NewTransitionEngine creates a StageTransitioner over ws.
func NewTransitionEngine(fs storage.FileStore, ws Workspace, opts EngineOptions) StageTransitioner {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Fingerprints == nil {
		opts.Fingerprints = NewFingerprintTable()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &engine{
		scan:   scanner{fs: fs, ws: ws, log: opts.Logger},
		fs:     fs,
		ws:     ws,
		fps:    opts.Fingerprints,
		log:    opts.Logger,
		events: opts.Events,
		now:    opts.Now,
	}
}

func (e *engine) Fingerprints() *FingerprintTable { return e.fps }

// acquire takes the workspace lock. The lock file lives in the workspace
// root, so an uninitialized workspace is reported before trying.
func (e *engine) acquire() (func() error, error) {
	if _, err := e.fs.Stat(e.ws.TasksRoot()); err != nil {
		if storage.IsNotFound(err) {
			return nil, ErrNotInitialized
		}
		return nil, err
	}
	return storage.LockFile(e.ws.LockPath())
}

func (e *engine) Close(path string) {
	if real, err := e.fs.RealPath(path); err == nil {
		e.fps.Forget(real)
	}
	e.fps.Forget(path)
}

// resolveTaskPath returns the symlink-free path of a task file together with
// the symlink-free tasks root, rejecting anything outside that root.
func (e *engine) resolveTaskPath(path string) (real, root string, err error) {
	if !strings.HasSuffix(path, markdownSuffix) {
		return "", "", fmt.Errorf("%s is not a task document: %w", path, ErrAccessDenied)
	}
	root, err = e.fs.RealPath(e.ws.TasksRoot())
	if err != nil {
		if storage.IsNotFound(err) {
			return "", "", ErrNotInitialized
		}
		return "", "", fmt.Errorf("resolving tasks root: %w", err)
	}
	real, err = e.fs.RealPath(path)
	if err != nil {
		return "", "", fmt.Errorf("resolving %s: %w", path, err)
	}
	rel, err := filepath.Rel(root, real)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%s is outside the tasks root: %w", path, ErrAccessDenied)
	}
	return real, root, nil
}

func (e *engine) Load(path string) (*LoadedTask, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	real, root, err := e.resolveTaskPath(path)
	if err != nil {
		return nil, err
	}
	raw, err := e.fs.ReadFile(real)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	info, err := e.fs.Stat(real)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	task := BuildTask(real, string(raw), info, root, "")
	if task == nil {
		return nil, fmt.Errorf("loading %s: cannot determine stage: %w", path, ErrInvalidStage)
	}
	e.fps.Record(real, info.Modified)
	return &LoadedTask{Task: task, Path: real, Content: string(raw), Modified: info.Modified}, nil
}

func (e *engine) Move(ctx context.Context, req MoveRequest) (*MoveResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	from := NormalizeStage(req.From, "")
	to := NormalizeStage(req.To, "")
	if from == "" {
		return nil, fmt.Errorf("moving task %s: source stage %q: %w", req.ID, req.From, ErrInvalidStage)
	}
	if to == "" {
		return nil, fmt.Errorf("moving task %s: target stage %q: %w", req.ID, req.To, ErrInvalidStage)
	}
	if req.TargetOrder != nil && *req.TargetOrder < 0 {
		return nil, fmt.Errorf("moving task %s: negative order: %w", req.ID, ErrInvalidInput)
	}
	if from == to {
		return &MoveResult{Moved: false}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	unlock, err := e.acquire()
	if err != nil {
		return nil, fmt.Errorf("moving task %s: %w", req.ID, err)
	}
	defer unlock()

	op := uuid.NewString()
	log := e.log.With("op", op, "task", req.ID)

	task, err := e.scan.findTask(req.ID, from)
	if err != nil {
		return nil, fmt.Errorf("moving task %s: %w", req.ID, err)
	}
	src := task.FilePath
	dst := e.ws.TaskPath(to, fileStem(src))
	if _, err := e.fs.Stat(dst); err == nil {
		return nil, fmt.Errorf("moving task %s to %s: %w", req.ID, to, ErrCollision)
	} else if !storage.IsNotFound(err) {
		return nil, fmt.Errorf("moving task %s: %w", req.ID, err)
	}

	order := 0
	if req.TargetOrder != nil {
		order = *req.TargetOrder
	} else if order, err = e.scan.nextOrder(to); err != nil {
		return nil, fmt.Errorf("moving task %s: %w", req.ID, err)
	}

	original, err := e.fs.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("moving task %s: %w", req.ID, err)
	}
	info, err := e.fs.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("moving task %s: %w", req.ID, err)
	}
	if err := e.fs.Mkdir(e.ws.StageDir(string(to)), true); err != nil {
		return nil, fmt.Errorf("moving task %s: creating %s folder: %w", req.ID, to, err)
	}

	doc := ParseDocument(string(original))
	id, err := e.keepID(doc.Meta.String(keyID), src)
	if err != nil {
		return nil, fmt.Errorf("moving task %s: %w", req.ID, err)
	}
	doc.Meta.SetString(keyID, id)
	ensureDefaults(doc.Meta, src, info, to, e.now())
	doc.Meta.SetInt(keyOrder, order)
	content, err := doc.String()
	if err != nil {
		return nil, fmt.Errorf("moving task %s: %w", req.ID, err)
	}

	key := src
	if real, err := e.fs.RealPath(src); err == nil {
		key = real
	}
	_, tracked := e.fps.Lookup(key)
	run := &transition{
		e:         e,
		log:       log,
		track:     tracked,
		key:       key,
		src:       src,
		dst:       dst,
		taskID:    task.ID,
		pathStage: from,
		target:    to,
		content:   []byte(content),
		revert:    original,
	}
	run.drive(StateDestinationWrite)
	if run.err != nil {
		return nil, run.err
	}

	result := &MoveResult{Task: run.task, OldPath: src, NewPath: dst, Moved: true}
	if req.TargetOrder != nil {
		shifted, err := e.shiftSiblings(to, order, dst)
		if err != nil {
			log.Warn("shifting sibling order failed", "stage", to, "error", err)
		}
		result.Shifted = shifted
	}

	log.Info("task moved", "from", from, "to", to, "order", order)
	emitEvent(e.events, EventTaskMoved, map[string]any{
		"task_id": run.taskID,
		"from":    string(from),
		"to":      string(to),
		"order":   order,
	})
	return result, nil
}

// keepID returns the declared id of the task in src, or the file stem when
// the id is missing, malformed or names another task's file.
func (e *engine) keepID(declared, src string) (string, error) {
	stem := fileStem(src)
	declared = strings.TrimSpace(declared)
	if declared == "" || declared == stem || strings.ContainsAny(declared, `/\`) {
		return stem, nil
	}
	taken, err := e.scan.idTaken(declared)
	if err != nil {
		return "", err
	}
	if taken {
		return stem, nil
	}
	return declared, nil
}

func (e *engine) Reorder(ctx context.Context, id, stage string, order int) (*MoveResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st := NormalizeStage(stage, "")
	if st == "" {
		return nil, fmt.Errorf("reordering task %s: stage %q: %w", id, stage, ErrInvalidStage)
	}
	if order < 0 {
		return nil, fmt.Errorf("reordering task %s: negative order: %w", id, ErrInvalidInput)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	unlock, err := e.acquire()
	if err != nil {
		return nil, fmt.Errorf("reordering task %s: %w", id, err)
	}
	defer unlock()

	task, err := e.scan.findTask(id, st)
	if err != nil {
		return nil, fmt.Errorf("reordering task %s: %w", id, err)
	}
	if err := e.rewriteOrder(task.FilePath, st, order); err != nil {
		return nil, fmt.Errorf("reordering task %s: %w", id, err)
	}
	shifted, err := e.shiftSiblings(st, order, task.FilePath)
	if err != nil {
		return nil, fmt.Errorf("reordering task %s: %w", id, err)
	}

	updated, err := e.scan.readTask(task.FilePath, st)
	if err != nil {
		return nil, fmt.Errorf("reordering task %s: %w", id, err)
	}
	emitEvent(e.events, EventTaskReordered, map[string]any{
		"task_id": id,
		"stage":   string(st),
		"order":   order,
	})
	return &MoveResult{Task: updated, OldPath: task.FilePath, NewPath: task.FilePath, Shifted: shifted}, nil
}

// shiftSiblings increments the order of every task in stage's canonical
// folder whose order is at least from, skipping the file at except.
func (e *engine) shiftSiblings(stage models.Stage, from int, except string) ([]string, error) {
	siblings, err := e.scan.loadFolder(e.ws.StageDir(string(stage)), stage)
	if err != nil {
		return nil, err
	}
	var shifted []string
	for _, s := range siblings {
		if s.FilePath == except || s.Order == nil || *s.Order < from {
			continue
		}
		if err := e.rewriteOrder(s.FilePath, stage, *s.Order+1); err != nil {
			return shifted, err
		}
		shifted = append(shifted, s.ID)
	}
	return shifted, nil
}

// rewriteOrder sets order, stage and updated on the file at path. A tracked
// fingerprint follows the write since the change is ours.
func (e *engine) rewriteOrder(path string, stage models.Stage, order int) error {
	raw, err := e.fs.ReadFile(path)
	if err != nil {
		return err
	}
	info, err := e.fs.Stat(path)
	if err != nil {
		return err
	}
	doc := ParseDocument(string(raw))
	ensureDefaults(doc.Meta, path, info, stage, e.now())
	doc.Meta.SetInt(keyOrder, order)
	out, err := doc.String()
	if err != nil {
		return err
	}
	if err := e.fs.WriteFile(path, []byte(out)); err != nil {
		return err
	}
	e.refreshIfTracked(path)
	return nil
}

func (e *engine) refreshIfTracked(path string) {
	key := path
	if real, err := e.fs.RealPath(path); err == nil {
		key = real
	}
	if _, ok := e.fps.Lookup(key); !ok {
		return
	}
	if info, err := e.fs.Stat(key); err == nil {
		e.fps.Record(key, info.Modified)
	}
}

func (e *engine) Save(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.save(req)
}

func (e *engine) ForceSave(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if real, err := e.fs.RealPath(req.Path); err == nil {
		e.fps.Forget(real)
	}
	e.fps.Forget(req.Path)
	return e.save(req)
}

func (e *engine) save(req SaveRequest) (*SaveResult, error) {
	unlock, err := e.acquire()
	if err != nil {
		return nil, fmt.Errorf("saving %s: %w", req.Path, err)
	}
	defer unlock()

	op := uuid.NewString()
	run := &transition{
		e:   e,
		req: req,
		log: e.log.With("op", op, "path", req.Path),
	}
	run.drive(StateValidating)

	result := &SaveResult{
		Task:  run.task,
		Path:  run.finalPath,
		Moved: run.moved,
		From:  run.pathStage,
		To:    run.target,
		Trace: run.trace,
	}
	if run.err != nil {
		return result, run.err
	}
	return result, nil
}
