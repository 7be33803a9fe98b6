package core

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/valter-silva-au/taskboard/internal/storage"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// SaveState is a step of a save or move. Every invocation ends in one of
// Done, Aborted, Reverted, RevertFailed or Failed.
type SaveState string

const (
	StateValidating       SaveState = "validating"
	StateConflictCheck    SaveState = "conflict_check"
	StateParsing          SaveState = "parsing"
	StateStageDecision    SaveState = "stage_decision"
	StateInPlaceWrite     SaveState = "in_place_write"
	StateDestinationWrite SaveState = "destination_write"
	StateCrossDeviceCopy  SaveState = "cross_device_copy"
	StateSourceDelete     SaveState = "source_delete"
	StateMoveFailed       SaveState = "move_failed"
	StateRevertAttempt    SaveState = "revert_attempt"
	StateDone             SaveState = "done"
	StateAborted          SaveState = "aborted"
	StateReverted         SaveState = "reverted"
	StateRevertFailed     SaveState = "revert_failed"
	StateFailed           SaveState = "failed"
)

// Terminal reports whether no transition leaves s.
func (s SaveState) Terminal() bool {
	switch s {
	case StateDone, StateAborted, StateReverted, StateRevertFailed, StateFailed:
		return true
	}
	return false
}

// transition is a single run of the save state machine. Save starts it at
// StateValidating; Move prepares src, dst and content itself and starts at
// StateDestinationWrite.
type transition struct {
	e   *engine
	req SaveRequest
	log *slog.Logger

	key       string // symlink-free source path, the fingerprint key
	root      string // symlink-free tasks root
	src       string
	dst       string
	info      storage.FileInfo
	taskID    string
	pathStage models.Stage
	target    models.Stage
	doc       *Document
	origMeta  *Metadata

	content []byte
	revert  []byte
	// track keeps a fingerprint for the file after a successful write.
	track bool

	finalPath string
	moved     bool
	task      *models.Task
	moveErr   error
	err       error
	trace     []SaveState
}

func (t *transition) drive(start SaveState) {
	state := start
	for !state.Terminal() {
		t.trace = append(t.trace, state)
		state = t.step(state)
	}
	t.trace = append(t.trace, state)
	t.log.Debug("save finished", "state", state, "trace", t.trace)
}

func (t *transition) step(s SaveState) SaveState {
	switch s {
	case StateValidating:
		return t.validate()
	case StateConflictCheck:
		return t.checkConflict()
	case StateParsing:
		return t.parse()
	case StateStageDecision:
		return t.decide()
	case StateInPlaceWrite:
		return t.writeInPlace()
	case StateDestinationWrite:
		return t.writeDestination()
	case StateCrossDeviceCopy:
		return t.copyCrossDevice()
	case StateSourceDelete:
		return t.deleteSource()
	case StateMoveFailed:
		return t.moveFailed()
	case StateRevertAttempt:
		return t.attemptRevert()
	default:
		t.err = fmt.Errorf("unexpected save state %q", s)
		return StateFailed
	}
}

func (t *transition) fail(err error) SaveState {
	t.err = err
	return StateFailed
}

func (t *transition) validate() SaveState {
	real, root, err := t.e.resolveTaskPath(t.req.Path)
	if err != nil {
		return t.fail(fmt.Errorf("saving %s: %w", t.req.Path, err))
	}
	info, err := t.e.fs.Stat(real)
	if err != nil {
		return t.fail(fmt.Errorf("saving %s: %w", t.req.Path, err))
	}
	t.key, t.src, t.root, t.info = real, real, root, info
	t.track = !t.req.CloseAfterSave
	return StateConflictCheck
}

func (t *transition) checkConflict() SaveState {
	if !t.e.fps.Conflicts(t.key, t.info.Modified) {
		return StateParsing
	}
	stored, _ := t.e.fps.Lookup(t.key)
	t.log.Warn("save aborted: file modified externally",
		"recorded", stored, "current", t.info.Modified)
	emitEvent(t.e.events, EventTaskConflict, map[string]any{"path": t.key})
	t.err = fmt.Errorf("saving %s: %w", t.req.Path, ErrConflict)
	return StateAborted
}

func (t *transition) parse() SaveState {
	t.pathStage = StageFromPath(t.root, t.src)
	if t.pathStage == "" {
		return t.fail(fmt.Errorf("saving %s: cannot determine stage from path: %w", t.req.Path, ErrInvalidStage))
	}

	original, err := t.e.fs.ReadFile(t.src)
	if err != nil {
		return t.fail(fmt.Errorf("saving %s: %w", t.req.Path, err))
	}
	t.origMeta = ParseDocument(string(original)).Meta

	t.doc = ParseDocument(t.req.Content)
	t.req.Patch.Apply(t.doc.Meta)
	// created is immutable. File birth time is only a fallback since every
	// write replaces the file.
	if !t.doc.Meta.Has(keyCreated) {
		if v, ok := t.origMeta.Get(keyCreated); ok {
			t.doc.Meta.Set(keyCreated, v)
		}
	}
	t.taskID = t.doc.Meta.String(keyID)
	if t.taskID == "" {
		t.taskID = fileStem(t.src)
	}
	return StateStageDecision
}

func (t *transition) decide() SaveState {
	t.target = NormalizeStage(t.doc.Meta.String(keyStage), t.pathStage)
	if t.target == t.pathStage {
		return StateInPlaceWrite
	}

	t.dst = filepath.Join(t.root, string(t.target), filepath.Base(t.src))
	if _, err := t.e.fs.Stat(t.dst); err == nil {
		return t.fail(fmt.Errorf("saving %s: moving to %s: %w", t.req.Path, t.target, ErrCollision))
	} else if !storage.IsNotFound(err) {
		return t.fail(fmt.Errorf("saving %s: %w", t.req.Path, err))
	}
	if err := t.e.fs.Mkdir(filepath.Dir(t.dst), true); err != nil {
		return t.fail(fmt.Errorf("saving %s: creating %s folder: %w", t.req.Path, t.target, err))
	}
	order, err := t.e.scan.nextOrder(t.target)
	if err != nil {
		return t.fail(fmt.Errorf("saving %s: %w", t.req.Path, err))
	}

	now := t.e.now()
	ensureDefaults(t.doc.Meta, t.src, t.info, t.target, now)
	t.doc.Meta.SetInt(keyOrder, order)
	content, err := t.doc.String()
	if err != nil {
		return t.fail(fmt.Errorf("saving %s: %w", t.req.Path, err))
	}
	t.content = []byte(content)

	// The revert keeps the user's edits but puts stage, id and order back.
	back := t.doc.Meta.Clone()
	back.SetString(keyStage, string(t.pathStage))
	restoreKey(back, t.origMeta, keyID)
	restoreKey(back, t.origMeta, keyOrder)
	revert, err := Serialize(back, t.doc.Body)
	if err != nil {
		return t.fail(fmt.Errorf("saving %s: %w", t.req.Path, err))
	}
	t.revert = []byte(revert)
	return StateDestinationWrite
}

// restoreKey copies key from orig into meta, or removes it when orig lacks it.
func restoreKey(meta, orig *Metadata, key string) {
	if v, ok := orig.Get(key); ok {
		meta.Set(key, v)
		return
	}
	meta.Delete(key)
}

func (t *transition) writeInPlace() SaveState {
	ensureDefaults(t.doc.Meta, t.src, t.info, t.pathStage, t.e.now())
	content, err := t.doc.String()
	if err != nil {
		return t.fail(fmt.Errorf("saving %s: %w", t.req.Path, err))
	}
	if err := t.e.fs.WriteFile(t.src, []byte(content)); err != nil {
		return t.fail(fmt.Errorf("saving %s: %w", t.req.Path, err))
	}
	t.finalPath = t.src
	return t.done()
}

// writeDestination stages the new content in the source file and renames it
// into the destination folder under the same name.
func (t *transition) writeDestination() SaveState {
	if err := t.e.fs.WriteFile(t.src, t.content); err != nil {
		t.moveErr = err
		return StateMoveFailed
	}
	err := t.e.fs.Rename(t.src, t.dst)
	switch {
	case err == nil:
		t.finalPath, t.moved = t.dst, true
		return t.done()
	case errors.Is(err, storage.ErrCrossDevice):
		t.log.Debug("rename crossed devices, copying instead", "to", t.dst)
		return StateCrossDeviceCopy
	default:
		t.moveErr = err
		return StateMoveFailed
	}
}

func (t *transition) copyCrossDevice() SaveState {
	if err := t.e.fs.Copy(t.src, t.dst, false); err != nil {
		t.moveErr = err
		return StateMoveFailed
	}
	return StateSourceDelete
}

func (t *transition) deleteSource() SaveState {
	if err := t.e.fs.Delete(t.src, false); err != nil {
		// Two copies would break id uniqueness; drop the new one.
		if rmErr := t.e.fs.Delete(t.dst, false); rmErr != nil {
			t.log.Error("removing destination copy failed", "path", t.dst, "error", rmErr)
		}
		t.moveErr = err
		return StateMoveFailed
	}
	t.finalPath, t.moved = t.dst, true
	return t.done()
}

func (t *transition) moveFailed() SaveState {
	t.log.Warn("move failed, reverting", "from", t.pathStage, "to", t.target, "error", t.moveErr)
	emitEvent(t.e.events, EventTaskMoveFailed, map[string]any{
		"task_id": t.taskID,
		"from":    string(t.pathStage),
		"to":      string(t.target),
		"error":   t.moveErr.Error(),
	})
	return StateRevertAttempt
}

func (t *transition) attemptRevert() SaveState {
	failure := &MoveFailedError{
		TaskID:    t.taskID,
		Attempted: t.target,
		Retained:  t.pathStage,
		Err:       t.moveErr,
	}
	if err := t.e.fs.WriteFile(t.src, t.revert); err != nil {
		t.log.Error("revert failed", "path", t.src, "error", err)
		t.e.fps.Forget(t.key)
		t.err = failure
		return StateRevertFailed
	}

	failure.Reverted = true
	if info, err := t.e.fs.Stat(t.src); err == nil && t.track {
		t.e.fps.Record(t.key, info.Modified)
	} else {
		t.e.fps.Forget(t.key)
	}
	emitEvent(t.e.events, EventTaskReverted, map[string]any{
		"task_id": t.taskID,
		"stage":   string(t.pathStage),
	})
	t.finalPath = t.src
	t.err = failure
	return StateReverted
}

// done refreshes fingerprints for the written file and reads it back.
func (t *transition) done() SaveState {
	info, statErr := t.e.fs.Stat(t.finalPath)
	final := t.finalPath
	if real, err := t.e.fs.RealPath(t.finalPath); err == nil {
		final = real
	}
	switch {
	case !t.track || statErr != nil:
		t.e.fps.Forget(t.key)
		t.e.fps.Forget(final)
	default:
		t.e.fps.Replace(t.key, final, info.Modified)
	}

	task, err := t.e.scan.readTask(t.finalPath, t.target)
	if err != nil {
		t.log.Warn("reading back saved task failed", "path", t.finalPath, "error", err)
	}
	t.task = task

	if t.req.Path != "" {
		t.log.Info("task saved", "moved", t.moved, "stage", t.target)
		emitEvent(t.e.events, EventTaskSaved, map[string]any{
			"task_id": t.taskID,
			"moved":   t.moved,
			"from":    string(t.pathStage),
			"to":      string(t.target),
		})
	}
	return StateDone
}
