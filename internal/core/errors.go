package core

import (
	"errors"
	"fmt"

	"github.com/valter-silva-au/taskboard/internal/storage"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

var (
	ErrNotInitialized = errors.New("workspace not initialized")
	ErrNotFound       = errors.New("not found")
	ErrTaskNotFound   = fmt.Errorf("task file %w", ErrNotFound)
	ErrInvalidStage   = errors.New("invalid stage")
	ErrInvalidInput   = errors.New("invalid input")
	ErrAccessDenied   = errors.New("access denied")
	ErrConflict       = errors.New("file was modified externally")
	ErrCollision      = errors.New("destination already exists")
)

// ErrorKind classifies failures so callers can react without string matching.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindNotFound
	KindValidation
	KindConflict
	KindCollision
	KindIO
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindCollision:
		return "collision"
	default:
		return "io"
	}
}

// KindOf returns the kind of err. Unclassified errors are I/O failures.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrCollision), errors.Is(err, storage.ErrExist):
		return KindCollision
	case errors.Is(err, ErrAccessDenied), errors.Is(err, ErrInvalidStage), errors.Is(err, ErrInvalidInput):
		return KindValidation
	case errors.Is(err, ErrNotInitialized), errors.Is(err, ErrNotFound), storage.IsNotFound(err):
		return KindNotFound
	default:
		return KindIO
	}
}

// MoveFailedError reports a relocation that did not complete. Retained is the
// stage the file is left in; Reverted tells whether its frontmatter was
// restored to match.
type MoveFailedError struct {
	TaskID    string
	Attempted models.Stage
	Retained  models.Stage
	Reverted  bool
	Err       error
}

func (e *MoveFailedError) Error() string {
	state := "frontmatter reverted"
	if !e.Reverted {
		state = "revert failed"
	}
	return fmt.Sprintf("moving task %s to %s failed; kept in %s (%s): %v",
		e.TaskID, e.Attempted, e.Retained, state, e.Err)
}

func (e *MoveFailedError) Unwrap() error { return e.Err }
