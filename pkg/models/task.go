package models

import "time"

// Stage represents a named phase of a task's workflow. Each stage maps 1:1
// to a folder under the tasks root.
type Stage string

const (
	StageIdea      Stage = "idea"
	StageQueue     Stage = "queue"
	StagePlan      Stage = "plan"
	StageCode      Stage = "code"
	StageAudit     Stage = "audit"
	StageCompleted Stage = "completed"
	StageArchive   Stage = "archive"
)

// Stages returns the canonical stages in board order.
func Stages() []Stage {
	return []Stage{
		StageIdea,
		StageQueue,
		StagePlan,
		StageCode,
		StageAudit,
		StageCompleted,
		StageArchive,
	}
}

// IsActive reports whether tasks in this stage are considered work in flight.
func (s Stage) IsActive() bool {
	switch s {
	case StagePlan, StageCode, StageAudit:
		return true
	}
	return false
}

// Task is the in-memory view of one task document. Stage always reflects the
// folder the document lives in, not necessarily its frontmatter.
type Task struct {
	ID          string    `yaml:"id" json:"id"`
	Title       string    `yaml:"title" json:"title"`
	Stage       Stage     `yaml:"stage" json:"stage"`
	Phase       string    `yaml:"phase,omitempty" json:"phase,omitempty"`
	Agent       string    `yaml:"agent,omitempty" json:"agent,omitempty"`
	Contexts    []string  `yaml:"contexts,omitempty" json:"contexts,omitempty"`
	Tags        []string  `yaml:"tags,omitempty" json:"tags,omitempty"`
	Created     time.Time `yaml:"created" json:"created"`
	Updated     time.Time `yaml:"updated" json:"updated"`
	Order       *int      `yaml:"order,omitempty" json:"order,omitempty"`
	FilePath    string    `yaml:"-" json:"filePath"`
	UserContent string    `yaml:"-" json:"userContent,omitempty"`
}

// OrderValue returns the task's order, or -1 when none is set.
func (t *Task) OrderValue() int {
	if t.Order == nil {
		return -1
	}
	return *t.Order
}
