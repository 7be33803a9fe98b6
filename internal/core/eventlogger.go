package core

// EventLogger is the subset of the observability event log that core
// services need. Defining it here avoids importing the observability package.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}

// Event types written by the repository, transition engine and migrator.
const (
	EventTaskCreated        = "task.created"
	EventTaskDuplicated     = "task.duplicated"
	EventTaskDeleted        = "task.deleted"
	EventTaskMoved          = "task.moved"
	EventTaskReordered      = "task.reordered"
	EventTaskSaved          = "task.saved"
	EventTaskConflict       = "task.conflict"
	EventTaskMoveFailed     = "task.move_failed"
	EventTaskReverted       = "task.reverted"
	EventMigrationCompleted = "migration.completed"
)

// emitEvent logs to events when one is configured. Event logging never
// fails the operation that produced it.
func emitEvent(events EventLogger, eventType string, data map[string]any) {
	if events == nil {
		return
	}
	_ = events.LogEvent(eventType, data)
}
