package observability

import (
	"fmt"
	"time"
)

// Metrics holds counts derived from the event log.
type Metrics struct {
	TasksCreated    int            `json:"tasks_created"`
	TasksDuplicated int            `json:"tasks_duplicated"`
	TasksDeleted    int            `json:"tasks_deleted"`
	Moves           int            `json:"moves"`
	MovesByStage    map[string]int `json:"moves_by_stage"`
	Reorders        int            `json:"reorders"`
	Saves           int            `json:"saves"`
	SavesWithMove   int            `json:"saves_with_move"`
	Conflicts       int            `json:"conflicts"`
	MoveFailures    int            `json:"move_failures"`
	Reverts         int            `json:"reverts"`
	Migrations      int            `json:"migrations"`
	EventCount      int            `json:"event_count"`
	OldestEvent     *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent     *time.Time     `json:"newest_event,omitempty"`
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a MetricsCalculator that reads from eventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate aggregates every event at or after since. Moves by stage count
// the destination of both explicit moves and saves that relocated a file.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{MovesByStage: make(map[string]int)}
	m.EventCount = len(events)

	for i, event := range events {
		if i == 0 {
			t := event.Time
			m.OldestEvent = &t
		}
		t := event.Time
		m.NewestEvent = &t

		switch event.Type {
		case "task.created":
			m.TasksCreated++
		case "task.duplicated":
			m.TasksDuplicated++
		case "task.deleted":
			m.TasksDeleted++
		case "task.moved":
			m.Moves++
			if to, ok := event.Data["to"].(string); ok {
				m.MovesByStage[to]++
			}
		case "task.reordered":
			m.Reorders++
		case "task.saved":
			m.Saves++
			if moved, _ := event.Data["moved"].(bool); moved {
				m.SavesWithMove++
				if to, ok := event.Data["to"].(string); ok {
					m.MovesByStage[to]++
				}
			}
		case "task.conflict":
			m.Conflicts++
		case "task.move_failed":
			m.MoveFailures++
		case "task.reverted":
			m.Reverts++
		case "migration.completed":
			m.Migrations++
		}
	}

	return m, nil
}
