package observability

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/valter-silva-au/taskboard/pkg/models"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

func (s AlertSeverity) rank() int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	default:
		return 2
	}
}

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds configures when alerts fire. Zero disables a check.
type AlertThresholds struct {
	StaleDays int                  `yaml:"stale_days" json:"stale_days"`
	MaxQueue  int                  `yaml:"max_queue" json:"max_queue"`
	WIPLimits map[models.Stage]int `yaml:"wip_limits" json:"wip_limits"`
}

// DefaultAlertThresholds returns sensible defaults for alert thresholds.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		StaleDays: 7,
		MaxQueue:  25,
		WIPLimits: map[models.Stage]int{},
	}
}

// TaskLister supplies the current board.
type TaskLister interface {
	List() ([]*models.Task, error)
}

// AlertEngine evaluates alert conditions against the board and event log.
type AlertEngine interface {
	Evaluate() ([]Alert, error)
}

type alertEngine struct {
	tasks      TaskLister
	eventLog   EventLog
	thresholds AlertThresholds
	now        func() time.Time
}

// NewAlertEngine creates an AlertEngine. eventLog may be nil, in which case
// only board conditions are checked.
func NewAlertEngine(tasks TaskLister, eventLog EventLog, thresholds AlertThresholds) AlertEngine {
	return &alertEngine{
		tasks:      tasks,
		eventLog:   eventLog,
		thresholds: thresholds,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate returns triggered alerts, most severe first.
func (ae *alertEngine) Evaluate() ([]Alert, error) {
	now := ae.now()
	tasks, err := ae.tasks.List()
	if err != nil {
		return nil, fmt.Errorf("listing tasks for alerts: %w", err)
	}

	var alerts []Alert
	alerts = append(alerts, ae.checkStaleTasks(tasks, now)...)
	alerts = append(alerts, ae.checkWIPLimits(tasks, now)...)
	alerts = append(alerts, ae.checkQueueSize(tasks, now)...)

	failed, err := ae.checkUnrevertedMoves(now)
	if err != nil {
		return nil, fmt.Errorf("checking failed moves: %w", err)
	}
	alerts = append(alerts, failed...)

	slices.SortStableFunc(alerts, func(a, b Alert) int {
		if c := cmp.Compare(a.Severity.rank(), b.Severity.rank()); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return alerts, nil
}

// checkStaleTasks flags tasks in plan, code or audit that have not been
// updated within the threshold.
func (ae *alertEngine) checkStaleTasks(tasks []*models.Task, now time.Time) []Alert {
	if ae.thresholds.StaleDays <= 0 {
		return nil
	}
	threshold := time.Duration(ae.thresholds.StaleDays) * 24 * time.Hour
	var alerts []Alert
	for _, t := range tasks {
		if !t.Stage.IsActive() || now.Sub(t.Updated) <= threshold {
			continue
		}
		alerts = append(alerts, Alert{
			ID:          "stale-" + t.ID,
			Condition:   "task_stale",
			Severity:    SeverityMedium,
			Message:     fmt.Sprintf("task %s in %s has not been updated for more than %d days", t.ID, t.Stage, ae.thresholds.StaleDays),
			TriggeredAt: now,
		})
	}
	return alerts
}

func (ae *alertEngine) checkWIPLimits(tasks []*models.Task, now time.Time) []Alert {
	counts := make(map[models.Stage]int)
	for _, t := range tasks {
		counts[t.Stage]++
	}
	var alerts []Alert
	for _, stage := range models.Stages() {
		limit := ae.thresholds.WIPLimits[stage]
		if limit <= 0 || counts[stage] <= limit {
			continue
		}
		alerts = append(alerts, Alert{
			ID:          "wip-" + string(stage),
			Condition:   "wip_limit_exceeded",
			Severity:    SeverityHigh,
			Message:     fmt.Sprintf("%s has %d tasks, over its limit of %d", stage, counts[stage], limit),
			TriggeredAt: now,
		})
	}
	return alerts
}

func (ae *alertEngine) checkQueueSize(tasks []*models.Task, now time.Time) []Alert {
	if ae.thresholds.MaxQueue <= 0 {
		return nil
	}
	queued := 0
	for _, t := range tasks {
		if t.Stage == models.StageQueue {
			queued++
		}
	}
	if queued <= ae.thresholds.MaxQueue {
		return nil
	}
	return []Alert{{
		ID:          "queue-size",
		Condition:   "queue_too_large",
		Severity:    SeverityLow,
		Message:     fmt.Sprintf("queue has %d tasks, exceeding the maximum of %d", queued, ae.thresholds.MaxQueue),
		TriggeredAt: now,
	}}
}

// checkUnrevertedMoves finds tasks whose last relocation failed without the
// frontmatter being restored and that have not been saved or moved since.
func (ae *alertEngine) checkUnrevertedMoves(now time.Time) ([]Alert, error) {
	if ae.eventLog == nil {
		return nil, nil
	}
	events, err := ae.eventLog.Read(EventFilter{
		Types: []string{"task.move_failed", "task.reverted", "task.saved", "task.moved"},
	})
	if err != nil {
		return nil, err
	}

	pending := make(map[string]Event)
	for _, event := range events {
		id := event.TaskID()
		if id == "" {
			continue
		}
		if event.Type == "task.move_failed" {
			pending[id] = event
		} else {
			delete(pending, id)
		}
	}

	var alerts []Alert
	for id, event := range pending {
		to, _ := event.Data["to"].(string)
		from, _ := event.Data["from"].(string)
		alerts = append(alerts, Alert{
			ID:          "move-failed-" + id,
			Condition:   "move_not_reverted",
			Severity:    SeverityHigh,
			Message:     fmt.Sprintf("task %s failed to move from %s to %s and its frontmatter may not match its folder", id, from, to),
			TriggeredAt: now,
		})
	}
	return alerts, nil
}
