// Package mcp provides an MCP (Model Context Protocol) server that exposes
// the task board as MCP tools for AI coding assistants.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/internal/observability"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// Server wraps task board services and exposes them as MCP tools.
type Server struct {
	server      *gomcp.Server
	repo        core.TaskRepository
	engine      core.StageTransitioner
	metricsCalc observability.MetricsCalculator
	alertEngine observability.AlertEngine
	now         func() time.Time
}

// NewServer creates a new MCP server over the given services. metricsCalc
// and alertEngine may be nil when the event log is disabled.
func NewServer(repo core.TaskRepository, engine core.StageTransitioner, metricsCalc observability.MetricsCalculator, alertEngine observability.AlertEngine, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		repo:        repo,
		engine:      engine,
		metricsCalc: metricsCalc,
		alertEngine: alertEngine,
		now:         time.Now,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "taskboard", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run serves over stdio, blocking until the client disconnects or the
// context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type taskIDInput struct {
	TaskID string `json:"task_id" jsonschema:"required,the task id (the file name without .md)"`
}

type taskOutput struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Stage       string   `json:"stage"`
	Phase       string   `json:"phase,omitempty"`
	Agent       string   `json:"agent,omitempty"`
	Contexts    []string `json:"contexts,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Order       *int     `json:"order,omitempty"`
	Created     string   `json:"created"`
	Updated     string   `json:"updated"`
	FilePath    string   `json:"file_path"`
	UserContent string   `json:"user_content,omitempty"`
}

type listTasksInput struct {
	Stage string `json:"stage,omitempty" jsonschema:"only return tasks in this stage (idea, queue, plan, code, audit, completed, archive)"`
}

type listTasksOutput struct {
	Tasks []taskOutput `json:"tasks"`
	Count int          `json:"count"`
}

type createTaskInput struct {
	Title    string   `json:"title" jsonschema:"required,the task title"`
	Stage    string   `json:"stage,omitempty" jsonschema:"stage to create the task in; defaults to the workspace default"`
	Phase    string   `json:"phase,omitempty"`
	Agent    string   `json:"agent,omitempty"`
	Contexts []string `json:"contexts,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Content  string   `json:"content,omitempty" jsonschema:"text placed in the user content section"`
	Template string   `json:"template,omitempty" jsonschema:"template name under .taskboard/templates"`
}

type deleteTaskOutput struct {
	Message string `json:"message"`
}

type moveTaskInput struct {
	TaskID string `json:"task_id" jsonschema:"required,the task id"`
	Stage  string `json:"to_stage" jsonschema:"required,the destination stage"`
	Order  *int   `json:"order,omitempty" jsonschema:"position in the destination stage; later tasks shift down"`
}

type reorderTaskInput struct {
	TaskID string `json:"task_id" jsonschema:"required,the task id"`
	Order  int    `json:"order" jsonschema:"required,the new position within the current stage"`
}

type moveTaskOutput struct {
	Task    taskOutput `json:"task"`
	Moved   bool       `json:"moved"`
	OldPath string     `json:"old_path,omitempty"`
	NewPath string     `json:"new_path,omitempty"`
	Shifted []string   `json:"shifted,omitempty"`
}

type loadTaskInput struct {
	Path string `json:"path" jsonschema:"required,absolute path of the task document"`
}

type loadTaskOutput struct {
	Task     taskOutput `json:"task"`
	Path     string     `json:"path"`
	Content  string     `json:"content"`
	Modified string     `json:"modified"`
}

type saveTaskInput struct {
	Path           string `json:"path" jsonschema:"required,absolute path of the task document"`
	Content        string `json:"content" jsonschema:"required,the full document including frontmatter"`
	Force          bool   `json:"force,omitempty" jsonschema:"overwrite even if the file changed since it was loaded"`
	CloseAfterSave bool   `json:"close_after_save,omitempty" jsonschema:"stop tracking the file after writing"`

	Title    *string   `json:"title,omitempty" jsonschema:"replace the title"`
	Stage    *string   `json:"stage,omitempty" jsonschema:"replace the stage; the file moves to that folder"`
	Phase    *string   `json:"phase,omitempty" jsonschema:"replace the phase; empty clears it"`
	Agent    *string   `json:"agent,omitempty" jsonschema:"replace the agent; empty clears it"`
	Contexts *[]string `json:"contexts,omitempty" jsonschema:"replace the context files; empty clears them"`
	Tags     *[]string `json:"tags,omitempty" jsonschema:"replace the tags; empty clears them"`
}

// patch maps the optional metadata fields onto a save patch. Absent fields
// are left as the content has them.
func (in saveTaskInput) patch() core.Patch {
	var p core.Patch
	if in.Title != nil {
		p.Title = core.Set(*in.Title)
	}
	if in.Stage != nil {
		p.Stage = core.Set(*in.Stage)
	}
	if in.Phase != nil {
		p.Phase = core.Set(*in.Phase)
	}
	if in.Agent != nil {
		p.Agent = core.Set(*in.Agent)
	}
	if in.Contexts != nil {
		p.Contexts = core.Set(*in.Contexts)
	}
	if in.Tags != nil {
		p.Tags = core.Set(*in.Tags)
	}
	return p
}

type saveTaskOutput struct {
	Task  taskOutput `json:"task"`
	Path  string     `json:"path"`
	Moved bool       `json:"moved"`
	From  string     `json:"from,omitempty"`
	To    string     `json:"to,omitempty"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
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
	OldestEvent     string         `json:"oldest_event,omitempty"`
	NewestEvent     string         `json:"newest_event,omitempty"`
}

type getAlertsInput struct{}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_tasks",
		Description: "List tasks in board order, optionally limited to one stage.",
	}, s.handleListTasks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_task",
		Description: "Get a task by id, including its metadata, file path and user content.",
	}, s.handleGetTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "create_task",
		Description: "Create a task document. The id is derived from the title and made unique across all stages.",
	}, s.handleCreateTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "duplicate_task",
		Description: "Copy a task into a new task in the same stage with a fresh id and timestamps.",
	}, s.handleDuplicateTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "delete_task",
		Description: "Delete a task document.",
	}, s.handleDeleteTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "move_task",
		Description: "Move a task to another stage, optionally at a given position.",
	}, s.handleMoveTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "reorder_task",
		Description: "Change a task's position within its current stage.",
	}, s.handleReorderTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "load_task",
		Description: "Open a task document for editing. A later save_task fails if the file changes on disk in between.",
	}, s.handleLoadTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "save_task",
		Description: "Save an edited task document. Changing the stage in the frontmatter moves the file to that stage's folder.",
	}, s.handleSaveTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get aggregated metrics from the event log: creations, moves per stage, saves, conflicts and failed moves.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active alerts (stale tasks, WIP limits, queue size, unreverted failed moves).",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleListTasks(_ context.Context, _ *gomcp.CallToolRequest, input listTasksInput) (*gomcp.CallToolResult, listTasksOutput, error) {
	var stage models.Stage
	if input.Stage != "" {
		stage = core.NormalizeStage(input.Stage, "")
		if stage == "" {
			return errorResult(fmt.Sprintf("invalid stage %q", input.Stage)), listTasksOutput{}, nil
		}
	}

	tasks, err := s.repo.List()
	if err != nil {
		return failure("listing tasks", err), listTasksOutput{}, nil
	}

	out := listTasksOutput{Tasks: []taskOutput{}}
	for _, t := range tasks {
		if stage != "" && t.Stage != stage {
			continue
		}
		out.Tasks = append(out.Tasks, taskToOutput(t))
	}
	out.Count = len(out.Tasks)

	return nil, out, nil
}

func (s *Server) handleGetTask(_ context.Context, _ *gomcp.CallToolRequest, input taskIDInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), taskOutput{}, nil
	}

	task, err := s.repo.Get(input.TaskID)
	if err != nil {
		return failure("getting task "+input.TaskID, err), taskOutput{}, nil
	}

	return nil, taskToOutput(task), nil
}

func (s *Server) handleCreateTask(_ context.Context, _ *gomcp.CallToolRequest, input createTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.Title == "" {
		return errorResult("title is required"), taskOutput{}, nil
	}

	task, err := s.repo.Create(core.CreateRequest{
		Title:    input.Title,
		Stage:    input.Stage,
		Phase:    input.Phase,
		Agent:    input.Agent,
		Contexts: input.Contexts,
		Tags:     input.Tags,
		Content:  input.Content,
		Template: input.Template,
	})
	if err != nil {
		return failure("creating task", err), taskOutput{}, nil
	}

	return nil, taskToOutput(task), nil
}

func (s *Server) handleDuplicateTask(_ context.Context, _ *gomcp.CallToolRequest, input taskIDInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), taskOutput{}, nil
	}

	task, err := s.repo.Duplicate(input.TaskID)
	if err != nil {
		return failure("duplicating task "+input.TaskID, err), taskOutput{}, nil
	}

	return nil, taskToOutput(task), nil
}

func (s *Server) handleDeleteTask(_ context.Context, _ *gomcp.CallToolRequest, input taskIDInput) (*gomcp.CallToolResult, deleteTaskOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), deleteTaskOutput{}, nil
	}

	if err := s.repo.Delete(input.TaskID); err != nil {
		return failure("deleting task "+input.TaskID, err), deleteTaskOutput{}, nil
	}

	return nil, deleteTaskOutput{Message: fmt.Sprintf("task %s deleted", input.TaskID)}, nil
}

func (s *Server) handleMoveTask(ctx context.Context, _ *gomcp.CallToolRequest, input moveTaskInput) (*gomcp.CallToolResult, moveTaskOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), moveTaskOutput{}, nil
	}
	if input.Stage == "" {
		return errorResult("to_stage is required"), moveTaskOutput{}, nil
	}

	task, err := s.repo.Get(input.TaskID)
	if err != nil {
		return failure("moving task "+input.TaskID, err), moveTaskOutput{}, nil
	}

	res, err := s.engine.Move(ctx, core.MoveRequest{
		ID:          input.TaskID,
		From:        string(task.Stage),
		To:          input.Stage,
		TargetOrder: input.Order,
	})
	if err != nil {
		return failure("moving task "+input.TaskID, err), moveTaskOutput{}, nil
	}

	return nil, moveToOutput(res, task), nil
}

func (s *Server) handleReorderTask(ctx context.Context, _ *gomcp.CallToolRequest, input reorderTaskInput) (*gomcp.CallToolResult, moveTaskOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), moveTaskOutput{}, nil
	}

	task, err := s.repo.Get(input.TaskID)
	if err != nil {
		return failure("reordering task "+input.TaskID, err), moveTaskOutput{}, nil
	}

	res, err := s.engine.Reorder(ctx, input.TaskID, string(task.Stage), input.Order)
	if err != nil {
		return failure("reordering task "+input.TaskID, err), moveTaskOutput{}, nil
	}

	return nil, moveToOutput(res, task), nil
}

func (s *Server) handleLoadTask(_ context.Context, _ *gomcp.CallToolRequest, input loadTaskInput) (*gomcp.CallToolResult, loadTaskOutput, error) {
	if input.Path == "" {
		return errorResult("path is required"), loadTaskOutput{}, nil
	}

	loaded, err := s.engine.Load(input.Path)
	if err != nil {
		return failure("loading "+input.Path, err), loadTaskOutput{}, nil
	}

	return nil, loadTaskOutput{
		Task:     taskToOutput(loaded.Task),
		Path:     loaded.Path,
		Content:  loaded.Content,
		Modified: loaded.Modified.UTC().Format(time.RFC3339Nano),
	}, nil
}

func (s *Server) handleSaveTask(ctx context.Context, _ *gomcp.CallToolRequest, input saveTaskInput) (*gomcp.CallToolResult, saveTaskOutput, error) {
	if input.Path == "" {
		return errorResult("path is required"), saveTaskOutput{}, nil
	}

	req := core.SaveRequest{
		Path:           input.Path,
		Content:        input.Content,
		CloseAfterSave: input.CloseAfterSave,
		Patch:          input.patch(),
	}
	save := s.engine.Save
	if input.Force {
		save = s.engine.ForceSave
	}

	res, err := save(ctx, req)
	if err != nil {
		var mf *core.MoveFailedError
		if errors.As(err, &mf) && !mf.Reverted {
			return errorResult(fmt.Sprintf("saving %s: %s; frontmatter no longer matches the folder, fix it manually (%s)",
				input.Path, err, core.KindOf(err))), saveTaskOutput{}, nil
		}
		return failure("saving "+input.Path, err), saveTaskOutput{}, nil
	}

	out := saveTaskOutput{Path: res.Path, Moved: res.Moved}
	if res.Task != nil {
		out.Task = taskToOutput(res.Task)
	}
	if res.Moved {
		out.From = string(res.From)
		out.To = string(res.To)
	}
	return nil, out, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (event log may be disabled)"), emptyMetricsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}

	sinceTime, err := observability.ParseSince(sinceStr, s.now().UTC())
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	metrics, err := s.metricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		TasksCreated:    metrics.TasksCreated,
		TasksDuplicated: metrics.TasksDuplicated,
		TasksDeleted:    metrics.TasksDeleted,
		Moves:           metrics.Moves,
		MovesByStage:    metrics.MovesByStage,
		Reorders:        metrics.Reorders,
		Saves:           metrics.Saves,
		SavesWithMove:   metrics.SavesWithMove,
		Conflicts:       metrics.Conflicts,
		MoveFailures:    metrics.MoveFailures,
		Reverts:         metrics.Reverts,
		Migrations:      metrics.Migrations,
		EventCount:      metrics.EventCount,
	}
	if out.MovesByStage == nil {
		out.MovesByStage = make(map[string]int)
	}
	if metrics.OldestEvent != nil {
		out.OldestEvent = metrics.OldestEvent.Format(time.RFC3339)
	}
	if metrics.NewestEvent != nil {
		out.NewestEvent = metrics.NewestEvent.Format(time.RFC3339)
	}

	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.alertEngine == nil {
		return errorResult("alert engine not available"), getAlertsOutput{}, nil
	}

	alerts, err := s.alertEngine.Evaluate()
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}

	return nil, out, nil
}

// --- Helpers ---

func taskToOutput(t *models.Task) taskOutput {
	return taskOutput{
		ID:          t.ID,
		Title:       t.Title,
		Stage:       string(t.Stage),
		Phase:       t.Phase,
		Agent:       t.Agent,
		Contexts:    t.Contexts,
		Tags:        t.Tags,
		Order:       t.Order,
		Created:     core.FormatTimestamp(t.Created),
		Updated:     core.FormatTimestamp(t.Updated),
		FilePath:    t.FilePath,
		UserContent: t.UserContent,
	}
}

// moveToOutput reports res, falling back to the pre-move task for no-ops.
func moveToOutput(res *core.MoveResult, before *models.Task) moveTaskOutput {
	task := res.Task
	if task == nil {
		task = before
	}
	return moveTaskOutput{
		Task:    taskToOutput(task),
		Moved:   res.Moved,
		OldPath: res.OldPath,
		NewPath: res.NewPath,
		Shifted: res.Shifted,
	}
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{MovesByStage: make(map[string]int)}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// failure formats err with its kind so clients can tell a missing task from
// a conflict without parsing the message.
func failure(action string, err error) *gomcp.CallToolResult {
	return errorResult(fmt.Sprintf("%s: %s (%s)", action, err, core.KindOf(err)))
}
