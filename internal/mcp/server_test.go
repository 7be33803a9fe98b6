package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/internal/observability"
	"github.com/valter-silva-au/taskboard/internal/storage"
)

// --- Fake implementations ---

type fakeMetricsCalculator struct {
	metrics *observability.Metrics
	since   time.Time
}

func (f *fakeMetricsCalculator) Calculate(since time.Time) (*observability.Metrics, error) {
	f.since = since
	return f.metrics, nil
}

type fakeAlertEngine struct {
	alerts []observability.Alert
}

func (f *fakeAlertEngine) Evaluate() ([]observability.Alert, error) {
	return f.alerts, nil
}

// --- Test helpers ---

type testBoard struct {
	ws     core.Workspace
	repo   core.TaskRepository
	engine core.StageTransitioner
}

// newTestBoard initializes a real workspace in a temp dir.
func newTestBoard(t *testing.T) *testBoard {
	t.Helper()
	base := t.TempDir()
	fs := storage.NewOSFileStore()
	if _, err := core.NewWorkspaceInitializer(fs).Init(base); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ws := core.NewWorkspace(base)
	fps := core.NewFingerprintTable()
	return &testBoard{
		ws:     ws,
		repo:   core.NewTaskRepository(fs, ws, core.RepositoryOptions{Fingerprints: fps}),
		engine: core.NewTransitionEngine(fs, ws, core.EngineOptions{Fingerprints: fps}),
	}
}

func (b *testBoard) server(metrics observability.MetricsCalculator, alerts observability.AlertEngine) *Server {
	return NewServer(b.repo, b.engine, metrics, alerts, "test")
}

func (b *testBoard) create(t *testing.T, title, stage string) string {
	t.Helper()
	task, err := b.repo.Create(core.CreateRequest{Title: title, Stage: stage})
	if err != nil {
		t.Fatalf("Create(%q): %v", title, err)
	}
	return task.ID
}

// callTool is a helper that connects a client to the server and calls a tool.
func callTool(t *testing.T, srv *Server, toolName string, args map[string]any) *gomcp.CallToolResult {
	t.Helper()

	result := callToolAllowError(t, srv, toolName, args)
	if result == nil {
		t.Fatalf("call tool %s: protocol error", toolName)
	}
	return result
}

// callToolAllowError is like callTool but returns nil instead of failing when
// the tool call returns a protocol error (e.g. schema validation failure).
func callToolAllowError(t *testing.T, srv *Server, toolName string, args map[string]any) *gomcp.CallToolResult {
	t.Helper()

	ctx := context.Background()
	client := gomcp.NewClient(&gomcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)

	t1, t2 := gomcp.NewInMemoryTransports()

	go func() {
		_ = srv.MCPServer().Run(ctx, t1)
	}()

	session, err := client.Connect(ctx, t2, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	result, err := session.CallTool(ctx, &gomcp.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		return nil
	}

	return result
}

// decodeResult unmarshals a successful result into out, preferring the text
// content and falling back to the structured content.
func decodeResult(t *testing.T, result *gomcp.CallToolResult, out any) {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}
	text := extractText(result)
	if err := json.Unmarshal([]byte(text), out); err == nil {
		return
	}
	if result.StructuredContent == nil {
		t.Fatalf("unmarshalling output (text was: %s)", text)
	}
	data, _ := json.Marshal(result.StructuredContent)
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("unmarshalling structured output: %v", err)
	}
}

func expectError(t *testing.T, result *gomcp.CallToolResult, contains string) {
	t.Helper()
	if result == nil {
		return
	}
	if !result.IsError {
		t.Fatalf("expected error result, got: %s", extractText(result))
	}
	if contains != "" && !strings.Contains(extractText(result), contains) {
		t.Errorf("error %q does not mention %q", extractText(result), contains)
	}
}

// --- Tests ---

func TestListTasks(t *testing.T) {
	b := newTestBoard(t)
	b.create(t, "Write docs", "plan")
	b.create(t, "Fix login", "queue")
	b.create(t, "Ship it", "queue")
	srv := b.server(nil, nil)

	var out listTasksOutput
	decodeResult(t, callTool(t, srv, "list_tasks", map[string]any{}), &out)

	if out.Count != 3 || len(out.Tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", out.Count)
	}
	wantIDs := []string{"fix-login", "ship-it", "write-docs"}
	for i, want := range wantIDs {
		if out.Tasks[i].ID != want {
			t.Errorf("Tasks[%d] = %s, want %s", i, out.Tasks[i].ID, want)
		}
	}
}

func TestListTasksWithStage(t *testing.T) {
	b := newTestBoard(t)
	b.create(t, "Write docs", "plan")
	b.create(t, "Check it", "audit")
	srv := b.server(nil, nil)

	var out listTasksOutput
	decodeResult(t, callTool(t, srv, "list_tasks", map[string]any{"stage": "review"}), &out)

	if out.Count != 1 || out.Tasks[0].ID != "check-it" || out.Tasks[0].Stage != "audit" {
		t.Errorf("expected only check-it in audit, got %+v", out.Tasks)
	}
}

func TestListTasksInvalidStage(t *testing.T) {
	b := newTestBoard(t)
	srv := b.server(nil, nil)

	expectError(t, callTool(t, srv, "list_tasks", map[string]any{"stage": "limbo"}), "invalid stage")
}

func TestListTasksNotInitialized(t *testing.T) {
	fs := storage.NewOSFileStore()
	ws := core.NewWorkspace(t.TempDir())
	srv := NewServer(core.NewTaskRepository(fs, ws, core.RepositoryOptions{}),
		core.NewTransitionEngine(fs, ws, core.EngineOptions{}), nil, nil, "test")

	expectError(t, callTool(t, srv, "list_tasks", map[string]any{}), "not_found")
}

func TestGetTask(t *testing.T) {
	b := newTestBoard(t)
	task, err := b.repo.Create(core.CreateRequest{
		Title:    "Fix login",
		Stage:    "code",
		Phase:    "phase-1",
		Agent:    "reviewer",
		Contexts: []string{"auth"},
		Tags:     []string{"bug"},
		Content:  "remember the cookies",
	})
	if err != nil {
		t.Fatal(err)
	}
	srv := b.server(nil, nil)

	var out taskOutput
	decodeResult(t, callTool(t, srv, "get_task", map[string]any{"task_id": task.ID}), &out)

	if out.ID != "fix-login" || out.Title != "Fix login" || out.Stage != "code" {
		t.Errorf("unexpected task: %+v", out)
	}
	if out.Phase != "phase-1" || out.Agent != "reviewer" {
		t.Errorf("phase/agent = %q/%q", out.Phase, out.Agent)
	}
	if len(out.Contexts) != 1 || len(out.Tags) != 1 {
		t.Errorf("contexts/tags = %v/%v", out.Contexts, out.Tags)
	}
	if out.Order == nil || *out.Order != 0 {
		t.Errorf("order = %v, want 0", out.Order)
	}
	if out.FilePath != b.ws.TaskPath("code", "fix-login") {
		t.Errorf("file_path = %s", out.FilePath)
	}
	if !strings.Contains(out.UserContent, "remember the cookies") {
		t.Errorf("user_content = %q", out.UserContent)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	b := newTestBoard(t)
	srv := b.server(nil, nil)

	expectError(t, callTool(t, srv, "get_task", map[string]any{"task_id": "nope"}), "not_found")
}

func TestGetTaskMissingID(t *testing.T) {
	b := newTestBoard(t)
	srv := b.server(nil, nil)

	expectError(t, callToolAllowError(t, srv, "get_task", map[string]any{}), "")
}

func TestCreateTask(t *testing.T) {
	b := newTestBoard(t)
	srv := b.server(nil, nil)

	var out taskOutput
	decodeResult(t, callTool(t, srv, "create_task", map[string]any{
		"title": "Add dark mode",
		"stage": "chat",
		"tags":  []string{"ui"},
	}), &out)

	if out.ID != "add-dark-mode" || out.Stage != "idea" {
		t.Errorf("created %+v, want add-dark-mode in idea", out)
	}
	if _, err := os.Stat(b.ws.TaskPath("idea", "add-dark-mode")); err != nil {
		t.Errorf("task file not written: %v", err)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	b := newTestBoard(t)
	srv := b.server(nil, nil)

	expectError(t, callToolAllowError(t, srv, "create_task", map[string]any{"title": ""}), "")
	expectError(t, callTool(t, srv, "create_task", map[string]any{"title": "x", "stage": "limbo"}), "validation")
}

func TestDuplicateTask(t *testing.T) {
	b := newTestBoard(t)
	id := b.create(t, "Fix login", "plan")
	srv := b.server(nil, nil)

	var out taskOutput
	decodeResult(t, callTool(t, srv, "duplicate_task", map[string]any{"task_id": id}), &out)

	if out.ID == id || out.Stage != "plan" {
		t.Errorf("duplicate = %+v", out)
	}
	if out.Title != "Fix login Copy" {
		t.Errorf("title = %q", out.Title)
	}
}

func TestDeleteTask(t *testing.T) {
	b := newTestBoard(t)
	id := b.create(t, "Fix login", "plan")
	srv := b.server(nil, nil)

	var out deleteTaskOutput
	decodeResult(t, callTool(t, srv, "delete_task", map[string]any{"task_id": id}), &out)

	if _, err := os.Stat(b.ws.TaskPath("plan", id)); !os.IsNotExist(err) {
		t.Errorf("task file still present: %v", err)
	}
	expectError(t, callTool(t, srv, "delete_task", map[string]any{"task_id": id}), "not_found")
}

func TestMoveTask(t *testing.T) {
	b := newTestBoard(t)
	id := b.create(t, "Fix login", "queue")
	b.create(t, "Existing", "code")
	srv := b.server(nil, nil)

	var out moveTaskOutput
	decodeResult(t, callTool(t, srv, "move_task", map[string]any{
		"task_id":  id,
		"to_stage": "code",
		"order":    0,
	}), &out)

	if !out.Moved || out.Task.Stage != "code" {
		t.Fatalf("move = %+v", out)
	}
	if out.NewPath != b.ws.TaskPath("code", id) {
		t.Errorf("new_path = %s", out.NewPath)
	}
	if len(out.Shifted) != 1 || out.Shifted[0] != "existing" {
		t.Errorf("shifted = %v, want [existing]", out.Shifted)
	}
	if _, err := os.Stat(b.ws.TaskPath("queue", id)); !os.IsNotExist(err) {
		t.Error("source file still exists")
	}
}

func TestMoveTaskSameStage(t *testing.T) {
	b := newTestBoard(t)
	id := b.create(t, "Fix login", "queue")
	srv := b.server(nil, nil)

	var out moveTaskOutput
	decodeResult(t, callTool(t, srv, "move_task", map[string]any{"task_id": id, "to_stage": "queue"}), &out)

	if out.Moved || out.Task.ID != id {
		t.Errorf("no-op move = %+v", out)
	}
}

func TestMoveTaskErrors(t *testing.T) {
	b := newTestBoard(t)
	id := b.create(t, "Fix login", "queue")
	srv := b.server(nil, nil)

	expectError(t, callTool(t, srv, "move_task", map[string]any{"task_id": id, "to_stage": "limbo"}), "validation")
	expectError(t, callTool(t, srv, "move_task", map[string]any{"task_id": "ghost", "to_stage": "code"}), "not_found")
}

func TestReorderTask(t *testing.T) {
	b := newTestBoard(t)
	b.create(t, "First", "plan")
	id := b.create(t, "Second", "plan")
	srv := b.server(nil, nil)

	var out moveTaskOutput
	decodeResult(t, callTool(t, srv, "reorder_task", map[string]any{"task_id": id, "order": 0}), &out)

	task, err := b.repo.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if task.Order == nil || *task.Order != 0 {
		t.Errorf("order = %v, want 0", task.Order)
	}
}

func TestLoadAndSaveTask(t *testing.T) {
	b := newTestBoard(t)
	id := b.create(t, "Fix login", "queue")
	path := b.ws.TaskPath("queue", id)
	srv := b.server(nil, nil)

	var loaded loadTaskOutput
	decodeResult(t, callTool(t, srv, "load_task", map[string]any{"path": path}), &loaded)
	if !strings.Contains(loaded.Content, "stage: queue") {
		t.Fatalf("content = %q", loaded.Content)
	}

	edited := strings.Replace(loaded.Content, "stage: queue", "stage: code", 1)
	var saved saveTaskOutput
	decodeResult(t, callTool(t, srv, "save_task", map[string]any{
		"path":    loaded.Path,
		"content": edited,
	}), &saved)

	if !saved.Moved || saved.From != "queue" || saved.To != "code" {
		t.Errorf("save = %+v, want move queue -> code", saved)
	}
	if filepath.Base(filepath.Dir(saved.Path)) != "code" {
		t.Errorf("saved path = %s", saved.Path)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("original file still exists")
	}
}

func TestSaveTaskMetadataFields(t *testing.T) {
	b := newTestBoard(t)
	id := b.create(t, "Fix login", "queue")
	path := b.ws.TaskPath("queue", id)
	srv := b.server(nil, nil)

	var loaded loadTaskOutput
	decodeResult(t, callTool(t, srv, "load_task", map[string]any{"path": path}), &loaded)

	var saved saveTaskOutput
	decodeResult(t, callTool(t, srv, "save_task", map[string]any{
		"path":    loaded.Path,
		"content": loaded.Content,
		"title":   "Fix login redirect",
		"stage":   "code",
		"tags":    []string{"auth", "urgent"},
	}), &saved)

	if !saved.Moved || saved.To != "code" {
		t.Fatalf("save = %+v, want move to code", saved)
	}
	data, err := os.ReadFile(saved.Path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"title: Fix login redirect", "stage: code", "tags: [auth, urgent]"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("saved file missing %q:\n%s", want, data)
		}
	}

	decodeResult(t, callTool(t, srv, "save_task", map[string]any{
		"path":    saved.Path,
		"content": string(data),
		"tags":    []string{},
	}), &saved)
	data, err = os.ReadFile(saved.Path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "urgent") {
		t.Errorf("empty tags should clear them:\n%s", data)
	}
	if !strings.Contains(string(data), "title: Fix login redirect") {
		t.Errorf("absent title should be left alone:\n%s", data)
	}
}

func TestSaveTaskConflict(t *testing.T) {
	b := newTestBoard(t)
	id := b.create(t, "Fix login", "queue")
	path := b.ws.TaskPath("queue", id)
	srv := b.server(nil, nil)

	var loaded loadTaskOutput
	decodeResult(t, callTool(t, srv, "load_task", map[string]any{"path": path}), &loaded)

	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(loaded.Path, later, later); err != nil {
		t.Fatal(err)
	}

	args := map[string]any{"path": loaded.Path, "content": loaded.Content + "\nmore\n"}
	expectError(t, callTool(t, srv, "save_task", args), "conflict")

	args["force"] = true
	var saved saveTaskOutput
	decodeResult(t, callTool(t, srv, "save_task", args), &saved)
	if saved.Moved {
		t.Errorf("forced save should stay in place: %+v", saved)
	}
	data, err := os.ReadFile(loaded.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "more") {
		t.Error("forced save did not write the content")
	}
}

func TestSaveTaskOutsideWorkspace(t *testing.T) {
	b := newTestBoard(t)
	srv := b.server(nil, nil)
	outside := filepath.Join(t.TempDir(), "evil.md")
	if err := os.WriteFile(outside, []byte("---\nid: evil\n---\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	expectError(t, callTool(t, srv, "save_task", map[string]any{"path": outside, "content": "x"}), "validation")
}

func TestGetMetrics(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	oldest := now.Add(-48 * time.Hour)
	mc := &fakeMetricsCalculator{
		metrics: &observability.Metrics{
			TasksCreated: 5,
			Moves:        3,
			MovesByStage: map[string]int{"code": 2, "audit": 1},
			Conflicts:    1,
			EventCount:   9,
			OldestEvent:  &oldest,
			NewestEvent:  &now,
		},
	}
	b := newTestBoard(t)
	srv := b.server(mc, nil)
	srv.now = func() time.Time { return now }

	var out metricsOutput
	decodeResult(t, callTool(t, srv, "get_metrics", map[string]any{"since": "30d"}), &out)

	if out.TasksCreated != 5 || out.Moves != 3 || out.Conflicts != 1 || out.EventCount != 9 {
		t.Errorf("metrics = %+v", out)
	}
	if out.MovesByStage["code"] != 2 {
		t.Errorf("moves_by_stage = %v", out.MovesByStage)
	}
	if out.OldestEvent == "" || out.NewestEvent == "" {
		t.Error("expected event bounds")
	}
	if want := now.AddDate(0, 0, -30); !mc.since.Equal(want) {
		t.Errorf("since = %v, want %v", mc.since, want)
	}
}

func TestGetMetricsDefaultsAndErrors(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	mc := &fakeMetricsCalculator{metrics: &observability.Metrics{}}
	b := newTestBoard(t)
	srv := b.server(mc, nil)
	srv.now = func() time.Time { return now }

	var out metricsOutput
	decodeResult(t, callTool(t, srv, "get_metrics", map[string]any{}), &out)
	if want := now.AddDate(0, 0, -7); !mc.since.Equal(want) {
		t.Errorf("default since = %v, want %v", mc.since, want)
	}

	expectError(t, callTool(t, srv, "get_metrics", map[string]any{"since": "7w"}), "parsing since")
}

func TestGetMetricsDisabled(t *testing.T) {
	b := newTestBoard(t)
	srv := b.server(nil, nil)

	expectError(t, callTool(t, srv, "get_metrics", map[string]any{}), "not available")
}

func TestGetAlerts(t *testing.T) {
	ae := &fakeAlertEngine{
		alerts: []observability.Alert{
			{
				ID:          "wip-code",
				Condition:   "wip_limit",
				Severity:    observability.SeverityHigh,
				Message:     "code holds 4 tasks (limit 3)",
				TriggeredAt: time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC),
			},
		},
	}
	b := newTestBoard(t)
	srv := b.server(nil, ae)

	var out getAlertsOutput
	decodeResult(t, callTool(t, srv, "get_alerts", map[string]any{}), &out)

	if out.Count != 1 || out.Alerts[0].ID != "wip-code" {
		t.Fatalf("alerts = %+v", out.Alerts)
	}
	if out.Alerts[0].Severity != "high" {
		t.Errorf("expected high severity, got %s", out.Alerts[0].Severity)
	}
}

func TestGetAlertsEmpty(t *testing.T) {
	b := newTestBoard(t)
	srv := b.server(nil, &fakeAlertEngine{alerts: []observability.Alert{}})

	var out getAlertsOutput
	decodeResult(t, callTool(t, srv, "get_alerts", map[string]any{}), &out)

	if out.Count != 0 {
		t.Errorf("expected 0 alerts, got %d", out.Count)
	}
}

func TestGetAlertsDisabled(t *testing.T) {
	b := newTestBoard(t)
	srv := b.server(nil, nil)

	expectError(t, callTool(t, srv, "get_alerts", map[string]any{}), "not available")
}

// extractText extracts the text from the first TextContent in a CallToolResult.
func extractText(result *gomcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(*gomcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}
