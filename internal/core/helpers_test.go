package core

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/valter-silva-au/taskboard/internal/storage"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// --- Helpers ---

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// newTestWorkspace initializes a workspace in a temp dir.
func newTestWorkspace(t *testing.T) (string, Workspace) {
	t.Helper()
	base := t.TempDir()
	if _, err := NewWorkspaceInitializer(storage.NewOSFileStore()).Init(base); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return base, NewWorkspace(base)
}

func writeTaskFile(t *testing.T, ws Workspace, folder, name, content string) string {
	t.Helper()
	dir := ws.StageDir(folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func readDoc(t *testing.T, path string) *Document {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return ParseDocument(string(data))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func newTestRepo(ws Workspace, fs storage.FileStore) TaskRepository {
	return NewTaskRepository(fs, ws, RepositoryOptions{Now: fixedClock})
}

func newTestEngine(ws Workspace, fs storage.FileStore) StageTransitioner {
	return NewTransitionEngine(fs, ws, EngineOptions{Now: fixedClock})
}

func mustCreate(t *testing.T, repo TaskRepository, title string, stage models.Stage) *models.Task {
	t.Helper()
	task, err := repo.Create(CreateRequest{Title: title, Stage: string(stage)})
	if err != nil {
		t.Fatalf("Create(%q): %v", title, err)
	}
	return task
}

func intPtr(n int) *int { return &n }

// faultyStore wraps a FileStore and injects failures.
type faultyStore struct {
	storage.FileStore

	mu          sync.Mutex
	renameErr   error
	copyErr     error
	deleteErr   error
	writeFailAt int // 1-based write number that starts failing; 0 disables
	writeErr    error
	writes      int
	renames     int
}

func (f *faultyStore) WriteFile(path string, data []byte) error {
	f.mu.Lock()
	f.writes++
	n := f.writes
	f.mu.Unlock()
	if f.writeFailAt > 0 && n >= f.writeFailAt {
		return f.writeErr
	}
	return f.FileStore.WriteFile(path, data)
}

func (f *faultyStore) Rename(oldPath, newPath string) error {
	f.mu.Lock()
	f.renames++
	f.mu.Unlock()
	if f.renameErr != nil {
		return f.renameErr
	}
	return f.FileStore.Rename(oldPath, newPath)
}

func (f *faultyStore) Copy(src, dst string, overwrite bool) error {
	if f.copyErr != nil {
		return f.copyErr
	}
	return f.FileStore.Copy(src, dst, overwrite)
}

func (f *faultyStore) Delete(path string, recursive bool) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.FileStore.Delete(path, recursive)
}

// mockEventLogger records events in memory.
type mockEventLogger struct {
	mu     sync.Mutex
	events []string
	data   []map[string]any
}

func (m *mockEventLogger) LogEvent(eventType string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, eventType)
	m.data = append(m.data, data)
	return nil
}

func (m *mockEventLogger) count(eventType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e == eventType {
			n++
		}
	}
	return n
}
