package cli

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/internal/storage"
)

// captureStdout captures stdout output during fn execution.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("creating pipe: %v", err)
	}
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = origStdout

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading pipe: %v", err)
	}
	return string(out)
}

// setupBoard initializes a workspace in a temp dir and points the package
// services at it for the duration of the test.
func setupBoard(t *testing.T) core.Workspace {
	t.Helper()
	base := t.TempDir()
	fs := storage.NewOSFileStore()
	if _, err := core.NewWorkspaceInitializer(fs).Init(base); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ws := core.NewWorkspace(base)
	fps := core.NewFingerprintTable()

	origBase, origRepo, origEngine, origMigrator, origInit := BasePath, Repo, Engine, Migrator, WorkspaceInit
	t.Cleanup(func() {
		BasePath, Repo, Engine, Migrator, WorkspaceInit = origBase, origRepo, origEngine, origMigrator, origInit
	})

	BasePath = base
	Migrator = core.NewMigrator(fs, ws, nil, nil)
	Repo = core.NewTaskRepository(fs, ws, core.RepositoryOptions{Fingerprints: fps, Migrator: Migrator})
	Engine = core.NewTransitionEngine(fs, ws, core.EngineOptions{Fingerprints: fps})
	WorkspaceInit = core.NewWorkspaceInitializer(fs)
	return ws
}

// resetFlags restores every flag of cmd to its default after the test.
func resetFlags(t *testing.T, cmd *cobra.Command) {
	t.Helper()
	t.Cleanup(func() {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				_ = sv.Replace(nil)
			} else {
				_ = f.Value.Set(f.DefValue)
			}
			f.Changed = false
		})
	})
}

func mustCreateTask(t *testing.T, title, stage string) string {
	t.Helper()
	task, err := Repo.Create(core.CreateRequest{Title: title, Stage: stage})
	if err != nil {
		t.Fatalf("Create(%q): %v", title, err)
	}
	return task.ID
}

// taskless wraps an engine whose writes succeed but whose results carry no
// task, as when the written file no longer parses back.
type taskless struct {
	core.StageTransitioner
}

func (e taskless) Move(ctx context.Context, req core.MoveRequest) (*core.MoveResult, error) {
	res, err := e.StageTransitioner.Move(ctx, req)
	if res != nil {
		res.Task = nil
	}
	return res, err
}

func (e taskless) Save(ctx context.Context, req core.SaveRequest) (*core.SaveResult, error) {
	res, err := e.StageTransitioner.Save(ctx, req)
	if res != nil {
		res.Task = nil
	}
	return res, err
}
