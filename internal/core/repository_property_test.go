package core

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/valter-silva-au/taskboard/internal/storage"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// Feature: taskboard, Property 3: Created ids are unique
// However titles repeat or collide after slugging, every created task gets
// its own id and file.
func TestProperty_CreatedIDsUnique(t *testing.T) {
	titles := rapid.SampledFrom([]string{"Fix bug", "fix-bug", "FIX BUG!", "Fix bug 2", "Docs", "!!!"})
	stages := rapid.SampledFrom(models.Stages())

	rapid.Check(t, func(rt *rapid.T) {
		_, ws := newTestWorkspace(t)
		repo := newTestRepo(ws, storage.NewOSFileStore())

		n := rapid.IntRange(1, 8).Draw(rt, "n")
		seen := make(map[string]bool)
		for i := 0; i < n; i++ {
			task, err := repo.Create(CreateRequest{
				Title: titles.Draw(rt, "title"),
				Stage: string(stages.Draw(rt, "stage")),
			})
			if err != nil {
				rt.Fatalf("Create: %v", err)
			}
			if seen[task.ID] {
				rt.Fatalf("duplicate id %q", task.ID)
			}
			seen[task.ID] = true
			if fileStem(task.FilePath) != task.ID {
				rt.Fatalf("file %s does not match id %s", task.FilePath, task.ID)
			}
		}

		tasks, err := repo.List()
		if err != nil {
			rt.Fatalf("List: %v", err)
		}
		if len(tasks) != n {
			rt.Fatalf("List returned %d tasks, want %d", len(tasks), n)
		}
	})
}

// Feature: taskboard, Property 4: Creation order is dense per stage
// Tasks created into a stage receive orders 0, 1, 2, ... in creation order.
func TestProperty_CreationOrderDense(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		_, ws := newTestWorkspace(t)
		repo := newTestRepo(ws, storage.NewOSFileStore())

		stages := rapid.SliceOfN(rapid.SampledFrom([]models.Stage{models.StageQueue, models.StageCode}), 1, 10).Draw(rt, "stages")
		next := map[models.Stage]int{}
		for i, st := range stages {
			task, err := repo.Create(CreateRequest{Title: "task " + string(rune('a'+i)), Stage: string(st)})
			if err != nil {
				rt.Fatalf("Create: %v", err)
			}
			if task.Order == nil || *task.Order != next[st] {
				rt.Fatalf("task %d in %s has order %v, want %d", i, st, task.Order, next[st])
			}
			next[st]++
		}
	})
}
