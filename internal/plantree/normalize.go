package plantree

import (
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Seasonsling/clarion/internal/models"
)

// NewID generates a new ULID string for a task.
func NewID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Normalize enforces plan invariants on an ingested tree (from storage, an
// import, or the LLM): every task carries a project-wide unique id, and the
// derived completed flag mirrors status. Tasks with a missing or duplicate
// id get a fresh one, tracked by a seen-set during a depth-first walk.
// Returns the number of ids reassigned.
func Normalize(proj *models.Project) int {
	if proj == nil {
		return 0
	}
	seen := make(map[string]bool)
	reassigned := 0
	var fix func(tasks []*models.Task)
	fix = func(tasks []*models.Task) {
		for _, t := range tasks {
			if t.ID == "" || seen[t.ID] {
				t.ID = NewID()
				reassigned++
			}
			seen[t.ID] = true
			if t.Status == "" {
				t.Status = models.TaskStatusTodo
			}
			t.Completed = t.Status == models.TaskStatusDone
			fix(t.Subtasks)
		}
	}
	for _, phase := range proj.Phases {
		fix(phase.Tasks)
		for _, np := range phase.Projects {
			fix(np.Tasks)
		}
	}
	return reassigned
}
