package plantree

import (
	"iter"
	"strings"

	"github.com/Seasonsling/clarion/internal/models"
)

// Node is one step of a depth-first plan traversal.
type Node struct {
	Task *models.Task
	Path Path
	// Breadcrumb is the display trail down to the task's parent:
	// phase name, nested-project name (if any), then ancestor task names.
	// It is for labels only, never for addressing.
	Breadcrumb []string
}

// ParentLabel renders the breadcrumb as a single display string.
func (n Node) ParentLabel() string {
	return strings.Join(n.Breadcrumb, " > ")
}

// Walk returns a lazy pre-order traversal of every task in the plan: each
// phase's direct tasks (with their subtasks) first, then each nested
// project's tasks. The traversal is restartable and assumes the tree is not
// mutated while iterating.
func Walk(proj *models.Project) iter.Seq[Node] {
	return func(yield func(Node) bool) {
		if proj == nil {
			return
		}
		for pi, phase := range proj.Phases {
			crumb := []string{phase.Name}
			if !walkTasks(phase.Tasks, Path{Phase: pi}, crumb, yield) {
				return
			}
			for ni, np := range phase.Projects {
				ni := ni
				p := Path{Phase: pi, Project: &ni}
				if !walkTasks(np.Tasks, p, append(crumb, np.Name), yield) {
					return
				}
			}
		}
	}
}

func walkTasks(tasks []*models.Task, base Path, crumb []string, yield func(Node) bool) bool {
	for i, t := range tasks {
		p := base
		p.Tasks = append(append([]int(nil), base.Tasks...), i)
		if !yield(Node{Task: t, Path: p, Breadcrumb: crumb}) {
			return false
		}
		child := append(append([]string(nil), crumb...), t.Name)
		if !walkTasks(t.Subtasks, p, child, yield) {
			return false
		}
	}
	return true
}

// Count returns the total number of tasks in the plan.
func Count(proj *models.Project) int {
	n := 0
	for range Walk(proj) {
		n++
	}
	return n
}
