// Package plantree implements path addressing, traversal, and the primitive
// mutators for a project's phase/task tree.
package plantree

import (
	"fmt"
	"strings"

	"github.com/Seasonsling/clarion/internal/models"
)

// Path addresses one task within a project plan. Phase selects the phase,
// Project (when non-nil) selects a nested project inside it, and Tasks is the
// ordered sequence of child indices from the owning task list down to the
// target: every index but the last descends into a task's subtasks.
type Path struct {
	Phase   int   `json:"phaseIndex"`
	Project *int  `json:"projectIndex,omitempty"`
	Tasks   []int `json:"taskPath"`
}

// Depth returns the number of task-list hops below the owning list.
func (p Path) Depth() int { return len(p.Tasks) }

func (p Path) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d", p.Phase)
	if p.Project != nil {
		fmt.Fprintf(&sb, ".%d", *p.Project)
	}
	for i, idx := range p.Tasks {
		if i == 0 {
			sb.WriteString("/")
		} else {
			sb.WriteString(".")
		}
		fmt.Fprintf(&sb, "%d", idx)
	}
	return sb.String()
}

// SameOwner reports whether two paths address tasks under the same top-level
// task list (same phase and same nested project, if any).
func (p Path) SameOwner(other Path) bool {
	if p.Phase != other.Phase {
		return false
	}
	if (p.Project == nil) != (other.Project == nil) {
		return false
	}
	return p.Project == nil || *p.Project == *other.Project
}

// Contains reports whether other addresses a task inside the subtree rooted
// at p's task. Used to reject moves of a task into its own descendants.
func (p Path) Contains(other Path) bool {
	if !p.SameOwner(other) {
		return false
	}
	if len(other.Tasks) <= len(p.Tasks) {
		return false
	}
	for i, idx := range p.Tasks {
		if other.Tasks[i] != idx {
			return false
		}
	}
	return true
}

// listOwner returns the task list the path's first index applies to: the
// phase's own list, or a nested project's.
func listOwner(proj *models.Project, p Path) (*[]*models.Task, bool) {
	if proj == nil || p.Phase < 0 || p.Phase >= len(proj.Phases) {
		return nil, false
	}
	phase := proj.Phases[p.Phase]
	if p.Project == nil {
		return &phase.Tasks, true
	}
	if *p.Project < 0 || *p.Project >= len(phase.Projects) {
		return nil, false
	}
	return &phase.Projects[*p.Project].Tasks, true
}

// Resolve locates the task addressed by p. It returns the task, the list
// that directly contains it, and its index in that list. A false ok means
// the path does not resolve (out-of-range index, missing list), which is an
// expected outcome for stale paths, never a panic.
func Resolve(proj *models.Project, p Path) (task *models.Task, parent *[]*models.Task, index int, ok bool) {
	list, ok := listOwner(proj, p)
	if !ok || len(p.Tasks) == 0 {
		return nil, nil, 0, false
	}
	for i, idx := range p.Tasks {
		if idx < 0 || idx >= len(*list) {
			return nil, nil, 0, false
		}
		if i == len(p.Tasks)-1 {
			return (*list)[idx], list, idx, true
		}
		list = &(*list)[idx].Subtasks
	}
	return nil, nil, 0, false
}

// PathOf searches the plan for a task id and returns its path. The second
// return is false when no task carries that id.
func PathOf(proj *models.Project, id string) (Path, bool) {
	for node := range Walk(proj) {
		if node.Task.ID == id {
			return node.Path, true
		}
	}
	return Path{}, false
}
