package plantree

import (
	"time"

	"github.com/Seasonsling/clarion/internal/models"
)

// TaskPatch is a partial task record for shallow-merge updates. Nil fields
// are left untouched on the target task.
type TaskPatch struct {
	Name         *string              `json:"name,omitempty"`
	Status       *models.TaskStatus   `json:"status,omitempty"`
	Priority     *models.TaskPriority `json:"priority,omitempty"`
	Details      *string              `json:"details,omitempty"`
	Start        *time.Time           `json:"start,omitempty"`
	Due          *time.Time           `json:"due,omitempty"`
	Assignees    []string             `json:"assignees,omitempty"`
	Notes        *string              `json:"notes,omitempty"`
	Dependencies []string             `json:"dependencies,omitempty"`
}

// MovePosition selects where a moved task lands relative to the drop target.
type MovePosition string

const (
	MoveBefore MovePosition = "before"
	MoveAfter  MovePosition = "after"
)

// Insert places t into the list addressed by p, before the task currently at
// the path's last index. An index equal to the list length appends. Returns
// false when the path does not resolve to a list position.
func Insert(proj *models.Project, p Path, t *models.Task) bool {
	if t == nil || len(p.Tasks) == 0 {
		return false
	}
	list, idx, ok := resolveSlot(proj, p)
	if !ok {
		return false
	}
	*list = append(*list, nil)
	copy((*list)[idx+1:], (*list)[idx:])
	(*list)[idx] = t
	return true
}

// InsertSubtask appends t to the subtask list of the task addressed by p,
// creating the list if the task has none yet.
func InsertSubtask(proj *models.Project, p Path, t *models.Task) bool {
	if t == nil {
		return false
	}
	parent, _, _, ok := Resolve(proj, p)
	if !ok {
		return false
	}
	parent.Subtasks = append(parent.Subtasks, t)
	return true
}

// Update shallow-merges patch into the task addressed by p. When the patch
// carries a status, the derived completed flag is recomputed.
func Update(proj *models.Project, p Path, patch TaskPatch) bool {
	task, _, _, ok := Resolve(proj, p)
	if !ok {
		return false
	}
	if patch.Name != nil {
		task.Name = *patch.Name
	}
	if patch.Status != nil {
		task.SetStatus(*patch.Status)
	}
	if patch.Priority != nil {
		task.Priority = *patch.Priority
	}
	if patch.Details != nil {
		task.Details = *patch.Details
	}
	if patch.Start != nil {
		start := *patch.Start
		task.Start = &start
	}
	if patch.Due != nil {
		due := *patch.Due
		task.Due = &due
	}
	if patch.Assignees != nil {
		task.Assignees = patch.Assignees
	}
	if patch.Notes != nil {
		task.Notes = *patch.Notes
	}
	if patch.Dependencies != nil {
		task.Dependencies = patch.Dependencies
	}
	return true
}

// Delete removes the task addressed by p from its parent list and returns it.
func Delete(proj *models.Project, p Path) (*models.Task, bool) {
	task, list, idx, ok := Resolve(proj, p)
	if !ok {
		return nil, false
	}
	*list = append((*list)[:idx], (*list)[idx+1:]...)
	return task, true
}

// Move removes the task at drag and re-inserts it before or after the task
// at drop. A drop inside the dragged task's own subtree is rejected with no
// state change. When source and destination share a list and the source
// precedes the drop target, the drop index is shifted down by one to
// compensate for the removal.
func Move(proj *models.Project, drag, drop Path, pos MovePosition) bool {
	if drag.Contains(drop) {
		return false
	}
	_, srcList, srcIdx, ok := Resolve(proj, drag)
	if !ok {
		return false
	}
	_, dstList, dstIdx, ok := Resolve(proj, drop)
	if !ok {
		return false
	}
	task := (*srcList)[srcIdx]
	*srcList = append((*srcList)[:srcIdx], (*srcList)[srcIdx+1:]...)

	if srcList == dstList && srcIdx < dstIdx {
		dstIdx--
	}
	if pos == MoveAfter {
		dstIdx++
	}
	if dstIdx > len(*dstList) {
		dstIdx = len(*dstList)
	}
	*dstList = append(*dstList, nil)
	copy((*dstList)[dstIdx+1:], (*dstList)[dstIdx:])
	(*dstList)[dstIdx] = task
	return true
}

// resolveSlot resolves a path to an insertion slot: the containing list and
// an index that may equal the list length (append position).
func resolveSlot(proj *models.Project, p Path) (*[]*models.Task, int, bool) {
	list, ok := listOwner(proj, p)
	if !ok || len(p.Tasks) == 0 {
		return nil, 0, false
	}
	for i, idx := range p.Tasks {
		if i == len(p.Tasks)-1 {
			if idx < 0 || idx > len(*list) {
				return nil, 0, false
			}
			return list, idx, true
		}
		if idx < 0 || idx >= len(*list) {
			return nil, 0, false
		}
		list = &(*list)[idx].Subtasks
	}
	return nil, 0, false
}
