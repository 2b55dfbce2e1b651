// Package change applies an ordered batch of discrete add/update/delete
// operations to a live plan tree in an order that avoids index invalidation.
package change

import (
	"log/slog"
	"sort"

	"github.com/Seasonsling/clarion/internal/models"
	"github.com/Seasonsling/clarion/internal/plantree"
)

// Op enumerates the operation kinds.
type Op string

const (
	OpAdd    Op = "add"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Operation is one typed instruction targeting a path. Add carries the task
// to insert (the path addresses the insertion slot; an index equal to the
// list length appends). Update carries a partial task record to merge.
type Operation struct {
	Op    Op                  `json:"op"`
	Path  plantree.Path       `json:"path"`
	Task  *models.Task        `json:"task,omitempty"`
	Patch *plantree.TaskPatch `json:"patch,omitempty"`
}

// Skipped records one operation that failed to apply, with the reason.
type Skipped struct {
	Op     Operation `json:"op"`
	Reason string    `json:"reason"`
}

// Result summarizes a batch application.
type Result struct {
	Applied int       `json:"applied"`
	Skipped []Skipped `json:"skipped,omitempty"`
}

// Apply runs a heterogeneous batch against the plan. Updates and adds apply
// first in their original order; deletes apply afterwards, sorted deepest
// path first and, within a depth, rightmost index first, so no delete ever
// shifts the index a later delete still depends on. A single failing
// operation is logged and skipped; the rest of the batch still applies.
// Callers wanting undo must snapshot the tree before calling.
func Apply(proj *models.Project, ops []Operation, logger *slog.Logger) Result {
	if logger == nil {
		logger = slog.Default()
	}
	var updatesAndAdds, deletes []Operation
	for _, op := range ops {
		if op.Op == OpDelete {
			deletes = append(deletes, op)
		} else {
			updatesAndAdds = append(updatesAndAdds, op)
		}
	}
	sort.SliceStable(deletes, func(i, j int) bool {
		return deleteBefore(deletes[i].Path, deletes[j].Path)
	})

	var res Result
	for _, op := range updatesAndAdds {
		if reason := applyOne(proj, op); reason != "" {
			logger.Warn("skipping operation", "op", string(op.Op), "path", op.Path.String(), "reason", reason)
			res.Skipped = append(res.Skipped, Skipped{Op: op, Reason: reason})
			continue
		}
		res.Applied++
	}
	for _, op := range deletes {
		if _, ok := plantree.Delete(proj, op.Path); !ok {
			logger.Warn("skipping operation", "op", "delete", "path", op.Path.String(), "reason", "path not found")
			res.Skipped = append(res.Skipped, Skipped{Op: op, Reason: "path not found"})
			continue
		}
		res.Applied++
	}
	return res
}

// deleteBefore orders deletes deepest-first, then by descending index at
// each level of the shared prefix.
func deleteBefore(a, b plantree.Path) bool {
	if a.Depth() != b.Depth() {
		return a.Depth() > b.Depth()
	}
	for i := range a.Tasks {
		if i >= len(b.Tasks) {
			break
		}
		if a.Tasks[i] != b.Tasks[i] {
			return a.Tasks[i] > b.Tasks[i]
		}
	}
	return false
}

func applyOne(proj *models.Project, op Operation) string {
	switch op.Op {
	case OpUpdate:
		if op.Patch == nil {
			return "update without patch"
		}
		if !plantree.Update(proj, op.Path, *op.Patch) {
			return "path not found"
		}
	case OpAdd:
		if op.Task == nil {
			return "add without task"
		}
		if op.Task.ID == "" {
			op.Task.ID = plantree.NewID()
		}
		op.Task.Completed = op.Task.Status == models.TaskStatusDone
		if !plantree.Insert(proj, op.Path, op.Task) {
			return "path not found"
		}
	default:
		return "unknown op"
	}
	return ""
}
