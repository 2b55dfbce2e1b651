// Package diff computes identity-keyed structural diffs between two versions
// of a project plan. Comparison is by task id, not position: the LLM
// regenerates the whole tree on every call, so structural position is
// unreliable while ids are contractually stable.
package diff

import (
	"slices"
	"time"

	"github.com/Seasonsling/clarion/internal/models"
	"github.com/Seasonsling/clarion/internal/plantree"
)

// Kind classifies a per-task change.
type Kind string

const (
	KindAdded    Kind = "added"
	KindModified Kind = "modified"
	KindDeleted  Kind = "deleted"
)

// FieldDelta records one field's old and new value on a modified task.
type FieldDelta struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// Entry is the change record for one task id.
type Entry struct {
	Kind Kind `json:"kind"`
	// Old is set for deleted and modified entries, New for added and modified.
	Old *models.Task `json:"old,omitempty"`
	New *models.Task `json:"new,omitempty"`
	// Fields maps field name to its delta; modified entries only.
	Fields map[string]FieldDelta `json:"fields,omitempty"`
	// ParentLabel is the breadcrumb of the task's parent, for display only.
	ParentLabel string `json:"parentLabel,omitempty"`
}

// Diff maps task id to its change record. An empty diff means the two trees
// are semantically identical.
type Diff map[string]Entry

// Empty reports whether no task changed.
func (d Diff) Empty() bool { return len(d) == 0 }

// Stats returns the number of added, modified, and deleted entries.
func (d Diff) Stats() (added, modified, deleted int) {
	for _, e := range d {
		switch e.Kind {
		case KindAdded:
			added++
		case KindModified:
			modified++
		case KindDeleted:
			deleted++
		}
	}
	return
}

type flatEntry struct {
	task  *models.Task
	label string
}

func flatten(proj *models.Project) map[string]flatEntry {
	out := make(map[string]flatEntry)
	for node := range plantree.Walk(proj) {
		out[node.Task.ID] = flatEntry{task: node.Task, label: node.ParentLabel()}
	}
	return out
}

// field is one member of the closed set of diffable task fields, with a
// typed extractor and equality check. No reflection.
type field struct {
	name  string
	value func(*models.Task) any
	equal func(a, b *models.Task) bool
}

var fields = []field{
	{"name",
		func(t *models.Task) any { return t.Name },
		func(a, b *models.Task) bool { return a.Name == b.Name }},
	{"status",
		func(t *models.Task) any { return t.Status },
		func(a, b *models.Task) bool { return a.Status == b.Status }},
	{"priority",
		func(t *models.Task) any { return t.Priority },
		func(a, b *models.Task) bool { return a.Priority == b.Priority }},
	{"details",
		func(t *models.Task) any { return t.Details },
		func(a, b *models.Task) bool { return a.Details == b.Details }},
	{"start",
		func(t *models.Task) any { return t.Start },
		func(a, b *models.Task) bool { return timeEqual(a.Start, b.Start) }},
	{"due",
		func(t *models.Task) any { return t.Due },
		func(a, b *models.Task) bool { return timeEqual(a.Due, b.Due) }},
	{"assignees",
		func(t *models.Task) any { return t.Assignees },
		func(a, b *models.Task) bool { return slices.Equal(a.Assignees, b.Assignees) }},
	{"notes",
		func(t *models.Task) any { return t.Notes },
		func(a, b *models.Task) bool { return a.Notes == b.Notes }},
	{"dependencies",
		func(t *models.Task) any { return t.Dependencies },
		func(a, b *models.Task) bool { return slices.Equal(a.Dependencies, b.Dependencies) }},
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// Compute diffs two snapshots of the same project. Ids present only in old
// become deleted entries, only in new become added entries, and ids in both
// are compared over the fixed field set (list fields order-sensitively).
func Compute(oldProj, newProj *models.Project) Diff {
	oldFlat := flatten(oldProj)
	newFlat := flatten(newProj)
	d := make(Diff)

	for id, oe := range oldFlat {
		ne, ok := newFlat[id]
		if !ok {
			d[id] = Entry{Kind: KindDeleted, Old: oe.task, ParentLabel: oe.label}
			continue
		}
		deltas := make(map[string]FieldDelta)
		for _, f := range fields {
			if !f.equal(oe.task, ne.task) {
				deltas[f.name] = FieldDelta{From: f.value(oe.task), To: f.value(ne.task)}
			}
		}
		if len(deltas) > 0 {
			d[id] = Entry{Kind: KindModified, Old: oe.task, New: ne.task, Fields: deltas, ParentLabel: ne.label}
		}
	}
	for id, ne := range newFlat {
		if _, ok := oldFlat[id]; !ok {
			d[id] = Entry{Kind: KindAdded, New: ne.task, ParentLabel: ne.label}
		}
	}
	return d
}
