package plantree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seasonsling/clarion/internal/models"
)

func TestNormalize_AssignsMissingIDs(t *testing.T) {
	p := &models.Project{Phases: []*models.Phase{{
		Name: "P",
		Tasks: []*models.Task{
			{Name: "no id", Subtasks: []*models.Task{{Name: "child no id"}}},
			{ID: "keep", Name: "has id"},
		},
	}}}

	n := Normalize(p)
	assert.Equal(t, 2, n)
	assert.NotEmpty(t, p.Phases[0].Tasks[0].ID)
	assert.NotEmpty(t, p.Phases[0].Tasks[0].Subtasks[0].ID)
	assert.Equal(t, "keep", p.Phases[0].Tasks[1].ID)
}

func TestNormalize_DeduplicatesIDs(t *testing.T) {
	p := &models.Project{Phases: []*models.Phase{{
		Name: "P",
		Tasks: []*models.Task{
			{ID: "dup", Name: "first"},
			{ID: "dup", Name: "second"},
		},
		Projects: []*models.NestedProject{
			{Name: "N", Tasks: []*models.Task{{ID: "dup", Name: "third"}}},
		},
	}}}

	n := Normalize(p)
	assert.Equal(t, 2, n, "first occurrence keeps its id")
	assert.Equal(t, "dup", p.Phases[0].Tasks[0].ID)
	assert.NotEqual(t, "dup", p.Phases[0].Tasks[1].ID)
	assert.NotEqual(t, "dup", p.Phases[0].Projects[0].Tasks[0].ID)

	// All ids unique afterwards.
	seen := make(map[string]bool)
	for node := range Walk(p) {
		require.False(t, seen[node.Task.ID], "duplicate id %s survived", node.Task.ID)
		seen[node.Task.ID] = true
	}
}

func TestNormalize_DefaultsAndCompleted(t *testing.T) {
	p := &models.Project{Phases: []*models.Phase{{
		Name: "P",
		Tasks: []*models.Task{
			{ID: "t1", Name: "no status"},
			{ID: "t2", Name: "done but flag off", Status: models.TaskStatusDone},
			{ID: "t3", Name: "todo but flag on", Status: models.TaskStatusTodo, Completed: true},
		},
	}}}

	Normalize(p)
	assert.Equal(t, models.TaskStatusTodo, p.Phases[0].Tasks[0].Status)
	assert.False(t, p.Phases[0].Tasks[0].Completed)
	assert.True(t, p.Phases[0].Tasks[1].Completed)
	assert.False(t, p.Phases[0].Tasks[2].Completed)
}

func TestNormalize_Idempotent(t *testing.T) {
	p := testPlan()
	assert.Equal(t, 0, Normalize(p))
	assert.Equal(t, 0, Normalize(p))
}

func TestNormalize_Nil(t *testing.T) {
	assert.Equal(t, 0, Normalize(nil))
}

func TestNewID_Unique(t *testing.T) {
	a := NewID()
	b := NewID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
