package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleCanEdit(t *testing.T) {
	assert.True(t, RoleAdmin.CanEdit())
	assert.True(t, RoleEditor.CanEdit())
	assert.False(t, RoleViewer.CanEdit())
	assert.False(t, Role("ghost").CanEdit())
}

func TestRoleOf(t *testing.T) {
	p := &Project{
		OwnerID: "alice",
		Members: []Member{
			{UserID: "bob", Role: RoleEditor},
			{UserID: "eve", Role: RoleViewer},
		},
	}

	role, ok := p.RoleOf("alice")
	require.True(t, ok)
	assert.Equal(t, RoleAdmin, role, "owner is always admin")

	role, ok = p.RoleOf("bob")
	require.True(t, ok)
	assert.Equal(t, RoleEditor, role)

	_, ok = p.RoleOf("mallory")
	assert.False(t, ok)

	_, ok = p.RoleOf("")
	assert.False(t, ok)
}

func TestSetStatus(t *testing.T) {
	task := &Task{Status: TaskStatusTodo}

	task.SetStatus(TaskStatusDone)
	assert.True(t, task.Completed)

	task.SetStatus(TaskStatusInProgress)
	assert.False(t, task.Completed)
}

func TestClone_DeepCopy(t *testing.T) {
	due := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	p := &Project{
		ID:      "p1",
		Name:    "release",
		OwnerID: "alice",
		Phases: []*Phase{{
			Name: "Build",
			Tasks: []*Task{
				{ID: "a", Name: "design", Status: TaskStatusTodo, Due: &due, Subtasks: []*Task{
					{ID: "a1", Name: "wireframes", Status: TaskStatusTodo},
				}},
			},
		}},
	}

	c := p.Clone()
	require.NotNil(t, c)
	assert.Equal(t, p.ID, c.ID)

	// Mutating the clone leaves the original alone.
	c.Phases[0].Tasks[0].Name = "changed"
	c.Phases[0].Tasks[0].Subtasks[0].SetStatus(TaskStatusDone)
	assert.Equal(t, "design", p.Phases[0].Tasks[0].Name)
	assert.False(t, p.Phases[0].Tasks[0].Subtasks[0].Completed)
	require.NotNil(t, c.Phases[0].Tasks[0].Due)
	assert.True(t, c.Phases[0].Tasks[0].Due.Equal(due))
}
