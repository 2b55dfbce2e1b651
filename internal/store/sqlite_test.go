package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seasonsling/clarion/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func samplePlan(name string) *models.Project {
	return &models.Project{
		Name:    name,
		OwnerID: "alice",
		Members: []models.Member{
			{UserID: "bob", Role: models.RoleEditor},
		},
		Phases: []*models.Phase{{
			Name: "Build",
			Tasks: []*models.Task{
				{ID: "t1", Name: "design", Status: models.TaskStatusTodo},
				{ID: "t2", Name: "implement", Status: models.TaskStatusDone, Completed: true, Subtasks: []*models.Task{
					{ID: "t3", Name: "backend", Status: models.TaskStatusDone, Completed: true},
				}},
			},
			Projects: []*models.NestedProject{
				{Name: "Infra", Tasks: []*models.Task{{ID: "t4", Name: "ci", Status: models.TaskStatusTodo}}},
			},
		}},
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestCreateAndGetProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := samplePlan("release")
	require.NoError(t, s.CreateProject(ctx, p))
	assert.NotEmpty(t, p.ID, "id assigned when absent")
	assert.False(t, p.CreatedAt.IsZero())

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "release", got.Name)
	assert.Equal(t, "alice", got.OwnerID)
	require.Len(t, got.Phases, 1)
	assert.Len(t, got.Phases[0].Tasks, 2)
	assert.Equal(t, "backend", got.Phases[0].Tasks[1].Subtasks[0].Name)
	assert.Equal(t, "ci", got.Phases[0].Projects[0].Tasks[0].Name)
	require.Len(t, got.Members, 1)
	assert.Equal(t, models.RoleEditor, got.Members[0].Role)
}

func TestCreateProject_DuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := samplePlan("one")
	require.NoError(t, s.CreateProject(ctx, p))

	dup := samplePlan("two")
	dup.ID = p.ID
	err := s.CreateProject(ctx, dup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestGetProject_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetProject(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestUpdateProject_ReplacesDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := samplePlan("release")
	require.NoError(t, s.CreateProject(ctx, p))

	p.Name = "release v2"
	p.Phases[0].Tasks = p.Phases[0].Tasks[:1]
	p.Members = append(p.Members, models.Member{UserID: "carol", Role: models.RoleViewer})
	require.NoError(t, s.UpdateProject(ctx, p))

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "release v2", got.Name)
	assert.Len(t, got.Phases[0].Tasks, 1)
	assert.Len(t, got.Members, 2, "membership rows mirror the document")
	assert.True(t, got.UpdatedAt.After(got.CreatedAt) || got.UpdatedAt.Equal(got.CreatedAt))
}

func TestUpdateProject_NotFound(t *testing.T) {
	s := newTestStore(t)

	p := samplePlan("ghost")
	p.ID = "missing"
	err := s.UpdateProject(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestUpdateProject_LastWriteWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := samplePlan("release")
	require.NoError(t, s.CreateProject(ctx, p))

	first, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	second, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)

	first.Phases[0].Tasks[0].Name = "from first"
	require.NoError(t, s.UpdateProject(ctx, first))

	second.Phases[0].Tasks[0].Name = "from second"
	require.NoError(t, s.UpdateProject(ctx, second))

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "from second", got.Phases[0].Tasks[0].Name)
}

func TestDeleteProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := samplePlan("release")
	require.NoError(t, s.CreateProject(ctx, p))
	require.NoError(t, s.DeleteProject(ctx, p.ID))

	_, err := s.GetProject(ctx, p.ID)
	assert.Error(t, err)

	err = s.DeleteProject(ctx, p.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestListProjects_MembershipFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mine := samplePlan("mine")
	mine.OwnerID = "alice"
	mine.Members = nil
	require.NoError(t, s.CreateProject(ctx, mine))

	shared := samplePlan("shared")
	shared.OwnerID = "bob"
	shared.Members = []models.Member{{UserID: "alice", Role: models.RoleViewer}}
	require.NoError(t, s.CreateProject(ctx, shared))

	other := samplePlan("other")
	other.OwnerID = "bob"
	other.Members = nil
	require.NoError(t, s.CreateProject(ctx, other))

	plans, err := s.ListProjects(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "mine", plans[0].Name)
	assert.Equal(t, "shared", plans[1].Name)

	// Empty user id is local mode: everything.
	all, err := s.ListProjects(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestListProjects_LoadsMembersWithSingleConnection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"alpha", "beta", "gamma"} {
		p := samplePlan(name)
		p.Members = []models.Member{
			{UserID: "bob", Role: models.RoleEditor},
			{UserID: "carol", Role: models.RoleViewer},
		}
		require.NoError(t, s.CreateProject(ctx, p))
	}

	// The pool holds one connection. Listing must not issue the member
	// query while the project rows are still open, or it waits forever on
	// the connection the open rows hold. The deadline turns a regression
	// into a failure instead of a hang.
	bounded, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	plans, err := s.ListProjects(bounded, "")
	require.NoError(t, err)
	require.Len(t, plans, 3)
	for _, p := range plans {
		require.Len(t, p.Members, 2)
		assert.Equal(t, "bob", p.Members[0].UserID)
		assert.Equal(t, "carol", p.Members[1].UserID)
	}
}
