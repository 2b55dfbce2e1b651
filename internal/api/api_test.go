package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seasonsling/clarion/internal/models"
	"github.com/Seasonsling/clarion/internal/store"
)

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return NewServer(s, nil, nil), s
}

func seedPlan(t *testing.T, s store.Store) *models.Project {
	t.Helper()
	p := &models.Project{
		Name:    "release",
		OwnerID: "alice",
		Members: []models.Member{
			{UserID: "bob", Role: models.RoleEditor},
			{UserID: "eve", Role: models.RoleViewer},
		},
		Phases: []*models.Phase{{
			Name: "Build",
			Tasks: []*models.Task{
				{ID: "a", Name: "design", Status: models.TaskStatusTodo, Subtasks: []*models.Task{
					{ID: "a1", Name: "wireframes", Status: models.TaskStatusTodo},
				}},
				{ID: "b", Name: "implement", Status: models.TaskStatusTodo, Dependencies: []string{"a"}},
			},
		}},
	}
	require.NoError(t, s.CreateProject(context.Background(), p))
	return p
}

func doJSON(t *testing.T, h http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndGetPlan(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router()

	rec := doJSON(t, h, "POST", "/api/v1/plans", "alice", map[string]any{
		"name": "launch",
		"phases": []map[string]any{
			{"name": "Prep", "tasks": []map[string]any{{"name": "book venue"}}},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "alice", created.OwnerID, "owner defaults to the caller")
	assert.NotEmpty(t, created.Phases[0].Tasks[0].ID, "tasks are normalized on ingest")

	rec = doJSON(t, h, "GET", "/api/v1/plans/"+created.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGetPlan_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), "GET", "/api/v1/plans/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListPlans_FiltersByUser(t *testing.T) {
	srv, s := newTestServer(t)
	seedPlan(t, s)

	other := &models.Project{Name: "private", OwnerID: "zed"}
	require.NoError(t, s.CreateProject(context.Background(), other))

	rec := doJSON(t, srv.Router(), "GET", "/api/v1/plans", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var plans []models.Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plans))
	require.Len(t, plans, 1)
	assert.Equal(t, "release", plans[0].Name)
}

func TestUpdateTask(t *testing.T) {
	srv, s := newTestServer(t)
	p := seedPlan(t, s)

	rec := doJSON(t, srv.Router(), "POST", "/api/v1/plans/"+p.ID+"/tasks/update", "bob", map[string]any{
		"path":  map[string]any{"phaseIndex": 0, "taskPath": []int{1}},
		"patch": map[string]any{"status": "done"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := s.GetProject(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusDone, got.Phases[0].Tasks[1].Status)
	assert.True(t, got.Phases[0].Tasks[1].Completed)
}

func TestUpdateTask_StalePath(t *testing.T) {
	srv, s := newTestServer(t)
	p := seedPlan(t, s)

	rec := doJSON(t, srv.Router(), "POST", "/api/v1/plans/"+p.ID+"/tasks/update", "", map[string]any{
		"path":  map[string]any{"phaseIndex": 0, "taskPath": []int{42}},
		"patch": map[string]any{"status": "done"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestInsertTask(t *testing.T) {
	srv, s := newTestServer(t)
	p := seedPlan(t, s)

	rec := doJSON(t, srv.Router(), "POST", "/api/v1/plans/"+p.ID+"/tasks", "alice", map[string]any{
		"path": map[string]any{"phaseIndex": 0, "taskPath": []int{2}},
		"task": map[string]any{"name": "review"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := s.GetProject(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, got.Phases[0].Tasks, 3)
	assert.Equal(t, "review", got.Phases[0].Tasks[2].Name)
	assert.NotEmpty(t, got.Phases[0].Tasks[2].ID)
}

func TestInsertSubtask(t *testing.T) {
	srv, s := newTestServer(t)
	p := seedPlan(t, s)

	rec := doJSON(t, srv.Router(), "POST", "/api/v1/plans/"+p.ID+"/tasks", "alice", map[string]any{
		"path":    map[string]any{"phaseIndex": 0, "taskPath": []int{1}},
		"task":    map[string]any{"name": "backend"},
		"subtask": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := s.GetProject(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, got.Phases[0].Tasks[1].Subtasks, 1)
	assert.Equal(t, "backend", got.Phases[0].Tasks[1].Subtasks[0].Name)
}

func TestDeleteTask(t *testing.T) {
	srv, s := newTestServer(t)
	p := seedPlan(t, s)

	rec := doJSON(t, srv.Router(), "POST", "/api/v1/plans/"+p.ID+"/tasks/delete", "alice", map[string]any{
		"path": map[string]any{"phaseIndex": 0, "taskPath": []int{0, 0}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Removed models.Task `json:"removed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "wireframes", resp.Removed.Name)
}

func TestMoveTask(t *testing.T) {
	srv, s := newTestServer(t)
	p := seedPlan(t, s)

	rec := doJSON(t, srv.Router(), "POST", "/api/v1/plans/"+p.ID+"/tasks/move", "alice", map[string]any{
		"from":     map[string]any{"phaseIndex": 0, "taskPath": []int{1}},
		"to":       map[string]any{"phaseIndex": 0, "taskPath": []int{0}},
		"position": "before",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := s.GetProject(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "implement", got.Phases[0].Tasks[0].Name)
}

func TestMoveTask_IntoOwnSubtreeIsNoOp(t *testing.T) {
	srv, s := newTestServer(t)
	p := seedPlan(t, s)

	// Dropping "design" inside its own subtask list: 200, nothing changes.
	rec := doJSON(t, srv.Router(), "POST", "/api/v1/plans/"+p.ID+"/tasks/move", "alice", map[string]any{
		"from": map[string]any{"phaseIndex": 0, "taskPath": []int{0}},
		"to":   map[string]any{"phaseIndex": 0, "taskPath": []int{0, 0}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := s.GetProject(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "design", got.Phases[0].Tasks[0].Name)
	assert.Len(t, got.Phases[0].Tasks, 2)
}

func TestApplyOps(t *testing.T) {
	srv, s := newTestServer(t)
	p := seedPlan(t, s)

	ops := []map[string]any{
		{"op": "update", "path": map[string]any{"phaseIndex": 0, "taskPath": []int{0}}, "patch": map[string]any{"status": "done"}},
		{"op": "delete", "path": map[string]any{"phaseIndex": 0, "taskPath": []int{1}}},
		{"op": "delete", "path": map[string]any{"phaseIndex": 0, "taskPath": []int{99}}},
	}
	rec := doJSON(t, srv.Router(), "POST", "/api/v1/plans/"+p.ID+"/ops", "bob", ops)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Result struct {
			Applied int `json:"applied"`
			Skipped []struct {
				Reason string `json:"reason"`
			} `json:"skipped"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Result.Applied)
	require.Len(t, resp.Result.Skipped, 1)
	assert.Equal(t, "path not found", resp.Result.Skipped[0].Reason)
}

func TestDiffPlan(t *testing.T) {
	srv, s := newTestServer(t)
	p := seedPlan(t, s)

	proposed := p.Clone()
	proposed.Phases[0].Tasks[0].Name = "design v2"
	proposed.Phases[0].Tasks = append(proposed.Phases[0].Tasks, &models.Task{Name: "ship it"})

	rec := doJSON(t, srv.Router(), "POST", "/api/v1/plans/"+p.ID+"/diff", "", proposed)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Added    int `json:"added"`
		Modified int `json:"modified"`
		Deleted  int `json:"deleted"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Added)
	assert.Equal(t, 1, resp.Modified)
	assert.Equal(t, 0, resp.Deleted)
}

func TestRoleEnforcement(t *testing.T) {
	srv, s := newTestServer(t)
	p := seedPlan(t, s)
	h := srv.Router()

	body := map[string]any{
		"path":  map[string]any{"phaseIndex": 0, "taskPath": []int{0}},
		"patch": map[string]any{"status": "done"},
	}
	url := fmt.Sprintf("/api/v1/plans/%s/tasks/update", p.ID)

	// Viewer may not edit; stranger may not either; editor and owner may.
	assert.Equal(t, http.StatusForbidden, doJSON(t, h, "POST", url, "eve", body).Code)
	assert.Equal(t, http.StatusForbidden, doJSON(t, h, "POST", url, "mallory", body).Code)
	assert.Equal(t, http.StatusOK, doJSON(t, h, "POST", url, "bob", body).Code)
	assert.Equal(t, http.StatusOK, doJSON(t, h, "POST", url, "alice", body).Code)
}

func TestDeletePlan_AdminOnly(t *testing.T) {
	srv, s := newTestServer(t)
	p := seedPlan(t, s)
	h := srv.Router()

	assert.Equal(t, http.StatusForbidden, doJSON(t, h, "DELETE", "/api/v1/plans/"+p.ID, "bob", nil).Code)
	assert.Equal(t, http.StatusNoContent, doJSON(t, h, "DELETE", "/api/v1/plans/"+p.ID, "alice", nil).Code)
}

func TestPropose_NoLLMConfigured(t *testing.T) {
	srv, s := newTestServer(t)
	p := seedPlan(t, s)

	rec := doJSON(t, srv.Router(), "POST", "/api/v1/plans/"+p.ID+"/propose", "alice", map[string]any{
		"instruction": "add QA",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPlanHealth(t *testing.T) {
	srv, s := newTestServer(t)
	p := seedPlan(t, s)

	rec := doJSON(t, srv.Router(), "GET", "/api/v1/plans/"+p.ID+"/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var h struct {
		TaskCount    int `json:"taskCount"`
		BlockedCount int `json:"blockedCount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.Equal(t, 3, h.TaskCount)
	assert.Equal(t, 1, h.BlockedCount)
}

func TestPlanLayers(t *testing.T) {
	srv, s := newTestServer(t)
	p := seedPlan(t, s)

	rec := doJSON(t, srv.Router(), "GET", "/api/v1/plans/"+p.ID+"/layers", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Layers [][]string `json:"layers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Layers, 2)
	assert.ElementsMatch(t, []string{"a", "a1"}, resp.Layers[0])
	assert.Equal(t, []string{"b"}, resp.Layers[1])
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("OPTIONS", "/api/v1/plans", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
