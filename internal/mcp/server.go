// Package mcp exposes the plan store and mutation engine as MCP tools so
// coding agents can drive the same engine the CLI and API use.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Seasonsling/clarion/internal/change"
	"github.com/Seasonsling/clarion/internal/health"
	"github.com/Seasonsling/clarion/internal/models"
	"github.com/Seasonsling/clarion/internal/plantree"
	"github.com/Seasonsling/clarion/internal/store"
)

// Server wraps the clarion data layer and exposes it as MCP tools.
type Server struct {
	store  store.Store
	scorer *health.Scorer
}

// NewServer creates the MCP server wrapper.
func NewServer(s store.Store) *Server {
	return &Server{
		store:  s,
		scorer: health.NewScorer(),
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("clarion", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listPlansTool())
	srv.AddTool(s.showPlanTool())
	srv.AddTool(s.updateTaskTool())
	srv.AddTool(s.applyOperationsTool())
	srv.AddTool(s.planHealthTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// resolvePlan finds a plan by id or exact name.
func (s *Server) resolvePlan(ctx context.Context, ref string) (*models.Project, error) {
	if p, err := s.store.GetProject(ctx, ref); err == nil {
		return p, nil
	}
	plans, err := s.store.ListProjects(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, p := range plans {
		if p.Name == ref {
			return p, nil
		}
	}
	return nil, fmt.Errorf("plan not found: %s", ref)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// clarion_list_plans
func (s *Server) listPlansTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("clarion_list_plans",
		mcp.WithDescription("List all project plans. Returns a JSON array with id, name, owner, phase count, and task count."),
	)
	return tool, s.handleListPlans
}

func (s *Server) handleListPlans(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	plans, err := s.store.ListProjects(ctx, "")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list plans: %v", err)), nil
	}

	type planOut struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Owner  string `json:"owner"`
		Phases int    `json:"phases"`
		Tasks  int    `json:"tasks"`
	}

	out := make([]planOut, len(plans))
	for i, p := range plans {
		out[i] = planOut{
			ID:     p.ID,
			Name:   p.Name,
			Owner:  p.OwnerID,
			Phases: len(p.Phases),
			Tasks:  plantree.Count(p),
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal plans: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// clarion_show_plan
func (s *Server) showPlanTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("clarion_show_plan",
		mcp.WithDescription("Show a plan's full phase/task tree as JSON. Task paths for mutation tools are derived from this structure: phaseIndex, optional projectIndex, and taskPath (chain of child indices, descending into subtasks)."),
		mcp.WithString("plan", mcp.Required(), mcp.Description("Plan id or name")),
	)
	return tool, s.handleShowPlan
}

func (s *Server) handleShowPlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := request.RequireString("plan")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: plan"), nil
	}
	p, err := s.resolvePlan(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal plan: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// clarion_update_task
func (s *Server) updateTaskTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("clarion_update_task",
		mcp.WithDescription("Update one task in a plan by path. The patch is a JSON object of task fields to change (name, status, priority, details, notes, assignees, dependencies). Setting status to done marks the task completed."),
		mcp.WithString("plan", mcp.Required(), mcp.Description("Plan id or name")),
		mcp.WithString("path", mcp.Required(), mcp.Description(`Path JSON, e.g. {"phaseIndex":0,"taskPath":[1,0]}`)),
		mcp.WithString("patch", mcp.Required(), mcp.Description("Partial task JSON with the fields to change")),
	)
	return tool, s.handleUpdateTask
}

func (s *Server) handleUpdateTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := request.RequireString("plan")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: plan"), nil
	}
	pathJSON, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: path"), nil
	}
	patchJSON, err := request.RequireString("patch")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: patch"), nil
	}

	var path plantree.Path
	if err := json.Unmarshal([]byte(pathJSON), &path); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid path: %v", err)), nil
	}
	var patch plantree.TaskPatch
	if err := json.Unmarshal([]byte(patchJSON), &patch); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid patch: %v", err)), nil
	}

	p, err := s.resolvePlan(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !plantree.Update(p, path, patch) {
		return mcp.NewToolResultError(fmt.Sprintf("path not found: %s", path.String())), nil
	}
	if err := s.store.UpdateProject(ctx, p); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save plan: %v", err)), nil
	}

	task, _, _, _ := plantree.Resolve(p, path)
	data, _ := json.Marshal(task)
	return mcp.NewToolResultText(string(data)), nil
}

// clarion_apply_operations
func (s *Server) applyOperationsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("clarion_apply_operations",
		mcp.WithDescription(`Apply a batch of change operations to a plan. Operations is a JSON array of {"op":"add","path":…,"task":…} | {"op":"update","path":…,"patch":…} | {"op":"delete","path":…}. Deletes are reordered for index safety; failed operations are skipped and reported.`),
		mcp.WithString("plan", mcp.Required(), mcp.Description("Plan id or name")),
		mcp.WithString("operations", mcp.Required(), mcp.Description("JSON array of change operations")),
	)
	return tool, s.handleApplyOperations
}

func (s *Server) handleApplyOperations(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := request.RequireString("plan")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: plan"), nil
	}
	opsJSON, err := request.RequireString("operations")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: operations"), nil
	}

	var ops []change.Operation
	if err := json.Unmarshal([]byte(opsJSON), &ops); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid operations: %v", err)), nil
	}

	p, err := s.resolvePlan(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res := change.Apply(p, ops, nil)
	plantree.Normalize(p)
	if res.Applied > 0 {
		if err := s.store.UpdateProject(ctx, p); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to save plan: %v", err)), nil
		}
	}

	data, _ := json.Marshal(res)
	return mcp.NewToolResultText(string(data)), nil
}

// clarion_plan_health
func (s *Server) planHealthTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("clarion_plan_health",
		mcp.WithDescription("Compute a plan's health score: completion, schedule pressure (overdue tasks), flow (dependency-blocked tasks), and recency."),
		mcp.WithString("plan", mcp.Required(), mcp.Description("Plan id or name")),
	)
	return tool, s.handlePlanHealth
}

func (s *Server) handlePlanHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := request.RequireString("plan")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: plan"), nil
	}
	p, err := s.resolvePlan(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := json.Marshal(s.scorer.Score(p))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal health: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
