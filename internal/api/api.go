// Package api exposes the plan store and mutation engine over REST.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Seasonsling/clarion/internal/change"
	"github.com/Seasonsling/clarion/internal/diff"
	"github.com/Seasonsling/clarion/internal/health"
	"github.com/Seasonsling/clarion/internal/llm"
	"github.com/Seasonsling/clarion/internal/models"
	"github.com/Seasonsling/clarion/internal/plantree"
	"github.com/Seasonsling/clarion/internal/store"
)

// Server provides the REST API handlers.
type Server struct {
	store  store.Store
	llm    *llm.Client
	scorer *health.Scorer
	logger *slog.Logger
}

// NewServer creates a new API server.
// The llmClient may be nil if no API key is configured.
func NewServer(s store.Store, llmClient *llm.Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:  s,
		llm:    llmClient,
		scorer: health.NewScorer(),
		logger: logger,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/plans", s.listPlans)
	mux.HandleFunc("POST /api/v1/plans", s.createPlan)
	mux.HandleFunc("GET /api/v1/plans/{id}", s.getPlan)
	mux.HandleFunc("PUT /api/v1/plans/{id}", s.updatePlan)
	mux.HandleFunc("DELETE /api/v1/plans/{id}", s.deletePlan)

	mux.HandleFunc("POST /api/v1/plans/{id}/tasks", s.insertTask)
	mux.HandleFunc("POST /api/v1/plans/{id}/tasks/update", s.updateTask)
	mux.HandleFunc("POST /api/v1/plans/{id}/tasks/delete", s.deleteTask)
	mux.HandleFunc("POST /api/v1/plans/{id}/tasks/move", s.moveTask)

	mux.HandleFunc("POST /api/v1/plans/{id}/ops", s.applyOps)
	mux.HandleFunc("POST /api/v1/plans/{id}/diff", s.diffPlan)
	mux.HandleFunc("POST /api/v1/plans/{id}/propose", s.propose)

	mux.HandleFunc("GET /api/v1/plans/{id}/health", s.planHealth)
	mux.HandleFunc("GET /api/v1/plans/{id}/layers", s.planLayers)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// userID extracts the caller's identity. Authentication happens upstream;
// this layer only consumes the resolved user id.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// loadForWrite loads a plan and checks the caller may mutate it. An empty
// user id means local single-user mode with full access.
func (s *Server) loadForWrite(w http.ResponseWriter, r *http.Request) *models.Project {
	id := r.PathValue("id")
	p, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return nil
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil
	}
	if uid := userID(r); uid != "" {
		role, ok := p.RoleOf(uid)
		if !ok || !role.CanEdit() {
			writeError(w, http.StatusForbidden, "caller may not edit this plan")
			return nil
		}
	}
	return p
}

// save persists the whole document after a mutation.
func (s *Server) save(w http.ResponseWriter, r *http.Request, p *models.Project, result any) {
	if err := s.store.UpdateProject(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- Plans ---

func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.store.ListProjects(r.Context(), userID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

func (s *Server) getPlan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) createPlan(w http.ResponseWriter, r *http.Request) {
	var p models.Project
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if p.OwnerID == "" {
		p.OwnerID = userID(r)
	}
	plantree.Normalize(&p)
	if err := s.store.CreateProject(r.Context(), &p); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) updatePlan(w http.ResponseWriter, r *http.Request) {
	existing := s.loadForWrite(w, r)
	if existing == nil {
		return
	}

	var incoming models.Project
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	// Whole-document replace: id and owner are immutable.
	incoming.ID = existing.ID
	incoming.OwnerID = existing.OwnerID
	if incoming.Name == "" {
		incoming.Name = existing.Name
	}
	plantree.Normalize(&incoming)

	s.save(w, r, &incoming, &incoming)
}

func (s *Server) deletePlan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if uid := userID(r); uid != "" {
		if role, ok := p.RoleOf(uid); !ok || role != models.RoleAdmin {
			writeError(w, http.StatusForbidden, "only an admin may delete a plan")
			return
		}
	}
	if err := s.store.DeleteProject(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Task mutations ---

func (s *Server) insertTask(w http.ResponseWriter, r *http.Request) {
	p := s.loadForWrite(w, r)
	if p == nil {
		return
	}

	var req struct {
		Path    plantree.Path `json:"path"`
		Task    *models.Task  `json:"task"`
		Subtask bool          `json:"subtask"` // append under the addressed task
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Task == nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Task.ID == "" {
		req.Task.ID = plantree.NewID()
	}
	req.Task.Completed = req.Task.Status == models.TaskStatusDone

	ok := false
	if req.Subtask {
		ok = plantree.InsertSubtask(p, req.Path, req.Task)
	} else {
		ok = plantree.Insert(p, req.Path, req.Task)
	}
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "path not found")
		return
	}
	plantree.Normalize(p)
	s.save(w, r, p, p)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	p := s.loadForWrite(w, r)
	if p == nil {
		return
	}

	var req struct {
		Path  plantree.Path      `json:"path"`
		Patch plantree.TaskPatch `json:"patch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !plantree.Update(p, req.Path, req.Patch) {
		writeError(w, http.StatusUnprocessableEntity, "path not found")
		return
	}
	s.save(w, r, p, p)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	p := s.loadForWrite(w, r)
	if p == nil {
		return
	}

	var req struct {
		Path plantree.Path `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	removed, ok := plantree.Delete(p, req.Path)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "path not found")
		return
	}
	s.save(w, r, p, map[string]any{"removed": removed, "plan": p})
}

func (s *Server) moveTask(w http.ResponseWriter, r *http.Request) {
	p := s.loadForWrite(w, r)
	if p == nil {
		return
	}

	var req struct {
		From     plantree.Path         `json:"from"`
		To       plantree.Path         `json:"to"`
		Position plantree.MovePosition `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Position == "" {
		req.Position = plantree.MoveBefore
	}
	if !plantree.Move(p, req.From, req.To, req.Position) {
		// Includes moves into the dragged task's own subtree: a no-op, not
		// an error surface.
		s.logger.Info("move rejected", "from", req.From.String(), "to", req.To.String())
		writeJSON(w, http.StatusOK, p)
		return
	}
	s.save(w, r, p, p)
}

// --- Diff / operations / proposals ---

func (s *Server) applyOps(w http.ResponseWriter, r *http.Request) {
	p := s.loadForWrite(w, r)
	if p == nil {
		return
	}

	var ops []change.Operation
	if err := json.NewDecoder(r.Body).Decode(&ops); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	res := change.Apply(p, ops, s.logger)
	plantree.Normalize(p)
	s.save(w, r, p, map[string]any{"result": res, "plan": p})
}

func (s *Server) diffPlan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var proposed models.Project
	if err := json.NewDecoder(r.Body).Decode(&proposed); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	plantree.Normalize(&proposed)
	d := diff.Compute(p, &proposed)
	added, modified, deleted := d.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"diff":     d,
		"added":    added,
		"modified": modified,
		"deleted":  deleted,
	})
}

func (s *Server) propose(w http.ResponseWriter, r *http.Request) {
	if s.llm == nil {
		writeError(w, http.StatusServiceUnavailable, "no LLM configured")
		return
	}
	id := r.PathValue("id")
	p, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var req struct {
		Instruction string `json:"instruction"`
		Mode        string `json:"mode"` // "plan" (default) or "ops"
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Instruction == "" {
		writeError(w, http.StatusBadRequest, "instruction required")
		return
	}

	if req.Mode == "ops" {
		ops, err := s.llm.ProposeOperations(r.Context(), p, req.Instruction)
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ops": ops})
		return
	}

	proposed, err := s.llm.ProposePlan(r.Context(), p, req.Instruction)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	plantree.Normalize(proposed)
	d := diff.Compute(p, proposed)
	writeJSON(w, http.StatusOK, map[string]any{
		"proposed": proposed,
		"diff":     d,
		"empty":    d.Empty(),
	})
}

// --- Derived views ---

func (s *Server) planHealth(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.scorer.Score(p))
}

func (s *Server) planLayers(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"layers": plantree.Layers(p)})
}
