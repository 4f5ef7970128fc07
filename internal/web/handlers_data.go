package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/JonMunkholm/jury/internal/core"
)

// maxJSONBody caps single-record request bodies.
const maxJSONBody = 1 << 20

// decodeJSON reads a JSON request body into v. Unknown fields are errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %w", core.ErrInvalidRequest, err)
	}
	return nil
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.service.ListProjects(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if projects == nil {
		projects = []core.Project{}
	}
	writeJSON(w, r, http.StatusOK, projects)
}

func (s *Server) handleNewProject(w http.ResponseWriter, r *http.Request) {
	var req core.NewProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	project, err := s.service.AddProject(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, project)
}

func (s *Server) handleListJudges(w http.ResponseWriter, r *http.Request) {
	judges, err := s.service.ListJudges(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if judges == nil {
		judges = []core.Judge{}
	}
	writeJSON(w, r, http.StatusOK, judges)
}

func (s *Server) handleNewJudge(w http.ResponseWriter, r *http.Request) {
	var req core.NewJudgeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	judge, err := s.service.AddJudge(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, judge)
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := s.service.Options(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, opts)
}

type resetRequest struct {
	StartSlot *int64 `json:"start_slot"`
}

// handleReset wipes every project and judge. The start slot is required so a
// reset is never sent by accident with an empty body.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.StartSlot == nil {
		s.respondError(w, r, fmt.Errorf("%w: start_slot is required", core.ErrInvalidRequest))
		return
	}

	if err := s.service.Reset(r.Context(), *req.StartSlot); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]int64{"next_slot": *req.StartSlot})
}

type healthResponse struct {
	Status  string                   `json:"status"`
	Store   string                   `json:"store"`
	Imports core.ImportLimiterStatus `json:"imports"`
}

// handleHealth reports store reachability and import load. It is the only
// unauthenticated API route.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Store: "ok", Imports: s.service.LimiterStatus()}
	status := http.StatusOK
	if err := s.service.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Store = "unreachable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}
