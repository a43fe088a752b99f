package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homecore/internal/automation"
)

// handleListAutomations returns every automation.
func (s *Server) handleListAutomations(w http.ResponseWriter, _ *http.Request) {
	all := s.engine.GetAll()
	writeJSON(w, http.StatusOK, map[string]any{"automations": all, "count": len(all)})
}

// handleGetAutomation returns one automation.
func (s *Server) handleGetAutomation(w http.ResponseWriter, r *http.Request) {
	id, ok := automationID(w, r)
	if !ok {
		return
	}
	a, err := s.engine.Get(id)
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleCreateAutomation creates an automation. An omitted id is assigned.
func (s *Server) handleCreateAutomation(w http.ResponseWriter, r *http.Request) {
	var a automation.Automation
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "invalid automation: "+err.Error())
		return
	}

	created, err := s.engine.Create(r.Context(), a)
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleUpdateAutomation applies a partial update. An id in the body is
// ignored.
func (s *Server) handleUpdateAutomation(w http.ResponseWriter, r *http.Request) {
	id, ok := automationID(w, r)
	if !ok {
		return
	}

	var patch automation.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "invalid patch: "+err.Error())
		return
	}

	updated, err := s.engine.Update(r.Context(), id, patch)
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteAutomation removes an automation.
func (s *Server) handleDeleteAutomation(w http.ResponseWriter, r *http.Request) {
	id, ok := automationID(w, r)
	if !ok {
		return
	}
	if err := s.engine.Remove(r.Context(), id); err != nil {
		writeDomainError(w, err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func automationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid automation ID")
		return "", false
	}
	return id, true
}
