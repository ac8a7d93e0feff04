package api

import (
	"net/http"

	"github.com/nyashahama/lab-diagnostic-assistant/internal/labs"
	"github.com/nyashahama/lab-diagnostic-assistant/internal/scoring"
)

// ─── GET /api/fields ─────────────────────────────────────────────────────────

type fieldsResponse struct {
	Fields []labs.Field `json:"fields"`
}

// handleListFields returns the intake form catalog in display order.
func (s *Server) handleListFields(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, fieldsResponse{Fields: labs.Fields()})
}

// ─── GET /api/rules ──────────────────────────────────────────────────────────

type rulesResponse struct {
	Rules []scoring.Rule `json:"rules"`
}

// handleListRules returns the active rule set in evaluation order.
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, rulesResponse{Rules: s.evaluator.Rules()})
}
