package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nyashahama/lab-diagnostic-assistant/internal/ai"
	"github.com/nyashahama/lab-diagnostic-assistant/internal/labs"
	"github.com/nyashahama/lab-diagnostic-assistant/internal/scoring"
)

// diagnosisFailedMessage is the only detail a client sees when the narrative
// cannot be produced.
const diagnosisFailedMessage = "failed to get diagnosis"

type risksResponse struct {
	ReportID string            `json:"report_id"`
	Report   map[string]string `json:"report"`
	Risks    []string          `json:"risks"`
	Flags    []scoring.Flag    `json:"flags"`
}

type analyzeResponse struct {
	risksResponse
	Narrative string `json:"narrative"`
	Model     string `json:"model"`
}

// evaluate decodes the submitted report and applies the rule set. Returns
// false when the request was rejected; the response has then been written.
func (s *Server) evaluate(w http.ResponseWriter, r *http.Request, endpoint string) (labs.Report, risksResponse, bool) {
	report, ok := decodeReport(w, r)
	if !ok {
		s.metrics.observeEvaluation(endpoint, outcomeInvalid)
		return labs.Report{}, risksResponse{}, false
	}

	flags := s.evaluator.Evaluate(report)
	s.metrics.observeFlags(flags)

	resp := risksResponse{
		ReportID: uuid.NewString(),
		Report:   reportView(report),
		Risks:    scoring.Messages(flags),
		Flags:    flags,
	}

	s.logger.Debug("report evaluated",
		"report_id", resp.ReportID,
		"fields", report.PresentCount(),
		"flags", len(flags),
		logField(r),
	)
	return report, resp, true
}

// ─── POST /api/risks ─────────────────────────────────────────────────────────

// handleRisks evaluates the rule set only. It never calls the model.
func (s *Server) handleRisks(w http.ResponseWriter, r *http.Request) {
	_, resp, ok := s.evaluate(w, r, "risks")
	if !ok {
		return
	}
	s.metrics.observeEvaluation("risks", outcomeOK)
	respond(w, http.StatusOK, resp)
}

// ─── POST /api/analyze ───────────────────────────────────────────────────────

// handleAnalyze evaluates the rule set and requests a narrative from the
// model. Any narrative failure yields 502 with a single generic message and
// no partial result.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	report, resp, ok := s.evaluate(w, r, "analyze")
	if !ok {
		return
	}

	start := time.Now()
	narrative, err := s.narrator.GenerateNarrative(r.Context(), report, resp.Flags)
	s.metrics.observeNarrative(time.Since(start), err != nil)

	if err != nil {
		s.metrics.observeEvaluation("analyze", outcomeNarrativeFailed)
		if !errors.Is(err, ai.ErrNarrativeUnavailable) {
			s.respondInternalErr(w, r, fmt.Errorf("generate narrative: %w", err))
			return
		}
		s.logger.Warn("narrative failed",
			"report_id", resp.ReportID,
			"status", ai.StatusCode(err),
			"error", err,
			logField(r),
		)
		respondErr(w, http.StatusBadGateway, diagnosisFailedMessage)
		return
	}

	s.metrics.observeEvaluation("analyze", outcomeOK)
	respond(w, http.StatusOK, analyzeResponse{
		risksResponse: resp,
		Narrative:     narrative.Text,
		Model:         narrative.Model,
	})
}
