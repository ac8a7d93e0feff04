package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/nyashahama/lab-diagnostic-assistant/internal/ai"
	"github.com/nyashahama/lab-diagnostic-assistant/internal/api"
	"github.com/nyashahama/lab-diagnostic-assistant/internal/labs"
	"github.com/nyashahama/lab-diagnostic-assistant/internal/scoring"
)

// ─── STUBS ────────────────────────────────────────────────────────────────────

// stubNarrator satisfies ai.Narrator with a canned response and records what it
// was asked.
type stubNarrator struct {
	mu        sync.Mutex
	narrative ai.Narrative
	err       error
	calls     int
	lastFlags []scoring.Flag
	lastRep   labs.Report
}

func (n *stubNarrator) GenerateNarrative(_ context.Context, r labs.Report, flags []scoring.Flag) (ai.Narrative, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	n.lastRep = r
	n.lastFlags = flags
	if n.err != nil {
		return ai.Narrative{}, n.err
	}
	return n.narrative, nil
}

// ─── HELPERS ─────────────────────────────────────────────────────────────────

type testDeps struct {
	narrator *stubNarrator
	handler  http.Handler
}

func newTestServer(t *testing.T, cfgOverrides ...func(*api.Config)) *testDeps {
	t.Helper()

	nr := &stubNarrator{
		narrative: ai.Narrative{Text: "## Diagnosis Report\nMild anemia.", Model: "llama3-70b-8192"},
	}

	cfg := api.Config{}
	for _, fn := range cfgOverrides {
		fn(&cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &testDeps{
		narrator: nr,
		handler:  api.NewServer(scoring.Default(), nr, cfg, logger),
	}
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		bodyReader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, bodyReader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func doRaw(t *testing.T, handler http.Handler, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(dst); err != nil {
		t.Fatalf("decode response body: %v (raw: %s)", err, rr.Body.String())
	}
}

type risksBody struct {
	ReportID string            `json:"report_id"`
	Report   map[string]string `json:"report"`
	Risks    []string          `json:"risks"`
	Flags    []scoring.Flag    `json:"flags"`
}

type analyzeBody struct {
	risksBody
	Narrative string `json:"narrative"`
	Model     string `json:"model"`
}

// ─── GET /healthz ─────────────────────────────────────────────────────────────

func TestHealthz(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodGet, "/healthz", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

// ─── GET /metrics ─────────────────────────────────────────────────────────────

func TestMetrics_CountsEvaluationsAndFlags(t *testing.T) {
	deps := newTestServer(t)

	doRequest(t, deps.handler, http.MethodPost, "/api/risks",
		map[string]any{"hemoglobin": 10, "tsh": "7"}, nil)
	doRequest(t, deps.handler, http.MethodPost, "/api/risks",
		map[string]any{"bogus": 1}, nil)

	rr := doRequest(t, deps.handler, http.MethodGet, "/metrics", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`labdx_evaluations_total{endpoint="risks",outcome="ok"} 1`,
		`labdx_evaluations_total{endpoint="risks",outcome="invalid"} 1`,
		`labdx_risk_flags_total{field="hemoglobin"} 1`,
		`labdx_risk_flags_total{field="tsh"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

// ─── GET /api/fields, /api/rules ──────────────────────────────────────────────

func TestListFields_ReturnsCatalogInOrder(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodGet, "/api/fields", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp struct {
		Fields []labs.Field `json:"fields"`
	}
	decodeJSON(t, rr, &resp)

	if len(resp.Fields) != 16 {
		t.Fatalf("expected 16 fields, got %d", len(resp.Fields))
	}
	if resp.Fields[0].Key != "hemoglobin" || resp.Fields[0].Unit != "g/dL" {
		t.Errorf("unexpected first field: %+v", resp.Fields[0])
	}
	if got := resp.Fields[14]; got.Key != "protein" || len(got.Options) != 3 {
		t.Errorf("protein should carry its select options, got %+v", got)
	}
}

func TestListRules_ReturnsActiveRules(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodGet, "/api/rules", nil, nil)

	var resp struct {
		Rules []scoring.Rule `json:"rules"`
	}
	decodeJSON(t, rr, &resp)

	if len(resp.Rules) != 15 {
		t.Fatalf("expected 15 rules, got %d", len(resp.Rules))
	}
	if resp.Rules[0].Field != "hemoglobin" || resp.Rules[0].Op != scoring.OpBelow {
		t.Errorf("unexpected first rule: %+v", resp.Rules[0])
	}
}

// ─── POST /api/risks ──────────────────────────────────────────────────────────

func TestRisks_FlagsLowHemoglobin(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodPost, "/api/risks",
		map[string]any{"hemoglobin": "11", "ldl": 120}, nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp risksBody
	decodeJSON(t, rr, &resp)

	if resp.ReportID == "" {
		t.Error("report_id should not be empty")
	}
	if len(resp.Risks) != 1 || resp.Risks[0] != "Low Hemoglobin – anemia risk" {
		t.Errorf("unexpected risks: %v", resp.Risks)
	}
	if resp.Report["hemoglobin"] != "11" || resp.Report["ldl"] != "120" {
		t.Errorf("unexpected report echo: %v", resp.Report)
	}
	if deps.narrator.calls != 0 {
		t.Errorf("risks must not call the narrator, got %d calls", deps.narrator.calls)
	}
}

func TestRisks_EmptyReportHasNoRisks(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodPost, "/api/risks", map[string]any{}, nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"risks":[]`) {
		t.Errorf("risks should encode as an empty array: %s", rr.Body.String())
	}
}

func TestRisks_NullAndUnparseableValuesAreIgnored(t *testing.T) {
	deps := newTestServer(t)
	rr := doRaw(t, deps.handler, "/api/risks", "application/json",
		`{"hemoglobin": null, "wbc": "lots", "platelets": ""}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp risksBody
	decodeJSON(t, rr, &resp)
	if len(resp.Risks) != 0 {
		t.Errorf("expected no risks, got %v", resp.Risks)
	}
	if len(resp.Report) != 0 {
		t.Errorf("expected no present values, got %v", resp.Report)
	}
}

func TestRisks_OverflowStillSerializes(t *testing.T) {
	deps := newTestServer(t)
	rr := doRaw(t, deps.handler, "/api/risks", "application/json", `{"wbc": "1e400"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp risksBody
	decodeJSON(t, rr, &resp)
	if len(resp.Risks) != 1 || resp.Risks[0] != "High WBC – infection risk" {
		t.Errorf("unexpected risks: %v", resp.Risks)
	}
}

func TestRisks_FormEncoded(t *testing.T) {
	deps := newTestServer(t)
	form := url.Values{
		"hemoglobin": {"13"},
		"protein":    {"Present"},
		"rbc":        {"3-5/hpf"},
		"submit":     {"Analyze"},
	}
	rr := doRaw(t, deps.handler, "/api/risks", "application/x-www-form-urlencoded", form.Encode())

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp risksBody
	decodeJSON(t, rr, &resp)

	want := []string{"Protein in urine – kidney issue", "RBC in urine – infection or bleeding risk"}
	if fmt.Sprint(resp.Risks) != fmt.Sprint(want) {
		t.Errorf("risks = %v, want %v", resp.Risks, want)
	}
}

func TestRisks_BadInputReturns400(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"malformed json", "application/json", `{bad json`},
		{"empty body", "application/json", ``},
		{"unknown field", "application/json", `{"hemoglobin": "11", "cholesterol": "200"}`},
		{"boolean value", "application/json", `{"hemoglobin": true}`},
		{"object value", "application/json", `{"hemoglobin": {"value": 11}}`},
		{"array body", "application/json", `["hemoglobin"]`},
		{"bad form encoding", "application/x-www-form-urlencoded", `hemoglobin=%zz`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestServer(t)
			rr := doRaw(t, deps.handler, "/api/risks", tt.contentType, tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
			var resp map[string]string
			decodeJSON(t, rr, &resp)
			if resp["error"] == "" {
				t.Error("error envelope should carry a message")
			}
		})
	}
}

// ─── POST /api/analyze ────────────────────────────────────────────────────────

func TestAnalyze_ReturnsNarrative(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodPost, "/api/analyze",
		map[string]any{"hemoglobin": 10.5, "tsh": 0.1}, nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp analyzeBody
	decodeJSON(t, rr, &resp)

	if resp.Narrative != "## Diagnosis Report\nMild anemia." {
		t.Errorf("unexpected narrative: %q", resp.Narrative)
	}
	if resp.Model != "llama3-70b-8192" {
		t.Errorf("unexpected model: %q", resp.Model)
	}
	if len(resp.Risks) != 2 {
		t.Errorf("expected 2 risks, got %v", resp.Risks)
	}

	if deps.narrator.calls != 1 {
		t.Fatalf("expected 1 narrator call, got %d", deps.narrator.calls)
	}
	if len(deps.narrator.lastFlags) != 2 {
		t.Errorf("narrator should receive the evaluated flags, got %v", deps.narrator.lastFlags)
	}
	if v, ok := deps.narrator.lastRep.Number("hemoglobin"); !ok || v != 10.5 {
		t.Errorf("narrator should receive the parsed report, hemoglobin = %v, %v", v, ok)
	}
}

func TestAnalyze_NarrativeFailureReturns502(t *testing.T) {
	deps := newTestServer(t)
	deps.narrator.err = fmt.Errorf("groq: %w: status 401", ai.ErrNarrativeUnavailable)

	rr := doRequest(t, deps.handler, http.MethodPost, "/api/analyze",
		map[string]any{"hemoglobin": "10"}, nil)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp map[string]any
	decodeJSON(t, rr, &resp)
	if resp["error"] != "failed to get diagnosis" {
		t.Errorf("unexpected error message: %v", resp["error"])
	}
	if _, ok := resp["risks"]; ok {
		t.Error("failure response must not carry partial results")
	}
	if strings.Contains(fmt.Sprint(resp), "401") {
		t.Error("failure response must not leak upstream details")
	}
}

func TestAnalyze_UnexpectedNarratorErrorReturns500(t *testing.T) {
	deps := newTestServer(t)
	deps.narrator.err = errors.New("boom")

	rr := doRequest(t, deps.handler, http.MethodPost, "/api/analyze",
		map[string]any{"hemoglobin": "10"}, nil)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestAnalyze_BadInputSkipsNarrator(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodPost, "/api/analyze",
		map[string]any{"nope": "1"}, nil)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if deps.narrator.calls != 0 {
		t.Errorf("narrator must not be called for rejected input")
	}
}

// ─── CORS ─────────────────────────────────────────────────────────────────────

func TestCORS_AllowedOrigin(t *testing.T) {
	deps := newTestServer(t, func(c *api.Config) {
		c.AllowedOrigins = []string{"https://labs.example"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/risks", nil)
	req.Header.Set("Origin", "https://labs.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	deps.handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://labs.example" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	deps := newTestServer(t, func(c *api.Config) {
		c.AllowedOrigins = []string{"https://labs.example"}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/fields", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr := httptest.NewRecorder()
	deps.handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS header for a foreign origin, got %q", got)
	}
}
