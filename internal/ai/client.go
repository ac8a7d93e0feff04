// Package ai defines the interface for LLM-generated diagnostic narratives and
// provides a Groq-backed implementation over the OpenAI-compatible
// chat-completions API.
package ai

import (
	"context"
	"errors"

	"github.com/nyashahama/lab-diagnostic-assistant/internal/labs"
	"github.com/nyashahama/lab-diagnostic-assistant/internal/scoring"
)

// ErrNarrativeUnavailable is wrapped by every error a Narrator returns. Callers
// surface a single generic failure message when they see it.
var ErrNarrativeUnavailable = errors.New("narrative unavailable")

// Narrative is the model's answer for one lab report.
type Narrative struct {
	// Text is the generated report, Markdown as produced by the model.
	Text string

	// Model is the model identifier the provider reports having used.
	Model string
}

// Narrator is the interface the HTTP layer and CLI use to obtain a narrative.
// Tests inject a stub that returns canned responses.
type Narrator interface {
	// GenerateNarrative sends one request built from the report and its risk
	// flags and returns the generated text. It makes exactly one outbound
	// call and never retries. A non-nil error always wraps
	// ErrNarrativeUnavailable.
	GenerateNarrative(ctx context.Context, report labs.Report, flags []scoring.Flag) (Narrative, error)
}
