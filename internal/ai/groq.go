package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nyashahama/lab-diagnostic-assistant/internal/labs"
	"github.com/nyashahama/lab-diagnostic-assistant/internal/scoring"
)

const (
	// DefaultBaseURL is Groq's OpenAI-compatible API root.
	DefaultBaseURL = "https://api.groq.com/openai/v1"

	// DefaultModel is the model every narrative is requested from.
	DefaultModel = "llama3-70b-8192"

	// DefaultTemperature is the sampling temperature sent with every request.
	DefaultTemperature = 0.5

	// DefaultTimeout bounds the single outbound call.
	DefaultTimeout = 90 * time.Second
)

// GroqConfig configures the Groq narrator. Zero values fall back to the
// package defaults, except APIKey which is required. A Temperature of 0 means
// DefaultTemperature: the chat request omits a zero temperature, so an
// explicit 0 cannot be sent.
type GroqConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration

	// Transport overrides the HTTP transport. Nil means http.DefaultTransport.
	Transport http.RoundTripper
}

// GroqClient is the concrete Narrator backed by Groq's chat-completions
// endpoint. The request and response shapes are the standard OpenAI chat
// format, so the go-openai client is pointed at Groq's base URL.
type GroqClient struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewGroqClient returns a Narrator that calls the Groq API.
func NewGroqClient(cfg GroqConfig) (*GroqClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("groq: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return nil, fmt.Errorf("groq: temperature must be within (0, 2], got %g", cfg.Temperature)
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	oc.HTTPClient = &http.Client{
		Timeout:   cfg.Timeout,
		Transport: statusGuard{base: cfg.Transport},
	}

	return &GroqClient{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
	}, nil
}

// Model returns the model identifier sent with every request.
func (c *GroqClient) Model() string { return c.model }

// GenerateNarrative renders the prompt, sends it as a single user message and
// returns the first choice's content.
func (c *GroqClient) GenerateNarrative(ctx context.Context, report labs.Report, flags []scoring.Flag) (Narrative, error) {
	prompt, err := BuildPrompt(report, flags)
	if err != nil {
		return Narrative{}, fmt.Errorf("groq: %w: %w", ErrNarrativeUnavailable, err)
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.temperature,
	})
	if err != nil {
		if status := StatusCode(err); status != 0 {
			return Narrative{}, fmt.Errorf("groq: %w: status %d: %w", ErrNarrativeUnavailable, status, err)
		}
		return Narrative{}, fmt.Errorf("groq: %w: %w", ErrNarrativeUnavailable, err)
	}

	if len(resp.Choices) == 0 {
		return Narrative{}, fmt.Errorf("groq: %w: no choices in response", ErrNarrativeUnavailable)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return Narrative{}, fmt.Errorf("groq: %w: empty content", ErrNarrativeUnavailable)
	}

	model := resp.Model
	if model == "" {
		model = c.model
	}

	return Narrative{Text: text, Model: model}, nil
}

// ─── STATUS HANDLING ─────────────────────────────────────────────────────────

// StatusError reports an HTTP response from the chat endpoint that was not
// 200 OK but that the OpenAI client would otherwise have accepted (1xx-3xx).
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// statusGuard rejects every response below 400 other than 200, including
// redirects, which are never followed. The OpenAI client only treats >= 400 as
// failure and decodes those into *openai.APIError itself.
type statusGuard struct {
	base http.RoundTripper
}

func (g statusGuard) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := g.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode < http.StatusBadRequest {
		_ = resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// StatusCode extracts the HTTP status from an error returned by the chat
// endpoint, or 0 when the failure happened before a response arrived.
func StatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
