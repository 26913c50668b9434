package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DeliberationRequest is the input to one deliberation call.
type DeliberationRequest struct {
	SystemPrompt string
	Context      string // assembled context bundle
	MaxTokens    int
	Temperature  float64
}

// DeliberationResult is the output of one deliberation call.
type DeliberationResult struct {
	Text      string
	Scores    map[string]float64 // optional component scores parsed from the response
	LatencyMS int64
}

// Deliberator is the deliberation contract used by System 2, consolidation
// abstraction, and self-critique. Errors are soft: callers fall back to
// rule-based behavior.
type Deliberator interface {
	Deliberate(ctx context.Context, req DeliberationRequest) (*DeliberationResult, error)
}

// Client calls an Ollama-compatible /api/generate endpoint.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewClient creates a deliberation client. Per-call deadlines come from the
// caller's context; the transport timeout is a backstop.
func NewClient(baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2"
	}
	return &Client{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Deliberate sends one prompt and returns the text plus any component scores
// the model included as a trailing JSON object.
func (c *Client) Deliberate(ctx context.Context, req DeliberationRequest) (*DeliberationResult, error) {
	start := time.Now()

	opts := map[string]any{}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		opts["temperature"] = req.Temperature
	}
	body, err := json.Marshal(generateRequest{
		Model:   c.model,
		Prompt:  req.Context,
		System:  req.SystemPrompt,
		Stream:  false,
		Options: opts,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("deliberation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("deliberation request: status %d: %s", resp.StatusCode, preview)
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("deliberation decode: %w", err)
	}

	text, scores := splitScores(gr.Response)
	return &DeliberationResult{
		Text:      text,
		Scores:    scores,
		LatencyMS: time.Since(start).Milliseconds(),
	}, nil
}

// splitScores extracts a trailing JSON object of numeric scores from a
// response, if present. Models sometimes wrap it in a code fence.
func splitScores(response string) (string, map[string]float64) {
	text := ExtractJSON(response)
	if text == "" {
		return strings.TrimSpace(response), nil
	}
	var scores map[string]float64
	if err := json.Unmarshal([]byte(text), &scores); err != nil {
		return strings.TrimSpace(response), nil
	}
	idx := strings.LastIndex(response, text)
	return strings.TrimSpace(response[:idx]), scores
}

// ExtractJSON pulls the last JSON object out of a response, unwrapping a
// markdown code fence if present. Returns "" when no object is found.
func ExtractJSON(s string) string {
	if i := strings.Index(s, "```json"); i >= 0 {
		rest := s[i+len("```json"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
	}
	start := strings.LastIndex(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	// Walk back to the opening brace matching the final close.
	depth := 0
	for i := end; i >= 0; i-- {
		switch s[i] {
		case '}':
			depth++
		case '{':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[i : end+1])
			}
		}
	}
	return ""
}
