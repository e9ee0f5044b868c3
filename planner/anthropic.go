package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Anthropic is a Planner backed by the Anthropic Messages API. Each round
// it sends the claim context, the conversation so far, and the specialist
// roster, and parses a single JSON action from the model's reply.
type Anthropic struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	model      string
}

// Option configures the Anthropic planner.
type Option func(*Anthropic)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(a *Anthropic) {
		a.apiKey = key
	}
}

// WithModel sets the model.
func WithModel(model string) Option {
	return func(a *Anthropic) {
		a.model = model
	}
}

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) Option {
	return func(a *Anthropic) {
		a.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Anthropic) {
		a.httpClient = client
	}
}

// Default Anthropic configuration values
const (
	DefaultTimeout = 2 * time.Minute
	DefaultModel   = "claude-sonnet-4-20250514"
	DefaultBaseURL = "https://api.anthropic.com"
)

// NewAnthropic creates a new Anthropic-backed planner.
func NewAnthropic(opts ...Option) *Anthropic {
	a := &Anthropic{
		apiKey:  os.Getenv("ANTHROPIC_API_KEY"),
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		model: DefaultModel,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// cacheControl marks a block for Anthropic prompt caching.
type cacheControl struct {
	Type string `json:"type"` // "ephemeral"
}

// systemBlock is a structured system prompt block with optional cache control.
type systemBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

// anthropicRequest is the API request format.
type anthropicRequest struct {
	Model     string         `json:"model"`
	Messages  []anthropicMsg `json:"messages"`
	System    []systemBlock  `json:"system,omitempty"`
	MaxTokens int            `json:"max_tokens"`
}

type anthropicMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicResponse is the API response format.
type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

const selectionSystemPrompt = `You are the coordinator of an insurance claims workflow.
Each round you pick the single specialist best able to advance the claim,
act as that specialist, and report any context changes.

Respond with exactly one JSON object, no prose, of the form:
{"specialist": "<id from the roster>", "patch": {<context field updates>}, "reply": "<the specialist's findings>"}

If no specialist can make progress, respond with:
{"specialist": "none"}

Only use context fields that already appear in the context snapshot.`

// NextAction asks the model to select and perform the next specialist step.
func (a *Anthropic) NextAction(ctx context.Context, req Request) (*Action, error) {
	apiReq := a.buildRequest(req)

	resp, err := a.doRequest(ctx, apiReq)
	if err != nil {
		return nil, err
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	action, err := parseAction(text)
	if err != nil {
		return nil, fmt.Errorf("parse planner action: %w", err)
	}
	if action.Specialist == "" || action.Specialist == "none" {
		return nil, ErrNoSpecialist
	}

	slog.Debug("planner selected specialist",
		"claim_id", req.ClaimID,
		"specialist", action.Specialist,
		"patch_fields", len(action.Patch),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens)

	return action, nil
}

func (a *Anthropic) buildRequest(req Request) *anthropicRequest {
	var prompt strings.Builder
	prompt.WriteString("Claim ")
	prompt.WriteString(req.ClaimID)
	prompt.WriteString("\n\nCurrent context:\n")
	prompt.Write(req.Context)

	if len(req.Specialists) > 0 {
		prompt.WriteString("\n\nSpecialist roster:\n")
		for _, s := range req.Specialists {
			prompt.WriteString("- ")
			prompt.WriteString(s.ID)
			if s.Description != "" {
				prompt.WriteString(": ")
				prompt.WriteString(s.Description)
			}
			prompt.WriteString("\n")
		}
	}

	if len(req.History) > 0 {
		prompt.WriteString("\nConversation so far:\n")
		for _, m := range req.History {
			prompt.WriteString(m.Role)
			if m.Specialist != "" {
				prompt.WriteString(" (")
				prompt.WriteString(m.Specialist)
				prompt.WriteString(")")
			}
			prompt.WriteString(": ")
			prompt.WriteString(m.Content)
			prompt.WriteString("\n")
		}
	}
	prompt.WriteString("\nSelect the next specialist action.")

	return &anthropicRequest{
		Model:     a.model,
		MaxTokens: 2048,
		System: []systemBlock{{
			Type:         "text",
			Text:         selectionSystemPrompt,
			CacheControl: &cacheControl{Type: "ephemeral"},
		}},
		Messages: []anthropicMsg{{Role: "user", Content: prompt.String()}},
	}
}

// parseAction extracts the JSON action from the model's reply, tolerating
// markdown code fences around the object.
func parseAction(text string) (*Action, error) {
	text = strings.TrimSpace(text)
	if idx := strings.Index(text, "```"); idx >= 0 {
		text = text[idx+3:]
		text = strings.TrimPrefix(text, "json")
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in %q", text)
	}

	var action Action
	if err := json.Unmarshal([]byte(text[start:end+1]), &action); err != nil {
		return nil, err
	}
	return &action, nil
}

func (a *Anthropic) createHTTPRequest(ctx context.Context, req *anthropicRequest) (*http.Request, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	return httpReq, nil
}

func (a *Anthropic) doRequest(ctx context.Context, req *anthropicRequest) (*anthropicResponse, error) {
	const maxRetries = 5

	for attempt := 0; attempt <= maxRetries; attempt++ {
		httpReq, err := a.createHTTPRequest(ctx, req)
		if err != nil {
			return nil, err
		}

		httpResp, err := a.httpClient.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("http request: %w", err)
		}

		body, err := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		if httpResp.StatusCode == http.StatusOK {
			var resp anthropicResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				return nil, fmt.Errorf("unmarshal response: %w", err)
			}
			return &resp, nil
		}

		// Retry on 429 (rate limit) and 529 (overloaded).
		if (httpResp.StatusCode == 429 || httpResp.StatusCode == 529) && attempt < maxRetries {
			wait := retryAfterDelay(httpResp, attempt)
			slog.Warn("API rate limited, retrying", "status", httpResp.StatusCode, "attempt", attempt+1, "wait", wait)
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		return nil, fmt.Errorf("API error %d: %s", httpResp.StatusCode, string(body))
	}

	return nil, fmt.Errorf("max retries exceeded")
}

// retryAfterDelay returns how long to wait before retrying a rate-limited request.
// It respects the retry-after header if present, otherwise uses exponential backoff.
func retryAfterDelay(resp *http.Response, attempt int) time.Duration {
	if ra := resp.Header.Get("retry-after"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	// Exponential backoff: 5s, 10s, 20s, 40s, 60s
	wait := time.Duration(5<<uint(attempt)) * time.Second
	if wait > 60*time.Second {
		wait = 60 * time.Second
	}
	return wait
}
