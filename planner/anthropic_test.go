package planner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestParseActionPlainObject(t *testing.T) {
	action, err := parseAction(`{"specialist":"fraud_analyst","patch":{"risk_score":40},"reply":"Two prior claims this year."}`)
	if err != nil {
		t.Fatal(err)
	}
	if action.Specialist != "fraud_analyst" {
		t.Errorf("specialist = %q", action.Specialist)
	}
	if action.Patch["risk_score"] != float64(40) {
		t.Errorf("patch = %v", action.Patch)
	}
	if !strings.Contains(action.Reply, "prior claims") {
		t.Errorf("reply = %q", action.Reply)
	}
}

func TestParseActionCodeFence(t *testing.T) {
	text := "Here is the action:\n```json\n{\"specialist\":\"doc_collector\",\"patch\":{}}\n```\nDone."
	action, err := parseAction(text)
	if err != nil {
		t.Fatal(err)
	}
	if action.Specialist != "doc_collector" {
		t.Errorf("specialist = %q", action.Specialist)
	}
}

func TestParseActionSurroundingProse(t *testing.T) {
	action, err := parseAction(`I'll assess this claim. {"specialist":"risk_assessor"} Let me know.`)
	if err != nil {
		t.Fatal(err)
	}
	if action.Specialist != "risk_assessor" {
		t.Errorf("specialist = %q", action.Specialist)
	}
}

func TestParseActionNoJSON(t *testing.T) {
	if _, err := parseAction("I cannot decide."); err == nil {
		t.Fatal("expected error for reply without JSON")
	}
}

func TestBuildRequestIncludesRosterAndHistory(t *testing.T) {
	a := NewAnthropic(WithAPIKey("test-key"))
	req := a.buildRequest(Request{
		ClaimID: "CLM-2024-00042",
		Context: []byte(`{"state":"gathering"}`),
		History: []Message{
			{Role: "user", Content: "My policy number is POL-1."},
			{Role: "assistant", Content: "Noted.", Specialist: "triage"},
		},
		Specialists: []Specialist{
			{ID: "fraud_analyst", Description: "Scores fraud risk."},
		},
	})

	if len(req.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(req.Messages))
	}
	prompt := req.Messages[0].Content
	for _, want := range []string{
		"CLM-2024-00042",
		`{"state":"gathering"}`,
		"fraud_analyst: Scores fraud risk.",
		"assistant (triage): Noted.",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if len(req.System) != 1 || req.System[0].CacheControl == nil {
		t.Error("system prompt not marked for caching")
	}
}

func TestNextAction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got == "" {
			t.Error("anthropic-version header missing")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": `{"specialist":"doc_collector","patch":{"state":"gathering"},"reply":"Chasing the police report."}`},
			},
			"stop_reason": "end_turn",
		})
	}))
	defer server.Close()

	a := NewAnthropic(WithAPIKey("test-key"), WithBaseURL(server.URL))
	action, err := a.NextAction(context.Background(), Request{ClaimID: "CLM-2024-00042"})
	if err != nil {
		t.Fatal(err)
	}
	if action.Specialist != "doc_collector" {
		t.Errorf("specialist = %q", action.Specialist)
	}
	if action.Patch["state"] != "gathering" {
		t.Errorf("patch = %v", action.Patch)
	}
}

func TestNextActionNone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": `{"specialist":"none"}`},
			},
		})
	}))
	defer server.Close()

	a := NewAnthropic(WithAPIKey("test-key"), WithBaseURL(server.URL))
	_, err := a.NextAction(context.Background(), Request{ClaimID: "CLM-2024-00042"})
	if !errors.Is(err, ErrNoSpecialist) {
		t.Fatalf("err = %v, want ErrNoSpecialist", err)
	}
}

func TestNextActionAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	a := NewAnthropic(WithAPIKey("test-key"), WithBaseURL(server.URL))
	_, err := a.NextAction(context.Background(), Request{ClaimID: "CLM-2024-00042"})
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if errors.Is(err, ErrNoSpecialist) {
		t.Error("API error misreported as no specialist")
	}
}

func TestRetryAfterDelay(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}

	// Exponential backoff without a header.
	if got := retryAfterDelay(resp, 0); got != 5*time.Second {
		t.Errorf("attempt 0 = %v, want 5s", got)
	}
	if got := retryAfterDelay(resp, 3); got != 40*time.Second {
		t.Errorf("attempt 3 = %v, want 40s", got)
	}
	if got := retryAfterDelay(resp, 10); got != 60*time.Second {
		t.Errorf("attempt 10 = %v, want 60s cap", got)
	}

	// retry-after header wins.
	resp.Header.Set("retry-after", "7")
	if got := retryAfterDelay(resp, 0); got != 7*time.Second {
		t.Errorf("with header = %v, want 7s", got)
	}
}
