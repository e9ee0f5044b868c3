// Package planner defines the specialist-selection boundary for claims
// orchestration. The planner is an external capability (typically an LLM)
// that, given the current claim context and conversation, chooses which
// specialist should act next and what it contributes. The orchestration
// core treats every planner response as untrusted input.
package planner

import (
	"context"
	"errors"
)

// ErrNoSpecialist is returned when the planner cannot produce an action
// for the round. The orchestration loop treats the round as a no-op and
// falls through to its termination checks.
var ErrNoSpecialist = errors.New("planner: no specialist available")

// Message is one conversation turn passed to the planner.
type Message struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	Specialist string `json:"specialist,omitempty"`
}

// Specialist describes one worker the planner may dispatch.
type Specialist struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
}

// Request is the input for one selection round.
type Request struct {
	// ClaimID identifies the claim being processed.
	ClaimID string `json:"claim_id"`

	// Context is the JSON snapshot of the claim context.
	Context []byte `json:"context"`

	// History is the conversation so far, oldest first.
	History []Message `json:"history"`

	// Specialists is the roster the planner may choose from.
	Specialists []Specialist `json:"specialists,omitempty"`
}

// Action is the planner's answer: the specialist that ran, the context
// fields it wants to change, and its reply for the conversation record.
type Action struct {
	// Specialist is the id of the specialist that produced this action.
	Specialist string `json:"specialist"`

	// Patch is the set of context field updates. Keys are validated
	// against the context schema by the caller before being merged.
	Patch map[string]any `json:"patch,omitempty"`

	// Reply is appended to the conversation history as the specialist's
	// turn. May be empty.
	Reply string `json:"reply,omitempty"`
}

// Planner selects the next specialist action for a round.
type Planner interface {
	// NextAction returns the action for the current round, or
	// ErrNoSpecialist when no specialist can make progress. Any other
	// error is treated by the caller as a transient round failure.
	NextAction(ctx context.Context, req Request) (*Action, error)
}

// Func adapts a function to the Planner interface.
type Func func(ctx context.Context, req Request) (*Action, error)

// NextAction calls f.
func (f Func) NextAction(ctx context.Context, req Request) (*Action, error) {
	return f(ctx, req)
}
