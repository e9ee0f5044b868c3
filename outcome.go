package claims

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// OutcomeStatus tags the variant of an Outcome.
type OutcomeStatus string

const (
	OutcomeApproved OutcomeStatus = "approved"
	OutcomeDenied   OutcomeStatus = "denied"
	OutcomePaused   OutcomeStatus = "paused"
	OutcomeStalled  OutcomeStatus = "stalled"
	OutcomeTimedOut OutcomeStatus = "timeout"
)

// Outcome is what a run returns to the caller: a terminal result, or a
// Paused state with a resumable token. Stalled and TimedOut carry the
// partial context so an operator can inspect or resume under relaxed
// configuration.
type Outcome struct {
	Status OutcomeStatus `json:"status"`

	// Reason is a human-readable explanation of why control returned.
	Reason string `json:"reason"`

	// Context is the final (or partial) claim context.
	Context *ClaimContext `json:"context"`

	// Rounds is the number of rounds executed across the claim's lifetime.
	Rounds int `json:"rounds"`

	// Handoff is set for Approved and Denied outcomes.
	Handoff *HandoffPayload `json:"handoff,omitempty"`

	// Missing and ResumeToken are set for Paused outcomes. The token is the
	// claim ID and is accepted by Manager.Resume.
	Missing     []string `json:"missing,omitempty"`
	ResumeToken string   `json:"resume_token,omitempty"`

	// Err is set for TimedOut outcomes under fail-fast timeout behavior.
	Err error `json:"-"`
}

// Terminal reports whether the outcome was decided and archived. Paused,
// Stalled, and TimedOut outcomes leave the session active and resumable,
// so they are not terminal in this sense even though the run has ended.
func (o *Outcome) Terminal() bool {
	return o.Status == OutcomeApproved || o.Status == OutcomeDenied
}

// Handoff payload field patterns, per the settlement interface contract.
var (
	handoffClaimPattern = regexp.MustCompile(`^CLM-\d{4}-\d{5}$`)
	handoffAgentPattern = regexp.MustCompile(`^AGT-\d{3}$`)
)

// validDenialReasons is the fixed enum accepted downstream.
var validDenialReasons = map[string]bool{
	"policy_lapsed":         true,
	"coverage_excluded":     true,
	"fraud_suspected":       true,
	"insufficient_evidence": true,
	"duplicate_claim":       true,
	"other":                 true,
}

// HandoffPayload is the structured decision record handed to downstream
// settlement systems on approval or denial.
type HandoffPayload struct {
	ClaimID           string    `json:"claim_id"`
	Decision          Decision  `json:"decision"`
	AgentID           string    `json:"agent_id"`
	DecisionTimestamp time.Time `json:"decision_timestamp"`

	PayoutAmount    float64  `json:"payout_amount,omitempty"`
	ConfidenceScore int      `json:"confidence_score"`
	FraudRisk       int      `json:"fraud_risk"`
	Rationale       string   `json:"rationale,omitempty"`
	Attachments     []string `json:"attachments,omitempty"`
	DenialReason    string   `json:"denial_reason,omitempty"`
}

// Validate checks the payload against the settlement contract. A failure
// here is a programming error in whatever populated the context, not a
// condition to propagate downstream.
func (p *HandoffPayload) Validate() error {
	var errs []error
	if !handoffClaimPattern.MatchString(p.ClaimID) {
		errs = append(errs, fmt.Errorf("claim_id %q does not match CLM-YYYY-NNNNN", p.ClaimID))
	}
	if p.Decision != DecisionApprove && p.Decision != DecisionDeny {
		errs = append(errs, fmt.Errorf("decision %q is not approve or deny", p.Decision))
	}
	if !handoffAgentPattern.MatchString(p.AgentID) {
		errs = append(errs, fmt.Errorf("agent_id %q does not match AGT-NNN", p.AgentID))
	}
	if p.DecisionTimestamp.IsZero() {
		errs = append(errs, errors.New("decision_timestamp is required"))
	}
	if p.PayoutAmount < 0 {
		errs = append(errs, fmt.Errorf("payout_amount %v is negative", p.PayoutAmount))
	}
	if p.ConfidenceScore < 0 || p.ConfidenceScore > 100 {
		errs = append(errs, fmt.Errorf("confidence_score %d outside 0-100", p.ConfidenceScore))
	}
	if p.FraudRisk < 0 || p.FraudRisk > 100 {
		errs = append(errs, fmt.Errorf("fraud_risk %d outside 0-100", p.FraudRisk))
	}
	if p.Rationale != "" && len(p.Rationale) < 10 {
		errs = append(errs, fmt.Errorf("rationale %q shorter than 10 characters", p.Rationale))
	}
	if p.Decision == DecisionDeny && p.DenialReason != "" && !validDenialReasons[p.DenialReason] {
		errs = append(errs, fmt.Errorf("denial_reason %q not in the accepted set", p.DenialReason))
	}
	return errors.Join(errs...)
}

// buildHandoff constructs the settlement or denial payload from the final
// context. The caller validates before emitting.
func buildHandoff(c *ClaimContext) *HandoffPayload {
	p := &HandoffPayload{
		ClaimID:           c.ClaimID,
		Decision:          c.AgentDecision,
		AgentID:           c.AgentID,
		DecisionTimestamp: c.DecisionTimestamp,
		ConfidenceScore:   c.AssessmentConfidence,
		FraudRisk:         c.RiskScore,
		Rationale:         c.DecisionRationale,
		Attachments:       append([]string(nil), c.Documents...),
	}
	switch c.AgentDecision {
	case DecisionApprove:
		p.PayoutAmount = c.ApprovedAmount
	case DecisionDeny:
		reason := c.DenialReason
		if c.SLABreached && reason == "" {
			reason = "other"
			if p.Rationale == "" {
				p.Rationale = "Claim denied after SLA breach on customer response"
			}
		}
		if reason == "" {
			reason = "other"
		}
		p.DenialReason = reason
	}
	return p
}
