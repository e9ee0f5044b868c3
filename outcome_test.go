package claims

import (
	"strings"
	"testing"
	"time"
)

func validPayload() *HandoffPayload {
	return &HandoffPayload{
		ClaimID:           "CLM-2024-00042",
		Decision:          DecisionApprove,
		AgentID:           "AGT-007",
		DecisionTimestamp: time.Now().UTC(),
		PayoutAmount:      4250.50,
		ConfidenceScore:   88,
		FraudRisk:         15,
		Rationale:         "Damage consistent with the police report.",
	}
}

func TestHandoffPayloadValidate(t *testing.T) {
	if err := validPayload().Validate(); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*HandoffPayload)
		text   string
	}{
		{"bad claim id", func(p *HandoffPayload) { p.ClaimID = "CLM-42" }, "claim_id"},
		{"bad decision", func(p *HandoffPayload) { p.Decision = "maybe" }, "decision"},
		{"bad agent id", func(p *HandoffPayload) { p.AgentID = "AGENT-7" }, "agent_id"},
		{"zero timestamp", func(p *HandoffPayload) { p.DecisionTimestamp = time.Time{} }, "decision_timestamp"},
		{"negative payout", func(p *HandoffPayload) { p.PayoutAmount = -1 }, "payout_amount"},
		{"confidence range", func(p *HandoffPayload) { p.ConfidenceScore = 101 }, "confidence_score"},
		{"fraud range", func(p *HandoffPayload) { p.FraudRisk = -5 }, "fraud_risk"},
		{"short rationale", func(p *HandoffPayload) { p.Rationale = "too short" }, "rationale"},
		{"bad denial reason", func(p *HandoffPayload) {
			p.Decision = DecisionDeny
			p.DenialReason = "not_a_reason"
		}, "denial_reason"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPayload()
			tt.mutate(p)
			err := p.Validate()
			if err == nil {
				t.Fatal("expected validation failure")
			}
			if !strings.Contains(err.Error(), tt.text) {
				t.Errorf("error %q does not mention %s", err, tt.text)
			}
		})
	}
}

func TestHandoffPayloadValidateJoinsAllFailures(t *testing.T) {
	p := validPayload()
	p.ClaimID = "bad"
	p.AgentID = "bad"
	err := p.Validate()
	if err == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(err.Error(), "claim_id") || !strings.Contains(err.Error(), "agent_id") {
		t.Errorf("joined error missing a failure: %v", err)
	}
}

func TestBuildHandoffApprove(t *testing.T) {
	cc, _ := NewClaimContext("CLM-2024-00042")
	cc.AgentDecision = DecisionApprove
	cc.AgentID = "AGT-001"
	cc.DecisionTimestamp = time.Now().UTC()
	cc.ApprovedAmount = 1200
	cc.AssessmentConfidence = 90
	cc.RiskScore = 10
	cc.Documents = []string{"police_report"}

	p := buildHandoff(cc)
	if err := p.Validate(); err != nil {
		t.Fatalf("built payload invalid: %v", err)
	}
	if p.PayoutAmount != 1200 {
		t.Errorf("payout = %v, want 1200", p.PayoutAmount)
	}
	if p.DenialReason != "" {
		t.Errorf("approve payload carries denial_reason %q", p.DenialReason)
	}
	if len(p.Attachments) != 1 || p.Attachments[0] != "police_report" {
		t.Errorf("attachments = %v", p.Attachments)
	}
}

func TestBuildHandoffForcedDenialDefaults(t *testing.T) {
	cc, _ := NewClaimContext("CLM-2024-00042")
	cc.AgentDecision = DecisionDeny
	cc.AgentID = "AGT-002"
	cc.DecisionTimestamp = time.Now().UTC()
	cc.SLABreached = true

	p := buildHandoff(cc)
	if p.DenialReason != "other" {
		t.Errorf("denial_reason = %q, want other", p.DenialReason)
	}
	if p.Rationale == "" {
		t.Error("forced denial has no rationale")
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("forced denial payload invalid: %v", err)
	}
}

func TestOutcomeTerminal(t *testing.T) {
	tests := []struct {
		status OutcomeStatus
		want   bool
	}{
		{OutcomeApproved, true},
		{OutcomeDenied, true},
		{OutcomePaused, false},
		{OutcomeStalled, false},
		{OutcomeTimedOut, false},
	}
	for _, tt := range tests {
		o := &Outcome{Status: tt.status}
		if o.Terminal() != tt.want {
			t.Errorf("Terminal(%s) = %v, want %v", tt.status, o.Terminal(), tt.want)
		}
	}
}
