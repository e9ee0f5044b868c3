package claims

import "fmt"

// RuleDecision is the result of one termination policy evaluation.
type RuleDecision string

const (
	DecideContinue RuleDecision = "continue"
	DecidePause    RuleDecision = "pause"
	DecideApproved RuleDecision = "approved"
	DecideDenied   RuleDecision = "denied"
	DecideStalled  RuleDecision = "stalled"
	DecideTimedOut RuleDecision = "timeout"
)

// PolicyResult carries the decision and the reason that produced it.
type PolicyResult struct {
	Decision RuleDecision
	Reason   string
}

// Evaluate runs the termination policy over the current context and ledger.
// The rule order is a contract, not an implementation detail: approvals and
// denials are checked before stall and timeout so a completed decision is
// never discarded by a stall classification in the same round.
//
//  1. Approved: decision recorded and handoff package ready.
//  2. Denied (manual): decision recorded and denial package ready.
//  3. Denied (forced): SLA breach paired with a recorded deny decision.
//     A breach alone only escalates; it is never terminal by itself.
//  4. Pause: human-in-loop enabled, documents missing during validation or
//     gathering, and no agent has reviewed the gap yet.
//  5. Stalled: one specialist repeating with no observable change.
//  6. TimedOut: round budget exhausted.
//  7. Continue.
func Evaluate(c *ClaimContext, ledger *Ledger, cfg Config) PolicyResult {
	if c.AgentDecision == DecisionApprove && c.HandoffStatus == HandoffReadyForSettlement {
		return PolicyResult{DecideApproved, "agent approved and handoff package ready for settlement"}
	}
	if c.AgentDecision == DecisionDeny && c.DenialPackageReady {
		return PolicyResult{DecideDenied, "agent denied and denial package ready"}
	}
	if c.SLABreached && c.AgentDecision == DecisionDeny {
		return PolicyResult{DecideDenied, "denial forced by SLA breach on customer response"}
	}
	if cfg.EnableHumanInLoop && !c.AgentReviewed &&
		(c.State == StateGathering || c.State == StateValidation) &&
		len(c.MissingDocuments) > 0 {
		return PolicyResult{DecidePause, fmt.Sprintf("awaiting customer documents: %v", c.MissingDocuments)}
	}
	if ledger.IsStalled(cfg.StallThreshold) {
		return PolicyResult{DecideStalled, fmt.Sprintf(
			"specialist %s repeated %d rounds with no context change",
			ledger.StalledSpecialist(cfg.StallThreshold), cfg.StallThreshold)}
	}
	if c.RoundCount >= cfg.MaxRounds {
		return PolicyResult{DecideTimedOut, fmt.Sprintf("round_count %d reached max_rounds %d", c.RoundCount, cfg.MaxRounds)}
	}
	return PolicyResult{DecideContinue, ""}
}
