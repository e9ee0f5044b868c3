package claims

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"time"
)

// State is the BPMN-aligned phase of a claim.
type State string

const (
	StateIntake     State = "intake"
	StateValidation State = "validation"
	StateGathering  State = "gathering"
	StateAssessment State = "assessment"
	StateDecision   State = "decision"
	StateHandoff    State = "handoff"
)

// Decision is the recorded approve/deny outcome from the claims officer.
type Decision string

const (
	DecisionNone    Decision = ""
	DecisionApprove Decision = "approve"
	DecisionDeny    Decision = "deny"
)

// HandoffState tracks whether the settlement package is ready downstream.
type HandoffState string

const (
	HandoffPending            HandoffState = "pending"
	HandoffReadyForSettlement HandoffState = "ready_for_settlement"
)

// claimIDPattern is the canonical claim identifier format.
var claimIDPattern = regexp.MustCompile(`^CLM-\d{4}-\d{5}$`)

// ValidClaimID reports whether id matches the CLM-YYYY-NNNNN format.
func ValidClaimID(id string) bool {
	return claimIDPattern.MatchString(id)
}

// ClaimContext is the shared metadata record for one claim. It is owned
// exclusively by the Manager while a run is executing; between runs it is
// handed to a SessionStore. All mutation from specialists goes through
// ApplyPatch so unknown or ill-typed fields never enter the model.
type ClaimContext struct {
	ClaimID      string `json:"claim_id"`
	PolicyNumber string `json:"policy_number,omitempty"`
	State        State  `json:"state"`

	// Document tracking. MissingDocuments is kept sorted and deduplicated
	// so fingerprints are deterministic.
	MissingDocuments []string `json:"missing_documents"`
	Documents        []string `json:"documents,omitempty"`

	// Specialist outputs. The manager never writes these directly.
	RiskScore            int      `json:"risk_score"`
	FraudIndicators      []string `json:"fraud_indicators,omitempty"`
	AssessmentConfidence int      `json:"assessment_confidence"`

	// Decision capture.
	AgentDecision     Decision  `json:"agent_decision,omitempty"`
	AgentID           string    `json:"agent_id,omitempty"`
	DecisionRationale string    `json:"decision_rationale,omitempty"`
	DecisionTimestamp time.Time `json:"decision_timestamp,omitzero"`
	ApprovedAmount    float64   `json:"approved_amount,omitempty"`
	DenialReason      string    `json:"denial_reason,omitempty"`

	HandoffStatus      HandoffState `json:"handoff_status"`
	DenialPackageReady bool         `json:"denial_package_ready"`

	// Monotonic flags: once true they stay true for the rest of the run.
	SLABreached   bool `json:"sla_breached"`
	AgentReviewed bool `json:"agent_reviewed"`
	AckSent       bool `json:"ack_sent"`

	// RoundCount is incremented once per manager round and always equals
	// the ledger length.
	RoundCount int `json:"round_count"`
}

// NewClaimContext creates a fresh context in the intake state.
func NewClaimContext(claimID string) (*ClaimContext, error) {
	if !ValidClaimID(claimID) {
		return nil, &ValidationError{Field: "claim_id", Reason: fmt.Sprintf("%q does not match CLM-YYYY-NNNNN", claimID)}
	}
	return &ClaimContext{
		ClaimID:          claimID,
		State:            StateIntake,
		MissingDocuments: []string{},
		HandoffStatus:    HandoffPending,
	}, nil
}

// Clone returns a deep copy of the context.
func (c *ClaimContext) Clone() *ClaimContext {
	cp := *c
	cp.MissingDocuments = append([]string(nil), c.MissingDocuments...)
	cp.Documents = append([]string(nil), c.Documents...)
	cp.FraudIndicators = append([]string(nil), c.FraudIndicators...)
	return &cp
}

// Fingerprint returns a stable digest of every externally observable field.
// RoundCount and timestamps are excluded, so two rounds produce the same
// fingerprint iff nothing a specialist could observe has changed.
func (c *ClaimContext) Fingerprint() string {
	shadow := c.Clone()
	shadow.RoundCount = 0
	shadow.DecisionTimestamp = time.Time{}
	shadow.normalize()

	data, err := json.Marshal(shadow)
	if err != nil {
		// Marshal of a plain struct cannot fail; keep the signature simple.
		panic("claims: fingerprint marshal: " + err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// normalize sorts and dedupes slice fields in place.
func (c *ClaimContext) normalize() {
	c.MissingDocuments = sortedSet(c.MissingDocuments)
	c.Documents = sortedSet(c.Documents)
	c.FraudIndicators = sortedSet(c.FraudIndicators)
}

func sortedSet(in []string) []string {
	if len(in) == 0 {
		return in
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ProvideDocuments removes the given document types from the missing set
// and records them as received. Unknown types are recorded but do not
// reduce the missing set.
func (c *ClaimContext) ProvideDocuments(docs []string) {
	if len(docs) == 0 {
		return
	}
	provided := make(map[string]bool, len(docs))
	for _, d := range docs {
		if d != "" {
			provided[d] = true
		}
	}
	remaining := c.MissingDocuments[:0]
	for _, d := range c.MissingDocuments {
		if !provided[d] {
			remaining = append(remaining, d)
		}
	}
	c.MissingDocuments = remaining
	c.Documents = sortedSet(append(c.Documents, docs...))
}

var validStates = map[State]bool{
	StateIntake:     true,
	StateValidation: true,
	StateGathering:  true,
	StateAssessment: true,
	StateDecision:   true,
	StateHandoff:    true,
}

// evidenceGatedStates are the phases past gathering. A claim may not sit
// in one of them while documents are outstanding unless an agent has
// reviewed the gap.
var evidenceGatedStates = map[State]bool{
	StateAssessment: true,
	StateDecision:   true,
	StateHandoff:    true,
}

// ApplyPatch merges a specialist-produced patch into the context. Patches
// come from an untrusted planner response: every key is checked against the
// schema, types are enforced, and invariants (immutable claim_id and
// agent_decision, monotonic flags, the evidence gate on assessment and
// later states) are preserved. On error the context is left unmodified.
func (c *ClaimContext) ApplyPatch(patch map[string]any) error {
	if len(patch) == 0 {
		return nil
	}

	// Stage onto a copy so a rejected key cannot leave a half-applied patch.
	staged := c.Clone()
	for key, raw := range patch {
		if err := staged.applyField(key, raw); err != nil {
			return err
		}
	}
	staged.normalize()

	// Cross-field invariant, checked on the whole staged result so the
	// outcome does not depend on patch key order.
	if evidenceGatedStates[staged.State] && len(staged.MissingDocuments) > 0 && !staged.AgentReviewed {
		return &ValidationError{
			Field:  "state",
			Reason: fmt.Sprintf("state %q requires missing_documents to be empty (%v outstanding) or agent_reviewed", staged.State, staged.MissingDocuments),
		}
	}

	*c = *staged
	return nil
}

func (c *ClaimContext) applyField(key string, raw any) error {
	switch key {
	case "claim_id":
		return &ValidationError{Field: key, Reason: "claim_id is immutable"}
	case "round_count":
		return &ValidationError{Field: key, Reason: "round_count is owned by the manager"}
	case "policy_number":
		s, err := asString(key, raw)
		if err != nil {
			return err
		}
		c.PolicyNumber = s
	case "state":
		s, err := asString(key, raw)
		if err != nil {
			return err
		}
		if !validStates[State(s)] {
			return &ValidationError{Field: key, Reason: fmt.Sprintf("unknown state %q", s)}
		}
		c.State = State(s)
	case "missing_documents":
		list, err := asStringList(key, raw)
		if err != nil {
			return err
		}
		c.MissingDocuments = list
	case "documents":
		list, err := asStringList(key, raw)
		if err != nil {
			return err
		}
		c.Documents = list
	case "risk_score":
		n, err := asInt(key, raw)
		if err != nil {
			return err
		}
		if n < 0 || n > 100 {
			return &ValidationError{Field: key, Reason: fmt.Sprintf("%d outside 0-100", n)}
		}
		c.RiskScore = n
	case "fraud_indicators":
		list, err := asStringList(key, raw)
		if err != nil {
			return err
		}
		c.FraudIndicators = list
	case "assessment_confidence":
		n, err := asInt(key, raw)
		if err != nil {
			return err
		}
		if n < 0 || n > 100 {
			return &ValidationError{Field: key, Reason: fmt.Sprintf("%d outside 0-100", n)}
		}
		c.AssessmentConfidence = n
	case "agent_decision":
		s, err := asString(key, raw)
		if err != nil {
			return err
		}
		d := Decision(s)
		if d != DecisionApprove && d != DecisionDeny {
			return &ValidationError{Field: key, Reason: fmt.Sprintf("unknown decision %q", s)}
		}
		if c.AgentDecision != DecisionNone && c.AgentDecision != d {
			return &ValidationError{Field: key, Reason: "agent_decision is immutable once set"}
		}
		c.AgentDecision = d
		if c.DecisionTimestamp.IsZero() {
			c.DecisionTimestamp = time.Now().UTC()
		}
	case "agent_id":
		s, err := asString(key, raw)
		if err != nil {
			return err
		}
		c.AgentID = s
	case "decision_rationale":
		s, err := asString(key, raw)
		if err != nil {
			return err
		}
		c.DecisionRationale = s
	case "approved_amount":
		f, err := asFloat(key, raw)
		if err != nil {
			return err
		}
		if f < 0 {
			return &ValidationError{Field: key, Reason: "approved_amount must be >= 0"}
		}
		c.ApprovedAmount = f
	case "denial_reason":
		s, err := asString(key, raw)
		if err != nil {
			return err
		}
		if !validDenialReasons[s] {
			return &ValidationError{Field: key, Reason: fmt.Sprintf("unknown denial_reason %q", s)}
		}
		c.DenialReason = s
	case "handoff_status":
		s, err := asString(key, raw)
		if err != nil {
			return err
		}
		h := HandoffState(s)
		if h != HandoffPending && h != HandoffReadyForSettlement {
			return &ValidationError{Field: key, Reason: fmt.Sprintf("unknown handoff_status %q", s)}
		}
		c.HandoffStatus = h
	case "denial_package_ready":
		b, err := asBool(key, raw)
		if err != nil {
			return err
		}
		c.DenialPackageReady = c.DenialPackageReady || b
	case "sla_breached":
		b, err := asBool(key, raw)
		if err != nil {
			return err
		}
		c.SLABreached = c.SLABreached || b
	case "agent_reviewed":
		b, err := asBool(key, raw)
		if err != nil {
			return err
		}
		c.AgentReviewed = c.AgentReviewed || b
	case "ack_sent":
		b, err := asBool(key, raw)
		if err != nil {
			return err
		}
		c.AckSent = c.AckSent || b
	default:
		return &ValidationError{Field: key, Reason: "unknown context field"}
	}
	return nil
}

func asString(key string, raw any) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", &ValidationError{Field: key, Reason: fmt.Sprintf("expected string, got %T", raw)}
	}
	return s, nil
}

func asBool(key string, raw any) (bool, error) {
	b, ok := raw.(bool)
	if !ok {
		return false, &ValidationError{Field: key, Reason: fmt.Sprintf("expected bool, got %T", raw)}
	}
	return b, nil
}

// asInt accepts int and float64 (JSON numbers decode as float64).
func asInt(key string, raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, &ValidationError{Field: key, Reason: fmt.Sprintf("expected integer, got %v", v)}
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, &ValidationError{Field: key, Reason: "expected integer: " + err.Error()}
		}
		return int(n), nil
	}
	return 0, &ValidationError{Field: key, Reason: fmt.Sprintf("expected integer, got %T", raw)}
}

func asFloat(key string, raw any) (float64, error) {
	switch v := raw.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, &ValidationError{Field: key, Reason: "expected number: " + err.Error()}
		}
		return f, nil
	}
	return 0, &ValidationError{Field: key, Reason: fmt.Sprintf("expected number, got %T", raw)}
}

func asStringList(key string, raw any) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return sortedSet(v), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, &ValidationError{Field: key, Reason: fmt.Sprintf("expected string list, got %T element", item)}
			}
			out = append(out, s)
		}
		return sortedSet(out), nil
	}
	return nil, &ValidationError{Field: key, Reason: fmt.Sprintf("expected string list, got %T", raw)}
}
