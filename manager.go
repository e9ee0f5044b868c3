package claims

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/everydev1618/goclaims/planner"
)

// Manager drives the round loop for claims. It is the single authority
// that decides, round by round, whether to keep invoking specialists,
// pause for human input, or terminate. One Manager can process many
// claims concurrently; each claim's loop owns its context and ledger
// exclusively while running.
type Manager struct {
	cfg     Config
	planner planner.Planner
	store   SessionStore
	sink    eventSink

	// running guards against two loops for the same claim.
	running map[string]bool
	mu      sync.Mutex

	// Lifecycle callbacks
	onPaused    []func(*Outcome)
	onCompleted []func(*Outcome)
	callbackMu  sync.RWMutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithConfig sets the orchestration configuration.
func WithConfig(cfg Config) ManagerOption {
	return func(m *Manager) {
		m.cfg = cfg
	}
}

// WithStore enables session persistence.
func WithStore(store SessionStore) ManagerOption {
	return func(m *Manager) {
		m.store = store
	}
}

// WithEventDir writes lifecycle events as JSON files into dir, overriding
// Config.EventDir.
func WithEventDir(dir string) ManagerOption {
	return func(m *Manager) {
		m.cfg.EventDir = dir
	}
}

// NewManager creates a Manager around the given planner.
func NewManager(p planner.Planner, opts ...ManagerOption) (*Manager, error) {
	if p == nil {
		return nil, errors.New("claims: nil planner")
	}
	m := &Manager{
		cfg:     DefaultConfig(),
		planner: p,
		running: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.cfg.Validate(); err != nil {
		return nil, err
	}
	if m.sink == nil && m.cfg.EventDir != "" {
		sink, err := newFileEventSink(m.cfg.EventDir)
		if err != nil {
			return nil, fmt.Errorf("event sink: %w", err)
		}
		m.sink = sink
	}
	return m, nil
}

// OnPaused registers a callback invoked whenever a claim pauses.
func (m *Manager) OnPaused(fn func(*Outcome)) {
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()
	m.onPaused = append(m.onPaused, fn)
}

// OnCompleted registers a callback invoked on terminal outcomes.
func (m *Manager) OnCompleted(fn func(*Outcome)) {
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()
	m.onCompleted = append(m.onCompleted, fn)
}

func (m *Manager) emitPaused(o *Outcome) {
	m.callbackMu.RLock()
	callbacks := make([]func(*Outcome), len(m.onPaused))
	copy(callbacks, m.onPaused)
	m.callbackMu.RUnlock()

	for _, fn := range callbacks {
		go fn(o)
	}
}

func (m *Manager) emitCompleted(o *Outcome) {
	m.callbackMu.RLock()
	callbacks := make([]func(*Outcome), len(m.onCompleted))
	copy(callbacks, m.onCompleted)
	m.callbackMu.RUnlock()

	for _, fn := range callbacks {
		go fn(o)
	}
}

func (m *Manager) acquire(claimID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running[claimID] {
		return ErrRunInProgress
	}
	m.running[claimID] = true
	return nil
}

func (m *Manager) release(claimID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.running, claimID)
}

// Process runs the orchestration loop for a claim until it terminates or
// pauses. The history may be nil for a fresh claim. On Pause the session
// is persisted and the outcome carries a resume token (the claim ID).
func (m *Manager) Process(ctx context.Context, cc *ClaimContext, history *History) (*Outcome, error) {
	if cc == nil {
		return nil, errors.New("claims: nil context")
	}
	if !ValidClaimID(cc.ClaimID) {
		return nil, &ValidationError{Field: "claim_id", Reason: fmt.Sprintf("%q does not match CLM-YYYY-NNNNN", cc.ClaimID)}
	}
	if err := m.acquire(cc.ClaimID); err != nil {
		return nil, err
	}
	defer m.release(cc.ClaimID)

	if history == nil {
		history = NewHistory()
	}
	cc.normalize()

	if len(cc.MissingDocuments) > 0 {
		var note strings.Builder
		note.WriteString("System note: the intake portal did not find these referenced documents.\n")
		note.WriteString("The customer must provide them before the claim can proceed:\n")
		for _, doc := range cc.MissingDocuments {
			note.WriteString("- ")
			note.WriteString(doc)
			note.WriteString("\n")
		}
		history.AddSystem(note.String())
	}

	return m.run(ctx, cc, history, NewLedger())
}

// ResumeInput carries what the caller learned while a claim was paused.
type ResumeInput struct {
	// Documents are document types now provided; they reduce the missing
	// set by set difference.
	Documents []string

	// Notes are free-text answers; each is appended to the history as a
	// new customer turn.
	Notes []Note

	// ClearSLABreached and ClearAgentReviewed reset those flags. They are
	// never cleared implicitly.
	ClearSLABreached   bool
	ClearAgentReviewed bool
}

// Note is a free-text customer response tied to a requested document type.
type Note struct {
	DocType string
	Content string
}

// Resume reloads a paused claim and re-enters the loop from the exact
// round it stopped at. The ledger and round count continue; they are
// never reset.
func (m *Manager) Resume(ctx context.Context, claimID string, input ResumeInput) (*Outcome, error) {
	if m.store == nil {
		return nil, &StorageError{Op: "load", ClaimID: claimID, Err: errors.New("session persistence disabled")}
	}
	if err := m.acquire(claimID); err != nil {
		return nil, err
	}
	defer m.release(claimID)

	sess, err := m.store.Load(claimID)
	if err != nil {
		return nil, err
	}
	cc := sess.Context
	history := sess.History
	ledger := NewLedger()
	for _, e := range sess.Ledger {
		ledger.Append(e)
	}

	slog.Info("resuming claim",
		"claim_id", claimID,
		"rounds_so_far", ledger.Len(),
		"messages", history.Len(),
		"missing_documents", len(cc.MissingDocuments))

	provided := append([]string(nil), input.Documents...)
	for _, n := range input.Notes {
		if n.DocType != "" {
			provided = append(provided, n.DocType)
		}
		history.AddUser(fmt.Sprintf("Customer provided additional details for %s: %s", n.DocType, n.Content))
	}
	if len(provided) > 0 {
		cc.ProvideDocuments(provided)
		history.AddSystem("Customer has provided additional evidence for: " + strings.Join(sortedSet(provided), ", "))
	}
	if input.ClearSLABreached {
		cc.SLABreached = false
	}
	if input.ClearAgentReviewed {
		cc.AgentReviewed = false
	}

	if m.sink != nil {
		e := newEvent(EventResumed, claimID, "")
		e.Round = cc.RoundCount
		m.sink.publish(e)
	}

	return m.run(ctx, cc, history, ledger)
}

// run is the round loop. Each iteration first evaluates the termination
// policy over the current state, then, on Continue, executes one round:
// ask the planner for an action, merge its patch, append to the ledger.
// Cancellation is honored only at round boundaries so the ledger and
// context are never torn; the session is persisted on every non-terminal
// exit path.
func (m *Manager) run(ctx context.Context, cc *ClaimContext, history *History, ledger *Ledger) (*Outcome, error) {
	runID := uuid.New().String()[:8]
	trace := newTracer(m.cfg.TraceDir, cc.ClaimID, runID)

	slog.Info("orchestration loop started",
		"claim_id", cc.ClaimID,
		"run_id", runID,
		"round_count", cc.RoundCount,
		"max_rounds", m.cfg.MaxRounds)

	if m.sink != nil {
		m.sink.publish(newEvent(EventStarted, cc.ClaimID, runID))
	}

	for {
		select {
		case <-ctx.Done():
			// Round boundary: the context and ledger are consistent here.
			if err := m.persist(cc, history, ledger, SessionInterrupted); err != nil {
				return nil, err
			}
			trace.logf("run interrupted at round %d", cc.RoundCount)
			return nil, ctx.Err()
		default:
		}

		res := Evaluate(cc, ledger, m.cfg)
		if res.Decision != DecideContinue {
			return m.finish(cc, history, ledger, res, runID, trace)
		}

		m.round(ctx, cc, history, ledger, runID, trace)
	}
}

// round executes one specialist round. It never fails the run: planner
// errors and invalid patches degrade to a no-op round that still advances
// the round count, so repeated failures converge to Stalled or TimedOut
// instead of looping forever.
func (m *Manager) round(ctx context.Context, cc *ClaimContext, history *History, ledger *Ledger, runID string, trace *tracer) {
	snapshot, err := json.Marshal(cc)
	if err != nil {
		// Marshal of a plain struct cannot fail; see Fingerprint.
		panic("claims: context snapshot marshal: " + err.Error())
	}
	req := planner.Request{
		ClaimID:     cc.ClaimID,
		Context:     snapshot,
		History:     plannerHistory(history),
		Specialists: plannerRoster(m.cfg.Specialists),
	}

	action, err := m.planner.NextAction(ctx, req)
	if err != nil && !errors.Is(err, planner.ErrNoSpecialist) && ctx.Err() == nil {
		// One retry for transient planner failures, then fall through to
		// the termination checks with a no-op round.
		slog.Warn("specialist selection failed, retrying once",
			"claim_id", cc.ClaimID, "round", cc.RoundCount+1, "error", err)
		action, err = m.planner.NextAction(ctx, req)
	}

	specialist := "none"
	switch {
	case errors.Is(err, planner.ErrNoSpecialist):
		slog.Info("no specialist available this round", "claim_id", cc.ClaimID, "round", cc.RoundCount+1)
		trace.logf("round %d: no specialist available", cc.RoundCount+1)
	case err != nil:
		slog.Error("specialist selection unavailable", "claim_id", cc.ClaimID, "round", cc.RoundCount+1, "error", err)
		trace.logf("round %d: selection failed: %v", cc.RoundCount+1, err)
	default:
		specialist = action.Specialist
		m.applyAction(cc, history, action, trace)
	}

	cc.RoundCount++
	entry := RoundEntry{
		Specialist:  specialist,
		Fingerprint: cc.Fingerprint(),
		Timestamp:   time.Now().UTC(),
	}
	ledger.Append(entry)

	if m.sink != nil {
		e := newEvent(EventRound, cc.ClaimID, runID)
		e.Round = cc.RoundCount
		e.Specialist = specialist
		m.sink.publish(e)
	}

	slog.Debug("round complete",
		"claim_id", cc.ClaimID,
		"round", cc.RoundCount,
		"specialist", specialist,
		"state", cc.State)
}

// applyAction validates and merges one planner action. A patch that fails
// validation is discarded whole; the round still counts.
func (m *Manager) applyAction(cc *ClaimContext, history *History, action *planner.Action, trace *tracer) {
	round := cc.RoundCount + 1

	if !m.cfg.KnownSpecialist(action.Specialist) {
		slog.Warn("planner selected unknown specialist, discarding patch",
			"claim_id", cc.ClaimID, "round", round, "specialist", action.Specialist)
		trace.logf("round %d: unknown specialist %q, patch discarded", round, action.Specialist)
		return
	}
	if field, ok := m.deniedWrite(action.Specialist, action.Patch); !ok {
		slog.Warn("specialist patched a field outside its write set, discarding patch",
			"claim_id", cc.ClaimID, "round", round, "specialist", action.Specialist, "field", field)
		trace.logf("round %d: %s may not write %q, patch discarded", round, action.Specialist, field)
		return
	}

	if err := cc.ApplyPatch(action.Patch); err != nil {
		slog.Warn("context patch rejected",
			"claim_id", cc.ClaimID, "round", round, "specialist", action.Specialist, "error", err)
		trace.logf("round %d: patch from %s rejected: %v", round, action.Specialist, err)
		return
	}

	if action.Reply != "" {
		history.Add(Turn{Role: RoleAssistant, Content: action.Reply, Specialist: action.Specialist})
	}
	trace.logf("round %d: %s patched %d field(s), state=%s", round, action.Specialist, len(action.Patch), cc.State)
}

// deniedWrite returns the first patch key outside the specialist's
// declared write set, if the roster declares one.
func (m *Manager) deniedWrite(specialist string, patch map[string]any) (string, bool) {
	var writes []string
	for _, s := range m.cfg.Specialists {
		if s.ID == specialist {
			writes = s.Writes
			break
		}
	}
	if len(writes) == 0 {
		return "", true
	}
	allowed := make(map[string]bool, len(writes))
	for _, w := range writes {
		allowed[w] = true
	}
	for key := range patch {
		if !allowed[key] {
			return key, false
		}
	}
	return "", true
}

// finish converts a policy decision into the returned Outcome, persisting
// or archiving the session as the decision requires.
func (m *Manager) finish(cc *ClaimContext, history *History, ledger *Ledger, res PolicyResult, runID string, trace *tracer) (*Outcome, error) {
	out := &Outcome{
		Reason:  res.Reason,
		Context: cc,
		Rounds:  cc.RoundCount,
	}

	switch res.Decision {
	case DecidePause:
		out.Status = OutcomePaused
		out.Missing = append([]string(nil), cc.MissingDocuments...)
		out.ResumeToken = cc.ClaimID
		if err := m.persist(cc, history, ledger, SessionPaused); err != nil {
			return nil, err
		}
		if m.sink != nil {
			e := newEvent(EventPaused, cc.ClaimID, runID)
			e.Round = cc.RoundCount
			e.Reason = res.Reason
			m.sink.publish(e)
		}
		trace.logf("paused after round %d: %s", cc.RoundCount, res.Reason)
		slog.Info("claim paused", "claim_id", cc.ClaimID, "missing_documents", out.Missing)
		m.emitPaused(out)
		return out, nil

	case DecideApproved, DecideDenied:
		if res.Decision == DecideApproved {
			out.Status = OutcomeApproved
		} else {
			out.Status = OutcomeDenied
		}
		payload := buildHandoff(cc)
		if err := payload.Validate(); err != nil {
			// A malformed payload must never reach settlement.
			return nil, fmt.Errorf("handoff payload for %s: %w", cc.ClaimID, err)
		}
		out.Handoff = payload
		if err := m.archive(cc, history, ledger, string(out.Status)); err != nil {
			return nil, err
		}
		if m.sink != nil {
			e := newEvent(EventCompleted, cc.ClaimID, runID)
			e.Round = cc.RoundCount
			e.Reason = res.Reason
			m.sink.publish(e)
		}
		trace.logf("terminal %s after round %d: %s", out.Status, cc.RoundCount, res.Reason)
		slog.Info("claim decided",
			"claim_id", cc.ClaimID,
			"status", out.Status,
			"rounds", cc.RoundCount,
			"reason", res.Reason)
		m.emitCompleted(out)
		return out, nil

	case DecideStalled:
		out.Status = OutcomeStalled
		// Not archived: an operator may resume under relaxed config.
		if err := m.persist(cc, history, ledger, string(OutcomeStalled)); err != nil {
			return nil, err
		}
		if m.sink != nil {
			e := newEvent(EventStalled, cc.ClaimID, runID)
			e.Round = cc.RoundCount
			e.Reason = res.Reason
			m.sink.publish(e)
		}
		trace.logf("stalled after round %d: %s", cc.RoundCount, res.Reason)
		slog.Warn("claim stalled", "claim_id", cc.ClaimID, "reason", res.Reason)
		m.emitCompleted(out)
		return out, nil

	case DecideTimedOut:
		out.Status = OutcomeTimedOut
		if m.cfg.TimeoutBehavior == TimeoutFailFast {
			out.Err = fmt.Errorf("claim %s: %s", cc.ClaimID, res.Reason)
		}
		if err := m.persist(cc, history, ledger, string(OutcomeTimedOut)); err != nil {
			return nil, err
		}
		if m.sink != nil {
			e := newEvent(EventTimedOut, cc.ClaimID, runID)
			e.Round = cc.RoundCount
			e.Reason = res.Reason
			m.sink.publish(e)
		}
		trace.logf("timed out after round %d: %s", cc.RoundCount, res.Reason)
		slog.Warn("claim timed out", "claim_id", cc.ClaimID, "rounds", cc.RoundCount)
		m.emitCompleted(out)
		return out, nil
	}

	return nil, fmt.Errorf("claims: unexpected policy decision %q", res.Decision)
}

// persist saves the session snapshot, if persistence is configured.
func (m *Manager) persist(cc *ClaimContext, history *History, ledger *Ledger, status string) error {
	if m.store == nil {
		slog.Debug("session persistence disabled, skipping save", "claim_id", cc.ClaimID)
		return nil
	}
	sess := &Session{
		ClaimID: cc.ClaimID,
		History: history,
		Context: cc,
		Ledger:  ledger.Entries(),
		Meta: SessionMeta{
			Status:           status,
			SavedAt:          time.Now().UTC(),
			MessageCount:     history.Len(),
			MissingDocuments: append([]string(nil), cc.MissingDocuments...),
		},
	}
	return m.store.Save(sess)
}

// archive saves the final snapshot and moves the session out of the
// active set. Archiving is idempotent; a claim with no session is fine.
func (m *Manager) archive(cc *ClaimContext, history *History, ledger *Ledger, status string) error {
	if m.store == nil {
		return nil
	}
	if err := m.persist(cc, history, ledger, status); err != nil {
		return err
	}
	return m.store.Archive(cc.ClaimID)
}

func plannerHistory(h *History) []planner.Message {
	turns := h.Turns()
	out := make([]planner.Message, len(turns))
	for i, t := range turns {
		out[i] = planner.Message{Role: string(t.Role), Content: t.Content, Specialist: t.Specialist}
	}
	return out
}

func plannerRoster(defs []SpecialistDef) []planner.Specialist {
	if len(defs) == 0 {
		return nil
	}
	out := make([]planner.Specialist, len(defs))
	for i, d := range defs {
		out[i] = planner.Specialist{ID: d.ID, Description: d.Description}
	}
	return out
}
