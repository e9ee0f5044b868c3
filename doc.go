// Package claims implements a round-based orchestration loop for insurance
// claims processing with durable session persistence.
//
// A claim moves through the pipeline as a ClaimContext, the single shared
// record every specialist reads and patches. The Manager drives the loop:
// each round it asks a planner which specialist should act next, merges the
// specialist's context patch, appends a fingerprint entry to the round
// ledger, and evaluates the termination policy. The loop ends when the
// claim is approved or denied, pauses for human input, stalls, or exhausts
// its round budget.
//
// # Quick Start
//
// Create a manager with an Anthropic-backed planner and process a claim:
//
//	p := planner.NewAnthropic()
//	mgr, err := claims.NewManager(p,
//	    claims.WithConfig(cfg),
//	    claims.WithStore(store),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	cc, err := claims.NewClaimContext("CLM-2026-00042")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	outcome, err := mgr.Process(ctx, cc, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(outcome.Status)
//
// # Pause and Resume
//
// When human-in-the-loop is enabled and documents are missing, Process
// returns a Paused outcome and persists the session. Resume picks the
// claim back up once the customer responds:
//
//	outcome, err := mgr.Resume(ctx, "CLM-2026-00042", claims.ResumeInput{
//	    Documents: []string{"police_report"},
//	})
//
// The ledger and round count carry across resumes; a resumed claim
// continues from the exact round it stopped at.
//
// # Persistence
//
// Two SessionStore implementations are provided: FSStore writes one JSON
// record per claim with atomic rename, and SQLiteStore keeps sessions in
// a single SQLite database in WAL mode. Terminal claims are archived, not
// deleted.
//
// # Architecture
//
// The main components are:
//
//   - ClaimContext: The shared, patch-validated claim record
//   - Manager: Runs the round loop, pause/resume, and archival
//   - Ledger: Append-only round trail used for stall detection
//   - SessionStore: Durable pause/resume persistence (FS or SQLite)
//   - HandoffPayload: The validated terminal handoff to settlement
//   - planner.Planner: Interface for the specialist-selection backend
//
// # Thread Safety
//
// A Manager is safe for concurrent use across distinct claims; concurrent
// runs for the same claim ID are rejected with ErrRunInProgress.
package claims
