// Package main provides the claimsd CLI.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	claims "github.com/everydev1618/goclaims"
	"github.com/everydev1618/goclaims/planner"
)

var (
	version = "dev"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "process":
		processCmd(args)
	case "resume":
		resumeCmd(args)
	case "sessions":
		sessionsCmd(args)
	case "version":
		fmt.Printf("claimsd %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`claimsd - Insurance claims orchestration

Usage:
  claimsd <command> [options]

Commands:
  process   Process a claim submission through the orchestration loop
  resume    Resume a paused claim with new documents or answers
  sessions  List persisted claim sessions
  version   Print version information
  help      Show this help message

Examples:
  claimsd process claim_email.md --config claims.yaml
  claimsd resume CLM-2026-00042 --docs police_report,repair_estimate
  claimsd sessions

Run 'claimsd <command> --help' for more information on a command.`)
}

// processCmd parses a submission file and runs the orchestration loop.
func processCmd(args []string) {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a claims.yaml config file")
	claimID := fs.String("claim", "", "Claim ID to use instead of deriving one")
	timeout := fs.Duration("timeout", 30*time.Minute, "Maximum processing time")
	verbose := fs.Bool("verbose", false, "Enable debug logging")
	jsonOut := fs.Bool("json", false, "Print the outcome as JSON")

	fs.Usage = func() {
		fmt.Println(`Usage: claimsd process <submission-file> [options]

Parse a freeform claim submission and run it through the loop.

Options:`)
		fs.PrintDefaults()
		fmt.Println(`
Examples:
  claimsd process claim_email.md
  claimsd process claim_email.md --config claims.yaml --json`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: no submission file specified")
		fs.Usage()
		os.Exit(1)
	}

	setupLogging(*verbose)
	cfg := loadConfig(*configPath)

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading submission: %v\n", err)
		os.Exit(1)
	}
	sub, err := claims.ParseSubmission(string(data))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing submission: %v\n", err)
		os.Exit(1)
	}
	if *claimID != "" {
		sub.ClaimID = *claimID
	}
	cc, err := sub.Context()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	mgr, store := newManager(cfg)
	defer store.Close()

	ctx, cancel := signalContext(*timeout)
	defer cancel()

	history := claims.NewHistory()
	history.AddUser(sub.Original)

	outcome, err := mgr.Process(ctx, cc, history)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	printOutcome(outcome, *jsonOut)
}

// resumeCmd continues a paused claim.
func resumeCmd(args []string) {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a claims.yaml config file")
	docs := fs.String("docs", "", "Comma-separated document types now provided")
	note := fs.String("note", "", "Free-text answer from the customer")
	noteDoc := fs.String("note-doc", "", "Document type the note responds to")
	clearSLA := fs.Bool("clear-sla", false, "Clear the SLA breach flag")
	timeout := fs.Duration("timeout", 30*time.Minute, "Maximum processing time")
	verbose := fs.Bool("verbose", false, "Enable debug logging")
	jsonOut := fs.Bool("json", false, "Print the outcome as JSON")

	fs.Usage = func() {
		fmt.Println(`Usage: claimsd resume <claim-id> [options]

Resume a paused claim with newly provided documents or answers.

Options:`)
		fs.PrintDefaults()
		fmt.Println(`
Examples:
  claimsd resume CLM-2026-00042 --docs police_report
  claimsd resume CLM-2026-00042 --note "The other driver ran the light" --note-doc witness_statement`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: no claim ID specified")
		fs.Usage()
		os.Exit(1)
	}

	setupLogging(*verbose)
	cfg := loadConfig(*configPath)

	input := claims.ResumeInput{ClearSLABreached: *clearSLA}
	if *docs != "" {
		for _, d := range strings.Split(*docs, ",") {
			if d = strings.TrimSpace(d); d != "" {
				input.Documents = append(input.Documents, d)
			}
		}
	}
	if *note != "" {
		input.Notes = append(input.Notes, claims.Note{DocType: *noteDoc, Content: *note})
	}

	mgr, store := newManager(cfg)
	defer store.Close()

	ctx, cancel := signalContext(*timeout)
	defer cancel()

	outcome, err := mgr.Resume(ctx, fs.Arg(0), input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	printOutcome(outcome, *jsonOut)
}

// sessionsCmd lists persisted sessions.
func sessionsCmd(args []string) {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a claims.yaml config file")

	fs.Usage = func() {
		fmt.Println(`Usage: claimsd sessions [options]

List active claim sessions.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	loadConfig(*configPath)
	store := newStore()
	defer store.Close()

	count := 0
	for info, err := range store.List() {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%-18s %-12s %s\n", info.ClaimID, info.Status, info.SavedAt.Format(time.RFC3339))
		count++
	}
	if count == 0 {
		fmt.Println("No active sessions.")
	}
}

func loadConfig(path string) claims.Config {
	if path == "" {
		return claims.DefaultConfig()
	}
	cfg, err := claims.LoadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func newStore() claims.SessionStore {
	if err := claims.EnsureHome(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	store, err := claims.NewSQLiteStore(claims.DefaultDBPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening session store: %v\n", err)
		os.Exit(1)
	}
	return store
}

func newManager(cfg claims.Config) (*claims.Manager, claims.SessionStore) {
	store := newStore()
	mgr, err := claims.NewManager(planner.NewAnthropic(),
		claims.WithConfig(cfg),
		claims.WithStore(store),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return mgr, store
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func signalContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	return ctx, func() {
		stop()
		cancel()
	}
}

func printOutcome(o *claims.Outcome, asJSON bool) {
	if asJSON {
		data, _ := json.MarshalIndent(o, "", "  ")
		fmt.Println(string(data))
		return
	}
	fmt.Printf("Status:  %s\n", o.Status)
	fmt.Printf("Rounds:  %d\n", o.Rounds)
	if o.Reason != "" {
		fmt.Printf("Reason:  %s\n", o.Reason)
	}
	if len(o.Missing) > 0 {
		fmt.Printf("Missing: %s\n", strings.Join(o.Missing, ", "))
		fmt.Printf("Resume with: claimsd resume %s --docs <type,...>\n", o.ResumeToken)
	}
	if o.Handoff != nil {
		data, _ := json.MarshalIndent(o.Handoff, "", "  ")
		fmt.Printf("Handoff:\n%s\n", data)
	}
	if o.Err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", o.Err)
		os.Exit(1)
	}
}
