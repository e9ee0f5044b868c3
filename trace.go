package claims

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// tracer appends a human-readable round-by-round record to a per-claim
// trace file. It is best-effort: trace failures never fail a run.
type tracer struct {
	path string
}

// newTracer creates the trace file with a header, or returns nil when
// tracing is disabled (empty dir).
func newTracer(dir, claimID, runID string) *tracer {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil
	}
	path := filepath.Join(dir, claimID+"_trace.txt")
	header := fmt.Sprintf("Claims orchestration trace\nClaim ID: %s\nRun ID: %s\nGenerated: %s\n%s\n",
		claimID, runID, time.Now().UTC().Format(time.RFC3339), dashes(60))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil
	}
	defer f.Close()
	f.WriteString(header)
	return &tracer{path: path}
}

func (t *tracer) logf(format string, args ...any) {
	if t == nil {
		return
	}
	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "[%s] %s\n", time.Now().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))
}

func dashes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '-'
	}
	return string(b)
}
