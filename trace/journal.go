package trace

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/relaydev/relay"
)

// Journal writes run events to per-run JSONL files under a root
// directory. Appends are serialized and atomic per record; timestamps are
// forced non-decreasing within a run. Journaling failures are logged and
// swallowed; a broken trace disk never fails a run.
type Journal struct {
	dir      string
	maxChars int
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	last map[string]time.Time // run file -> last written timestamp
}

// JournalOption configures a Journal.
type JournalOption func(*Journal)

// MaxFieldChars caps journaled string values (default: 2000).
func MaxFieldChars(n int) JournalOption {
	return func(j *Journal) { j.maxChars = n }
}

// JournalLogger sets the structured logger for write failures.
func JournalLogger(l *slog.Logger) JournalOption {
	return func(j *Journal) { j.logger = l }
}

// NewJournal creates a journal rooted at dir, creating it if needed.
func NewJournal(dir string, opts ...JournalOption) (*Journal, error) {
	j := &Journal{
		dir:      dir,
		maxChars: 2000,
		now:      time.Now,
		last:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.logger == nil {
		j.logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return j, nil
}

// Run binds a recorder to one session and run. Every event recorded
// through it lands in <dir>/<session>/<run>.jsonl.
func (j *Journal) Run(sessionID, runID string) *RunJournal {
	return &RunJournal{journal: j, sessionID: sessionID, runID: runID}
}

// RunPath returns the journal file for a run.
func (j *Journal) RunPath(sessionID, runID string) string {
	return filepath.Join(j.dir, sessionID, runID+".jsonl")
}

// append redacts, stamps, and writes one event.
func (j *Journal) append(sessionID, runID string, ev relay.TraceEvent) {
	path := j.RunPath(sessionID, runID)

	j.mu.Lock()
	defer j.mu.Unlock()

	ts := j.now().UTC()
	if last, ok := j.last[path]; ok && ts.Before(last) {
		ts = last
	}
	j.last[path] = ts

	record := Event{
		Time:      ts,
		SessionID: sessionID,
		RunID:     runID,
		Kind:      ev.Kind,
		Name:      ev.Name,
		SpanID:    ev.SpanID,
		Data:      redactData(ev.Data, j.maxChars),
	}
	if args, ok := ev.Data["args"]; ok {
		record.ArgsHash = HashArgs(args)
	}

	line, err := json.Marshal(record)
	if err != nil {
		j.logger.Error("journal marshal failed", "run", runID, "kind", ev.Kind, "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		j.logger.Error("journal mkdir failed", "path", path, "error", err)
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		j.logger.Error("journal open failed", "path", path, "error", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		j.logger.Error("journal write failed", "path", path, "error", err)
	}
}

// RunJournal records events for one run. Implements relay.Recorder.
type RunJournal struct {
	journal   *Journal
	sessionID string
	runID     string
}

// Record implements relay.Recorder.
func (r *RunJournal) Record(_ context.Context, ev relay.TraceEvent) {
	r.journal.append(r.sessionID, r.runID, ev)
}

// Path returns the file this recorder appends to.
func (r *RunJournal) Path() string {
	return r.journal.RunPath(r.sessionID, r.runID)
}

// compile-time check
var _ relay.Recorder = (*RunJournal)(nil)
