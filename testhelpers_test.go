package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// stubCompleter plays back scripted outputs in order, repeating the last
// one when the script runs out. Prompts are recorded for assertions.
type stubCompleter struct {
	name    string
	outputs []string
	err     error

	idx     int
	prompts [][]Message
}

func (s *stubCompleter) Name() string {
	if s.name == "" {
		return "stub"
	}
	return s.name
}

func (s *stubCompleter) Complete(_ context.Context, messages []Message) (Completion, error) {
	s.prompts = append(s.prompts, messages)
	if s.err != nil {
		return Completion{}, s.err
	}
	if len(s.outputs) == 0 {
		return Completion{Text: ""}, nil
	}
	i := s.idx
	if i >= len(s.outputs) {
		i = len(s.outputs) - 1
	}
	s.idx++
	return Completion{Text: s.outputs[i]}, nil
}

// flakyCompleter fails with a transient error a fixed number of times
// before succeeding.
type flakyCompleter struct {
	failures int
	calls    int
}

func (f *flakyCompleter) Name() string { return "flaky" }

func (f *flakyCompleter) Complete(_ context.Context, _ []Message) (Completion, error) {
	f.calls++
	if f.calls <= f.failures {
		return Completion{}, &ErrTransient{Op: "complete", Err: errors.New("connection reset")}
	}
	return Completion{Text: "recovered"}, nil
}

// stubIndex returns canned evidence for every query.
type stubIndex struct {
	hits []Evidence
	err  error
	docs []Document
}

func (s *stubIndex) Add(_ context.Context, docs []Document) error {
	s.docs = append(s.docs, docs...)
	return nil
}

func (s *stubIndex) Search(_ context.Context, _ string, k int) ([]Evidence, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.hits) > k {
		return s.hits[:k], nil
	}
	return s.hits, nil
}

// stubSearcher returns canned web results.
type stubSearcher struct {
	results []SearchResult
	err     error
}

func (s *stubSearcher) Search(_ context.Context, _ string, k int) ([]SearchResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.results) > k {
		return s.results[:k], nil
	}
	return s.results, nil
}

// stubFetcher maps URLs to page text.
type stubFetcher struct {
	pages map[string]string
}

func (s *stubFetcher) Fetch(_ context.Context, url string) (string, error) {
	page, ok := s.pages[url]
	if !ok {
		return "", fmt.Errorf("no page for %s", url)
	}
	return page, nil
}

// memHistory is an in-memory KVHistory.
type memHistory struct {
	mu    sync.Mutex
	turns map[string][]Message
}

func newMemHistory() *memHistory {
	return &memHistory{turns: make(map[string][]Message)}
}

func (m *memHistory) Append(_ context.Context, sessionID string, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns[sessionID] = append(m.turns[sessionID], msg)
	return nil
}

func (m *memHistory) History(_ context.Context, sessionID string, limit int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.turns[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// echoTool serves one name and echoes its arguments.
type echoTool struct {
	toolName string
	calls    []json.RawMessage
}

func (e *echoTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: e.toolName, Description: "echo " + e.toolName}}
}

func (e *echoTool) Execute(_ context.Context, name string, args json.RawMessage) (ToolOutput, error) {
	e.calls = append(e.calls, args)
	return ToolOutput{Content: name + " ran with " + string(args)}, nil
}

// memRecorder collects trace events in memory.
type memRecorder struct {
	mu     sync.Mutex
	events []TraceEvent
}

func (m *memRecorder) Record(_ context.Context, ev TraceEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *memRecorder) kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.Kind
	}
	return out
}

// fakeRunner returns canned results keyed by the first command word.
type fakeRunner struct {
	results map[string]RunResult
	err     error
	runs    []string
}

func (f *fakeRunner) Run(_ context.Context, _ string, command []string) (RunResult, error) {
	f.runs = append(f.runs, strings.Join(command, " "))
	if f.err != nil {
		return RunResult{}, f.err
	}
	if r, ok := f.results[command[0]]; ok {
		return r, nil
	}
	return RunResult{Passed: true, Output: "ok"}, nil
}

// codeAgent is an AgentFunc that sets ProposedCode.
func codeAgent(name, code string) Agent {
	return AgentFunc{ID: name, Fn: func(_ context.Context, s *State) (*State, error) {
		s.ProposedCode = code
		return s, nil
	}}
}

// gateAgent is an AgentFunc that sets the testing verdict.
func gateAgent(name string, pass bool, output string) Agent {
	return AgentFunc{ID: name, Fn: func(_ context.Context, s *State) (*State, error) {
		s.TestsPassed = boolPtr(pass)
		s.TestOutput = output
		return s, nil
	}}
}

// reviewAgent is an AgentFunc that sets the QA verdict.
func reviewAgent(name string, pass bool, output string) Agent {
	return AgentFunc{ID: name, Fn: func(_ context.Context, s *State) (*State, error) {
		s.QAPassed = boolPtr(pass)
		s.QAOutput = output
		return s, nil
	}}
}

// errAgent always fails.
func errAgent(name, msg string) Agent {
	return AgentFunc{ID: name, Fn: func(_ context.Context, _ *State) (*State, error) {
		return nil, errors.New(msg)
	}}
}
