package relay

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CoderAgent drafts an implementation with a Completer. On the first pass
// it works from the task alone; when feedback and a previous proposal are
// present it produces a revision instead.
type CoderAgent struct {
	id        string
	completer Completer
}

// NewCoderAgent creates a coder backed by c.
func NewCoderAgent(name string, c Completer) *CoderAgent {
	return &CoderAgent{id: name, completer: c}
}

func (a *CoderAgent) Name() string { return a.id }

func (a *CoderAgent) Run(ctx context.Context, s *State) (*State, error) {
	msgs := []Message{
		{Role: "system", Content: "You are an autonomous software engineer. Respond with only the code, no prose."},
	}
	if s.ProposedCode != "" && s.Feedback != "" {
		msgs = append(msgs, Message{Role: "user", Content: fmt.Sprintf(
			"Task:\n%s\n\nPrevious implementation:\n%s\n\nFeedback to address:\n%s\n\nProduce the revised implementation.",
			s.Task, s.ProposedCode, s.Feedback)})
	} else {
		msgs = append(msgs, Message{Role: "user", Content: s.Task})
	}
	resp, err := a.completer.Complete(ctx, msgs)
	if err != nil {
		return nil, err
	}
	s.ProposedCode = stripCodeFence(resp.Text)
	return s, nil
}

// FormatterAgent runs a format command over the proposed code in a scoped
// temporary workspace and reads the result back. With no command
// configured it falls back to whitespace normalization.
type FormatterAgent struct {
	id       string
	runner   CodeRunner
	command  []string
	fileName string
}

// NewFormatterAgent creates a formatter. command receives the code file
// as its final argument; an empty command means normalize-only.
func NewFormatterAgent(name string, runner CodeRunner, fileName string, command ...string) *FormatterAgent {
	return &FormatterAgent{id: name, runner: runner, command: command, fileName: fileName}
}

func (a *FormatterAgent) Name() string { return a.id }

func (a *FormatterAgent) Run(ctx context.Context, s *State) (*State, error) {
	if s.ProposedCode == "" {
		return s, nil
	}
	if len(a.command) == 0 || a.runner == nil {
		s.ProposedCode = normalizeWhitespace(s.ProposedCode)
		return s, nil
	}
	dir, err := os.MkdirTemp("", "relay-fmt-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, a.fileName)
	if err := os.WriteFile(path, []byte(s.ProposedCode), 0o600); err != nil {
		return nil, err
	}
	if _, err := a.runner.Run(ctx, dir, append(append([]string{}, a.command...), path)); err != nil {
		return nil, err
	}
	formatted, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s.ProposedCode = string(formatted)
	return s, nil
}

// TesterAgent generates a test suite for the proposed code, materializes
// code and tests in a scoped temporary workspace, and runs the configured
// test command. The workspace is removed on every exit path.
type TesterAgent struct {
	id        string
	completer Completer
	runner    CodeRunner
	command   []string
	codeFile  string
	testFile  string
}

// NewTesterAgent creates a tester. completer may be nil, in which case no
// tests are generated and the command runs against the code alone.
func NewTesterAgent(name string, completer Completer, runner CodeRunner, codeFile, testFile string, command ...string) *TesterAgent {
	return &TesterAgent{
		id: name, completer: completer, runner: runner,
		codeFile: codeFile, testFile: testFile, command: command,
	}
}

func (a *TesterAgent) Name() string { return a.id }

func (a *TesterAgent) Run(ctx context.Context, s *State) (*State, error) {
	if a.runner == nil {
		return nil, &ErrDependency{Name: "runner", Message: "tester has no code runner"}
	}
	dir, err := os.MkdirTemp("", "relay-test-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	if err := os.WriteFile(filepath.Join(dir, a.codeFile), []byte(s.ProposedCode), 0o600); err != nil {
		return nil, err
	}
	if a.completer != nil && a.testFile != "" {
		resp, err := a.completer.Complete(ctx, []Message{
			{Role: "system", Content: "You write thorough, runnable test suites. Respond with only the test file content."},
			{Role: "user", Content: fmt.Sprintf("Task:\n%s\n\nImplementation (%s):\n%s\n\nWrite tests in %s covering the task requirements.",
				s.Task, a.codeFile, s.ProposedCode, a.testFile)},
		})
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(dir, a.testFile), []byte(stripCodeFence(resp.Text)), 0o600); err != nil {
			return nil, err
		}
	}

	result, err := a.runner.Run(ctx, dir, a.command)
	if err != nil {
		return nil, err
	}
	s.TestsPassed = boolPtr(result.Passed)
	s.TestOutput = result.Output
	return s, nil
}

// ReviewerAgent asks a Completer to review the proposed code against the
// task. A verdict containing PASS accepts the code; anything else is
// treated as a list of problems.
type ReviewerAgent struct {
	id        string
	completer Completer
}

// NewReviewerAgent creates a reviewer backed by c.
func NewReviewerAgent(name string, c Completer) *ReviewerAgent {
	return &ReviewerAgent{id: name, completer: c}
}

func (a *ReviewerAgent) Name() string { return a.id }

func (a *ReviewerAgent) Run(ctx context.Context, s *State) (*State, error) {
	resp, err := a.completer.Complete(ctx, []Message{
		{Role: "user", Content: fmt.Sprintf(
			"Review the following code for bugs or style issues against the task.\nTask:\n%s\n\nCode:\n%s\n\nRespond with PASS if the code is acceptable, otherwise describe the problems.",
			s.Task, s.ProposedCode)},
	})
	if err != nil {
		return nil, err
	}
	s.QAPassed = boolPtr(strings.Contains(strings.ToLower(resp.Text), "pass"))
	s.QAOutput = resp.Text
	return s, nil
}

// stripCodeFence removes a surrounding markdown code fence, if present,
// including an optional language tag.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if i := strings.Index(trimmed, "\n"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// normalizeWhitespace trims trailing spaces per line and guarantees a
// single trailing newline.
func normalizeWhitespace(code string) string {
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	out := strings.Join(lines, "\n")
	return strings.TrimRight(out, "\n") + "\n"
}

// compile-time checks
var (
	_ Agent = (*CoderAgent)(nil)
	_ Agent = (*FormatterAgent)(nil)
	_ Agent = (*TesterAgent)(nil)
	_ Agent = (*ReviewerAgent)(nil)
)
