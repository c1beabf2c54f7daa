package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// StageStatus tags timeline progress for consumers driving a review UI.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageActive    StageStatus = "active"
	StageAwaiting  StageStatus = "awaiting"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
)

// TimelineStage tracks progress for one pipeline stage.
type TimelineStage struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Status      StageStatus    `json:"status"`
	Artifacts   map[string]any `json:"artifacts,omitempty"`
}

// Session is one human-in-the-loop coding run: a fixed timeline of
// coding, review, formatting, testing, and qa, advanced stage-by-stage
// by explicit commands. StagePointer names the stage awaiting a command.
type Session struct {
	ID           string          `json:"session_id"`
	Task         string          `json:"task"`
	StagePointer string          `json:"stage"`
	Timeline     []TimelineStage `json:"timeline"`
	Messages     []Message       `json:"messages"`
	Instructions []string        `json:"instructions"`
	State        *State          `json:"state"`

	baseTask string
}

// SessionStore is an in-memory registry of active sessions.
// Safe for concurrent use.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionStore returns an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// Put stores a session under its id.
func (st *SessionStore) Put(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.ID] = s
}

// Get returns the session with the given id.
func (st *SessionStore) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, &ErrInput{Field: "session", Message: "unknown session " + id}
	}
	return s, nil
}

// SessionController advances coding sessions through the fixed timeline.
// Human decisions arrive as commands; a command for any stage other than
// the one the session is awaiting is rejected with ErrConflict.
type SessionController struct {
	mu       sync.Mutex
	pipeline *Pipeline
	store    *SessionStore
	resolver IssueResolver
	logger   *slog.Logger
}

// SessionOption configures a SessionController.
type SessionOption func(*SessionController)

// WithSessionResolver enables issue-reference tasks ("github:owner/repo#42").
func WithSessionResolver(r IssueResolver) SessionOption {
	return func(c *SessionController) { c.resolver = r }
}

// WithSessionStore replaces the default in-memory store.
func WithSessionStore(st *SessionStore) SessionOption {
	return func(c *SessionController) { c.store = st }
}

// WithSessionLogger sets the structured logger.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(c *SessionController) { c.logger = l }
}

// NewSessionController creates a controller driving p.
func NewSessionController(p *Pipeline, opts ...SessionOption) (*SessionController, error) {
	if p == nil {
		return nil, &ErrInput{Field: "pipeline", Message: "pipeline is required"}
	}
	c := &SessionController{pipeline: p}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = NewSessionStore()
	}
	if c.logger == nil {
		c.logger = nopLogger
	}
	return c, nil
}

// Store exposes the session registry for read-side serving.
func (c *SessionController) Store() *SessionStore { return c.store }

// Create starts a session: resolves an issue reference if the task names
// one, runs the coders, and leaves the session awaiting review.
func (c *SessionController) Create(ctx context.Context, task string) (*Session, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return nil, &ErrInput{Field: "task", Message: "task must not be empty"}
	}
	if ref, ok := issueRef(task); ok {
		if c.resolver == nil {
			return nil, &ErrDependency{Name: "issue resolver", Message: "task references an issue but no resolver is configured"}
		}
		title, desc, err := c.resolver.Resolve(ctx, ref)
		if err != nil {
			return nil, err
		}
		task = title + "\n\n" + desc
	}

	sess := &Session{
		ID:           NewID(),
		Task:         task,
		baseTask:     task,
		StagePointer: "coding",
		State:        NewState(task),
		Timeline: []TimelineStage{
			{ID: "coding", Title: "Multimodel Coding", Description: "Coder agents draft or revise the implementation.", Status: StageActive},
			{ID: "review", Title: "Human Review", Description: "You inspect the proposal and decide whether to rerun the coders.", Status: StagePending},
			{ID: "formatting", Title: "Auto Formatting", Description: "Formatter agents polish the accepted proposal.", Status: StagePending},
			{ID: "testing", Title: "Test Orchestration", Description: "Test suites run when you green-light the run.", Status: StagePending},
			{ID: "qa", Title: "QA Review", Description: "A reviewer agent double-checks requirements.", Status: StagePending},
		},
	}
	sess.Messages = append(sess.Messages, Message{Role: "user", Content: task})

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.runCoders(ctx, sess); err != nil {
		return nil, err
	}
	c.store.Put(sess)
	return sess, nil
}

// ApplyFeedback handles a human review decision. "approve" moves the
// session on to formatting and leaves testing awaiting; "revise" appends
// the comment to the accumulated instructions and reruns the coders.
func (c *SessionController) ApplyFeedback(ctx context.Context, id, action, comment string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, err := c.store.Get(id)
	if err != nil {
		return nil, err
	}
	if sess.StagePointer != "review" {
		return nil, &ErrConflict{SessionID: id, Want: "review", Have: sess.StagePointer}
	}
	action = strings.ToLower(action)
	if action != "approve" && action != "revise" {
		return nil, &ErrInput{Field: "action", Message: "action must be either approve or revise"}
	}
	if comment = strings.TrimSpace(comment); comment != "" {
		sess.Instructions = append(sess.Instructions, comment)
		sess.Messages = append(sess.Messages, Message{Role: "user", Content: comment})
	}

	if action == "revise" {
		c.setStage(sess, "review", StageActive, nil)
		c.setStage(sess, "coding", StageActive, nil)
		sess.State.Task = enrichTask(sess.baseTask, sess.Instructions)
		sess.Task = sess.State.Task
		if err := c.runCoders(ctx, sess); err != nil {
			return nil, err
		}
		return sess, nil
	}

	c.setStage(sess, "review", StageCompleted, nil)
	c.runFormatters(ctx, sess)
	c.setStage(sess, "testing", StageAwaiting, nil)
	sess.StagePointer = "testing"
	return sess, nil
}

// Advance executes the awaited stage command: "run_tests" while testing
// is awaited, "send_to_qa" while qa is awaited.
func (c *SessionController) Advance(ctx context.Context, id, command string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, err := c.store.Get(id)
	if err != nil {
		return nil, err
	}
	switch command {
	case "run_tests":
		if sess.StagePointer != "testing" {
			return nil, &ErrConflict{SessionID: id, Want: "testing", Have: sess.StagePointer}
		}
		return sess, c.runTests(ctx, sess)
	case "send_to_qa":
		if sess.StagePointer != "qa" {
			return nil, &ErrConflict{SessionID: id, Want: "qa", Have: sess.StagePointer}
		}
		return sess, c.runQA(ctx, sess)
	default:
		return nil, &ErrInput{Field: "command", Message: "unknown command " + command}
	}
}

// runCoders executes every coder, captures per-coder proposals, and
// leaves the session awaiting review.
func (c *SessionController) runCoders(ctx context.Context, sess *Session) error {
	sess.StagePointer = "review"
	c.setStage(sess, "coding", StageActive, nil)
	proposals := make(map[string]any, len(c.pipeline.coders))
	for _, coder := range c.pipeline.coders {
		next, err := coder.Run(ctx, sess.State)
		if err != nil {
			c.setStage(sess, "coding", StageFailed, map[string]any{"error": err.Error()})
			return err
		}
		*sess.State = *next
		proposals[coder.Name()] = strings.TrimSpace(sess.State.ProposedCode)
	}
	c.setStage(sess, "coding", StageCompleted, map[string]any{
		"proposed_code": sess.State.ProposedCode,
		"coders":        proposals,
	})
	sess.Messages = append(sess.Messages, Message{
		Role:    "assistant",
		Content: fmt.Sprintf("The coding stage produced a candidate implementation (%d coder(s)).", len(proposals)),
	})
	c.setStage(sess, "review", StageAwaiting, nil)
	return nil
}

// runFormatters polishes the accepted proposal best-effort.
func (c *SessionController) runFormatters(ctx context.Context, sess *Session) {
	c.setStage(sess, "formatting", StageActive, nil)
	for _, f := range c.pipeline.formatters {
		next, err := f.Run(ctx, sess.State)
		if err != nil {
			c.logger.Warn("formatter skipped", "formatter", f.Name(), "error", err)
			continue
		}
		*sess.State = *next
	}
	c.setStage(sess, "formatting", StageCompleted, map[string]any{"formatted_code": sess.State.ProposedCode})
	sess.Messages = append(sess.Messages, Message{Role: "assistant", Content: "Formatter agents polished the code."})
}

// runTests runs every tester. All passing moves qa to awaiting; a failure
// sends the session back to review.
func (c *SessionController) runTests(ctx context.Context, sess *Session) error {
	c.setStage(sess, "testing", StageActive, nil)
	passed := true
	var outputs []string
	for _, t := range c.pipeline.testers {
		next, err := t.Run(ctx, sess.State)
		if err != nil {
			passed = false
			outputs = append(outputs, err.Error())
			continue
		}
		*sess.State = *next
		outputs = append(outputs, sess.State.TestOutput)
		if sess.State.TestsPassed == nil || !*sess.State.TestsPassed {
			passed = false
		}
	}
	combined := strings.TrimSpace(strings.Join(outputs, "\n"))
	artifacts := map[string]any{"tests_passed": passed, "test_output": combined}
	if passed {
		c.setStage(sess, "testing", StageCompleted, artifacts)
		sess.Messages = append(sess.Messages, Message{Role: "assistant", Content: "Automated tests passed. The patch is clear for QA."})
		c.setStage(sess, "qa", StageAwaiting, nil)
		sess.StagePointer = "qa"
	} else {
		c.setStage(sess, "testing", StageFailed, artifacts)
		sess.Messages = append(sess.Messages, Message{Role: "assistant", Content: "Tests failed. Review the logs and send feedback for another coding pass."})
		c.setStage(sess, "review", StageAwaiting, nil)
		sess.StagePointer = "review"
	}
	return nil
}

// runQA runs every reviewer. All passing completes the session; a flag
// sends it back to review.
func (c *SessionController) runQA(ctx context.Context, sess *Session) error {
	c.setStage(sess, "qa", StageActive, nil)
	passed := true
	reports := make(map[string]any, len(c.pipeline.reviewers))
	for _, r := range c.pipeline.reviewers {
		next, err := r.Run(ctx, sess.State)
		if err != nil {
			passed = false
			reports[r.Name()] = err.Error()
			continue
		}
		*sess.State = *next
		reports[r.Name()] = sess.State.QAOutput
		if sess.State.QAPassed == nil || !*sess.State.QAPassed {
			passed = false
		}
	}
	artifacts := map[string]any{"qa_passed": passed, "qa_reports": reports}
	if !passed {
		c.setStage(sess, "qa", StageFailed, artifacts)
		sess.Messages = append(sess.Messages, Message{Role: "assistant", Content: "QA flagged issues. Provide guidance to re-run the coders."})
		c.setStage(sess, "review", StageAwaiting, nil)
		sess.StagePointer = "review"
		return nil
	}
	c.setStage(sess, "qa", StageCompleted, artifacts)
	sess.Messages = append(sess.Messages, Message{Role: "assistant", Content: "QA approved the patch."})
	sess.StagePointer = "complete"
	sess.State.Complete()
	return nil
}

func (c *SessionController) setStage(sess *Session, id string, status StageStatus, artifacts map[string]any) {
	for i := range sess.Timeline {
		if sess.Timeline[i].ID == id {
			sess.Timeline[i].Status = status
			if artifacts != nil {
				sess.Timeline[i].Artifacts = artifacts
			}
			return
		}
	}
}

// issueRef reports whether task is an issue reference and returns it.
func issueRef(task string) (string, bool) {
	for _, prefix := range []string{"github:", "jira:"} {
		if strings.HasPrefix(task, prefix) && !strings.ContainsAny(task, "\n ") {
			return task, true
		}
	}
	return "", false
}

// enrichTask appends accumulated human feedback to the base task.
func enrichTask(base string, instructions []string) string {
	if len(instructions) == 0 {
		return base
	}
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nHuman feedback:\n")
	for _, item := range instructions {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
