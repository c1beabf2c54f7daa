package relay

// State is the shared record that flows through a pipeline run. Engines
// own the lifecycle; agents read and mutate it. Reserved fields have fixed
// meaning across every engine, since pipeline control flow keys on them, and
// Extra holds ad-hoc keys agents want to pass between themselves.
//
// TestsPassed and QAPassed are pointers so "not yet evaluated" is
// distinguishable from an explicit false.
type State struct {
	// Task is the work item driving the run. Never rewritten by agents;
	// the session controller swaps it wholesale when human feedback
	// accumulates.
	Task string `json:"task"`

	// SessionID scopes the run to a conversation.
	SessionID string `json:"session_id,omitempty"`

	// Coding pipeline fields.
	ProposedCode string `json:"proposed_code,omitempty"`
	TestOutput   string `json:"test_output,omitempty"`
	QAOutput     string `json:"qa_output,omitempty"`
	Feedback     string `json:"feedback,omitempty"`
	TestsPassed  *bool  `json:"tests_passed,omitempty"`
	QAPassed     *bool  `json:"qa_passed,omitempty"`

	// Reasoning graph fields.
	Plan       string `json:"plan,omitempty"`
	NextAction string `json:"next_action,omitempty"`
	Done       bool   `json:"done,omitempty"`

	// Terminal disposition. Reason explains a failed status.
	Status Status `json:"status,omitempty"`
	Reason string `json:"reason,omitempty"`

	// Messages is the append-only transcript of the run.
	Messages []Message `json:"messages,omitempty"`

	// Citations collects the evidence backing the final answer.
	Citations []Evidence `json:"citations,omitempty"`

	// Extra carries agent-specific values that have no reserved field.
	Extra map[string]any `json:"extra,omitempty"`
}

// NewState returns a State for the given task with an initialized Extra map.
func NewState(task string) *State {
	return &State{Task: task, Extra: make(map[string]any)}
}

// Append adds a message to the transcript. The transcript is append-only;
// nothing in the library removes or rewrites prior turns.
func (s *State) Append(role, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content})
}

// LastAssistant returns the content of the most recent assistant turn,
// or "" when none exists.
func (s *State) LastAssistant() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == "assistant" {
			return s.Messages[i].Content
		}
	}
	return ""
}

// Fail marks the run failed with the given reason and closes it.
func (s *State) Fail(reason string) {
	s.Status = StatusFailed
	s.Reason = reason
	s.Done = true
}

// Complete marks the run completed and closes it.
func (s *State) Complete() {
	s.Status = StatusCompleted
	s.Done = true
}

// boolPtr returns a pointer to b. Used for the tri-state pass flags.
func boolPtr(b bool) *bool { return &b }
