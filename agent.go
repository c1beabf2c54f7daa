package relay

import "context"

// Agent is the unit of work every engine sequences. An agent reads the
// shared state, does its work, and returns the (usually mutated) state.
//
// Engines trap returned errors according to their role: a tester or
// reviewer error becomes a failed stage with the error text as feedback,
// a formatter error is logged and skipped, a coder error fails the
// iteration. Agents should reserve the error return for faults: a test
// that ran and failed is state (TestsPassed=false), not an error.
type Agent interface {
	// Name identifies the agent in logs, traces, and stage artifacts.
	Name() string
	// Run executes the agent against the state. Implementations may
	// mutate s in place and return it, or return a replacement.
	Run(ctx context.Context, s *State) (*State, error)
}

// AgentFunc adapts a function to the Agent interface.
type AgentFunc struct {
	ID string
	Fn func(ctx context.Context, s *State) (*State, error)
}

func (a AgentFunc) Name() string { return a.ID }

func (a AgentFunc) Run(ctx context.Context, s *State) (*State, error) {
	return a.Fn(ctx, s)
}

// compile-time check
var _ Agent = AgentFunc{}
