package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/relaydev/relay/internal/jsonx"
)

// actionTools maps decide-node action tokens to registered tool names.
// Tokens outside this map (other than "finalize") route to reflection.
var actionTools = map[string]string{
	"search":      "web_search",
	"fetch":       "web_fetch",
	"kb_search":   "kb_search",
	"calculate":   "calculator",
	"write_file":  "file_write",
	"draft_email": "emailer",
}

const defaultGraphSystem = "You are a research assistant. Think in steps, keep internal notes concise, " +
	"prefer trustworthy sources, and keep a running list of citation URLs. When enough evidence is " +
	"gathered, synthesize a compact briefing with bullets and explicit citations. Never fabricate URLs or facts."

// Graph is the reasoning engine: plan, decide, act, execute a tool,
// reflect, finalize. Each node visit consumes one step of the budget and
// is journaled; every assistant message appended to the transcript is
// also streamed as a token event when an emit function is given.
type Graph struct {
	completer Completer
	tools     *ToolRegistry
	index     VectorIndex
	history   KVHistory
	recorder  Recorder
	tracer    Tracer
	logger    *slog.Logger
	maxSteps  int
	system    string
}

// GraphOption configures a Graph.
type GraphOption func(*Graph)

// WithGraphTools sets the tool registry dispatched by the act node.
func WithGraphTools(reg *ToolRegistry) GraphOption {
	return func(g *Graph) { g.tools = reg }
}

// WithGraphIndex provides knowledge-base context to the plan node.
// Lookup failures degrade to planning without context.
func WithGraphIndex(idx VectorIndex) GraphOption {
	return func(g *Graph) { g.index = idx }
}

// WithGraphHistory persists the user turn before the run and the final
// assistant turn after it.
func WithGraphHistory(h KVHistory) GraphOption {
	return func(g *Graph) { g.history = h }
}

// WithGraphRecorder journals node, model, and tool events.
func WithGraphRecorder(r Recorder) GraphOption {
	return func(g *Graph) { g.recorder = r }
}

// WithGraphTracer enables span creation per node visit.
func WithGraphTracer(t Tracer) GraphOption {
	return func(g *Graph) { g.tracer = t }
}

// WithGraphLogger sets the structured logger.
func WithGraphLogger(l *slog.Logger) GraphOption {
	return func(g *Graph) { g.logger = l }
}

// WithGraphMaxSteps bounds total node visits (default: 16).
func WithGraphMaxSteps(n int) GraphOption {
	return func(g *Graph) { g.maxSteps = n }
}

// WithGraphSystemPrompt replaces the built-in system prompt.
func WithGraphSystemPrompt(s string) GraphOption {
	return func(g *Graph) { g.system = s }
}

// NewGraph creates a reasoning graph around completer.
func NewGraph(completer Completer, opts ...GraphOption) (*Graph, error) {
	if completer == nil {
		return nil, &ErrInput{Field: "completer", Message: "completer is required"}
	}
	g := &Graph{completer: completer, maxSteps: 16, system: defaultGraphSystem}
	for _, opt := range opts {
		opt(g)
	}
	if g.tools == nil {
		g.tools = NewToolRegistry()
	}
	if g.recorder == nil {
		g.recorder = NopRecorder
	}
	if g.logger == nil {
		g.logger = nopLogger
	}
	return g, nil
}

// Run executes the graph for one user message and returns the terminal
// state. emit may be nil for blocking use.
func (g *Graph) Run(ctx context.Context, sessionID, userMsg string, emit EmitFunc) (*State, error) {
	if strings.TrimSpace(userMsg) == "" {
		return nil, &ErrInput{Field: "message", Message: "message must not be empty"}
	}
	s := NewState(userMsg)
	s.SessionID = sessionID
	s.Append("user", userMsg)
	g.appendHistory(ctx, sessionID, Message{Role: "user", Content: userMsg})

	g.recorder.Record(ctx, TraceEvent{Kind: KindRunStart, Name: "graph", Data: map[string]any{"message": userMsg}})
	defer func() {
		g.recorder.Record(ctx, TraceEvent{Kind: KindRunEnd, Name: "graph", Data: map[string]any{
			"status": string(s.Status), "reason": s.Reason,
		}})
	}()

	node := "plan"
	for steps := 0; steps < g.maxSteps; steps++ {
		if err := ctx.Err(); err != nil {
			s.Status = StatusCancelled
			s.Done = true
			return s, err
		}
		next, err := g.visit(ctx, node, s, emit)
		if err != nil {
			s.Fail(err.Error())
			return s, nil
		}
		if next == "" {
			// finalize reached
			s.Complete()
			g.appendHistory(ctx, sessionID, Message{Role: "assistant", Content: s.LastAssistant()})
			return s, nil
		}
		node = next
	}

	s.Fail(fmt.Sprintf("step budget exhausted after %d steps", g.maxSteps))
	return s, nil
}

// visit executes one node and returns the next node, or "" when the run
// is finished.
func (g *Graph) visit(ctx context.Context, node string, s *State, emit EmitFunc) (string, error) {
	if g.tracer != nil {
		var span Span
		ctx, span = g.tracer.Start(ctx, "graph."+node)
		defer span.End()
	}
	g.recorder.Record(ctx, TraceEvent{Kind: KindNodeEnter, Name: node})
	defer g.recorder.Record(ctx, TraceEvent{Kind: KindNodeExit, Name: node, Data: map[string]any{
		"next_action": s.NextAction, "done": s.Done,
	}})

	switch node {
	case "plan":
		return g.planNode(ctx, s, emit)
	case "decide":
		return g.decideNode(ctx, s, emit)
	case "act":
		return g.actNode(ctx, s, emit)
	case "tool":
		return g.toolNode(ctx, s)
	case "reflect":
		return g.reflectNode(ctx, s, emit)
	case "finalize":
		s.Done = true
		return "", nil
	default:
		return "", &ErrInput{Field: "node", Message: "unknown node " + node}
	}
}

func (g *Graph) planNode(ctx context.Context, s *State, emit EmitFunc) (string, error) {
	var kb string
	if g.index != nil {
		hits, err := g.index.Search(ctx, s.Task, 5)
		if err != nil {
			g.logger.Warn("kb lookup failed, planning without context", "error", err)
		}
		var parts []string
		for _, h := range hits {
			parts = append(parts, "- "+truncateStr(h.Text, 500))
		}
		kb = strings.Join(parts, "\n")
	}
	if kb == "" {
		kb = "None"
	}
	out, err := g.complete(ctx, "plan", []Message{
		{Role: "system", Content: g.system},
		{Role: "system", Content: "Internal knowledge that may be relevant:\n" + kb},
		{Role: "user", Content: fmt.Sprintf("User request:\n%s\n\nProduce a 3-6 step action plan. Identify tools to use. Do not execute.", s.Task)},
	})
	if err != nil {
		return "", err
	}
	s.Plan = out
	g.appendAssistant(s, "Plan:\n"+out, emit)
	s.NextAction = "decide"
	return "decide", nil
}

func (g *Graph) decideNode(ctx context.Context, s *State, emit EmitFunc) (string, error) {
	var recent []string
	msgs := s.Messages
	if len(msgs) > 6 {
		msgs = msgs[len(msgs)-6:]
	}
	for _, m := range msgs {
		recent = append(recent, m.Content)
	}
	out, err := g.complete(ctx, "decide", []Message{
		{Role: "system", Content: "Decide the immediate next action based on the plan and recent messages."},
		{Role: "user", Content: fmt.Sprintf(
			"Plan:\n%s\n\nRecent:\n%s\n\nChoose ONE token from: search, fetch, kb_search, calculate, write_file, draft_email, finalize.\nAnswer with the single token only.",
			s.Plan, strings.Join(recent, "\n"))},
	})
	if err != nil {
		return "", err
	}
	action := strings.ToLower(strings.TrimSpace(out))
	s.NextAction = action

	if _, ok := actionTools[action]; ok {
		return "act", nil
	}
	if action == "finalize" {
		return "finalize", nil
	}
	return "reflect", nil
}

func (g *Graph) actNode(ctx context.Context, s *State, emit EmitFunc) (string, error) {
	toolName, ok := actionTools[s.NextAction]
	if !ok {
		g.appendAssistant(s, "Reflecting on gathered info...", emit)
		return "reflect", nil
	}
	out, err := g.complete(ctx, "act", []Message{
		{Role: "system", Content: "You MUST produce arguments for exactly one tool call matching the requested next action. Respond with a single JSON object of arguments, nothing else."},
		{Role: "assistant", Content: fmt.Sprintf("Next action: %s -> tool `%s`. Plan:\n%s", s.NextAction, toolName, s.Plan)},
		{Role: "user", Content: s.Task},
	})
	if err != nil {
		return "", err
	}
	args, err := jsonx.Object(out)
	if err != nil {
		g.logger.Warn("unusable tool arguments, reflecting instead", "tool", toolName, "error", err)
		g.appendAssistant(s, "Reflecting on gathered info...", emit)
		return "reflect", nil
	}

	call := ToolCall{ID: NewID(), Name: toolName, Args: args}
	s.Messages = append(s.Messages, Message{Role: "assistant", ToolCalls: []ToolCall{call}})
	return "tool", nil
}

// toolNode executes the call requested by the preceding assistant turn
// and appends the result as a tool message.
func (g *Graph) toolNode(ctx context.Context, s *State) (string, error) {
	if len(s.Messages) == 0 {
		return "reflect", nil
	}
	last := s.Messages[len(s.Messages)-1]
	if last.Role != "assistant" || len(last.ToolCalls) == 0 {
		return "reflect", nil
	}
	call := last.ToolCalls[0]

	g.recorder.Record(ctx, TraceEvent{Kind: KindToolRequest, Name: call.Name, SpanID: call.ID, Data: map[string]any{
		"args": json.RawMessage(call.Args),
	}})
	result, err := g.tools.Execute(ctx, call)
	if err != nil {
		result = ToolOutput{ID: call.ID, Err: err.Error()}
	}
	g.recorder.Record(ctx, TraceEvent{Kind: KindToolResponse, Name: call.Name, SpanID: call.ID, Data: map[string]any{
		"args": json.RawMessage(call.Args), "content": result.Content, "error": result.Err,
	}})

	content := result.Content
	if result.Err != "" {
		content = "tool error: " + result.Err
	}
	s.Messages = append(s.Messages, Message{Role: "tool", Name: call.Name, Content: content})
	return "reflect", nil
}

func (g *Graph) reflectNode(ctx context.Context, s *State, emit EmitFunc) (string, error) {
	var notes []string
	for _, m := range s.Messages {
		if (m.Role == "assistant" || m.Role == "tool") && m.Content != "" {
			notes = append(notes, m.Content)
		}
	}
	out, err := g.complete(ctx, "reflect", []Message{
		{Role: "system", Content: "If enough information exists, write BRIEFING with bullet points and include citations as URLs at the end. Otherwise propose NEXT:<action>."},
		{Role: "user", Content: "Notes so far:\n" + truncateStr(strings.Join(notes, "\n"), 6000)},
	})
	if err != nil {
		return "", err
	}
	txt := strings.TrimSpace(out)
	if strings.HasPrefix(txt, "BRIEFING") {
		g.appendAssistant(s, txt, emit)
		s.Done = true
		return "finalize", nil
	}
	if i := strings.Index(txt, ":"); i >= 0 {
		txt = txt[i+1:]
	}
	s.NextAction = strings.ToLower(strings.TrimSpace(txt))
	return "decide", nil
}

// complete runs one model call with prompt/output journaling.
func (g *Graph) complete(ctx context.Context, node string, msgs []Message) (string, error) {
	spanID := NewID()
	g.recorder.Record(ctx, TraceEvent{Kind: KindLLMPrompt, Name: node, SpanID: spanID, Data: map[string]any{
		"messages": msgs,
	}})
	resp, err := g.completer.Complete(ctx, msgs)
	g.recorder.Record(ctx, TraceEvent{Kind: KindLLMOutput, Name: node, SpanID: spanID, Data: map[string]any{
		"text": resp.Text, "error": errString(err),
	}})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (g *Graph) appendAssistant(s *State, text string, emit EmitFunc) {
	s.Append("assistant", text)
	if emit != nil {
		emit(Event{Kind: EventToken, Text: text})
	}
}

func (g *Graph) appendHistory(ctx context.Context, sessionID string, m Message) {
	if g.history == nil || sessionID == "" || m.Content == "" {
		return
	}
	if err := g.history.Append(ctx, sessionID, m); err != nil {
		g.logger.Warn("history append failed", "session", sessionID, "error", err)
	}
}
