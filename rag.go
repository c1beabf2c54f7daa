package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/relaydev/relay/internal/jsonx"
)

// Evidence caps through the retrieval flow. Local applies per sub-goal,
// global after merging, expanded after critic follow-ups.
const (
	dedupLocalMax    = 20
	dedupGlobalMax   = 50
	dedupExpandedMax = 60
)

const intentSystem = `You classify the user's request.
Return ONLY valid minified JSON with keys:
{"intents":["answer|summarize|troubleshoot|plan|code|search_only|tool_only"],
 "urgency":"low|medium|high",
 "notes":"short note"}`

const planSystem = `Decompose the task into ordered sub-goals.
Reply ONLY valid minified JSON list. Each item must be:
{"goal":"...", "hint":"what must be proven or retrieved"}`

const retrievalPlanSystem = `Given a sub-goal, write 3-8 diverse search queries.
Return ONLY JSON: {"queries":["..."], "k": 8}`

const writerSystem = `You are a grounded writer.
Only use the provided evidence array.
If evidence is insufficient, say so and list what's missing.
Cite like [#1], [#2] where #N maps to the evidence index in the provided array.

Return ONLY JSON:
{"status":"ok"|"needs_more",
 "draft":"final answer or partial",
 "missing":["missing items if any"]}`

const criticSystem = `Critique the draft vs provided evidence.
Find unsupported claims, contradictions, or missing coverage.
Return ONLY JSON:
{"ok": bool,
 "issues": ["..."],
 "followup_queries": ["short, targeted queries to fill gaps"]}`

// Orchestrator is the retrieval-augmented answering engine: classify
// intent, decompose into sub-goals, plan and run retrieval per goal,
// write a cited draft, run one critic pass with follow-up retrieval, and
// redact the final answer. Sub-goals run serially for determinism.
type Orchestrator struct {
	completer Completer
	index     VectorIndex
	web       Searcher
	fetcher   Fetcher
	history   KVHistory
	redactor  *Redactor
	recorder  Recorder
	tracer    Tracer
	logger    *slog.Logger
}

// RAGOption configures an Orchestrator.
type RAGOption func(*Orchestrator)

// WithRAGWeb enables web retrieval. fetcher may be nil, in which case
// result snippets stand in for page content.
func WithRAGWeb(s Searcher, f Fetcher) RAGOption {
	return func(o *Orchestrator) { o.web, o.fetcher = s, f }
}

// WithRAGHistory persists the question and final answer per session.
func WithRAGHistory(h KVHistory) RAGOption {
	return func(o *Orchestrator) { o.history = h }
}

// WithRAGRedactor replaces the default PII redactor for final answers.
func WithRAGRedactor(r *Redactor) RAGOption {
	return func(o *Orchestrator) { o.redactor = r }
}

// WithRAGRecorder journals stage, model, and retrieval events.
func WithRAGRecorder(r Recorder) RAGOption {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithRAGTracer enables span creation per stage.
func WithRAGTracer(t Tracer) RAGOption {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithRAGLogger sets the structured logger.
func WithRAGLogger(l *slog.Logger) RAGOption {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator creates a RAG engine over completer and index.
func NewOrchestrator(completer Completer, index VectorIndex, opts ...RAGOption) (*Orchestrator, error) {
	if completer == nil {
		return nil, &ErrInput{Field: "completer", Message: "completer is required"}
	}
	if index == nil {
		return nil, &ErrInput{Field: "index", Message: "vector index is required"}
	}
	o := &Orchestrator{completer: completer, index: index}
	for _, opt := range opts {
		opt(o)
	}
	if o.redactor == nil {
		o.redactor = NewRedactor()
	}
	if o.recorder == nil {
		o.recorder = NopRecorder
	}
	if o.logger == nil {
		o.logger = nopLogger
	}
	return o, nil
}

type ragIntent struct {
	Intents []string `json:"intents"`
	Urgency string   `json:"urgency"`
	Notes   string   `json:"notes"`
}

type retrievalPlan struct {
	Queries []string `json:"queries"`
	K       int      `json:"k"`
}

type ragDraft struct {
	Status  string   `json:"status"`
	Draft   string   `json:"draft"`
	Missing []string `json:"missing"`
}

type ragCritique struct {
	OK              bool     `json:"ok"`
	Issues          []string `json:"issues"`
	FollowupQueries []string `json:"followup_queries"`
}

// Answer runs the full flow for one question and returns the terminal
// state with the redacted answer as the last assistant message and the
// deduplicated evidence in Citations. emit may be nil.
func (o *Orchestrator) Answer(ctx context.Context, sessionID, question string, emit EmitFunc) (*State, error) {
	if strings.TrimSpace(question) == "" {
		return nil, &ErrInput{Field: "question", Message: "question must not be empty"}
	}
	if o.tracer != nil {
		var span Span
		ctx, span = o.tracer.Start(ctx, "rag.answer", StringAttr("session", sessionID))
		defer span.End()
	}

	s := NewState(question)
	s.SessionID = sessionID
	s.Append("user", question)
	o.appendHistory(ctx, sessionID, Message{Role: "user", Content: question})

	o.recorder.Record(ctx, TraceEvent{Kind: KindRunStart, Name: "rag", Data: map[string]any{"question": question}})
	defer func() {
		o.recorder.Record(ctx, TraceEvent{Kind: KindRunEnd, Name: "rag", Data: map[string]any{
			"status": string(s.Status), "reason": s.Reason,
		}})
	}()

	intent := o.intentStage(ctx, question)
	goals := o.planStage(ctx, question, intent)
	o.emitLog(emit, fmt.Sprintf("planned %d sub-goals", len(goals)))

	var all []Evidence
	for _, goal := range goals {
		if err := ctx.Err(); err != nil {
			s.Status = StatusCancelled
			s.Done = true
			return s, err
		}
		local, err := o.retrieveGoal(ctx, goal)
		if err != nil {
			s.Fail(err.Error())
			return s, nil
		}
		all = append(all, dedupeEvidence(local, dedupLocalMax)...)
	}
	all = dedupeEvidence(all, dedupGlobalMax)
	o.emitLog(emit, fmt.Sprintf("gathered %d evidence chunks", len(all)))

	draft, err := o.writerStage(ctx, question, all)
	if err != nil {
		s.Fail(err.Error())
		return s, nil
	}

	// One critic pass. Follow-up retrieval runs only when the critique
	// supplies queries; the writer then gets exactly one more chance.
	if draft.Status == "ok" {
		critique := o.criticStage(ctx, draft.Draft, all)
		if !critique.OK && len(critique.FollowupQueries) > 0 {
			followups := critique.FollowupQueries
			if len(followups) > 4 {
				followups = followups[:4]
			}
			for _, q := range followups {
				extra, err := o.retrieveQuery(ctx, q, 4, 4)
				if err != nil {
					s.Fail(err.Error())
					return s, nil
				}
				all = append(all, extra...)
			}
			all = dedupeEvidence(all, dedupExpandedMax)
			draft, err = o.writerStage(ctx, question, all)
			if err != nil {
				s.Fail(err.Error())
				return s, nil
			}
		}
	}

	final := o.redactor.Redact(draft.Draft)
	s.Citations = all
	s.Append("assistant", final)
	o.appendHistory(ctx, sessionID, Message{Role: "assistant", Content: final})
	s.Complete()

	if emit != nil {
		emit(Event{Kind: EventAnswer, Text: final})
		emit(Event{Kind: EventSources, Citations: all})
	}
	return s, nil
}

// intentStage classifies the question. Malformed output falls back to a
// plain answer intent.
func (o *Orchestrator) intentStage(ctx context.Context, question string) ragIntent {
	out, err := o.complete(ctx, "intent", intentSystem, question)
	intent := ragIntent{Intents: []string{"answer"}, Urgency: "low"}
	if err != nil {
		o.logger.Warn("intent stage degraded to default", "error", err)
		return intent
	}
	var parsed ragIntent
	if err := jsonx.Decode(out, &parsed); err != nil || len(parsed.Intents) == 0 {
		return intent
	}
	return parsed
}

// planStage decomposes the question. Malformed output falls back to a
// single sub-goal covering the whole question.
func (o *Orchestrator) planStage(ctx context.Context, question string, intent ragIntent) []SubGoal {
	intentJSON, _ := json.Marshal(intent)
	out, err := o.complete(ctx, "plan", planSystem, fmt.Sprintf("User: %s\nIntent: %s", question, intentJSON))
	fallback := []SubGoal{{Goal: question, Hint: "enough evidence to answer"}}
	if err != nil {
		o.logger.Warn("plan stage degraded to single goal", "error", err)
		return fallback
	}
	var goals []SubGoal
	if err := jsonx.DecodeArray(out, &goals); err != nil || len(goals) == 0 {
		return fallback
	}
	return goals
}

// retrievalPlanStage writes queries for one sub-goal. k is clamped to
// [4, 12]; malformed output falls back to the goal text as the only query.
func (o *Orchestrator) retrievalPlanStage(ctx context.Context, goal SubGoal) retrievalPlan {
	out, err := o.complete(ctx, "retrieval_plan", retrievalPlanSystem, goal.Goal)
	plan := retrievalPlan{Queries: []string{goal.Goal}, K: 6}
	if err == nil {
		// K decodes through a pointer so an absent k keeps the default
		// while an explicit 0 falls to the lower clamp.
		var parsed struct {
			Queries []string `json:"queries"`
			K       *int     `json:"k"`
		}
		if jerr := jsonx.Decode(out, &parsed); jerr == nil && len(parsed.Queries) > 0 {
			plan.Queries = parsed.Queries
			if parsed.K != nil {
				plan.K = *parsed.K
			}
		}
	}
	if plan.K < 4 {
		plan.K = 4
	}
	if plan.K > 12 {
		plan.K = 12
	}
	return plan
}

// retrieveGoal runs the retrieval plan for one sub-goal.
func (o *Orchestrator) retrieveGoal(ctx context.Context, goal SubGoal) ([]Evidence, error) {
	plan := o.retrievalPlanStage(ctx, goal)
	vecK := plan.K / 2
	if vecK < 2 {
		vecK = 2
	}
	webK := plan.K - vecK
	if webK < 2 {
		webK = 2
	}
	var local []Evidence
	for _, q := range plan.Queries {
		ev, err := o.retrieveQuery(ctx, q, vecK, webK)
		if err != nil {
			return nil, err
		}
		local = append(local, ev...)
	}
	return local, nil
}

// retrieveQuery runs one query against the vector index and, when
// configured, the web. Vector failure is fatal for the run; a failed web
// fetch skips that result.
func (o *Orchestrator) retrieveQuery(ctx context.Context, query string, vecK, webK int) ([]Evidence, error) {
	hits, err := o.index.Search(ctx, query, vecK)
	if err != nil {
		return nil, &ErrDependency{Name: "vector index", Message: err.Error()}
	}
	o.recorder.Record(ctx, TraceEvent{Kind: KindStateTransition, Name: "rag", Data: map[string]any{
		"label": "retrieved", "query": query, "vector_hits": len(hits),
	}})
	if o.web == nil {
		return hits, nil
	}

	results, err := o.web.Search(ctx, query, webK)
	if err != nil {
		o.logger.Warn("web search failed, continuing with vector evidence", "query", query, "error", err)
		return hits, nil
	}
	for _, r := range results {
		text := r.Snip
		if o.fetcher != nil {
			page, err := o.fetcher.Fetch(ctx, r.URL)
			if err != nil {
				o.logger.Warn("web fetch skipped", "url", r.URL, "error", err)
				continue
			}
			text = page
		}
		hits = append(hits, Evidence{
			DocID:   r.URL,
			ChunkID: "web",
			Text:    truncateStr(text, 2000),
			Meta:    map[string]string{"uri": r.URL, "title": r.Title},
		})
	}
	return hits, nil
}

// writerStage produces the cited draft. Output that is not valid JSON is
// treated as a plain ok draft rather than discarded.
func (o *Orchestrator) writerStage(ctx context.Context, question string, evidence []Evidence) (ragDraft, error) {
	type evView struct {
		ID    int    `json:"id"`
		Title string `json:"title"`
		URI   string `json:"uri"`
		Text  string `json:"text"`
	}
	views := make([]evView, 0, len(evidence))
	for i, e := range evidence {
		title := e.Meta["title"]
		if title == "" {
			title = e.Meta["uri"]
		}
		if title == "" {
			title = "local"
		}
		uri := e.Meta["uri"]
		if uri == "" {
			uri = "local"
		}
		views = append(views, evView{ID: i + 1, Title: title, URI: uri, Text: truncateStr(e.Text, 1500)})
	}
	evJSON, _ := json.Marshal(views)
	out, err := o.complete(ctx, "writer", writerSystem, fmt.Sprintf("Question: %s\nEvidence:\n%s", question, evJSON))
	if err != nil {
		return ragDraft{}, err
	}
	var draft ragDraft
	if jerr := jsonx.Decode(out, &draft); jerr != nil || draft.Draft == "" {
		draft = ragDraft{Status: "ok", Draft: strings.TrimSpace(out)}
		if draft.Draft == "" {
			draft.Draft = "No answer."
		}
	}
	return draft, nil
}

// criticStage checks the draft against evidence. Errors and malformed
// output degrade to an accepting critique.
func (o *Orchestrator) criticStage(ctx context.Context, draft string, evidence []Evidence) ragCritique {
	type evView struct {
		URI  string `json:"uri"`
		Text string `json:"text"`
	}
	capped := evidence
	if len(capped) > 18 {
		capped = capped[:18]
	}
	views := make([]evView, 0, len(capped))
	for _, e := range capped {
		uri := e.Meta["uri"]
		if uri == "" {
			uri = "local"
		}
		views = append(views, evView{URI: uri, Text: truncateStr(e.Text, 1000)})
	}
	evJSON, _ := json.Marshal(views)
	out, err := o.complete(ctx, "critic", criticSystem, fmt.Sprintf("Draft:\n%s\n\nEvidence:\n%s", draft, evJSON))
	critique := ragCritique{OK: true}
	if err != nil {
		o.logger.Warn("critic stage degraded to accept", "error", err)
		return critique
	}
	var parsed ragCritique
	if jerr := jsonx.Decode(out, &parsed); jerr != nil {
		return critique
	}
	return parsed
}

// complete runs one model call with prompt/output journaling.
func (o *Orchestrator) complete(ctx context.Context, stage, system, user string) (string, error) {
	msgs := []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
	spanID := NewID()
	o.recorder.Record(ctx, TraceEvent{Kind: KindLLMPrompt, Name: stage, SpanID: spanID, Data: map[string]any{
		"messages": msgs,
	}})
	resp, err := o.completer.Complete(ctx, msgs)
	o.recorder.Record(ctx, TraceEvent{Kind: KindLLMOutput, Name: stage, SpanID: spanID, Data: map[string]any{
		"text": resp.Text, "error": errString(err),
	}})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (o *Orchestrator) appendHistory(ctx context.Context, sessionID string, m Message) {
	if o.history == nil || sessionID == "" || m.Content == "" {
		return
	}
	if err := o.history.Append(ctx, sessionID, m); err != nil {
		o.logger.Warn("history append failed", "session", sessionID, "error", err)
	}
}

func (o *Orchestrator) emitLog(emit EmitFunc, text string) {
	if emit != nil {
		emit(Event{Kind: EventLog, Text: text})
	}
}

// dedupeEvidence removes duplicates by source identity, first occurrence
// wins, and caps the result at max entries.
func dedupeEvidence(ev []Evidence, max int) []Evidence {
	seen := make(map[[2]string]bool, len(ev))
	out := make([]Evidence, 0, len(ev))
	for _, e := range ev {
		key := e.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
		if len(out) >= max {
			break
		}
	}
	return out
}
