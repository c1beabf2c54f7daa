package relay

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type stubResolver struct {
	title, desc string
	err         error
	refs        []string
}

func (r *stubResolver) Resolve(_ context.Context, ref string) (string, string, error) {
	r.refs = append(r.refs, ref)
	if r.err != nil {
		return "", "", r.err
	}
	return r.title, r.desc, nil
}

func sessionController(t *testing.T, opts ...SessionOption) *SessionController {
	t.Helper()
	p, err := NewPipeline(
		WithCoders(codeAgent("coder", "candidate code")),
		WithFormatters(codeAgent("fmt", "formatted code")),
		WithTesters(gateAgent("tester", true, "2 passed")),
		WithReviewers(reviewAgent("reviewer", true, "PASS")),
	)
	if err != nil {
		t.Fatal(err)
	}
	c, err := NewSessionController(p, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func stageStatus(t *testing.T, sess *Session, id string) StageStatus {
	t.Helper()
	for _, st := range sess.Timeline {
		if st.ID == id {
			return st.Status
		}
	}
	t.Fatalf("no stage %q in timeline", id)
	return ""
}

func TestSessionController_CreateAwaitsReview(t *testing.T) {
	c := sessionController(t)
	sess, err := c.Create(context.Background(), "add retry to the client")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.StagePointer != "review" {
		t.Errorf("stage = %q, want review", sess.StagePointer)
	}
	if got := stageStatus(t, sess, "coding"); got != StageCompleted {
		t.Errorf("coding = %q, want completed", got)
	}
	if got := stageStatus(t, sess, "review"); got != StageAwaiting {
		t.Errorf("review = %q, want awaiting", got)
	}
	if sess.State.ProposedCode != "candidate code" {
		t.Errorf("proposed code = %q", sess.State.ProposedCode)
	}
}

func TestSessionController_EmptyTaskRejected(t *testing.T) {
	c := sessionController(t)
	_, err := c.Create(context.Background(), "  ")
	var ie *ErrInput
	if !errors.As(err, &ie) {
		t.Fatalf("expected ErrInput, got %v", err)
	}
}

func TestSessionController_ApproveRunsFormattersThenAwaitsTests(t *testing.T) {
	c := sessionController(t)
	sess, err := c.Create(context.Background(), "task")
	if err != nil {
		t.Fatal(err)
	}
	sess, err = c.ApplyFeedback(context.Background(), sess.ID, "approve", "")
	if err != nil {
		t.Fatal(err)
	}
	if sess.StagePointer != "testing" {
		t.Errorf("stage = %q, want testing", sess.StagePointer)
	}
	if got := stageStatus(t, sess, "formatting"); got != StageCompleted {
		t.Errorf("formatting = %q, want completed", got)
	}
	if sess.State.ProposedCode != "formatted code" {
		t.Errorf("code = %q, want the formatter's output", sess.State.ProposedCode)
	}
}

func TestSessionController_ReviseEnrichesTask(t *testing.T) {
	c := sessionController(t)
	sess, err := c.Create(context.Background(), "base task")
	if err != nil {
		t.Fatal(err)
	}
	sess, err = c.ApplyFeedback(context.Background(), sess.ID, "revise", "handle empty input")
	if err != nil {
		t.Fatal(err)
	}
	if sess.StagePointer != "review" {
		t.Errorf("stage = %q, want review again after revision", sess.StagePointer)
	}
	want := "base task\n\nHuman feedback:\n- handle empty input"
	if sess.Task != want {
		t.Errorf("task = %q, want %q", sess.Task, want)
	}

	// A second revision accumulates instructions on the base task.
	sess, err = c.ApplyFeedback(context.Background(), sess.ID, "revise", "add logging")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sess.Task, "- handle empty input") || !strings.Contains(sess.Task, "- add logging") {
		t.Errorf("task = %q, want both feedback bullets", sess.Task)
	}
}

func TestSessionController_FullRunToComplete(t *testing.T) {
	c := sessionController(t)
	sess, err := c.Create(context.Background(), "task")
	if err != nil {
		t.Fatal(err)
	}
	if sess, err = c.ApplyFeedback(context.Background(), sess.ID, "approve", ""); err != nil {
		t.Fatal(err)
	}
	if sess, err = c.Advance(context.Background(), sess.ID, "run_tests"); err != nil {
		t.Fatal(err)
	}
	if sess.StagePointer != "qa" {
		t.Fatalf("stage after passing tests = %q, want qa", sess.StagePointer)
	}
	if sess, err = c.Advance(context.Background(), sess.ID, "send_to_qa"); err != nil {
		t.Fatal(err)
	}
	if sess.StagePointer != "complete" {
		t.Errorf("stage = %q, want complete", sess.StagePointer)
	}
	if sess.State.Status != StatusCompleted {
		t.Errorf("state = %q, want completed", sess.State.Status)
	}
}

func TestSessionController_FailedTestsReturnToReview(t *testing.T) {
	p, err := NewPipeline(
		WithCoders(codeAgent("coder", "code")),
		WithTesters(gateAgent("tester", false, "1 failed")),
	)
	if err != nil {
		t.Fatal(err)
	}
	c, err := NewSessionController(p)
	if err != nil {
		t.Fatal(err)
	}
	sess, err := c.Create(context.Background(), "task")
	if err != nil {
		t.Fatal(err)
	}
	if sess, err = c.ApplyFeedback(context.Background(), sess.ID, "approve", ""); err != nil {
		t.Fatal(err)
	}
	if sess, err = c.Advance(context.Background(), sess.ID, "run_tests"); err != nil {
		t.Fatal(err)
	}
	if sess.StagePointer != "review" {
		t.Errorf("stage = %q, want review after failed tests", sess.StagePointer)
	}
	if got := stageStatus(t, sess, "testing"); got != StageFailed {
		t.Errorf("testing = %q, want failed", got)
	}
}

func TestSessionController_CommandOutOfOrder(t *testing.T) {
	c := sessionController(t)
	sess, err := c.Create(context.Background(), "task")
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Advance(context.Background(), sess.ID, "run_tests")
	var conflict *ErrConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if conflict.Want != "testing" || conflict.Have != "review" {
		t.Errorf("conflict = %+v, want testing vs review", conflict)
	}
}

func TestSessionController_UnknownFeedbackAction(t *testing.T) {
	c := sessionController(t)
	sess, err := c.Create(context.Background(), "task")
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.ApplyFeedback(context.Background(), sess.ID, "maybe", "")
	var ie *ErrInput
	if !errors.As(err, &ie) {
		t.Fatalf("expected ErrInput, got %v", err)
	}
}

func TestSessionController_UnknownSession(t *testing.T) {
	c := sessionController(t)
	_, err := c.ApplyFeedback(context.Background(), "nope", "approve", "")
	var ie *ErrInput
	if !errors.As(err, &ie) {
		t.Fatalf("expected ErrInput, got %v", err)
	}
}

func TestSessionController_IssueReferenceResolved(t *testing.T) {
	resolver := &stubResolver{title: "Fix flaky watcher", desc: "The watcher drops events under load."}
	c := sessionController(t, WithSessionResolver(resolver))
	sess, err := c.Create(context.Background(), "github:acme/relay#42")
	if err != nil {
		t.Fatal(err)
	}
	if len(resolver.refs) != 1 || resolver.refs[0] != "github:acme/relay#42" {
		t.Errorf("refs = %v", resolver.refs)
	}
	if !strings.HasPrefix(sess.Task, "Fix flaky watcher\n\n") {
		t.Errorf("task = %q, want resolved issue text", sess.Task)
	}
}

func TestSessionController_IssueReferenceWithoutResolver(t *testing.T) {
	c := sessionController(t)
	_, err := c.Create(context.Background(), "jira:RELAY-7")
	var de *ErrDependency
	if !errors.As(err, &de) {
		t.Fatalf("expected ErrDependency, got %v", err)
	}
}

func TestIssueRef(t *testing.T) {
	if _, ok := issueRef("github:acme/relay#1"); !ok {
		t.Error("bare github ref should match")
	}
	if _, ok := issueRef("jira:RELAY-7"); !ok {
		t.Error("bare jira ref should match")
	}
	if _, ok := issueRef("github: see the issue tracker"); ok {
		t.Error("prose mentioning the prefix must not match")
	}
	if _, ok := issueRef("plain task"); ok {
		t.Error("plain tasks are not refs")
	}
}
