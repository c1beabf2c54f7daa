package trace

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/relaydev/relay"
)

func TestJournal_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	j, err := NewJournal(dir)
	if err != nil {
		t.Fatal(err)
	}
	rec := j.Run("s1", "r1")
	ctx := context.Background()

	rec.Record(ctx, relay.TraceEvent{Kind: relay.KindRunStart, Name: "graph", Data: map[string]any{"message": "hi"}})
	rec.Record(ctx, relay.TraceEvent{Kind: relay.KindNodeEnter, Name: "plan"})
	rec.Record(ctx, relay.TraceEvent{Kind: relay.KindRunEnd, Name: "graph"})

	events, err := ReadRun(dir, "s1", "r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	if events[0].Kind != relay.KindRunStart || events[0].SessionID != "s1" || events[0].RunID != "r1" {
		t.Errorf("first event = %+v", events[0])
	}
	if events[0].Data["message"] != "hi" {
		t.Errorf("data = %v, want the message", events[0].Data)
	}
	if events[1].Name != "plan" {
		t.Errorf("second event name = %q", events[1].Name)
	}
}

func TestJournal_RedactsSensitiveKeys(t *testing.T) {
	dir := t.TempDir()
	j, err := NewJournal(dir)
	if err != nil {
		t.Fatal(err)
	}
	rec := j.Run("s1", "r1")
	rec.Record(context.Background(), relay.TraceEvent{
		Kind: relay.KindLLMPrompt,
		Name: "plan",
		Data: map[string]any{
			"api_key": "sk-verysecret",
			"nested":  map[string]any{"Authorization": "Bearer abc"},
			"safe":    "visible",
		},
	})

	events, err := ReadRun(dir, "s1", "r1")
	if err != nil {
		t.Fatal(err)
	}
	data := events[0].Data
	if data["api_key"] != "[REDACTED]" {
		t.Errorf("api_key = %v, want redacted", data["api_key"])
	}
	nested := data["nested"].(map[string]any)
	if nested["Authorization"] != "[REDACTED]" {
		t.Errorf("nested authorization = %v, want redacted", nested["Authorization"])
	}
	if data["safe"] != "visible" {
		t.Errorf("safe = %v, want untouched", data["safe"])
	}
}

func TestJournal_TruncatesLongValues(t *testing.T) {
	dir := t.TempDir()
	j, err := NewJournal(dir, MaxFieldChars(10))
	if err != nil {
		t.Fatal(err)
	}
	rec := j.Run("s1", "r1")
	long := strings.Repeat("x", 50)
	rec.Record(context.Background(), relay.TraceEvent{Kind: relay.KindLLMOutput, Data: map[string]any{"text": long}})

	events, err := ReadRun(dir, "s1", "r1")
	if err != nil {
		t.Fatal(err)
	}
	got := events[0].Data["text"].(string)
	if !strings.HasPrefix(got, "xxxxxxxxxx...") {
		t.Errorf("text = %q, want 10 chars then marker", got)
	}
	if !strings.Contains(got, "[TRUNCATED:50 chars]") {
		t.Errorf("text = %q, want original length in the marker", got)
	}
}

func TestJournal_HashesToolArgs(t *testing.T) {
	dir := t.TempDir()
	j, err := NewJournal(dir)
	if err != nil {
		t.Fatal(err)
	}
	rec := j.Run("s1", "r1")
	args := map[string]any{"query": "golang"}
	rec.Record(context.Background(), relay.TraceEvent{Kind: relay.KindToolRequest, Name: "web_search", Data: map[string]any{"args": args}})
	rec.Record(context.Background(), relay.TraceEvent{Kind: relay.KindNodeEnter, Name: "reflect"})

	events, err := ReadRun(dir, "s1", "r1")
	if err != nil {
		t.Fatal(err)
	}
	if events[0].ArgsHash != HashArgs(args) {
		t.Errorf("args hash = %q, want %q", events[0].ArgsHash, HashArgs(args))
	}
	if events[1].ArgsHash != "" {
		t.Errorf("non-tool event got hash %q", events[1].ArgsHash)
	}
}

func TestJournal_MonotonicTimestamps(t *testing.T) {
	dir := t.TempDir()
	j, err := NewJournal(dir)
	if err != nil {
		t.Fatal(err)
	}
	// Simulate a clock that steps backwards between appends.
	times := []time.Time{
		time.Unix(1000, 0),
		time.Unix(999, 0),
		time.Unix(1001, 0),
	}
	i := 0
	j.now = func() time.Time {
		ts := times[i]
		i++
		return ts
	}

	rec := j.Run("s1", "r1")
	for range times {
		rec.Record(context.Background(), relay.TraceEvent{Kind: relay.KindNodeEnter, Name: "n"})
	}
	events, err := ReadRun(dir, "s1", "r1")
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Time.Before(events[i-1].Time) {
			t.Errorf("event %d at %v precedes event %d at %v", i, events[i].Time, i-1, events[i-1].Time)
		}
	}
}

func TestReadSession_MergesRuns(t *testing.T) {
	dir := t.TempDir()
	j, err := NewJournal(dir)
	if err != nil {
		t.Fatal(err)
	}
	j.Run("s1", "a-run").Record(context.Background(), relay.TraceEvent{Kind: relay.KindRunStart, Name: "first"})
	j.Run("s1", "b-run").Record(context.Background(), relay.TraceEvent{Kind: relay.KindRunStart, Name: "second"})

	events, err := ReadSession(dir, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].Name != "first" || events[1].Name != "second" {
		t.Errorf("events = %v, want both runs in id order", events)
	}
}
