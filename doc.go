// Package relay is a multi-pipeline orchestration runtime for agentic
// workloads. It hosts three pipeline styles behind one dispatch surface:
// an iterative coding pipeline (propose, format, test, review), a
// reasoning graph (plan, decide, act, reflect, finalize) with streaming
// output, and a retrieval-augmented answering orchestrator. Every run is
// journaled to an append-only trace that can be replayed deterministically
// without touching a model or a tool.
//
// The core contract is small: an Agent reads and mutates a shared State,
// engines sequence agents, and the Dispatcher turns a named pipeline plus
// a request into an ordered event stream ending in exactly one done event.
// External capabilities (models, web search, vector stores, conversation
// history) are interfaces; the library ships in-memory, SQLite, and
// Postgres implementations plus replay-backed fakes.
//
// Construct engines with functional options:
//
//	p, err := relay.NewPipeline(
//		relay.WithCoders(coder),
//		relay.WithTesters(tester),
//		relay.WithReviewers(reviewer),
//		relay.WithMaxIterations(3),
//	)
//	if err != nil {
//		return err
//	}
//	final, err := p.Run(ctx, "implement a stack with O(1) min")
//
// and wire them to the Dispatcher for streaming and rate limiting:
//
//	d := relay.NewDispatcher(relay.WithLimiter(relay.NewSessionLimiter()))
//	d.Register("coding", relay.CodingHandler(p))
//	stream, err := d.Dispatch(ctx, relay.Request{Pipeline: "coding", Task: task})
package relay
