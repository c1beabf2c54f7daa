package relay

import "context"

// Completer produces a model completion for a transcript. It is the only
// model surface the library knows about; real provider clients, replay
// playback, and test fakes all sit behind it.
type Completer interface {
	Name() string
	Complete(ctx context.Context, messages []Message) (Completion, error)
}

// Searcher runs a web search and returns ranked results.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]SearchResult, error)
}

// Fetcher retrieves a URL and returns readable page text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// VectorIndex is the retrieval surface for knowledge-base search.
// Search returns the top-k chunks by similarity to the query.
type VectorIndex interface {
	Add(ctx context.Context, docs []Document) error
	Search(ctx context.Context, query string, k int) ([]Evidence, error)
}

// Embedder maps texts to fixed-dimension vectors. Vector index
// implementations use it to embed documents and queries.
type Embedder interface {
	Name() string
	Dimensions() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// KVHistory persists conversation turns per session. Append stores one
// turn; History returns the session's turns oldest-first.
type KVHistory interface {
	Append(ctx context.Context, sessionID string, m Message) error
	History(ctx context.Context, sessionID string, limit int) ([]Message, error)
}

// IssueResolver expands an issue reference ("github:owner/repo#42",
// "jira:PROJ-7") into a concrete task description. Used by the session
// controller when a task names an issue instead of describing work.
type IssueResolver interface {
	Resolve(ctx context.Context, ref string) (title, description string, err error)
}
