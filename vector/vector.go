// Package vector provides an in-memory cosine-similarity index
// implementing relay.VectorIndex. Documents are embedded on Add and
// queries on Search through a relay.Embedder; HashEmbedder is a
// deterministic offline embedder for development and tests.
package vector

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/relaydev/relay"
)

// Index is an in-memory vector index. All vectors share the embedder's
// dimension count; mismatched embeddings are rejected. Safe for
// concurrent use.
type Index struct {
	embedder relay.Embedder

	mu      sync.RWMutex
	entries []entry
}

type entry struct {
	doc relay.Document
	vec []float32
}

// NewIndex creates an index over embedder.
func NewIndex(embedder relay.Embedder) (*Index, error) {
	if embedder == nil {
		return nil, fmt.Errorf("vector: embedder is required")
	}
	if embedder.Dimensions() <= 0 {
		return nil, fmt.Errorf("vector: embedder reports %d dimensions", embedder.Dimensions())
	}
	return &Index{embedder: embedder}, nil
}

// Add embeds and stores docs. Implements relay.VectorIndex.
func (x *Index) Add(ctx context.Context, docs []relay.Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vecs, err := x.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("vector: embed documents: %w", err)
	}
	if len(vecs) != len(docs) {
		return fmt.Errorf("vector: embedder returned %d vectors for %d documents", len(vecs), len(docs))
	}
	dims := x.embedder.Dimensions()
	for i, v := range vecs {
		if len(v) != dims {
			return fmt.Errorf("vector: document %d embedded to %d dims, want %d", i, len(v), dims)
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	for i, d := range docs {
		if d.ID == "" {
			d.ID = relay.NewID()
		}
		x.entries = append(x.entries, entry{doc: d, vec: vecs[i]})
	}
	return nil
}

// Search returns the top-k chunks by cosine similarity to query.
// Implements relay.VectorIndex.
func (x *Index) Search(ctx context.Context, query string, k int) ([]relay.Evidence, error) {
	if k <= 0 {
		return nil, nil
	}
	vecs, err := x.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("vector: embed query: %w", err)
	}
	qv := vecs[0]

	x.mu.RLock()
	defer x.mu.RUnlock()

	type scored struct {
		doc   relay.Document
		score float64
	}
	results := make([]scored, 0, len(x.entries))
	for _, e := range x.entries {
		results = append(results, scored{doc: e.doc, score: cosineSimilarity(qv, e.vec)})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })
	if len(results) > k {
		results = results[:k]
	}

	out := make([]relay.Evidence, 0, len(results))
	for _, r := range results {
		out = append(out, relay.Evidence{
			DocID:   r.doc.ID,
			ChunkID: chunkIdentity(r.doc),
			Text:    r.doc.Text,
			Score:   r.score,
			Meta:    r.doc.Meta,
		})
	}
	return out, nil
}

// chunkIdentity returns the stable chunk id assigned at Add time: the
// fragment after the parent document id when ingest stamped one,
// otherwise the stored id itself. Chunks of one document share a uri, so
// the id must not depend on result rank or the dedup key collides.
func chunkIdentity(d relay.Document) string {
	if parent := d.Meta["doc_id"]; parent != "" {
		if rest, ok := strings.CutPrefix(d.ID, parent+"#"); ok {
			return rest
		}
	}
	return d.ID
}

// Len returns the number of stored documents.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// cosineSimilarity computes the cosine of the angle between a and b.
// Returns 0 for zero vectors.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// HashEmbedder is a deterministic bag-of-words embedder: each token
// hashes to a dimension bucket. No semantics, but identical text always
// embeds identically, which is what offline development and replay need.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a hash embedder with the given dimensions.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{dims: dims}
}

// Name implements relay.Embedder.
func (h *HashEmbedder) Name() string { return "hash" }

// Dimensions implements relay.Embedder.
func (h *HashEmbedder) Dimensions() int { return h.dims }

// Embed implements relay.Embedder.
func (h *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, h.dims)
		for _, tok := range strings.Fields(strings.ToLower(text)) {
			f := fnv.New32a()
			f.Write([]byte(strings.Trim(tok, ".,;:!?\"'()[]")))
			vec[f.Sum32()%uint32(h.dims)]++
		}
		out[i] = vec
	}
	return out, nil
}

// compile-time checks
var (
	_ relay.VectorIndex = (*Index)(nil)
	_ relay.Embedder    = (*HashEmbedder)(nil)
)
