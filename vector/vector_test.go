package vector

import (
	"context"
	"testing"

	"github.com/relaydev/relay"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	a, err := e.Embed(context.Background(), []string{"go generics shipped"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Embed(context.Background(), []string{"go generics shipped"})
	if err != nil {
		t.Fatal(err)
	}
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatalf("dim %d differs: %v vs %v", i, a[0][i], b[0][i])
		}
	}
}

func TestHashEmbedder_CaseAndPunctuationInsensitive(t *testing.T) {
	e := NewHashEmbedder(64)
	vecs, err := e.Embed(context.Background(), []string{"Hello, World!", "hello world"})
	if err != nil {
		t.Fatal(err)
	}
	for i := range vecs[0] {
		if vecs[0][i] != vecs[1][i] {
			t.Fatalf("dim %d differs after normalization", i)
		}
	}
}

func TestIndex_SearchRanksByRelevance(t *testing.T) {
	x, err := NewIndex(NewHashEmbedder(256))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	docs := []relay.Document{
		{ID: "cooking", Text: "soup recipes and kitchen techniques"},
		{ID: "golang", Text: "goroutines channels and the go scheduler"},
		{ID: "music", Text: "chord progressions in jazz piano"},
	}
	if err := x.Add(ctx, docs); err != nil {
		t.Fatal(err)
	}
	if x.Len() != 3 {
		t.Fatalf("len = %d, want 3", x.Len())
	}

	hits, err := x.Search(ctx, "go goroutines channels", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(hits))
	}
	if hits[0].DocID != "golang" {
		t.Errorf("top hit = %q, want golang", hits[0].DocID)
	}
	if hits[0].Score <= hits[1].Score {
		t.Errorf("scores not descending: %v then %v", hits[0].Score, hits[1].Score)
	}
}

func TestIndex_SearchZeroK(t *testing.T) {
	x, err := NewIndex(NewHashEmbedder(16))
	if err != nil {
		t.Fatal(err)
	}
	hits, err := x.Search(context.Background(), "anything", 0)
	if err != nil {
		t.Fatal(err)
	}
	if hits != nil {
		t.Errorf("hits = %v, want nil for k=0", hits)
	}
}

func TestIndex_AddAssignsIDs(t *testing.T) {
	x, err := NewIndex(NewHashEmbedder(16))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := x.Add(ctx, []relay.Document{{Text: "anonymous chunk"}}); err != nil {
		t.Fatal(err)
	}
	hits, err := x.Search(ctx, "anonymous chunk", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].DocID == "" {
		t.Errorf("hits = %v, want a generated doc id", hits)
	}
}

func TestIndex_MetaCarriedThrough(t *testing.T) {
	x, err := NewIndex(NewHashEmbedder(16))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	doc := relay.Document{ID: "d1", Text: "tagged chunk", Meta: map[string]string{"title": "Tagged"}}
	if err := x.Add(ctx, []relay.Document{doc}); err != nil {
		t.Fatal(err)
	}
	hits, err := x.Search(ctx, "tagged chunk", 1)
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].Meta["title"] != "Tagged" {
		t.Errorf("meta = %v, want the document metadata", hits[0].Meta)
	}
}

func TestIndex_ChunkIdentityStableAcrossQueries(t *testing.T) {
	x, err := NewIndex(NewHashEmbedder(256))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	// Two chunks of one ingested document share the uri, so their dedup
	// keys must differ by chunk id and must not move with result rank.
	docs := []relay.Document{
		{ID: "doc#0", Text: "alpha alpha alpha", Meta: map[string]string{"doc_id": "doc", "uri": "file.txt"}},
		{ID: "doc#1", Text: "beta beta beta", Meta: map[string]string{"doc_id": "doc", "uri": "file.txt"}},
	}
	if err := x.Add(ctx, docs); err != nil {
		t.Fatal(err)
	}

	keysByText := func(query string) map[string][2]string {
		t.Helper()
		hits, err := x.Search(ctx, query, 2)
		if err != nil {
			t.Fatal(err)
		}
		out := make(map[string][2]string, len(hits))
		for _, h := range hits {
			out[h.Text] = h.Key()
		}
		return out
	}

	first := keysByText("alpha")
	second := keysByText("beta")
	if first["alpha alpha alpha"] == first["beta beta beta"] {
		t.Errorf("distinct chunks share dedup key %v", first["alpha alpha alpha"])
	}
	for text, key := range first {
		if second[text] != key {
			t.Errorf("chunk %q key moved across queries: %v vs %v", text, key, second[text])
		}
	}
}

func TestChunkIdentity(t *testing.T) {
	cases := []struct {
		doc  relay.Document
		want string
	}{
		{relay.Document{ID: "doc#3", Meta: map[string]string{"doc_id": "doc"}}, "3"},
		{relay.Document{ID: "standalone"}, "standalone"},
		{relay.Document{ID: "other#1", Meta: map[string]string{"doc_id": "doc"}}, "other#1"},
	}
	for _, c := range cases {
		if got := chunkIdentity(c.doc); got != c.want {
			t.Errorf("chunkIdentity(%q) = %q, want %q", c.doc.ID, got, c.want)
		}
	}
}

func TestNewIndex_RequiresEmbedder(t *testing.T) {
	if _, err := NewIndex(nil); err == nil {
		t.Error("nil embedder must be rejected")
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := cosineSimilarity([]float32{1, 0}, []float32{1, 0}); got != 1 {
		t.Errorf("identical vectors = %v, want 1", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors = %v, want 0", got)
	}
	if got := cosineSimilarity([]float32{0, 0}, []float32{1, 1}); got != 0 {
		t.Errorf("zero vector = %v, want 0", got)
	}
}
