package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/leve-labs/trailmatch/internal/domain"
	"github.com/leve-labs/trailmatch/internal/domain/trail"
	"github.com/leve-labs/trailmatch/internal/textnorm"
	"github.com/leve-labs/trailmatch/internal/vectorindex"
)

// vocabEmbedder maps text to a deterministic bag-of-words vector over a
// fixed vocabulary, so similar texts get similar vectors without a real
// provider.
type vocabEmbedder struct {
	vocab      []string
	embedCalls int
	batchCalls int
	err        error
}

func newVocabEmbedder(vocab ...string) *vocabEmbedder {
	return &vocabEmbedder{vocab: vocab}
}

func (e *vocabEmbedder) vector(text string) []float32 {
	toks := textnorm.TokenSet(text)
	v := make([]float32, len(e.vocab))
	for i, w := range e.vocab {
		if _, ok := toks[w]; ok {
			v[i] = 1
		}
	}
	return v
}

func (e *vocabEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	e.embedCalls++
	if e.err != nil {
		return domain.EmbeddingResult{}, e.err
	}
	return domain.EmbeddingResult{Embedding: e.vector(text), TotalTokens: len(text)}, nil
}

func (e *vocabEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	e.batchCalls++
	if e.err != nil {
		return domain.BatchEmbeddingResult{}, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}

func candidate(t *testing.T, id, title string, status trail.Status, diff trail.Difficulty) trail.Candidate {
	t.Helper()
	uid, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("parse uuid: %v", err)
	}
	return trail.Candidate{ID: uid, Title: title, Status: status, Difficulty: diff, CombinedText: title}
}

const (
	denseIDA = "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa"
	denseIDB = "bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb"
)

func TestDense_IndexCorpusAndSearch(t *testing.T) {
	ctx := context.Background()
	emb := newVocabEmbedder("excel", "planilhas", "python", "programacao")
	idx := vectorindex.NewMemory(4)
	d := NewDense(emb, emb, idx)

	cands := []trail.Candidate{
		candidate(t, denseIDA, "Excel e planilhas", trail.StatusPublished, trail.DifficultyBeginner),
		candidate(t, denseIDB, "Programação Python", trail.StatusPublished, trail.DifficultyIntermediate),
	}
	if err := d.IndexCorpus(ctx, cands); err != nil {
		t.Fatalf("IndexCorpus: %v", err)
	}

	n, err := idx.Size(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("Size = %d, want 2", n)
	}
	if emb.batchCalls != 1 {
		t.Errorf("batchCalls = %d, want a single batched corpus call", emb.batchCalls)
	}

	got, err := d.Search(ctx, "quero aprender excel", 2, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	if got[0].ID != denseIDA {
		t.Errorf("expected the excel trail first, got %s", got[0].ID)
	}
	if emb.embedCalls != 1 {
		t.Errorf("embedCalls = %d, want a single query embedding", emb.embedCalls)
	}
}

func TestDense_SplitsDocAndQueryEmbedders(t *testing.T) {
	ctx := context.Background()
	docs := newVocabEmbedder("excel")
	queries := newVocabEmbedder("excel")
	d := NewDense(docs, queries, vectorindex.NewMemory(1))

	if err := d.IndexCorpus(ctx, []trail.Candidate{
		candidate(t, denseIDA, "excel", trail.StatusPublished, trail.DifficultyBeginner),
	}); err != nil {
		t.Fatalf("IndexCorpus: %v", err)
	}
	if _, err := d.Search(ctx, "excel", 1, nil); err != nil {
		t.Fatalf("Search: %v", err)
	}

	if docs.batchCalls != 1 || docs.embedCalls != 0 {
		t.Errorf("doc embedder calls = %d batch / %d single, want 1/0", docs.batchCalls, docs.embedCalls)
	}
	if queries.embedCalls != 1 || queries.batchCalls != 0 {
		t.Errorf("query embedder calls = %d single / %d batch, want 1/0", queries.embedCalls, queries.batchCalls)
	}
}

func TestDense_IndexCorpusMetadata(t *testing.T) {
	ctx := context.Background()
	emb := newVocabEmbedder("excel")
	idx := vectorindex.NewMemory(1)
	d := NewDense(emb, emb, idx)

	cands := []trail.Candidate{
		candidate(t, denseIDA, "excel", trail.StatusPublished, trail.DifficultyBeginner),
		candidate(t, denseIDB, "excel", trail.StatusDraft, trail.DifficultyBeginner),
	}
	if err := d.IndexCorpus(ctx, cands); err != nil {
		t.Fatalf("IndexCorpus: %v", err)
	}

	got, err := d.Search(ctx, "excel", 10, vectorindex.Filters{"status": {"Published"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].ID != denseIDA {
		t.Fatalf("status filter not honored: %+v", got)
	}
	if got[0].Metadata["difficulty"] != "Beginner" {
		t.Errorf("difficulty metadata = %q", got[0].Metadata["difficulty"])
	}
}

func TestDense_IndexCorpusEmpty(t *testing.T) {
	emb := newVocabEmbedder("excel")
	d := NewDense(emb, emb, vectorindex.NewMemory(1))
	if err := d.IndexCorpus(context.Background(), nil); err != nil {
		t.Fatalf("IndexCorpus(nil): %v", err)
	}
	if emb.batchCalls != 0 {
		t.Errorf("empty corpus still called the embedder %d times", emb.batchCalls)
	}
}

func TestDense_EmbedErrorPropagates(t *testing.T) {
	emb := newVocabEmbedder("excel")
	emb.err = errors.New("provider down")
	d := NewDense(emb, emb, vectorindex.NewMemory(1))

	err := d.IndexCorpus(context.Background(), []trail.Candidate{
		candidate(t, denseIDA, "excel", trail.StatusPublished, trail.DifficultyBeginner),
	})
	if err == nil {
		t.Fatal("expected error from corpus embedding")
	}

	if _, err := d.Search(context.Background(), "excel", 1, nil); err == nil {
		t.Fatal("expected error from query embedding")
	}
}
