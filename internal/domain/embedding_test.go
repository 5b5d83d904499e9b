package domain

import (
	"context"
	"errors"
	"testing"
)

type fakeEmbedder struct {
	result EmbeddingResult
	err    error
	texts  []string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) (EmbeddingResult, error) {
	f.texts = append(f.texts, text)
	return f.result, f.err
}

type fakeBatchEmbedder struct {
	fakeEmbedder
	batchResult BatchEmbeddingResult
	batchErr    error
	batchTexts  []string
	batchCalls  int
}

func (f *fakeBatchEmbedder) BatchEmbed(_ context.Context, texts []string) (BatchEmbeddingResult, error) {
	f.batchCalls++
	f.batchTexts = texts
	return f.batchResult, f.batchErr
}

func TestBatchFallback_SumsUsage(t *testing.T) {
	inner := &fakeEmbedder{result: EmbeddingResult{
		Embedding:    []float32{0.1, 0.2},
		PromptTokens: 4,
		TotalTokens:  4,
	}}

	res, err := BatchFallback(context.Background(), inner, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(res.Embeddings))
	}
	if res.PromptTokens != 12 || res.TotalTokens != 12 {
		t.Errorf("usage = %d/%d, want 12/12", res.PromptTokens, res.TotalTokens)
	}
}

func TestBatchFallback_Error(t *testing.T) {
	innerErr := errors.New("provider down")
	inner := &fakeEmbedder{err: innerErr}

	_, err := BatchFallback(context.Background(), inner, []string{"a"})
	if !errors.Is(err, innerErr) {
		t.Errorf("expected wrapped inner error, got %v", err)
	}
}

func TestBatchFallback_Empty(t *testing.T) {
	res, err := BatchFallback(context.Background(), &fakeEmbedder{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 0 {
		t.Errorf("expected 0 embeddings, got %d", len(res.Embeddings))
	}
}

func TestEmbedAll_UsesBatchPath(t *testing.T) {
	inner := &fakeBatchEmbedder{
		batchResult: BatchEmbeddingResult{Embeddings: [][]float32{{0.1}, {0.2}}},
	}

	res, err := EmbedAll(context.Background(), inner, []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.batchCalls != 1 {
		t.Errorf("expected 1 batch call, got %d", inner.batchCalls)
	}
	if len(inner.texts) != 0 {
		t.Errorf("single-text path should not run, got %d calls", len(inner.texts))
	}
	if len(res.Embeddings) != 2 {
		t.Errorf("expected 2 embeddings, got %d", len(res.Embeddings))
	}
}

func TestEmbedAll_FallsBackPerText(t *testing.T) {
	inner := &fakeEmbedder{result: EmbeddingResult{Embedding: []float32{0.5}, TotalTokens: 2}}

	res, err := EmbedAll(context.Background(), inner, []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inner.texts) != 2 {
		t.Errorf("expected 2 per-text calls, got %d", len(inner.texts))
	}
	if res.TotalTokens != 4 {
		t.Errorf("TotalTokens = %d, want 4", res.TotalTokens)
	}
}

func TestEmbedAll_BatchErrorWrapped(t *testing.T) {
	innerErr := errors.New("quota exceeded")
	inner := &fakeBatchEmbedder{batchErr: innerErr}

	_, err := EmbedAll(context.Background(), inner, []string{"a"})
	if !errors.Is(err, innerErr) {
		t.Errorf("expected wrapped inner error, got %v", err)
	}
}

func TestInstructionEmbedder_PrependsInstruction(t *testing.T) {
	inner := &fakeEmbedder{result: EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3}}}
	emb := NewInstructionEmbedder(inner, "query: ")

	res, err := emb.Embed(context.Background(), "quero aprender excel")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.texts[0] != "query: quero aprender excel" {
		t.Errorf("expected prefixed text, got %q", inner.texts[0])
	}
	if len(res.Embedding) != 3 {
		t.Errorf("expected 3-element vector, got %d", len(res.Embedding))
	}
}

func TestInstructionEmbedder_ErrorPropagation(t *testing.T) {
	innerErr := errors.New("provider down")
	emb := NewInstructionEmbedder(&fakeEmbedder{err: innerErr}, "query: ")

	_, err := emb.Embed(context.Background(), "oi")
	if !errors.Is(err, innerErr) {
		t.Errorf("expected wrapped inner error, got %v", err)
	}
}

func TestInstructionEmbedder_BatchPrefixesEach(t *testing.T) {
	inner := &fakeBatchEmbedder{
		batchResult: BatchEmbeddingResult{Embeddings: [][]float32{{0.1}, {0.2}}},
	}
	emb := NewInstructionEmbedder(inner, "passage: ")

	res, err := emb.BatchEmbed(context.Background(), []string{"trilha a", "trilha b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.batchTexts[0] != "passage: trilha a" || inner.batchTexts[1] != "passage: trilha b" {
		t.Errorf("expected prefixed texts, got %v", inner.batchTexts)
	}
	if len(res.Embeddings) != 2 {
		t.Errorf("expected 2 embeddings, got %d", len(res.Embeddings))
	}
}

func TestInstructionEmbedder_BatchFallsBackToSingle(t *testing.T) {
	// inner has no BatchEmbed; each text goes through Embed, prefixed.
	inner := &fakeEmbedder{result: EmbeddingResult{Embedding: []float32{0.5}}}
	emb := NewInstructionEmbedder(inner, "q: ")

	res, err := emb.BatchEmbed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(res.Embeddings))
	}
	if inner.texts[0] != "q: a" || inner.texts[1] != "q: b" {
		t.Errorf("expected prefixed texts, got %v", inner.texts)
	}
}
