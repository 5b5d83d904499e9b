package embcache

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/leve-labs/trailmatch/internal/db"
	"github.com/leve-labs/trailmatch/internal/domain"
)

type mockEmbedder struct {
	embedCalls int
	batchCalls int
	err        error
}

func (m *mockEmbedder) vector(text string) []float32 {
	return []float32{float32(len(text)), 1, 2}
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.embedCalls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vector(text), PromptTokens: 3, TotalTokens: 3}, nil
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.batchCalls++
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.vector(t)
	}
	return domain.BatchEmbeddingResult{Embeddings: out, PromptTokens: len(texts), TotalTokens: len(texts)}, nil
}

type mockKVStore struct {
	data    map[string][]byte
	getErr  error
	setErr  error
	ttlSeen time.Duration
}

func newMockKVStore() *mockKVStore {
	return &mockKVStore{data: make(map[string][]byte)}
}

func (s *mockKVStore) Get(_ context.Context, key string) ([]byte, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	v, ok := s.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (s *mockKVStore) Set(_ context.Context, key string, value []byte) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.data[key] = value
	return nil
}

func (s *mockKVStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.ttlSeen = ttl
	return s.Set(context.Background(), key, value)
}

func TestEmbed_MissThenHit(t *testing.T) {
	ctx := context.Background()
	inner := &mockEmbedder{}
	kv := newMockKVStore()
	c := New(inner, kv, "test-model", 0, nil, nil)

	first, err := c.Embed(ctx, "quero aprender excel")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if inner.embedCalls != 1 {
		t.Fatalf("embedCalls = %d, want 1", inner.embedCalls)
	}
	if first.TotalTokens != 3 {
		t.Errorf("miss TotalTokens = %d, want inner usage", first.TotalTokens)
	}

	second, err := c.Embed(ctx, "quero aprender excel")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if inner.embedCalls != 1 {
		t.Errorf("embedCalls = %d, want cached hit to skip the provider", inner.embedCalls)
	}
	if !reflect.DeepEqual(second.Embedding, first.Embedding) {
		t.Errorf("cached vector differs: %v vs %v", second.Embedding, first.Embedding)
	}
	if second.TotalTokens != 0 {
		t.Errorf("hit TotalTokens = %d, want 0", second.TotalTokens)
	}
}

func TestEmbed_InnerErrorPropagates(t *testing.T) {
	inner := &mockEmbedder{err: errors.New("provider down")}
	c := New(inner, newMockKVStore(), "test-model", 0, nil, nil)

	if _, err := c.Embed(context.Background(), "texto"); err == nil {
		t.Fatal("expected error from inner embedder")
	}
}

func TestEmbed_StoreErrorFallsThrough(t *testing.T) {
	// A broken cache degrades to direct provider calls, never to an error.
	inner := &mockEmbedder{}
	kv := newMockKVStore()
	kv.getErr = errors.New("connection refused")
	kv.setErr = errors.New("connection refused")
	c := New(inner, kv, "test-model", 0, nil, nil)

	res, err := c.Embed(context.Background(), "texto qualquer")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(res.Embedding) == 0 {
		t.Error("expected embedding despite cache failure")
	}
	if inner.embedCalls != 1 {
		t.Errorf("embedCalls = %d, want 1", inner.embedCalls)
	}
}

func TestEmbed_TTLUsed(t *testing.T) {
	kv := newMockKVStore()
	c := New(&mockEmbedder{}, kv, "test-model", time.Hour, nil, nil)

	if _, err := c.Embed(context.Background(), "texto"); err != nil {
		t.Fatal(err)
	}
	if kv.ttlSeen != time.Hour {
		t.Errorf("ttl = %v, want 1h", kv.ttlSeen)
	}
}

func TestCacheKey_ModelScoped(t *testing.T) {
	kv := newMockKVStore()
	a := New(&mockEmbedder{}, kv, "model-a", 0, nil, nil)
	b := New(&mockEmbedder{}, kv, "model-b", 0, nil, nil)

	if a.cacheKey("texto") == b.cacheKey("texto") {
		t.Error("cache keys must differ per model")
	}
}

func TestBatchEmbed_PartialHit(t *testing.T) {
	ctx := context.Background()
	inner := &mockEmbedder{}
	kv := newMockKVStore()
	c := New(inner, kv, "test-model", 0, nil, nil)

	// Prime the cache with one text.
	if _, err := c.Embed(ctx, "texto cacheado"); err != nil {
		t.Fatal(err)
	}
	inner.embedCalls = 0

	res, err := c.BatchEmbed(ctx, []string{"texto novo um", "texto cacheado", "texto novo dois"})
	if err != nil {
		t.Fatalf("BatchEmbed: %v", err)
	}
	if len(res.Embeddings) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(res.Embeddings))
	}
	for i, e := range res.Embeddings {
		if len(e) == 0 {
			t.Errorf("embedding %d missing", i)
		}
	}
	// Only the two misses reach the provider, in one batch call.
	if inner.batchCalls != 1 {
		t.Errorf("batchCalls = %d, want 1", inner.batchCalls)
	}
	if res.TotalTokens != 2 {
		t.Errorf("TotalTokens = %d, want usage for the 2 misses only", res.TotalTokens)
	}
	if !reflect.DeepEqual(res.Embeddings[1], inner.vector("texto cacheado")) {
		t.Errorf("cached slot wrong: %v", res.Embeddings[1])
	}
}

func TestBatchEmbed_AllHits(t *testing.T) {
	ctx := context.Background()
	inner := &mockEmbedder{}
	c := New(inner, newMockKVStore(), "test-model", 0, nil, nil)

	if _, err := c.BatchEmbed(ctx, []string{"um texto", "outro texto"}); err != nil {
		t.Fatal(err)
	}
	inner.batchCalls = 0

	res, err := c.BatchEmbed(ctx, []string{"um texto", "outro texto"})
	if err != nil {
		t.Fatalf("BatchEmbed: %v", err)
	}
	if inner.batchCalls != 0 {
		t.Errorf("batchCalls = %d, want all hits to skip the provider", inner.batchCalls)
	}
	if res.TotalTokens != 0 {
		t.Errorf("TotalTokens = %d, want 0 for all hits", res.TotalTokens)
	}
}

func TestVectorRoundTrip(t *testing.T) {
	in := []float32{0.1, -2.5, 3.75, 0}
	out, err := bytesToVector(vectorToCacheBytes(in))
	if err != nil {
		t.Fatalf("bytesToVector: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip = %v, want %v", out, in)
	}

	if _, err := bytesToVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated data")
	}
}
