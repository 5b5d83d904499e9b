// Package retriever implements the dense retrieval path and the hybrid
// score fusion that merges it with the lexical path.
package retriever

import (
	"context"
	"fmt"

	"github.com/leve-labs/trailmatch/internal/domain"
	"github.com/leve-labs/trailmatch/internal/domain/trail"
	"github.com/leve-labs/trailmatch/internal/vectorindex"
)

// Dense embeds texts and searches the vector index. The corpus is
// indexed once per pipeline run, then queried with a single embedding
// call. Documents and queries go through separate embedders so
// asymmetric instruction prefixes apply to the right side.
type Dense struct {
	docs    domain.Embedder
	queries domain.Embedder
	index   vectorindex.Index
}

// NewDense wires document and query embedders to a vector index.
func NewDense(docs, queries domain.Embedder, index vectorindex.Index) *Dense {
	return &Dense{docs: docs, queries: queries, index: index}
}

// IndexCorpus embeds every candidate's vector text and upserts the
// results. Embeddings are batched when the provider supports it.
func (d *Dense) IndexCorpus(ctx context.Context, candidates []trail.Candidate) error {
	if len(candidates) == 0 {
		return nil
	}

	texts := make([]string, len(candidates))
	for i := range candidates {
		texts[i] = candidates[i].VectorText()
	}

	results, err := domain.EmbedAll(ctx, d.docs, texts)
	if err != nil {
		return fmt.Errorf("embed corpus: %w", err)
	}

	items := make([]vectorindex.Item, len(candidates))
	for i := range candidates {
		items[i] = vectorindex.Item{
			ID:     candidates[i].ID.String(),
			Vector: results.Embeddings[i],
			Metadata: map[string]string{
				"status":     string(candidates[i].Status),
				"difficulty": string(candidates[i].Difficulty),
			},
		}
	}

	if err := d.index.Upsert(ctx, items); err != nil {
		return fmt.Errorf("index corpus: %w", err)
	}
	return nil
}

// Search embeds the query once and runs a single top-k index search.
func (d *Dense) Search(ctx context.Context, query string, k int, filters vectorindex.Filters) ([]vectorindex.Match, error) {
	res, err := d.queries.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return d.index.Search(ctx, res.Embedding, k, filters)
}
