// Package vectorindex provides the dense retrieval index: an Upsert/Search
// abstraction over normalized embedding vectors with two backends, an
// in-process brute-force index and a Redis FT.SEARCH KNN index.
package vectorindex

import (
	"context"
	"fmt"
	"math"

	"github.com/leve-labs/trailmatch/internal/domain"
)

// Item is a single document to index: an ID, its embedding and the
// metadata used for filtering at query time.
type Item struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
}

// Filters restricts a search by metadata. Values under one key are
// OR-ed, distinct keys are AND-ed.
type Filters map[string][]string

// Match is a single search hit. Score is cosine similarity in [0,1]
// for normalized vectors.
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// Index is the dense retrieval contract shared by all backends.
// Implementations normalize vectors on write and on query, so stored
// vectors are unit length exactly once and cosine similarity reduces
// to a dot product.
type Index interface {
	Upsert(ctx context.Context, items []Item) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, vector []float32, k int, filters Filters) ([]Match, error)
	Size(ctx context.Context) (int, error)
}

// Normalize returns a unit-length copy of v. The zero vector is
// returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		out := make([]float32, len(v))
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func checkDim(got, want int) error {
	if want > 0 && got != want {
		return fmt.Errorf("%w: got %d, want %d", domain.ErrVectorDimMismatch, got, want)
	}
	return nil
}

func matchesFilters(meta map[string]string, filters Filters) bool {
	for key, allowed := range filters {
		if len(allowed) == 0 {
			continue
		}
		val, ok := meta[key]
		if !ok {
			return false
		}
		found := false
		for _, a := range allowed {
			if val == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
